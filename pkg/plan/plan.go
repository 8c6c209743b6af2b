package plan

import (
	"maps"
	"slices"
)

// Plan describes a subscription tier and its feature/quota constraints.
// The ID field should be set to the payment provider's price ID for paid plans
// to enable direct mapping during checkout and webhook processing.
type Plan struct {
	ID          string // provider's price ID for paid plans (e.g., pri_premium_monthly)
	Name        string
	Description string
	Price       Money
	Interval    Interval
	Features    []Feature
	Quotas      map[Quota]int64 // -1 represents unlimited
	Rank        int             // ordering for display and tier comparison
	Public      bool            // available for self-service signup
}

// IsFree reports whether the plan requires no billing provider interaction.
func (p Plan) IsFree() bool {
	return p.Interval == IntervalNone
}

// HasFeature reports whether the plan enables the given feature.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// QuotaLimit returns the limit for a quota type. The second return value
// is false if the plan does not define the quota at all.
func (p Plan) QuotaLimit(q Quota) (int64, bool) {
	limit, ok := p.Quotas[q]
	return limit, ok
}

// clone returns a deep copy so catalog internals stay immutable.
func (p Plan) clone() Plan {
	p.Features = slices.Clone(p.Features)
	p.Quotas = maps.Clone(p.Quotas)
	return p
}
