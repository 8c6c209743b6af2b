package usage

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/plan"
)

// Record is the persisted usage counter for one (user, quota, billing period).
type Record struct {
	UserID      uuid.UUID
	Quota       plan.Quota
	PeriodStart time.Time
	Count       int64
	UpdatedAt   time.Time
}

// Result is the outcome of a check-and-increment. A denied result is a
// normal negative answer, not an error.
type Result struct {
	Allowed   bool
	Remaining int64 // plan.Unlimited when the quota has no limit
	Limit     int64
	Current   int64 // usage after the increment (or at denial time)
}

// Denied returns the denial result for a counter already at or past limit.
func Denied(limit, current int64) Result {
	return Result{Allowed: false, Remaining: remaining(limit, current), Limit: limit, Current: current}
}

// Allowed returns the success result after an increment.
func Allowed(limit, current int64) Result {
	return Result{Allowed: true, Remaining: remaining(limit, current), Limit: limit, Current: current}
}

// remaining never goes negative even when a plan downgrade left the counter
// above the new limit (soft-cap policy).
func remaining(limit, current int64) int64 {
	if limit == plan.Unlimited {
		return plan.Unlimited
	}
	return max(0, limit-current)
}
