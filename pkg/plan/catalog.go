package plan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Source defines how plans are loaded into the catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog is a read-only registry of subscription plans.
// Plans are loaded once at startup and never mutated at runtime, so all
// accessors are safe for concurrent use without locking.
type Catalog struct {
	plans    map[string]Plan
	ordered  []string // plan IDs sorted by Rank
	freePlan string
}

// NewCatalog loads plans from the source and validates the configuration.
// A missing or inconsistent plan set is a startup error, not a runtime one.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(plans) == 0 {
		return nil, ErrNoPlans
	}

	c := &Catalog{plans: make(map[string]Plan, len(plans))}

	for id, p := range plans {
		if p.ID != id {
			return nil, errors.Join(ErrInvalidPlanConfig,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", id, p.ID))
		}
		for q, limit := range p.Quotas {
			if limit < 0 && limit != Unlimited {
				return nil, errors.Join(ErrInvalidPlanConfig,
					fmt.Errorf("plan %s has negative limit for quota %s: %d", id, q, limit))
			}
		}
		if p.IsFree() {
			if c.freePlan != "" {
				return nil, errors.Join(ErrNoFreePlan,
					fmt.Errorf("both %s and %s are free plans", c.freePlan, id))
			}
			c.freePlan = id
		}
		c.plans[id] = p.clone()
		c.ordered = append(c.ordered, id)
	}

	if c.freePlan == "" {
		return nil, ErrNoFreePlan
	}

	sort.Slice(c.ordered, func(i, j int) bool {
		return c.plans[c.ordered[i]].Rank < c.plans[c.ordered[j]].Rank
	})

	return c, nil
}

// Get returns the plan with the given ID.
// Returns ErrPlanNotFound for unknown IDs; callers must treat this as a
// configuration error, not a user-facing one.
func (c *Catalog) Get(planID string) (Plan, error) {
	p, ok := c.plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p.clone(), nil
}

// List returns all plans ordered by rank.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.ordered))
	for _, id := range c.ordered {
		out = append(out, c.plans[id].clone())
	}
	return out
}

// FreePlan returns the designated free fallback tier. Users without an
// entitled subscription are evaluated against this plan.
func (c *Catalog) FreePlan() Plan {
	return c.plans[c.freePlan].clone()
}

// PlansWithFeature returns the IDs of all plans that enable the feature,
// ordered by rank. This is the data-driven replacement for hard-coded
// feature-to-plan conditionals: adding a plan or feature needs no code change.
func (c *Catalog) PlansWithFeature(f Feature) []string {
	var out []string
	for _, id := range c.ordered {
		if slices.Contains(c.plans[id].Features, f) {
			out = append(out, id)
		}
	}
	return out
}
