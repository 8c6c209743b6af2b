package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/billing"
	"github.com/healthfolio/entitlements/pkg/plan"
	"github.com/healthfolio/entitlements/pkg/usage"
)

// SubscriptionReader is the read-only slice of the subscription store the
// checker needs. billing.Store satisfies it.
type SubscriptionReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error)
}

// Catalog resolves plans. *plan.Catalog satisfies it.
type Catalog interface {
	Get(planID string) (plan.Plan, error)
	FreePlan() plan.Plan
}

// Checker answers "can user X do Y now?" by combining the plan catalog, the
// user's current subscription, and the quota tracker. It performs no
// subscription writes; checkQuota's counter increment is its only side
// effect.
type Checker struct {
	catalog Catalog
	subs    SubscriptionReader
	tracker *usage.Tracker
	log     *slog.Logger
	now     func() time.Time
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithLogger sets the structured logger used by the checker.
func WithLogger(log *slog.Logger) CheckerOption {
	return func(c *Checker) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock overrides the time source used for free-tier period boundaries.
func WithClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChecker creates an entitlement checker.
// Panics if required dependencies are nil to fail fast during initialization.
func NewChecker(catalog Catalog, subs SubscriptionReader, tracker *usage.Tracker, opts ...CheckerOption) *Checker {
	if catalog == nil {
		panic("entitlement: Catalog is required")
	}
	if subs == nil {
		panic("entitlement: SubscriptionReader is required")
	}
	if tracker == nil {
		panic("entitlement: usage.Tracker is required")
	}

	c := &Checker{
		catalog: catalog,
		subs:    subs,
		tracker: tracker,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasFeature reports whether the user's current plan enables the feature.
// Users without an entitled subscription are evaluated against the free
// fallback plan. Returns false on any lookup error to fail closed for
// security-sensitive features.
func (c *Checker) HasFeature(ctx context.Context, userID uuid.UUID, f plan.Feature) bool {
	p, _, err := c.resolvePlan(ctx, userID)
	if err != nil {
		c.log.WarnContext(ctx, "feature check failed closed",
			slog.String("user_id", userID.String()),
			slog.String("feature", string(f)),
			slog.Any("error", err))
		return false
	}
	return p.HasFeature(f)
}

// CheckQuota consumes one unit of quota if the user's plan allows it.
// A denial is a normal negative result carrying the limit and current usage.
func (c *Checker) CheckQuota(ctx context.Context, userID uuid.UUID, q plan.Quota) (usage.Result, error) {
	return c.CheckQuotaN(ctx, userID, q, 1)
}

// CheckQuotaN consumes amount units of quota, atomically with the limit
// check. Delegates to the tracker with the limit from the user's current
// plan; a quota the plan does not define is denied with limit 0.
func (c *Checker) CheckQuotaN(ctx context.Context, userID uuid.UUID, q plan.Quota, amount int64) (usage.Result, error) {
	p, periodStart, err := c.resolvePlan(ctx, userID)
	if err != nil {
		return usage.Result{}, err
	}

	limit, ok := p.QuotaLimit(q)
	if !ok {
		return usage.Denied(0, 0), nil
	}

	return c.tracker.CheckAndIncrement(ctx, userID, q, periodStart, limit, amount)
}

// Quota returns the user's current usage and limit for a quota type without
// consuming anything.
func (c *Checker) Quota(ctx context.Context, userID uuid.UUID, q plan.Quota) (usage.Result, error) {
	p, periodStart, err := c.resolvePlan(ctx, userID)
	if err != nil {
		return usage.Result{}, err
	}

	limit, ok := p.QuotaLimit(q)
	if !ok {
		return usage.Denied(0, 0), nil
	}

	rec, err := c.tracker.Usage(ctx, userID, q, periodStart)
	if err != nil {
		return usage.Result{}, err
	}
	res := usage.Allowed(limit, rec.Count)
	res.Allowed = limit == plan.Unlimited || rec.Count < limit
	return res, nil
}

// resolvePlan loads the user's subscription and maps it to the plan that
// governs entitlements right now, plus the quota period start. Past-due and
// pending-cancellation subscriptions keep the last-known plan (grace
// period); everything else falls back to the free tier and calendar-month
// periods.
func (c *Checker) resolvePlan(ctx context.Context, userID uuid.UUID) (plan.Plan, time.Time, error) {
	sub, err := c.subs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return c.catalog.FreePlan(), c.calendarPeriodStart(), nil
		}
		return plan.Plan{}, time.Time{}, err
	}

	if !sub.Entitled() {
		return c.catalog.FreePlan(), c.calendarPeriodStart(), nil
	}

	p, err := c.catalog.Get(sub.PlanID)
	if err != nil {
		return plan.Plan{}, time.Time{}, err
	}

	periodStart := sub.PeriodStart
	if periodStart.IsZero() {
		periodStart = c.calendarPeriodStart()
	}
	return p, periodStart, nil
}

// calendarPeriodStart returns the first instant of the current UTC month,
// the quota period for users with no provider-defined billing period.
func (c *Checker) calendarPeriodStart() time.Time {
	now := c.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
