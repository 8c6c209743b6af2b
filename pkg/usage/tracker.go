package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/plan"
)

// Tracker enforces per-user quota counters on top of an atomic store.
// Counters are scoped to a billing period; the period start is part of the
// key, so a confirmed renewal naturally starts from zero even before the
// old-period counters are purged.
type Tracker struct {
	store Store
	log   *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the structured logger used by the tracker.
func WithLogger(log *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// NewTracker creates a quota tracker. Panics if the store is nil.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	if store == nil {
		panic("usage: Store is required")
	}
	t := &Tracker{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CheckAndIncrement atomically consumes quota if the limit allows it.
// Concurrent calls for the same key never both succeed past the limit; the
// store performs the read-modify-write as one operation.
func (t *Tracker) CheckAndIncrement(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time, limit, amount int64) (Result, error) {
	count, applied, err := t.store.IncrementIfBelow(ctx, userID, q, periodStart, amount, limit)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return Denied(limit, count), nil
	}
	return Allowed(limit, count), nil
}

// Usage returns the current record for a quota in the given period.
// A missing record is reported as a zero counter, not an error.
func (t *Tracker) Usage(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time) (*Record, error) {
	rec, err := t.store.Get(ctx, userID, q, periodStart)
	if errors.Is(err, ErrRecordNotFound) {
		return &Record{UserID: userID, Quota: q, PeriodStart: periodStart.UTC()}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ResetPeriod clears all of a user's counters from periods before
// newPeriodStart. Only webhook reconciliation calls this, on a confirmed
// renewal; counters are never reset on a client's say-so.
func (t *Tracker) ResetPeriod(ctx context.Context, userID uuid.UUID, newPeriodStart time.Time) error {
	if err := t.store.ResetPeriod(ctx, userID, newPeriodStart); err != nil {
		return err
	}
	t.log.DebugContext(ctx, "usage counters reset",
		slog.String("user_id", userID.String()),
		slog.Time("period_start", newPeriodStart))
	return nil
}
