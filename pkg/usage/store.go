package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/plan"
)

// Store defines the interface for usage counter persistence.
//
// IncrementIfBelow is the one operation that must be atomic with respect to
// its own read-then-write: two concurrent calls for the same key must never
// both succeed past the limit. Implementations use a single atomic
// read-modify-write (mutex, Lua script, or conditional SQL update), never a
// separate read followed by a separate write.
type Store interface {
	// IncrementIfBelow adds amount to the counter only if the result would
	// not exceed limit. limit == plan.Unlimited always increments. Returns
	// the counter value after the call and whether the increment was applied.
	IncrementIfBelow(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time, amount, limit int64) (count int64, applied bool, err error)

	// Get returns the record for the given key, or ErrRecordNotFound.
	Get(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time) (*Record, error)

	// ResetPeriod drops all counters for the user that belong to periods
	// older than newPeriodStart. Called by webhook reconciliation on a
	// confirmed renewal; clients never reset counters themselves.
	ResetPeriod(ctx context.Context, userID uuid.UUID, newPeriodStart time.Time) error
}
