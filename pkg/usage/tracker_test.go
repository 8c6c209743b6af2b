package usage_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfolio/entitlements/pkg/plan"
	"github.com/healthfolio/entitlements/pkg/usage"
)

func TestTracker_CheckAndIncrement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("allows and reports remaining", func(t *testing.T) {
		t.Parallel()
		tracker := usage.NewTracker(newTestStore(t))
		userID := uuid.New()

		res, err := tracker.CheckAndIncrement(ctx, userID, plan.QuotaAIInsights, testPeriod, 10, 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(1), res.Current)
		assert.Equal(t, int64(9), res.Remaining)
		assert.Equal(t, int64(10), res.Limit)
	})

	t.Run("denies at the limit", func(t *testing.T) {
		t.Parallel()
		tracker := usage.NewTracker(newTestStore(t))
		userID := uuid.New()

		for i := 0; i < 3; i++ {
			res, err := tracker.CheckAndIncrement(ctx, userID, plan.QuotaAIInsights, testPeriod, 3, 1)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}

		res, err := tracker.CheckAndIncrement(ctx, userID, plan.QuotaAIInsights, testPeriod, 3, 1)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(3), res.Current)
		assert.Equal(t, int64(0), res.Remaining)
	})

	t.Run("unlimited quota", func(t *testing.T) {
		t.Parallel()
		tracker := usage.NewTracker(newTestStore(t))

		res, err := tracker.CheckAndIncrement(ctx, uuid.New(), plan.QuotaTelehealthSession, testPeriod, plan.Unlimited, 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, plan.Unlimited, res.Remaining)
	})

	t.Run("soft cap after downgrade never reports negative remaining", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		tracker := usage.NewTracker(store)
		userID := uuid.New()

		// Consumed 8 under a higher limit, then the plan limit dropped to 5.
		_, _, err := store.IncrementIfBelow(ctx, userID, plan.QuotaAIInsights, testPeriod, 8, 50)
		require.NoError(t, err)

		res, err := tracker.CheckAndIncrement(ctx, userID, plan.QuotaAIInsights, testPeriod, 5, 1)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(8), res.Current)
		assert.Equal(t, int64(0), res.Remaining)
	})
}

func TestTracker_Usage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing record reads as zero", func(t *testing.T) {
		t.Parallel()
		tracker := usage.NewTracker(newTestStore(t))
		userID := uuid.New()

		rec, err := tracker.Usage(ctx, userID, plan.QuotaAIInsights, testPeriod)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.Count)
		assert.Equal(t, userID, rec.UserID)
	})

	t.Run("reflects increments", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t)
		tracker := usage.NewTracker(store)
		userID := uuid.New()

		_, _, err := store.IncrementIfBelow(ctx, userID, plan.QuotaAIInsights, testPeriod, 7, 10)
		require.NoError(t, err)

		rec, err := tracker.Usage(ctx, userID, plan.QuotaAIInsights, testPeriod)
		require.NoError(t, err)
		assert.Equal(t, int64(7), rec.Count)
	})
}

func TestTracker_ResetPeriod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t)
	tracker := usage.NewTracker(store)
	userID := uuid.New()
	nextPeriod := testPeriod.AddDate(0, 1, 0)

	_, _, err := store.IncrementIfBelow(ctx, userID, plan.QuotaAIInsights, testPeriod, 9, 10)
	require.NoError(t, err)

	require.NoError(t, tracker.ResetPeriod(ctx, userID, nextPeriod))

	rec, err := tracker.Usage(ctx, userID, plan.QuotaAIInsights, nextPeriod)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Count)
}
