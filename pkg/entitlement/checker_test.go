package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfolio/entitlements/pkg/billing"
	"github.com/healthfolio/entitlements/pkg/entitlement"
	"github.com/healthfolio/entitlements/pkg/plan"
	"github.com/healthfolio/entitlements/pkg/usage"
)

var periodStart = time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

type failingReader struct{}

func (failingReader) Get(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	return nil, errors.New("store down")
}

func testCatalog(t *testing.T) *plan.Catalog {
	t.Helper()
	catalog, err := plan.NewCatalog(context.Background(), plan.NewStaticSource(
		plan.Plan{
			ID:       "free",
			Name:     "Free",
			Interval: plan.IntervalNone,
			Quotas: map[plan.Quota]int64{
				plan.QuotaAIInsights:    3,
				plan.QuotaSymptomChecks: 5,
			},
		},
		plan.Plan{
			ID:       "pri_premium_monthly",
			Name:     "Premium",
			Price:    plan.Money{Amount: 1999, Currency: "USD"},
			Interval: plan.IntervalMonthly,
			Rank:     2,
			Features: []plan.Feature{plan.FeatureTelehealth, plan.FeatureAIInsights},
			Quotas: map[plan.Quota]int64{
				plan.QuotaAIInsights:        50,
				plan.QuotaTelehealthSession: plan.Unlimited,
			},
		},
	))
	require.NoError(t, err)
	return catalog
}

type fixture struct {
	checker *entitlement.Checker
	subs    *billing.MemoryStore
	usage   *usage.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	subs := billing.NewMemoryStore()
	store := usage.NewMemoryStore(usage.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	checker := entitlement.NewChecker(testCatalog(t), subs, usage.NewTracker(store))
	return &fixture{checker: checker, subs: subs, usage: store}
}

func (f *fixture) subscribe(t *testing.T, userID uuid.UUID, status billing.Status) {
	t.Helper()
	require.NoError(t, f.subs.Create(context.Background(), &billing.Subscription{
		UserID:      userID,
		PlanID:      "pri_premium_monthly",
		Status:      status,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 1, 0),
	}))
}

func TestChecker_HasFeature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("active subscriber has plan features", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusActive)

		assert.True(t, f.checker.HasFeature(ctx, userID, plan.FeatureTelehealth))
		assert.False(t, f.checker.HasFeature(ctx, userID, plan.FeaturePrioritySupport))
	})

	t.Run("no subscription falls back to the free plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		assert.False(t, f.checker.HasFeature(ctx, uuid.New(), plan.FeatureTelehealth))
	})

	t.Run("past due keeps access during the grace period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusPastDue)

		assert.True(t, f.checker.HasFeature(ctx, userID, plan.FeatureTelehealth))
	})

	t.Run("canceled drops to the free tier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusCanceled)

		assert.False(t, f.checker.HasFeature(ctx, userID, plan.FeatureTelehealth))
	})

	t.Run("fails closed on store errors", func(t *testing.T) {
		t.Parallel()
		store := usage.NewMemoryStore(usage.WithCleanupInterval(0))
		t.Cleanup(func() { _ = store.Close() })
		checker := entitlement.NewChecker(testCatalog(t), failingReader{}, usage.NewTracker(store))

		assert.False(t, checker.HasFeature(ctx, uuid.New(), plan.FeatureTelehealth))
	})
}

func TestChecker_CheckQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("consumes until the plan limit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusActive)

		for i := 0; i < 50; i++ {
			res, err := f.checker.CheckQuota(ctx, userID, plan.QuotaAIInsights)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}

		res, err := f.checker.CheckQuota(ctx, userID, plan.QuotaAIInsights)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(50), res.Limit)
		assert.Equal(t, int64(50), res.Current)
		assert.Equal(t, int64(0), res.Remaining)
	})

	t.Run("undefined quota is denied with zero limit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusActive)

		res, err := f.checker.CheckQuota(ctx, userID, plan.QuotaFamilyMembers)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(0), res.Limit)
	})

	t.Run("free tier uses the free plan limit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()

		for i := 0; i < 3; i++ {
			res, err := f.checker.CheckQuota(ctx, userID, plan.QuotaAIInsights)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}

		res, err := f.checker.CheckQuota(ctx, userID, plan.QuotaAIInsights)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(3), res.Limit)
	})

	t.Run("bulk consumption is atomic", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusActive)

		res, err := f.checker.CheckQuotaN(ctx, userID, plan.QuotaAIInsights, 48)
		require.NoError(t, err)
		require.True(t, res.Allowed)

		// 3 more would cross 50; the counter must stay at 48.
		res, err = f.checker.CheckQuotaN(ctx, userID, plan.QuotaAIInsights, 3)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(48), res.Current)
	})

	t.Run("unlimited quota always allows", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusActive)

		res, err := f.checker.CheckQuota(ctx, userID, plan.QuotaTelehealthSession)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, plan.Unlimited, res.Remaining)
	})
}

func TestChecker_Quota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("read does not consume", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusActive)

		for i := 0; i < 5; i++ {
			res, err := f.checker.Quota(ctx, userID, plan.QuotaAIInsights)
			require.NoError(t, err)
			assert.Equal(t, int64(0), res.Current)
			assert.True(t, res.Allowed)
		}
	})

	t.Run("reports exhaustion", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		userID := uuid.New()
		f.subscribe(t, userID, billing.StatusActive)

		res, err := f.checker.CheckQuotaN(ctx, userID, plan.QuotaAIInsights, 50)
		require.NoError(t, err)
		require.True(t, res.Allowed)

		res, err = f.checker.Quota(ctx, userID, plan.QuotaAIInsights)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, int64(50), res.Current)
	})
}

// Free-tier counters are scoped to the calendar month, independent of any
// provider billing period.
func TestChecker_FreeTierCalendarPeriod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	subs := billing.NewMemoryStore()
	store := usage.NewMemoryStore(usage.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, time.August, 17, 14, 30, 0, 0, time.UTC)
	checker := entitlement.NewChecker(testCatalog(t), subs, usage.NewTracker(store),
		entitlement.WithClock(func() time.Time { return now }))

	userID := uuid.New()
	res, err := checker.CheckQuota(ctx, userID, plan.QuotaAIInsights)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	monthStart := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	rec, err := store.Get(ctx, userID, plan.QuotaAIInsights, monthStart)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Count)
}
