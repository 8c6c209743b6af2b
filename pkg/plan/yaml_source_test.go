package plan_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthfolio/entitlements/pkg/plan"
)

const plansYAML = `
plans:
  - id: free
    name: Free
    rank: 0
    public: true
    quotas:
      ai_insight: 3
  - id: pri_premium_monthly
    name: Premium
    price: 1999
    currency: USD
    interval: monthly
    rank: 1
    public: true
    features: [telehealth, ai_insights]
    quotas:
      ai_insight: 50
      telehealth_session: -1
`

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("decodes plan list", func(t *testing.T) {
		t.Parallel()
		src := plan.NewYAMLSource(strings.NewReader(plansYAML))
		plans, err := src.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, plans, 2)

		free := plans["free"]
		assert.Equal(t, plan.IntervalNone, free.Interval)
		assert.True(t, free.IsFree())
		assert.Equal(t, int64(3), free.Quotas[plan.QuotaAIInsights])

		premium := plans["pri_premium_monthly"]
		assert.Equal(t, plan.IntervalMonthly, premium.Interval)
		assert.Equal(t, plan.Money{Amount: 1999, Currency: "USD"}, premium.Price)
		assert.True(t, premium.HasFeature(plan.FeatureTelehealth))
		assert.Equal(t, plan.Unlimited, premium.Quotas[plan.QuotaTelehealthSession])
	})

	t.Run("feeds catalog directly", func(t *testing.T) {
		t.Parallel()
		catalog, err := plan.NewCatalog(context.Background(), plan.NewYAMLSource(strings.NewReader(plansYAML)))
		require.NoError(t, err)
		assert.Equal(t, "free", catalog.FreePlan().ID)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		t.Parallel()
		src := plan.NewYAMLSource(strings.NewReader("plans: [this is: not: valid"))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})
}

func TestYAMLFileSource(t *testing.T) {
	t.Parallel()

	t.Run("loads from disk", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte(plansYAML), 0o600))

		plans, err := plan.NewYAMLFileSource(path).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, plans, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := plan.NewYAMLFileSource("/nonexistent/plans.yaml").Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})
}
