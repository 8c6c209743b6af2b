package billing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	module "github.com/healthfolio/entitlements/modules/billing"
	"github.com/healthfolio/entitlements/pkg/billing"
	"github.com/healthfolio/entitlements/pkg/entitlement"
	"github.com/healthfolio/entitlements/pkg/plan"
	"github.com/healthfolio/entitlements/pkg/reconcile"
	"github.com/healthfolio/entitlements/pkg/usage"
)

// Mock implementations
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateSubscription(ctx context.Context, req billing.CreateSubscriptionRequest) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockProvider) UpdateSubscription(ctx context.Context, providerSubID string, req billing.UpdateSubscriptionRequest) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, providerSubID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, providerSubID string, immediate bool) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, providerSubID, immediate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

func (m *mockProvider) AttachPaymentMethod(ctx context.Context, providerCustomerID, paymentMethodRef string) error {
	args := m.Called(ctx, providerCustomerID, paymentMethodRef)
	return args.Error(0)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

// Test helpers
type fixture struct {
	userID   uuid.UUID
	provider *mockProvider
	store    *billing.MemoryStore
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewStaticSource(
		plan.Plan{
			ID: "free", Name: "Free", Interval: plan.IntervalNone, Public: true,
			Quotas: map[plan.Quota]int64{plan.QuotaAIInsights: 3},
		},
		plan.Plan{
			ID: "pri_premium_monthly", Name: "Premium", Interval: plan.IntervalMonthly,
			Price: plan.Money{Amount: 1999, Currency: "USD"}, Rank: 1, Public: true,
			Features: []plan.Feature{plan.FeatureTelehealth},
			Quotas:   map[plan.Quota]int64{plan.QuotaAIInsights: 50},
		},
		plan.Plan{
			ID: "pri_internal", Name: "Internal", Interval: plan.IntervalAnnual,
			Rank: 2, Public: false,
		},
	))
	require.NoError(t, err)

	provider := &mockProvider{}
	store := billing.NewMemoryStore()
	usageStore := usage.NewMemoryStore(usage.WithCleanupInterval(0))
	t.Cleanup(func() { _ = usageStore.Close() })
	ledger := reconcile.NewMemoryLedger(reconcile.WithCleanupInterval(0))
	t.Cleanup(func() { _ = ledger.Close() })

	tracker := usage.NewTracker(usageStore)
	lifecycle := billing.NewService(catalog, provider, store)
	checker := entitlement.NewChecker(catalog, store, tracker)
	reconciler := reconcile.NewReconciler(provider, store, tracker, ledger)

	userID := uuid.New()
	resolve := func(r *http.Request) (uuid.UUID, error) { return userID, nil }

	router := module.Router(module.RouterOptions{
		Webhooks: module.NewWebhookHandler(reconciler, nil),
		Queries:  module.NewQueryHandler(catalog, lifecycle, checker, resolve, nil),
	})

	return &fixture{userID: userID, provider: provider, store: store, router: router}
}

func TestWebhookHandler(t *testing.T) {
	t.Parallel()

	post := func(f *fixture) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(`{}`))
		req.Header.Set("Paddle-Signature", "ts=1;h1=abc")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	t.Run("invalid signature yields 401", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("ParseWebhook", mock.Anything, mock.Anything, "ts=1;h1=abc").
			Return(nil, billing.ErrInvalidSignature).Once()

		assert.Equal(t, http.StatusUnauthorized, post(f).Code)
	})

	t.Run("malformed payload yields 400", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, billing.ErrMalformedEvent).Once()

		assert.Equal(t, http.StatusBadRequest, post(f).Code)
	})

	t.Run("processing failure yields 500 for redelivery", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		// The event references a subscription that is not visible yet.
		f.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(&billing.WebhookEvent{
				ID: "evt_1", Type: billing.EventPaymentSucceeded, ProviderSubID: "sub_missing",
			}, nil).Once()

		assert.Equal(t, http.StatusInternalServerError, post(f).Code)
	})

	t.Run("applied event yields 200", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.store.Create(context.Background(), &billing.Subscription{
			UserID: f.userID, PlanID: "pri_premium_monthly",
			Status: billing.StatusIncomplete, ProviderSubID: "sub_1",
		}))

		f.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(&billing.WebhookEvent{
				ID: "evt_2", Type: billing.EventPaymentSucceeded, ProviderSubID: "sub_1",
				PeriodStart: time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
				PeriodEnd:   time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
			}, nil).Once()

		w := post(f)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"outcome":"applied"}`, w.Body.String())
	})
}

func TestQueryHandler(t *testing.T) {
	t.Parallel()

	t.Run("lists only public plans", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/plans", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var plans []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plans))
		require.Len(t, plans, 2)
		assert.Equal(t, "free", plans[0]["id"])
		assert.Equal(t, "pri_premium_monthly", plans[1]["id"])
	})

	t.Run("subscription 404 when none exists", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		req := httptest.NewRequest(http.MethodGet, "/subscription", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("returns the caller's subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.store.Create(context.Background(), &billing.Subscription{
			UserID: f.userID, PlanID: "pri_premium_monthly", Status: billing.StatusActive,
		}))

		req := httptest.NewRequest(http.MethodGet, "/subscription", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "pri_premium_monthly", body["plan_id"])
		assert.Equal(t, "active", body["status"])
	})

	t.Run("consume then read usage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		req := httptest.NewRequest(http.MethodPost, "/quota/ai_insight/consume", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var res map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, true, res["allowed"])
		assert.Equal(t, float64(1), res["current"])

		req = httptest.NewRequest(http.MethodGet, "/usage/ai_insight", nil)
		w = httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, float64(1), res["current"])
		assert.Equal(t, float64(3), res["limit"])
	})
}
