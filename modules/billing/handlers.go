package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/billing"
	"github.com/healthfolio/entitlements/pkg/entitlement"
	"github.com/healthfolio/entitlements/pkg/plan"
	"github.com/healthfolio/entitlements/pkg/reconcile"
)

// maxWebhookBody bounds webhook payload reads; provider events are small.
const maxWebhookBody = 1 << 20

// WebhookHandler adapts raw provider deliveries to the reconciler.
type WebhookHandler struct {
	reconciler *reconcile.Reconciler
	log        *slog.Logger
}

// NewWebhookHandler creates the webhook endpoint handler.
func NewWebhookHandler(reconciler *reconcile.Reconciler, log *slog.Logger) *WebhookHandler {
	if reconciler == nil {
		panic("billing module: reconciler is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{reconciler: reconciler, log: log}
}

// Handle passes the verified raw payload and signature to the reconciler.
// Status codes follow the provider redelivery contract: 2xx stops the
// retries, 4xx marks a permanently rejected delivery, 5xx requests another
// attempt.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	outcome, err := h.reconciler.Handle(r.Context(), payload, r.Header.Get("Paddle-Signature"))
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
	case errors.Is(err, billing.ErrInvalidSignature):
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	case errors.Is(err, billing.ErrMalformedEvent):
		http.Error(w, "malformed event", http.StatusBadRequest)
	default:
		h.log.ErrorContext(r.Context(), "webhook processing failed", slog.Any("error", err))
		http.Error(w, "processing failed", http.StatusInternalServerError)
	}
}

// QueryHandler exposes the synchronous query surface to the rest of the
// application: plan listing, the caller's subscription, and quota state.
type QueryHandler struct {
	catalog   *plan.Catalog
	lifecycle *billing.Service
	checker   *entitlement.Checker
	user      UserResolver
	log       *slog.Logger
}

// NewQueryHandler creates the query surface handler.
func NewQueryHandler(catalog *plan.Catalog, lifecycle *billing.Service, checker *entitlement.Checker, user UserResolver, log *slog.Logger) *QueryHandler {
	if catalog == nil {
		panic("billing module: catalog is required")
	}
	if lifecycle == nil {
		panic("billing module: lifecycle service is required")
	}
	if checker == nil {
		panic("billing module: entitlement checker is required")
	}
	if user == nil {
		panic("billing module: user resolver is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &QueryHandler{catalog: catalog, lifecycle: lifecycle, checker: checker, user: user, log: log}
}

type planResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	PriceAmount int64            `json:"price_amount"`
	Currency    string           `json:"currency,omitempty"`
	Interval    string           `json:"interval"`
	Features    []string         `json:"features"`
	Quotas      map[string]int64 `json:"quotas"`
}

func (h *QueryHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.catalog.List()
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		if !p.Public {
			continue
		}
		pr := planResponse{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			PriceAmount: p.Price.Amount,
			Currency:    p.Price.Currency,
			Interval:    string(p.Interval),
			Features:    make([]string, 0, len(p.Features)),
			Quotas:      make(map[string]int64, len(p.Quotas)),
		}
		for _, f := range p.Features {
			pr.Features = append(pr.Features, string(f))
		}
		for q, limit := range p.Quotas {
			pr.Quotas[string(q)] = limit
		}
		out = append(out, pr)
	}
	respondJSON(w, http.StatusOK, out)
}

type subscriptionResponse struct {
	PlanID            string    `json:"plan_id"`
	Status            string    `json:"status"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
}

func (h *QueryHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	sub, err := h.lifecycle.Get(r.Context(), userID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		http.Error(w, "no subscription", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "subscription lookup failed", slog.Any("error", err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, subscriptionResponse{
		PlanID:            sub.PlanID,
		Status:            string(sub.Status),
		PeriodStart:       sub.PeriodStart,
		PeriodEnd:         sub.PeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	})
}

type quotaResponse struct {
	Quota     string `json:"quota"`
	Allowed   bool   `json:"allowed"`
	Limit     int64  `json:"limit"`
	Current   int64  `json:"current"`
	Remaining int64  `json:"remaining"`
}

func (h *QueryHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	q := plan.Quota(chi.URLParam(r, "quota"))
	res, err := h.checker.Quota(r.Context(), userID, q)
	if err != nil {
		h.log.ErrorContext(r.Context(), "usage lookup failed", slog.Any("error", err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, quotaResponse{
		Quota:     string(q),
		Allowed:   res.Allowed,
		Limit:     res.Limit,
		Current:   res.Current,
		Remaining: res.Remaining,
	})
}

// ConsumeQuota is the increment-and-check entry point for feature code that
// lives outside this process. A denial is a 200 with allowed=false, not an
// error status.
func (h *QueryHandler) ConsumeQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	q := plan.Quota(chi.URLParam(r, "quota"))
	res, err := h.checker.CheckQuota(r.Context(), userID, q)
	if err != nil {
		h.log.ErrorContext(r.Context(), "quota check failed", slog.Any("error", err))
		http.Error(w, "check failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, quotaResponse{
		Quota:     string(q),
		Allowed:   res.Allowed,
		Limit:     res.Limit,
		Current:   res.Current,
		Remaining: res.Remaining,
	})
}

func (h *QueryHandler) resolveUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := h.user(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
