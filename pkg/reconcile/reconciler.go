package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/billing"
	"github.com/healthfolio/entitlements/pkg/usage"
)

// Outcome reports what Handle did with an event.
type Outcome string

const (
	// OutcomeApplied covers both an effective state change and a confirmed
	// no-op (e.g. a stale event discarded by the period tie-break). Either
	// way the event is ledgered and a redelivery becomes OutcomeIgnored.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event ID was already in the ledger.
	OutcomeIgnored Outcome = "ignored"
)

// defaultCASRetries bounds the optimistic-concurrency retry loop, matching
// the lifecycle service so webhooks and direct commands race fairly.
const defaultCASRetries = 3

// Reconciler consumes asynchronous billing-provider events and applies them
// idempotently to subscription and usage state. The provider is the ground
// truth this core converges to, never overrides.
type Reconciler struct {
	provider   billing.Provider
	store      billing.Store
	tracker    *usage.Tracker
	ledger     Ledger
	log        *slog.Logger
	casRetries int
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithLogger sets the structured logger used by the reconciler.
func WithLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithCASRetries bounds the optimistic-concurrency retry loop.
func WithCASRetries(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n >= 1 {
			r.casRetries = n
		}
	}
}

// NewReconciler creates a webhook reconciler.
// Panics if required dependencies are nil to fail fast during initialization.
func NewReconciler(provider billing.Provider, store billing.Store, tracker *usage.Tracker, ledger Ledger, opts ...ReconcilerOption) *Reconciler {
	if provider == nil {
		panic("reconcile: billing.Provider is required")
	}
	if store == nil {
		panic("reconcile: billing.Store is required")
	}
	if tracker == nil {
		panic("reconcile: usage.Tracker is required")
	}
	if ledger == nil {
		panic("reconcile: Ledger is required")
	}

	r := &Reconciler{
		provider:   provider,
		store:      store,
		tracker:    tracker,
		ledger:     ledger,
		log:        slog.Default(),
		casRetries: defaultCASRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle verifies, deduplicates, and applies one raw webhook delivery.
//
// Failure contract: billing.ErrInvalidSignature means the event was never
// applied; billing.ErrMalformedEvent and any application error leave the
// ledger untouched so the provider's redelivery retries safely. The ledger
// is written only after successful application or a confirmed no-op.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	event, err := r.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return "", err
	}

	seen, err := r.ledger.Seen(ctx, event.ID)
	if err != nil {
		return "", err
	}
	if seen {
		r.log.DebugContext(ctx, "duplicate webhook delivery ignored",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)))
		return OutcomeIgnored, nil
	}

	if err := r.apply(ctx, event); err != nil {
		return "", err
	}

	if err := r.ledger.Record(ctx, event.ID); err != nil {
		// Application succeeded but the dedup mark failed; surfacing the
		// error triggers a redelivery, which the stale/transition guards
		// turn into a no-op.
		return "", err
	}

	r.log.InfoContext(ctx, "webhook applied",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("provider_sub_id", event.ProviderSubID))
	return OutcomeApplied, nil
}

func (r *Reconciler) apply(ctx context.Context, event *billing.WebhookEvent) error {
	sub, err := r.locate(ctx, event)
	if err != nil {
		return err
	}

	switch event.Type {
	case billing.EventPaymentSucceeded:
		return r.applyPaymentSucceeded(ctx, sub.UserID, event)
	case billing.EventPaymentFailed:
		return r.applyPaymentFailed(ctx, sub.UserID, event)
	case billing.EventSubscriptionUpdated:
		return r.applySubscriptionUpdated(ctx, sub.UserID, event)
	case billing.EventSubscriptionDeleted:
		return r.applySubscriptionDeleted(ctx, sub.UserID, event)
	default:
		return errors.Join(billing.ErrMalformedEvent,
			errors.New("unhandled event type "+string(event.Type)))
	}
}

// locate resolves the event to a local subscription by the provider's
// subscription reference, falling back to the customer reference for events
// that arrive before the final subscription ID is bound locally. The user ID
// carried in the payload is never trusted for this.
func (r *Reconciler) locate(ctx context.Context, event *billing.WebhookEvent) (*billing.Subscription, error) {
	if event.ProviderSubID != "" {
		sub, err := r.store.GetByProviderSubID(ctx, event.ProviderSubID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, billing.ErrSubscriptionNotFound) {
			return nil, err
		}
	}
	if event.ProviderCustomerID != "" {
		sub, err := r.store.GetByProviderCustomerID(ctx, event.ProviderCustomerID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, billing.ErrSubscriptionNotFound) {
			return nil, err
		}
	}
	// Not ledgered: the local record may simply not be visible yet, so the
	// provider's redelivery gets another chance.
	return nil, ErrUnknownSubscription
}

// stale reports whether the event is older than what the record already
// reflects: an earlier billing period, or the same period with a provider
// timestamp at or before the last applied event's. Stale events are accepted
// into the ledger (to stay idempotent) but their effect is discarded.
func stale(stored *billing.Subscription, event *billing.WebhookEvent) bool {
	if !event.PeriodStart.IsZero() && !stored.PeriodStart.IsZero() {
		if event.PeriodStart.Before(stored.PeriodStart) {
			return true
		}
		if event.PeriodStart.After(stored.PeriodStart) {
			return false
		}
	}
	// Same or unknown period: order by the provider's event timestamp so a
	// late delivery cannot undo a newer event's effect.
	return !event.OccurredAt.IsZero() && !stored.LastEventAt.IsZero() &&
		!event.OccurredAt.After(stored.LastEventAt)
}

// markApplied stamps the provider timestamp of the applied event so stale can
// order later deliveries for the same period.
func markApplied(stored *billing.Subscription, event *billing.WebhookEvent) {
	if event.OccurredAt.After(stored.LastEventAt) {
		stored.LastEventAt = event.OccurredAt
	}
}

func (r *Reconciler) applyPaymentSucceeded(ctx context.Context, userID uuid.UUID, event *billing.WebhookEvent) error {
	var renewed bool

	_, err := billing.UpdateWithRetry(ctx, r.store, userID, r.casRetries, func(stored *billing.Subscription) (bool, error) {
		if stale(stored, event) {
			return false, nil
		}
		if stored.Status != billing.StatusActive && !billing.CanTransition(stored.Status, billing.StatusActive) {
			return false, nil
		}

		renewed = !event.PeriodStart.IsZero() && event.PeriodStart.After(stored.PeriodStart)

		stored.Status = billing.StatusActive
		stored.CancelAtPeriodEnd = false
		if event.PriceID != "" {
			stored.PlanID = event.PriceID
		}
		if !event.PeriodStart.IsZero() {
			stored.PeriodStart = event.PeriodStart
			stored.PeriodEnd = event.PeriodEnd
		}
		// First payment for a Paddle checkout carries the real subscription
		// ID; bind it if the record still holds the transaction reference.
		if event.ProviderSubID != "" && stored.ProviderSubID != event.ProviderSubID {
			stored.ProviderSubID = event.ProviderSubID
		}
		markApplied(stored, event)
		return true, nil
	})
	if err != nil {
		return err
	}

	// A confirmed renewal starts a new billing period: all usage counters
	// for the user reset to zero.
	if renewed {
		return r.tracker.ResetPeriod(ctx, userID, event.PeriodStart)
	}
	return nil
}

func (r *Reconciler) applyPaymentFailed(ctx context.Context, userID uuid.UUID, event *billing.WebhookEvent) error {
	_, err := billing.UpdateWithRetry(ctx, r.store, userID, r.casRetries, func(stored *billing.Subscription) (bool, error) {
		if stale(stored, event) {
			return false, nil
		}

		switch stored.Status {
		case billing.StatusIncomplete:
			// First payment ultimately failed with no retry scheduled.
			if !event.FinalAttempt {
				return false, nil
			}
			stored.Status = billing.StatusExpired
			markApplied(stored, event)
			return true, nil
		case billing.StatusActive:
			stored.Status = billing.StatusPastDue
			markApplied(stored, event)
			return true, nil
		default:
			return false, nil
		}
	})
	return err
}

func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, userID uuid.UUID, event *billing.WebhookEvent) error {
	_, err := billing.UpdateWithRetry(ctx, r.store, userID, r.casRetries, func(stored *billing.Subscription) (bool, error) {
		if stale(stored, event) {
			return false, nil
		}

		target, ok := mapProviderStatus(event.Status, event.CancelAtPeriodEnd)
		if ok && target != stored.Status {
			if !billing.CanTransition(stored.Status, target) {
				return false, nil
			}
			stored.Status = target
		}

		stored.CancelAtPeriodEnd = event.CancelAtPeriodEnd
		if event.PriceID != "" {
			stored.PlanID = event.PriceID
		}
		if !event.PeriodStart.IsZero() {
			stored.PeriodStart = event.PeriodStart
			stored.PeriodEnd = event.PeriodEnd
		}
		if event.ProviderSubID != "" && stored.ProviderSubID != event.ProviderSubID {
			stored.ProviderSubID = event.ProviderSubID
		}
		markApplied(stored, event)
		return true, nil
	})
	return err
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, userID uuid.UUID, event *billing.WebhookEvent) error {
	_, err := billing.UpdateWithRetry(ctx, r.store, userID, r.casRetries, func(stored *billing.Subscription) (bool, error) {
		if stored.Status.Terminal() {
			return false, nil
		}
		if !billing.CanTransition(stored.Status, billing.StatusCanceled) {
			return false, nil
		}
		// Entitlements drop to the free tier automatically: the checker
		// falls back once the status is terminal.
		stored.Status = billing.StatusCanceled
		stored.CancelAtPeriodEnd = false
		markApplied(stored, event)
		return true, nil
	})
	return err
}

// mapProviderStatus translates a provider-side status string into the local
// state machine vocabulary. Unknown statuses keep the current local state.
func mapProviderStatus(providerStatus string, cancelScheduled bool) (billing.Status, bool) {
	switch providerStatus {
	case "active", "trialing":
		if cancelScheduled {
			return billing.StatusCanceledPending, true
		}
		return billing.StatusActive, true
	case "past_due":
		return billing.StatusPastDue, true
	case "canceled", "cancelled":
		return billing.StatusCanceled, true
	default:
		return "", false
	}
}
