package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/plan"
)

// defaultCASRetries bounds the optimistic-concurrency retry loop.
const defaultCASRetries = 3

// Plans resolves plan IDs to plan definitions. *plan.Catalog satisfies it.
type Plans interface {
	Get(planID string) (plan.Plan, error)
}

// Service owns the subscription lifecycle: it issues commands to the billing
// provider and records the provider's synchronous responses. Webhook
// reconciliation is the only other writer of subscription state; both go
// through the same compare-and-swap store path so neither can silently
// clobber the other.
type Service struct {
	plans      Plans
	provider   Provider
	store      Store
	log        *slog.Logger
	casRetries int
	now        func() time.Time
}

// NewService creates a new lifecycle service.
// Panics if required dependencies are nil to fail fast during initialization.
func NewService(plans Plans, provider Provider, store Store, opts ...ServiceOption) *Service {
	if plans == nil {
		panic("billing: Plans is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}
	if store == nil {
		panic("billing: Store is required")
	}

	s := &Service{
		plans:      plans,
		provider:   provider,
		store:      store,
		log:        slog.Default(),
		casRetries: defaultCASRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a user's subscription.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.store.Get(ctx, userID)
}

// Create starts a subscription for a user on the given plan.
// For paid plans the provider is called first, without holding any local
// lock; the local record is written only after the provider returns. The new
// record starts in StatusIncomplete and is activated by the first
// payment-succeeded webhook, never by this command.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, planID, paymentMethodRef string) (*Subscription, error) {
	p, err := s.plans.Get(planID)
	if err != nil {
		return nil, errors.Join(ErrPlanNotFound, err)
	}

	if existing, err := s.store.Get(ctx, userID); err == nil {
		if !existing.Status.Terminal() {
			return nil, ErrSubscriptionExists
		}
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	now := s.now()

	// Free plans bypass the payment provider entirely for instant activation.
	if p.IsFree() {
		sub := &Subscription{
			UserID:    userID,
			PlanID:    planID,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.persistNew(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	providerSub, err := s.provider.CreateSubscription(ctx, CreateSubscriptionRequest{
		UserID:           userID.String(),
		PriceID:          p.ID,
		PaymentMethodRef: paymentMethodRef,
	})
	if err != nil {
		// Provider failure leaves local state unchanged.
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	sub := &Subscription{
		UserID:             userID,
		PlanID:             planID,
		Status:             StatusIncomplete,
		ProviderCustomerID: providerSub.CustomerID,
		ProviderSubID:      providerSub.ID,
		PeriodStart:        providerSub.PeriodStart,
		PeriodEnd:          providerSub.PeriodEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.persistNew(ctx, sub); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription created",
		slog.String("user_id", userID.String()),
		slog.String("plan_id", planID),
		slog.String("provider_sub_id", sub.ProviderSubID))
	return sub, nil
}

// persistNew inserts a fresh record, or replaces a terminal one via the CAS
// path so a user can re-subscribe after cancellation without losing audit
// history (the version counter keeps increasing).
func (s *Service) persistNew(ctx context.Context, sub *Subscription) error {
	err := s.store.Create(ctx, sub)
	if !errors.Is(err, ErrSubscriptionExists) {
		return err
	}

	_, err = UpdateWithRetry(ctx, s.store, sub.UserID, s.casRetries, func(stored *Subscription) (bool, error) {
		if !stored.Status.Terminal() {
			return false, ErrSubscriptionExists
		}
		stored.PlanID = sub.PlanID
		stored.Status = sub.Status
		stored.ProviderCustomerID = sub.ProviderCustomerID
		stored.ProviderSubID = sub.ProviderSubID
		stored.PeriodStart = sub.PeriodStart
		stored.PeriodEnd = sub.PeriodEnd
		stored.CancelAtPeriodEnd = false
		return true, nil
	})
	return err
}

// ChangePlan moves an active subscription to a different plan. The provider
// performs the proration; the local record adopts the provider's returned
// plan and period.
func (s *Service) ChangePlan(ctx context.Context, userID uuid.UUID, newPlanID string) (*Subscription, error) {
	p, err := s.plans.Get(newPlanID)
	if err != nil {
		return nil, errors.Join(ErrPlanNotFound, err)
	}

	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusActive {
		return nil, ErrInvalidTransition
	}

	providerSub, err := s.provider.UpdateSubscription(ctx, sub.ProviderSubID, UpdateSubscriptionRequest{
		PriceID: p.ID,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	updated, err := UpdateWithRetry(ctx, s.store, userID, s.casRetries, func(stored *Subscription) (bool, error) {
		// A webhook carrying a newer billing period has already advanced the
		// record past this command's provider response; the command loses.
		// A response without a billing period cannot be ordered and never
		// abandons the local write.
		if !providerSub.PeriodStart.IsZero() && stored.PeriodStart.After(providerSub.PeriodStart) {
			return false, nil
		}
		if stored.Status != StatusActive {
			return false, ErrInvalidTransition
		}
		stored.PlanID = newPlanID
		if !providerSub.PeriodStart.IsZero() {
			stored.PeriodStart = providerSub.PeriodStart
			stored.PeriodEnd = providerSub.PeriodEnd
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription plan changed",
		slog.String("user_id", userID.String()),
		slog.String("plan_id", newPlanID))
	return updated, nil
}

// Cancel cancels a subscription. With immediate=false the cancellation is
// scheduled for period end and the record keeps its entitlements until then;
// with immediate=true the record transitions to canceled now.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, immediate bool) (*Subscription, error) {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	target := StatusCanceledPending
	if immediate {
		target = StatusCanceled
	}
	if !CanTransition(sub.Status, target) {
		return nil, ErrInvalidTransition
	}

	providerSub, err := s.provider.CancelSubscription(ctx, sub.ProviderSubID, immediate)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	updated, err := UpdateWithRetry(ctx, s.store, userID, s.casRetries, func(stored *Subscription) (bool, error) {
		if stored.Status.Terminal() {
			return false, nil
		}
		if !CanTransition(stored.Status, target) {
			return false, ErrInvalidTransition
		}
		stored.Status = target
		stored.CancelAtPeriodEnd = !immediate
		if providerSub != nil && !providerSub.PeriodStart.IsZero() {
			stored.PeriodStart = providerSub.PeriodStart
			stored.PeriodEnd = providerSub.PeriodEnd
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription cancelled",
		slog.String("user_id", userID.String()),
		slog.Bool("immediate", immediate))
	return updated, nil
}

// AttachPaymentMethod forwards a payment method reference to the provider
// for the user's billing customer.
func (s *Service) AttachPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodRef string) error {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.provider.AttachPaymentMethod(ctx, sub.ProviderCustomerID, paymentMethodRef); err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	return nil
}

// UpdateWithRetry runs a bounded read-modify-write loop against the store's
// compare-and-swap Update. The mutate callback returns false to abandon the
// write without error when the stored state has already moved past the
// caller's intent. Both direct commands and webhook reconciliation use this
// path, so a version conflict always means the other writer won a race.
func UpdateWithRetry(ctx context.Context, store Store, userID uuid.UUID, retries int, mutate func(*Subscription) (bool, error)) (*Subscription, error) {
	for attempt := 0; attempt < retries; attempt++ {
		sub, err := store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		apply, err := mutate(sub)
		if err != nil {
			return nil, err
		}
		if !apply {
			return sub, nil
		}

		if err := store.Update(ctx, sub, sub.Version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		return sub, nil
	}
	return nil, ErrConcurrentModification
}
