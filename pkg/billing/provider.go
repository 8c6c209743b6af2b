package billing

import (
	"context"
	"encoding/json"
	"time"
)

// Provider defines the minimal interface for payment provider integrations.
// This abstraction allows support for different providers (Paddle, Stripe,
// Lemonsqueezy) while avoiding vendor lock-in. The provider owns payment
// instruments and invoices; this core only issues commands and reacts to
// the provider's events. Provider responses are authoritative for the fields
// they return (period start/end, status).
type Provider interface {
	// CreateSubscription creates a customer and subscription on the provider
	// side, charging the referenced payment method for the first period.
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*ProviderSubscription, error)

	// UpdateSubscription changes the plan or cancel-at-period-end flag of an
	// existing provider subscription. Proration is delegated to the provider.
	UpdateSubscription(ctx context.Context, providerSubID string, req UpdateSubscriptionRequest) (*ProviderSubscription, error)

	// CancelSubscription cancels either immediately or at period end.
	CancelSubscription(ctx context.Context, providerSubID string, immediate bool) (*ProviderSubscription, error)

	// AttachPaymentMethod associates a payment method with a provider customer.
	AttachPaymentMethod(ctx context.Context, providerCustomerID, paymentMethodRef string) error

	// ParseWebhook validates and parses incoming webhook data.
	// Must validate the signature to prevent webhook spoofing; returns
	// ErrInvalidSignature on verification failure and ErrMalformedEvent when
	// the payload cannot be decoded.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// CreateSubscriptionRequest contains data needed to start a paid subscription.
type CreateSubscriptionRequest struct {
	UserID           string // internal user ID, carried as provider custom data
	PriceID          string // provider's price/plan identifier
	Email            string // optional billing email
	PaymentMethodRef string // provider token for the payment instrument
}

// UpdateSubscriptionRequest describes a change to an existing subscription.
// Zero-value fields are left untouched on the provider side.
type UpdateSubscriptionRequest struct {
	PriceID           string
	CancelAtPeriodEnd *bool
}

// ProviderSubscription is the provider's authoritative view of a
// subscription, returned by every command.
type ProviderSubscription struct {
	ID          string // provider's subscription ID
	CustomerID  string // provider's customer ID
	Status      string // provider-side status string
	PriceID     string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// EventType represents the normalized billing event type.
// Each provider implementation maps their specific events to these types.
type EventType string

const (
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventPaymentFailed       EventType = "payment_failed"
)

// WebhookEvent represents a normalized webhook event from the billing
// provider. Subscriptions are always located via ProviderSubID, never via a
// user ID carried in the payload.
type WebhookEvent struct {
	ID                 string    // provider's event ID, idempotency key
	Type               EventType // normalized event type
	ProviderEvent      string    // original provider event name
	ProviderSubID      string    // provider's subscription ID
	ProviderCustomerID string    // provider's customer ID
	PriceID            string    // plan/price the event refers to
	Status             string    // provider-side subscription status
	PeriodStart        time.Time // billing period the event belongs to
	PeriodEnd          time.Time
	OccurredAt         time.Time // provider-side event timestamp
	FinalAttempt       bool      // payment failures: no further retry scheduled
	CancelAtPeriodEnd  bool      // subscription updates: cancellation scheduled
	Raw                json.RawMessage
}
