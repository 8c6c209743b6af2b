package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string        `env:"PADDLE_API_KEY,required"`
	WebhookSecret string        `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string        `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	Timeout       time.Duration `env:"PADDLE_TIMEOUT" envDefault:"10s"`
}

// PaddleProvider implements Provider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnv, config.Environment)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

// CreateSubscription creates a Paddle customer and bills the first period
// through a catalog transaction. Paddle assigns the subscription ID once the
// first transaction completes, so the returned reference may initially be
// the transaction ID; the payment-succeeded webhook carries the final one.
func (p *PaddleProvider) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*ProviderSubscription, error) {
	if req.PriceID == "" {
		return nil, errors.New("price ID is required")
	}
	if req.UserID == "" {
		return nil, errors.New("user ID is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	customer, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email: req.Email,
		CustomData: paddle.CustomData{
			"user_id": req.UserID,
		},
	})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(customer.ID),
		CustomData: paddle.CustomData{
			"user_id":            req.UserID,
			"payment_method_ref": req.PaymentMethodRef,
		},
	})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	sub := &ProviderSubscription{
		ID:         transaction.ID,
		CustomerID: customer.ID,
		Status:     string(transaction.Status),
		PriceID:    req.PriceID,
	}
	if transaction.SubscriptionID != nil && *transaction.SubscriptionID != "" {
		sub.ID = *transaction.SubscriptionID
	}
	if transaction.BillingPeriod != nil {
		sub.PeriodStart = parsePaddleTime(transaction.BillingPeriod.StartsAt)
		sub.PeriodEnd = parsePaddleTime(transaction.BillingPeriod.EndsAt)
	}
	return sub, nil
}

// UpdateSubscription changes the plan and/or the scheduled cancellation of a
// Paddle subscription. Proration is delegated to Paddle.
func (p *PaddleProvider) UpdateSubscription(ctx context.Context, providerSubID string, req UpdateSubscriptionRequest) (*ProviderSubscription, error) {
	if providerSubID == "" {
		return nil, ErrMissingProviderSubID
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	updateReq := &paddle.UpdateSubscriptionRequest{
		SubscriptionID: providerSubID,
	}

	if req.PriceID != "" {
		item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
			PriceID:  req.PriceID,
			Quantity: 1,
		})
		updateReq.Items = paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item})
		updateReq.ProrationBillingMode = paddle.NewPatchField(paddle.ProrationBillingModeProratedImmediately)
	}

	if req.CancelAtPeriodEnd != nil && *req.CancelAtPeriodEnd {
		updateReq.ScheduledChange = paddle.NewPatchField(&paddle.SubscriptionScheduledChange{
			Action: paddle.ScheduledChangeActionCancel,
		})
	}

	subscription, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, updateReq)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return fromPaddleSubscription(subscription), nil
}

// CancelSubscription cancels a Paddle subscription either immediately or at
// the end of the current billing period.
func (p *PaddleProvider) CancelSubscription(ctx context.Context, providerSubID string, immediate bool) (*ProviderSubscription, error) {
	if providerSubID == "" {
		return nil, ErrMissingProviderSubID
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	effectiveFrom := paddle.EffectiveFromNextBillingPeriod
	if immediate {
		effectiveFrom = paddle.EffectiveFromImmediately
	}

	subscription, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: providerSubID,
		EffectiveFrom:  paddle.PtrTo(effectiveFrom),
	})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return fromPaddleSubscription(subscription), nil
}

// AttachPaymentMethod records a payment method reference on the Paddle
// customer. Paddle collects the actual instrument through hosted checkout;
// the reference is kept as custom data for support tooling.
func (p *PaddleProvider) AttachPaymentMethod(ctx context.Context, providerCustomerID, paymentMethodRef string) error {
	if providerCustomerID == "" {
		return errors.New("provider customer ID is required")
	}
	if paymentMethodRef == "" {
		return ErrMissingPaymentMethod
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	_, err := p.client.CustomersClient.UpdateCustomer(ctx, &paddle.UpdateCustomerRequest{
		CustomerID: providerCustomerID,
		CustomData: paddle.NewPatchField(paddle.CustomData{
			"payment_method_ref": paymentMethodRef,
		}),
	})
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	return nil
}

// ParseWebhook validates and parses incoming webhook data from Paddle.
// The signature is verified before anything else; an invalid signature is
// never applied.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var paddleEvent struct {
		EventID    string         `json:"event_id"`
		EventType  string         `json:"event_type"`
		OccurredAt string         `json:"occurred_at"`
		Data       map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if paddleEvent.EventID == "" || paddleEvent.EventType == "" {
		return nil, fmt.Errorf("%w: missing event ID or type", ErrMalformedEvent)
	}

	eventType, ok := mapPaddleEventType(paddleEvent.EventType)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported event type %s", ErrMalformedEvent, paddleEvent.EventType)
	}

	event := &WebhookEvent{
		ID:            paddleEvent.EventID,
		Type:          eventType,
		ProviderEvent: paddleEvent.EventType,
		OccurredAt:    parsePaddleTime(paddleEvent.OccurredAt),
		Raw:           payload,
	}

	data := paddleEvent.Data

	if strings.HasPrefix(paddleEvent.EventType, "subscription.") {
		if subID, ok := data["id"].(string); ok {
			event.ProviderSubID = subID
		}
	} else if subID, ok := data["subscription_id"].(string); ok {
		event.ProviderSubID = subID
	}

	if customerID, ok := data["customer_id"].(string); ok {
		event.ProviderCustomerID = customerID
	}
	if status, ok := data["status"].(string); ok {
		event.Status = status
	}

	if period, ok := data["current_billing_period"].(map[string]any); ok {
		if startsAt, ok := period["starts_at"].(string); ok {
			event.PeriodStart = parsePaddleTime(startsAt)
		}
		if endsAt, ok := period["ends_at"].(string); ok {
			event.PeriodEnd = parsePaddleTime(endsAt)
		}
	} else if period, ok := data["billing_period"].(map[string]any); ok {
		if startsAt, ok := period["starts_at"].(string); ok {
			event.PeriodStart = parsePaddleTime(startsAt)
		}
		if endsAt, ok := period["ends_at"].(string); ok {
			event.PeriodEnd = parsePaddleTime(endsAt)
		}
	}

	// Price ID lives in the items list for both subscription and
	// transaction shaped payloads.
	if items, ok := data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if price, ok := item["price"].(map[string]any); ok {
				if priceID, ok := price["id"].(string); ok {
					event.PriceID = priceID
				}
			} else if priceID, ok := item["price_id"].(string); ok {
				event.PriceID = priceID
			}
		}
	}

	if change, ok := data["scheduled_change"].(map[string]any); ok {
		if action, ok := change["action"].(string); ok && action == "cancel" {
			event.CancelAtPeriodEnd = true
		}
	}

	// Paddle schedules no further retry once the payment is marked failed
	// with no next_retry_at.
	if paddleEvent.EventType == "transaction.payment_failed" {
		_, retryScheduled := data["next_retry_at"].(string)
		event.FinalAttempt = !retryScheduled
	}

	return event, nil
}

// mapPaddleEventType maps Paddle event types to normalized EventType values.
func mapPaddleEventType(paddleEvent string) (EventType, bool) {
	switch paddleEvent {
	case "subscription.created", "subscription.updated", "subscription.resumed":
		return EventSubscriptionUpdated, true
	case "subscription.canceled":
		return EventSubscriptionDeleted, true
	case "transaction.completed", "transaction.paid":
		return EventPaymentSucceeded, true
	case "transaction.payment_failed":
		return EventPaymentFailed, true
	default:
		return "", false
	}
}

func fromPaddleSubscription(sub *paddle.Subscription) *ProviderSubscription {
	out := &ProviderSubscription{
		ID:         sub.ID,
		CustomerID: sub.CustomerID,
		Status:     string(sub.Status),
	}
	if len(sub.Items) > 0 {
		out.PriceID = sub.Items[0].Price.ID
	}
	if sub.CurrentBillingPeriod != nil {
		out.PeriodStart = parsePaddleTime(sub.CurrentBillingPeriod.StartsAt)
		out.PeriodEnd = parsePaddleTime(sub.CurrentBillingPeriod.EndsAt)
	}
	return out
}

func parsePaddleTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
