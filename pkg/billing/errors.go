package billing

import "errors"

var (
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrSubscriptionExists     = errors.New("subscription already exists")
	ErrInvalidTransition      = errors.New("invalid subscription state transition")
	ErrVersionConflict        = errors.New("subscription version conflict")
	ErrConcurrentModification = errors.New("subscription modified concurrently")
	ErrProviderUnavailable    = errors.New("billing provider request failed")
	ErrPlanNotFound           = errors.New("subscription plan not found")

	// Provider-specific errors
	ErrMissingAPIKey        = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnv   = errors.New("invalid billing provider environment")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")
	ErrMalformedEvent       = errors.New("malformed webhook event")
	ErrMissingProviderSubID = errors.New("provider subscription ID not available")
	ErrMissingPaymentMethod = errors.New("payment method reference is required")
)
