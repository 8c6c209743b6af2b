package billing

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for subscription persistence.
// Each user has exactly one subscription, so UserID serves as the primary
// key; the provider subscription ID is a secondary unique index used by
// webhook reconciliation.
type Store interface {
	// Get retrieves a subscription by user ID.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetByProviderSubID retrieves a subscription by the provider's
	// subscription reference. Returns ErrSubscriptionNotFound if unknown.
	GetByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error)

	// GetByProviderCustomerID retrieves a subscription by the provider's
	// customer reference. Used by reconciliation when an event arrives before
	// the final subscription reference is known locally.
	GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error)

	// Create inserts a new subscription with Version 1.
	// Returns ErrSubscriptionExists if the user already has a record or the
	// provider subscription ID is already taken by another record.
	Create(ctx context.Context, sub *Subscription) error

	// Update persists sub only if the stored record still carries
	// expectedVersion (compare-and-swap). On success the stored and in-memory
	// Version become expectedVersion+1. Returns ErrVersionConflict when the
	// record changed underneath the caller.
	Update(ctx context.Context, sub *Subscription, expectedVersion int64) error
}
