package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-process maps. Intended for tests and
// single-node deployments; production setups should use the Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	byUser   map[uuid.UUID]*Subscription
	bySubRef map[string]uuid.UUID // provider subscription ID -> user ID
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser:   make(map[uuid.UUID]*Subscription),
		bySubRef: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byUser[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.clone(), nil
}

func (s *MemoryStore) GetByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.bySubRef[providerSubID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.byUser[userID].clone(), nil
}

func (s *MemoryStore) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.byUser {
		if sub.ProviderCustomerID == providerCustomerID {
			return sub.clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUser[sub.UserID]; exists {
		return ErrSubscriptionExists
	}
	if sub.ProviderSubID != "" {
		if _, taken := s.bySubRef[sub.ProviderSubID]; taken {
			return ErrSubscriptionExists
		}
	}

	cp := sub.clone()
	cp.Version = 1
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt

	s.byUser[cp.UserID] = cp
	if cp.ProviderSubID != "" {
		s.bySubRef[cp.ProviderSubID] = cp.UserID
	}

	sub.Version = cp.Version
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, sub *Subscription, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byUser[sub.UserID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	if sub.ProviderSubID != "" {
		if owner, taken := s.bySubRef[sub.ProviderSubID]; taken && owner != sub.UserID {
			return ErrSubscriptionExists
		}
	}

	cp := sub.clone()
	cp.Version = expectedVersion + 1
	cp.UpdatedAt = time.Now().UTC()

	// Keep the secondary index consistent when the provider reference changes.
	if stored.ProviderSubID != "" && stored.ProviderSubID != cp.ProviderSubID {
		delete(s.bySubRef, stored.ProviderSubID)
	}
	if cp.ProviderSubID != "" {
		s.bySubRef[cp.ProviderSubID] = cp.UserID
	}

	s.byUser[cp.UserID] = cp

	sub.Version = cp.Version
	sub.UpdatedAt = cp.UpdatedAt
	return nil
}
