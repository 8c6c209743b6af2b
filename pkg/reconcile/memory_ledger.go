package reconcile

import (
	"context"
	"sync"
	"time"
)

// defaultRetention comfortably exceeds the redelivery window of the major
// billing providers (Paddle and Stripe both retry for up to three days).
const defaultRetention = 72 * time.Hour

// MemoryLedger implements Ledger with an in-process map and a background
// cleanup loop. Intended for tests and single-node deployments.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]time.Time // event ID -> recorded at

	retention       time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// MemoryLedgerOption configures a MemoryLedger.
type MemoryLedgerOption func(*MemoryLedger)

// WithRetention sets how long processed event IDs are remembered. Must
// exceed the provider's redelivery window.
func WithRetention(retention time.Duration) MemoryLedgerOption {
	return func(ml *MemoryLedger) {
		if retention > 0 {
			ml.retention = retention
		}
	}
}

// WithCleanupInterval sets how often expired entries are purged.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryLedgerOption {
	return func(ml *MemoryLedger) {
		ml.cleanupInterval = interval
	}
}

// NewMemoryLedger creates an in-memory idempotency ledger.
func NewMemoryLedger(opts ...MemoryLedgerOption) *MemoryLedger {
	ml := &MemoryLedger{
		entries:         make(map[string]time.Time),
		retention:       defaultRetention,
		cleanupInterval: 15 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ml)
	}

	if ml.cleanupInterval > 0 {
		go ml.cleanup()
	}
	return ml
}

func (ml *MemoryLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	recordedAt, ok := ml.entries[eventID]
	if !ok {
		return false, nil
	}
	// Expired entries count as unseen; redelivery that late is outside the
	// provider's window anyway.
	return time.Since(recordedAt) < ml.retention, nil
}

func (ml *MemoryLedger) Record(ctx context.Context, eventID string) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.entries[eventID] = time.Now().UTC()
	return nil
}

// Close stops the background cleanup goroutine.
func (ml *MemoryLedger) Close() error {
	ml.stopOnce.Do(func() { close(ml.stopCleanup) })
	return nil
}

func (ml *MemoryLedger) cleanup() {
	ticker := time.NewTicker(ml.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ml.removeExpired()
		case <-ml.stopCleanup:
			return
		}
	}
}

func (ml *MemoryLedger) removeExpired() {
	cutoff := time.Now().UTC().Add(-ml.retention)

	ml.mu.Lock()
	defer ml.mu.Unlock()

	for id, recordedAt := range ml.entries {
		if recordedAt.Before(cutoff) {
			delete(ml.entries, id)
		}
	}
}

var _ Ledger = (*MemoryLedger)(nil)
