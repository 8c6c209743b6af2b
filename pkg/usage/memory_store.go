package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthfolio/entitlements/pkg/plan"
)

type memoryKey struct {
	userID      uuid.UUID
	quota       plan.Quota
	periodStart int64 // unix seconds, UTC
}

// MemoryStore implements Store with in-process counters guarded by a mutex.
// A background cleanup loop drops counters from long-finished periods.
type MemoryStore struct {
	mu      sync.Mutex
	records map[memoryKey]*Record

	retention       time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often stale-period counters are purged.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// WithRetention sets how long counters outlive their period start before
// cleanup removes them.
func WithRetention(retention time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if retention > 0 {
			ms.retention = retention
		}
	}
}

// NewMemoryStore creates a new in-memory usage store with optional cleanup.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		records:         make(map[memoryKey]*Record),
		retention:       62 * 24 * time.Hour, // two monthly periods
		cleanupInterval: 10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}

	if ms.cleanupInterval > 0 {
		go ms.cleanup()
	}
	return ms
}

func (ms *MemoryStore) IncrementIfBelow(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time, amount, limit int64) (int64, bool, error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}

	key := memoryKey{userID: userID, quota: q, periodStart: periodStart.UTC().Unix()}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, ok := ms.records[key]
	if !ok {
		rec = &Record{UserID: userID, Quota: q, PeriodStart: periodStart.UTC()}
		ms.records[key] = rec
	}

	if limit != plan.Unlimited && rec.Count+amount > limit {
		return rec.Count, false, nil
	}

	rec.Count += amount
	rec.UpdatedAt = time.Now().UTC()
	return rec.Count, true, nil
}

func (ms *MemoryStore) Get(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time) (*Record, error) {
	key := memoryKey{userID: userID, quota: q, periodStart: periodStart.UTC().Unix()}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, ok := ms.records[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (ms *MemoryStore) ResetPeriod(ctx context.Context, userID uuid.UUID, newPeriodStart time.Time) error {
	cutoff := newPeriodStart.UTC().Unix()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for key := range ms.records {
		if key.userID == userID && key.periodStart < cutoff {
			delete(ms.records, key)
		}
	}
	return nil
}

// Close stops the background cleanup goroutine.
func (ms *MemoryStore) Close() error {
	ms.stopOnce.Do(func() { close(ms.stopCleanup) })
	return nil
}

func (ms *MemoryStore) cleanup() {
	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.removeStale()
		case <-ms.stopCleanup:
			return
		}
	}
}

func (ms *MemoryStore) removeStale() {
	cutoff := time.Now().UTC().Add(-ms.retention).Unix()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for key := range ms.records {
		if key.periodStart < cutoff {
			delete(ms.records, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
