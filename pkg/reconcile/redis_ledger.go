package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger implements Ledger on a shared Redis instance so idempotency
// holds across application replicas. Entries expire via key TTL, which
// doubles as the retention garbage collection.
type RedisLedger struct {
	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
}

// RedisLedgerOption configures a RedisLedger.
type RedisLedgerOption func(*RedisLedger)

// WithRedisRetention sets the key TTL. Must exceed the provider's
// redelivery window.
func WithRedisRetention(retention time.Duration) RedisLedgerOption {
	return func(rl *RedisLedger) {
		if retention > 0 {
			rl.retention = retention
		}
	}
}

// WithRedisKeyPrefix overrides the default "webhook_ledger" key prefix.
func WithRedisKeyPrefix(prefix string) RedisLedgerOption {
	return func(rl *RedisLedger) {
		if prefix != "" {
			rl.keyPrefix = prefix
		}
	}
}

// NewRedisLedger creates a Redis-backed idempotency ledger.
func NewRedisLedger(client redis.UniversalClient, opts ...RedisLedgerOption) *RedisLedger {
	if client == nil {
		panic("reconcile: redis client is required")
	}
	rl := &RedisLedger{
		client:    client,
		keyPrefix: "webhook_ledger",
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

func (rl *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := rl.client.Exists(ctx, rl.key(eventID)).Result()
	if err != nil {
		return false, errors.Join(ErrLedgerFailure, err)
	}
	return n > 0, nil
}

func (rl *RedisLedger) Record(ctx context.Context, eventID string) error {
	if err := rl.client.Set(ctx, rl.key(eventID), 1, rl.retention).Err(); err != nil {
		return errors.Join(ErrLedgerFailure, err)
	}
	return nil
}

func (rl *RedisLedger) key(eventID string) string {
	return rl.keyPrefix + ":" + eventID
}

var _ Ledger = (*RedisLedger)(nil)
