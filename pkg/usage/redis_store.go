package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/healthfolio/entitlements/pkg/plan"
)

// incrementScript performs the conditional increment as a single atomic
// operation on the Redis server. KEYS[1] is the counter key; ARGV[1] the
// amount, ARGV[2] the limit (-1 for unlimited), ARGV[3] the key TTL in
// seconds. Returns {count, applied}.
var incrementScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if limit >= 0 and count + amount > limit then
	return {count, 0}
end
count = redis.call('INCRBY', KEYS[1], amount)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {count, 1}
`)

// RedisStore implements Store on a shared Redis instance, making the
// check-and-increment atomic across application replicas.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the default "usage" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(rs *RedisStore) {
		if prefix != "" {
			rs.keyPrefix = prefix
		}
	}
}

// WithTTL sets how long counter keys live. Must exceed one billing period so
// an in-progress period is never silently reset.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(rs *RedisStore) {
		if ttl > 0 {
			rs.ttl = ttl
		}
	}
}

// NewRedisStore creates a usage store backed by Redis.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("usage: redis client is required")
	}
	rs := &RedisStore{
		client:    client,
		keyPrefix: "usage",
		ttl:       62 * 24 * time.Hour, // two monthly periods
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

func (rs *RedisStore) IncrementIfBelow(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time, amount, limit int64) (int64, bool, error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}

	key := rs.key(userID, q, periodStart)
	res, err := incrementScript.Run(ctx, rs.client, []string{key},
		amount, limit, int64(rs.ttl.Seconds())).Int64Slice()
	if err != nil {
		return 0, false, errors.Join(ErrStoreFailure, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("%w: unexpected script reply length %d", ErrStoreFailure, len(res))
	}
	return res[0], res[1] == 1, nil
}

func (rs *RedisStore) Get(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time) (*Record, error) {
	val, err := rs.client.Get(ctx, rs.key(userID, q, periodStart)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	return &Record{
		UserID:      userID,
		Quota:       q,
		PeriodStart: periodStart.UTC(),
		Count:       count,
	}, nil
}

func (rs *RedisStore) ResetPeriod(ctx context.Context, userID uuid.UUID, newPeriodStart time.Time) error {
	// Counters are keyed by period start, so old-period keys simply stop
	// being read after a renewal and expire via TTL. SCAN-and-delete here
	// keeps the keyspace tidy without relying on expiry alone.
	pattern := fmt.Sprintf("%s:%s:*", rs.keyPrefix, userID)
	cutoff := newPeriodStart.UTC().Unix()

	iter := rs.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ps, err := strconv.ParseInt(key[strings.LastIndexByte(key, ':')+1:], 10, 64)
		if err != nil {
			continue
		}
		if ps < cutoff {
			if err := rs.client.Del(ctx, key).Err(); err != nil {
				return errors.Join(ErrStoreFailure, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (rs *RedisStore) key(userID uuid.UUID, q plan.Quota, periodStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", rs.keyPrefix, userID, q, periodStart.UTC().Unix())
}

var _ Store = (*RedisStore)(nil)
