package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthfolio/entitlements/pkg/plan"
)

// PGStore implements Store on PostgreSQL. The conditional increment is a
// single INSERT ... ON CONFLICT DO UPDATE with a WHERE clause, so the limit
// check and the write happen in one database-level atomic statement.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a usage store backed by a pgx connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("usage: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

func (ps *PGStore) IncrementIfBelow(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time, amount, limit int64) (int64, bool, error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}

	// The upsert applies only when the resulting count would stay within the
	// limit (or the limit is unlimited); an out-of-limit attempt matches no
	// row and RETURNING yields nothing.
	const query = `
		INSERT INTO usage_records (user_id, quota, period_start, count, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, quota, period_start) DO UPDATE
		SET count = usage_records.count + $4, updated_at = now()
		WHERE $5 = -1 OR usage_records.count + $4 <= $5
		RETURNING count`

	if limit != plan.Unlimited && amount > limit {
		// A fresh insert would already exceed the limit; read the current
		// count for the denial result without writing anything.
		count, err := ps.currentCount(ctx, userID, q, periodStart)
		if err != nil {
			return 0, false, err
		}
		return count, false, nil
	}

	var count int64
	err := ps.pool.QueryRow(ctx, query, userID, q, periodStart.UTC(), amount, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		count, err := ps.currentCount(ctx, userID, q, periodStart)
		if err != nil {
			return 0, false, err
		}
		return count, false, nil
	}
	if err != nil {
		return 0, false, errors.Join(ErrStoreFailure, err)
	}
	return count, true, nil
}

func (ps *PGStore) currentCount(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time) (int64, error) {
	const query = `
		SELECT count FROM usage_records
		WHERE user_id = $1 AND quota = $2 AND period_start = $3`

	var count int64
	err := ps.pool.QueryRow(ctx, query, userID, q, periodStart.UTC()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrStoreFailure, err)
	}
	return count, nil
}

func (ps *PGStore) Get(ctx context.Context, userID uuid.UUID, q plan.Quota, periodStart time.Time) (*Record, error) {
	const query = `
		SELECT count, updated_at FROM usage_records
		WHERE user_id = $1 AND quota = $2 AND period_start = $3`

	rec := &Record{UserID: userID, Quota: q, PeriodStart: periodStart.UTC()}
	err := ps.pool.QueryRow(ctx, query, userID, q, periodStart.UTC()).Scan(&rec.Count, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return rec, nil
}

func (ps *PGStore) ResetPeriod(ctx context.Context, userID uuid.UUID, newPeriodStart time.Time) error {
	const query = `
		DELETE FROM usage_records
		WHERE user_id = $1 AND period_start < $2`

	if _, err := ps.pool.Exec(ctx, query, userID, newPeriodStart.UTC()); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

var _ Store = (*PGStore)(nil)
