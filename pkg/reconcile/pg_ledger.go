package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger implements Ledger on PostgreSQL. Prune removes entries past the
// retention window and should run periodically (e.g. from a scheduler or
// cron).
type PGLedger struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewPGLedger creates a Postgres-backed idempotency ledger.
func NewPGLedger(pool *pgxpool.Pool, retention time.Duration) *PGLedger {
	if pool == nil {
		panic("reconcile: pgx pool is required")
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &PGLedger{pool: pool, retention: retention}
}

func (pl *PGLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	const query = `
		SELECT received_at FROM webhook_ledger
		WHERE event_id = $1`

	var receivedAt time.Time
	err := pl.pool.QueryRow(ctx, query, eventID).Scan(&receivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Join(ErrLedgerFailure, err)
	}
	return time.Since(receivedAt) < pl.retention, nil
}

func (pl *PGLedger) Record(ctx context.Context, eventID string) error {
	const query = `
		INSERT INTO webhook_ledger (event_id, received_at)
		VALUES ($1, now())
		ON CONFLICT (event_id) DO UPDATE SET received_at = webhook_ledger.received_at`

	if _, err := pl.pool.Exec(ctx, query, eventID); err != nil {
		return errors.Join(ErrLedgerFailure, err)
	}
	return nil
}

// Prune deletes ledger entries older than the retention window.
func (pl *PGLedger) Prune(ctx context.Context) error {
	const query = `
		DELETE FROM webhook_ledger
		WHERE received_at < now() - make_interval(secs => $1)`

	if _, err := pl.pool.Exec(ctx, query, pl.retention.Seconds()); err != nil {
		return errors.Join(ErrLedgerFailure, err)
	}
	return nil
}

var _ Ledger = (*PGLedger)(nil)
