package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on PostgreSQL. The compare-and-swap Update is a
// single UPDATE guarded by the version column; a unique index on
// provider_sub_id enforces the cross-record reference invariant.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a subscription store backed by a pgx connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("billing: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

const subscriptionColumns = `user_id, plan_id, status, provider_customer_id, provider_sub_id,
	period_start, period_end, cancel_at_period_end, last_event_at, created_at, updated_at, version`

func (ps *PGStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	const query = `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE user_id = $1`

	return ps.scanOne(ps.pool.QueryRow(ctx, query, userID))
}

func (ps *PGStore) GetByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error) {
	const query = `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE provider_sub_id = $1`

	return ps.scanOne(ps.pool.QueryRow(ctx, query, providerSubID))
}

func (ps *PGStore) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error) {
	const query = `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE provider_customer_id = $1`

	return ps.scanOne(ps.pool.QueryRow(ctx, query, providerCustomerID))
}

func (ps *PGStore) Create(ctx context.Context, sub *Subscription) error {
	const query = `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, now(), now(), 1)`

	_, err := ps.pool.Exec(ctx, query,
		sub.UserID, sub.PlanID, sub.Status, sub.ProviderCustomerID, sub.ProviderSubID,
		sub.PeriodStart, sub.PeriodEnd, sub.CancelAtPeriodEnd, nullableTime(sub.LastEventAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSubscriptionExists
		}
		return err
	}

	sub.Version = 1
	return nil
}

func (ps *PGStore) Update(ctx context.Context, sub *Subscription, expectedVersion int64) error {
	const query = `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, provider_customer_id = $4,
			provider_sub_id = NULLIF($5, ''), period_start = $6, period_end = $7,
			cancel_at_period_end = $8, last_event_at = $9, updated_at = now(),
			version = version + 1
		WHERE user_id = $1 AND version = $10
		RETURNING version, updated_at`

	err := ps.pool.QueryRow(ctx, query,
		sub.UserID, sub.PlanID, sub.Status, sub.ProviderCustomerID, sub.ProviderSubID,
		sub.PeriodStart, sub.PeriodEnd, sub.CancelAtPeriodEnd, nullableTime(sub.LastEventAt),
		expectedVersion,
	).Scan(&sub.Version, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the record is gone or the version moved; disambiguate so
		// callers can distinguish a CAS loss from a missing record.
		if _, getErr := ps.Get(ctx, sub.UserID); errors.Is(getErr, ErrSubscriptionNotFound) {
			return ErrSubscriptionNotFound
		}
		return ErrVersionConflict
	}
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSubscriptionExists
		}
		return err
	}
	return nil
}

func (ps *PGStore) scanOne(row pgx.Row) (*Subscription, error) {
	var (
		sub           Subscription
		providerSubID *string
		lastEventAt   *time.Time
	)
	err := row.Scan(
		&sub.UserID, &sub.PlanID, &sub.Status, &sub.ProviderCustomerID, &providerSubID,
		&sub.PeriodStart, &sub.PeriodEnd, &sub.CancelAtPeriodEnd, &lastEventAt,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if providerSubID != nil {
		sub.ProviderSubID = *providerSubID
	}
	if lastEventAt != nil {
		sub.LastEventAt = *lastEventAt
	}
	return &sub, nil
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isUniqueViolation reports a PostgreSQL unique constraint error (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PGStore)(nil)
