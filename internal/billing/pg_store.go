package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartlink/billing/pkg/pg"
)

// PgStore is the production SubscriptionStore backed by PostgreSQL.
// The pending -> active transition is a conditional UPDATE guarded by the
// current status, executed in the same transaction as the entitlement
// write on users; two concurrent reconciles for one reference cannot both
// activate.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_id, amount, currency, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.UserID, sub.PlanID, sub.Amount, sub.Currency, sub.Reference, sub.Status, sub.CreatedAt,
	)
	if pg.IsDuplicateKey(err) {
		return ErrReferenceTaken
	}
	if pg.IsForeignKeyViolation(err) {
		// Authenticated caller with no users row, e.g. deleted account
		// with a still-valid token.
		return ErrUnknownUser
	}
	return err
}

func (s *PgStore) GetByReference(ctx context.Context, reference string) (*Subscription, error) {
	var sub Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, plan_id, amount, currency, reference, status,
		       COALESCE(failure_reason, ''), created_at, activated_at, expires_at
		FROM subscriptions
		WHERE reference = $1`, reference,
	).Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Amount, &sub.Currency, &sub.Reference,
		&sub.Status, &sub.FailureReason, &sub.CreatedAt, &sub.ActivatedAt, &sub.ExpiresAt,
	)
	if pg.IsNotFound(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PgStore) MarkFailed(ctx context.Context, reference, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $3, failure_reason = $2
		WHERE reference = $1 AND status = $4`,
		reference, reason, StatusFailed, StatusPending,
	)
	return err
}

func (s *PgStore) Activate(ctx context.Context, reference string, act Activation) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = $2, activated_at = $3, expires_at = $4
		WHERE reference = $1 AND status = $5
		RETURNING user_id`,
		reference, StatusActive, act.ActivatedAt, act.ExpiresAt, StatusPending,
	).Scan(&userID)
	if pg.IsNotFound(err) {
		// Either the reference is unknown or another reconcile got here
		// first; the caller re-reads to find out which.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET is_subscribed = TRUE, subscription_tier = $2, subscription_expires_at = $3
		WHERE id = $1`,
		userID, act.Tier, act.ExpiresAt,
	); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PgStore) GetEntitlement(ctx context.Context, userID uuid.UUID) (*Entitlement, error) {
	ent := Entitlement{UserID: userID}
	var tier *string
	err := s.pool.QueryRow(ctx, `
		SELECT is_subscribed, subscription_tier, subscription_expires_at
		FROM users WHERE id = $1`, userID,
	).Scan(&ent.Subscribed, &tier, &ent.ExpiresAt)
	if pg.IsNotFound(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if tier != nil {
		ent.Tier = *tier
	}
	return &ent, nil
}

func (s *PgStore) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE subscriptions
		SET status = $2
		WHERE status = $3 AND expires_at <= $1
		RETURNING user_id`,
		now, StatusExpired, StatusActive,
	)
	if err != nil {
		return 0, err
	}
	userIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, tx.Commit(ctx)
	}

	// Only clear entitlement for users who have no other active window,
	// e.g. after buying a new plan before the old one lapsed.
	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET is_subscribed = FALSE, subscription_tier = NULL, subscription_expires_at = NULL
		WHERE id = ANY($1)
		  AND NOT EXISTS (
			SELECT 1 FROM subscriptions s
			WHERE s.user_id = users.id AND s.status = $2
		  )`,
		userIDs, StatusActive,
	); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int64(len(userIDs)), nil
}

func (s *PgStore) FailStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, failure_reason = $3
		WHERE status = $4 AND created_at < $1`,
		cutoff, StatusFailed, FailureCheckoutExpired, StatusPending,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var (
	_ SubscriptionStore = (*PgStore)(nil)
	_ SubscriptionStore = (*MemoryStore)(nil)
)
