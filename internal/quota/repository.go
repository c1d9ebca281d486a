package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists per-user quota records.
type Repository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Record, error)
	Reset(ctx context.Context, userID uuid.UUID, resetAt time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx-backed quota Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// GetOrCreate returns the user's quota row, creating the free-tier default
// (zero usage, reset one month out) if it doesn't exist yet.
func (r *postgresRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Record, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id, subscription_tier, tokens_used, quota_reset_at)
		 VALUES ($1, 'free', 0, NOW() + INTERVAL '1 month')
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("ensuring user quota: %w", err)
	}

	var rec Record
	var tier string
	err = r.pool.QueryRow(ctx,
		`SELECT user_id, subscription_tier, tokens_used, quota_reset_at, updated_at
		 FROM user_quotas WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &tier, &rec.TokensUsed, &rec.QuotaResetAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching user quota: %w", err)
	}
	rec.Tier = ParseTier(tier)
	return &rec, nil
}

// Reset zeroes the counter and advances the reset timestamp. The WHERE guard
// makes concurrent resets across the same boundary idempotent: the second
// writer finds the row already advanced and updates nothing.
func (r *postgresRepository) Reset(ctx context.Context, userID uuid.UUID, resetAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_quotas
		 SET tokens_used = 0,
		     quota_reset_at = $2,
		     updated_at = NOW()
		 WHERE user_id = $1 AND quota_reset_at <= NOW()`, userID, resetAt)
	if err != nil {
		return fmt.Errorf("resetting quota: %w", err)
	}
	return nil
}
