package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renkioo/renkioo/internal/quota"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateTier(ctx context.Context, id uuid.UUID, tier quota.Tier) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// Create inserts the user together with its default quota row, in one
// transaction. Every account has a quota record from the moment it exists.
func (r *postgresRepository) Create(ctx context.Context, user *User) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, subscription_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, string(user.SubscriptionTier), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_quotas (user_id, subscription_tier, tokens_used, quota_reset_at)
		VALUES ($1, $2, 0, NOW() + INTERVAL '1 month')`,
		user.ID, string(user.SubscriptionTier))
	if err != nil {
		return fmt.Errorf("inserting user quota: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanOne(ctx,
		`SELECT id, email, password_hash, subscription_tier, created_at, updated_at
		 FROM users WHERE id = $1`, id)
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(ctx,
		`SELECT id, email, password_hash, subscription_tier, created_at, updated_at
		 FROM users WHERE email = $1`, email)
}

func (r *postgresRepository) scanOne(ctx context.Context, query string, arg any) (*User, error) {
	user := &User{}
	var tier string
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &tier, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	user.SubscriptionTier = quota.ParseTier(tier)
	return user, nil
}

func (r *postgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// UpdateTier changes the subscription level on both the user row and its
// quota record; the quota guard reads the latter on every admission check.
func (r *postgresRepository) UpdateTier(ctx context.Context, id uuid.UUID, tier quota.Tier) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE users SET subscription_tier = $2, updated_at = NOW() WHERE id = $1`,
		id, string(tier))
	if err != nil {
		return fmt.Errorf("updating user tier: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_quotas SET subscription_tier = $2, updated_at = NOW() WHERE user_id = $1`,
		id, string(tier))
	if err != nil {
		return fmt.Errorf("updating quota tier: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}
