package creations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/renkioo/renkioo/internal/quota"
)

// Repository persists creations and, as part of the same write, debits the
// owner's token budget.
type Repository interface {
	Create(ctx context.Context, c *Creation) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Creation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]Creation, int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// Create inserts the creation row and increments the owner's tokens_used by
// the action cost in one transaction. Quota consumption is tied to this
// insert succeeding: the guard admitted the request earlier without debiting,
// and a request whose recording fails here consumes nothing.
func (r *postgresRepository) Create(ctx context.Context, c *Creation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO creations (id, user_id, kind, status, title, prompt, image_ref, cost_paid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.UserID, string(c.Kind), string(c.Status), c.Title, c.Prompt, c.ImageRef, c.CostPaid, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting creation: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_quotas
		SET tokens_used = tokens_used + $2, updated_at = NOW()
		WHERE user_id = $1`,
		c.UserID, c.CostPaid)
	if err != nil {
		return fmt.Errorf("debiting tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*Creation, error) {
	c := &Creation{}
	var kind, status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, status, title, prompt, image_ref, COALESCE(output_ref, ''), cost_paid, created_at, updated_at
		FROM creations WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&c.ID, &c.UserID, &kind, &status, &c.Title, &c.Prompt, &c.ImageRef, &c.OutputRef, &c.CostPaid, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying creation: %w", err)
	}
	c.Kind = quota.ActionKind(kind)
	c.Status = CreationStatus(status)
	return c, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]Creation, int64, error) {
	where := `WHERE user_id = $1`
	args := []any{userID}
	if params.Kind != "" {
		where += ` AND kind = $2`
		args = append(args, params.Kind)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM creations `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting creations: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	query := fmt.Sprintf(`
		SELECT id, user_id, kind, status, title, prompt, image_ref, COALESCE(output_ref, ''), cost_paid, created_at, updated_at
		FROM creations %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, where, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing creations: %w", err)
	}
	defer rows.Close()

	var out []Creation
	for rows.Next() {
		var c Creation
		var kind, status string
		if err := rows.Scan(&c.ID, &c.UserID, &kind, &status, &c.Title, &c.Prompt, &c.ImageRef, &c.OutputRef, &c.CostPaid, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning creation: %w", err)
		}
		c.Kind = quota.ActionKind(kind)
		c.Status = CreationStatus(status)
		out = append(out, c)
	}
	return out, total, rows.Err()
}
