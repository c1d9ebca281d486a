package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Guard decides whether a user's remaining monthly token budget admits an
// action. It is a pure admission check: it never deducts tokens. Deduction is
// the side effect of recording the action itself (one transaction in the
// creations repository), so an admitted request whose downstream work fails
// consumes nothing.
type Guard struct {
	repo Repository
}

// NewGuard creates a quota Guard on the given repository.
func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// Authorize admits or rejects the action against the user's monthly budget.
// A storage failure is fatal for the request and returned as a plain error;
// an exhausted budget is returned as *ExceededError so callers can tell the
// two apart.
func (g *Guard) Authorize(ctx context.Context, userID uuid.UUID, action ActionKind) error {
	rec, err := g.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading quota for %s: %w", userID, err)
	}

	now := time.Now()
	if !now.Before(rec.QuotaResetAt) {
		rec = g.lazyReset(ctx, rec, now)
	}

	// Unlimited tiers admit before any cost arithmetic.
	limit, unlimited := rec.Tier.TokenLimit()
	if unlimited {
		return nil
	}

	cost := action.Cost()
	remaining := limit - rec.TokensUsed
	if remaining < cost {
		return &ExceededError{
			Action:     action,
			Cost:       cost,
			TokensUsed: rec.TokensUsed,
			TokenLimit: limit,
			Remaining:  remaining,
			Tier:       rec.Tier,
		}
	}
	return nil
}

// Status returns the user's current usage for API display, applying the lazy
// reset first so clients never see a stale, pre-boundary counter.
func (g *Guard) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	rec, err := g.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading quota for %s: %w", userID, err)
	}

	now := time.Now()
	if !now.Before(rec.QuotaResetAt) {
		rec = g.lazyReset(ctx, rec, now)
	}

	limit, unlimited := rec.Tier.TokenLimit()
	remaining := limit - rec.TokensUsed
	if unlimited || remaining < 0 {
		remaining = 0
	}
	return &Status{
		Tier:       rec.Tier,
		TokensUsed: rec.TokensUsed,
		TokenLimit: limit,
		Remaining:  remaining,
		Unlimited:  unlimited,
		ResetsAt:   rec.QuotaResetAt,
	}, nil
}

// lazyReset zeroes the counter and advances the reset time by one calendar
// month from now. The persist is best-effort: if it fails, the current
// decision still uses the reset values and the next request retries the
// write. Concurrent resets are idempotent at the repository level, so two
// requests crossing the boundary together are both fine.
func (g *Guard) lazyReset(ctx context.Context, rec *Record, now time.Time) *Record {
	resetAt := now.AddDate(0, 1, 0)
	if err := g.repo.Reset(ctx, rec.UserID, resetAt); err != nil {
		slog.Warn("quota: persisting lazy reset failed, continuing with reset values",
			"user_id", rec.UserID, "error", err)
	}
	reset := *rec
	reset.TokensUsed = 0
	reset.QuotaResetAt = resetAt
	return &reset
}
