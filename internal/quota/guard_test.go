package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	records  map[uuid.UUID]*Record
	getErr   error
	resetErr error
	resets   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]*Record)}
}

func (f *fakeRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if rec, ok := f.records[userID]; ok {
		cp := *rec
		return &cp, nil
	}
	rec := &Record{
		UserID:       userID,
		Tier:         TierFree,
		TokensUsed:   0,
		QuotaResetAt: time.Now().AddDate(0, 1, 0),
		UpdatedAt:    time.Now(),
	}
	f.records[userID] = rec
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) Reset(_ context.Context, userID uuid.UUID, resetAt time.Time) error {
	f.resets++
	if f.resetErr != nil {
		return f.resetErr
	}
	if rec, ok := f.records[userID]; ok && !rec.QuotaResetAt.After(time.Now()) {
		rec.TokensUsed = 0
		rec.QuotaResetAt = resetAt
	}
	return nil
}

func (f *fakeRepo) seed(rec *Record) {
	f.records[rec.UserID] = rec
}

func TestGuardAuthorize_AdmitsWithinBudget(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierPro,
		TokensUsed:   10,
		QuotaResetAt: time.Now().AddDate(0, 1, 0),
	})

	// pro has 490 remaining, chat costs 2
	err := guard.Authorize(context.Background(), userID, ActionChatMessage)
	assert.NoError(t, err)
}

func TestGuardAuthorize_RejectsWhenCostExceedsRemaining(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	// free tier at 45/50: analysis costs 10 but only 5 remain
	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierFree,
		TokensUsed:   45,
		QuotaResetAt: time.Now().AddDate(0, 1, 0),
	})

	err := guard.Authorize(context.Background(), userID, ActionAnalysis)
	require.Error(t, err)

	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, ActionAnalysis, exceeded.Action)
	assert.Equal(t, 10, exceeded.Cost)
	assert.Equal(t, 45, exceeded.TokensUsed)
	assert.Equal(t, 50, exceeded.TokenLimit)
	assert.Equal(t, 5, exceeded.Remaining)
	assert.Equal(t, TierFree, exceeded.Tier)
}

func TestGuardAuthorize_AdmitsExactRemaining(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	// exactly 10 remaining covers a cost-10 action
	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierFree,
		TokensUsed:   40,
		QuotaResetAt: time.Now().AddDate(0, 1, 0),
	})

	err := guard.Authorize(context.Background(), userID, ActionAnalysis)
	assert.NoError(t, err)
}

func TestGuardAuthorize_PremiumAlwaysAdmits(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierPremium,
		TokensUsed:   1_000_000,
		QuotaResetAt: time.Now().AddDate(0, 1, 0),
	})

	for _, action := range []ActionKind{ActionAnalysis, ActionStorybook, ActionInteractiveStory, ActionColoring, ActionChatMessage} {
		assert.NoError(t, guard.Authorize(context.Background(), userID, action))
	}
}

func TestGuardAuthorize_LazyResetAtBoundary(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	// reset time in the past: counter is stale and must be zeroed first
	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierFree,
		TokensUsed:   50,
		QuotaResetAt: time.Now().Add(-time.Hour),
	})

	err := guard.Authorize(context.Background(), userID, ActionAnalysis)
	assert.NoError(t, err)
	assert.Equal(t, 1, repo.resets)

	rec := repo.records[userID]
	assert.Equal(t, 0, rec.TokensUsed)
	assert.True(t, rec.QuotaResetAt.After(time.Now().AddDate(0, 0, 27)),
		"reset should advance roughly one month out")
}

func TestGuardAuthorize_ResetPersistFailureStillAdmits(t *testing.T) {
	repo := newFakeRepo()
	repo.resetErr = errors.New("connection lost")
	guard := NewGuard(repo)
	userID := uuid.New()

	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierFree,
		TokensUsed:   50,
		QuotaResetAt: time.Now().Add(-time.Hour),
	})

	// decision uses the in-memory reset values even when the write fails
	err := guard.Authorize(context.Background(), userID, ActionAnalysis)
	assert.NoError(t, err)
}

func TestGuardAuthorize_StorageFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.getErr = errors.New("connection refused")
	guard := NewGuard(repo)

	err := guard.Authorize(context.Background(), uuid.New(), ActionChatMessage)
	require.Error(t, err)

	var exceeded *ExceededError
	assert.False(t, errors.As(err, &exceeded), "infra failure must not look like a quota rejection")
}

func TestGuardStatus(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	resetAt := time.Now().AddDate(0, 1, 0)
	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierPro,
		TokensUsed:   120,
		QuotaResetAt: resetAt,
	})

	status, err := guard.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, TierPro, status.Tier)
	assert.Equal(t, 120, status.TokensUsed)
	assert.Equal(t, 500, status.TokenLimit)
	assert.Equal(t, 380, status.Remaining)
	assert.False(t, status.Unlimited)
	assert.WithinDuration(t, resetAt, status.ResetsAt, time.Second)
}

func TestGuardStatus_Unlimited(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierPremium,
		TokensUsed:   9999,
		QuotaResetAt: time.Now().AddDate(0, 1, 0),
	})

	status, err := guard.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, status.Unlimited)
	assert.Equal(t, 0, status.Remaining)
}

func TestGuardStatus_NewUserDefaults(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)

	status, err := guard.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, TierFree, status.Tier)
	assert.Equal(t, 0, status.TokensUsed)
	assert.Equal(t, 50, status.Remaining)
}
