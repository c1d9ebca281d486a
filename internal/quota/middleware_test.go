package quota

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclaims "github.com/renkioo/renkioo/internal/auth/claims"
)

func authenticatedRequest(t *testing.T, userID uuid.UUID) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", nil)
	claims := &authclaims.AccessClaims{UserID: userID.String()}
	return r.WithContext(context.WithValue(r.Context(), authclaims.UserClaimsKey, claims))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusAccepted)
	})
}

func TestRequire_AdmitsAndCallsNext(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	var called bool
	handler := Require(guard, nil, ActionChatMessage)(okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authenticatedRequest(t, userID))

	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRequire_UnauthenticatedNeverTouchesStorage(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)

	var called bool
	handler := Require(guard, nil, ActionAnalysis)(okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyses", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, repo.records, "no quota row should be touched without claims")
}

func TestRequire_RejectsWithStructuredPayload(t *testing.T) {
	repo := newFakeRepo()
	guard := NewGuard(repo)
	userID := uuid.New()

	repo.seed(&Record{
		UserID:       userID,
		Tier:         TierFree,
		TokensUsed:   45,
		QuotaResetAt: time.Now().AddDate(0, 1, 0),
	})

	var called bool
	handler := Require(guard, nil, ActionAnalysis)(okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authenticatedRequest(t, userID))

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Error   string `json:"error"`
		Details struct {
			Action     string `json:"action"`
			Cost       int    `json:"cost"`
			TokensUsed int    `json:"tokens_used"`
			TokenLimit int    `json:"token_limit"`
			Remaining  int    `json:"remaining"`
			Tier       string `json:"tier"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Contains(t, body.Error, "Upgrade")
	assert.Equal(t, "analysis", body.Details.Action)
	assert.Equal(t, 10, body.Details.Cost)
	assert.Equal(t, 45, body.Details.TokensUsed)
	assert.Equal(t, 50, body.Details.TokenLimit)
	assert.Equal(t, 5, body.Details.Remaining)
	assert.Equal(t, "free", body.Details.Tier)
}

func TestRequire_StorageFailureIs500(t *testing.T) {
	repo := newFakeRepo()
	repo.getErr = assert.AnError
	guard := NewGuard(repo)

	var called bool
	handler := Require(guard, nil, ActionAnalysis)(okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authenticatedRequest(t, uuid.New()))

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
