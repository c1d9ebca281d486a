//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The free tier holds 50 tokens and an analysis costs 10: five analyses fill
// the budget, the sixth is quota-rejected with 403, and the seventh trips the
// AI bucket (limit 6 per user in testRateLimits) with 429.
func TestQuotaFlow_FreeTierExhaustion(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterUser(t, env, "free-flow@example.com", "password123")

	// Fresh account starts at zero usage
	resp := DoRequest(t, env, "GET", "/api/v1/quota", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "free", data["tier"])
	assert.Equal(t, float64(0), data["tokens_used"])
	assert.Equal(t, float64(50), data["token_limit"])
	assert.Equal(t, float64(50), data["remaining"])

	body := map[string]string{"title": "my drawing", "image_ref": "uploads/drawing.png"}

	for i := 1; i <= 5; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/analyses", body, token)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode, "analysis %d", i)
		resp.Body.Close()
	}

	// Budget is spent: 5 * 10 tokens
	resp = DoRequest(t, env, "GET", "/api/v1/quota", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(50), data["tokens_used"])
	assert.Equal(t, float64(0), data["remaining"])

	// Sixth analysis rejected by the quota guard
	resp = DoRequest(t, env, "POST", "/api/v1/analyses", body, token)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	result := ParseResponse(t, resp)
	details := result["details"].(map[string]any)
	assert.Equal(t, "analysis", details["action"])
	assert.Equal(t, float64(10), details["cost"])
	assert.Equal(t, float64(0), details["remaining"])
	assert.Equal(t, "free", details["tier"])

	// Seventh request trips the AI rate limit before the quota guard runs
	resp = DoRequest(t, env, "POST", "/api/v1/analyses", body, token)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	resp.Body.Close()

	// Exactly the five admitted analyses were recorded
	resp = DoRequest(t, env, "GET", "/api/v1/creations", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := ParseResponse(t, resp)
	assert.Equal(t, float64(5), list["total_count"])
}

func TestQuotaFlow_PremiumUnlimited(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterUser(t, env, "premium-flow@example.com", "password123")

	resp := DoRequest(t, env, "PUT", "/api/v1/users/me/subscription", map[string]string{"tier": "premium"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/quota", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "premium", data["tier"])
	assert.Equal(t, true, data["unlimited"])

	// Storybooks cost 15 each: four of them would bust the free budget, but
	// premium admits all of them.
	body := map[string]string{"title": "bedtime story", "image_ref": "uploads/hero.png"}
	for i := 1; i <= 4; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/storybooks", body, token)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode, "storybook %d", i)
		resp.Body.Close()
	}
}

func TestQuotaFlow_ChatMessages(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterUser(t, env, "chat-flow@example.com", "password123")

	// Chat needs a prompt, not an image
	resp := DoRequest(t, env, "POST", "/api/v1/chat/messages", map[string]string{"prompt": "tell me about my drawing"}, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "POST", "/api/v1/chat/messages", map[string]string{}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// One message consumed 2 tokens
	resp = DoRequest(t, env, "GET", "/api/v1/quota", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["tokens_used"])
}

func TestQuotaViolationsReachAuditTrail(t *testing.T) {
	env := SetupTestEnv(t)
	token := RegisterUser(t, env, "audit-flow@example.com", "password123")

	// Exhaust the free budget with coloring pages (8 tokens each): six admit
	// (48 used), and the AI bucket is also at its per-user ceiling of six, so
	// the seventh is a 429 rather than a quota rejection.
	body := map[string]string{"image_ref": "uploads/sketch.png"}
	for i := 1; i <= 6; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/coloring-pages", body, token)
		require.Equal(t, http.StatusAccepted, resp.StatusCode, "coloring page %d", i)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "POST", "/api/v1/coloring-pages", body, token)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// The rejection is published to NATS and persisted asynchronously
	req, err := http.NewRequest("GET", env.Server.URL+"/api/v1/audit?event_type=ratelimit.exceeded", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	require.Eventually(t, func() bool {
		resp, err := http.DefaultClient.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		defer resp.Body.Close()
		var result struct {
			TotalCount int `json:"total_count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return false
		}
		return result.TotalCount >= 1
	}, 10*time.Second, 250*time.Millisecond, "rate-limit violation should land in the audit trail")
}
