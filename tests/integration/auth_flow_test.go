//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow(t *testing.T) {
	env := SetupTestEnv(t)

	// Register
	body := map[string]string{"email": "auth-flow@example.com", "password": "password123"}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tokens := ParseResponse(t, resp)["data"].(map[string]any)
	accessToken := tokens["access_token"].(string)
	refreshToken := tokens["refresh_token"].(string)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)

	// Duplicate email rejected
	resp = DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Profile reflects the default tier
	resp = DoRequest(t, env, "GET", "/api/v1/users/me", nil, accessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "auth-flow@example.com", me["email"])
	assert.Equal(t, "free", me["subscription_tier"])

	// Wrong password
	resp = DoRequest(t, env, "POST", "/api/v1/auth/login",
		map[string]string{"email": "auth-flow@example.com", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Login
	resp = DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Refresh rotates the pair
	resp = DoRequest(t, env, "POST", "/api/v1/auth/refresh",
		map[string]string{"refresh_token": refreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := ParseResponse(t, resp)["data"].(map[string]any)
	newRefresh := rotated["refresh_token"].(string)
	assert.NotEqual(t, refreshToken, newRefresh)

	// The old refresh token is revoked after rotation
	resp = DoRequest(t, env, "POST", "/api/v1/auth/refresh",
		map[string]string{"refresh_token": refreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Logout revokes everything
	resp = DoRequest(t, env, "POST", "/api/v1/auth/logout", nil, accessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "POST", "/api/v1/auth/refresh",
		map[string]string{"refresh_token": newRefresh}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Protected routes reject missing tokens
	resp = DoRequest(t, env, "GET", "/api/v1/quota", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
