package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Rate-limit policies: a zero or negative limit would reject everything.
	for name, p := range map[string]RateLimitPolicy{
		"RATELIMIT_AUTH":    c.RateLimit.Auth,
		"RATELIMIT_AI_ANON": c.RateLimit.AIAnonymous,
		"RATELIMIT_AI_USER": c.RateLimit.AIUser,
		"RATELIMIT_GENERAL": c.RateLimit.General,
	} {
		if p.Limit < 1 {
			errs = append(errs, fmt.Sprintf("%s_LIMIT must be positive, got %d", name, p.Limit))
		}
		if p.Window <= 0 {
			errs = append(errs, fmt.Sprintf("%s_WINDOW must be positive, got %s", name, p.Window))
		}
	}
	if c.RateLimit.LockWait <= 0 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_LOCK_WAIT must be positive, got %s", c.RateLimit.LockWait))
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_SWEEP_INTERVAL must be positive, got %s", c.RateLimit.SweepInterval))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
