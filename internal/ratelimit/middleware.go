package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/api"
	"github.com/renkioo/renkioo/internal/auth"
	"github.com/renkioo/renkioo/internal/config"
	"github.com/renkioo/renkioo/internal/metrics"
	rnats "github.com/renkioo/renkioo/internal/nats"
)

// AuditPublisher is the subset of the NATS publisher the middleware needs.
// A nil publisher disables audit events without disabling throttling.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event rnats.AuditEvent) error
}

// Middleware throttles by anonymous client identity under the given bucket.
func Middleware(l *Limiter, audit AuditPublisher, bucket Bucket, p config.RateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			res := l.CheckAndIncrement(bucket, key, p)
			if !res.Allowed {
				reject(w, r, audit, bucket, key, uuid.Nil, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserAware throttles by user ID with the authenticated policy when claims
// are present, falling back to the anonymous client identity and policy
// otherwise. Runs before the auth middleware on mixed routes, so it inspects
// claims without requiring them.
func UserAware(l *Limiter, audit AuditPublisher, bucket Bucket, anon, authed config.RateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			policy := anon
			userID := uuid.Nil

			if claims := auth.GetUserClaims(r.Context()); claims != nil {
				if id, err := uuid.Parse(claims.UserID); err == nil {
					key = "user:" + claims.UserID
					policy = authed
					userID = id
				}
			}

			res := l.CheckAndIncrement(bucket, key, policy)
			if !res.Allowed {
				reject(w, r, audit, bucket, key, userID, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, audit AuditPublisher, bucket Bucket, key string, userID uuid.UUID, res Result) {
	secs := res.RetryAfterSeconds()
	metrics.RateLimitRejectionsTotal.WithLabelValues(string(bucket)).Inc()

	if audit != nil {
		event := rnats.AuditEvent{
			UserID:    userID,
			ClientKey: key,
			EventType: "ratelimit.exceeded",
			Severity:  "warn",
			Details:   fmt.Sprintf("bucket %s exhausted, retry after %ds", bucket, secs),
			Timestamp: time.Now().UTC(),
		}
		if err := audit.PublishAuditEvent(r.Context(), event); err != nil {
			slog.Debug("ratelimit: publishing audit event", "error", err)
		}
	}

	w.Header().Set("Retry-After", strconv.Itoa(secs))
	api.HandleError(w, api.NewRateLimitedError(
		fmt.Sprintf("Too many requests. Try again in %d seconds.", secs),
		map[string]int{"retry_after_seconds": secs},
	))
}
