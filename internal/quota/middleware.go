package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/api"
	authclaims "github.com/renkioo/renkioo/internal/auth/claims"
	"github.com/renkioo/renkioo/internal/metrics"
	rnats "github.com/renkioo/renkioo/internal/nats"
)

// AuditPublisher is the subset of the NATS publisher the middleware needs.
// A nil publisher disables audit events without disabling admission.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event rnats.AuditEvent) error
}

// Require returns middleware that admits the request only if the user's
// monthly token budget covers the action. It runs after the auth middleware;
// an unauthenticated request is rejected before any storage access.
func Require(guard *Guard, audit AuditPublisher, action ActionKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := authclaims.GetUserClaims(r.Context())
			if claims == nil {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}
			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			err = guard.Authorize(r.Context(), userID, action)
			if err == nil {
				metrics.QuotaChecksTotal.WithLabelValues(string(action), "admit").Inc()
				next.ServeHTTP(w, r)
				return
			}

			var exceeded *ExceededError
			if errors.As(err, &exceeded) {
				metrics.QuotaChecksTotal.WithLabelValues(string(action), "reject").Inc()
				recordViolation(r.Context(), audit, userID, exceeded)
				api.HandleError(w, api.NewQuotaExceededError(
					fmt.Sprintf("Monthly token quota exceeded. This action costs %d tokens but only %d remain on the %s plan. Upgrade to continue creating.",
						exceeded.Cost, exceeded.Remaining, exceeded.Tier),
					exceeded,
				))
				return
			}

			// Storage failure: surfaced as internal error, never silently
			// admitted nor disguised as a quota rejection.
			metrics.QuotaChecksTotal.WithLabelValues(string(action), "error").Inc()
			slog.Error("quota: admission check failed", "user_id", userID, "action", action, "error", err)
			api.HandleError(w, api.ErrInternalServer)
		})
	}
}

func recordViolation(ctx context.Context, audit AuditPublisher, userID uuid.UUID, e *ExceededError) {
	if audit == nil {
		return
	}
	event := rnats.AuditEvent{
		UserID:    userID,
		EventType: "quota.exceeded",
		Severity:  "warn",
		Details:   e.Error(),
		Timestamp: time.Now().UTC(),
	}
	if err := audit.PublishAuditEvent(ctx, event); err != nil {
		slog.Debug("quota: publishing audit event", "error", err)
	}
}
