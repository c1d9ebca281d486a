package quota

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/api"
	authclaims "github.com/renkioo/renkioo/internal/auth/claims"
)

// Handler exposes the authenticated user's quota status.
type Handler struct {
	guard *Guard
}

// NewHandler creates a new quota Handler.
func NewHandler(guard *Guard) *Handler {
	return &Handler{guard: guard}
}

// GetStatus returns the caller's current usage, ceiling, and reset time.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
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

	status, err := h.guard.Status(r.Context(), userID)
	if err != nil {
		slog.Error("quota: fetching status", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}
