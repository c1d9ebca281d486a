package users

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/api"
	authclaims "github.com/renkioo/renkioo/internal/auth/claims"
	"github.com/renkioo/renkioo/internal/quota"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type ChangeTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free pro premium"`
}

// GetMe returns the authenticated user's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	user, err := h.svc.GetByID(r.Context(), userID)
	if err != nil {
		slog.Error("getting user", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, user)
}

// ChangeSubscription updates the caller's tier. The payment flow itself lives
// in the app stores; this endpoint records the resulting entitlement.
func (h *Handler) ChangeSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ChangeTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tier := quota.ParseTier(req.Tier)
	if err := h.svc.ChangeTier(r.Context(), userID, tier); err != nil {
		slog.Error("changing tier", "user_id", userID, "tier", tier, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "subscription updated")
}

func callerID(r *http.Request) (uuid.UUID, bool) {
	claims := authclaims.GetUserClaims(r.Context())
	if claims == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
