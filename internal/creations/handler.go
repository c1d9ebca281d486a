package creations

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/renkioo/renkioo/internal/api"
	"github.com/renkioo/renkioo/internal/auth"
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

// CreateRequest is the shared payload for all creation endpoints. Drawings
// arrive as storage references uploaded ahead of time, never inline.
type CreateRequest struct {
	Title    string `json:"title" validate:"max=200"`
	Prompt   string `json:"prompt" validate:"max=4000"`
	ImageRef string `json:"image_ref" validate:"max=500"`
}

// CreateAnalysis requests a drawing analysis.
func (h *Handler) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, quota.ActionAnalysis, true)
}

// CreateStorybook requests a generated storybook.
func (h *Handler) CreateStorybook(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, quota.ActionStorybook, true)
}

// CreateInteractiveStory requests an interactive story.
func (h *Handler) CreateInteractiveStory(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, quota.ActionInteractiveStory, true)
}

// CreateColoringPage requests a coloring page.
func (h *Handler) CreateColoringPage(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, quota.ActionColoring, true)
}

// CreateChatMessage records a chatbot message.
func (h *Handler) CreateChatMessage(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, quota.ActionChatMessage, false)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, kind quota.ActionKind, needsImage bool) {
	userID, ok := callerID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if needsImage && req.ImageRef == "" {
		api.HandleError(w, api.NewValidationError("image_ref is required"))
		return
	}
	if kind == quota.ActionChatMessage && req.Prompt == "" {
		api.HandleError(w, api.NewValidationError("prompt is required"))
		return
	}

	c, err := h.svc.Record(r.Context(), userID, kind, NewRequest{
		Title:    req.Title,
		Prompt:   req.Prompt,
		ImageRef: req.ImageRef,
	})
	if err != nil {
		slog.Error("recording creation", "user_id", userID, "kind", kind, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusAccepted, c)
}

// List returns the caller's creations, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := DefaultListParams()
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := quota.ParseActionKind(k)
		if err != nil {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
		params.Kind = string(kind)
	}
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}

	items, total, err := h.svc.List(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing creations", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, items, total, params.Page, params.PageSize)
}

// Get returns one creation owned by the caller.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "creationID"))
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	c, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		slog.Error("getting creation", "user_id", userID, "creation_id", id, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if c == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, c)
}

func callerID(r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
