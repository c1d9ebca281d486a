package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/renkioo/renkioo/internal/database"
	mw "github.com/renkioo/renkioo/internal/middleware"
	rnats "github.com/renkioo/renkioo/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// User handlers
	GetMe              http.HandlerFunc
	ChangeSubscription http.HandlerFunc

	// Quota status
	GetQuota http.HandlerFunc

	// Audit trail
	ListAuditLogs http.HandlerFunc

	// Creation handlers
	CreateAnalysis         http.HandlerFunc
	CreateStorybook        http.HandlerFunc
	CreateInteractiveStory http.HandlerFunc
	CreateColoringPage     http.HandlerFunc
	CreateChatMessage      http.HandlerFunc
	ListCreations          http.HandlerFunc
	GetCreation            http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler

	// Per-action quota admission, composed after auth on creation routes
	QuotaAnalysis  func(http.Handler) http.Handler
	QuotaStorybook func(http.Handler) http.Handler
	QuotaStory     func(http.Handler) http.Handler
	QuotaColoring  func(http.Handler) http.Handler
	QuotaChat      func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string

	// Rate limiters run before auth and quota: cheap, in-memory, fail fast.
	GeneralRateLimiter func(http.Handler) http.Handler
	AuthRateLimiter    func(http.Handler) http.Handler
	AIRateLimiter      func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, redisClient *redis.Client, natsClient *rnats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, always 200 with no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe checks DB, Redis, and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		} else {
			health["redis"] = "not configured"
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.GeneralRateLimiter != nil {
			r.Use(cfg.GeneralRateLimiter)
		}

		// Auth routes (public), tightly rate-limited by anonymous identity
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", h.GetMe)
				r.Put("/subscription", h.ChangeSubscription)
			})

			r.Get("/quota", h.GetQuota)
			r.Get("/audit", h.ListAuditLogs)

			r.Route("/creations", func(r chi.Router) {
				r.Get("/", h.ListCreations)
				r.Get("/{creationID}", h.GetCreation)
			})

			// AI-backed creation endpoints: rate limiter first (cheap,
			// in-memory), then the quota guard (persistent state), then
			// the handler.
			r.Group(func(r chi.Router) {
				if cfg.AIRateLimiter != nil {
					r.Use(cfg.AIRateLimiter)
				}
				r.With(h.QuotaAnalysis).Post("/analyses", h.CreateAnalysis)
				r.With(h.QuotaStorybook).Post("/storybooks", h.CreateStorybook)
				r.With(h.QuotaStory).Post("/stories", h.CreateInteractiveStory)
				r.With(h.QuotaColoring).Post("/coloring-pages", h.CreateColoringPage)
				r.With(h.QuotaChat).Post("/chat/messages", h.CreateChatMessage)
			})
		})
	})

	return r
}
