package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/renkioo/renkioo/internal/api"
	"github.com/renkioo/renkioo/internal/audit"
	"github.com/renkioo/renkioo/internal/auth"
	"github.com/renkioo/renkioo/internal/config"
	"github.com/renkioo/renkioo/internal/creations"
	"github.com/renkioo/renkioo/internal/database"
	rnats "github.com/renkioo/renkioo/internal/nats"
	"github.com/renkioo/renkioo/internal/quota"
	"github.com/renkioo/renkioo/internal/ratelimit"
	iredis "github.com/renkioo/renkioo/internal/redis"
	"github.com/renkioo/renkioo/internal/server"
	"github.com/renkioo/renkioo/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx := context.Background()

	// Migrations
	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS
	natsClient, err := rnats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	publisher := rnats.NewPublisher(natsClient.JetStream())
	consumerMgr := rnats.NewConsumerManager(natsClient.JetStream())

	// Auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)
	userHandler := users.NewHandler(userSvc)

	// Quota
	quotaRepo := quota.NewRepository(pool)
	quotaGuard := quota.NewGuard(quotaRepo)
	quotaHandler := quota.NewHandler(quotaGuard)

	// Rate limiting
	limiter := ratelimit.NewLimiter(cfg.RateLimit.LockWait, cfg.RateLimit.SweepInterval)
	limiter.Start()
	defer limiter.Stop()

	// Creations
	creationRepo := creations.NewRepository(pool)
	creationSvc := creations.NewService(creationRepo, publisher)
	creationHandler := creations.NewHandler(creationSvc)

	// Audit
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)
	auditConsumer := audit.NewConsumer(auditRepo, consumerMgr)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		if err := auditConsumer.Start(consumerCtx); err != nil {
			slog.Error("audit consumer stopped", "error", err)
		}
	}()

	// Router
	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		GeneralRateLimiter: ratelimit.Middleware(limiter, publisher, ratelimit.BucketGeneral, cfg.RateLimit.General),
		AuthRateLimiter:    ratelimit.Middleware(limiter, publisher, ratelimit.BucketAuth, cfg.RateLimit.Auth),
		AIRateLimiter:      ratelimit.UserAware(limiter, publisher, ratelimit.BucketAI, cfg.RateLimit.AIAnonymous, cfg.RateLimit.AIUser),
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		GetMe:              userHandler.GetMe,
		ChangeSubscription: userHandler.ChangeSubscription,

		GetQuota: quotaHandler.GetStatus,

		ListAuditLogs: auditHandler.List,

		CreateAnalysis:         creationHandler.CreateAnalysis,
		CreateStorybook:        creationHandler.CreateStorybook,
		CreateInteractiveStory: creationHandler.CreateInteractiveStory,
		CreateColoringPage:     creationHandler.CreateColoringPage,
		CreateChatMessage:      creationHandler.CreateChatMessage,
		ListCreations:          creationHandler.List,
		GetCreation:            creationHandler.Get,

		AuthMiddleware: auth.Middleware(authSvc),

		QuotaAnalysis:  quota.Require(quotaGuard, publisher, quota.ActionAnalysis),
		QuotaStorybook: quota.Require(quotaGuard, publisher, quota.ActionStorybook),
		QuotaStory:     quota.Require(quotaGuard, publisher, quota.ActionInteractiveStory),
		QuotaColoring:  quota.Require(quotaGuard, publisher, quota.ActionColoring),
		QuotaChat:      quota.Require(quotaGuard, publisher, quota.ActionChatMessage),
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
