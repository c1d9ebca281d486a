//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/renkioo/renkioo/internal/api"
	"github.com/renkioo/renkioo/internal/audit"
	"github.com/renkioo/renkioo/internal/auth"
	"github.com/renkioo/renkioo/internal/config"
	"github.com/renkioo/renkioo/internal/creations"
	rnats "github.com/renkioo/renkioo/internal/nats"
	"github.com/renkioo/renkioo/internal/quota"
	"github.com/renkioo/renkioo/internal/ratelimit"
	"github.com/renkioo/renkioo/internal/users"
)

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	NATSClient  *rnats.Client
	Server      *httptest.Server
	AuthSvc     *auth.Service
	UserSvc     *users.Service
	QuotaGuard  *quota.Guard
}

var testEnv *TestEnv

// Rate-limit policies tuned for the quota flow: the free tier admits five
// 10-token analyses, the sixth is quota-rejected, and the AI bucket's
// per-user ceiling of six makes the seventh a 429. See quota_flow_test.go.
var testRateLimits = config.RateLimitConfig{
	LockWait:      100 * time.Millisecond,
	SweepInterval: 5 * time.Minute,
	Auth:          config.RateLimitPolicy{Limit: 100, Window: 15 * time.Minute},
	AIAnonymous:   config.RateLimitPolicy{Limit: 10, Window: time.Hour},
	AIUser:        config.RateLimitPolicy{Limit: 6, Window: time.Hour},
	General:       config.RateLimitPolicy{Limit: 1000, Window: time.Minute},
}

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "renkioo_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Start NATS container with JetStream
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"-js"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting nats container: %v", err)
	}
	t.Cleanup(func() { natsContainer.Terminate(ctx) })

	natsHost, _ := natsContainer.Host(ctx)
	natsPort, _ := natsContainer.MappedPort(ctx, "4222")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/renkioo_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Connect to NATS
	natsClient, err := rnats.NewClient(ctx, config.NATSConfig{
		URL: fmt.Sprintf("nats://%s:%s", natsHost, natsPort.Port()),
	})
	if err != nil {
		t.Fatalf("connecting to nats: %v", err)
	}
	t.Cleanup(func() { natsClient.Close() })

	publisher := rnats.NewPublisher(natsClient.JetStream())
	consumerMgr := rnats.NewConsumerManager(natsClient.JetStream())

	// Services
	jwtManager := auth.NewJWTManager("test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-long!!", 15*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc)
	userHandler := users.NewHandler(userSvc)

	quotaRepo := quota.NewRepository(pool)
	quotaGuard := quota.NewGuard(quotaRepo)
	quotaHandler := quota.NewHandler(quotaGuard)

	limiter := ratelimit.NewLimiter(testRateLimits.LockWait, testRateLimits.SweepInterval)
	limiter.Start()
	t.Cleanup(limiter.Stop)

	creationRepo := creations.NewRepository(pool)
	creationSvc := creations.NewService(creationRepo, publisher)
	creationHandler := creations.NewHandler(creationSvc)

	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)
	auditConsumer := audit.NewConsumer(auditRepo, consumerMgr)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	t.Cleanup(stopConsumer)
	go auditConsumer.Start(consumerCtx)

	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		GeneralRateLimiter: ratelimit.Middleware(limiter, publisher, ratelimit.BucketGeneral, testRateLimits.General),
		AuthRateLimiter:    ratelimit.Middleware(limiter, publisher, ratelimit.BucketAuth, testRateLimits.Auth),
		AIRateLimiter:      ratelimit.UserAware(limiter, publisher, ratelimit.BucketAI, testRateLimits.AIAnonymous, testRateLimits.AIUser),
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

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		NATSClient:  natsClient,
		Server:      server,
		AuthSvc:     authSvc,
		UserSvc:     userSvc,
		QuotaGuard:  quotaGuard,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
