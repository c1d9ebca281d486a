package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// RateLimitPolicy is one bucket's request ceiling over a fixed window.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig carries the per-bucket policies plus the limiter's
// lock-wait bound and sweep cadence. Token costs and tier ceilings are
// compile-time tables in the quota package, not configuration.
type RateLimitConfig struct {
	LockWait      time.Duration
	SweepInterval time.Duration
	Auth          RateLimitPolicy
	AIAnonymous   RateLimitPolicy
	AIUser        RateLimitPolicy
	General       RateLimitPolicy
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        k.String("server.host"),
			Port:        k.Int("server.port"),
			CORSOrigins: splitList(k.String("server.cors.origins")),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		RateLimit: RateLimitConfig{
			Auth:        RateLimitPolicy{Limit: k.Int("ratelimit.auth.limit")},
			AIAnonymous: RateLimitPolicy{Limit: k.Int("ratelimit.ai.anon.limit")},
			AIUser:      RateLimitPolicy{Limit: k.Int("ratelimit.ai.user.limit")},
			General:     RateLimitPolicy{Limit: k.Int("ratelimit.general.limit")},
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "renkioo"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "renkioo"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	applyRateLimitDefaults(&cfg.RateLimit, k)

	// Parse durations
	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	return cfg, nil
}

func applyRateLimitDefaults(rl *RateLimitConfig, k *koanf.Koanf) {
	rl.LockWait = durationOr(k, "ratelimit.lock.wait", 100*time.Millisecond)
	rl.SweepInterval = durationOr(k, "ratelimit.sweep.interval", 5*time.Minute)

	if rl.Auth.Limit == 0 {
		rl.Auth.Limit = 5
	}
	rl.Auth.Window = durationOr(k, "ratelimit.auth.window", 15*time.Minute)

	if rl.AIAnonymous.Limit == 0 {
		rl.AIAnonymous.Limit = 10
	}
	rl.AIAnonymous.Window = durationOr(k, "ratelimit.ai.anon.window", time.Hour)

	if rl.AIUser.Limit == 0 {
		rl.AIUser.Limit = 20
	}
	rl.AIUser.Window = durationOr(k, "ratelimit.ai.user.window", time.Hour)

	if rl.General.Limit == 0 {
		rl.General.Limit = 100
	}
	rl.General.Window = durationOr(k, "ratelimit.general.window", time.Minute)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func durationOr(k *koanf.Koanf, key string, fallback time.Duration) time.Duration {
	s := k.String(key)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
