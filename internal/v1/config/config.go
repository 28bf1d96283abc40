// Package config validates and exposes process configuration for the relay.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for the relay process.
type Config struct {
	// Required
	Port string

	// Optional with defaults
	GoEnv    string
	LogLevel string

	// CORS / websocket origin policy
	AllowedOrigins string

	// Redis-backed cross-process event bus (optional; single-process mode when disabled)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Persistence
	FirebaseServiceAccount string // path or inline JSON; presence selects the cloud adapter
	FirebaseProjectID      string
	SnapshotPath           string // local adapter fallback path
	CoalesceWindow         time.Duration
	RecentMessageLimit     int // N in "ship the most recent N messages on room-joined", N >= 100

	// Keep-alive prober
	PublicURL     string // RENDER_EXTERNAL_URL
	PingInterval  time.Duration
	UploadDir     string
	UploadMaxSize int64  // bytes
	StaticDir     string // landing + chat shell HTML

	// Optional bearer-auth gate in front of the HTTP REST surface
	JWTSecret     string
	Auth0Domain   string
	Auth0Audience string
	SkipAuth      bool

	// Rate limits (ulule/limiter formatted rates, e.g. "100-M")
	RateLimitAPIRooms  string
	RateLimitAPIUpload string
}

// Load validates all required environment variables and returns a Config.
// Every problem is collected before returning, rather than stopping at the
// first one, so a misconfigured deploy surfaces all its mistakes at once.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = getEnvOrDefault("PORT", "3000")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.FirebaseServiceAccount = os.Getenv("FIREBASE_SERVICE_ACCOUNT")
	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	cfg.SnapshotPath = getEnvOrDefault("SNAPSHOT_PATH", "./data/rooms.snapshot.json")

	coalesceMS := getEnvOrDefault("COALESCE_WINDOW_MS", "2000")
	if ms, err := strconv.Atoi(coalesceMS); err != nil || ms < 0 {
		errs = append(errs, fmt.Sprintf("COALESCE_WINDOW_MS must be a non-negative integer (got '%s')", coalesceMS))
	} else {
		cfg.CoalesceWindow = time.Duration(ms) * time.Millisecond
	}

	recentLimit := getEnvOrDefault("RECENT_MESSAGE_LIMIT", "200")
	if n, err := strconv.Atoi(recentLimit); err != nil || n < 100 {
		errs = append(errs, fmt.Sprintf("RECENT_MESSAGE_LIMIT must be an integer >= 100 (got '%s')", recentLimit))
	} else {
		cfg.RecentMessageLimit = n
	}

	cfg.PublicURL = os.Getenv("RENDER_EXTERNAL_URL")
	pingMinutes := getEnvOrDefault("PING_INTERVAL_MINUTES", "5")
	if m, err := strconv.Atoi(pingMinutes); err != nil || m < 1 {
		errs = append(errs, fmt.Sprintf("PING_INTERVAL_MINUTES must be a positive integer (got '%s')", pingMinutes))
	} else {
		cfg.PingInterval = time.Duration(m) * time.Minute
	}

	cfg.UploadDir = getEnvOrDefault("UPLOAD_DIR", "./uploads")
	cfg.UploadMaxSize = 50 * 1024 * 1024
	cfg.StaticDir = getEnvOrDefault("STATIC_DIR", "./web")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	cfg.SkipAuth = os.Getenv("SKIP_AUTH") != "false" // REST auth is opt-in: off unless SKIP_AUTH=false or a JWT secret / Auth0 domain is configured
	if cfg.JWTSecret != "" {
		cfg.SkipAuth = false
		if len(cfg.JWTSecret) < 32 {
			errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters when set (got %d)", len(cfg.JWTSecret)))
		}
	}
	if cfg.Auth0Domain != "" {
		cfg.SkipAuth = false
		if cfg.Auth0Audience == "" {
			errs = append(errs, "AUTH0_AUDIENCE must be set when AUTH0_DOMAIN is configured")
		}
	}

	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPIUpload = getEnvOrDefault("RATE_LIMIT_API_UPLOAD", "30-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port >= 1 && port <= 65535
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"redis_enabled", cfg.RedisEnabled,
		"persistence", persistenceKind(cfg),
		"recent_message_limit", cfg.RecentMessageLimit,
		"coalesce_window", cfg.CoalesceWindow,
		"jwt_secret", redactSecret(cfg.JWTSecret),
	)
}

func persistenceKind(cfg *Config) string {
	if cfg.FirebaseServiceAccount != "" {
		return "firestore"
	}
	return "local-snapshot"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		if secret == "" {
			return ""
		}
		return "***"
	}
	return secret[:8] + "***"
}
