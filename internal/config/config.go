package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the server and worker
type Config struct {
	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// HTTP Configuration
	HTTP HTTPConfig

	// Auth Configuration
	Auth AuthConfig

	// Worker Configuration
	Worker WorkerConfig

	// Logging Configuration
	Logging LoggingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port          string
	FrontendURL   string // allowed CORS origin, also used in verification links
	PublicBaseURL string // prefix of generated short links
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret string
	JWTTTL    time.Duration
	Issuer    string // TOTP issuer shown in authenticator apps
}

// WorkerConfig holds background job configuration
type WorkerConfig struct {
	TokenCleanupSchedule string // cron expression, e.g. "@every 1h"
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	return FromLookup(os.Getenv)
}

// FromLookup builds the configuration from an arbitrary variable source
func FromLookup(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	ttl, err := time.ParseDuration(get("JWT_TTL", "48h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid JWT_TTL: must be positive")
	}

	schedule := get("TOKEN_CLEANUP_SCHEDULE", "@every 1h")
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid TOKEN_CLEANUP_SCHEDULE: %w", err)
	}

	port := get("PORT", "8080")

	cfg := &Config{
		Database: DatabaseConfig{
			URL: get("DATABASE_URL", "razorlinks.sqlite"),
		},
		Redis: RedisConfig{
			Address: get("REDIS_ADDRESS", "localhost:6379"),
		},
		HTTP: HTTPConfig{
			Port:          port,
			FrontendURL:   strings.TrimRight(get("FRONTEND_URL", "http://localhost:5173"), "/"),
			PublicBaseURL: strings.TrimRight(get("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET"),
			JWTTTL:    ttl,
			Issuer:    get("TOTP_ISSUER", "RazorLinks"),
		},
		Worker: WorkerConfig{
			TokenCleanupSchedule: schedule,
		},
		// Logging configuration - defaults suitable for production
		Logging: LoggingConfig{
			Level:  get("LOG_LEVEL", "info"),
			Format: get("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}
