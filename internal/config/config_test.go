package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "razorlinks.sqlite", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, "http://localhost:5173", cfg.HTTP.FrontendURL)
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.PublicBaseURL)
	assert.Equal(t, 48*time.Hour, cfg.Auth.JWTTTL)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "@every 1h", cfg.Worker.TokenCleanupSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"DATABASE_URL":           "/data/links.sqlite",
		"PORT":                   "9000",
		"FRONTEND_URL":           "https://app.example.com/",
		"JWT_SECRET":             "s3cret",
		"JWT_TTL":                "2h",
		"TOKEN_CLEANUP_SCHEDULE": "0 3 * * *",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/data/links.sqlite", cfg.Database.URL)
	assert.Equal(t, "9000", cfg.HTTP.Port)
	assert.Equal(t, "https://app.example.com", cfg.HTTP.FrontendURL)
	assert.Equal(t, "http://localhost:9000", cfg.HTTP.PublicBaseURL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.JWTTTL)
	assert.Equal(t, "0 3 * * *", cfg.Worker.TokenCleanupSchedule)
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unparsable ttl", map[string]string{"JWT_TTL": "two days"}},
		{"negative ttl", map[string]string{"JWT_TTL": "-1h"}},
		{"bad schedule", map[string]string{"TOKEN_CLEANUP_SCHEDULE": "every hour"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookup(tt.env))
			assert.Error(t, err)
		})
	}
}
