package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BackendURL)
	assert.Equal(t, "http://localhost:5173", cfg.FrontendURL)
	assert.Equal(t, 300*time.Second, cfg.ExpirySkew)
	assert.Equal(t, "keyring", cfg.TokenStore)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "localhost:8080", cfg.BackendHost())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"RAZORLINKS_BACKEND_URL":  "https://links.example.com",
		"RAZORLINKS_EXPIRY_SKEW":  "1m",
		"RAZORLINKS_TOKEN_STORE":  "file",
		"RAZORLINKS_SESSION_FILE": "/tmp/session.json",
		"RAZORLINKS_ROUTES_FILE":  "routes.yaml",
		"RAZORLINKS_USERNAME":     "ci-bot",
		"BACKEND_URL":             "http://ignored:1",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://links.example.com", cfg.BackendURL)
	assert.Equal(t, time.Minute, cfg.ExpirySkew)
	assert.Equal(t, "file", cfg.TokenStore)
	assert.Equal(t, "/tmp/session.json", cfg.SessionFile)
	assert.Equal(t, "routes.yaml", cfg.RoutesFile)
	assert.Equal(t, "ci-bot", cfg.Username)
	assert.Equal(t, "links.example.com", cfg.BackendHost())
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad duration", map[string]string{"RAZORLINKS_EXPIRY_SKEW": "soon"}},
		{"negative skew", map[string]string{"RAZORLINKS_EXPIRY_SKEW": "-5s"}},
		{"no scheme", map[string]string{"RAZORLINKS_BACKEND_URL": "localhost:8080"}},
		{"ftp scheme", map[string]string{"RAZORLINKS_BACKEND_URL": "ftp://example.com"}},
		{"zero timeout", map[string]string{"RAZORLINKS_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			assert.Error(t, err)
		})
	}
}

func TestWithBackendURL(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	other, err := cfg.WithBackendURL("http://127.0.0.1:9000/")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", other.BackendURL)
	assert.Equal(t, "http://localhost:8080", cfg.BackendURL, "original is unchanged")

	_, err = cfg.WithBackendURL("not a url")
	assert.Error(t, err)
}
