package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every CLI environment variable
const EnvPrefix = "RAZORLINKS_"

// Config holds CLI settings. Flags override these values.
type Config struct {
	BackendURL  string        `env:"BACKEND_URL" envDefault:"http://localhost:8080"`
	FrontendURL string        `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	ExpirySkew  time.Duration `env:"EXPIRY_SKEW" envDefault:"300s"`
	TokenStore  string        `env:"TOKEN_STORE" envDefault:"keyring"`
	SessionFile string        `env:"SESSION_FILE"`
	RoutesFile  string        `env:"ROUTES_FILE"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat   string        `env:"LOG_FORMAT" envDefault:"console"`

	// Username and Password let CI log in without prompting
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// Load reads .env files from the working directory (if present) and parses
// RAZORLINKS_* variables
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFrom parses configuration from the given variables only (tests)
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed as struct tags
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid backend URL %q: must be http(s)://host[:port]", c.BackendURL)
	}
	if c.ExpirySkew < 0 {
		return fmt.Errorf("expiry skew must not be negative, got %s", c.ExpirySkew)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// BackendHost returns host[:port] of the backend, used to scope stored
// credentials so several backends can coexist
func (c *Config) BackendHost() string {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return c.BackendURL
	}
	return u.Host
}

// WithBackendURL returns a copy of c pointing at backendURL
func (c *Config) WithBackendURL(backendURL string) (*Config, error) {
	out := *c
	out.BackendURL = strings.TrimRight(backendURL, "/")
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
