package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/razorquake/razorlinks/internal/cli/auth"
	"github.com/razorquake/razorlinks/internal/cli/client"
	"github.com/razorquake/razorlinks/internal/cli/config"
	"github.com/razorquake/razorlinks/internal/cli/notify"
	"github.com/razorquake/razorlinks/internal/cli/session"
	"github.com/razorquake/razorlinks/internal/logger"
)

// Runtime carries what every command needs: one guard shared by the API
// client and the commands
type Runtime struct {
	Config *config.Config
	Guard  *session.Guard
	API    *client.Client
	Out    io.Writer
	Err    io.Writer
	In     io.ReadCloser
	Logger zerolog.Logger
}

// Provider builds the runtime on first use, after flags are parsed
type Provider func() (*Runtime, error)

// RuntimeOption customizes NewRuntime
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	store  auth.Storage
	clock  func() time.Time
	in     io.ReadCloser
	logger *zerolog.Logger
}

// WithStorage replaces the configured token store
func WithStorage(s auth.Storage) RuntimeOption {
	return func(o *runtimeOptions) {
		o.store = s
	}
}

// WithClock replaces time.Now in the guard
func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOptions) {
		o.clock = now
	}
}

// WithInput replaces stdin for prompts
func WithInput(in io.ReadCloser) RuntimeOption {
	return func(o *runtimeOptions) {
		o.in = in
	}
}

// WithLogger replaces the logger built from the configuration
func WithLogger(l zerolog.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = &l
	}
}

// NewRuntime wires storage, policy, guard, notifier and API client from cfg
func NewRuntime(cfg *config.Config, out, errOut io.Writer, opts ...RuntimeOption) (*Runtime, error) {
	o := runtimeOptions{in: os.Stdin}
	for _, opt := range opts {
		opt(&o)
	}

	var log zerolog.Logger
	if o.logger != nil {
		log = *o.logger
	} else {
		log = logger.InitWithWriter(errOut, cfg.LogLevel, cfg.LogFormat)
	}

	store := o.store
	if store == nil {
		s, err := auth.Open(cfg.TokenStore, cfg.BackendHost(), cfg.SessionFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open token store: %w", err)
		}
		store = s
	}

	policy := session.DefaultPolicy()
	if cfg.RoutesFile != "" {
		p, err := session.LoadPolicyFile(cfg.RoutesFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	guardOpts := []session.Option{
		session.WithSkew(cfg.ExpirySkew),
		session.WithPolicy(policy),
		session.WithLogger(log.With().Str("component", "session").Logger()),
		session.WithObserver(notify.New(errOut, log)),
	}
	if o.clock != nil {
		guardOpts = append(guardOpts, session.WithClock(o.clock))
	}

	guard, err := session.New(store, guardOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	api := client.New(cfg.BackendURL, guard,
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(log.With().Str("component", "api").Logger()),
	)

	return &Runtime{
		Config: cfg,
		Guard:  guard,
		API:    api,
		Out:    out,
		Err:    errOut,
		In:     o.in,
		Logger: log,
	}, nil
}

// Static returns a Provider that always yields rt
func Static(rt *Runtime) Provider {
	return func() (*Runtime, error) {
		return rt, nil
	}
}

// requireRoute gates a command behind the access class of route. The route
// decision runs first so an expired session is ended before any API call.
func requireRoute(rt *Runtime, route string) error {
	d := rt.Guard.Navigate(route)
	if d.Allowed {
		return nil
	}
	if err := d.Err(); err != nil {
		return fmt.Errorf("%w: %s requires the admin role (redirected to %s)", err, route, d.RedirectTo)
	}
	return fmt.Errorf("not logged in (redirected to %s)\nRun 'razorlinks login' first", d.RedirectTo)
}
