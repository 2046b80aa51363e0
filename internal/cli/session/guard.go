package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/razorquake/razorlinks/internal/cli/auth"
)

// IdentityFetcher loads the current user from the backend (GET /auth/user)
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context) (Identity, error)
}

// LoginTicket marks the session generation a login attempt started from
type LoginTicket struct {
	generation uint64
}

// Guard owns the session. It is safe for concurrent use; each handler runs
// under one lock and storage read-modify-write is never interleaved. The
// lock is never held across network I/O.
type Guard struct {
	store     auth.Storage
	policy    *Policy
	skew      time.Duration
	now       func() time.Time
	logger    zerolog.Logger
	observers []Observer

	mu         sync.Mutex
	current    Session
	generation uint64
}

// Option configures a Guard
type Option func(*Guard)

// WithSkew sets the expiry safety margin
func WithSkew(skew time.Duration) Option {
	return func(g *Guard) {
		if skew >= 0 {
			g.skew = skew
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithObserver registers an outcome observer
func WithObserver(o Observer) Option {
	return func(g *Guard) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// WithPolicy sets the route policy used by Navigate
func WithPolicy(p *Policy) Option {
	return func(g *Guard) {
		if p != nil {
			g.policy = p
		}
	}
}

// New creates a guard and loads the persisted session from store
func New(store auth.Storage, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("session storage is required")
	}

	g := &Guard{
		store:  store,
		policy: DefaultPolicy(),
		skew:   DefaultSkew,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.reloadLocked(); err != nil {
		return nil, err
	}
	return g, nil
}

// Session returns a snapshot of the current session
func (g *Guard) Session() Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current.clone()
}

// Policy returns the route policy
func (g *Guard) Policy() *Policy {
	return g.policy
}

// Skew returns the expiry safety margin
func (g *Guard) Skew() time.Duration {
	return g.skew
}

// IsExpired applies the guard's clock and skew to token
func (g *Guard) IsExpired(token string) bool {
	return IsExpired(token, g.skew, g.now())
}

// BeginLogin captures the session generation before a login round-trip
func (g *Guard) BeginLogin() LoginTicket {
	g.mu.Lock()
	defer g.mu.Unlock()
	return LoginTicket{generation: g.generation}
}

// CompleteLogin adopts token as the new session
func (g *Guard) CompleteLogin(token string) (Session, error) {
	return g.CompleteLoginAttempt(g.BeginLogin(), token)
}

// CompleteLoginAttempt adopts token unless the session changed since ticket
// was issued, in which case the result is discarded with ErrStaleLogin. A
// token that cannot be decoded, or is already expired, ends the session.
func (g *Guard) CompleteLoginAttempt(ticket LoginTicket, token string) (Session, error) {
	g.mu.Lock()
	now := g.now()
	prev := g.current.State()

	if ticket.generation != g.generation {
		snapshot := g.current.clone()
		g.mu.Unlock()
		g.logger.Warn().
			Uint64("ticket", ticket.generation).
			Msg("Discarding login result, session changed while it was in flight")
		g.emit(Outcome{Kind: OutcomeLoginDiscarded, Previous: prev, Session: snapshot, Err: ErrStaleLogin, At: now})
		return snapshot, ErrStaleLogin
	}

	identity, err := g.decodeLoginToken(token, now)
	if err != nil {
		outcome := g.endLocked(err, now)
		g.mu.Unlock()
		g.emit(outcome)
		return outcome.Session, err
	}

	next := Session{
		Token:           token,
		Identity:        &identity,
		IsAdmin:         identity.Roles.IsAdmin(),
		LastEvaluatedAt: g.current.LastEvaluatedAt,
	}
	if err := g.persistLocked(next); err != nil {
		clearErr := g.clearStoreLocked()
		g.current = Session{}
		g.generation++
		g.mu.Unlock()
		return Session{}, errors.Join(err, clearErr)
	}
	g.current = next
	g.generation++
	snapshot := g.current.clone()
	g.mu.Unlock()

	g.logger.Info().
		Str("username", identity.Username).
		Bool("is_admin", snapshot.IsAdmin).
		Msg("Session established")
	g.emit(Outcome{Kind: OutcomeLoggedIn, Previous: prev, Session: snapshot, At: now})
	return snapshot, nil
}

func (g *Guard) decodeLoginToken(token string, now time.Time) (Identity, error) {
	if err := checkExpiry(token, g.skew, now); err != nil {
		return Identity{}, err
	}
	claims, err := DecodeToken(token)
	if err != nil {
		return Identity{}, err
	}
	return identityFromClaims(claims)
}

// Logout clears every persisted field and the in-memory state. It is
// idempotent; only a transition out of Authenticated is reported.
func (g *Guard) Logout() error {
	g.mu.Lock()
	now := g.now()
	prev := g.current.State()
	err := g.clearStoreLocked()
	g.current = Session{}
	g.generation++
	g.mu.Unlock()

	if err != nil {
		g.logger.Error().Err(err).Msg("Failed to clear persisted session")
	}
	if prev == Authenticated {
		g.emit(Outcome{Kind: OutcomeLoggedOut, Previous: prev, At: now})
	}
	return err
}

// OnUnauthorizedResponse is the global reaction to a 401 from any call:
// the session is cleared and the caller is sent to login. It always wins
// over login attempts still in flight.
func (g *Guard) OnUnauthorizedResponse() {
	g.mu.Lock()
	outcome := g.endLocked(ErrUnauthorized, g.now())
	g.mu.Unlock()
	g.emit(outcome)
}

// AttachCredentials prepares req for transmission. Without a persisted
// token req is returned unmodified. An expired or malformed token ends the
// session and the request is aborted with an *EndedError.
func (g *Guard) AttachCredentials(req *http.Request) (*http.Request, error) {
	g.mu.Lock()
	token, found, err := g.store.Get(KeyToken)
	if err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !found || token == "" {
		if g.current.Authenticated() {
			// another process logged out
			g.current = Session{}
			g.generation++
		}
		g.mu.Unlock()
		return req, nil
	}

	now := g.now()
	if expErr := checkExpiry(token, g.skew, now); expErr != nil {
		outcome := g.endLocked(expErr, now)
		g.mu.Unlock()
		g.emit(outcome)
		return nil, &EndedError{Reason: expErr, RedirectTo: g.policy.Targets().Login}
	}

	if token != g.current.Token {
		// another process logged in
		if err := g.reloadLocked(); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to reload persisted session")
		}
		g.generation++
	}
	g.mu.Unlock()

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return out, nil
}

// Navigate evaluates route against the policy. An expired session is ended
// first, so the decision never relies on a token that would be rejected.
func (g *Guard) Navigate(route string) Decision {
	g.mu.Lock()
	now := g.now()
	var outcome *Outcome
	if g.current.Authenticated() {
		if err := checkExpiry(g.current.Token, g.skew, now); err != nil {
			o := g.endLocked(err, now)
			outcome = &o
		}
	}
	g.current.LastEvaluatedAt = now
	snapshot := g.current.clone()
	g.mu.Unlock()

	if outcome != nil {
		g.emit(*outcome)
	}

	decision := g.policy.Evaluate(route, snapshot)
	g.logger.Debug().
		Str("route", route).
		Str("state", snapshot.State().String()).
		Bool("allowed", decision.Allowed).
		Str("redirect_to", decision.RedirectTo).
		Msg("Route evaluated")
	return decision
}

// RefreshIdentity replaces the identity's roles with the backend's view and
// recomputes the admin flag. Failures are reported and leave the session
// unchanged; a 401 has already been handled by the transport.
func (g *Guard) RefreshIdentity(ctx context.Context, fetcher IdentityFetcher) error {
	g.mu.Lock()
	snapshot := g.current.clone()
	generation := g.generation
	g.mu.Unlock()

	if !snapshot.Authenticated() || snapshot.Username() == "" {
		return nil
	}

	identity, err := fetcher.FetchIdentity(ctx)
	if err != nil {
		var ended *EndedError
		if errors.Is(err, ErrUnauthorized) || errors.As(err, &ended) {
			return err
		}
		wrapped := fmt.Errorf("%w: %w", ErrIdentityFetch, err)
		g.logger.Error().Err(err).Msg("Error fetching current user")
		g.emit(Outcome{Kind: OutcomeIdentityFetchFailed, Previous: snapshot.State(), Session: snapshot, Err: wrapped, At: g.now()})
		return wrapped
	}

	g.mu.Lock()
	if generation != g.generation || g.current.Token != snapshot.Token {
		g.mu.Unlock()
		g.logger.Debug().Msg("Discarding identity refresh, session changed")
		return ErrStaleLogin
	}
	if identity.Username == "" {
		identity.Username = snapshot.Username()
	}
	next := g.current.clone()
	next.Identity = &Identity{Username: identity.Username, Roles: identity.Roles.clone()}
	next.IsAdmin = identity.Roles.IsAdmin()
	if err := g.persistIdentityLocked(next); err != nil {
		g.mu.Unlock()
		return err
	}
	g.current = next
	snapshot = g.current.clone()
	g.mu.Unlock()

	g.emit(Outcome{Kind: OutcomeIdentityRefreshed, Previous: Authenticated, Session: snapshot, At: g.now()})
	return nil
}

// endLocked moves to Anonymous because of cause and builds the outcome
func (g *Guard) endLocked(cause error, now time.Time) Outcome {
	prev := g.current.State()
	if err := g.clearStoreLocked(); err != nil {
		g.logger.Error().Err(err).Msg("Failed to clear persisted session")
	}
	g.current = Session{LastEvaluatedAt: g.current.LastEvaluatedAt}
	g.generation++

	kind := OutcomeUnauthorized
	switch {
	case errors.Is(cause, ErrTokenMalformed):
		kind = OutcomeMalformed
	case errors.Is(cause, ErrTokenExpired):
		kind = OutcomeExpired
	}

	g.logger.Info().
		Str("cause", kind.String()).
		Str("previous", prev.String()).
		Msg("Session cleared")
	return Outcome{
		Kind:       kind,
		Previous:   prev,
		RedirectTo: g.policy.Targets().Login,
		Err:        cause,
		At:         now,
	}
}

func (g *Guard) emit(o Outcome) {
	for _, obs := range g.observers {
		obs.Observe(o)
	}
}

// reloadLocked reads the persisted layout into memory
func (g *Guard) reloadLocked() error {
	token, found, err := g.store.Get(KeyToken)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !found || token == "" {
		g.current = Session{}
		return nil
	}

	next := Session{Token: token}

	if raw, ok, err := g.store.Get(KeyUser); err != nil {
		return fmt.Errorf("failed to load session user: %w", err)
	} else if ok {
		var identity Identity
		if err := json.Unmarshal([]byte(raw), &identity); err != nil {
			g.logger.Warn().Err(err).Msg("Ignoring unreadable persisted user")
		} else {
			next.Identity = &identity
		}
	}

	if raw, ok, err := g.store.Get(KeyIsAdmin); err != nil {
		return fmt.Errorf("failed to load session admin flag: %w", err)
	} else if ok {
		var isAdmin bool
		if err := json.Unmarshal([]byte(raw), &isAdmin); err != nil {
			g.logger.Warn().Err(err).Msg("Ignoring unreadable persisted admin flag")
		} else {
			next.IsAdmin = isAdmin
		}
	}

	g.current = next
	return nil
}

func (g *Guard) persistLocked(s Session) error {
	if err := g.store.Set(KeyToken, s.Token); err != nil {
		return err
	}
	return g.persistIdentityLocked(s)
}

func (g *Guard) persistIdentityLocked(s Session) error {
	if s.Identity != nil {
		user, err := json.Marshal(s.Identity)
		if err != nil {
			return fmt.Errorf("failed to marshal session user: %w", err)
		}
		if err := g.store.Set(KeyUser, string(user)); err != nil {
			return err
		}
	}
	if s.IsAdmin {
		return g.store.Set(KeyIsAdmin, "true")
	}
	return g.store.Delete(KeyIsAdmin)
}

func (g *Guard) clearStoreLocked() error {
	var errs []error
	for _, key := range []string{KeyToken, KeyUser, KeyIsAdmin} {
		if err := g.store.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
