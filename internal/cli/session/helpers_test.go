package session

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/razorquake/razorlinks/internal/cli/auth"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: testNow}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recorder) Observe(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) kinds() []OutcomeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]OutcomeKind, len(r.outcomes))
	for i, o := range r.outcomes {
		kinds[i] = o.Kind
	}
	return kinds
}

func (r *recorder) last() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[len(r.outcomes)-1]
}

// signToken builds an HS256 token; exp is omitted when zero
func signToken(t *testing.T, sub, roles string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": testNow.Add(-time.Minute).Unix(),
	}
	if roles != "" {
		claims["roles"] = roles
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func userToken(t *testing.T) string {
	return signToken(t, "alice", "ROLE_USER", testNow.Add(48*time.Hour))
}

func adminToken(t *testing.T) string {
	return signToken(t, "root", "ROLE_USER,ROLE_ADMIN", testNow.Add(48*time.Hour))
}

func newTestGuard(t *testing.T, store auth.Storage, opts ...Option) (*Guard, *fakeClock, *recorder) {
	t.Helper()
	clock := newFakeClock()
	rec := &recorder{}
	all := append([]Option{WithClock(clock.Now), WithObserver(rec)}, opts...)
	g, err := New(store, all...)
	require.NoError(t, err)
	return g, clock, rec
}
