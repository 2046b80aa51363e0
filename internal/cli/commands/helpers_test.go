package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/razorquake/razorlinks/internal/cli/auth"
	"github.com/razorquake/razorlinks/internal/cli/config"
)

type fakeUser struct {
	password  string
	roles     []string
	enabled   bool
	twoFactor bool
}

// fakeBackend mimics the REST contract the CLI consumes
type fakeBackend struct {
	t      *testing.T
	mu     sync.Mutex
	users  map[string]fakeUser
	hits   map[string]int
	revoke bool // answer 401 to every authenticated call
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{
		t: t,
		users: map[string]fakeUser{
			"alice": {password: "alice-pw", roles: []string{"ROLE_USER"}, enabled: true},
			"root":  {password: "root-pw", roles: []string{"ROLE_USER", "ROLE_ADMIN"}, enabled: true},
			"carol": {password: "carol-pw", roles: []string{"ROLE_USER"}, enabled: true, twoFactor: true},
			"dave":  {password: "dave-pw", roles: []string{"ROLE_USER"}},
		},
		hits: map[string]int{},
	}
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)
	return b, server
}

func (b *fakeBackend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *fakeBackend) revokeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoke = true
}

func (b *fakeBackend) token(username string) string {
	b.mu.Lock()
	u := b.users[username]
	b.mu.Unlock()
	claims := jwt.MapClaims{
		"sub":   username,
		"roles": strings.Join(u.roles, ","),
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(48 * time.Hour).Unix(),
	}
	if u.twoFactor {
		claims["is2faEnabled"] = true
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(b.t, err)
	return token
}

// subject trusts the token without verifying it; the CLI is under test
func (b *fakeBackend) subject(r *http.Request, revoked bool) (string, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || revoked {
		return "", false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	return sub, sub != ""
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.hits[r.URL.Path]++
	revoked := b.revoke
	b.mu.Unlock()

	switch r.URL.Path {
	case "/api/auth/public/login":
		var req struct{ Username, Password string }
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		u, ok := b.users[req.Username]
		b.mu.Unlock()
		if !ok || u.password != req.Password {
			reply(w, http.StatusUnauthorized, map[string]any{"message": "Bad credentials", "status": false})
			return
		}
		if !u.enabled {
			reply(w, http.StatusUnauthorized, map[string]any{"message": "Please verify your email address before logging in. Check your inbox for the verification link.", "status": false})
			return
		}
		reply(w, http.StatusOK, map[string]any{"token": b.token(req.Username), "roles": u.roles})
		return
	case "/api/auth/public/verify-2fa-login":
		r.ParseForm()
		if r.PostForm.Get("code") != "123456" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Invalid 2FA Code"))
			return
		}
		w.Write([]byte("2FA Verified"))
		return
	case "/api/auth/public/verify-email":
		if r.URL.Query().Get("token") != "good-token" {
			reply(w, http.StatusBadRequest, map[string]any{"message": "Invalid verification token"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"message": "Email verified successfully! You are now logged in.", "status": true, "token": b.token("dave")})
		return
	case "/api/auth/public/resend-verification":
		reply(w, http.StatusOK, map[string]any{"message": "Verification email sent successfully. Please check your email.", "status": true})
		return
	case "/api/auth/public/forgot-password":
		r.ParseForm()
		reply(w, http.StatusOK, map[string]any{"message": "Password reset email sent to " + r.PostForm.Get("email"), "status": true})
		return
	case "/api/auth/public/reset-password":
		var req struct {
			Token       string `json:"token"`
			NewPassword string `json:"newPassword"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Token != "reset-token" || req.NewPassword == "" {
			reply(w, http.StatusBadRequest, map[string]any{"message": "Invalid password reset token", "status": false})
			return
		}
		reply(w, http.StatusOK, map[string]any{"message": "Password has been reset successfully", "status": true})
		return
	}

	sub, ok := b.subject(r, revoked)
	if !ok {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	b.mu.Lock()
	u := b.users[sub]
	b.mu.Unlock()
	isAdmin := strings.Contains(strings.Join(u.roles, ","), "ROLE_ADMIN")

	if strings.HasPrefix(r.URL.Path, "/api/admin/") {
		if !isAdmin {
			reply(w, http.StatusForbidden, map[string]string{"message": "Access denied"})
			return
		}
		b.serveAdmin(w, r)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/urls/qr/") {
		w.Header().Set("Content-Type", "image/png")
		w.Write(fakePNG)
		return
	}

	switch r.URL.Path {
	case "/api/auth/user":
		reply(w, http.StatusOK, map[string]any{"id": "01J0", "username": sub, "roles": u.roles, "twoFactorEnabled": u.twoFactor})
	case "/api/urls/myurls":
		now := time.Now().UTC()
		reply(w, http.StatusOK, []map[string]any{
			{"id": "1", "shortUrl": "older001", "originalUrl": "https://example.com/a", "clickCount": 3, "createdDate": now.Add(-time.Hour)},
			{"id": "2", "shortUrl": "newer002", "originalUrl": "https://example.com/b", "clickCount": 0, "createdDate": now},
		})
	case "/api/urls/shorten":
		reply(w, http.StatusOK, map[string]any{"id": "3", "shortUrl": "abcd1234", "originalUrl": "https://example.com/c"})
	case "/api/urls/totalClicks":
		reply(w, http.StatusOK, map[string]int64{r.URL.Query().Get("startDate"): 4})
	case "/api/urls/analytics/abcd1234":
		reply(w, http.StatusOK, []map[string]any{{"clickDate": r.URL.Query().Get("endDate"), "count": 2}})
	case "/api/urls/analytics/missing1":
		reply(w, http.StatusNotFound, map[string]string{"message": "Short URL not found"})
	case "/api/audit":
		if !isAdmin {
			reply(w, http.StatusForbidden, map[string]string{"message": "Access denied"})
			return
		}
		reply(w, http.StatusOK, []map[string]any{
			{"id": "9", "action": "URL_CREATED", "username": "alice", "shortUrl": "abcd1234", "urlMappingId": "3", "timestamp": time.Now().UTC()},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

var fakePNG = []byte("\x89PNG\r\n\x1a\nqr")

// serveAdmin answers the admin endpoints. User IDs are usernames.
func (b *fakeBackend) serveAdmin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := func(name string) map[string]any {
		u := b.users[name]
		return map[string]any{"id": name, "username": name, "email": name + "@example.com", "enabled": u.enabled, "roles": u.roles}
	}

	switch {
	case r.URL.Path == "/api/admin/get-users":
		names := make([]string, 0, len(b.users))
		for name := range b.users {
			names = append(names, name)
		}
		sort.Strings(names)
		list := make([]map[string]any, len(names))
		for i, name := range names {
			list[i] = info(name)
		}
		reply(w, http.StatusOK, list)
	case strings.HasPrefix(r.URL.Path, "/api/admin/user/"):
		name := strings.TrimPrefix(r.URL.Path, "/api/admin/user/")
		if _, ok := b.users[name]; !ok {
			reply(w, http.StatusNotFound, map[string]string{"message": "User not found"})
			return
		}
		reply(w, http.StatusOK, info(name))
	case r.URL.Path == "/api/admin/update-role" && r.Method == http.MethodPut:
		r.ParseForm()
		name := r.PostForm.Get("userId")
		u, ok := b.users[name]
		if !ok {
			reply(w, http.StatusNotFound, map[string]string{"message": "User not found"})
			return
		}
		u.roles = []string{"ROLE_USER"}
		if r.PostForm.Get("roleName") == "ROLE_ADMIN" {
			u.roles = append(u.roles, "ROLE_ADMIN")
		}
		b.users[name] = u
		reply(w, http.StatusOK, map[string]any{"message": "User role updated", "status": true})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testRuntime struct {
	*Runtime
	store *auth.MemoryStore
	out   *bytes.Buffer
	err   *bytes.Buffer
}

func newTestRuntime(t *testing.T, backendURL string, opts ...RuntimeOption) *testRuntime {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"RAZORLINKS_BACKEND_URL":  backendURL,
		"RAZORLINKS_FRONTEND_URL": "http://app.test",
	})
	require.NoError(t, err)

	store := auth.NewMemoryStore()
	var out, errOut bytes.Buffer
	opts = append([]RuntimeOption{
		WithStorage(store),
		WithLogger(zerolog.Nop()),
		WithInput(io.NopCloser(strings.NewReader(""))),
	}, opts...)
	rt, err := NewRuntime(cfg, &out, &errOut, opts...)
	require.NoError(t, err)
	return &testRuntime{Runtime: rt, store: store, out: &out, err: &errOut}
}

func (tr *testRuntime) reset() {
	tr.out.Reset()
	tr.err.Reset()
}
