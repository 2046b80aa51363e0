package server

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razorquake/razorlinks/internal/models"
)

func forgotPassword(t *testing.T, ts *testServer, email string) string {
	t.Helper()
	w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/forgot-password", form: url.Values{"email": {email}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	link, err := url.Parse(ts.queue.lastResetPayload(t).Link)
	require.NoError(t, err)
	return link.Query().Get("token")
}

func loginStatus(t *testing.T, ts *testServer, username, password string) int {
	t.Helper()
	w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/login", json: map[string]string{"username": username, "password": password}})
	return w.Code
}

func TestPasswordReset(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "old-password")

	token := forgotPassword(t, ts, "alice@example.com")
	payload := ts.queue.lastResetPayload(t)
	assert.Equal(t, "alice@example.com", payload.Email)
	assert.True(t, strings.HasPrefix(payload.Link, "http://app.test/reset-password?token="))

	reset := func(token, password string) (int, string) {
		w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/reset-password", json: map[string]string{"token": token, "newPassword": password}})
		return w.Code, message(t, w)
	}

	t.Run("unknown token", func(t *testing.T) {
		code, msg := reset("nope", "new-password")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Invalid password reset token", msg)
	})

	t.Run("same password is refused without burning the token", func(t *testing.T) {
		code, msg := reset(token, "old-password")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "New password must be different from the old password", msg)
	})

	t.Run("too short", func(t *testing.T) {
		code, _ := reset(token, "short")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("reset replaces the password", func(t *testing.T) {
		code, msg := reset(token, "new-password")
		require.Equal(t, http.StatusOK, code, msg)

		assert.Equal(t, http.StatusUnauthorized, loginStatus(t, ts, "alice", "old-password"))
		assert.Equal(t, http.StatusOK, loginStatus(t, ts, "alice", "new-password"))

		var entries int64
		require.NoError(t, ts.db.Model(&models.AuditLog{}).Where("action = ? AND username = ?", models.ActionPasswordReset, "alice").Count(&entries).Error)
		assert.Equal(t, int64(1), entries)
	})

	t.Run("token is single use", func(t *testing.T) {
		code, msg := reset(token, "another-password")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Token has already been used", msg)
	})
}

func TestPasswordReset_Expired(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "old-password")

	now := time.Now()
	ts.at(now)
	token := forgotPassword(t, ts, "alice@example.com")

	ts.at(now.Add(passwordResetTokenTTL))
	w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/reset-password", json: map[string]string{"token": token, "newPassword": "new-password"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Password reset token has expired", message(t, w))
}

func TestPasswordReset_NewRequestReplacesToken(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "old-password")

	first := forgotPassword(t, ts, "alice@example.com")
	second := forgotPassword(t, ts, "alice@example.com")
	require.NotEqual(t, first, second)

	w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/reset-password", json: map[string]string{"token": first, "newPassword": "new-password"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var live int64
	require.NoError(t, ts.db.Model(&models.PasswordResetToken{}).Count(&live).Error)
	assert.Equal(t, int64(1), live)
}

func TestForgotPassword(t *testing.T) {
	ts := newTestServer(t)
	pending := ts.createUser(t, "dave", "pw-dave")
	require.NoError(t, ts.db.Model(pending).Update("enabled", false).Error)

	t.Run("unknown email answers like a known one", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/forgot-password", form: url.Values{"email": {"ghost@example.com"}}})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Password reset email sent to ghost@example.com", message(t, w))
		assert.Zero(t, ts.queue.count())
	})

	t.Run("email from the query string", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/forgot-password?email=ghost@example.com"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		for _, email := range []string{"", "not-an-email"} {
			w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/forgot-password", form: url.Values{"email": {email}}})
			assert.Equal(t, http.StatusBadRequest, w.Code, email)
		}
	})

	t.Run("unverified account", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodPost, path: "/api/auth/public/forgot-password", form: url.Values{"email": {"dave@example.com"}}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, msgVerifyFirst, message(t, w))
		assert.Zero(t, ts.queue.count())
	})
}
