package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/razorquake/razorlinks/internal/auth"
	"github.com/razorquake/razorlinks/internal/config"
	"github.com/razorquake/razorlinks/internal/database"
	"github.com/razorquake/razorlinks/internal/models"
	"github.com/razorquake/razorlinks/internal/tasks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) lastTask(t *testing.T) *asynq.Task {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.tasks, "no task enqueued")
	return f.tasks[len(f.tasks)-1]
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func (f *fakeEnqueuer) lastPayload(t *testing.T) tasks.VerificationEmailPayload {
	t.Helper()
	task := f.lastTask(t)
	require.Equal(t, tasks.TypeSendVerificationEmail, task.Type())
	payload, err := tasks.ParseVerificationEmailPayload(task)
	require.NoError(t, err)
	return payload
}

func (f *fakeEnqueuer) lastResetPayload(t *testing.T) tasks.PasswordResetEmailPayload {
	t.Helper()
	task := f.lastTask(t)
	require.Equal(t, tasks.TypeSendPasswordResetEmail, task.Type())
	payload, err := tasks.ParsePasswordResetEmailPayload(task)
	require.NoError(t, err)
	return payload
}

type testServer struct {
	*Server
	db    *gorm.DB
	queue *fakeEnqueuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.FromLookup(func(key string) string {
		switch key {
		case "FRONTEND_URL":
			return "http://app.test"
		case "JWT_SECRET":
			return "test-secret"
		}
		return ""
	})
	require.NoError(t, err)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	queue := &fakeEnqueuer{}
	srv, err := New(cfg, db, queue, zerolog.Nop(), "test")
	require.NoError(t, err)

	return &testServer{Server: srv, db: db, queue: queue}
}

// createUser inserts an enabled account directly
func (ts *testServer) createUser(t *testing.T, username, password string, roles ...string) *models.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Roles:        strings.Join(roles, ","),
		Enabled:      true,
	}
	require.NoError(t, ts.db.Create(user).Error)
	return user
}

func (ts *testServer) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := ts.issuer.GenerateToken(user.Username, user.RoleList(), user.TwoFactorEnabled)
	require.NoError(t, err)
	return token
}

type request struct {
	method string
	path   string
	token  string
	header string // raw Authorization value, wins over token
	json   any
	form   url.Values
}

func (ts *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	contentType := ""
	switch {
	case r.json != nil:
		require.NoError(t, json.NewEncoder(body).Encode(r.json))
		contentType = "application/json"
	case r.form != nil:
		body.WriteString(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req := httptest.NewRequest(r.method, r.path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	switch {
	case r.header != "":
		req.Header.Set("Authorization", r.header)
	case r.token != "":
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, w)["message"].(string)
}

// at pins the server clock
func (ts *testServer) at(now time.Time) {
	ts.now = func() time.Time { return now }
}
