package server

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/razorquake/razorlinks/internal/models"
)

func shorten(t *testing.T, ts *testServer, token, original string) URLMappingDetail {
	t.Helper()
	w := ts.do(t, request{method: http.MethodPost, path: "/api/urls/shorten", token: token, json: map[string]string{"originalUrl": original}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[URLMappingDetail](t, w)
}

func TestShortenAndRedirect(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	token := ts.tokenFor(t, alice)

	mapping := shorten(t, ts, token, "https://example.com/page")
	assert.Len(t, mapping.ShortURL, 8)
	assert.NoError(t, ts.validator.Var(mapping.ShortURL, "shortcode"))
	assert.Equal(t, "alice", mapping.Username)
	assert.Zero(t, mapping.ClickCount)

	for i := 0; i < 3; i++ {
		w := ts.do(t, request{method: http.MethodGet, path: "/" + mapping.ShortURL})
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://example.com/page", w.Header().Get("Location"))
	}

	w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/myurls", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	urls := decode[[]URLMappingDetail](t, w)
	require.Len(t, urls, 1)
	assert.Equal(t, 3, urls[0].ClickCount)

	var clicks int64
	require.NoError(t, ts.db.Model(&models.ClickEvent{}).Where("url_mapping_id = ?", mapping.ID).Count(&clicks).Error)
	assert.Equal(t, int64(3), clicks)
}

func TestShorten_Validation(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	token := ts.tokenFor(t, alice)

	for _, body := range []map[string]string{{}, {"originalUrl": "not a url"}} {
		w := ts.do(t, request{method: http.MethodPost, path: "/api/urls/shorten", token: token, json: body})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	anon := ts.do(t, request{method: http.MethodPost, path: "/api/urls/shorten", json: map[string]string{"originalUrl": "https://example.com"}})
	assert.Equal(t, http.StatusUnauthorized, anon.Code)
}

func TestRedirect_Unknown(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/nothere1", "/bad-code!"} {
		w := ts.do(t, request{method: http.MethodGet, path: path})
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	health := ts.do(t, request{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestMyURLs_OnlyOwnNewestFirst(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	bob := ts.createUser(t, "bob", "pw")
	aliceToken, bobToken := ts.tokenFor(t, alice), ts.tokenFor(t, bob)

	older := shorten(t, ts, aliceToken, "https://example.com/a")
	require.NoError(t, ts.db.Model(&models.URLMapping{}).Where("id = ?", older.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	newer := shorten(t, ts, aliceToken, "https://example.com/b")
	shorten(t, ts, bobToken, "https://example.com/c")

	w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/myurls", token: aliceToken})
	require.Equal(t, http.StatusOK, w.Code)
	urls := decode[[]URLMappingDetail](t, w)
	require.Len(t, urls, 2)
	assert.Equal(t, newer.ShortURL, urls[0].ShortURL)
	assert.Equal(t, older.ShortURL, urls[1].ShortURL)
}

func TestDeleteURL(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	bob := ts.createUser(t, "bob", "pw")
	aliceToken, bobToken := ts.tokenFor(t, alice), ts.tokenFor(t, bob)

	mapping := shorten(t, ts, aliceToken, "https://example.com/a")
	ts.do(t, request{method: http.MethodGet, path: "/" + mapping.ShortURL})

	t.Run("other users cannot delete", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodDelete, path: "/api/urls/" + mapping.ShortURL, token: bobToken})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("owner deletes", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodDelete, path: "/api/urls/" + mapping.ShortURL, token: aliceToken})
		require.Equal(t, http.StatusOK, w.Code)

		gone := ts.do(t, request{method: http.MethodGet, path: "/" + mapping.ShortURL})
		assert.Equal(t, http.StatusNotFound, gone.Code)

		var clicks int64
		require.NoError(t, ts.db.Model(&models.ClickEvent{}).Count(&clicks).Error)
		assert.Zero(t, clicks)
	})
}

func TestTotalClicks(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	bob := ts.createUser(t, "bob", "pw")
	token := ts.tokenFor(t, alice)

	mine := shorten(t, ts, token, "https://example.com/a")
	theirs := shorten(t, ts, ts.tokenFor(t, bob), "https://example.com/b")

	click := func(code string, at time.Time) {
		ts.at(at)
		w := ts.do(t, request{method: http.MethodGet, path: "/" + code})
		require.Equal(t, http.StatusFound, w.Code)
	}
	day := func(d int, hour int) time.Time {
		return time.Date(2025, 3, d, hour, 0, 0, 0, time.UTC)
	}
	click(mine.ShortURL, day(1, 10))
	click(mine.ShortURL, day(1, 23))
	click(mine.ShortURL, day(2, 0))
	click(mine.ShortURL, day(5, 12)) // outside the range
	click(theirs.ShortURL, day(1, 10))

	w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/totalClicks?startDate=2025-03-01&endDate=2025-03-03", token: token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]int64{"2025-03-01": 2, "2025-03-02": 1}, decode[map[string]int64](t, w))

	tests := []struct {
		name  string
		query string
	}{
		{"missing start", "endDate=2025-03-03"},
		{"bad end", "startDate=2025-03-01&endDate=03/03/2025"},
		{"end before start", "startDate=2025-03-05&endDate=2025-03-01"},
		{"range too long", "startDate=2023-01-01&endDate=2025-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/totalClicks?" + tt.query, token: token})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestClicksPerDay_ReadsOnlyTheWindow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	mapping := shorten(t, ts, ts.tokenFor(t, alice), "https://example.com/a")

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, 0, 2)
	for _, at := range []time.Time{
		from.Add(-time.Nanosecond),
		from,
		from.Add(36 * time.Hour),
		until.Add(-time.Second),
		until,
	} {
		require.NoError(t, ts.db.Create(&models.ClickEvent{URLMappingID: mapping.ID, ClickDate: at}).Error)
	}

	totals, err := clicksPerDay(ts.db.Where("click_events.url_mapping_id = ?", mapping.ID), from, until)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2025-03-01": 1, "2025-03-02": 2}, totals)
}

func TestURLAnalytics(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	bob := ts.createUser(t, "bob", "pw")
	aliceToken, bobToken := ts.tokenFor(t, alice), ts.tokenFor(t, bob)

	mine := shorten(t, ts, aliceToken, "https://example.com/a")
	other := shorten(t, ts, aliceToken, "https://example.com/b")

	for _, at := range []time.Time{
		time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 18, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
	} {
		ts.at(at)
		require.Equal(t, http.StatusFound, ts.do(t, request{method: http.MethodGet, path: "/" + mine.ShortURL}).Code)
	}
	ts.at(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	ts.do(t, request{method: http.MethodGet, path: "/" + other.ShortURL})

	analytics := func(token, code, query string) *httptest.ResponseRecorder {
		return ts.do(t, request{method: http.MethodGet, path: "/api/urls/analytics/" + code + "?" + query, token: token})
	}

	t.Run("days in order for one link", func(t *testing.T) {
		w := analytics(aliceToken, mine.ShortURL, "startDate=2025-03-01&endDate=2025-03-03")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []ClickEventDetail{
			{ClickDate: "2025-03-01", Count: 1},
			{ClickDate: "2025-03-02", Count: 2},
		}, decode[[]ClickEventDetail](t, w))
	})

	t.Run("date-time bounds", func(t *testing.T) {
		w := analytics(aliceToken, mine.ShortURL, "startDate=2025-03-02T00:00:00&endDate=2025-03-02T12:00:00")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []ClickEventDetail{{ClickDate: "2025-03-02", Count: 1}}, decode[[]ClickEventDetail](t, w))
	})

	t.Run("empty window", func(t *testing.T) {
		w := analytics(aliceToken, mine.ShortURL, "startDate=2024-01-01&endDate=2024-01-31")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]ClickEventDetail](t, w))
	})

	t.Run("other users get not found", func(t *testing.T) {
		w := analytics(bobToken, mine.ShortURL, "startDate=2025-03-01&endDate=2025-03-03")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad dates", func(t *testing.T) {
		for _, q := range []string{
			"endDate=2025-03-03",
			"startDate=2025-03-01&endDate=tomorrow",
			"startDate=2025-03-05&endDate=2025-03-01",
		} {
			assert.Equal(t, http.StatusBadRequest, analytics(aliceToken, mine.ShortURL, q).Code, q)
		}
	})
}

func TestURLQRCode(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.createUser(t, "alice", "pw")
	bob := ts.createUser(t, "bob", "pw")
	aliceToken := ts.tokenFor(t, alice)
	mapping := shorten(t, ts, aliceToken, "https://example.com/a")

	t.Run("png of the requested size", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/qr/" + mapping.ShortURL + "?size=256", token: aliceToken})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

		cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 256, cfg.Width)
		assert.Equal(t, 256, cfg.Height)
	})

	t.Run("default size", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/qr/" + mapping.ShortURL, token: aliceToken})
		require.Equal(t, http.StatusOK, w.Code)
		cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, defaultQRSize, cfg.Width)
	})

	t.Run("size out of bounds", func(t *testing.T) {
		for _, size := range []string{"50", "5000", "big"} {
			w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/qr/" + mapping.ShortURL + "?size=" + size, token: aliceToken})
			assert.Equal(t, http.StatusBadRequest, w.Code, size)
		}
	})

	t.Run("other users get not found", func(t *testing.T) {
		w := ts.do(t, request{method: http.MethodGet, path: "/api/urls/qr/" + mapping.ShortURL, token: ts.tokenFor(t, bob)})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
