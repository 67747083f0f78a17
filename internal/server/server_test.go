package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/stride/internal/auth"
	"github.com/dukerupert/stride/internal/config"
	"github.com/dukerupert/stride/internal/database"
	"github.com/dukerupert/stride/internal/logging"
	"github.com/dukerupert/stride/internal/realtime"
	"github.com/dukerupert/stride/internal/store"
)

type testServer struct {
	*httptest.Server
	srv   *Server
	token string
	id    int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg, err := config.Load()
	require.NoError(t, err)

	logger := logging.Discard()
	feed := realtime.NewFeed(logger)
	t.Cleanup(feed.Close)

	srv := New(db, feed, nil, cron.New(), cfg, logger)
	t.Cleanup(srv.Sessions().Close)

	secret, hash, err := auth.NewSecret()
	require.NoError(t, err)
	p, err := store.NewProfileStore(db).Create("Alice", "north", hash)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, srv: srv, token: auth.FormatToken(p.ID, secret), id: p.ID}
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = ts.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/notifications/preferences", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/notifications/preferences", ts.token+"x", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, "GET", "/api/notifications/preferences", ts.token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, "POST", "/api/classes", ts.token, `{"title":"Intervals"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestVAPIDKeyWithoutPush(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/api/push/vapid-key", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWriteRoutesRateLimited(t *testing.T) {
	ts := newTestServer(t)

	var last int
	for range writeLimit + 1 {
		last = ts.do(t, "POST", "/api/classes", ts.token, `{"title":"Hills"}`).StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestWebSocketRequiresDeviceID(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, "GET", "/ws", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketOpensSession(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?device_id=dev-1&token=" + ts.token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "session", frame["type"])
	assert.EqualValues(t, ts.id, frame["user_id"])

	require.Eventually(t, func() bool { return ts.srv.Sessions().Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return ts.srv.Sessions().Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketBadTokenIsAnonymous(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?device_id=dev-2&token=1.nope"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "session", frame["type"])
	assert.EqualValues(t, 0, frame["user_id"])
}
