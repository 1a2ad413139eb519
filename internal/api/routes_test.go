package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/playmatatu/pairrooms/internal/api"
	"github.com/playmatatu/pairrooms/internal/config"
	"github.com/playmatatu/pairrooms/internal/middleware"
	"github.com/playmatatu/pairrooms/internal/rooms"
	"github.com/playmatatu/pairrooms/internal/ws"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	local  = "127.0.0.1:4000"
	public = "203.0.113.50:4000"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Environment:       "test",
		FrontendURL:       "https://rooms.example.com",
		Regions:           []config.Region{{Name: "eu", RoomCount: 5}},
		PresenceTTL:       30 * time.Second,
		HeartbeatInterval: 20 * time.Second,
		CountdownDuration: 10 * time.Second,
		MatchedViewDelay:  5 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		JWTSecret:         "test-secret",
		AdminSessionTTL:   time.Hour,
	}
}

func newRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	router, _ := newRouterWithStore(t, cfg)
	return router
}

func newRouterWithStore(t *testing.T, cfg *config.Config) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx, cancel := context.WithCancel(context.Background())
	engine := rooms.NewEngine(ctx, rdb, map[string]int{"eu": 5}, nopPublisher{}, rooms.Options{})
	hub := ws.NewHub(cfg.KeepaliveInterval)
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		engine.Scheduler().Wait()
		rdb.Close()
	})

	router := gin.New()
	api.SetupRoutes(router, nil, rdb, engine, hub, cfg)
	return router, mr
}

type call struct {
	method      string
	path        string
	body        string
	contentType string
	remote      string
	token       string
}

func do(t *testing.T, router http.Handler, c call) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, bytes.NewBufferString(c.body))
	if c.contentType == "" {
		c.contentType = "application/json"
	}
	req.Header.Set("Content-Type", c.contentType)
	if c.remote == "" {
		c.remote = local
	}
	req.RemoteAddr = c.remote
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w.Code, body
}

func join(t *testing.T, router http.Handler, room, tag, remote string) (int, map[string]any) {
	t.Helper()
	return do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/regions/eu/rooms/" + room + "/join",
		body:   `{"display_tag":"` + tag + `"}`,
		remote: remote,
	})
}

func TestJoinErrors(t *testing.T) {
	router := newRouter(t, testConfig())

	code, body := join(t, router, "1", "Alice#123", local)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["player_id"])

	tests := []struct {
		name   string
		path   string
		tag    string
		remote string
		status int
		code   string
	}{
		{"invalid tag", "/api/v1/regions/eu/rooms/2/join", "nope", local, http.StatusBadRequest, "invalid_format"},
		{"duplicate", "/api/v1/regions/eu/rooms/2/join", "Alice#123", local, http.StatusConflict, "duplicate"},
		{"unknown room", "/api/v1/regions/eu/rooms/42/join", "Bob#456", local, http.StatusNotFound, "not_found"},
		{"unknown region", "/api/v1/regions/mars/rooms/1/join", "Bob#456", local, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, router, call{
				method: http.MethodPost,
				path:   tt.path,
				body:   `{"display_tag":"` + tt.tag + `"}`,
				remote: tt.remote,
			})
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, body["code"])
		})
	}

	code, _ = join(t, router, "1", "Bob#456", local)
	require.Equal(t, http.StatusOK, code)
	code, body = join(t, router, "1", "Carol#789", local)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "full", body["code"])

	code, body = do(t, router, call{method: http.MethodPost, path: "/api/v1/regions/eu/rooms/3/join", body: "{"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_format", body["code"])
}

func TestJoinRestrictedAddress(t *testing.T) {
	router := newRouter(t, testConfig())

	code, _ := join(t, router, "1", "Alice#123", public)
	require.Equal(t, http.StatusOK, code)

	code, body := join(t, router, "2", "Bob#456", public)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "restricted", body["code"])
}

func TestJoinWhileStoreIsDown(t *testing.T) {
	router, mr := newRouterWithStore(t, testConfig())

	mr.SetError("LOADING Redis is loading the dataset in memory")
	code, body := join(t, router, "2", "Alice#123", local)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body["code"])
	mr.SetError("")

	code, body = do(t, router, call{method: http.MethodGet, path: "/api/v1/regions/eu/rooms"})
	require.Equal(t, http.StatusOK, code)
	room := body["rooms"].([]any)[1].(map[string]any)
	assert.Equal(t, "waiting", room["status"])
	assert.Empty(t, room["players"])
	assert.Empty(t, mr.Keys(), "nothing was written")
}

func TestLeaveBodies(t *testing.T) {
	router := newRouter(t, testConfig())
	listRoom := func(id int) map[string]any {
		code, body := do(t, router, call{method: http.MethodGet, path: "/api/v1/regions/eu/rooms"})
		require.Equal(t, http.StatusOK, code)
		return body["rooms"].([]any)[id-1].(map[string]any)
	}

	_, a := join(t, router, "1", "Alice#123", local)
	_, b := join(t, router, "1", "Bob#456", local)
	assert.Equal(t, "countdown", listRoom(1)["status"])

	// JSON body
	code, _ := do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/regions/eu/rooms/1/leave",
		body:   `{"player_id":"` + a["player_id"].(string) + `"}`,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, listRoom(1)["players"], 1)

	// sendBeacon with a bare id
	code, _ = do(t, router, call{
		method:      http.MethodPost,
		path:        "/api/v1/regions/eu/rooms/1/leave",
		body:        b["player_id"].(string),
		contentType: "text/plain;charset=UTF-8",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "waiting", listRoom(1)["status"])
	assert.Empty(t, listRoom(1)["players"])

	// Empty body clears the room
	join(t, router, "2", "Carol#789", local)
	code, _ = do(t, router, call{method: http.MethodPost, path: "/api/v1/regions/eu/rooms/2/leave"})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, listRoom(2)["players"])

	code, body := do(t, router, call{method: http.MethodPost, path: "/api/v1/regions/eu/rooms/2/leave", body: "{broken"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_format", body["code"])
}

func TestHeartbeatAndConfirm(t *testing.T) {
	router := newRouter(t, testConfig())
	_, a := join(t, router, "1", "Alice#123", local)

	code, _ := do(t, router, call{
		method: http.MethodPost,
		path:   "/api/v1/regions/eu/rooms/1/heartbeat",
		body:   `{"player_id":"` + a["player_id"].(string) + `"}`,
	})
	assert.Equal(t, http.StatusOK, code)

	code, body := do(t, router, call{method: http.MethodPost, path: "/api/v1/regions/eu/rooms/1/heartbeat", body: `{}`})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_format", body["code"])

	code, body = do(t, router, call{method: http.MethodPost, path: "/api/v1/regions/eu/rooms/1/confirm"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "wrong_count", body["code"])

	join(t, router, "1", "Bob#456", local)
	code, _ = do(t, router, call{method: http.MethodPost, path: "/api/v1/regions/eu/rooms/1/confirm"})
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthAndConfig(t *testing.T) {
	router := newRouter(t, testConfig())

	code, body := do(t, router, call{method: http.MethodGet, path: "/api/v1/health"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = do(t, router, call{method: http.MethodGet, path: "/api/v1/config"})
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 20, body["heartbeat_interval_seconds"])
	assert.EqualValues(t, 10, body["countdown_seconds"])
	assert.EqualValues(t, 30, body["keepalive_seconds"])
	require.Len(t, body["regions"], 1)
}

func TestJoinThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.JoinRatePerMinute = 1
	router := newRouter(t, cfg)

	code, _ := join(t, router, "1", "Alice#123", local)
	assert.Equal(t, http.StatusOK, code)
	code, body := join(t, router, "2", "Bob#456", local)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", body["code"])

	// Other addresses have their own budget
	code, _ = join(t, router, "2", "Bob#456", "127.0.0.2:4000")
	assert.Equal(t, http.StatusOK, code)
}

func TestAdminRoutes(t *testing.T) {
	cfg := testConfig()
	router := newRouter(t, cfg)

	code, body := do(t, router, call{method: http.MethodPost, path: "/api/v1/admin/login", body: `{"username":"ops","password":"x"}`})
	assert.Equal(t, http.StatusNotImplemented, code, "no database configured")
	assert.Equal(t, "disabled", body["code"])

	code, _ = do(t, router, call{method: http.MethodPost, path: "/api/v1/admin/regions/eu/sweep"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, router, call{method: http.MethodPost, path: "/api/v1/admin/regions/eu/sweep", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, code)

	token, _, err := middleware.IssueAdminToken(cfg.JWTSecret, "ops", nil, time.Minute)
	require.NoError(t, err)

	join(t, router, "3", "Alice#123", local)
	code, _ = do(t, router, call{method: http.MethodPost, path: "/api/v1/admin/regions/eu/rooms/3/reset", token: token})
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, router, call{method: http.MethodGet, path: "/api/v1/regions/eu/rooms"})
	require.Equal(t, http.StatusOK, code)
	room := body["rooms"].([]any)[2].(map[string]any)
	assert.Empty(t, room["players"])

	code, body = do(t, router, call{method: http.MethodPost, path: "/api/v1/admin/regions/eu/sweep", token: token})
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["evicted"])

	code, _ = do(t, router, call{method: http.MethodPost, path: "/api/v1/admin/regions/mars/sweep", token: token})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, router, call{method: http.MethodGet, path: "/api/v1/admin/audit", token: token})
	assert.Equal(t, http.StatusNotImplemented, code)
}
