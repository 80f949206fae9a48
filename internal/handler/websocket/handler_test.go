package websocket_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-rooms/internal/auth"
	wsHandler "collaborative-rooms/internal/handler/websocket"
	"collaborative-rooms/internal/hub"
	redisstate "collaborative-rooms/internal/infra/state/redis"
)

const allowedOrigin = "http://localhost:3000"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := hub.NewHub(redisstate.NewStateRepository(client, "test:"), nil, nil, time.Hour)
	verifier, err := auth.NewVerifier("unit-test-secret")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/ws/room/:roomId", wsHandler.NewHandler(h, verifier, allowedOrigin).HandleConnection)
	return router
}

func upgradeRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}

func TestHandleConnection_RequiresUpgrade(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/room/r1", nil))
	assert.Equal(t, http.StatusUpgradeRequired, w.Code)
}

func TestHandleConnection_RejectsForeignOrigin(t *testing.T) {
	router := newTestRouter(t)

	req := upgradeRequest("/ws/room/r1")
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleConnection_RejectsInvalidToken(t *testing.T) {
	router := newTestRouter(t)

	req := upgradeRequest("/ws/room/r1?userId=u1&token=not.a.token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
