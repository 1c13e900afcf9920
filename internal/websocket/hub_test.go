package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

func newServer(t *testing.T) (*Hub, *realtime.Bus, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := realtime.NewBus(16, zap.NewNop())
	hub := NewHub(bus, secret, zap.NewNop())
	r := gin.New()
	r.GET("/ws", hub.ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		bus.Close()
		srv.Close()
	})
	return hub, bus, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func token(t *testing.T, id uuid.UUID, role model.Role) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": id.String(), "role": string(role)}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestServeWsStreamsScopedEvents(t *testing.T) {
	hub, bus, url := newServer(t)
	userID := uuid.New()

	conn, _, err := gws.DefaultDialer.Dial(url+"?entities=request&token="+token(t, userID, model.RoleManager), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 && bus.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	req := &model.Request{ID: uuid.New(), RequesterID: uuid.New()}
	step := &model.ApprovalStep{ID: uuid.New(), RequestID: req.ID, Role: model.RoleManager}
	roles := []model.Role{model.RoleManager, model.RoleProjectManager}
	bus.Publish(
		realtime.StepEvent(realtime.OpInsert, req, step, roles),
		realtime.RequestEvent(realtime.OpInsert, &model.Request{ID: uuid.New(), RequesterID: uuid.New()}, []model.Role{model.RoleAdmin}),
		realtime.RequestEvent(realtime.OpUpdate, req, roles),
	)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Entity    string `json:"entity"`
		Operation string `json:"operation"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "request", ev.Entity)
	assert.Equal(t, "update", ev.Operation)
	assert.Equal(t, req.ID.String(), ev.RequestID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 && bus.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWsRejectsBadHandshake(t *testing.T) {
	_, _, url := newServer(t)

	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gws.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gws.DefaultDialer.Dial(url+"?entities=invoice&token="+token(t, uuid.New(), model.RoleAdmin), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShutdownSendsClose(t *testing.T) {
	hub, _, url := newServer(t)
	conn, _, err := gws.DefaultDialer.Dial(url+"?token="+token(t, uuid.New(), model.RoleRequester), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure), "got %v", err)
}

func TestParseEntities(t *testing.T) {
	got, ok := ParseEntities(" request, notification ,")
	require.True(t, ok)
	assert.Equal(t, []realtime.Entity{realtime.EntityRequest, realtime.EntityNotification}, got)

	got, ok = ParseEntities("")
	assert.True(t, ok)
	assert.Empty(t, got)

	_, ok = ParseEntities("request,invoice")
	assert.False(t, ok)
}
