package websocket

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"procurement/internal/middleware"
	"procurement/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dev simplicity
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one realtime session. It owns exactly one bus subscription.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	sub    *realtime.Subscription
	userID uuid.UUID
}

// Hub tracks live sessions. Fan-out itself happens on the bus.
type Hub struct {
	bus    *realtime.Bus
	secret []byte
	log    *zap.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub(bus *realtime.Bus, secret []byte, log *zap.Logger) *Hub {
	return &Hub{
		bus:     bus,
		secret:  secret,
		log:     log,
		clients: make(map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("websocket client connected", zap.String("user_id", c.userID.String()), zap.Int("sessions", n))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.sub.Close()
		h.log.Info("websocket client disconnected", zap.String("user_id", c.userID.String()))
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown ends every session. Their write pumps send a close frame as the
// subscriptions drain.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.sub.Close()
	}
}

// writePump forwards matching bus events until the subscription ends.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.sub.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				code, reason := websocket.CloseNormalClosure, "session closed"
				if c.sub.Evicted() {
					code, reason = websocket.CloseTryAgainLater, "too slow, resubscribe"
				}
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the peer going away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read failed", zap.Error(err))
			}
			break
		}
	}
}

// ParseEntities reads a comma separated entity list. Empty means every entity.
func ParseEntities(raw string) ([]realtime.Entity, bool) {
	var out []realtime.Entity
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		e := realtime.Entity(part)
		if !e.Valid() {
			return nil, false
		}
		out = append(out, e)
	}
	return out, true
}

// ServeWs authenticates via the token query param and subscribes the session to events
// addressed to the caller's user id or role.
func (h *Hub) ServeWs(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	claims, err := middleware.ParseToken(h.secret, tokenString)
	if err != nil {
		h.log.Warn("websocket connection rejected", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	entities, ok := ParseEntities(c.Query("entities"))
	if !ok {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		userID: claims.UserID,
		sub: h.bus.Subscribe(realtime.Filter{
			Entities: entities,
			Role:     claims.Role,
			UserID:   claims.UserID,
		}),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
}
