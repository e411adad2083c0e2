package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/syncgate/internal/changeset"
	"github.com/nerrad567/syncgate/internal/infrastructure/config"
	"github.com/nerrad567/syncgate/internal/infrastructure/logging"
)

// feedSendBufferSize is the per-client outbound message buffer size.
const feedSendBufferSize = 256

// FeedMessage is a change-feed event delivered over the WebSocket.
type FeedMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub manages change-feed WebSocket connections. Each client is bound to
// the tenant whose session opened it and only sees that tenant's changes.
type Hub struct {
	cfg     config.FeedConfig
	logger  *logging.Logger
	clients map[*feedClient]struct{}
	mu      sync.RWMutex
}

type feedClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	tenantID string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a change-feed hub.
func NewHub(cfg config.FeedConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(c *feedClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("feed client connected", "tenant_id", c.tenantID, "clients", h.ClientCount())
}

// unregister removes a client. Only the goroutine that actually removes it
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) unregister(c *feedClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Debug("feed client disconnected", "clients", h.ClientCount())
}

// BroadcastChanges pushes an applied change set to the tenant's connected
// feed clients.
func (h *Hub) BroadcastChanges(tenantID string, cs *changeset.ChangeSet) {
	msg := FeedMessage{
		Type:      "changes_applied",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   cs.ToMap(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding feed message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*feedClient, 0, len(h.clients))
	for c := range h.clients {
		if c.tenantID == tenantID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

// trySend queues a message without blocking; a client that cannot keep up
// is dropped rather than stalling the broadcast.
func (c *feedClient) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("feed client send buffer full, dropping", "tenant_id", c.tenantID)
		go c.hub.unregister(c)
	}
}

// handleFeed upgrades the connection to the change-feed WebSocket. The
// session guard has already resolved the tenant; the feed carries only
// that tenant's changes.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("feed upgrade failed", "error", err)
		return
	}

	client := &feedClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, feedSendBufferSize),
		tenantID: sess.TenantID,
	}
	s.hub.register(client)

	go client.writePump(s.feedCfg)
	go client.readPump(s.feedCfg)
}

// readPump drains the connection; the feed is one-way, so inbound frames
// only reset the read deadline.
func (c *feedClient) readPump(cfg config.FeedConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

func (c *feedClient) writePump(cfg config.FeedConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
