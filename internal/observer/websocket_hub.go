package observer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// WebSocketHub streams selected pipeline events to connected websocket clients
type WebSocketHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	filter  map[EventType]struct{}
	logger  *logrus.Logger
	seq     atomic.Int64
	closed  bool
}

type wsClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewWebSocketHub creates a hub that forwards the given event types; none means all
func NewWebSocketHub(logger *logrus.Logger, types ...EventType) *WebSocketHub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	filter := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	return &WebSocketHub{
		clients: make(map[*wsClient]struct{}),
		filter:  filter,
		logger:  logger,
	}
}

// GetObserverName returns the observer name
func (h *WebSocketHub) GetObserverName() string {
	return "websocket_hub"
}

// OnEvent broadcasts the event. Slow clients are dropped rather than blocking.
func (h *WebSocketHub) OnEvent(ctx context.Context, event PipelineEvent) {
	if len(h.filter) > 0 {
		if _, ok := h.filter[event.EventType]; !ok {
			return
		}
	}
	payload, err := json.Marshal(struct {
		Seq int64 `json:"seq"`
		PipelineEvent
	}{Seq: h.seq.Add(1), PipelineEvent: event})
	if err != nil {
		h.logger.WithError(err).Error("Failed to serialize event for websocket clients")
		return
	}

	var slow []*wsClient
	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Dropping slow websocket client")
		h.unregister(client)
	}
}

// Register attaches an upgraded connection and starts its pumps
func (h *WebSocketHub) Register(conn *websocket.Conn) {
	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

func (h *WebSocketHub) unregister(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
	h.mu.Unlock()
}

// ConnectedClients returns the number of connected clients
func (h *WebSocketHub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// readPump only services control frames; clients do not send data
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Debug("WebSocket read error")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
