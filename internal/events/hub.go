// Package events pushes deployment config events to UI clients over WebSocket.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 8
)

// Message is the frame written to clients
type Message struct {
	Event   string             `json:"event"`
	Payload domain.ConfigEvent `json:"payload"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans config events out to connected clients and remembers the last one
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	last    []byte
	lastEvt *domain.ConfigEvent
	closed  bool
}

// NewHub creates an event hub. allowedOrigins of ["*"] accepts any origin.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients: make(map[string]*client),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Emit records evt as the last event and sends it to every client.
// Clients that cannot keep up are disconnected.
func (h *Hub) Emit(evt domain.ConfigEvent) {
	data, err := json.Marshal(Message{Event: domain.ConfigEventName, Payload: evt})
	if err != nil {
		h.logger.Error("Failed to encode event", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.last = data
	h.lastEvt = &evt
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.removeLocked(c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("Event emitted",
		zap.String("mode", string(evt.Mode)),
		zap.String("api_url", evt.APIURL),
		zap.Int("clients", count))
}

// Last returns the most recently emitted event
func (h *Hub) Last() (domain.ConfigEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastEvt == nil {
		return domain.ConfigEvent{}, false
	}
	return *h.lastEvt, true
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection upgrades the request and streams events to the client,
// starting with the last emitted event.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	h.logger.Debug("Client connected", zap.String("client_id", c.id))

	go h.writePump(c)
	go h.readPump(c)
}

// readPump drains client frames so control messages are processed
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.logger.Debug("Client disconnected", zap.String("client_id", c.id))
}

// Close disconnects all clients and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}
