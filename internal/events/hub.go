// Package events is the WebSocket channel between the engine and the desktop
// shell: engine events and surface commands go out, surface notifications
// come in.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/surface"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256

	// TypeNotification is the only inbound message type.
	TypeNotification = "notification"
)

var ErrHubClosed = errors.New("event hub closed")

// Message is the envelope of every frame in either direction.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NotificationSink receives surface notifications sent by clients.
type NotificationSink interface {
	Notify(n surface.Notification) error
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	sink    NotificationSink
	onJoin  func()
	closed  bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Access is gated by the auth middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logging.WithComponent(logging.OrDiscard(logger), "events"),
		clients: make(map[*client]struct{}),
	}
}

// SetSink routes inbound notifications to sink.
func (h *Hub) SetSink(sink NotificationSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

// OnConnect registers fn to run, on its own goroutine, after each client
// connects.
func (h *Hub) OnConnect(fn func()) {
	h.mu.Lock()
	h.onJoin = fn
	h.mu.Unlock()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends a message to every connected client. It never blocks: a
// client whose send buffer is full is disconnected.
func (h *Hub) Publish(kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode event", "type", kind, "error", err)
		return
	}
	frame, err := json.Marshal(Message{Type: kind, Data: data})
	if err != nil {
		h.logger.Error("failed to encode message", "type", kind, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("client too slow, disconnecting")
			h.removeLocked(c)
		}
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	onJoin := h.onJoin
	h.mu.Unlock()
	h.logger.Info("client connected", "remote", r.RemoteAddr, "clients", count)
	if onJoin != nil {
		go onJoin()
	}

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.logger.Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if err := h.dispatch(raw); err != nil {
			h.logger.Warn("invalid inbound message", "error", err)
		}
	}
}

func (h *Hub) dispatch(raw []byte) error {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if msg.Type != TypeNotification {
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}

	var n surface.Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		return fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.Surface == "" || !n.Kind.Valid() {
		return fmt.Errorf("malformed notification %s", n)
	}

	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()
	if sink == nil {
		h.logger.Debug("notification dropped, no sink", "notification", n.String())
		return nil
	}
	return sink.Notify(n)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
