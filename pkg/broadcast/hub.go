// Package broadcast provides a sink that fans lock state events out to websocket
// clients.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 16
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("hub closed")

// Event is the JSON message sent to clients for every emitted event.
type Event struct {
	Topic   string    `json:"topic"`
	Payload string    `json:"payload"`
	Time    time.Time `json:"time"`
	Host    string    `json:"host,omitempty"`
}

// Hub is a sink.Sink that broadcasts every event to the connected websocket
// clients. A client that connects later first receives the most recent event.
// Clients that fall behind are disconnected.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	last     *websocket.PreparedMessage
	closed   bool
	host     string
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *websocket.PreparedMessage
}

// NewHub creates an empty Hub. A nil logger means slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
		},
		logger: logger.With("component", "broadcast"),
	}
}

// SetHost sets the host name stamped on every following event.
func (h *Hub) SetHost(host string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.host = host
}

// Emit sends the event to every connected client without blocking on any of them.
func (h *Hub) Emit(topic string, payload string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	data, err := json.Marshal(Event{Topic: topic, Payload: payload, Time: time.Now(), Host: h.host})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		return fmt.Errorf("failed to prepare message: %w", err)
	}

	h.last = pm
	for c := range h.clients {
		select {
		case c.send <- pm:
		default:
			h.logger.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			h.removeLocked(c)
		}
	}

	return nil
}

// ServeHTTP upgrades the request to a websocket connection and registers it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan *websocket.PreparedMessage, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String())

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients. Emit fails afterward.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for c := range h.clients {
		if uc := c.conn.UnderlyingConn(); uc != nil {
			if tc, ok := uc.(*net.TCPConn); ok {
				tc.SetLinger(0)
			}
		}
		h.removeLocked(c)
	}

	return nil
}

// removeLocked unregisters c and closes its send channel, which ends its write
// pump. Holding mu is required.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// readPump discards client messages and keeps the read deadline fresh until the
// connection fails.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read failed", "err", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case pm, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WritePreparedMessage(pm); err != nil {
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
