package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/txnroute/txnroute/router/internal/flow"
)

const (
	// writeTimeout bounds a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long a client may stay silent before its connection is
	// treated as dead.
	pongWait = 60 * time.Second

	// pingPeriod is how often pings are sent. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing queue depth. A client that
	// falls this many messages behind is disconnected.
	sendBufSize = 16

	// readLimit caps inbound frames; clients only send control frames.
	readLimit = 512
)

// EventStats is the event name of every message sent by the hub.
const EventStats = "stats"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Any origin may connect; restrict origins at the reverse proxy.
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients on connect and on every
// broadcast tick.
type Message struct {
	Event string     `json:"event"`
	Data  flow.Stats `json:"data"`
}

// Source supplies the totals to broadcast.
type Source interface {
	Stats() flow.Stats
}

// Hub keeps the set of connected WebSocket clients and pushes the router's
// running totals to all of them every interval.
type Hub struct {
	source   Source
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one connected WebSocket peer. send is closed by the hub when
// the client is removed, which ends its writePump.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub reading from src and broadcasting every interval.
func New(src Source, interval time.Duration) *Hub {
	return &Hub{
		source:   src,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts on every tick until ctx is cancelled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.Broadcast()
		}
	}
}

// ServeHTTP upgrades the connection and serves the client until it
// disconnects. The current totals are queued before the client joins the
// broadcast set, so a dashboard has data without waiting for the next tick.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufSize)}
	if msg, err := h.message(); err == nil {
		c.send <- msg
	}
	h.add(c)
	defer h.remove(c)

	go c.writePump()
	c.readPump() // blocks until the peer goes away
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the current totals to every client. A client whose send
// buffer is full is disconnected.
func (h *Hub) Broadcast() {
	msg, err := h.message()
	if err != nil {
		slog.Error("ws: encode message", "err", err)
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		h.remove(c)
	}
}

func (h *Hub) message() ([]byte, error) {
	return json.Marshal(Message{Event: EventStats, Data: h.source.Stats()})
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// remove is idempotent; the send channel is closed exactly once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump forwards queued messages and sends pings. It owns all writes to
// the connection.
func (c *client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// removed by the hub or shutting down
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes frames so pong and close control messages are
// processed, extending the read deadline on every pong. It returns when the
// peer goes away or stops answering pings.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
