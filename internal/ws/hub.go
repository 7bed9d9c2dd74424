// Package ws implements the WebSocket notification bus.
//
// Hub manages a set of connected subscribers and pushes listing lifecycle
// events to all of them. Delivery is best-effort: a client whose outgoing
// buffer fills up is disconnected and is expected to reconnect and resync
// from the snapshot it receives on connect (or by sending a
// request_snapshot message).
//
// Events sent to clients, JSON envelope {event, data}:
//
//	snapshot        full redacted listing view (on connect / on request)
//	created         one redacted listing (new or renewed)
//	removed         listing id (claimed, cancelled or expired)
//	presence_count  number of connected subscribers
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/johnwmail/taskgrab/internal/metrics"
	"github.com/johnwmail/taskgrab/models"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; origin policy belongs at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SnapshotFunc supplies the current redacted listing view for new and
// resyncing subscribers. A function value rather than an interface so the
// hub can be constructed before the exchange it serves.
type SnapshotFunc func() []models.PublicListing

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Hub manages WebSocket subscriber connections and fans listing events out
// to all of them. It implements exchange.Bus.
type Hub struct {
	snapshot SnapshotFunc

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// client represents one connected WebSocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that serves snapshots from snapshot.
func New(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot: snapshot,
		clients:  make(map[*client]struct{}),
	}
}

// PublishCreated broadcasts a new or renewed listing to all subscribers.
func (h *Hub) PublishCreated(listing models.PublicListing) {
	h.broadcast(Message{Event: "created", Data: listing})
}

// PublishRemoved broadcasts that a listing is gone.
func (h *Hub) PublishRemoved(id string) {
	h.broadcast(Message{Event: "removed", Data: id})
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the
// subscriber. It sends the current snapshot immediately on connect, then
// streams events until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	if !h.register(c) {
		// Hub already closed; a client inserted now would never be
		// cleaned up.
		conn.Close()
		return
	}
	defer h.unregister(c)

	// Send the current snapshot immediately so the client has data right away.
	h.sendTo(c, Message{Event: "snapshot", Data: h.snapshot()})

	go c.writePump()
	h.readPump(c) // blocks until connection closes
}

// Count returns the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all subscribers and rejects further broadcasts.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedSubscribers.Set(float64(n))
	h.broadcast(Message{Event: "presence_count", Data: n})
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	removed := false
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		removed = true
	}
	n := len(h.clients)
	h.mu.Unlock()

	if removed {
		metrics.ConnectedSubscribers.Set(float64(n))
		h.broadcast(Message{Event: "presence_count", Data: n})
	}
}

// broadcast fans a message out to every connected client. A client whose
// send buffer is full is disconnected rather than allowed to block the bus.
// Sends happen under the read lock: channels are only closed under the write
// lock, so a send can never race a close.
func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] ws: failed to marshal %s event: %v", msg.Event, err)
		return
	}

	var slow []*client
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.unregister(c)
	}
}

// sendTo queues a message for a single client, best-effort.
func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] ws: failed to marshal %s event: %v", msg.Event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// inbound is the envelope clients send to the hub. The only recognized
// event is request_snapshot.
type inbound struct {
	Event string `json:"event"`
}

// readPump reads frames from the connection to process resync requests and
// control messages (pong, close) and to detect disconnects. Blocks until
// the connection closes.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var req inbound
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Event == "request_snapshot" {
			h.sendTo(c, Message{Event: "snapshot", Data: h.snapshot()})
		}
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
