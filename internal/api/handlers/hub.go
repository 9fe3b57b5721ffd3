package handlers

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vrui-vr/networkviewer/internal/metrics"
)

// wsClient is one connected viewer. Frames queue on send; writePump
// drains it. done closes exactly once, on drop or disconnect, and
// tells writePump to finish.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(id string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// shut closes the connection and releases writePump. Safe to call
// from any goroutine, any number of times.
func (c *wsClient) shut() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// trySend queues a frame without blocking. False means the client's
// buffer is full.
func (c *wsClient) trySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Hub is the registry of connected websocket clients. The simulation
// service delivers all its frames through it; queuing never blocks,
// and a client too slow to drain its buffer is disconnected rather
// than allowed to stall the simulation.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*wsClient),
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(count))
	h.log.Info("websocket client connected", "client", c.id, "total_clients", count)
}

// remove drops the client from the registry. It reports whether the
// client was still registered, so the disconnect path runs once even
// when a slow-client drop races the read loop's own teardown.
func (h *Hub) remove(id string) bool {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return false
	}
	c.shut()
	metrics.WebSocketConnections.Set(float64(count))
	h.log.Info("websocket client disconnected", "client", id, "total_clients", count)
	return true
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver queues a frame on one client, disconnecting it when its
// buffer is full.
func (h *Hub) deliver(c *wsClient, frame []byte) {
	if c.trySend(frame) {
		metrics.WebSocketMessagesSent.Inc()
		return
	}
	h.log.Warn("dropping slow websocket client", "client", c.id)
	c.shut()
}

// Send queues a frame to one client. Unknown IDs are ignored; the
// client may have disconnected between the caller's decision and now.
func (h *Hub) Send(clientID string, frame []byte) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if ok {
		h.deliver(c, frame)
	}
}

// Broadcast queues a frame to every connected client.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, frame)
	}
}

// CloseAll disconnects every client. Each read pump observes its
// closed connection and runs the normal teardown, so disconnect
// notifications still fire once per client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.shut()
	}
}

// BroadcastOthers queues a frame to every client except the one named.
func (h *Hub) BroadcastOthers(clientID string, frame []byte) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for id, c := range h.clients {
		if id != clientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, frame)
	}
}
