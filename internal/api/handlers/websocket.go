package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vrui-vr/networkviewer/internal/metrics"
	"github.com/vrui-vr/networkviewer/internal/protocol"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the connection may be silent before the
	// read loop gives up on the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 30 * time.Second

	// sendBufferSize is the per-client frame queue. At a snapshot
	// rate of 30/s this is several seconds of backlog.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS middleware.
		return true
	},
}

// SessionHandler is the simulation service seen from the websocket
// layer: connection lifecycle plus raw request frames.
type SessionHandler interface {
	ClientConnected(clientID string)
	ClientDisconnected(clientID string)
	HandleMessage(clientID string, data []byte) error
}

// WebSocketHandler upgrades viewer connections and runs their read
// and write pumps.
type WebSocketHandler struct {
	hub      *Hub
	sessions SessionHandler
	maxFrame int64
	log      *slog.Logger
}

// NewWebSocketHandler creates the handler. maxFrame caps incoming
// frame size; network uploads arrive on this connection, so it must
// admit a full document.
func NewWebSocketHandler(hub *Hub, sessions SessionHandler, maxFrame int64, log *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		sessions: sessions,
		maxFrame: maxFrame,
		log:      log,
	}
}

// HandleWebSocket handles the upgrade and client registration.
// GET /api/ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(uuid.NewString(), conn)
	h.hub.add(client)

	go h.writePump(client)

	// Registration before the read loop: the initial state frames
	// (parameters, network, selection, labels) queue ahead of
	// anything the client sends.
	h.sessions.ClientConnected(client.id)

	go h.readPump(client)
}

func (h *WebSocketHandler) readPump(c *wsClient) {
	defer func() {
		if h.hub.remove(c.id) {
			h.sessions.ClientDisconnected(c.id)
		}
	}()

	c.conn.SetReadLimit(h.maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket unexpected close", "client", c.id, "error", err)
			}
			return
		}

		metrics.WebSocketMessagesReceived.WithLabelValues(frameLabel(data)).Inc()

		if err := h.sessions.HandleMessage(c.id, data); err != nil {
			h.log.Warn("rejecting client frame", "client", c.id, "error", err)
		}
	}
}

func (h *WebSocketHandler) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shut()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
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

// frameLabel names the inbound frame type for metrics.
func frameLabel(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	return protocol.MessageType(data[0]).String()
}
