package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/primalradio/primalradio/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Display clients run on other origins
	},
}

// MessageType identifies a push message.
type MessageType string

const (
	// MsgWelcome is the first message a client receives
	MsgWelcome MessageType = "welcome"

	// MsgNowPlaying carries a new now-playing record
	MsgNowPlaying MessageType = "now_playing"

	// MsgPlayback carries a playback state snapshot
	MsgPlayback MessageType = "playback"
)

// Message is the envelope of every push message.
type Message struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"clientId,omitempty"`
	Payload  any         `json:"payload"`
}

// client is one connected websocket.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the connected clients and fans out push messages.
// Clients are server-push only; anything they send is discarded.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup

	// welcome builds the payload sent to a client right after it connects
	welcome func() any

	mu sync.RWMutex
}

// NewHub creates a hub. m may be nil.
func NewHub(logger *slog.Logger, m *metrics.Metrics, welcome func() any) *Hub {
	return &Hub{
		logger:  logger.With(slog.String("component", "ws-hub")),
		metrics: m,
		clients: make(map[*client]struct{}),
		welcome: welcome,
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	var payload any
	if h.welcome != nil {
		payload = h.welcome()
	}
	if data, err := json.Marshal(Message{Type: MsgWelcome, ClientID: c.id, Payload: payload}); err == nil {
		c.send <- data
	}

	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.metrics.SetWebsocketClients(len(h.clients))
	h.logger.Debug("client connected", slog.String("client", c.id), slog.Int("clients", len(h.clients)))
	return true
}

// unregister removes the client and closes its send queue. Safe to call twice.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.SetWebsocketClients(len(h.clients))
	h.logger.Debug("client disconnected", slog.String("client", c.id), slog.Int("clients", len(h.clients)))
}

// Broadcast sends a message to every client. Clients whose queue is full are dropped.
func (h *Hub) Broadcast(msgType MessageType, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Warn("failed to encode push message", slog.String("type", string(msgType)), slog.Any("error", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow client", slog.String("client", c.id))
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.metrics.SetWebsocketClients(len(h.clients))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.metrics.SetWebsocketClients(0)
	h.mu.Unlock()

	h.wg.Wait()
}

// readPump drains the connection so control frames are processed, and
// unregisters the client when the connection goes away.
func (c *client) readPump() {
	defer c.hub.wg.Done()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("unexpected websocket close", slog.String("client", c.id), slog.Any("error", err))
			}
			return
		}
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *client) writePump() {
	defer c.hub.wg.Done()

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
