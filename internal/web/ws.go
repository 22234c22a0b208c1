package web

// ws.go streams reload events to websocket clients.
//
// One hub goroutine owns the client set. It subscribes to the service's
// reload events and fans each one out to every client's send queue. Each
// client runs a read pump (detects disconnects, answers pongs) and a write
// pump (delivers queued messages and pings idle connections).

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/trackstats/internal/config"
	"github.com/JonMunkholm/trackstats/internal/core"
	"github.com/JonMunkholm/trackstats/internal/metrics"
)

const (
	// maxMessageSize bounds what clients may send; they only send heartbeats.
	maxMessageSize = 512

	typeConnection = "connection"
)

// Hub keeps the set of connected clients and broadcasts reload events.
type Hub struct {
	service *core.Service
	cfg     config.WebSocketConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	clients    map[*wsClient]struct{}
	done       chan struct{}
}

// NewHub creates a hub fed by service's reload events.
func NewHub(service *core.Service, cfg config.WebSocketConfig, m *metrics.Metrics) *Hub {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	return &Hub{
		service:    service,
		cfg:        cfg,
		metrics:    m,
		logger:     slog.Default().With("component", "websocket.hub"),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		clients:    make(map[*wsClient]struct{}),
		done:       make(chan struct{}),
	}
}

// pongWait is how long a client may stay silent before it is dropped.
func (h *Hub) pongWait() time.Duration { return h.cfg.PingPeriod * 10 / 9 }

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe := h.service.Subscribe()
	defer unsubscribe()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			h.logger.Info("hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setGauge()
			h.logger.Info("client registered",
				"client_id", c.id,
				"remote_addr", c.remoteAddr,
				"total_clients", len(h.clients),
			)
			h.deliver(c, h.connectionMessage(c))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Info("client unregistered",
					"client_id", c.id,
					"connection_duration", time.Since(c.connectedAt).String(),
					"total_clients", len(h.clients),
				)
			}

		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encode event", "error", err)
				continue
			}
			for c := range h.clients {
				h.deliver(c, msg)
			}
		}
	}
}

// deliver queues msg for c without blocking. A full queue drops the client.
func (h *Hub) deliver(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("client too slow, dropping", "client_id", c.id)
		h.drop(c)
	}
}

func (h *Hub) drop(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setGauge()
}

func (h *Hub) setGauge() {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) connectionMessage(c *wsClient) []byte {
	data := map[string]any{
		"status":    "connected",
		"client_id": c.id,
	}
	if ds, ok := h.service.Current(); ok {
		data["dataset"] = ds.Summary()
	}
	msg, _ := json.Marshal(map[string]any{
		"type": typeConnection,
		"data": data,
		"at":   time.Now().UTC(),
	})
	return msg
}

// wsClient is one websocket connection.
type wsClient struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	remoteAddr  string
	connectedAt time.Time
}

// newUpgrader accepts same-origin requests, requests without Origin, and
// origins on the CORS allow list.
func newUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowed, "*") {
				return true
			}
			return slices.Contains(allowed, origin)
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		slog.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &wsClient{
		hub:         s.hub,
		conn:        conn,
		send:        make(chan []byte, s.hub.cfg.SendBuffer),
		id:          uuid.NewString(),
		remoteAddr:  r.RemoteAddr,
		connectedAt: time.Now(),
	}

	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards client messages and unregisters on disconnect.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	pongWait := c.hub.pongWait()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket closed unexpectedly", "client_id", c.id, "error", err)
			}
			return
		}
		// Any message, including heartbeats, proves the client is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump sends queued messages and periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := c.hub.cfg.WriteWait
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
