package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"memecoin-prediction-market/internal/events"
	"memecoin-prediction-market/internal/observability"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds incoming frames; clients only send control frames.
	maxMessageSize = 512

	// sendBufferSize is the per-client outgoing queue.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub streams ledger events from the bus to websocket clients. A client may
// restrict the stream to one market with ?market=<name>.
type Hub struct {
	bus     events.Bus
	log     logrus.FieldLogger
	metrics *observability.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	market string // empty receives every market
}

// NewHub creates a Hub reading from bus.
func NewHub(bus events.Bus, logger logrus.FieldLogger, metrics *observability.Metrics) *Hub {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Hub{
		bus:     bus,
		log:     logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Start subscribes to the ledger channel and forwards events until ctx ends.
// It returns once the subscription is established.
func (h *Hub) Start(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, events.LedgerChannel)
	if err != nil {
		return fmt.Errorf("ws: subscribe: %w", err)
	}
	go h.run(ctx, msgs)
	return nil
}

func (h *Hub) run(ctx context.Context, msgs <-chan []byte) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				h.log.Warn("ws: ledger subscription closed")
				return
			}
			e, err := events.Decode(payload)
			if err != nil {
				h.log.WithError(err).Warn("ws: dropping undecodable event")
				continue
			}
			h.broadcast(e.MarketName, payload)
		}
	}
}

func (h *Hub) broadcast(market string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.market != "" && c.market != market {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.log.WithField("market", market).Warn("ws: dropping message for slow client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.metrics.WebsocketClients.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client.
// GET /ws[?market=<name>]
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws: upgrade failed")
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		market: r.URL.Query().Get("market"),
	}
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
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
	h.metrics.WebsocketClients.Set(float64(len(h.clients)))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.metrics.WebsocketClients.Set(float64(len(h.clients)))
	}
}

// readPump discards client frames and detects disconnects.
func (c *client) readPump() {
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
				c.hub.log.WithError(err).Debug("ws: unexpected close")
			}
			return
		}
	}
}

// writePump sends queued events as text frames and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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
