package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 64
)

// SignalTapConfig configures the websocket signal tap.
type SignalTapConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// SignalEvent is one emission as sent to websocket clients.
type SignalEvent struct {
	Type         string    `json:"type"`
	Bus          string    `json:"bus"`
	Signal       string    `json:"signal"`
	Payload      any       `json:"payload,omitempty"`
	PayloadError string    `json:"payload_error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// tapCommand is a client message. Signal and Signals are merged.
type tapCommand struct {
	Type    string   `json:"type"`
	Signal  string   `json:"signal,omitempty"`
	Signals []string `json:"signals,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu            sync.Mutex
	closed        bool
	subscriptions map[string]struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:          conn,
		send:          make(chan []byte, defaultSendBuffer),
		subscriptions: make(map[string]struct{}),
	}
}

// trySend queues msg without blocking; false means the client is too slow.
func (c *wsClient) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *wsClient) subscribe(names []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		if name == "" {
			continue
		}
		if on {
			c.subscriptions[name] = struct{}{}
		} else {
			delete(c.subscriptions, name)
		}
	}
}

// shouldReceive is true for every signal until the client subscribes to one.
func (c *wsClient) shouldReceive(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[name]
	return ok
}

// ConnectionManager manages active websocket clients.
type ConnectionManager struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	maxConnections int
}

// NewConnectionManager creates a manager with max connection limit.
func NewConnectionManager(maxConnections int) *ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = defaultWSMaxConnections
	}
	return &ConnectionManager{
		clients:        make(map[*wsClient]struct{}),
		maxConnections: maxConnections,
	}
}

// Register registers a websocket client.
func (m *ConnectionManager) Register(client *wsClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return errors.New("websocket connection limit reached")
	}
	m.clients[client] = struct{}{}
	return nil
}

// Unregister removes client and closes its send queue.
func (m *ConnectionManager) Unregister(client *wsClient) {
	m.mu.Lock()
	_, ok := m.clients[client]
	delete(m.clients, client)
	m.mu.Unlock()
	if ok {
		client.close()
	}
}

// Count returns active connection count.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CanAccept reports whether there is capacity for one more connection.
func (m *ConnectionManager) CanAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.maxConnections
}

// Broadcast queues raw for every client subscribed to name. Clients whose
// queue is full are dropped.
func (m *ConnectionManager) Broadcast(name string, raw []byte) {
	m.mu.RLock()
	clients := make([]*wsClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		if !client.shouldReceive(name) {
			continue
		}
		if !client.trySend(raw) {
			m.Unregister(client)
		}
	}
}

// Close closes all active websocket connections.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[*wsClient]struct{})
	m.mu.Unlock()
	for client := range clients {
		client.close()
	}
}

// SignalTap streams bus emissions to websocket clients on /ws/signals.
type SignalTap struct {
	log          logger.Logger
	manager      *ConnectionManager
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	unobserve    func()
}

// NewSignalTap creates a tap observing bus. Close it to stop observing.
func NewSignalTap(bus *signal.Bus, log logger.Logger, cfg SignalTapConfig) *SignalTap {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if log == nil {
		log = logger.Global()
	}

	tap := &SignalTap{
		log:          log.With("component", "signal_tap"),
		manager:      NewConnectionManager(cfg.MaxConnections),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	tap.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, allowedOrigins)
		},
	}
	tap.unobserve = bus.Observe(tap.publish)
	return tap
}

// publish runs on the emitting goroutine and must not block.
func (t *SignalTap) publish(em signal.Emission) {
	if t.manager.Count() == 0 {
		return
	}
	ev := SignalEvent{
		Type:      "signal",
		Bus:       em.Bus,
		Signal:    em.Signal,
		Timestamp: time.Now().UTC(),
	}
	if em.HasPayload {
		ev.Payload = em.Payload
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		ev.Payload = nil
		ev.PayloadError = err.Error()
		if raw, err = json.Marshal(ev); err != nil {
			t.log.Debug("signal event not encodable", "signal", em.Signal, "error", err)
			return
		}
	}
	t.manager.Broadcast(em.Signal, raw)
}

// Connections returns the number of connected clients.
func (t *SignalTap) Connections() int {
	return t.manager.Count()
}

// ServeHTTP upgrades HTTP to websocket and starts client loops.
func (t *SignalTap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !t.manager.CanAccept() {
		http.Error(w, "websocket connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn)
	if err := t.manager.Register(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many websocket connections"),
			time.Now().Add(t.writeTimeout),
		)
		_ = conn.Close()
		return
	}

	go t.writePump(client)
	t.readPump(client)
}

func (t *SignalTap) readPump(client *wsClient) {
	defer t.manager.Unregister(client)

	readDeadline := t.pingInterval + t.pongTimeout
	client.conn.SetReadLimit(1 << 16)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Debug("websocket read error", "error", err)
			}
			return
		}
		var cmd tapCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		names := append(cmd.Signals, strings.TrimSpace(cmd.Signal))
		switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
		case "subscribe":
			client.subscribe(names, true)
		case "unsubscribe":
			client.subscribe(names, false)
		}
	}
}

// writePump owns all writes to the connection and closes it on exit.
func (t *SignalTap) writePump(client *wsClient) {
	ticker := time.NewTicker(t.pingInterval)
	defer func() {
		ticker.Stop()
		t.manager.Unregister(client)
		_ = client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(t.writeTimeout),
				)
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// Close stops observing the bus and disconnects every client.
func (t *SignalTap) Close() {
	t.unobserve()
	t.manager.Close()
}

func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
