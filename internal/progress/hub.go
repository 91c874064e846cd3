// Package progress streams batch events to browsers over WebSocket.
//
// A single hub goroutine owns client registration and fan-out; each client
// has a buffered send channel drained by its own writer. Slow clients whose
// buffer fills are dropped rather than stalling the processor.
package progress

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/logging"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	addr string
	// control is set for clients allowed to pause and resume the run.
	control bool
}

// Hub fans progress messages out to connected WebSocket clients.
type Hub struct {
	clients map[*websocket.Conn]*client
	mu      sync.RWMutex

	broadcast  chan []byte
	register   chan *client
	unregister chan *websocket.Conn

	origins []string
	logger  logging.Logger
	control atomic.Pointer[ControlFunc]

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	closed       atomic.Bool
	done         chan struct{}
}

// NewHub starts a hub. allowedOrigins lists exact origins
// ("http://host:port") or "*"; with none configured only loopback origins
// are accepted.
func NewHub(allowedOrigins []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client, 16),
		unregister: make(chan *websocket.Conn, 16),
		origins:    allowedOrigins,
		logger:     logger.WithComponent("progress"),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// AllowedOrigin reports whether a browser at origin may connect. Requests
// without an Origin header are not from a browser and are allowed.
func (h *Hub) AllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	if len(h.origins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		switch u.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
		return false
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return true
		}
	}
	return false
}

// ControlAllowed reports whether r may send control messages: loopback
// peers, or browsers whose origin is listed explicitly ("*" does not count).
// Any other client only receives events.
func (h *Hub) ControlAllowed(r *http.Request) bool {
	if isLoopback(r.RemoteAddr) {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, o := range h.origins {
		if o != "*" && strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return true
		}
	}
	return false
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.conn] = c
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "client connected", "remote", c.addr, "clients", n)

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for _, c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.RUnlock()
			for _, c := range targets {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn(h.ctx, nil, "dropping slow client", "remote", c.addr)
					h.remove(c.conn)
				}
			}

		case <-h.ctx.Done():
			h.mu.Lock()
			for conn, c := range h.clients {
				close(c.send)
				_ = conn.CloseNow()
			}
			h.clients = make(map[*websocket.Conn]*client)
			h.mu.Unlock()
			return
		}
	}
}

// remove runs on the hub goroutine only. It never waits for a close
// handshake so one stuck client cannot stall the others.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		_ = conn.CloseNow()
		h.logger.Debug(h.ctx, "client disconnected", "remote", c.addr, "clients", n)
	}
}

// ServeWS upgrades a request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if origin := r.Header.Get("Origin"); !h.AllowedOrigin(origin) {
		h.logger.Warn(r.Context(), errors.NewSecurityError(errors.ErrCodePermissionDenied, "origin not allowed"),
			"rejected websocket connection", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin is checked above against our own list.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		addr:    r.RemoteAddr,
		control: h.ControlAllowed(r),
	}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

// ControlFunc receives an action sent by a client, such as "pause".
type ControlFunc func(action string)

// controlMessage is what a client sends to steer the run.
type controlMessage struct {
	Action string `json:"action"`
}

// OnControl sets the handler for client control messages. Messages arriving
// with no handler set are ignored.
func (h *Hub) OnControl(fn ControlFunc) {
	h.control.Store(&fn)
}

func (h *Hub) handleMessage(c *client, data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Action == "" {
		h.logger.Debug(h.ctx, "ignoring client message", "client", c.addr)
		return
	}
	if !c.control {
		h.logger.Warn(h.ctx, errors.NewSecurityError(errors.ErrCodePermissionDenied, "control not allowed"),
			"ignoring control message", "client", c.addr, "action", msg.Action)
		return
	}
	fn := h.control.Load()
	if fn == nil || *fn == nil {
		return
	}
	h.logger.Info(h.ctx, "control message", "client", c.addr, "action", msg.Action)
	(*fn)(msg.Action)
}

// readLoop dispatches control messages and notices disconnects.
func (h *Hub) readLoop(c *client) {
	for {
		typ, data, err := c.conn.Read(h.ctx)
		if err != nil {
			break
		}
		if typ == websocket.MessageText {
			h.handleMessage(c, data)
		}
	}
	select {
	case h.unregister <- c.conn:
	case <-h.ctx.Done():
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast sends v as JSON to every client. A full broadcast buffer drops
// the message.
func (h *Hub) Broadcast(v interface{}) error {
	if h.closed.Load() {
		return errors.NewInternalError(errors.ErrCodeInternalError, "progress hub is shut down", nil)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "failed to encode progress message", err)
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn(h.ctx, nil, "broadcast buffer full, dropping message")
	}
	return nil
}

// Publish makes the hub a batch event sink.
func (h *Hub) Publish(ctx context.Context, e batch.Event) {
	if err := h.Broadcast(e); err != nil {
		h.logger.Debug(ctx, "progress event not sent", "error", err.Error())
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler serves the WebSocket endpoint at /ws and a JSON status at /status.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"clients":  h.Clients(),
			"shutdown": h.closed.Load(),
		})
	})
	return mux
}

// Shutdown closes every client and stops the hub. It waits for the hub
// goroutine until ctx ends.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.closed.Store(true)
		h.cancel()
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
