// Package wshub is the realtime channel: a websocket hub that assigns every
// connection an opaque address, groups connections, and delivers server
// pushes without ever blocking the caller.
package wshub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-restaurant-api/internal/domain"
	"github.com/go-restaurant-api/internal/pkg/id"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendQueueSize  = 32
)

// Envelope is the wire format of every frame, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Identity is what a connection proved about itself by authenticating.
type Identity struct {
	UserID string
	Role   string
	Name   string
}

// Handler receives inbound events and disconnects. HandleEvent calls for one
// connection are sequential, in arrival order.
type Handler interface {
	HandleEvent(ctx context.Context, s Session, env Envelope)
	HandleDisconnect(s Session)
}

// Session is the handler's view of one connection.
type Session interface {
	Address() string
	Identity() (Identity, bool)
	Bind(Identity)
	Join(group string)
	Send(event string, payload any) error
}

type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*Conn
	groups  map[string]map[string]*Conn
	handler Handler

	upgrader websocket.Upgrader
}

// NewHub builds a hub accepting upgrades from allowedOrigins ("*" allows any).
// Requests without an Origin header (non-browser clients) are always accepted.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		conns:  make(map[string]*Conn),
		groups: make(map[string]map[string]*Conn),
	}
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
	return h
}

// SetHandler installs the inbound event handler. It must be called before
// the hub serves its first connection.
func (h *Hub) SetHandler(handler Handler) { h.handler = handler }

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := newConn(h, ws)
	h.add(c)
	slog.Debug("realtime connection opened", "address", c.address)

	go c.writePump()
	c.readPump()
}

// Push delivers msg to one address or to every member of a group. It never
// blocks: unknown targets and full or closed connections yield ErrDeliveryFailed.
// A group push succeeds when at least one member accepted the message.
func (h *Hub) Push(msg domain.OutboundMessage) error {
	b, err := json.Marshal(outbound{Event: msg.Event, Data: msg.Payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Event, err)
	}

	if msg.To.Address != "" {
		h.mu.RLock()
		c, ok := h.conns[msg.To.Address]
		h.mu.RUnlock()
		if !ok {
			return fmt.Errorf("address %s: %w", msg.To.Address, domain.ErrDeliveryFailed)
		}
		return c.enqueue(b)
	}

	h.mu.RLock()
	members := make([]*Conn, 0, len(h.groups[msg.To.Group]))
	for _, c := range h.groups[msg.To.Group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.enqueue(b) == nil {
			delivered++
		}
	}
	if delivered == 0 {
		return fmt.Errorf("group %q: %w", msg.To.Group, domain.ErrDeliveryFailed)
	}
	return nil
}

// Connected reports whether address is an open connection.
func (h *Hub) Connected(address string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[address]
	return ok
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close terminates every connection; each one reports its disconnect.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c.address] = c
	h.mu.Unlock()
}

func (h *Hub) join(c *Conn, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.address]; !ok {
		return
	}
	g, ok := h.groups[group]
	if !ok {
		g = make(map[string]*Conn)
		h.groups[group] = g
	}
	g[c.address] = c
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.address)
	for name, g := range h.groups {
		delete(g, c.address)
		if len(g) == 0 {
			delete(h.groups, name)
		}
	}
}

// Conn is one websocket connection.
type Conn struct {
	hub     *Hub
	ws      *websocket.Conn
	address string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	identity *Identity
}

func newConn(h *Hub, ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		hub:     h,
		ws:      ws,
		address: id.New(),
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Conn) Address() string { return c.address }

func (c *Conn) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

func (c *Conn) Bind(ident Identity) {
	c.mu.Lock()
	c.identity = &ident
	c.mu.Unlock()
}

func (c *Conn) Join(group string) { c.hub.join(c, group) }

func (c *Conn) Send(event string, payload any) error {
	b, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return c.enqueue(b)
}

func (c *Conn) enqueue(b []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("address %s closed: %w", c.address, domain.ErrDeliveryFailed)
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return fmt.Errorf("address %s queue full: %w", c.address, domain.ErrDeliveryFailed)
	}
}

// close signals the writer, which sends a close frame and releases the socket.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// readPump owns all reads. It exits on the first read error and tears the
// connection down.
func (c *Conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
		if c.hub.handler != nil {
			c.hub.handler.HandleDisconnect(c)
		}
		slog.Debug("realtime connection closed", "address", c.address)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("realtime read failed", "address", c.address, "err", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			_ = c.Send(domain.EventError, map[string]string{"message": "malformed message"})
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleEvent(c.ctx, c, env)
		}
	}
}

// writePump is the single writer of the connection, so pushes keep their order.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
