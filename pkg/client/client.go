// Package client is the receiving end of the realtime fan-out subsystem:
// it owns exactly one connection to the server, replays the authentication
// handshake, and exposes a local publish/subscribe surface the application
// drives its UI from. Connection drops are recovered automatically.
package client

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/qg-furioso/realtime/pkg/protocol"
)

// AllEvents subscribes a handler to every inbound envelope regardless of
// type, for cross-cutting concerns like toast notifications.
const AllEvents protocol.EventType = "*"

const (
	defaultReconnectDelay = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
)

// State describes the client's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Handler receives one inbound envelope. Handlers run synchronously on the
// read loop, in registration order.
type Handler func(env protocol.Envelope)

type handlerEntry struct {
	id int
	fn Handler
}

// Option configures the Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCredential sets the session token replayed in the authenticate
// handshake after every (re)connect.
func WithCredential(token string) Option {
	return func(c *Client) { c.credential = token }
}

// WithReconnectDelay overrides the fixed delay before a reconnect attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithAutoReconnect toggles automatic reconnection on drop. On by default.
func WithAutoReconnect(enabled bool) Option {
	return func(c *Client) { c.autoReconnect = enabled }
}

// Client maintains one outbound connection at a time.
type Client struct {
	url            string
	logger         *slog.Logger
	reconnectDelay time.Duration
	autoReconnect  bool

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	credential     string
	closed         bool
	reconnectTimer *time.Timer

	handlersMu sync.RWMutex
	handlers   map[protocol.EventType][]handlerEntry
	nextID     int

	lastMu  sync.RWMutex
	lastEnv *protocol.Envelope
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		logger:         slog.Default(),
		reconnectDelay: defaultReconnectDelay,
		autoReconnect:  true,
		handlers:       make(map[protocol.EventType][]handlerEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "realtime_client"))
	return c
}

// Connect dials the server and starts the read loop. Idempotent: a no-op
// while already connecting or connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.logger.Warn("Dial failed", slog.Any("error", err))
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.scheduleReconnect()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client closed")
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()
	c.logger.Info("Connected", slog.String("url", c.url))

	go c.readLoop(conn)

	// replay the handshake on every (re)connect
	c.Authenticate()
	return nil
}

// Authenticate sends the authenticate envelope with the currently held
// credential. Safe to call with no credential (no-op); an attempt while
// already authenticated is rejected by the server with authFailure.
func (c *Client) Authenticate() {
	c.mu.Lock()
	token := c.credential
	c.mu.Unlock()
	if token == "" {
		return
	}
	c.Send(protocol.EventAuthenticate, protocol.AuthenticatePayload{Token: token})
}

// SetCredential stores the session token used by Authenticate.
func (c *Client) SetCredential(token string) {
	c.mu.Lock()
	c.credential = token
	c.mu.Unlock()
}

// Send emits one envelope to the server. It fails silently when not
// connected: callers must not assume delivery.
func (c *Client) Send(t protocol.EventType, payload any) {
	env, err := protocol.New(t, payload)
	if err != nil {
		c.logger.Error("Refusing to send invalid envelope", slog.String("event", string(t)), slog.Any("error", err))
		return
	}
	frame, err := env.Encode()
	if err != nil {
		c.logger.Error("Failed to encode envelope", slog.Any("error", err))
		return
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected || c.state == StateAuthenticated
	c.mu.Unlock()
	if !connected || conn == nil {
		c.logger.Debug("Dropping send while disconnected", slog.String("event", string(t)))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
		c.logger.Warn("Write failed", slog.String("event", string(t)), slog.Any("error", err))
	}
}

// On registers a handler for one event type, or for AllEvents. It returns
// the function that removes the registration.
func (c *Client) On(t protocol.EventType, h Handler) (off func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.nextID++
	id := c.nextID
	c.handlers[t] = append(c.handlers[t], handlerEntry{id: id, fn: h})

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		entries := c.handlers[t]
		for i, e := range entries {
			if e.id == id {
				c.handlers[t] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
	}
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastEnvelope returns the most recently received envelope, for
// introspection and debugging.
func (c *Client) LastEnvelope() (protocol.Envelope, bool) {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	if c.lastEnv == nil {
		return protocol.Envelope{}, false
	}
	return *c.lastEnv, true
}

// Close tears the client down for good: no further reconnects.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.Read(context.Background())
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			c.logger.Warn("Discarding undecodable envelope", slog.Any("error", err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	c.lastMu.Lock()
	c.lastEnv = &env
	c.lastMu.Unlock()

	if env.Type == protocol.EventAuthSuccess {
		c.mu.Lock()
		if c.state == StateConnected {
			c.state = StateAuthenticated
		}
		c.mu.Unlock()
	}

	c.handlersMu.RLock()
	entries := append([]handlerEntry(nil), c.handlers[env.Type]...)
	entries = append(entries, c.handlers[AllEvents]...)
	c.handlersMu.RUnlock()

	// typed and wildcard registrations interleave in registration order
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		e.fn(env)
	}
}

func (c *Client) handleDrop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	// a stale read loop from a previous connection must not reset state
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.logger.Warn("Connection dropped", slog.Any("error", err))
	c.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer exactly once per drop.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.autoReconnect || c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		defer cancel()
		c.Connect(ctx)
	})
}
