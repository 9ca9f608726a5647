// Package realtime maintains the single logical WebSocket connection to the
// analysis backend.
//
// The channel owns reconnection: an unexpected close schedules a redial with
// exponential backoff (base×2^attempt, capped), the attempt counter resets
// to zero on every successful open, and the budget is abandoned after
// MaxReconnectAttempts with a terminal exhausted event. Close performs a
// normal-closure shutdown and disables auto-reconnect for good.
//
// Sends fail fast when the connection is not open; nothing is queued.
// Inbound frames are validated as JSON before delivery so a garbage frame
// becomes a parse-error event instead of a crash.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the logical connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateExhausted // reconnect budget spent; only Retry or Close apply
)

// String returns a short name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

// EventKind tags channel events delivered to the subscriber.
type EventKind int

const (
	EventOpen         EventKind = iota // connection established, handshake sent
	EventMessage                       // inbound JSON frame
	EventParseError                    // inbound frame was not valid JSON
	EventDisconnected                  // unexpected close, reconnect scheduled
	EventExhausted                     // reconnect budget spent
	EventClosed                        // normal shutdown
)

// Event is one channel occurrence. Payload is set for EventMessage; Err for
// EventParseError and EventDisconnected; Attempt and Delay describe the
// scheduled reconnect for EventDisconnected.
type Event struct {
	Kind    EventKind
	Payload []byte
	Err     error
	Attempt int
	Delay   time.Duration
}

// Config configures a Channel.
type Config struct {
	// URL is the backend WebSocket endpoint.
	URL string

	// Handshake builds the init message sent after every successful open.
	// Nil disables the handshake.
	Handshake func() ([]byte, error)

	// BaseDelay is the first reconnect delay. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Default: 30s.
	MaxDelay time.Duration

	// MaxReconnectAttempts bounds consecutive reconnects before the
	// channel gives up. Default: 5.
	MaxReconnectAttempts int

	// Dialer overrides the websocket dialer (for tests/proxies).
	Dialer *websocket.Dialer

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Channel is the reconnecting connection. One per page context; create a
// fresh one after teardown rather than reusing a closed instance.
type Channel struct {
	cfg Config

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	attempt  int
	lastErr  error
	closed   bool
	redialer *time.Timer
	dialCtx  context.Context

	events chan Event
}

// New creates a Channel. Call Connect to establish the connection.
func New(cfg Config) *Channel {
	cfg.defaults()
	return &Channel{
		cfg:    cfg,
		state:  StateIdle,
		events: make(chan Event, 64),
	}
}

// Events returns the subscriber channel. Single consumer; events are
// dropped with a warning if the consumer stalls.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// State returns the logical connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent transport error, if any.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect establishes the connection asynchronously. Idempotent: a call
// while Open or Connecting is a no-op. The eventual outcome arrives as an
// EventOpen or EventDisconnected on Events.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	switch c.state {
	case StateOpen, StateConnecting:
		return nil
	}
	c.state = StateConnecting
	c.dialCtx = ctx

	go c.dial(ctx)
	return nil
}

// Retry resets the reconnect budget and connects again. This is the manual
// affordance for the exhausted state.
func (c *Channel) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.attempt = 0
	if c.state == StateExhausted {
		c.state = StateIdle
	}
	c.mu.Unlock()

	return c.Connect(ctx)
}

// Send writes one text frame. It fails fast with ErrNotOpen when the
// connection is not open; nothing is queued.
func (c *Channel) Send(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

// SendBinary writes one binary frame (raw audio).
func (c *Channel) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Channel) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.conn == nil {
		return &ErrNotOpen{State: c.state}
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.lastErr = err
		return err
	}
	return nil
}

// Close performs a normal-closure shutdown and disables auto-reconnect.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosing
	if c.redialer != nil {
		c.redialer.Stop()
		c.redialer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	c.emit(Event{Kind: EventClosed})
	return nil
}

func (c *Channel) dial(ctx context.Context) {
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.cfg.Logger.Warn("realtime: dial failed", "url", c.cfg.URL, "error", err)
		c.disconnected(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	c.lastErr = nil

	var handshakeErr error
	if c.cfg.Handshake != nil {
		msg, err := c.cfg.Handshake()
		if err == nil {
			handshakeErr = conn.WriteMessage(websocket.TextMessage, msg)
		} else {
			handshakeErr = err
		}
	}
	c.mu.Unlock()

	if handshakeErr != nil {
		c.cfg.Logger.Warn("realtime: handshake failed", "error", handshakeErr)
	}
	c.cfg.Logger.Info("realtime: connected", "url", c.cfg.URL)
	c.emit(Event{Kind: EventOpen})

	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.conn != conn
			closed := c.closed
			c.mu.Unlock()
			if stale || closed {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.mu.Lock()
				c.conn = nil
				c.state = StateClosed
				c.mu.Unlock()
				c.emit(Event{Kind: EventClosed})
				return
			}
			c.disconnected(err)
			return
		}

		if !json.Valid(data) {
			c.emit(Event{Kind: EventParseError, Err: &ErrParse{Size: len(data)}})
			continue
		}
		c.emit(Event{Kind: EventMessage, Payload: data})
	}
}

// disconnected handles an abnormal close or dial failure: schedule a
// backoff redial, or give up once the budget is spent.
func (c *Channel) disconnected(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.lastErr = cause

	if c.attempt >= c.cfg.MaxReconnectAttempts {
		c.state = StateExhausted
		c.mu.Unlock()
		c.cfg.Logger.Error("realtime: reconnect budget exhausted",
			"attempts", c.cfg.MaxReconnectAttempts, "error", cause)
		c.emit(Event{Kind: EventExhausted, Err: cause})
		return
	}

	delay := c.cfg.BaseDelay << uint(c.attempt)
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	attempt := c.attempt
	c.attempt++
	c.state = StateConnecting
	ctx := c.dialCtx
	c.redialer = time.AfterFunc(delay, func() { c.dial(ctx) })
	c.mu.Unlock()

	c.cfg.Logger.Warn("realtime: disconnected, reconnecting",
		"attempt", attempt+1, "delay", delay, "error", cause)
	c.emit(Event{Kind: EventDisconnected, Err: cause, Attempt: attempt, Delay: delay})
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.cfg.Logger.Warn("realtime: event buffer full, dropping", "kind", ev.Kind)
	}
}
