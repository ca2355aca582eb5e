package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = errors.New("stream: not connected")
	ErrAuthRejected = errors.New("stream: authentication rejected")
)

type EventKind int

const (
	// EventOpened fires once the transport is open and the auth frame sent.
	EventOpened EventKind = iota
	// EventDisconnected fires on any closure the owner did not initiate.
	EventDisconnected
	// EventClosed fires after an owner-initiated Close completes.
	EventClosed
)

// Event is a connection lifecycle notification. The owner drains Events();
// the receive loop never propagates failures any other way.
type Event struct {
	Kind EventKind
	Err  error
}

type authFrame struct {
	Action        string `json:"action"`
	Authorization string `json:"authorization"`
}

// Conn owns one physical streaming socket: dial, authenticate, receive
// loop, close. Incoming messages are handed to onMessage from the receive
// goroutine; lifecycle changes are emitted on the events channel.
type Conn struct {
	id        string
	url       string
	authToken string

	handshakeTimeout time.Duration
	closeTimeout     time.Duration

	state   atomic.Int32
	writeMu sync.Mutex
	ws      *websocket.Conn

	events    chan Event
	closeOnce sync.Once
	onMessage func([]byte)
	logger    *slog.Logger
}

type ConnConfig struct {
	ID               string
	URL              string
	AuthToken        string
	HandshakeTimeout time.Duration
	CloseTimeout     time.Duration
	OnMessage        func([]byte)
	Logger           *slog.Logger
}

func NewConn(cfg ConnConfig) *Conn {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	return &Conn{
		id:               cfg.ID,
		url:              cfg.URL,
		authToken:        cfg.AuthToken,
		handshakeTimeout: cfg.HandshakeTimeout,
		closeTimeout:     cfg.CloseTimeout,
		events:           make(chan Event, 8),
		onMessage:        cfg.OnMessage,
		logger:           cfg.Logger,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() State { return State(c.state.Load()) }

// Events returns the lifecycle channel. It is closed when the connection
// reaches a terminal state.
func (c *Conn) Events() <-chan Event { return c.events }

// Connect dials the endpoint, sends the authentication frame and starts the
// receive loop. It returns once the connection is Open; it never blocks on
// the receive loop. Any failure before Open transitions to Failed and is
// returned to the caller.
func (c *Conn) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("stream: connect in state %s", c.State())
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.state.Store(int32(StateFailed))
		return fmt.Errorf("stream: dial %s: %w", c.url, err)
	}

	c.state.Store(int32(StateAuthenticating))
	ws.SetWriteDeadline(time.Now().Add(c.handshakeTimeout))
	if err := ws.WriteJSON(authFrame{Action: "auth", Authorization: c.authToken}); err != nil {
		c.state.Store(int32(StateFailed))
		ws.Close()
		return fmt.Errorf("stream: send auth frame: %w", err)
	}
	ws.SetWriteDeadline(time.Time{})

	c.ws = ws
	c.state.Store(int32(StateOpen))
	c.emit(Event{Kind: EventOpened})

	go c.readLoop()
	return nil
}

// Send writes one text frame. Valid only while Open.
func (c *Conn) Send(payload []byte) error {
	if c.State() != StateOpen {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.closeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// readLoop runs on its own goroutine for the lifetime of Open. ReadMessage
// reassembles fragmented frames into whole messages before returning.
func (c *Conn) readLoop() {
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

func (c *Conn) handleReadError(err error) {
	// An owner-initiated Close unblocks the read with an error; that path
	// already emitted EventClosed.
	if s := c.State(); s == StateClosing || s == StateClosed {
		return
	}

	if isAuthRejection(err) {
		err = fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}

	c.state.Store(int32(StateFailed))
	c.ws.Close()
	c.emit(Event{Kind: EventDisconnected, Err: err})
	c.closeOnce.Do(func() { close(c.events) })
}

// The venue rejects a bad credential by closing the socket with a policy
// violation close code instead of answering the auth frame.
func isAuthRejection(err error) bool {
	return websocket.IsCloseError(err, websocket.ClosePolicyViolation)
}

// Close is idempotent and always leaves the connection in Closed, releasing
// the transport. It attempts a clean close handshake bounded by the close
// timeout and force-closes on expiry.
func (c *Conn) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosing)))

		if c.ws != nil && prev == StateOpen {
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(c.closeTimeout))
			closeErr = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe"))
			c.writeMu.Unlock()
		}
		if c.ws != nil {
			if err := c.ws.Close(); closeErr == nil {
				closeErr = err
			}
		}

		c.state.Store(int32(StateClosed))
		c.emit(Event{Kind: EventClosed})
		close(c.events)
	})
	c.state.Store(int32(StateClosed))
	return closeErr
}

// emit never blocks the receive loop. The buffer is ample for the handful
// of lifecycle events a connection produces; an undrained channel means the
// owner is gone and the event is dropped.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		if c.logger != nil {
			c.logger.Warn("lifecycle event dropped, owner not draining",
				"conn", c.id, "kind", ev.Kind)
		}
	}
}
