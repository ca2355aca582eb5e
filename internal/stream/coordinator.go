package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
)

// TokenSource is the REST boundary the coordinator needs: a fresh streaming
// endpoint + token pair, and the session credential sent in the auth frame.
type TokenSource interface {
	StreamToken(ctx context.Context) (wsURL, token string, err error)
	SessionToken() string
}

// SymbolMapper resolves canonical symbols to the venue's form. Pure.
type SymbolMapper interface {
	ToBrokerageSymbol(symbol domain.Symbol) (string, error)
	ExchangeTimeZone(symbol domain.Symbol) *time.Location
}

// TickSink consumes normalized ticks. Pushes may arrive concurrently from
// multiple connections unless SerializePush is set.
type TickSink interface {
	Push(tick domain.Tick)
}

// Notifier receives fire-and-forget lifecycle notifications for the engine.
type Notifier interface {
	Notify(event domain.BrokerageEvent)
}

// Recorder is the optional metrics hook; a nil Recorder disables recording.
type Recorder interface {
	TickDelivered(tickType string)
	DecodeError()
	RegistryMiss()
	Reconnect()
	ReconnectExhausted()
	ActiveSubscriptions(n int)
}

type CoordinatorConfig struct {
	MaxReconnectAttempts int
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
	HandshakeTimeout     time.Duration
	CloseTimeout         time.Duration
	// SerializePush wraps sink pushes in a single lock for sinks that do
	// not tolerate concurrent callers.
	SerializePush bool
}

type managedConn struct {
	symbol      domain.Symbol
	venueSymbol string
	conn        *Conn
}

// Coordinator is the subsystem root: it owns one streaming connection per
// subscribed symbol, funnels decoded ticks into the sink, and recovers
// dropped connections through the reconnect policy.
type Coordinator struct {
	cfg      CoordinatorConfig
	tokens   TokenSource
	mapper   SymbolMapper
	sink     TickSink
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger

	registry *Registry
	policy   *ReconnectPolicy

	mu      sync.Mutex
	conns   map[string]*managedConn // canonical symbol key
	pending map[string]struct{}     // dial in flight, lock not held
	closed  bool

	pushMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(
	cfg CoordinatorConfig,
	tokens TokenSource,
	mapper SymbolMapper,
	sink TickSink,
	notifier Notifier,
	recorder Recorder,
	logger *slog.Logger,
) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:      cfg,
		tokens:   tokens,
		mapper:   mapper,
		sink:     sink,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		registry: NewRegistry(),
		policy:   NewReconnectPolicy(cfg.MaxReconnectAttempts, cfg.ReconnectBase, cfg.ReconnectMax),
		conns:    make(map[string]*managedConn),
		pending:  make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe starts live data for a symbol. Subscribing an already-live
// symbol is a no-op returning true. On any failure before the connection
// reaches Open, all partial state is rolled back and false is returned.
func (c *Coordinator) Subscribe(symbol domain.Symbol) bool {
	key := symbol.Key()

	venueSymbol, err := c.mapper.ToBrokerageSymbol(symbol)
	if err != nil {
		c.logger.Error("cannot resolve venue symbol", "symbol", key, "error", err)
		return false
	}
	tz := c.mapper.ExchangeTimeZone(symbol)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if _, live := c.conns[key]; live {
		c.mu.Unlock()
		return true
	}
	if _, inFlight := c.pending[key]; inFlight {
		c.mu.Unlock()
		return true
	}
	c.pending[key] = struct{}{}
	c.registry.Add(symbol, venueSymbol, tz, []domain.TickType{domain.TickTrade, domain.TickQuote})
	c.mu.Unlock()

	// Dial without holding the lock so other symbols subscribe in parallel.
	mc, err := c.openConn(symbol, venueSymbol)

	c.mu.Lock()
	delete(c.pending, key)
	if err != nil {
		c.registry.Remove(symbol)
		c.policy.Forget(key)
		c.mu.Unlock()
		c.logger.Error("subscribe failed", "symbol", key, "error", err)
		return false
	}
	if _, still := c.registry.Get(symbol); !still || c.closed {
		// Unsubscribed (or shut down) while the dial was in flight.
		c.mu.Unlock()
		mc.conn.Close()
		return false
	}
	c.conns[key] = mc
	c.policy.OnSuccess(key)
	c.recordActive()
	c.mu.Unlock()

	c.notify(domain.EventConnect, "Subscribe", fmt.Sprintf("streaming %s", venueSymbol))
	return true
}

// Unsubscribe tears down the symbol's connection and registry entry. Socket
// close errors are logged, never propagated: registry state is cleared
// unconditionally and shutdown is not blocked by a misbehaving socket.
func (c *Coordinator) Unsubscribe(symbol domain.Symbol) bool {
	key := symbol.Key()

	c.mu.Lock()
	mc := c.conns[key]
	delete(c.conns, key)
	c.registry.Remove(symbol)
	c.policy.Forget(key)
	c.recordActive()
	c.mu.Unlock()

	if mc != nil {
		if err := mc.conn.Close(); err != nil {
			c.logger.Warn("error closing stream connection",
				"symbol", key, "error", err)
		}
	}
	return true
}

// Subscriptions reports the currently subscribed canonical symbols.
func (c *Coordinator) Subscriptions() []domain.Symbol {
	return c.registry.Symbols()
}

// Close tears down every connection and stops reconnect scheduling. Safe to
// call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conns := make([]*managedConn, 0, len(c.conns))
	for _, mc := range c.conns {
		conns = append(conns, mc)
	}
	c.conns = make(map[string]*managedConn)
	c.mu.Unlock()

	c.cancel()
	for _, mc := range conns {
		c.registry.Remove(mc.symbol)
		if err := mc.conn.Close(); err != nil {
			c.logger.Warn("error closing stream connection on shutdown",
				"symbol", mc.symbol.Key(), "error", err)
		}
	}
	c.wg.Wait()
}

// openConn fetches a fresh endpoint token, dials, and wires the receive
// path. Called without c.mu held.
func (c *Coordinator) openConn(symbol domain.Symbol, venueSymbol string) (*managedConn, error) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	wsURL, token, err := c.tokens.StreamToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch stream token: %w", err)
	}

	conn := NewConn(ConnConfig{
		ID:               symbol.Key(),
		URL:              streamURL(wsURL, venueSymbol, token),
		AuthToken:        c.tokens.SessionToken(),
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		CloseTimeout:     c.cfg.CloseTimeout,
		OnMessage:        func(raw []byte) { c.dispatch(venueSymbol, raw) },
		Logger:           c.logger,
	})

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	mc := &managedConn{symbol: symbol, venueSymbol: venueSymbol, conn: conn}
	c.wg.Add(1)
	go c.drainEvents(mc)
	return mc, nil
}

func streamURL(wsURL, venueSymbol, token string) string {
	return fmt.Sprintf("%s/stream/%s?token=%s",
		wsURL, url.PathEscape(venueSymbol), url.QueryEscape(token))
}

// dispatch runs on a connection's receive goroutine: registry lookup for
// liveness, decode, push. Ordering per symbol is preserved because the
// receive loop calls dispatch synchronously.
func (c *Coordinator) dispatch(venueSymbol string, raw []byte) {
	sub, ok := c.registry.Lookup(venueSymbol)
	if !ok {
		// Expected when a message was in flight across an unsubscribe.
		if c.recorder != nil {
			c.recorder.RegistryMiss()
		}
		return
	}

	tick, err := Decode(raw, sub)
	if err != nil {
		c.logger.Warn("discarding undecodable message",
			"venue_symbol", venueSymbol, "error", err)
		if c.recorder != nil {
			c.recorder.DecodeError()
		}
		return
	}

	if c.cfg.SerializePush {
		c.pushMu.Lock()
		c.sink.Push(tick)
		c.pushMu.Unlock()
	} else {
		c.sink.Push(tick)
	}
	if c.recorder != nil {
		c.recorder.TickDelivered(string(tick.Type))
	}
}

func (c *Coordinator) drainEvents(mc *managedConn) {
	defer c.wg.Done()
	for ev := range mc.conn.Events() {
		switch ev.Kind {
		case EventOpened, EventClosed:
			// Opened is handled on the Subscribe path; Closed follows an
			// owner-initiated teardown and needs no action.
		case EventDisconnected:
			c.handleDisconnect(mc, ev.Err)
			return
		}
	}
}

func (c *Coordinator) handleDisconnect(mc *managedConn, cause error) {
	key := mc.symbol.Key()

	// A rejected credential cannot succeed on retry.
	if errors.Is(cause, ErrAuthRejected) {
		c.logger.Error("stream authentication rejected", "symbol", key, "error", cause)
		c.dropSubscription(mc)
		c.notify(domain.EventError, "StreamAuthRejected",
			fmt.Sprintf("streaming auth rejected for %s: %v", mc.venueSymbol, cause))
		return
	}

	action := c.policy.OnFailure(key)
	if !action.Retry {
		c.logger.Error("reconnect attempts exhausted",
			"symbol", key, "attempts", action.Attempt, "error", cause)
		if c.recorder != nil {
			c.recorder.ReconnectExhausted()
		}
		c.dropSubscription(mc)
		c.notify(domain.EventError, "ReconnectExhausted",
			fmt.Sprintf("lost stream for %s after %d attempts: %v", mc.venueSymbol, action.Attempt, cause))
		return
	}

	c.logger.Warn("stream disconnected, scheduling reconnect",
		"symbol", key, "attempt", action.Attempt, "delay", action.Delay, "error", cause)
	if c.recorder != nil {
		c.recorder.Reconnect()
	}
	c.notify(domain.EventDisconnect, "StreamDisconnected",
		fmt.Sprintf("stream for %s dropped, retrying in %s", mc.venueSymbol, action.Delay))

	timer := time.NewTimer(action.Delay)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer timer.Stop()
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
			c.reconnect(mc)
		}
	}()
}

// reconnect re-runs the connect steps for a still-subscribed symbol; the
// caller never needs to resubscribe.
func (c *Coordinator) reconnect(mc *managedConn) {
	key := mc.symbol.Key()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, still := c.registry.Get(mc.symbol); !still {
		c.mu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	fresh, err := c.openConn(mc.symbol, mc.venueSymbol)

	c.mu.Lock()
	delete(c.pending, key)
	if c.closed {
		c.mu.Unlock()
		if fresh != nil {
			fresh.conn.Close()
		}
		return
	}
	if _, still := c.registry.Get(mc.symbol); !still {
		c.mu.Unlock()
		if fresh != nil {
			fresh.conn.Close()
		}
		return
	}
	if err == nil {
		c.conns[key] = fresh
		c.policy.OnSuccess(key)
		c.mu.Unlock()
		c.logger.Info("stream reconnected", "symbol", key)
		c.notify(domain.EventReconnect, "StreamReconnected",
			fmt.Sprintf("stream for %s restored", mc.venueSymbol))
		return
	}
	c.mu.Unlock()

	// A failed reconnect counts as another failure against the same cap.
	c.handleDisconnect(mc, err)
}

func (c *Coordinator) dropSubscription(mc *managedConn) {
	key := mc.symbol.Key()
	c.mu.Lock()
	if current, ok := c.conns[key]; ok && current == mc {
		delete(c.conns, key)
	}
	c.registry.Remove(mc.symbol)
	c.policy.Forget(key)
	c.recordActive()
	c.mu.Unlock()
	mc.conn.Close()
}

func (c *Coordinator) notify(kind domain.BrokerageEventKind, code, message string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(domain.BrokerageEvent{
		Kind:    kind,
		Code:    code,
		Message: message,
		Time:    time.Now().UTC(),
	})
}

// recordActive reports subscription count; caller holds c.mu.
func (c *Coordinator) recordActive() {
	if c.recorder != nil {
		c.recorder.ActiveSubscriptions(len(c.conns))
	}
}
