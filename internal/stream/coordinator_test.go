package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/algo-trading/tastytrade/internal/domain"
	"github.com/algo-trading/tastytrade/internal/symbols"
)

type fakeTokens struct {
	wsURL string

	mu        sync.Mutex
	calls     int
	failAfter int // fail once calls exceeds this; 0 disables
}

func (f *fakeTokens) StreamToken(_ context.Context) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return "", "", errors.New("token endpoint unavailable")
	}
	return f.wsURL, "quote-token", nil
}

func (f *fakeTokens) SessionToken() string { return "session-token" }

type captureSink struct {
	mu    sync.Mutex
	ticks []domain.Tick
	ch    chan domain.Tick
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan domain.Tick, 64)}
}

func (s *captureSink) Push(tick domain.Tick) {
	s.mu.Lock()
	s.ticks = append(s.ticks, tick)
	s.mu.Unlock()
	select {
	case s.ch <- tick:
	default:
	}
}

type captureNotifier struct {
	mu     sync.Mutex
	events []domain.BrokerageEvent
	ch     chan domain.BrokerageEvent
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{ch: make(chan domain.BrokerageEvent, 64)}
}

func (n *captureNotifier) Notify(ev domain.BrokerageEvent) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	select {
	case n.ch <- ev:
	default:
	}
}

func (n *captureNotifier) waitFor(t *testing.T, code string, timeout time.Duration) domain.BrokerageEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-n.ch:
			if ev.Code == code {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s notification", code)
			return domain.BrokerageEvent{}
		}
	}
}

type countRecorder struct {
	delivered  atomic.Int64
	decodeErrs atomic.Int64
	misses     atomic.Int64
	reconnects atomic.Int64
	exhausted  atomic.Int64
	active     atomic.Int64
}

func (r *countRecorder) TickDelivered(string)      { r.delivered.Add(1) }
func (r *countRecorder) DecodeError()              { r.decodeErrs.Add(1) }
func (r *countRecorder) RegistryMiss()             { r.misses.Add(1) }
func (r *countRecorder) Reconnect()                { r.reconnects.Add(1) }
func (r *countRecorder) ReconnectExhausted()       { r.exhausted.Add(1) }
func (r *countRecorder) ActiveSubscriptions(n int) { r.active.Store(int64(n)) }

// streamServer upgrades every request, consumes the auth frame and hands
// the socket to onConn with a 1-based connection ordinal.
func streamServer(t *testing.T, onConn func(ws *websocket.Conn, ordinal int64)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var upgrades atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		// Count at upgrade time: the client's dial has returned by now,
		// but the auth frame may not have been read yet.
		ordinal := upgrades.Add(1)

		var auth authFrame
		if err := ws.ReadJSON(&auth); err != nil {
			return
		}
		onConn(ws, ordinal)
	}))
	t.Cleanup(srv.Close)
	return srv, &upgrades
}

func testCoordinator(t *testing.T, tokens *fakeTokens, sink TickSink, notifier Notifier, recorder Recorder, maxAttempts int) *Coordinator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	coord := NewCoordinator(
		CoordinatorConfig{
			MaxReconnectAttempts: maxAttempts,
			ReconnectBase:        5 * time.Millisecond,
			ReconnectMax:         50 * time.Millisecond,
			HandshakeTimeout:     2 * time.Second,
			CloseTimeout:         time.Second,
			SerializePush:        true,
		},
		tokens,
		symbols.NewMapper(),
		sink,
		notifier,
		recorder,
		logger,
	)
	t.Cleanup(coord.Close)
	return coord
}

func TestCoordinatorSubscribeAndReceive(t *testing.T) {
	srv, _ := streamServer(t, func(ws *websocket.Conn, _ int64) {
		ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"bid-price":100.10,"bid-size":200,"ask-price":100.15,"ask-size":300}`))
		ws.ReadMessage()
	})

	tokens := &fakeTokens{wsURL: wsURL(srv)}
	sink := newCaptureSink()
	notifier := newCaptureNotifier()
	recorder := &countRecorder{}
	coord := testCoordinator(t, tokens, sink, notifier, recorder, 3)

	if !coord.Subscribe(domain.NewEquity("AAPL")) {
		t.Fatal("subscribe failed")
	}

	select {
	case tick := <-sink.ch:
		if tick.Symbol.Ticker != "AAPL" {
			t.Errorf("expected AAPL tick, got %s", tick.Symbol.Ticker)
		}
		if tick.Type != domain.TickQuote {
			t.Errorf("expected quote tick, got %s", tick.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered")
	}

	if recorder.delivered.Load() == 0 {
		t.Error("expected delivered ticks recorded")
	}
	if recorder.active.Load() != 1 {
		t.Errorf("expected 1 active subscription recorded, got %d", recorder.active.Load())
	}
}

func TestCoordinatorIdempotentSubscribe(t *testing.T) {
	srv, upgrades := streamServer(t, func(ws *websocket.Conn, _ int64) {
		ws.ReadMessage()
	})

	tokens := &fakeTokens{wsURL: wsURL(srv)}
	coord := testCoordinator(t, tokens, newCaptureSink(), newCaptureNotifier(), nil, 3)

	symbol := domain.NewEquity("SPY")
	if !coord.Subscribe(symbol) {
		t.Fatal("first subscribe failed")
	}
	if !coord.Subscribe(symbol) {
		t.Error("re-subscribe should succeed as a no-op")
	}

	if got := upgrades.Load(); got != 1 {
		t.Errorf("expected a single connection, got %d", got)
	}
	if got := len(coord.Subscriptions()); got != 1 {
		t.Errorf("expected 1 subscription, got %d", got)
	}
}

func TestCoordinatorUnsubscribe(t *testing.T) {
	srv, _ := streamServer(t, func(ws *websocket.Conn, _ int64) {
		ws.ReadMessage()
	})

	tokens := &fakeTokens{wsURL: wsURL(srv)}
	coord := testCoordinator(t, tokens, newCaptureSink(), newCaptureNotifier(), nil, 3)

	symbol := domain.NewEquity("QQQ")
	if !coord.Subscribe(symbol) {
		t.Fatal("subscribe failed")
	}
	if !coord.Unsubscribe(symbol) {
		t.Error("unsubscribe should succeed")
	}
	if got := len(coord.Subscriptions()); got != 0 {
		t.Errorf("expected no subscriptions, got %d", got)
	}

	// A second unsubscribe of the same symbol is a clean no-op.
	if !coord.Unsubscribe(symbol) {
		t.Error("unsubscribing an unknown symbol should still succeed")
	}
}

func TestCoordinatorSubscribeFailureRollsBack(t *testing.T) {
	tokens := &fakeTokens{wsURL: "ws://127.0.0.1:1"}
	coord := testCoordinator(t, tokens, newCaptureSink(), newCaptureNotifier(), nil, 3)

	if coord.Subscribe(domain.NewEquity("FAIL")) {
		t.Fatal("subscribe should fail when the endpoint is unreachable")
	}
	if got := len(coord.Subscriptions()); got != 0 {
		t.Errorf("expected no partial registration, got %d subscriptions", got)
	}
}

func TestCoordinatorReconnect(t *testing.T) {
	srv, upgrades := streamServer(t, func(ws *websocket.Conn, ordinal int64) {
		if ordinal == 1 {
			// Drop the first connection without a close handshake.
			return
		}
		ws.ReadMessage()
	})

	tokens := &fakeTokens{wsURL: wsURL(srv)}
	notifier := newCaptureNotifier()
	recorder := &countRecorder{}
	coord := testCoordinator(t, tokens, newCaptureSink(), notifier, recorder, 3)

	if !coord.Subscribe(domain.NewEquity("IWM")) {
		t.Fatal("subscribe failed")
	}

	notifier.waitFor(t, "StreamDisconnected", 2*time.Second)
	notifier.waitFor(t, "StreamReconnected", 2*time.Second)

	if got := upgrades.Load(); got < 2 {
		t.Errorf("expected a reconnection, got %d connections", got)
	}
	if recorder.reconnects.Load() == 0 {
		t.Error("expected reconnect recorded")
	}
	if got := len(coord.Subscriptions()); got != 1 {
		t.Errorf("subscription should survive a reconnect, got %d", got)
	}
}

func TestCoordinatorReconnectExhausted(t *testing.T) {
	srv, _ := streamServer(t, func(ws *websocket.Conn, _ int64) {
		// Drop every connection immediately.
	})

	// Token fetches fail after the first connection, so every reconnect
	// attempt burns an attempt without an intervening success.
	tokens := &fakeTokens{wsURL: wsURL(srv), failAfter: 1}
	notifier := newCaptureNotifier()
	recorder := &countRecorder{}
	coord := testCoordinator(t, tokens, newCaptureSink(), notifier, recorder, 2)

	if !coord.Subscribe(domain.NewEquity("XLF")) {
		t.Fatal("subscribe failed")
	}

	notifier.waitFor(t, "ReconnectExhausted", 5*time.Second)

	if recorder.exhausted.Load() == 0 {
		t.Error("expected exhaustion recorded")
	}
	if got := len(coord.Subscriptions()); got != 0 {
		t.Errorf("expected subscription dropped after giving up, got %d", got)
	}
}

func TestCoordinatorAuthRejectionIsTerminal(t *testing.T) {
	srv, upgrades := streamServer(t, func(ws *websocket.Conn, _ int64) {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad credentials"),
			time.Now().Add(time.Second))
		ws.ReadMessage()
	})

	tokens := &fakeTokens{wsURL: wsURL(srv)}
	notifier := newCaptureNotifier()
	coord := testCoordinator(t, tokens, newCaptureSink(), notifier, nil, 5)

	if !coord.Subscribe(domain.NewEquity("VTI")) {
		t.Fatal("subscribe failed")
	}

	notifier.waitFor(t, "StreamAuthRejected", 2*time.Second)

	if got := len(coord.Subscriptions()); got != 0 {
		t.Errorf("expected subscription dropped on auth rejection, got %d", got)
	}

	// Terminal: no reconnect attempt may follow.
	time.Sleep(100 * time.Millisecond)
	if got := upgrades.Load(); got != 1 {
		t.Errorf("expected no retry after auth rejection, got %d connections", got)
	}
}

func TestCoordinatorDropsUndecodable(t *testing.T) {
	srv, _ := streamServer(t, func(ws *websocket.Conn, _ int64) {
		ws.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"price":5.0,"size":10}`))
		ws.ReadMessage()
	})

	tokens := &fakeTokens{wsURL: wsURL(srv)}
	sink := newCaptureSink()
	recorder := &countRecorder{}
	coord := testCoordinator(t, tokens, sink, newCaptureNotifier(), recorder, 3)

	if !coord.Subscribe(domain.NewEquity("DIA")) {
		t.Fatal("subscribe failed")
	}

	select {
	case tick := <-sink.ch:
		if tick.Type != domain.TickTrade {
			t.Errorf("expected the trade after the bad frame, got %s", tick.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("good tick should survive a preceding bad frame")
	}

	if recorder.decodeErrs.Load() != 1 {
		t.Errorf("expected 1 decode error recorded, got %d", recorder.decodeErrs.Load())
	}
}
