package persistence

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/algo-trading/tastytrade/internal/domain"
)

func TestAsyncWriterJournalsOrderEvents(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	w := NewAsyncWriter(store, nil, 16, logger)
	w.Run()

	id := uuid.New()
	w.WriteOrderEvent(orderEvent(id, domain.OrderStatusSubmitted))
	w.WriteStreamEvent(domain.BrokerageEvent{
		Kind: domain.EventConnect,
		Code: "StreamConnected",
		Time: time.Now(),
	})

	deadline := time.After(2 * time.Second)
	for {
		open, err := w.sqliteStore.OpenOrderIDs()
		if err != nil {
			t.Fatalf("open ids: %v", err)
		}
		if len(open) == 1 && open[0] == id.String() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("order event never journaled, open=%v", open)
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.Stop()
}

func TestStopDrainsBufferedOrderEvents(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	w := NewAsyncWriter(store, nil, 16, logger)
	w.Run()

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		w.WriteOrderEvent(orderEvent(ids[i], domain.OrderStatusSubmitted))
	}

	// Stop must not return until every buffered event is persisted.
	w.Stop()

	open, err := store.OpenOrderIDs()
	if err != nil {
		t.Fatalf("open ids: %v", err)
	}
	if len(open) != len(ids) {
		t.Fatalf("expected %d journaled orders after stop, got %d", len(ids), len(open))
	}
}

func TestWriteAfterStopDoesNotPanic(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	w := NewAsyncWriter(store, nil, 4, logger)
	w.Run()
	w.Stop()
	w.Stop()

	w.WriteOrderEvent(orderEvent(uuid.New(), domain.OrderStatusSubmitted))
	w.WriteStreamEvent(domain.BrokerageEvent{Kind: domain.EventWarning})
}

func TestAsyncWriterShedsStreamEventsWhenFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// No Run call, so the buffer fills and the overflow must be shed
	// without blocking the caller.
	w := NewAsyncWriter(nil, nil, 2, logger)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			w.WriteStreamEvent(domain.BrokerageEvent{Kind: domain.EventWarning})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream writes blocked on a full buffer")
	}
}
