package persistence

import (
	"context"
	"log/slog"
	"sync"

	"github.com/algo-trading/tastytrade/internal/domain"
)

type WriteRequest struct {
	OrderEvent  *domain.OrderEvent
	StreamEvent *domain.BrokerageEvent
}

// AsyncWriter journals events off the hot path. Order events go through a
// dedicated channel with blocking sends so they are never dropped; stream
// connection events are best-effort and get shed under backpressure.
// Stop drains both channels before returning.
type AsyncWriter struct {
	streamCh      chan WriteRequest
	orderCh       chan WriteRequest
	sqliteStore   *SQLiteStore
	postgresStore *PostgresStore
	logger        *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewAsyncWriter(
	sqliteStore *SQLiteStore,
	postgresStore *PostgresStore,
	bufferSize int,
	logger *slog.Logger,
) *AsyncWriter {
	return &AsyncWriter{
		streamCh:      make(chan WriteRequest, bufferSize),
		orderCh:       make(chan WriteRequest, 100),
		sqliteStore:   sqliteStore,
		postgresStore: postgresStore,
		logger:        logger,
	}
}

func (w *AsyncWriter) WriteOrderEvent(ev domain.OrderEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.logger.Error("writer stopped, order event not journaled",
			"order", ev.Order.InternalID)
		return
	}
	w.orderCh <- WriteRequest{OrderEvent: &ev}
}

func (w *AsyncWriter) WriteStreamEvent(ev domain.BrokerageEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.streamCh <- WriteRequest{StreamEvent: &ev}:
	default:
		w.logger.Warn("write channel full, dropping stream event",
			"kind", string(ev.Kind), "code", ev.Code)
	}
}

func (w *AsyncWriter) Run() {
	w.wg.Add(2)
	go w.process(w.orderCh)
	go w.process(w.streamCh)
}

func (w *AsyncWriter) process(ch chan WriteRequest) {
	defer w.wg.Done()
	for req := range ch {
		w.handleWrite(req)
	}
}

func (w *AsyncWriter) handleWrite(req WriteRequest) {
	ctx := context.Background()

	switch {
	case req.OrderEvent != nil:
		if w.sqliteStore != nil {
			if err := w.sqliteStore.WriteOrderEvent(*req.OrderEvent); err != nil {
				w.logger.Error("failed to journal order event", "error", err)
			}
		}
		if err := w.postgresStore.WriteOrderEvent(ctx, *req.OrderEvent); err != nil {
			w.logger.Error("failed to archive order event", "error", err)
		}
	case req.StreamEvent != nil:
		if w.sqliteStore != nil {
			if err := w.sqliteStore.WriteStreamEvent(*req.StreamEvent); err != nil {
				w.logger.Error("failed to journal stream event", "error", err)
			}
		}
		if err := w.postgresStore.WriteStreamEvent(ctx, *req.StreamEvent); err != nil {
			w.logger.Error("failed to archive stream event", "error", err)
		}
	}
}

// Stop rejects further writes, lets both process loops drain whatever is
// buffered, and returns once the last event is persisted. Idempotent.
func (w *AsyncWriter) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.orderCh)
	close(w.streamCh)
	w.wg.Wait()
}
