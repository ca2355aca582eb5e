package persistence

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/algo-trading/tastytrade/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func orderEvent(id uuid.UUID, status domain.OrderStatus) domain.OrderEvent {
	return domain.OrderEvent{
		Order: domain.Order{
			InternalID: id,
			VenueID:    "555",
			Symbol:     domain.NewEquity("AAPL"),
			OrderType:  domain.OrderTypeLimit,
			Quantity:   decimal.NewFromInt(10),
		},
		Status: status,
		Time:   time.Now(),
	}
}

func TestWriteAndReadOrderEvents(t *testing.T) {
	store := testStore(t)
	id := uuid.New()

	if err := store.WriteOrderEvent(orderEvent(id, domain.OrderStatusSubmitted)); err != nil {
		t.Fatalf("write: %v", err)
	}

	open, err := store.OpenOrderIDs()
	if err != nil {
		t.Fatalf("open ids: %v", err)
	}
	if len(open) != 1 || open[0] != id.String() {
		t.Errorf("expected %s open, got %v", id, open)
	}
}

func TestOpenOrderIDsUsesLatestStatus(t *testing.T) {
	store := testStore(t)

	filled := uuid.New()
	stillOpen := uuid.New()

	for _, ev := range []domain.OrderEvent{
		orderEvent(filled, domain.OrderStatusSubmitted),
		orderEvent(filled, domain.OrderStatusFilled),
		orderEvent(stillOpen, domain.OrderStatusSubmitted),
		orderEvent(stillOpen, domain.OrderStatusPartialFill),
	} {
		if err := store.WriteOrderEvent(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	open, err := store.OpenOrderIDs()
	if err != nil {
		t.Fatalf("open ids: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open order, got %v", open)
	}
	if open[0] != stillOpen.String() {
		t.Errorf("expected %s, got %s", stillOpen, open[0])
	}
}

func TestOpenOrderIDsEmptyJournal(t *testing.T) {
	store := testStore(t)
	open, err := store.OpenOrderIDs()
	if err != nil {
		t.Fatalf("open ids: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected no open orders, got %v", open)
	}
}

func TestWriteStreamEvent(t *testing.T) {
	store := testStore(t)
	err := store.WriteStreamEvent(domain.BrokerageEvent{
		Kind:    domain.EventReconnect,
		Code:    "StreamReconnected",
		Message: "conn 3 restored",
		Time:    time.Now(),
	})
	if err != nil {
		t.Fatalf("write stream event: %v", err)
	}
}

func TestCleanupOldEvents(t *testing.T) {
	store := testStore(t)

	if err := store.WriteOrderEvent(orderEvent(uuid.New(), domain.OrderStatusSubmitted)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A negative max age makes everything older than the cutoff.
	if err := store.CleanupOldEvents(-time.Hour); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	open, err := store.OpenOrderIDs()
	if err != nil {
		t.Fatalf("open ids: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected journal emptied, got %v", open)
	}
}
