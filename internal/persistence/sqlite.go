package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/algo-trading/tastytrade/internal/domain"
)

// SQLiteStore is the local journal. Order lifecycle events and stream
// connection events land here so a restart can reconstruct what the adapter
// was doing when it went down.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS order_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			internal_id TEXT NOT NULL,
			venue_id TEXT,
			symbol TEXT NOT NULL,
			order_type TEXT NOT NULL,
			quantity TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			event_time TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS stream_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			code TEXT,
			message TEXT,
			event_time TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) WriteOrderEvent(ev domain.OrderEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO order_events
			(internal_id, venue_id, symbol, order_type, quantity, status, message, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Order.InternalID.String(),
		ev.Order.VenueID,
		ev.Order.Symbol.Key(),
		string(ev.Order.OrderType),
		ev.Order.Quantity.String(),
		string(ev.Status),
		ev.Message,
		ev.Time,
	)
	return err
}

func (s *SQLiteStore) WriteStreamEvent(ev domain.BrokerageEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO stream_events (kind, code, message, event_time)
		VALUES (?, ?, ?, ?)`,
		string(ev.Kind),
		ev.Code,
		ev.Message,
		ev.Time,
	)
	return err
}

// OpenOrderIDs returns internal order ids whose latest journaled status is
// not terminal. Used on startup to reconcile against the venue's live orders.
func (s *SQLiteStore) OpenOrderIDs() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT internal_id FROM order_events o
		WHERE id = (SELECT MAX(id) FROM order_events WHERE internal_id = o.internal_id)
		AND status NOT IN ('FILLED', 'CANCELLED', 'INVALID')`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) CleanupOldEvents(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	if _, err := s.db.Exec(
		"DELETE FROM stream_events WHERE created_at < ?", cutoff,
	); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"DELETE FROM order_events WHERE created_at < ?", cutoff,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
