package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/algo-trading/tastytrade/internal/domain"
)

// PostgresStore is the optional cold store for long-term order history.
// A nil store is valid and every method on it is a no-op, so deployments
// without an archive database leave the DSN empty and lose nothing else.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, poolSize int, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		logger.Warn("no PostgreSQL DSN configured, cold store disabled")
		return nil, nil
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}

	config.MaxConns = int32(poolSize)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS order_history (
			id BIGSERIAL PRIMARY KEY,
			internal_id UUID NOT NULL,
			venue_id VARCHAR(64),
			symbol VARCHAR(64) NOT NULL,
			order_type VARCHAR(16) NOT NULL,
			quantity NUMERIC(20, 8) NOT NULL,
			limit_price NUMERIC(20, 8),
			stop_price NUMERIC(20, 8),
			status VARCHAR(16) NOT NULL,
			message TEXT,
			event_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_history_internal
			ON order_history (internal_id)`,
		`CREATE TABLE IF NOT EXISTS connection_log (
			id BIGSERIAL PRIMARY KEY,
			kind VARCHAR(16) NOT NULL,
			code VARCHAR(64),
			message TEXT,
			event_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	s.logger.Info("PostgreSQL migrations completed")
	return nil
}

func (s *PostgresStore) WriteOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	if s == nil || s.pool == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO order_history
			(internal_id, venue_id, symbol, order_type, quantity, limit_price, stop_price, status, message, event_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.Order.InternalID,
		ev.Order.VenueID,
		ev.Order.Symbol.Key(),
		string(ev.Order.OrderType),
		ev.Order.Quantity,
		ev.Order.LimitPrice,
		ev.Order.StopPrice,
		string(ev.Status),
		ev.Message,
		ev.Time,
	)
	return err
}

func (s *PostgresStore) WriteStreamEvent(ctx context.Context, ev domain.BrokerageEvent) error {
	if s == nil || s.pool == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO connection_log (kind, code, message, event_time)
		VALUES ($1, $2, $3, $4)`,
		string(ev.Kind),
		ev.Code,
		ev.Message,
		ev.Time,
	)
	return err
}

func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
