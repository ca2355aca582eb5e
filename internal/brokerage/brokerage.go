// Package brokerage is the engine-facing adapter surface: live data
// subscriptions, order entry, and account state against the venue.
package brokerage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
	"github.com/algo-trading/tastytrade/internal/eventbus"
	"github.com/algo-trading/tastytrade/internal/stream"
	"github.com/algo-trading/tastytrade/internal/symbols"
	"github.com/algo-trading/tastytrade/internal/tastytrade"
)

// OrderRecorder receives order-flow counters. Nil disables instrumentation.
type OrderRecorder interface {
	OrderPlaced(orderType string)
	OrderRejected(reason string)
	OrderCancelled()
}

type Brokerage struct {
	client      *tastytrade.Client
	mapper      *symbols.Mapper
	coordinator *stream.Coordinator
	bus         *eventbus.EventBus
	recorder    OrderRecorder
	logger      *slog.Logger

	warnedUnsupportedSecurity atomic.Bool
	warnedTradeTickResolution atomic.Bool
	warnedOptionTickType      atomic.Bool
}

func New(
	client *tastytrade.Client,
	mapper *symbols.Mapper,
	coordinator *stream.Coordinator,
	bus *eventbus.EventBus,
	recorder OrderRecorder,
	logger *slog.Logger,
) *Brokerage {
	return &Brokerage{
		client:      client,
		mapper:      mapper,
		coordinator: coordinator,
		bus:         bus,
		recorder:    recorder,
		logger:      logger,
	}
}

// CanSubscribe rejects canonical/universe placeholders and unsupported
// security types before any venue traffic happens.
func (b *Brokerage) CanSubscribe(symbol domain.Symbol) bool {
	if strings.Contains(strings.ToLower(symbol.Ticker), "universe") {
		return false
	}
	return b.mapper.Supports(symbol.SecurityType)
}

func (b *Brokerage) Subscribe(symbol domain.Symbol) bool {
	if !b.CanSubscribe(symbol) {
		return false
	}
	return b.coordinator.Subscribe(symbol)
}

func (b *Brokerage) Unsubscribe(symbol domain.Symbol) bool {
	return b.coordinator.Unsubscribe(symbol)
}

func (b *Brokerage) GetAccountHoldings(ctx context.Context) ([]domain.Holding, error) {
	positions, err := b.client.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	holdings := make([]domain.Holding, 0, len(positions))
	for _, p := range positions {
		symbol, err := b.mapper.ToCanonicalSymbol(p.InstrumentType, p.Symbol)
		if err != nil {
			b.logger.Warn("skipping position with unmappable symbol",
				"instrument_type", p.InstrumentType, "symbol", p.Symbol, "error", err)
			continue
		}

		h := domain.Holding{Symbol: symbol, Currency: "USD"}
		if h.Quantity, err = domain.ParseDecimal(p.Quantity); err != nil {
			return nil, fmt.Errorf("parse position quantity %q: %w", p.Quantity, err)
		}
		if h.AveragePrice, err = domain.ParseDecimal(p.AverageOpenPrice); err != nil {
			return nil, fmt.Errorf("parse average open price %q: %w", p.AverageOpenPrice, err)
		}
		if h.MarketPrice, err = domain.ParseDecimal(p.MarkPrice); err != nil {
			return nil, fmt.Errorf("parse mark price %q: %w", p.MarkPrice, err)
		}
		if h.MarketValue, err = domain.ParseDecimal(p.Mark); err != nil {
			return nil, fmt.Errorf("parse mark %q: %w", p.Mark, err)
		}
		if h.UnrealizedPnL, err = domain.ParseDecimal(p.UnrealizedGain); err != nil {
			return nil, fmt.Errorf("parse unrealized gain %q: %w", p.UnrealizedGain, err)
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func (b *Brokerage) GetCashBalance(ctx context.Context) (domain.CashBalance, error) {
	return b.client.Balances(ctx)
}

// GetLatestQuote fetches a REST snapshot of the top of book for a symbol.
func (b *Brokerage) GetLatestQuote(ctx context.Context, symbol domain.Symbol) (domain.Quote, error) {
	venueSymbol, err := b.mapper.ToBrokerageSymbol(symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	quote, err := b.client.LatestQuote(ctx, venueSymbol)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("latest quote for %s: %w", symbol.Key(), err)
	}
	quote.Symbol = symbol
	return quote, nil
}

func (b *Brokerage) Close() {
	b.coordinator.Close()
}

// BusNotifier adapts the event bus to the coordinator's notification
// boundary.
type BusNotifier struct {
	Bus *eventbus.EventBus
}

func (n *BusNotifier) Notify(event domain.BrokerageEvent) {
	n.Bus.PublishBrokerageEvent(event)
}

func (b *Brokerage) publishOrderEvent(order domain.Order, status domain.OrderStatus, message string) {
	b.bus.PublishOrderEvent(domain.OrderEvent{
		Order:   order,
		Status:  status,
		Message: message,
		Time:    time.Now().UTC(),
	})
}
