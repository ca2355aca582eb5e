// Package marketdata aggregates the live tick flow on the engine side of
// the data-sink boundary: latest quote and trade per symbol, a recent-tick
// buffer, and feed-freshness tracking.
package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
	"github.com/algo-trading/tastytrade/internal/eventbus"
)

type Service struct {
	mu          sync.RWMutex
	lastQuotes  map[string]*domain.Tick
	lastTrades  map[string]*domain.Tick
	tickBuffers map[string]*TickRingBuffer
	lastUpdate  map[string]time.Time

	bus    *eventbus.EventBus
	logger *slog.Logger

	staleDuration     time.Duration
	heartbeatInterval time.Duration
}

func NewService(bus *eventbus.EventBus, staleDuration time.Duration, logger *slog.Logger) *Service {
	return &Service{
		lastQuotes:        make(map[string]*domain.Tick),
		lastTrades:        make(map[string]*domain.Tick),
		tickBuffers:       make(map[string]*TickRingBuffer),
		lastUpdate:        make(map[string]time.Time),
		bus:               bus,
		logger:            logger,
		staleDuration:     staleDuration,
		heartbeatInterval: 500 * time.Millisecond,
	}
}

// Push records one tick and republishes it on the bus. It tolerates
// concurrent callers; the coordinator may push from several connections.
func (s *Service) Push(tick domain.Tick) {
	key := tick.Symbol.Key()

	s.mu.Lock()
	switch tick.Type {
	case domain.TickQuote:
		s.lastQuotes[key] = &tick
	case domain.TickTrade:
		s.lastTrades[key] = &tick
	}
	buf, exists := s.tickBuffers[key]
	if !exists {
		buf = NewTickRingBuffer(1000)
		s.tickBuffers[key] = buf
	}
	s.lastUpdate[key] = time.Now()
	s.mu.Unlock()

	buf.Push(&tick)
	s.bus.PublishTick(tick)
}

func (s *Service) LastQuote(symbol domain.Symbol) (*domain.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.lastQuotes[symbol.Key()]
	if !ok {
		return nil, false
	}
	t := *tick
	return &t, true
}

func (s *Service) LastTrade(symbol domain.Symbol) (*domain.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.lastTrades[symbol.Key()]
	if !ok {
		return nil, false
	}
	t := *tick
	return &t, true
}

func (s *Service) RecentTicks(symbol domain.Symbol, n int) []*domain.Tick {
	s.mu.RLock()
	buf, exists := s.tickBuffers[symbol.Key()]
	s.mu.RUnlock()
	if !exists {
		return nil
	}
	return buf.Recent(n)
}

func (s *Service) IsDataFresh(symbol domain.Symbol) bool {
	s.mu.RLock()
	t, ok := s.lastUpdate[symbol.Key()]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Since(t) < s.staleDuration
}

func (s *Service) DataAge(symbol domain.Symbol) time.Duration {
	s.mu.RLock()
	t, ok := s.lastUpdate[symbol.Key()]
	s.mu.RUnlock()
	if !ok {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(t)
}

func (s *Service) RunHeartbeatMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStaleness()
		}
	}
}

func (s *Service) checkStaleness() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	for key, t := range s.lastUpdate {
		if age := now.Sub(t); age > s.staleDuration {
			s.logger.Warn("market data stale",
				"feed", key, "age_ms", age.Milliseconds())
		}
	}
}
