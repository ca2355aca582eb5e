// Package eventbus fans adapter events out to engine-side subscribers.
// Publishes never block: a subscriber that falls behind loses events and
// the loss is logged.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/algo-trading/tastytrade/internal/domain"
)

type EventBus struct {
	mu sync.RWMutex

	tickSubs      []chan domain.Tick
	brokerageSubs []chan domain.BrokerageEvent
	orderSubs     []chan domain.OrderEvent

	bufferSize int
	logger     *slog.Logger
	closed     bool
}

func New(bufferSize int, logger *slog.Logger) *EventBus {
	return &EventBus{
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (eb *EventBus) SubscribeTicks() <-chan domain.Tick {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan domain.Tick, eb.bufferSize)
	eb.tickSubs = append(eb.tickSubs, ch)
	return ch
}

func (eb *EventBus) PublishTick(tick domain.Tick) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, ch := range eb.tickSubs {
		select {
		case ch <- tick:
		default:
			eb.logger.Warn("tick subscriber lagging, dropping tick",
				"symbol", tick.Symbol.Key())
		}
	}
}

func (eb *EventBus) SubscribeBrokerageEvents() <-chan domain.BrokerageEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan domain.BrokerageEvent, eb.bufferSize)
	eb.brokerageSubs = append(eb.brokerageSubs, ch)
	return ch
}

func (eb *EventBus) PublishBrokerageEvent(event domain.BrokerageEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, ch := range eb.brokerageSubs {
		select {
		case ch <- event:
		default:
			eb.logger.Warn("brokerage event subscriber lagging, dropping event",
				"kind", event.Kind, "code", event.Code)
		}
	}
}

func (eb *EventBus) SubscribeOrderEvents() <-chan domain.OrderEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan domain.OrderEvent, eb.bufferSize)
	eb.orderSubs = append(eb.orderSubs, ch)
	return ch
}

func (eb *EventBus) PublishOrderEvent(event domain.OrderEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, ch := range eb.orderSubs {
		select {
		case ch <- event:
		default:
			eb.logger.Warn("order event subscriber lagging, dropping event",
				"order", event.Order.InternalID)
		}
	}
}

func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, ch := range eb.tickSubs {
		close(ch)
	}
	for _, ch := range eb.brokerageSubs {
		close(ch)
	}
	for _, ch := range eb.orderSubs {
		close(ch)
	}
}
