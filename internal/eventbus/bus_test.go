package eventbus

import (
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/algo-trading/tastytrade/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestPublishTick(t *testing.T) {
	bus := New(4, testLogger())
	ch := bus.SubscribeTicks()

	tick := domain.Tick{
		Symbol: domain.NewEquity("AAPL"),
		Type:   domain.TickTrade,
		Price:  decimal.NewFromInt(150),
		Size:   decimal.NewFromInt(10),
	}
	bus.PublishTick(tick)

	got := <-ch
	if got.Symbol.Ticker != "AAPL" || !got.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected tick: %+v", got)
	}
}

func TestFanOut(t *testing.T) {
	bus := New(4, testLogger())
	a := bus.SubscribeBrokerageEvents()
	b := bus.SubscribeBrokerageEvents()

	bus.PublishBrokerageEvent(domain.BrokerageEvent{Kind: domain.EventConnect, Code: "Subscribe"})

	for _, ch := range []<-chan domain.BrokerageEvent{a, b} {
		ev := <-ch
		if ev.Code != "Subscribe" {
			t.Errorf("expected Subscribe event, got %+v", ev)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := New(1, testLogger())
	bus.SubscribeTicks() // never drained

	// Fill the buffer and keep publishing; this must return promptly.
	for i := 0; i < 10; i++ {
		bus.PublishTick(domain.Tick{Symbol: domain.NewEquity("SPY")})
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	bus := New(4, testLogger())
	ch := bus.SubscribeOrderEvents()

	bus.Close()
	bus.PublishOrderEvent(domain.OrderEvent{Status: domain.OrderStatusFilled})

	if _, open := <-ch; open {
		t.Error("expected subscriber channel closed")
	}

	// Double close is safe.
	bus.Close()
}
