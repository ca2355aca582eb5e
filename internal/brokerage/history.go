package brokerage

import (
	"context"
	"fmt"

	"github.com/algo-trading/tastytrade/internal/domain"
	"github.com/algo-trading/tastytrade/internal/tastytrade"
)

// HistoryResult carries whichever shape the request resolved to. Exactly
// one slice is populated.
type HistoryResult struct {
	Ticks     []domain.Tick
	TradeBars []domain.TradeBar
	QuoteBars []domain.QuoteBar
}

// GetHistory fetches historical data for a symbol. Unsupported
// symbol/resolution/tick-type combinations return nil with a single warning
// event the first time they are seen, matching live-trading expectations
// where a misconfigured history request must not halt the algorithm.
func (b *Brokerage) GetHistory(ctx context.Context, req domain.HistoryRequest) (*HistoryResult, error) {
	if !b.CanSubscribe(req.Symbol) {
		if b.warnedUnsupportedSecurity.CompareAndSwap(false, true) {
			b.warn("UnsupportedSecurityType", fmt.Sprintf(
				"security type %s of %s is not supported for historical data",
				req.Symbol.SecurityType, req.Symbol.Ticker))
		}
		return nil, nil
	}

	endpoint, ok := b.historyEndpoint(req)
	if !ok {
		return nil, nil
	}

	venueSymbol, err := b.mapper.ToBrokerageSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}

	bars, err := b.client.History(ctx, endpoint, venueSymbol,
		string(req.Resolution), timeframe(req.Resolution), req.Start, req.End)
	if err != nil {
		b.warn("HistoryError", fmt.Sprintf("error getting history for %s: %v", venueSymbol, err))
		return nil, nil
	}

	return b.convertHistory(req, bars)
}

func (b *Brokerage) historyEndpoint(req domain.HistoryRequest) (string, bool) {
	switch req.Symbol.SecurityType {
	case domain.SecurityEquity:
		if req.TickType == domain.TickTrade &&
			(req.Resolution == domain.ResolutionTick || req.Resolution == domain.ResolutionSecond) {
			if b.warnedTradeTickResolution.CompareAndSwap(false, true) {
				b.warn("InvalidResolution", fmt.Sprintf(
					"resolution %s is not supported for equity trade data", req.Resolution))
			}
			return "", false
		}
		return "equities", true
	case domain.SecurityEquityOption:
		if req.TickType != domain.TickTrade {
			if b.warnedOptionTickType.CompareAndSwap(false, true) {
				b.warn("InvalidTickType", fmt.Sprintf(
					"tick type %s is not supported for option data, only TRADE", req.TickType))
			}
			return "", false
		}
		return "option-chains", true
	default:
		return "", false
	}
}

func timeframe(r domain.Resolution) string {
	switch r {
	case domain.ResolutionTick, domain.ResolutionSecond:
		return "1s"
	case domain.ResolutionMinute:
		return "1m"
	case domain.ResolutionHour:
		return "1h"
	default:
		return "1d"
	}
}

func (b *Brokerage) convertHistory(req domain.HistoryRequest, bars []tastytrade.HistoryBar) (*HistoryResult, error) {
	result := &HistoryResult{}
	period := req.Resolution.Period()

	for _, bar := range bars {
		switch {
		case req.TickType == domain.TickTrade && req.Resolution == domain.ResolutionTick:
			price, err := domain.ParseDecimal(bar.Price)
			if err != nil {
				return nil, fmt.Errorf("parse tick price %q: %w", bar.Price, err)
			}
			size, err := domain.ParseDecimal(bar.Size)
			if err != nil {
				return nil, fmt.Errorf("parse tick size %q: %w", bar.Size, err)
			}
			result.Ticks = append(result.Ticks, domain.Tick{
				Symbol: req.Symbol,
				Time:   bar.Time,
				Type:   domain.TickTrade,
				Price:  price,
				Size:   size,
			})

		case req.TickType == domain.TickTrade:
			tb := domain.TradeBar{Symbol: req.Symbol, Time: bar.Time, Period: period}
			var err error
			if tb.Open, err = domain.ParseDecimal(bar.Open); err != nil {
				return nil, fmt.Errorf("parse bar open %q: %w", bar.Open, err)
			}
			if tb.High, err = domain.ParseDecimal(bar.High); err != nil {
				return nil, fmt.Errorf("parse bar high %q: %w", bar.High, err)
			}
			if tb.Low, err = domain.ParseDecimal(bar.Low); err != nil {
				return nil, fmt.Errorf("parse bar low %q: %w", bar.Low, err)
			}
			if tb.Close, err = domain.ParseDecimal(bar.Close); err != nil {
				return nil, fmt.Errorf("parse bar close %q: %w", bar.Close, err)
			}
			if tb.Volume, err = domain.ParseDecimal(bar.Volume); err != nil {
				return nil, fmt.Errorf("parse bar volume %q: %w", bar.Volume, err)
			}
			result.TradeBars = append(result.TradeBars, tb)

		case req.TickType == domain.TickQuote:
			qb := domain.QuoteBar{Symbol: req.Symbol, Time: bar.Time, Period: period}
			bid, err := parseBar(bar.BidOpen, bar.BidHigh, bar.BidLow, bar.BidClose)
			if err != nil {
				return nil, fmt.Errorf("parse bid bar: %w", err)
			}
			ask, err := parseBar(bar.AskOpen, bar.AskHigh, bar.AskLow, bar.AskClose)
			if err != nil {
				return nil, fmt.Errorf("parse ask bar: %w", err)
			}
			qb.Bid, qb.Ask = bid, ask
			result.QuoteBars = append(result.QuoteBars, qb)
		}
	}
	return result, nil
}

func parseBar(open, high, low, close string) (domain.Bar, error) {
	var bar domain.Bar
	var err error
	if bar.Open, err = domain.ParseDecimal(open); err != nil {
		return domain.Bar{}, err
	}
	if bar.High, err = domain.ParseDecimal(high); err != nil {
		return domain.Bar{}, err
	}
	if bar.Low, err = domain.ParseDecimal(low); err != nil {
		return domain.Bar{}, err
	}
	if bar.Close, err = domain.ParseDecimal(close); err != nil {
		return domain.Bar{}, err
	}
	return bar, nil
}

func (b *Brokerage) warn(code, message string) {
	b.logger.Warn(message, "code", code)
	b.bus.PublishBrokerageEvent(domain.BrokerageEvent{
		Kind:    domain.EventWarning,
		Code:    code,
		Message: message,
	})
}
