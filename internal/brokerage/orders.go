package brokerage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/algo-trading/tastytrade/internal/domain"
	"github.com/algo-trading/tastytrade/internal/monitor"
	"github.com/algo-trading/tastytrade/internal/tastytrade"
)

func NewOrderID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// PlaceOrder submits an order to the venue. Failures are reported through
// an INVALID order event and a false return, matching the engine's
// fire-and-observe order contract; the error never propagates.
func (b *Brokerage) PlaceOrder(ctx context.Context, order *domain.Order) bool {
	ctx, span := monitor.StartSpan(ctx, "brokerage.PlaceOrder")
	defer span.End()

	payload, err := b.buildOrderPayload(*order)
	if err != nil {
		b.recordRejected("invalid_payload")
		b.publishOrderEvent(*order, domain.OrderStatusInvalid, err.Error())
		return false
	}

	venueID, err := b.client.PlaceOrder(ctx, payload)
	if err != nil {
		b.logger.Error("order placement failed",
			"order", order.InternalID, "error", err)
		b.recordRejected("venue_rejected")
		b.publishOrderEvent(*order, domain.OrderStatusInvalid,
			fmt.Sprintf("order placement failed: %v", err))
		return false
	}

	order.VenueID = venueID
	order.Status = domain.OrderStatusSubmitted
	if b.recorder != nil {
		b.recorder.OrderPlaced(string(order.OrderType))
	}
	b.publishOrderEvent(*order, domain.OrderStatusSubmitted, "order submitted")
	return true
}

func (b *Brokerage) recordRejected(reason string) {
	if b.recorder != nil {
		b.recorder.OrderRejected(reason)
	}
}

func (b *Brokerage) UpdateOrder(ctx context.Context, order *domain.Order) bool {
	if order.VenueID == "" {
		b.publishOrderEvent(*order, domain.OrderStatusInvalid, "order has no venue id")
		return false
	}

	payload, err := b.buildOrderPayload(*order)
	if err != nil {
		b.publishOrderEvent(*order, domain.OrderStatusInvalid, err.Error())
		return false
	}

	if err := b.client.UpdateOrder(ctx, order.VenueID, payload); err != nil {
		b.logger.Error("order update failed",
			"order", order.InternalID, "venue_id", order.VenueID, "error", err)
		b.publishOrderEvent(*order, domain.OrderStatusInvalid,
			fmt.Sprintf("order update failed: %v", err))
		return false
	}
	return true
}

func (b *Brokerage) CancelOrder(ctx context.Context, order *domain.Order) bool {
	ctx, span := monitor.StartSpan(ctx, "brokerage.CancelOrder")
	defer span.End()

	if order.VenueID == "" {
		b.publishOrderEvent(*order, domain.OrderStatusInvalid, "order has no venue id")
		return false
	}

	if err := b.client.CancelOrder(ctx, order.VenueID); err != nil {
		b.logger.Error("order cancellation failed",
			"order", order.InternalID, "venue_id", order.VenueID, "error", err)
		b.publishOrderEvent(*order, domain.OrderStatusInvalid,
			fmt.Sprintf("order cancellation failed: %v", err))
		return false
	}
	if b.recorder != nil {
		b.recorder.OrderCancelled()
	}
	return true
}

func (b *Brokerage) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	venueOrders, err := b.client.LiveOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(venueOrders))
	for _, vo := range venueOrders {
		order, err := b.convertVenueOrder(vo)
		if err != nil {
			b.logger.Warn("skipping unconvertible venue order",
				"venue_id", vo.ID.String(), "error", err)
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (b *Brokerage) buildOrderPayload(order domain.Order) (tastytrade.OrderPayload, error) {
	venueSymbol, err := b.mapper.ToBrokerageSymbol(order.Symbol)
	if err != nil {
		return tastytrade.OrderPayload{}, fmt.Errorf("resolve venue symbol: %w", err)
	}
	instrumentType, err := b.mapper.InstrumentType(order.Symbol)
	if err != nil {
		return tastytrade.OrderPayload{}, fmt.Errorf("resolve instrument type: %w", err)
	}

	payload := tastytrade.OrderPayload{
		OrderType:   string(order.OrderType),
		TimeInForce: string(timeInForce(order)),
		PriceEffect: string(priceEffect(order)),
		Legs: []tastytrade.OrderLeg{{
			InstrumentType: instrumentType,
			Symbol:         venueSymbol,
			Action:         string(order.Action()),
			Quantity:       order.Quantity.Abs().String(),
		}},
	}

	switch order.OrderType {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		payload.Price = order.LimitPrice.String()
	case domain.OrderTypeStop:
		payload.StopTrigger = order.StopPrice.String()
	case domain.OrderTypeStopLimit:
		payload.Price = order.LimitPrice.String()
		payload.StopTrigger = order.StopPrice.String()
	default:
		return tastytrade.OrderPayload{}, fmt.Errorf("order type %s is not supported", order.OrderType)
	}

	return payload, nil
}

func priceEffect(order domain.Order) domain.PriceEffect {
	if order.Quantity.IsPositive() {
		return domain.PriceEffectDebit
	}
	return domain.PriceEffectCredit
}

// timeInForce defaults unset orders to Day, matching venue behavior.
func timeInForce(order domain.Order) domain.TimeInForce {
	if order.TimeInForce == domain.TimeInForceGTC {
		return domain.TimeInForceGTC
	}
	return domain.TimeInForceDay
}

func (b *Brokerage) convertVenueOrder(vo tastytrade.VenueOrder) (domain.Order, error) {
	symbol, err := b.mapper.ToCanonicalSymbol(vo.InstrumentType, vo.Symbol)
	if err != nil {
		return domain.Order{}, fmt.Errorf("map symbol: %w", err)
	}

	quantity, err := domain.ParseDecimal(vo.Quantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse quantity %q: %w", vo.Quantity, err)
	}
	if vo.OrderSide == string(domain.OrderActionSell) {
		quantity = quantity.Neg()
	}

	order := domain.Order{
		InternalID:  NewOrderID(),
		VenueID:     vo.ID.String(),
		Symbol:      symbol,
		TimeInForce: domain.TimeInForceDay,
		Quantity:    quantity,
		Status:      domain.ParseVenueStatus(vo.Status),
		ReceivedAt:  vo.ReceivedAt,
	}
	if vo.TimeInForce == string(domain.TimeInForceGTC) {
		order.TimeInForce = domain.TimeInForceGTC
	}

	switch domain.OrderType(vo.OrderType) {
	case domain.OrderTypeMarket:
		order.OrderType = domain.OrderTypeMarket
	case domain.OrderTypeLimit:
		order.OrderType = domain.OrderTypeLimit
		if order.LimitPrice, err = domain.ParseDecimal(vo.LimitPrice); err != nil {
			return domain.Order{}, fmt.Errorf("parse limit price %q: %w", vo.LimitPrice, err)
		}
	case domain.OrderTypeStop:
		order.OrderType = domain.OrderTypeStop
		if order.StopPrice, err = domain.ParseDecimal(vo.StopPrice); err != nil {
			return domain.Order{}, fmt.Errorf("parse stop price %q: %w", vo.StopPrice, err)
		}
	case domain.OrderTypeStopLimit:
		order.OrderType = domain.OrderTypeStopLimit
		if order.LimitPrice, err = domain.ParseDecimal(vo.LimitPrice); err != nil {
			return domain.Order{}, fmt.Errorf("parse limit price %q: %w", vo.LimitPrice, err)
		}
		if order.StopPrice, err = domain.ParseDecimal(vo.StopPrice); err != nil {
			return domain.Order{}, fmt.Errorf("parse stop price %q: %w", vo.StopPrice, err)
		}
	default:
		return domain.Order{}, fmt.Errorf("order type %q is not supported", vo.OrderType)
	}

	return order, nil
}
