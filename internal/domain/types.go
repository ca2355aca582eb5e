package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SecurityType string

const (
	SecurityEquity       SecurityType = "EQUITY"
	SecurityEquityOption SecurityType = "EQUITY_OPTION"
	SecurityFuture       SecurityType = "FUTURE"
	SecurityFutureOption SecurityType = "FUTURE_OPTION"
)

type OptionRight string

const (
	OptionCall OptionRight = "CALL"
	OptionPut  OptionRight = "PUT"
)

// Symbol is the engine-side canonical security identity. Ticker is the
// underlying root for derivatives and the plain ticker for equities.
type Symbol struct {
	Ticker       string
	SecurityType SecurityType
	Expiry       time.Time
	Strike       decimal.Decimal
	Right        OptionRight
}

func NewEquity(ticker string) Symbol {
	return Symbol{Ticker: ticker, SecurityType: SecurityEquity}
}

func NewFuture(ticker string, expiry time.Time) Symbol {
	return Symbol{Ticker: ticker, SecurityType: SecurityFuture, Expiry: expiry}
}

func NewOption(underlying string, expiry time.Time, right OptionRight, strike decimal.Decimal) Symbol {
	return Symbol{
		Ticker:       underlying,
		SecurityType: SecurityEquityOption,
		Expiry:       expiry,
		Strike:       strike,
		Right:        right,
	}
}

func NewFutureOption(underlying string, expiry time.Time, right OptionRight, strike decimal.Decimal) Symbol {
	return Symbol{
		Ticker:       underlying,
		SecurityType: SecurityFutureOption,
		Expiry:       expiry,
		Strike:       strike,
		Right:        right,
	}
}

func (s Symbol) IsZero() bool {
	return s.Ticker == "" && s.SecurityType == ""
}

// Key returns a map key unique per security. Derivative fields are folded
// in so two strikes on the same root never collide.
func (s Symbol) Key() string {
	k := string(s.SecurityType) + ":" + s.Ticker
	if !s.Expiry.IsZero() {
		k += ":" + s.Expiry.Format("060102")
	}
	if s.Right != "" {
		k += ":" + string(s.Right) + s.Strike.String()
	}
	return k
}

type TickType string

const (
	TickTrade TickType = "TRADE"
	TickQuote TickType = "QUOTE"
)

// Tick is one normalized market-data event. Time is already localized to
// the subscription's exchange time zone.
type Tick struct {
	Symbol   Symbol
	Time     time.Time
	Type     TickType
	Price    decimal.Decimal
	Size     decimal.Decimal
	BidPrice decimal.Decimal
	BidSize  decimal.Decimal
	AskPrice decimal.Decimal
	AskSize  decimal.Decimal
}

type Quote struct {
	Symbol   Symbol
	Time     time.Time
	BidPrice decimal.Decimal
	BidSize  decimal.Decimal
	AskPrice decimal.Decimal
	AskSize  decimal.Decimal
}

type OrderType string

const (
	OrderTypeMarket    OrderType = "Market"
	OrderTypeLimit     OrderType = "Limit"
	OrderTypeStop      OrderType = "Stop"
	OrderTypeStopLimit OrderType = "StopLimit"
)

type OrderAction string

const (
	OrderActionBuy  OrderAction = "Buy"
	OrderActionSell OrderAction = "Sell"
)

type TimeInForce string

const (
	TimeInForceDay TimeInForce = "Day"
	TimeInForceGTC TimeInForce = "GTC"
)

type PriceEffect string

const (
	PriceEffectDebit  PriceEffect = "Debit"
	PriceEffectCredit PriceEffect = "Credit"
)

type OrderStatus string

const (
	OrderStatusNew         OrderStatus = "NEW"
	OrderStatusSubmitted   OrderStatus = "SUBMITTED"
	OrderStatusPartialFill OrderStatus = "PARTIAL_FILL"
	OrderStatusFilled      OrderStatus = "FILLED"
	OrderStatusCancelled   OrderStatus = "CANCELLED"
	OrderStatusInvalid     OrderStatus = "INVALID"
	OrderStatusNone        OrderStatus = "NONE"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusInvalid
}

// Order is the engine-side view of a venue order. Quantity is signed:
// positive long, negative short.
type Order struct {
	InternalID  uuid.UUID
	VenueID     string
	Symbol      Symbol
	OrderType   OrderType
	TimeInForce TimeInForce
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	Status      OrderStatus
	ReceivedAt  time.Time
	UpdatedAt   time.Time
}

func (o Order) Action() OrderAction {
	if o.Quantity.IsNegative() {
		return OrderActionSell
	}
	return OrderActionBuy
}

type OrderEvent struct {
	Order   Order
	Status  OrderStatus
	Message string
	Time    time.Time
}

type Holding struct {
	Symbol        Symbol
	Quantity      decimal.Decimal
	AveragePrice  decimal.Decimal
	MarketPrice   decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Currency      string
}

type CashBalance struct {
	Amount   decimal.Decimal
	Currency string
}

type Resolution string

const (
	ResolutionTick   Resolution = "tick"
	ResolutionSecond Resolution = "second"
	ResolutionMinute Resolution = "minute"
	ResolutionHour   Resolution = "hour"
	ResolutionDaily  Resolution = "daily"
)

func (r Resolution) Period() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

type HistoryRequest struct {
	Symbol     Symbol
	Resolution Resolution
	TickType   TickType
	Start      time.Time
	End        time.Time
}

type TradeBar struct {
	Symbol Symbol
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Period time.Duration
}

type Bar struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

type QuoteBar struct {
	Symbol Symbol
	Time   time.Time
	Bid    Bar
	Ask    Bar
	Period time.Duration
}

type BrokerageEventKind string

const (
	EventConnect    BrokerageEventKind = "CONNECT"
	EventDisconnect BrokerageEventKind = "DISCONNECT"
	EventReconnect  BrokerageEventKind = "RECONNECT"
	EventError      BrokerageEventKind = "ERROR"
	EventWarning    BrokerageEventKind = "WARNING"
)

// BrokerageEvent is a fire-and-forget notification toward the engine.
type BrokerageEvent struct {
	Kind    BrokerageEventKind
	Code    string
	Message string
	Time    time.Time
}

type EndpointCategory string

const (
	EndpointMarketData  EndpointCategory = "market_data"
	EndpointOrderPlace  EndpointCategory = "order_place"
	EndpointOrderCancel EndpointCategory = "order_cancel"
	EndpointAccount     EndpointCategory = "account"
	EndpointAuth        EndpointCategory = "auth"
)

type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)
