package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/algo-trading/tastytrade/internal/domain"
)

// ErrDecode marks a malformed or incomplete wire message. The caller logs
// and drops the single message; a bad frame never tears down a connection.
var ErrDecode = errors.New("stream: decode error")

// Quote frames carry bid-price/bid-size/ask-price/ask-size; trade frames
// carry price/size. The venue sends decimals as JSON numbers.
type wireMessage struct {
	BidPrice *decimal.Decimal `json:"bid-price"`
	BidSize  *decimal.Decimal `json:"bid-size"`
	AskPrice *decimal.Decimal `json:"ask-price"`
	AskSize  *decimal.Decimal `json:"ask-size"`
	Price    *decimal.Decimal `json:"price"`
	Size     *decimal.Decimal `json:"size"`
}

// Decode parses one complete wire frame into a normalized tick, stamped in
// the subscription's exchange time zone. Pure: no side effects, safe to
// call from any goroutine.
func Decode(raw []byte, sub *Subscription) (domain.Tick, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.Tick{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	now := time.Now().UTC().In(sub.TimeZone)

	switch {
	case msg.BidPrice != nil || msg.AskPrice != nil:
		if msg.BidPrice == nil || msg.BidSize == nil || msg.AskPrice == nil || msg.AskSize == nil {
			return domain.Tick{}, fmt.Errorf("%w: incomplete quote fields", ErrDecode)
		}
		return domain.Tick{
			Symbol:   sub.Symbol,
			Time:     now,
			Type:     domain.TickQuote,
			BidPrice: *msg.BidPrice,
			BidSize:  *msg.BidSize,
			AskPrice: *msg.AskPrice,
			AskSize:  *msg.AskSize,
		}, nil

	case msg.Price != nil:
		if msg.Size == nil {
			return domain.Tick{}, fmt.Errorf("%w: trade missing size", ErrDecode)
		}
		return domain.Tick{
			Symbol: sub.Symbol,
			Time:   now,
			Type:   domain.TickTrade,
			Price:  *msg.Price,
			Size:   *msg.Size,
		}, nil

	default:
		return domain.Tick{}, fmt.Errorf("%w: neither quote nor trade fields present", ErrDecode)
	}
}
