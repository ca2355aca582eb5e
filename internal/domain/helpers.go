package domain

import "github.com/shopspring/decimal"

func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// ParseVenueStatus maps the venue's order status strings onto the engine's
// order status enum. Unknown statuses map to NONE rather than erroring so a
// new venue status never breaks open-order reconciliation.
func ParseVenueStatus(s string) OrderStatus {
	switch s {
	case "received", "routed", "live":
		return OrderStatusSubmitted
	case "filled":
		return OrderStatusFilled
	case "partially_filled":
		return OrderStatusPartialFill
	case "cancelled":
		return OrderStatusCancelled
	case "rejected", "expired":
		return OrderStatusInvalid
	default:
		return OrderStatusNone
	}
}
