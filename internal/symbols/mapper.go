// Package symbols translates between the engine's canonical security
// identity and the venue's ticker conventions. All functions are pure and
// deterministic; no I/O.
package symbols

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/algo-trading/tastytrade/internal/domain"
)

var (
	// "AAPL  240119C00100000": root padded to 6, yyMMdd, C/P, strike*1000 in 8 digits.
	optionSymbolRe = regexp.MustCompile(`^(?P<root>[A-Z]+)\s+(?P<date>\d{6})(?P<right>[CP])(?P<strike>\d{8})$`)

	// "./ESZ3 EW4U3 230927P2975": future root, option root, yyMMdd + right + strike.
	futureOptionInfoRe = regexp.MustCompile(`^(?P<date>\d{6})(?P<right>[CP])(?P<strike>\d+)$`)
)

type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

func (m *Mapper) Supports(st domain.SecurityType) bool {
	switch st {
	case domain.SecurityEquity, domain.SecurityEquityOption,
		domain.SecurityFuture, domain.SecurityFutureOption:
		return true
	}
	return false
}

// ToBrokerageSymbol encodes a canonical symbol into the venue's ticker form.
func (m *Mapper) ToBrokerageSymbol(symbol domain.Symbol) (string, error) {
	switch symbol.SecurityType {
	case domain.SecurityEquity:
		return symbol.Ticker, nil
	case domain.SecurityEquityOption:
		return encodeOption(symbol)
	case domain.SecurityFuture:
		return "/" + symbol.Ticker, nil
	case domain.SecurityFutureOption:
		return encodeFutureOption(symbol)
	default:
		return "", fmt.Errorf("security type %s is not supported", symbol.SecurityType)
	}
}

// InstrumentType returns the venue's instrument-type string used in order
// legs and position records.
func (m *Mapper) InstrumentType(symbol domain.Symbol) (string, error) {
	switch symbol.SecurityType {
	case domain.SecurityEquity:
		return "Equity", nil
	case domain.SecurityEquityOption:
		return "Equity Option", nil
	case domain.SecurityFuture:
		return "Future", nil
	case domain.SecurityFutureOption:
		return "Future Option", nil
	default:
		return "", fmt.Errorf("security type %s is not supported", symbol.SecurityType)
	}
}

// ToCanonicalSymbol decodes a venue ticker, given the venue's
// instrument-type string, back into the canonical form.
func (m *Mapper) ToCanonicalSymbol(instrumentType, brokerageSymbol string) (domain.Symbol, error) {
	switch strings.ToLower(instrumentType) {
	case "equity":
		return domain.NewEquity(brokerageSymbol), nil
	case "equity option":
		return parseOption(brokerageSymbol)
	case "future":
		return domain.Symbol{
			Ticker:       strings.TrimPrefix(brokerageSymbol, "/"),
			SecurityType: domain.SecurityFuture,
		}, nil
	case "future option":
		return parseFutureOption(brokerageSymbol)
	default:
		return domain.Symbol{}, fmt.Errorf("instrument type %q is not supported", instrumentType)
	}
}

func encodeOption(symbol domain.Symbol) (string, error) {
	if symbol.SecurityType != domain.SecurityEquityOption {
		return "", fmt.Errorf("symbol %s is not an equity option", symbol.Ticker)
	}
	strike := symbol.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%s  %s%s%08d",
		symbol.Ticker,
		symbol.Expiry.Format("060102"),
		rightLetter(symbol.Right),
		strike,
	), nil
}

func encodeFutureOption(symbol domain.Symbol) (string, error) {
	if symbol.SecurityType != domain.SecurityFutureOption {
		return "", fmt.Errorf("symbol %s is not a future option", symbol.Ticker)
	}
	return fmt.Sprintf(".%s %s%s%04d",
		symbol.Ticker,
		symbol.Expiry.Format("060102"),
		rightLetter(symbol.Right),
		symbol.Strike.IntPart(),
	), nil
}

func parseOption(brokerageSymbol string) (domain.Symbol, error) {
	match := optionSymbolRe.FindStringSubmatch(brokerageSymbol)
	if match == nil {
		return domain.Symbol{}, fmt.Errorf("failed to parse option symbol: %q", brokerageSymbol)
	}

	expiry, err := time.Parse("060102", match[2])
	if err != nil {
		return domain.Symbol{}, fmt.Errorf("parse option expiry %q: %w", match[2], err)
	}
	right := domain.OptionCall
	if match[3] == "P" {
		right = domain.OptionPut
	}
	strikeThousandths, err := strconv.ParseInt(match[4], 10, 64)
	if err != nil {
		return domain.Symbol{}, fmt.Errorf("parse option strike %q: %w", match[4], err)
	}
	strike := decimal.New(strikeThousandths, -3)

	return domain.NewOption(match[1], expiry, right, strike), nil
}

func parseFutureOption(brokerageSymbol string) (domain.Symbol, error) {
	// The venue writes ".<root> <option root> <info>" but elides the middle
	// part in some feeds; the info block is always last.
	parts := strings.Fields(brokerageSymbol)
	if len(parts) < 2 {
		return domain.Symbol{}, fmt.Errorf("failed to parse future option symbol: %q", brokerageSymbol)
	}

	root := strings.TrimPrefix(strings.TrimPrefix(parts[0], "."), "/")
	match := futureOptionInfoRe.FindStringSubmatch(parts[len(parts)-1])
	if match == nil {
		return domain.Symbol{}, fmt.Errorf("failed to parse future option info: %q", brokerageSymbol)
	}

	expiry, err := time.Parse("060102", match[1])
	if err != nil {
		return domain.Symbol{}, fmt.Errorf("parse future option expiry %q: %w", match[1], err)
	}
	right := domain.OptionCall
	if match[2] == "P" {
		right = domain.OptionPut
	}
	strike, err := decimal.NewFromString(match[3])
	if err != nil {
		return domain.Symbol{}, fmt.Errorf("parse future option strike %q: %w", match[3], err)
	}

	return domain.NewFutureOption(root, expiry, right, strike), nil
}

func rightLetter(right domain.OptionRight) string {
	if right == domain.OptionPut {
		return "P"
	}
	return "C"
}

// ExchangeTimeZone returns the time zone ticks for this security are
// localized to. US equities and options trade on New York time; futures
// sessions are quoted on Chicago time.
func (m *Mapper) ExchangeTimeZone(symbol domain.Symbol) *time.Location {
	name := "America/New_York"
	switch symbol.SecurityType {
	case domain.SecurityFuture, domain.SecurityFutureOption:
		name = "America/Chicago"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
