package symbols

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/algo-trading/tastytrade/internal/domain"
)

func TestEquityRoundTrip(t *testing.T) {
	m := NewMapper()
	symbol := domain.NewEquity("AAPL")

	venue, err := m.ToBrokerageSymbol(symbol)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if venue != "AAPL" {
		t.Errorf("expected AAPL, got %q", venue)
	}

	back, err := m.ToCanonicalSymbol("Equity", venue)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Ticker != "AAPL" || back.SecurityType != domain.SecurityEquity {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestOptionEncoding(t *testing.T) {
	m := NewMapper()
	expiry := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	symbol := domain.NewOption("AAPL", expiry, domain.OptionCall, decimal.NewFromInt(100))

	venue, err := m.ToBrokerageSymbol(symbol)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if venue != "AAPL  240119C00100000" {
		t.Errorf("unexpected option encoding: %q", venue)
	}
}

func TestOptionRoundTrip(t *testing.T) {
	m := NewMapper()
	expiry := time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		right  domain.OptionRight
		strike decimal.Decimal
	}{
		{domain.OptionCall, decimal.NewFromInt(100)},
		{domain.OptionPut, decimal.NewFromFloat(152.5)},
		{domain.OptionPut, decimal.NewFromFloat(0.5)},
	}

	for _, tc := range cases {
		symbol := domain.NewOption("SPY", expiry, tc.right, tc.strike)
		venue, err := m.ToBrokerageSymbol(symbol)
		if err != nil {
			t.Fatalf("encode strike %s: %v", tc.strike, err)
		}

		back, err := m.ToCanonicalSymbol("Equity Option", venue)
		if err != nil {
			t.Fatalf("decode %q: %v", venue, err)
		}
		if back.Ticker != "SPY" {
			t.Errorf("expected SPY, got %q", back.Ticker)
		}
		if back.Right != tc.right {
			t.Errorf("right mismatch for %q", venue)
		}
		if !back.Strike.Equal(tc.strike) {
			t.Errorf("strike mismatch for %q: expected %s, got %s", venue, tc.strike, back.Strike)
		}
		if !back.Expiry.Equal(expiry) {
			t.Errorf("expiry mismatch for %q: got %s", venue, back.Expiry)
		}
	}
}

func TestFutureRoundTrip(t *testing.T) {
	m := NewMapper()
	symbol := domain.Symbol{Ticker: "ESZ4", SecurityType: domain.SecurityFuture}

	venue, err := m.ToBrokerageSymbol(symbol)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if venue != "/ESZ4" {
		t.Errorf("expected /ESZ4, got %q", venue)
	}

	back, err := m.ToCanonicalSymbol("Future", venue)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Ticker != "ESZ4" || back.SecurityType != domain.SecurityFuture {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestFutureOptionParseVenueForm(t *testing.T) {
	m := NewMapper()

	// Full three-part venue form with the separate option root.
	back, err := m.ToCanonicalSymbol("Future Option", "./ESZ3 EW4U3 230927P2975")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Ticker != "ESZ3" {
		t.Errorf("expected root ESZ3, got %q", back.Ticker)
	}
	if back.Right != domain.OptionPut {
		t.Error("expected put")
	}
	if !back.Strike.Equal(decimal.NewFromInt(2975)) {
		t.Errorf("expected strike 2975, got %s", back.Strike)
	}
}

func TestFutureOptionRoundTrip(t *testing.T) {
	m := NewMapper()
	expiry := time.Date(2023, 9, 27, 0, 0, 0, 0, time.UTC)
	symbol := domain.NewFutureOption("ESZ3", expiry, domain.OptionPut, decimal.NewFromInt(2975))

	venue, err := m.ToBrokerageSymbol(symbol)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	back, err := m.ToCanonicalSymbol("Future Option", venue)
	if err != nil {
		t.Fatalf("decode %q: %v", venue, err)
	}
	if back.Ticker != "ESZ3" || back.Right != domain.OptionPut || !back.Strike.Equal(decimal.NewFromInt(2975)) {
		t.Errorf("round trip mismatch for %q: %+v", venue, back)
	}
}

func TestUnsupportedInstrumentType(t *testing.T) {
	m := NewMapper()
	if _, err := m.ToCanonicalSymbol("Cryptocurrency", "BTC/USD"); err == nil {
		t.Error("expected error for unsupported instrument type")
	}
}

func TestMalformedOptionSymbol(t *testing.T) {
	m := NewMapper()
	for _, bad := range []string{"AAPL", "AAPL 240119C", "AAPL  240119X00100000", ""} {
		if _, err := m.ToCanonicalSymbol("Equity Option", bad); err == nil {
			t.Errorf("expected parse error for %q", bad)
		}
	}
}

func TestMalformedFutureOptionSymbol(t *testing.T) {
	m := NewMapper()
	// Includes the two-field form whose info block does not parse.
	for _, bad := range []string{".ESZ3", ".ESZ3 notinfo", ".ESZ3 EW4U3 notinfo", ""} {
		if _, err := m.ToCanonicalSymbol("Future Option", bad); err == nil {
			t.Errorf("expected parse error for %q", bad)
		}
	}
}

func TestExchangeTimeZone(t *testing.T) {
	m := NewMapper()

	equity := m.ExchangeTimeZone(domain.NewEquity("AAPL"))
	if equity.String() != "America/New_York" {
		t.Errorf("expected New York for equities, got %s", equity)
	}

	future := m.ExchangeTimeZone(domain.Symbol{Ticker: "ES", SecurityType: domain.SecurityFuture})
	if future.String() != "America/Chicago" {
		t.Errorf("expected Chicago for futures, got %s", future)
	}
}

func TestInstrumentType(t *testing.T) {
	m := NewMapper()
	cases := map[domain.SecurityType]string{
		domain.SecurityEquity:       "Equity",
		domain.SecurityEquityOption: "Equity Option",
		domain.SecurityFuture:       "Future",
		domain.SecurityFutureOption: "Future Option",
	}
	for st, want := range cases {
		got, err := m.InstrumentType(domain.Symbol{Ticker: "X", SecurityType: st})
		if err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		if got != want {
			t.Errorf("%s: expected %q, got %q", st, want, got)
		}
	}
}
