package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{".5", 50, true},
		{"1.005", 101, true}, // half-up rounding
		{"12,345", 1235, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1e3", 0, false},
		{"0", 0, false},
		{"0.001", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"1000000000000", 100_000_000_000_000, true},
		{"1000000000000.01", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyDecimal(t *testing.T) {
	m := Money{Cents: 460050}
	if !m.Decimal().Equal(decimal.RequireFromString("4600.50")) {
		t.Fatalf("unexpected decimal %s", m.Decimal())
	}
	if m.String() != "4600.50" {
		t.Fatalf("unexpected string %s", m.String())
	}
}

func TestMoneyUnmarshalJSON(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`"12.34"`), &m); err != nil || m.Cents != 1234 {
		t.Fatalf("expected 1234, got %d (err=%v)", m.Cents, err)
	}
	if err := json.Unmarshal([]byte(`-5`), &m); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestFormatINR(t *testing.T) {
	cases := map[int64]string{
		0:          "₹0.00",
		50:         "₹0.50",
		99999:      "₹999.99",
		100000:     "₹1,000.00",
		12345678:   "₹1,23,456.78",
		1234567800: "₹1,23,45,678.00",
		-460000:    "-₹4,600.00",
	}
	for cents, want := range cases {
		if got := FormatINR(Money{Cents: cents}); got != want {
			t.Fatalf("%d: expected %s, got %s", cents, want, got)
		}
	}
}

func TestMoneyAddSaturates(t *testing.T) {
	big := Money{Cents: math.MaxInt64 - 10}
	if got := big.Add(Money{Cents: 100}); got.Cents != math.MaxInt64 {
		t.Fatalf("expected saturation at MaxInt64, got %d", got.Cents)
	}
	low := Money{Cents: math.MinInt64 + 10}
	if got := low.Add(Money{Cents: -100}); got.Cents != math.MinInt64 {
		t.Fatalf("expected saturation at MinInt64, got %d", got.Cents)
	}
	if got := (Money{Cents: 150}).Add(Money{Cents: -50}); got.Cents != 100 {
		t.Fatalf("expected 100, got %d", got.Cents)
	}
}

func TestMoneyValidateCap(t *testing.T) {
	if err := (Money{Cents: MaxAmountCents}).Validate(); err != nil {
		t.Fatalf("cap itself must be valid: %v", err)
	}
	if err := (Money{Cents: MaxAmountCents + 1}).Validate(); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount above the cap, got %v", err)
	}
}
