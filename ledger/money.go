package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// MONEY - Fixed-point amount with currency
// =============================================================================

type Currency string

const CurrencyKES Currency = "KES"

// DefaultCurrency is used when an amount is built without one.
var DefaultCurrency = CurrencyKES

// MinorUnitPlaces is the number of decimal places of the currency's minor unit.
const MinorUnitPlaces int32 = 2

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewMoney(value decimal.Decimal, currency Currency) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Value: value, Currency: currency}
}

func Zero(currency Currency) Money {
	return NewMoney(decimal.Zero, currency)
}

// ParseMoney parses a decimal string such as "30000" or "1234.50".
func ParseMoney(s string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, &InvalidAmountError{Raw: s, Reason: "not a decimal number"}
	}
	return NewMoney(d, currency), nil
}

// MustMoney is ParseMoney for literals; it panics on malformed input.
func MustMoney(s string, currency Currency) Money {
	m, err := ParseMoney(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money            { return Money{Value: m.Value.Add(o.Value), Currency: m.pick(o)} }
func (m Money) Sub(o Money) Money            { return Money{Value: m.Value.Sub(o.Value), Currency: m.pick(o)} }
func (m Money) Mul(f decimal.Decimal) Money  { return Money{Value: m.Value.Mul(f), Currency: m.Currency} }
func (m Money) Neg() Money                   { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) IsZero() bool                 { return m.Value.IsZero() }
func (m Money) IsPositive() bool             { return m.Value.IsPositive() }
func (m Money) IsNegative() bool             { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool           { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool     { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool        { return m.Value.LessThan(o.Value) }
func (m Money) Max(o Money) Money {
	if o.GreaterThan(m) {
		return o
	}
	return m
}

func (m Money) pick(o Money) Currency {
	if m.Currency != "" {
		return m.Currency
	}
	return o.Currency
}

// Round rounds to the given number of decimal places with the given mode.
func (m Money) Round(places int32, mode RoundingMode) Money {
	return Money{Value: mode.Apply(m.Value, places), Currency: m.Currency}
}

// IsMinorUnitExact reports whether the amount has no digits beyond the
// currency's minor unit (0.01).
func (m Money) IsMinorUnitExact() bool {
	return m.Value.Equal(m.Value.Truncate(MinorUnitPlaces))
}

// String renders the plain decimal with two places, e.g. "30000.00".
func (m Money) String() string {
	return m.Value.StringFixed(MinorUnitPlaces)
}

// Format renders the amount for people, e.g. "KES 1,234.56".
func (m Money) Format() string {
	return FormatMoney(m)
}

// =============================================================================
// ROUNDING
// =============================================================================

// RoundingMode selects how amounts are rounded to the minor unit.
type RoundingMode int

const (
	// RoundHalfUp rounds ties away from zero (2.345 -> 2.35). Ledger amounts
	// are never negative, so this is the usual commercial half-up.
	RoundHalfUp RoundingMode = iota
	// RoundHalfEven rounds ties to the even neighbour (2.345 -> 2.34).
	RoundHalfEven
)

func (r RoundingMode) Apply(d decimal.Decimal, places int32) decimal.Decimal {
	switch r {
	case RoundHalfEven:
		return d.RoundBank(places)
	default:
		return d.Round(places)
	}
}

func (r RoundingMode) String() string {
	switch r {
	case RoundHalfEven:
		return "half_even"
	default:
		return "half_up"
	}
}

// ParseRoundingMode accepts "half_up" and "half_even".
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half_up", "halfup":
		return RoundHalfUp, nil
	case "half_even", "halfeven", "bankers":
		return RoundHalfEven, nil
	}
	return RoundHalfUp, fmt.Errorf("unknown rounding mode %q", s)
}

// =============================================================================
// VALIDATION & FORMATTING
// =============================================================================

// ValidateAmount rejects amounts that are not strictly positive or that
// cannot be represented in the currency's minor unit.
func ValidateAmount(m Money) error {
	if !m.IsPositive() {
		return &InvalidAmountError{Amount: m, Reason: "must be greater than zero"}
	}
	if !m.IsMinorUnitExact() {
		return &InvalidAmountError{Amount: m, Reason: "more precise than 0.01"}
	}
	return nil
}

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders "KES 1,234.56" without going through float64:
// the integer part is grouped by the English printer and the two-digit
// fraction is appended verbatim.
func FormatMoney(m Money) string {
	fixed := m.Value.Abs().StringFixed(MinorUnitPlaces)
	whole, frac, _ := strings.Cut(fixed, ".")
	intPart, _ := decimal.NewFromString(whole)
	grouped := moneyPrinter.Sprintf("%d", intPart.IntPart())

	sign := ""
	if m.IsNegative() {
		sign = "-"
	}
	currency := m.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return fmt.Sprintf("%s %s%s.%s", currency, sign, grouped, frac)
}
