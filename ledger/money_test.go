package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/ledger"
)

func kes(s string) ledger.Money { return ledger.MustMoney(s, ledger.CurrencyKES) }

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  ledger.Money
		wantErr bool
	}{
		{"whole shillings", kes("30000"), false},
		{"cents", kes("0.01"), false},
		{"two places", kes("1234.56"), false},
		{"zero", kes("0"), true},
		{"negative", kes("-5"), true},
		{"sub-cent", kes("10.005"), true},
		{"trailing zeros are fine", kes("10.500"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.ValidateAmount(tt.amount)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
			var invalid *ledger.InvalidAmountError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestParseMoney_Malformed(t *testing.T) {
	_, err := ledger.ParseMoney("12,000", ledger.CurrencyKES)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestRoundingMode(t *testing.T) {
	// GIVEN: a value sitting exactly on a tie
	tie := kes("2.345")

	// THEN: half-up and half-even disagree on it
	assert.Equal(t, "2.35", tie.Round(2, ledger.RoundHalfUp).String())
	assert.Equal(t, "2.34", tie.Round(2, ledger.RoundHalfEven).String())

	// AND: agree away from the tie
	assert.Equal(t, "2.35", kes("2.3461").Round(2, ledger.RoundHalfEven).String())
}

func TestParseRoundingMode(t *testing.T) {
	m, err := ledger.ParseRoundingMode("half_even")
	require.NoError(t, err)
	assert.Equal(t, ledger.RoundHalfEven, m)

	m, err = ledger.ParseRoundingMode("")
	require.NoError(t, err)
	assert.Equal(t, ledger.RoundHalfUp, m)

	_, err = ledger.ParseRoundingMode("ceiling")
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "KES 30,000.00", kes("30000").Format())
	assert.Equal(t, "KES 1,234,567.50", kes("1234567.5").Format())
	assert.Equal(t, "KES 0.99", kes("0.99").Format())
	assert.Equal(t, "KES -1,500.00", kes("-1500").Format())
	assert.Equal(t, "KES 12.00", ledger.Money{Value: decimal.NewFromInt(12)}.Format())
}

func TestBillingPeriod(t *testing.T) {
	p := ledger.NewPeriod(2026, time.March)
	assert.Equal(t, "March 2026", p.Label())
	assert.Equal(t, "2026-03", p.Key())
	assert.Equal(t, ledger.Date(2026, time.March, 1), p.Start())
	assert.Equal(t, ledger.Date(2026, time.March, 31), p.End())
	assert.Equal(t, ledger.NewPeriod(2026, time.April), p.Next())
	assert.Equal(t, ledger.NewPeriod(2025, time.December), ledger.NewPeriod(2026, time.January).Prev())
	assert.True(t, p.Contains(time.Date(2026, time.March, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(ledger.Date(2026, time.April, 1)))
}

func TestParsePeriod(t *testing.T) {
	for _, in := range []string{"March 2026", "Mar 2026", "2026-03", "  March 2026 "} {
		p, err := ledger.ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, ledger.NewPeriod(2026, time.March), p, in)
	}

	_, err := ledger.ParsePeriod("Marchember 2026")
	assert.ErrorIs(t, err, ledger.ErrInvalidPeriod)
	assert.True(t, ledger.IsClientError(err))
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2026, time.March, 1, 23, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 6, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 5, ledger.DaysBetween(from, to))
	assert.Equal(t, -5, ledger.DaysBetween(to, from))
	assert.Equal(t, ledger.Date(2024, time.February, 29), ledger.EndOfMonth(2024, time.February))
}
