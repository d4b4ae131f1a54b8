package ledger

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// BILLING PERIOD - A calendar month
// =============================================================================

// BillingPeriod is the calendar month a rent or late-fee charge belongs to.
// Its Label ("March 2026") is what people read; its Key ("2026-03") is what
// the ledger indexes on.
type BillingPeriod struct {
	Year  int
	Month time.Month
}

func NewPeriod(year int, month time.Month) BillingPeriod {
	return BillingPeriod{Year: year, Month: month}
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) BillingPeriod {
	return BillingPeriod{Year: t.Year(), Month: t.Month()}
}

const (
	labelLayout      = "January 2006"
	shortLabelLayout = "Jan 2006"
	keyLayout        = "2006-01"
)

// ParsePeriod accepts "March 2026", "Mar 2026" or "2026-03".
func ParsePeriod(s string) (BillingPeriod, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{labelLayout, shortLabelLayout, keyLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return PeriodOf(t), nil
		}
	}
	return BillingPeriod{}, fmt.Errorf("%w: %q (want \"March 2026\" or \"2026-03\")", ErrInvalidPeriod, s)
}

func (p BillingPeriod) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p BillingPeriod) Label() string { return p.Start().Format(labelLayout) }
func (p BillingPeriod) Key() string   { return p.Start().Format(keyLayout) }
func (p BillingPeriod) String() string { return p.Label() }

func (p BillingPeriod) Start() time.Time { return StartOfMonth(p.Year, p.Month) }
func (p BillingPeriod) End() time.Time   { return EndOfMonth(p.Year, p.Month) }
func (p BillingPeriod) Next() BillingPeriod { return PeriodOf(p.Start().AddDate(0, 1, 0)) }
func (p BillingPeriod) Prev() BillingPeriod { return PeriodOf(p.Start().AddDate(0, -1, 0)) }

func (p BillingPeriod) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(p.Start()) && !d.After(p.End())
}

// =============================================================================
// DATES - Ledger dates are UTC calendar days
// =============================================================================

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf drops the clock part of t, keeping its calendar day.
func DateOf(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// DaysBetween counts whole calendar days from one date to another.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

func StartOfMonth(year int, month time.Month) time.Time { return Date(year, month, 1) }
func EndOfMonth(year int, month time.Month) time.Time {
	return Date(year, month+1, 1).AddDate(0, 0, -1)
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}
