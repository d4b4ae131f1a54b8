/*
balance.go - Balance and overdue computation

PURPOSE:
  Answers "how much does this tenant owe?" and "for how long?". Nothing
  here writes; every figure is recomputed from the entries.

BALANCE:
  balance = sum(CHARGE amounts) - sum(PAYMENT amounts)
  Positive means the tenant owes money. The sum is exact decimal
  arithmetic, so insertion order never changes the result.

DAYS OVERDUE:
  Only defined while balance > 0. Measured from a reference charge to asOf:

  OverdueFromOldestCharge (default):
    The oldest CHARGE on the ledger, by (TransactionDate, Seq).
    Equal dates resolve to the entry inserted first.

  OverdueFromOldestUnpaid:
    Payments are applied to charges first-in-first-out; the reference is
    the first charge not fully covered.

  A reference charge dated after asOf gives 0 days, never a negative count.

SEE ALSO:
  - billing/latefee.go: uses DaysOverdue for late-fee eligibility
  - statement/: replays the same formula entry by entry
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// PURE ARITHMETIC
// =============================================================================

// Totals splits a ledger into its two sides.
type Totals struct {
	Charges  Money
	Payments Money
}

func (t Totals) Balance() Money { return t.Charges.Sub(t.Payments) }

func Tally(entries []Entry) Totals {
	currency := DefaultCurrency
	if len(entries) > 0 && entries[0].Amount.Currency != "" {
		currency = entries[0].Amount.Currency
	}
	t := Totals{Charges: Zero(currency), Payments: Zero(currency)}
	for _, e := range entries {
		switch e.Kind {
		case KindCharge:
			t.Charges = t.Charges.Add(e.Amount)
		case KindPayment:
			t.Payments = t.Payments.Add(e.Amount)
		}
	}
	return t
}

// Sum returns the balance of entries.
func Sum(entries []Entry) Money {
	return Tally(entries).Balance()
}

// SortEntries orders entries by (TransactionDate, Seq) in place.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].before(entries[j]) })
}

// OldestCharge returns the earliest CHARGE by (TransactionDate, Seq).
func OldestCharge(entries []Entry) (Entry, bool) {
	var oldest Entry
	found := false
	for _, e := range entries {
		if e.Kind != KindCharge {
			continue
		}
		if !found || e.before(oldest) {
			oldest, found = e, true
		}
	}
	return oldest, found
}

// LatestCharge returns the most recent CHARGE by (TransactionDate, Seq).
func LatestCharge(entries []Entry) (Entry, bool) {
	var latest Entry
	found := false
	for _, e := range entries {
		if e.Kind != KindCharge {
			continue
		}
		if !found || latest.before(e) {
			latest, found = e, true
		}
	}
	return latest, found
}

// OldestUnpaidCharge applies all payments to charges in (date, seq) order and
// returns the first charge left with an uncovered remainder.
func OldestUnpaidCharge(entries []Entry) (Entry, bool) {
	sorted := append([]Entry(nil), entries...)
	SortEntries(sorted)

	credit := Tally(sorted).Payments
	for _, e := range sorted {
		if e.Kind != KindCharge {
			continue
		}
		if credit.LessThan(e.Amount) {
			return e, true
		}
		credit = credit.Sub(e.Amount)
	}
	return Entry{}, false
}

// =============================================================================
// OVERDUE BASIS
// =============================================================================

type OverdueBasis int

const (
	OverdueFromOldestCharge OverdueBasis = iota
	OverdueFromOldestUnpaid
)

func (b OverdueBasis) String() string {
	if b == OverdueFromOldestUnpaid {
		return "oldest_unpaid"
	}
	return "oldest_charge"
}

func ParseOverdueBasis(s string) (OverdueBasis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oldest_charge":
		return OverdueFromOldestCharge, nil
	case "oldest_unpaid":
		return OverdueFromOldestUnpaid, nil
	}
	return OverdueFromOldestCharge, fmt.Errorf("unknown overdue basis %q", s)
}

func (b OverdueBasis) reference(entries []Entry) (Entry, bool) {
	if b == OverdueFromOldestUnpaid {
		return OldestUnpaidCharge(entries)
	}
	return OldestCharge(entries)
}

// DaysOverdue returns how many days the balance has been outstanding as of
// asOf. The second result is false when the balance is not positive.
func DaysOverdue(entries []Entry, asOf time.Time, basis OverdueBasis) (int, bool) {
	if !Sum(entries).IsPositive() {
		return 0, false
	}
	ref, ok := basis.reference(entries)
	if !ok {
		return 0, false
	}
	days := DaysBetween(ref.TransactionDate, asOf)
	if days < 0 {
		days = 0
	}
	return days, true
}

// =============================================================================
// BALANCE ENGINE - Store-backed reads
// =============================================================================

// Summary is a tenant's financial position at a point in time.
type Summary struct {
	TenantID      TenantID
	AsOf          time.Time
	TotalCharges  Money
	TotalPayments Money
	Balance       Money
	EntryCount    int
	OldestCharge  *Entry
	LatestCharge  *Entry
	DaysOverdue   int
	Overdue       bool
}

type BalanceEngine struct {
	Store Store
	Basis OverdueBasis
}

func NewBalanceEngine(store Store) *BalanceEngine {
	return &BalanceEngine{Store: store}
}

func (b *BalanceEngine) Balance(ctx context.Context, tenantID TenantID) (Money, error) {
	entries, err := b.Store.Entries(ctx, tenantID)
	if err != nil {
		return Money{}, fmt.Errorf("load entries for %s: %w", tenantID, err)
	}
	return Sum(entries), nil
}

// DaysOverdue is the store-backed form of the package-level DaysOverdue.
func (b *BalanceEngine) DaysOverdue(ctx context.Context, tenantID TenantID, asOf time.Time) (int, bool, error) {
	entries, err := b.Store.Entries(ctx, tenantID)
	if err != nil {
		return 0, false, fmt.Errorf("load entries for %s: %w", tenantID, err)
	}
	days, ok := DaysOverdue(entries, asOf, b.Basis)
	return days, ok, nil
}

func (b *BalanceEngine) Summary(ctx context.Context, tenantID TenantID, asOf time.Time) (Summary, error) {
	entries, err := b.Store.Entries(ctx, tenantID)
	if err != nil {
		return Summary{}, fmt.Errorf("load entries for %s: %w", tenantID, err)
	}
	return Summarize(tenantID, entries, asOf, b.Basis), nil
}

// Summarize builds a Summary from already-loaded entries.
func Summarize(tenantID TenantID, entries []Entry, asOf time.Time, basis OverdueBasis) Summary {
	totals := Tally(entries)
	s := Summary{
		TenantID:      tenantID,
		AsOf:          DateOf(asOf),
		TotalCharges:  totals.Charges,
		TotalPayments: totals.Payments,
		Balance:       totals.Balance(),
		EntryCount:    len(entries),
	}
	if e, ok := OldestCharge(entries); ok {
		s.OldestCharge = &e
	}
	if e, ok := LatestCharge(entries); ok {
		s.LatestCharge = &e
	}
	s.DaysOverdue, s.Overdue = DaysOverdue(entries, asOf, basis)
	return s
}
