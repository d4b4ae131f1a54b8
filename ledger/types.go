/*
Package ledger provides the tenant ledger: an append-only record of money
owed (charges) and money received (payments), and the balance arithmetic
derived from it.

PURPOSE:
  Every rent charge, late fee, deposit and payment for a tenant is an
  immutable Entry. A tenant's balance is never stored; it is always
  recomputed by summing the entries. Positive balance means the tenant owes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: an immutable ledger record (CHARGE or PAYMENT)
  - Category: what a charge is for (rent, late_fee, deposit, other)
  - ChargeKey: structured idempotency key (tenant, period, category)
  - TenantID / EntryID: type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: entries are never edited or deleted
  2. Precision: amounts are decimal.Decimal, never float64
  3. Explicit identity: period charges carry a PeriodKey so "already charged
     for March 2026" is a uniqueness constraint, not a text search

USAGE:
  entry := ledger.Entry{
      TenantID:        "tenant-42",
      Kind:            ledger.KindCharge,
      Category:        ledger.CategoryRent,
      Amount:          ledger.MustMoney("30000", ledger.CurrencyKES),
      TransactionDate: ledger.Date(2026, time.March, 1),
      PeriodKey:       ledger.NewPeriod(2026, time.March).Key(),
      Description:     "Rent for March 2026",
  }

SEE ALSO:
  - money.go: Money and rounding
  - period.go: BillingPeriod and date helpers
  - store.go: persistence interface
  - balance.go: balance and overdue computation
*/
package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type EntryID string

// =============================================================================
// ENTRY - Immutable ledger record
// =============================================================================

type EntryKind string

const (
	KindCharge  EntryKind = "CHARGE"
	KindPayment EntryKind = "PAYMENT"
)

func (k EntryKind) Valid() bool {
	return k == KindCharge || k == KindPayment
}

// Category classifies an entry. Payments always use CategoryPayment.
type Category string

const (
	CategoryRent    Category = "rent"
	CategoryLateFee Category = "late_fee"
	CategoryDeposit Category = "deposit"
	CategoryOther   Category = "other"
	CategoryPayment Category = "payment"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodMPesa        PaymentMethod = "MPESA"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCheque       PaymentMethod = "CHEQUE"
	MethodOther        PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodMPesa, MethodBankTransfer, MethodCheque, MethodOther:
		return true
	}
	return false
}

type Entry struct {
	ID              EntryID
	Seq             int64 // insertion order, assigned by the store
	TenantID        TenantID
	Kind            EntryKind
	Category        Category
	Amount          Money // always positive; Kind carries the sign
	TransactionDate time.Time
	Description     string

	// PeriodKey ("2026-03") identifies the billing period a charge belongs to.
	// Empty for payments and ad-hoc charges.
	PeriodKey string

	PaymentMethod   PaymentMethod
	ReferenceNumber string
	Notes           string

	CreatedBy string
	CreatedAt time.Time
}

// Signed returns the entry's contribution to the balance:
// +amount for charges, -amount for payments.
func (e Entry) Signed() Money {
	if e.Kind == KindPayment {
		return e.Amount.Neg()
	}
	return e.Amount
}

func (e Entry) IsCharge() bool  { return e.Kind == KindCharge }
func (e Entry) IsPayment() bool { return e.Kind == KindPayment }

// ChargeKey returns the structured idempotency key of a period charge.
// The second result is false for payments and charges without a period.
func (e Entry) ChargeKey() (ChargeKey, bool) {
	if e.Kind != KindCharge || e.PeriodKey == "" {
		return ChargeKey{}, false
	}
	return ChargeKey{TenantID: e.TenantID, PeriodKey: e.PeriodKey, Category: e.Category}, true
}

// before orders entries by (transaction date, insertion sequence).
func (e Entry) before(other Entry) bool {
	d1, d2 := DateOf(e.TransactionDate), DateOf(other.TransactionDate)
	if !d1.Equal(d2) {
		return d1.Before(d2)
	}
	return e.Seq < other.Seq
}

// =============================================================================
// CHARGE KEY - (tenant, period, category) uniqueness
// =============================================================================

// ChargeKey identifies "the rent for tenant T in March 2026" or "the late
// fee for tenant T in March 2026". At most one CHARGE entry may carry a
// given key.
type ChargeKey struct {
	TenantID  TenantID
	PeriodKey string
	Category  Category
}

func (k ChargeKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.PeriodKey, k.Category)
}

// =============================================================================
// QUERIES
// =============================================================================

// EntryFilter narrows ListEntries. Zero values mean "any".
type EntryFilter struct {
	TenantID TenantID
	Kind     EntryKind
	Category Category
	From     time.Time
	To       time.Time
	Limit    int
}

func (f EntryFilter) Matches(e Entry) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	d := DateOf(e.TransactionDate)
	if !f.From.IsZero() && d.Before(DateOf(f.From)) {
		return false
	}
	if !f.To.IsZero() && d.After(DateOf(f.To)) {
		return false
	}
	return true
}
