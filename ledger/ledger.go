/*
ledger.go - Validated, idempotent writes to the append-only store

PURPOSE:
  Ledger is the only way entries get written. It validates amounts before
  anything touches storage, assigns IDs and timestamps, and turns the
  "already charged for this period?" question into a check-and-append that
  runs inside one store transaction.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete
  2. VALID AMOUNTS: every amount is > 0 and exact to 0.01
  3. ONE CHARGE PER KEY: at most one CHARGE per (tenant, period, category)

LEGACY DESCRIPTIONS:
  Entries written before period keys existed are only recognisable by their
  description ("Rent for March 2026"). RecordPeriodCharge accepts the
  description fragments to look for and checks them in the same transaction
  as the key lookup. Only unkeyed charges of the same category are searched,
  so a keyed entry is found by its key alone.

SEE ALSO:
  - store.go: persistence interface
  - balance.go: read side
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store TxStore
	now   func() time.Time
	newID func() EntryID
}

type Option func(*Ledger)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides entry ID generation.
func WithIDGenerator(gen func() EntryID) Option {
	return func(l *Ledger) { l.newID = gen }
}

func New(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		newID: func() EntryID { return EntryID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the underlying store for read-side components.
func (l *Ledger) Store() TxStore { return l.store }

// Record validates and appends e. A CHARGE carrying a PeriodKey is refused
// with a *DuplicatePeriodChargeError if its key is already taken.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	return l.RecordPeriodCharge(ctx, e)
}

// RecordPeriodCharge is Record plus a legacy check: when legacyFragments is
// non-empty, an unkeyed CHARGE in the same category whose description
// contains all of them also counts as a duplicate.
func (l *Ledger) RecordPeriodCharge(ctx context.Context, e Entry, legacyFragments ...string) (Entry, error) {
	e, err := l.prepare(e)
	if err != nil {
		return Entry{}, err
	}

	var saved Entry
	err = l.store.WithTx(ctx, func(s Store) error {
		if key, ok := e.ChargeKey(); ok {
			if err := checkNotCharged(ctx, s, key, legacyFragments); err != nil {
				return err
			}
		}
		var err error
		saved, err = s.Append(ctx, e)
		return err
	})
	if err != nil {
		// A concurrent writer can still win the race between the check and
		// the insert; the storage index reports it as the bare sentinel.
		var dup *DuplicatePeriodChargeError
		if !errors.As(err, &dup) && errors.Is(err, ErrDuplicatePeriodCharge) {
			key, _ := e.ChargeKey()
			return Entry{}, &DuplicatePeriodChargeError{Key: key}
		}
		return Entry{}, err
	}
	return saved, nil
}

// ChargeExists answers the idempotency question without writing. Dry runs
// use it to report what a real run would skip.
func (l *Ledger) ChargeExists(ctx context.Context, key ChargeKey, legacyFragments ...string) (bool, error) {
	err := checkNotCharged(ctx, l.store, key, legacyFragments)
	if errors.Is(err, ErrDuplicatePeriodCharge) {
		return true, nil
	}
	return false, err
}

func checkNotCharged(ctx context.Context, s Store, key ChargeKey, legacyFragments []string) error {
	exists, err := s.HasCharge(ctx, key)
	if err != nil {
		return fmt.Errorf("check charge %s: %w", key, err)
	}
	if exists {
		return &DuplicatePeriodChargeError{Key: key}
	}
	if len(legacyFragments) == 0 {
		return nil
	}
	exists, err = s.HasChargeMatching(ctx, key, legacyFragments...)
	if err != nil {
		return fmt.Errorf("check legacy charge %s: %w", key, err)
	}
	if exists {
		return &DuplicatePeriodChargeError{Key: key, Legacy: true, Description: strings.Join(legacyFragments, " ")}
	}
	return nil
}

func (l *Ledger) prepare(e Entry) (Entry, error) {
	if e.TenantID == "" {
		return Entry{}, fmt.Errorf("%w: tenant is required", ErrInvalidEntry)
	}
	if !e.Kind.Valid() {
		return Entry{}, fmt.Errorf("%w: kind %q", ErrInvalidEntry, e.Kind)
	}
	if e.TransactionDate.IsZero() {
		return Entry{}, fmt.Errorf("%w: transaction date is required", ErrInvalidEntry)
	}
	if e.Amount.Currency == "" {
		e.Amount.Currency = DefaultCurrency
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return Entry{}, err
	}
	if e.PaymentMethod != "" && !e.PaymentMethod.Valid() {
		return Entry{}, fmt.Errorf("%w: payment method %q", ErrInvalidEntry, e.PaymentMethod)
	}

	switch {
	case e.Kind == KindPayment:
		e.Category = CategoryPayment
		e.PeriodKey = ""
	case e.Category == "" || e.Category == CategoryPayment:
		e.Category = CategoryOther
	}

	e.TransactionDate = DateOf(e.TransactionDate)
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.CreatedBy == "" {
		e.CreatedBy = "system"
	}
	return e, nil
}

// =============================================================================
// READS (delegated)
// =============================================================================

func (l *Ledger) Entries(ctx context.Context, tenantID TenantID) ([]Entry, error) {
	return l.store.Entries(ctx, tenantID)
}

func (l *Ledger) EntriesInRange(ctx context.Context, tenantID TenantID, from, to time.Time) ([]Entry, error) {
	return l.store.EntriesInRange(ctx, tenantID, from, to)
}

func (l *Ledger) Entry(ctx context.Context, id EntryID) (Entry, error) {
	return l.store.GetEntry(ctx, id)
}

func (l *Ledger) List(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	return l.store.ListEntries(ctx, filter)
}
