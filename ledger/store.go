/*
store.go - Persistence interface for ledger entries

PURPOSE:
  Defines the boundary between ledger logic and the database. Different
  implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  - Append(): the ONLY write operation
  - NO Update() or Delete() methods exist
  Corrections are new entries (a payment or a credit), never edits.

PERIOD UNIQUENESS:
  A CHARGE entry carrying a PeriodKey is unique on
  (TenantID, PeriodKey, Category). Implementations enforce this at the
  storage layer and report violations as ErrDuplicatePeriodCharge, so two
  concurrent billing runs cannot both charge March rent.

ORDERING:
  Entries() and EntriesInRange() return entries ordered by
  (TransactionDate ASC, Seq ASC). Seq is assigned by Append and strictly
  increases with insertion order; it is the tie-break for entries on the
  same day.

IMPLEMENTATIONS:
  - store/sqlite/ledger.go: SQLite
  - store/memory/ledger.go: in-memory for tests and dry runs

SEE ALSO:
  - ledger.go: validation and idempotency on top of Store
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

type Store interface {
	// Append persists e and returns it with Seq (and CreatedAt, if unset)
	// filled in. Returns ErrDuplicatePeriodCharge if e's ChargeKey is taken.
	Append(ctx context.Context, e Entry) (Entry, error)

	// Entries returns every entry of a tenant, oldest first.
	Entries(ctx context.Context, tenantID TenantID) ([]Entry, error)

	// EntriesInRange returns entries with TransactionDate in [from, to].
	EntriesInRange(ctx context.Context, tenantID TenantID, from, to time.Time) ([]Entry, error)

	// GetEntry returns ErrEntryNotFound for an unknown ID.
	GetEntry(ctx context.Context, id EntryID) (Entry, error)

	// ListEntries returns entries across tenants, oldest first.
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)

	// HasCharge reports whether a CHARGE with this key exists.
	HasCharge(ctx context.Context, key ChargeKey) (bool, error)

	// HasChargeMatching reports whether the key's tenant has a CHARGE with
	// no period key, in the key's category (or none), whose description
	// contains every fragment (case-insensitive). It only exists to
	// recognise entries written before period keys.
	HasChargeMatching(ctx context.Context, key ChargeKey, fragments ...string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
