/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TxStore and property.TxStore on one database file.
  In production the same patterns apply to PostgreSQL with minor dialect
  differences.

INTERFACES IMPLEMENTED:
  ledger.TxStore:   (*Store).Ledger()      - append-only ledger entries
  property.TxStore: (*Store).Properties()  - buildings, units, tenants,
                                             leases, maintenance, activity log

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on ledger_entries or activity_log
  - Corrections are new entries

KEY TABLES:
  ledger_entries:       Immutable ledger of charges and payments
  buildings, units:     Property inventory
  tenants, leases:      Occupancy
  maintenance_requests: Repair tracking
  activity_log:         Audit trail

INDEXES:
  - idx_unique_period_charge: at most one CHARGE per
    (tenant_id, period_key, category); this is what makes rent and late-fee
    runs safe to repeat or to race
  - idx_ledger_tenant_date: balance and statement queries (hot path)
  - idx_unique_tenant_id_number: national ID numbers are unique when given

ORDERING:
  seq is an AUTOINCREMENT primary key, so it records insertion order.
  Ledger queries order by (transaction_date, seq).

CONCURRENCY:
  A sync.RWMutex serializes writers. The pool is capped at one connection:
  SQLite allows a single writer, and ":memory:" databases exist per
  connection.

USAGE:
  store, err := sqlite.New("./data/tenancy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store.Ledger())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - ledger/store.go, property/store.go: interface definitions
  - store/memory/: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/tenancy-engine/ledger"
)

// Store owns the database handle shared by the ledger and property views.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Ledger returns the ledger.TxStore view of the database.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s: s} }

// Properties returns the property.TxStore view of the database.
func (s *Store) Properties() *PropertyStore { return &PropertyStore{s: s} }

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('CHARGE', 'PAYMENT')),
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		transaction_date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		period_key TEXT,
		payment_method TEXT,
		reference_number TEXT,
		notes TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one charge per (tenant, period, category)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_period_charge
		ON ledger_entries(tenant_id, period_key, category)
		WHERE kind = 'CHARGE' AND period_key IS NOT NULL;

	-- Balance and statement queries (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_tenant_date
		ON ledger_entries(tenant_id, transaction_date, seq);

	CREATE INDEX IF NOT EXISTS idx_ledger_kind
		ON ledger_entries(kind);

	-- Buildings
	CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		total_units INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Units
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		building_id TEXT NOT NULL,
		number TEXT NOT NULL,
		monthly_rent TEXT NOT NULL,
		currency TEXT NOT NULL,
		bedrooms INTEGER NOT NULL DEFAULT 1,
		bathrooms INTEGER NOT NULL DEFAULT 1,
		square_feet INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('VACANT', 'OCCUPIED', 'MAINTENANCE')),
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (building_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_units_building
		ON units(building_id);

	-- Tenants
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		id_number TEXT NOT NULL DEFAULT '',
		emergency_contact_name TEXT NOT NULL DEFAULT '',
		emergency_contact_phone TEXT NOT NULL DEFAULT '',
		move_in_date TEXT NOT NULL,
		move_out_date TEXT,
		deposit TEXT NOT NULL,
		currency TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_unit_active
		ON tenants(unit_id, move_out_date);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_tenant_id_number
		ON tenants(id_number) WHERE id_number <> '';

	-- Leases
	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		monthly_rent TEXT NOT NULL,
		security_deposit TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('DRAFT', 'ACTIVE', 'EXPIRED', 'TERMINATED')),
		terms TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leases_tenant
		ON leases(tenant_id, status);

	-- Maintenance requests
	CREATE TABLE IF NOT EXISTS maintenance_requests (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		reported_at TEXT NOT NULL,
		scheduled_date TEXT,
		completed_at TEXT,
		assigned_to TEXT NOT NULL DEFAULT '',
		estimated_cost TEXT NOT NULL,
		actual_cost TEXT NOT NULL,
		currency TEXT NOT NULL,
		resolution_notes TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	-- Activity log (append-only)
	CREATE TABLE IF NOT EXISTS activity_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		model TEXT NOT NULL,
		object_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_activity_object
		ON activity_log(model, object_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data. Used by the seed command; never by the ledger.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_entries", "activity_log", "maintenance_requests", "leases", "tenants", "units", "buildings"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// withTx runs fn inside a database transaction while holding the write lock.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(t time.Time) string {
	return ledger.DateOf(t).Format(time.DateOnly)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func parseNullDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseDate(s.String)
	return &t
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func parseNullTimestamp(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTimestamp(s.String)
	return &t
}

func parseMoney(value, currency string) ledger.Money {
	d, err := decimal.NewFromString(value)
	if err != nil {
		d = decimal.Zero
	}
	return ledger.NewMoney(d, ledger.Currency(currency))
}

func currencyOf(m ledger.Money) string {
	if m.Currency == "" {
		return string(ledger.DefaultCurrency)
	}
	return string(m.Currency)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isPeriodChargeConflict(err error) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), "period_key")
}
