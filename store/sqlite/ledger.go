package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/tenancy-engine/ledger"
)

// =============================================================================
// LEDGER STORE (ledger.TxStore interface)
// =============================================================================

type LedgerStore struct {
	s *Store
}

func (l *LedgerStore) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return ledgerQueries{l.s.db}.Append(ctx, e)
}

func (l *LedgerStore) Entries(ctx context.Context, tenantID ledger.TenantID) ([]ledger.Entry, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return ledgerQueries{l.s.db}.Entries(ctx, tenantID)
}

func (l *LedgerStore) EntriesInRange(ctx context.Context, tenantID ledger.TenantID, from, to time.Time) ([]ledger.Entry, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return ledgerQueries{l.s.db}.EntriesInRange(ctx, tenantID, from, to)
}

func (l *LedgerStore) GetEntry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return ledgerQueries{l.s.db}.GetEntry(ctx, id)
}

func (l *LedgerStore) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return ledgerQueries{l.s.db}.ListEntries(ctx, filter)
}

func (l *LedgerStore) HasCharge(ctx context.Context, key ledger.ChargeKey) (bool, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return ledgerQueries{l.s.db}.HasCharge(ctx, key)
}

func (l *LedgerStore) HasChargeMatching(ctx context.Context, key ledger.ChargeKey, fragments ...string) (bool, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return ledgerQueries{l.s.db}.HasChargeMatching(ctx, key, fragments...)
}

// WithTx executes fn within a database transaction. Reads inside fn see
// the transaction's own writes.
func (l *LedgerStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return l.s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ledgerQueries{tx})
	})
}

// =============================================================================
// QUERIES - shared by the locked store and transactions
// =============================================================================

type ledgerQueries struct {
	q querier
}

const entryColumns = `seq, id, tenant_id, kind, category, amount, currency, transaction_date,
	description, period_key, payment_method, reference_number, notes, created_by, created_at`

func (lq ledgerQueries) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO ledger_entries
		(id, tenant_id, kind, category, amount, currency, transaction_date,
		 description, period_key, payment_method, reference_number, notes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := lq.q.ExecContext(ctx, query,
		e.ID,
		e.TenantID,
		e.Kind,
		e.Category,
		e.Amount.Value.String(),
		currencyOf(e.Amount),
		formatDate(e.TransactionDate),
		e.Description,
		nullString(e.PeriodKey),
		nullString(string(e.PaymentMethod)),
		nullString(e.ReferenceNumber),
		nullString(e.Notes),
		e.CreatedBy,
		formatTimestamp(e.CreatedAt),
	)
	if err != nil {
		if isPeriodChargeConflict(err) {
			return ledger.Entry{}, ledger.ErrDuplicatePeriodCharge
		}
		return ledger.Entry{}, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to read entry sequence: %w", err)
	}
	e.Seq = seq
	e.TransactionDate = ledger.DateOf(e.TransactionDate)
	return e, nil
}

func (lq ledgerQueries) Entries(ctx context.Context, tenantID ledger.TenantID) ([]ledger.Entry, error) {
	return lq.query(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE tenant_id = ?
		ORDER BY transaction_date ASC, seq ASC
	`, tenantID)
}

func (lq ledgerQueries) EntriesInRange(ctx context.Context, tenantID ledger.TenantID, from, to time.Time) ([]ledger.Entry, error) {
	return lq.query(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE tenant_id = ? AND transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date ASC, seq ASC
	`, tenantID, formatDate(from), formatDate(to))
}

func (lq ledgerQueries) GetEntry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	entries, err := lq.query(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return entries[0], nil
}

func (lq ledgerQueries) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if !f.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, formatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "transaction_date <= ?")
		args = append(args, formatDate(f.To))
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_date ASC, seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return lq.query(ctx, query, args...)
}

func (lq ledgerQueries) HasCharge(ctx context.Context, key ledger.ChargeKey) (bool, error) {
	var count int
	err := lq.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE kind = 'CHARGE' AND tenant_id = ? AND period_key = ? AND category = ?
	`, key.TenantID, key.PeriodKey, key.Category).Scan(&count)
	return count > 0, err
}

func (lq ledgerQueries) HasChargeMatching(ctx context.Context, key ledger.ChargeKey, fragments ...string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM ledger_entries
		WHERE kind = 'CHARGE' AND tenant_id = ?
		  AND COALESCE(period_key, '') = ''
		  AND COALESCE(category, '') IN ('', ?)`
	args := []any{key.TenantID, key.Category}
	for _, f := range fragments {
		// LIKE is case-insensitive for ASCII in SQLite.
		query += ` AND description LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(f)+"%")
	}

	var count int
	err := lq.q.QueryRowContext(ctx, query, args...).Scan(&count)
	return count > 0, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (lq ledgerQueries) query(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := lq.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e               ledger.Entry
		amount          string
		currency        string
		transactionDate string
		periodKey       sql.NullString
		paymentMethod   sql.NullString
		referenceNumber sql.NullString
		notes           sql.NullString
		createdAt       string
	)

	err := rows.Scan(
		&e.Seq, &e.ID, &e.TenantID, &e.Kind, &e.Category, &amount, &currency, &transactionDate,
		&e.Description, &periodKey, &paymentMethod, &referenceNumber, &notes, &e.CreatedBy, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.Amount = parseMoney(amount, currency)
	e.TransactionDate = parseDate(transactionDate)
	e.PeriodKey = periodKey.String
	e.PaymentMethod = ledger.PaymentMethod(paymentMethod.String)
	e.ReferenceNumber = referenceNumber.String
	e.Notes = notes.String
	e.CreatedAt = parseTimestamp(createdAt)
	return e, nil
}

var (
	_ ledger.TxStore = (*LedgerStore)(nil)
	_ ledger.Store   = ledgerQueries{}
)
