// Package memory provides in-memory implementations of the ledger and
// property stores, for tests, dry runs and the seed command.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/warp/tenancy-engine/ledger"
)

// =============================================================================
// LEDGER STORE - In-memory ledger.TxStore
// =============================================================================

type Ledger struct {
	mu      sync.RWMutex
	entries []ledger.Entry // insertion order
	byID    map[ledger.EntryID]int
	charges map[ledger.ChargeKey]ledger.EntryID
	seq     int64
}

func NewLedger() *Ledger {
	return &Ledger{
		byID:    make(map[ledger.EntryID]int),
		charges: make(map[ledger.ChargeKey]ledger.EntryID),
	}
}

func (m *Ledger) Append(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(e)
}

func (m *Ledger) Entries(_ context.Context, tenantID ledger.TenantID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(ledger.EntryFilter{TenantID: tenantID}), nil
}

func (m *Ledger) EntriesInRange(_ context.Context, tenantID ledger.TenantID, from, to time.Time) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(ledger.EntryFilter{TenantID: tenantID, From: from, To: to}), nil
}

func (m *Ledger) GetEntry(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Ledger) ListEntries(_ context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(filter), nil
}

func (m *Ledger) HasCharge(_ context.Context, key ledger.ChargeKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.charges[key]
	return ok, nil
}

func (m *Ledger) HasChargeMatching(_ context.Context, key ledger.ChargeKey, fragments ...string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matchingLocked(key, fragments), nil
}

func (m *Ledger) appendLocked(e ledger.Entry) (ledger.Entry, error) {
	if key, ok := e.ChargeKey(); ok {
		if _, taken := m.charges[key]; taken {
			return ledger.Entry{}, ledger.ErrDuplicatePeriodCharge
		}
		m.charges[key] = e.ID
	}
	m.seq++
	e.Seq = m.seq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.byID[e.ID] = len(m.entries)
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *Ledger) getLocked(id ledger.EntryID) (ledger.Entry, error) {
	i, ok := m.byID[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return m.entries[i], nil
}

func (m *Ledger) listLocked(filter ledger.EntryFilter) []ledger.Entry {
	var result []ledger.Entry
	for _, e := range m.entries {
		if filter.Matches(e) {
			result = append(result, e)
		}
	}
	ledger.SortEntries(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

func (m *Ledger) matchingLocked(key ledger.ChargeKey, fragments []string) bool {
	for _, e := range m.entries {
		if e.TenantID != key.TenantID || e.Kind != ledger.KindCharge || e.PeriodKey != "" {
			continue
		}
		if e.Category != "" && e.Category != key.Category {
			continue
		}
		if containsAll(e.Description, fragments) {
			return true
		}
	}
	return false
}

func containsAll(s string, fragments []string) bool {
	s = strings.ToLower(s)
	for _, f := range fragments {
		if !strings.Contains(s, strings.ToLower(f)) {
			return false
		}
	}
	return true
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback
// =============================================================================

// WithTx runs fn with exclusive access. If fn fails, every write it made is
// rolled back by restoring a snapshot taken before fn ran.
func (m *Ledger) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&ledgerTxView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type ledgerSnapshot struct {
	entries []ledger.Entry
	byID    map[ledger.EntryID]int
	charges map[ledger.ChargeKey]ledger.EntryID
	seq     int64
}

func (m *Ledger) snapshot() ledgerSnapshot {
	s := ledgerSnapshot{
		entries: append([]ledger.Entry(nil), m.entries...),
		byID:    make(map[ledger.EntryID]int, len(m.byID)),
		charges: make(map[ledger.ChargeKey]ledger.EntryID, len(m.charges)),
		seq:     m.seq,
	}
	for k, v := range m.byID {
		s.byID[k] = v
	}
	for k, v := range m.charges {
		s.charges[k] = v
	}
	return s
}

func (m *Ledger) restore(s ledgerSnapshot) {
	m.entries = s.entries
	m.byID = s.byID
	m.charges = s.charges
	m.seq = s.seq
}

// ledgerTxView runs against the parent while its write lock is held.
type ledgerTxView struct {
	parent *Ledger
}

func (v *ledgerTxView) Append(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	return v.parent.appendLocked(e)
}

func (v *ledgerTxView) Entries(_ context.Context, tenantID ledger.TenantID) ([]ledger.Entry, error) {
	return v.parent.listLocked(ledger.EntryFilter{TenantID: tenantID}), nil
}

func (v *ledgerTxView) EntriesInRange(_ context.Context, tenantID ledger.TenantID, from, to time.Time) ([]ledger.Entry, error) {
	return v.parent.listLocked(ledger.EntryFilter{TenantID: tenantID, From: from, To: to}), nil
}

func (v *ledgerTxView) GetEntry(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return v.parent.getLocked(id)
}

func (v *ledgerTxView) ListEntries(_ context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	return v.parent.listLocked(filter), nil
}

func (v *ledgerTxView) HasCharge(_ context.Context, key ledger.ChargeKey) (bool, error) {
	_, ok := v.parent.charges[key]
	return ok, nil
}

func (v *ledgerTxView) HasChargeMatching(_ context.Context, key ledger.ChargeKey, fragments ...string) (bool, error) {
	return v.parent.matchingLocked(key, fragments), nil
}

var (
	_ ledger.TxStore = (*Ledger)(nil)
	_ ledger.Store   = (*ledgerTxView)(nil)
)
