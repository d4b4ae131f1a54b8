package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/store/memory"
)

func newTestLedger() (*ledger.Ledger, *memory.Ledger) {
	store := memory.NewLedger()
	now := func() time.Time { return time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC) }
	return ledger.New(store, ledger.WithClock(now)), store
}

func rentCharge(period ledger.BillingPeriod) ledger.Entry {
	return ledger.Entry{
		TenantID:        tenant,
		Kind:            ledger.KindCharge,
		Category:        ledger.CategoryRent,
		Amount:          kes("30000"),
		TransactionDate: period.Start(),
		PeriodKey:       period.Key(),
		Description:     "Rent for " + period.Label(),
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRecord_RejectsInvalidAmountsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger()

	for _, amount := range []string{"0", "-100", "100.001"} {
		e := charge(amount, march(1), 0)
		_, err := l.Record(ctx, e)
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount, amount)
	}

	entries, err := store.Entries(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing should be written")
}

func TestRecord_RejectsIncompleteEntries(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	_, err := l.Record(ctx, ledger.Entry{Kind: ledger.KindCharge, Amount: kes("1"), TransactionDate: march(1)})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)

	_, err = l.Record(ctx, ledger.Entry{TenantID: tenant, Kind: "REFUND", Amount: kes("1"), TransactionDate: march(1)})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)

	_, err = l.Record(ctx, ledger.Entry{TenantID: tenant, Kind: ledger.KindPayment, Amount: kes("1")})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)
}

func TestRecord_AssignsIdentityAndNormalizes(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	// GIVEN: a payment mistakenly carrying a rent category and period key
	p := payment("500", time.Date(2026, time.March, 3, 17, 45, 0, 0, time.UTC), 0)
	p.Category = ledger.CategoryRent
	p.PeriodKey = "2026-03"

	// WHEN
	saved, err := l.Record(ctx, p)
	require.NoError(t, err)

	// THEN
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, int64(1), saved.Seq)
	assert.Equal(t, ledger.CategoryPayment, saved.Category)
	assert.Empty(t, saved.PeriodKey)
	assert.Equal(t, march(3), saved.TransactionDate)
	assert.Equal(t, "system", saved.CreatedBy)
	assert.Equal(t, 2026, saved.CreatedAt.Year())

	got, err := l.Entry(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
}

// =============================================================================
// PERIOD UNIQUENESS
// =============================================================================

func TestRecord_DuplicatePeriodCharge(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger()
	period := ledger.NewPeriod(2026, time.March)

	// GIVEN: March rent already charged
	_, err := l.Record(ctx, rentCharge(period))
	require.NoError(t, err)

	// WHEN: charging March rent again
	_, err = l.Record(ctx, rentCharge(period))

	// THEN: a structured duplicate error, and still one entry
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDuplicatePeriodCharge)
	var dup *ledger.DuplicatePeriodChargeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, ledger.ChargeKey{TenantID: tenant, PeriodKey: "2026-03", Category: ledger.CategoryRent}, dup.Key)
	assert.False(t, dup.Legacy)
	assert.True(t, ledger.IsConflict(err))

	entries, _ := store.Entries(ctx, tenant)
	assert.Len(t, entries, 1)
}

func TestRecord_SamePeriodDifferentCategory(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()
	period := ledger.NewPeriod(2026, time.March)

	_, err := l.Record(ctx, rentCharge(period))
	require.NoError(t, err)

	fee := rentCharge(period)
	fee.Category = ledger.CategoryLateFee
	fee.Amount = kes("1500")
	_, err = l.Record(ctx, fee)
	assert.NoError(t, err, "a late fee and the rent share a period but not a key")
}

func TestRecordPeriodCharge_LegacyDescription(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()
	period := ledger.NewPeriod(2026, time.January)

	// GIVEN: an old entry with no period key, recognisable only by description
	legacy := charge("30000", ledger.Date(2026, time.January, 1), 0)
	legacy.Description = "Rent for January 2026"
	_, err := l.Record(ctx, legacy)
	require.NoError(t, err)

	// WHEN: recording the keyed charge with the label as a legacy fragment
	_, err = l.RecordPeriodCharge(ctx, rentCharge(period), period.Label())

	// THEN
	var dup *ledger.DuplicatePeriodChargeError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Legacy)

	exists, err := l.ChargeExists(ctx, dup.Key, "january 2026")
	require.NoError(t, err)
	assert.True(t, exists, "fragment match is case-insensitive")

	exists, err = l.ChargeExists(ctx, dup.Key)
	require.NoError(t, err)
	assert.False(t, exists, "no keyed charge exists")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestMemoryLedger_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	_, store := newTestLedger()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s ledger.Store) error {
		e := rentCharge(ledger.NewPeriod(2026, time.March))
		e.ID = "e-1"
		if _, err := s.Append(ctx, e); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, _ := store.Entries(ctx, tenant)
	assert.Empty(t, entries)
	has, _ := store.HasCharge(ctx, ledger.ChargeKey{TenantID: tenant, PeriodKey: "2026-03", Category: ledger.CategoryRent})
	assert.False(t, has, "key index rolled back with the entry")

	// Sequence numbering restarts where it was.
	saved, err := store.Append(ctx, payment("1", march(1), 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Seq)
}

func TestList_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	for _, e := range []ledger.Entry{
		payment("100", march(20), 0),
		charge("300", march(5), 0),
		charge("200", march(5), 0),
	} {
		_, err := l.Record(ctx, e)
		require.NoError(t, err)
	}

	all, err := l.List(ctx, ledger.EntryFilter{TenantID: tenant})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "300.00", all[0].Amount.String(), "same date: insertion order")
	assert.Equal(t, "200.00", all[1].Amount.String())

	charges, err := l.List(ctx, ledger.EntryFilter{Kind: ledger.KindCharge, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, charges, 1)

	inRange, err := l.EntriesInRange(ctx, tenant, march(10), march(31))
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.True(t, inRange[0].IsPayment())
}
