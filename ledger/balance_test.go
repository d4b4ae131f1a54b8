package ledger_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const tenant ledger.TenantID = "tenant-1"

func charge(amount string, date time.Time, seq int64) ledger.Entry {
	return ledger.Entry{
		TenantID: tenant, Kind: ledger.KindCharge, Category: ledger.CategoryRent,
		Amount: kes(amount), TransactionDate: date, Seq: seq,
	}
}

func payment(amount string, date time.Time, seq int64) ledger.Entry {
	return ledger.Entry{
		TenantID: tenant, Kind: ledger.KindPayment, Category: ledger.CategoryPayment,
		Amount: kes(amount), TransactionDate: date, Seq: seq,
	}
}

func march(day int) time.Time { return ledger.Date(2026, time.March, day) }

// =============================================================================
// SUM
// =============================================================================

func TestSum_ChargesMinusPayments(t *testing.T) {
	entries := []ledger.Entry{
		charge("30000", march(1), 1),
		charge("1500", march(10), 2),
		payment("20000", march(5), 3),
		payment("0.50", march(6), 4),
	}

	totals := ledger.Tally(entries)
	assert.Equal(t, "31500.00", totals.Charges.String())
	assert.Equal(t, "20000.50", totals.Payments.String())
	assert.Equal(t, "11499.50", ledger.Sum(entries).String())
}

func TestSum_OrderIndependent(t *testing.T) {
	// GIVEN: a ledger with awkward decimal amounts
	entries := []ledger.Entry{
		charge("0.10", march(1), 1),
		charge("0.20", march(1), 2),
		charge("10000.33", march(2), 3),
		payment("0.30", march(3), 4),
		payment("9999.99", march(4), 5),
		charge("7.77", march(5), 6),
	}
	want := ledger.Sum(entries)
	assert.Equal(t, "8.11", want.String())

	// WHEN: summing every shuffled ordering
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		shuffled := append([]ledger.Entry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		// THEN: the balance is exactly the same
		assert.True(t, want.Equal(ledger.Sum(shuffled)), "ordering %d gave %s", i, ledger.Sum(shuffled))
	}
}

func TestSum_Empty(t *testing.T) {
	assert.True(t, ledger.Sum(nil).IsZero())
}

// =============================================================================
// OVERDUE
// =============================================================================

func TestOldestCharge_TieBreakOnSequence(t *testing.T) {
	// GIVEN: two charges on the same day, inserted in order 7 then 3
	late := charge("100", march(1), 7)
	early := charge("200", march(1), 3)

	// WHEN: looking for the oldest in either slice order
	a, ok := ledger.OldestCharge([]ledger.Entry{late, early})
	require.True(t, ok)
	b, _ := ledger.OldestCharge([]ledger.Entry{early, late})

	// THEN: the lower sequence wins regardless
	assert.Equal(t, int64(3), a.Seq)
	assert.Equal(t, int64(3), b.Seq)
}

func TestOldestCharge_IgnoresPayments(t *testing.T) {
	entries := []ledger.Entry{payment("100", march(1), 1), charge("100", march(2), 2)}
	oldest, ok := ledger.OldestCharge(entries)
	require.True(t, ok)
	assert.Equal(t, march(2), oldest.TransactionDate)

	latest, ok := ledger.LatestCharge(entries)
	require.True(t, ok)
	assert.Equal(t, int64(2), latest.Seq)
}

func TestDaysOverdue_OnlyWithPositiveBalance(t *testing.T) {
	entries := []ledger.Entry{charge("30000", march(1), 1), payment("30000", march(2), 2)}

	days, overdue := ledger.DaysOverdue(entries, march(31), ledger.OverdueFromOldestCharge)
	assert.False(t, overdue)
	assert.Zero(t, days)
}

func TestDaysOverdue_FromOldestCharge(t *testing.T) {
	entries := []ledger.Entry{
		charge("30000", march(1), 1),
		payment("30000", march(2), 2),
		charge("30000", ledger.Date(2026, time.April, 1), 3),
	}

	// The oldest charge was paid, but the rule still measures from it.
	days, overdue := ledger.DaysOverdue(entries, ledger.Date(2026, time.April, 10), ledger.OverdueFromOldestCharge)
	assert.True(t, overdue)
	assert.Equal(t, 40, days)
}

func TestDaysOverdue_FromOldestUnpaid(t *testing.T) {
	entries := []ledger.Entry{
		charge("30000", march(1), 1),
		payment("30000", march(2), 2),
		charge("30000", ledger.Date(2026, time.April, 1), 3),
	}

	days, overdue := ledger.DaysOverdue(entries, ledger.Date(2026, time.April, 10), ledger.OverdueFromOldestUnpaid)
	assert.True(t, overdue)
	assert.Equal(t, 9, days)
}

func TestOldestUnpaidCharge_PartialPayment(t *testing.T) {
	entries := []ledger.Entry{
		charge("100", march(1), 1),
		charge("100", march(2), 2),
		payment("150", march(3), 3),
	}
	e, ok := ledger.OldestUnpaidCharge(entries)
	require.True(t, ok)
	assert.Equal(t, int64(2), e.Seq, "first charge covered, second half-covered")
}

func TestDaysOverdue_FutureChargeClampsToZero(t *testing.T) {
	entries := []ledger.Entry{charge("100", march(20), 1)}
	days, overdue := ledger.DaysOverdue(entries, march(10), ledger.OverdueFromOldestCharge)
	assert.True(t, overdue)
	assert.Zero(t, days)
}

func TestParseOverdueBasis(t *testing.T) {
	b, err := ledger.ParseOverdueBasis("oldest_unpaid")
	require.NoError(t, err)
	assert.Equal(t, ledger.OverdueFromOldestUnpaid, b)
	assert.Equal(t, "oldest_unpaid", b.String())

	_, err = ledger.ParseOverdueBasis("newest")
	assert.Error(t, err)
}

// =============================================================================
// BALANCE ENGINE
// =============================================================================

func TestBalanceEngine_Summary(t *testing.T) {
	// GIVEN: a tenant charged twice and paid once through the ledger
	ctx := context.Background()
	store := memory.NewLedger()
	l := ledger.New(store)

	for _, e := range []ledger.Entry{
		charge("30000", march(1), 0),
		payment("10000", march(3), 0),
		charge("1500", march(12), 0),
	} {
		_, err := l.Record(ctx, e)
		require.NoError(t, err)
	}

	// WHEN: summarizing on March 21
	engine := ledger.NewBalanceEngine(store)
	summary, err := engine.Summary(ctx, tenant, march(21))
	require.NoError(t, err)

	// THEN
	assert.Equal(t, "21500.00", summary.Balance.String())
	assert.Equal(t, "31500.00", summary.TotalCharges.String())
	assert.Equal(t, "10000.00", summary.TotalPayments.String())
	assert.Equal(t, 3, summary.EntryCount)
	assert.True(t, summary.Overdue)
	assert.Equal(t, 20, summary.DaysOverdue)
	require.NotNil(t, summary.LatestCharge)
	assert.Equal(t, march(12), summary.LatestCharge.TransactionDate)

	balance, err := engine.Balance(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, balance.Equal(summary.Balance))

	days, ok, err := engine.DaysOverdue(ctx, tenant, march(21))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 20, days)
}
