package statement_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/property"
	"github.com/warp/tenancy-engine/statement"
)

func kes(v string) ledger.Money { return ledger.MustMoney(v, ledger.CurrencyKES) }

var account = billing.Account{
	Tenant: property.Tenant{
		ID: "t-1", FirstName: "Amina", LastName: "Otieno", Phone: "+254700000001",
		MoveInDate: ledger.Date(2026, time.January, 1),
	},
	Unit:     property.Unit{ID: "u-1", Number: "A1", MonthlyRent: kes("30000")},
	Building: property.Building{ID: "b-1", Name: "Sunrise Court"},
}

func entry(seq int64, kind ledger.EntryKind, amount string, day int, desc string) ledger.Entry {
	return ledger.Entry{
		ID:              ledger.EntryID("e-" + desc),
		Seq:             seq,
		TenantID:        "t-1",
		Kind:            kind,
		Amount:          kes(amount),
		TransactionDate: ledger.Date(2026, time.March, day),
		Description:     desc,
	}
}

var generatedAt = time.Date(2026, time.April, 2, 10, 30, 0, 0, time.UTC)

// =============================================================================
// BUILD
// =============================================================================

func TestBuild_RunningBalanceInLedgerOrder(t *testing.T) {
	// GIVEN: entries out of order, two of them on the same day
	entries := []ledger.Entry{
		entry(3, ledger.KindPayment, "10000", 5, "M-Pesa payment"),
		entry(1, ledger.KindCharge, "30000", 1, "Rent for March 2026"),
		entry(4, ledger.KindCharge, "1500", 10, "Late Fee for March 2026 (9 days overdue)"),
		entry(2, ledger.KindPayment, "5000", 5, "Cash payment"),
	}

	// WHEN
	s := statement.Build(account, entries, generatedAt)

	// THEN: lines follow (date, seq) and the balance is replayed entry by entry
	require.Len(t, s.Lines, 4)
	var balances, descs []string
	for _, l := range s.Lines {
		balances = append(balances, l.Balance.String())
		descs = append(descs, l.Description)
	}
	assert.Equal(t, []string{"30000.00", "25000.00", "15000.00", "16500.00"}, balances)
	assert.Equal(t, "Cash payment", descs[1])
	assert.Equal(t, "M-Pesa payment", descs[2])

	// AND: totals agree with the ledger
	assert.Equal(t, "31500.00", s.TotalCharges.String())
	assert.Equal(t, "15000.00", s.TotalPayments.String())
	assert.Equal(t, ledger.Sum(entries).String(), s.Balance.String())
	assert.Equal(t, s.Lines[3].Balance.String(), s.Balance.String())
}

func TestBuild_TruncatesLongDescriptions(t *testing.T) {
	long := strings.Repeat("x", 41)
	s := statement.Build(account, []ledger.Entry{
		entry(1, ledger.KindCharge, "100", 1, long),
		entry(2, ledger.KindCharge, "100", 1, strings.Repeat("y", 40)),
	}, generatedAt)

	assert.Equal(t, strings.Repeat("x", 40)+"...", s.Lines[0].Description)
	assert.Equal(t, strings.Repeat("y", 40), s.Lines[1].Description)
}

func TestBuild_Empty(t *testing.T) {
	s := statement.Build(account, nil, generatedAt)

	assert.Empty(t, s.Lines)
	assert.True(t, s.Balance.IsZero())
	assert.Equal(t, "Amina Otieno", s.Party.Name)
	assert.True(t, s.Party.Active)
}

// =============================================================================
// INVOICE
// =============================================================================

func TestBuildInvoice(t *testing.T) {
	charge := entry(42, ledger.KindCharge, "30000", 1, "Rent for March 2026")
	charge.PeriodKey = "2026-03"

	inv, err := statement.BuildInvoice(account, charge, ledger.BillingPeriod{}, ledger.Date(2026, time.March, 1))

	require.NoError(t, err)
	assert.Equal(t, "INV-000042", inv.Number)
	assert.Equal(t, "March 2026", inv.Period)
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Rent for March 2026", inv.Items[0].Description)
	assert.Equal(t, "30000.00", inv.Total.String())
	assert.Contains(t, inv.Instructions, statement.PaymentInstructions)
}

func TestBuildInvoice_RejectsPayments(t *testing.T) {
	_, err := statement.BuildInvoice(account, entry(1, ledger.KindPayment, "100", 1, "p"), ledger.BillingPeriod{}, generatedAt)

	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)
}

// =============================================================================
// RENDERING
// =============================================================================

func sampleStatement() *statement.Statement {
	return statement.Build(account, []ledger.Entry{
		entry(1, ledger.KindCharge, "30000", 1, "Rent for March 2026"),
		entry(2, ledger.KindPayment, "1234.5", 3, "Payment <cash>"),
	}, generatedAt)
}

func TestTextRenderer_Statement(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, statement.TextRenderer{}.RenderStatement(&buf, sampleStatement()))

	out := buf.String()
	assert.Contains(t, out, "TENANT STATEMENT")
	assert.Contains(t, out, "Sunrise Court")
	assert.Contains(t, out, "Email:")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "-KES 30,000.00")
	assert.Contains(t, out, "+KES 1,234.50")
	assert.Contains(t, out, "Current Balance: KES 28,765.50")
	assert.Contains(t, out, "Generated on 2026-04-02 10:30:00")
}

func TestHTMLRenderer_EscapesAndFormats(t *testing.T) {
	var buf bytes.Buffer
	r := statement.NewHTMLRenderer()
	require.NoError(t, r.RenderStatement(&buf, sampleStatement()))

	out := buf.String()
	assert.Contains(t, out, "<td>Charge</td>")
	assert.Contains(t, out, "<td>Payment</td>")
	assert.Contains(t, out, "Payment &lt;cash&gt;")
	assert.Contains(t, out, "KES 28,765.50")
	assert.Equal(t, "text/html; charset=utf-8", r.ContentType())
}

func TestRenderers_Invoice(t *testing.T) {
	charge := entry(7, ledger.KindCharge, "30000", 1, "Rent for March 2026")
	inv, err := statement.BuildInvoice(account, charge, ledger.NewPeriod(2026, time.March), ledger.Date(2026, time.March, 1))
	require.NoError(t, err)

	for _, format := range []string{"html", "text"} {
		t.Run(format, func(t *testing.T) {
			r, err := statement.ForFormat(format)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, r.RenderInvoice(&buf, inv))
			assert.Contains(t, buf.String(), "INV-000007")
			assert.Contains(t, buf.String(), "KES 30,000.00")
			assert.Contains(t, buf.String(), statement.PaymentInstructions)
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRender_WriteFailure(t *testing.T) {
	err := statement.TextRenderer{}.RenderStatement(failingWriter{}, sampleStatement())

	var renderErr *statement.RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "statement", renderErr.Document)

	_, err = statement.ForFormat("pdf")
	assert.Error(t, err)
}
