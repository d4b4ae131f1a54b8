/*
Package statement builds tenant statements and rent invoices from ledger
entries and renders them for people.

PURPOSE:
  A statement replays a tenant's ledger in (transaction date, insertion)
  order and shows the balance after every entry. Its closing balance is
  always ledger.Sum of the same entries.

  An invoice documents a single rent charge.

RENDERING:
  Documents are plain values; a Renderer turns them into HTML or text.
  Rendering never touches the ledger, so a failed render changes nothing.

SEE ALSO:
  - ledger/balance.go: Sum, Tally
  - render.go: HTMLRenderer, TextRenderer
*/
package statement

import (
	"fmt"
	"time"

	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
)

// DescriptionWidth is how much of an entry description a statement line
// shows before it is cut with "...".
const DescriptionWidth = 40

// =============================================================================
// STATEMENT
// =============================================================================

// Party is who a document is about.
type Party struct {
	TenantID    ledger.TenantID
	Name        string
	Phone       string
	Email       string
	MoveInDate  time.Time
	Active      bool
	Building    string
	Unit        string
	MonthlyRent ledger.Money
}

func partyOf(a billing.Account) Party {
	return Party{
		TenantID:    a.Tenant.ID,
		Name:        a.Tenant.FullName(),
		Phone:       a.Tenant.Phone,
		Email:       a.Tenant.Email,
		MoveInDate:  a.Tenant.MoveInDate,
		Active:      a.Tenant.IsActive(),
		Building:    a.Building.Name,
		Unit:        a.Unit.Number,
		MonthlyRent: a.Unit.MonthlyRent,
	}
}

// Line is one ledger entry on a statement.
type Line struct {
	EntryID     ledger.EntryID
	Date        time.Time
	Kind        ledger.EntryKind
	Category    ledger.Category
	Description string // cut to DescriptionWidth
	Amount      ledger.Money
	Balance     ledger.Money // running balance after this entry
}

// Signed is the amount as the tenant sees it: charges take money from
// them, payments give it back.
func (l Line) Signed() string {
	if l.Kind == ledger.KindPayment {
		return "+" + ledger.FormatMoney(l.Amount)
	}
	return "-" + ledger.FormatMoney(l.Amount)
}

type Statement struct {
	Party         Party
	Lines         []Line
	TotalCharges  ledger.Money
	TotalPayments ledger.Money
	Balance       ledger.Money
	GeneratedAt   time.Time
}

// Build assembles a statement. Entries may arrive in any order.
func Build(a billing.Account, entries []ledger.Entry, generatedAt time.Time) *Statement {
	sorted := append([]ledger.Entry(nil), entries...)
	ledger.SortEntries(sorted)

	currency := a.Unit.MonthlyRent.Currency
	if currency == "" {
		currency = ledger.DefaultCurrency
	}
	running := ledger.Zero(currency)

	lines := make([]Line, 0, len(sorted))
	for _, e := range sorted {
		running = running.Add(e.Signed())
		lines = append(lines, Line{
			EntryID:     e.ID,
			Date:        e.TransactionDate,
			Kind:        e.Kind,
			Category:    e.Category,
			Description: truncate(e.Description, DescriptionWidth),
			Amount:      e.Amount,
			Balance:     running,
		})
	}

	totals := ledger.Tally(sorted)
	return &Statement{
		Party:         partyOf(a),
		Lines:         lines,
		TotalCharges:  totals.Charges,
		TotalPayments: totals.Payments,
		Balance:       totals.Balance(),
		GeneratedAt:   generatedAt,
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width]) + "..."
}

// =============================================================================
// INVOICE
// =============================================================================

const PaymentInstructions = "Please make payment within 5 days of the due date."

type InvoiceItem struct {
	Description string
	Amount      ledger.Money
}

type Invoice struct {
	Number       string
	IssuedOn     time.Time
	Period       string
	BillTo       Party
	Items        []InvoiceItem
	Total        ledger.Money
	Instructions []string
}

// InvoiceNumber formats the invoice number for a ledger entry from its
// insertion sequence.
func InvoiceNumber(e ledger.Entry) string {
	return fmt.Sprintf("INV-%06d", e.Seq)
}

// BuildInvoice documents a rent charge. Only charges can be invoiced.
func BuildInvoice(a billing.Account, e ledger.Entry, period ledger.BillingPeriod, issuedOn time.Time) (*Invoice, error) {
	if e.Kind != ledger.KindCharge {
		return nil, fmt.Errorf("%w: entry %s is a %s, not a charge", ledger.ErrInvalidEntry, e.ID, e.Kind)
	}
	if e.TenantID != a.Tenant.ID {
		return nil, fmt.Errorf("%w: entry %s belongs to tenant %s", ledger.ErrInvalidEntry, e.ID, e.TenantID)
	}
	if period.IsZero() {
		p, err := ledger.ParsePeriod(e.PeriodKey)
		if err != nil {
			p = ledger.PeriodOf(e.TransactionDate)
		}
		period = p
	}

	return &Invoice{
		Number:   InvoiceNumber(e),
		IssuedOn: issuedOn,
		Period:   period.Label(),
		BillTo:   partyOf(a),
		Items:    []InvoiceItem{{Description: "Rent for " + period.Label(), Amount: e.Amount}},
		Total:    e.Amount,
		Instructions: []string{
			PaymentInstructions,
			"Late payments may incur additional fees.",
		},
	}, nil
}
