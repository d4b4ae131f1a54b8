package statement

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/warp/tenancy-engine/ledger"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Renderer turns documents into bytes for people.
type Renderer interface {
	ContentType() string
	RenderStatement(w io.Writer, s *Statement) error
	RenderInvoice(w io.Writer, inv *Invoice) error
}

// RenderError wraps a template or write failure.
type RenderError struct {
	Document string // "statement" or "invoice"
	Format   string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s as %s: %v", e.Document, e.Format, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ForFormat picks a renderer by name: "html" or "text".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "html":
		return NewHTMLRenderer(), nil
	case "text", "txt", "":
		return TextRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown statement format %q", format)
}

var titleCaser = cases.Title(language.English)

// kindLabel renders CHARGE as "Charge".
func kindLabel(k ledger.EntryKind) string {
	return titleCaser.String(strings.ToLower(string(k)))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(time.DateOnly)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func status(p Party) string {
	if p.Active {
		return "Active"
	}
	return "Moved Out"
}

// =============================================================================
// HTML
// =============================================================================

type HTMLRenderer struct {
	statement *template.Template
	invoice   *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"money":  ledger.FormatMoney,
		"date":   formatDate,
		"kind":   kindLabel,
		"orNA":   orNA,
		"status": status,
	}
	return &HTMLRenderer{
		statement: template.Must(template.New("statement").Funcs(funcs).Parse(statementHTML)),
		invoice:   template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTML)),
	}
}

func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

func (r *HTMLRenderer) RenderStatement(w io.Writer, s *Statement) error {
	return execute(w, r.statement, s, "statement")
}

func (r *HTMLRenderer) RenderInvoice(w io.Writer, inv *Invoice) error {
	return execute(w, r.invoice, inv, "invoice")
}

// execute renders into a buffer first so a failing template writes nothing.
func execute(w io.Writer, t *template.Template, data any, doc string) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return &RenderError{Document: doc, Format: "html", Err: err}
	}
	if _, err := buf.WriteTo(w); err != nil {
		return &RenderError{Document: doc, Format: "html", Err: err}
	}
	return nil
}

const statementHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Tenant Statement - {{.Party.Name}}</title></head>
<body>
<h1>TENANT STATEMENT</h1>
<h2>Property Details</h2>
<table class="details">
<tr><th>Building:</th><td>{{.Party.Building}}</td></tr>
<tr><th>Unit Number:</th><td>{{.Party.Unit}}</td></tr>
<tr><th>Monthly Rent:</th><td>{{money .Party.MonthlyRent}}</td></tr>
</table>
<h2>Tenant Information</h2>
<table class="details">
<tr><th>Tenant Name:</th><td>{{.Party.Name}}</td></tr>
<tr><th>Phone:</th><td>{{orNA .Party.Phone}}</td></tr>
<tr><th>Email:</th><td>{{orNA .Party.Email}}</td></tr>
<tr><th>Move-in Date:</th><td>{{date .Party.MoveInDate}}</td></tr>
<tr><th>Status:</th><td>{{status .Party}}</td></tr>
</table>
<h2>Transaction History</h2>
<table class="transactions">
<tr><th>Date</th><th>Type</th><th>Description</th><th>Amount</th><th>Balance</th></tr>
{{- range .Lines}}
<tr><td>{{date .Date}}</td><td>{{kind .Kind}}</td><td>{{.Description}}</td><td class="num">{{.Signed}}</td><td class="num">{{money .Balance}}</td></tr>
{{- end}}
</table>
<table class="summary">
<tr><th>Total Charges:</th><td>{{money .TotalCharges}}</td></tr>
<tr><th>Total Payments:</th><td>{{money .TotalPayments}}</td></tr>
<tr><th>Current Balance:</th><td>{{money .Balance}}</td></tr>
</table>
<footer>Generated on {{.GeneratedAt.Format "2006-01-02 15:04:05"}}<br>Property Management System</footer>
</body>
</html>
`

const invoiceHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Number}}</title></head>
<body>
<h1>RENT INVOICE</h1>
<table class="details">
<tr><th>Invoice Date:</th><td>{{date .IssuedOn}}</td></tr>
<tr><th>Invoice #:</th><td>{{.Number}}</td></tr>
<tr><th>Period:</th><td>{{.Period}}</td></tr>
</table>
<h2>BILL TO:</h2>
<p>{{.BillTo.Name}}<br>{{.BillTo.Building}}<br>Unit: {{.BillTo.Unit}}<br>{{.BillTo.Phone}}</p>
<table class="items">
<tr><th>Description</th><th>Amount</th></tr>
{{- range .Items}}
<tr><td>{{.Description}}</td><td class="num">{{money .Amount}}</td></tr>
{{- end}}
<tr class="total"><th>Total Due:</th><td class="num">{{money .Total}}</td></tr>
</table>
<p><b>Payment Instructions:</b></p>
{{- range .Instructions}}
<p>{{.}}</p>
{{- end}}
<footer>Thank you for your business!<br>Property Management System</footer>
</body>
</html>
`

// =============================================================================
// TEXT
// =============================================================================

// TextRenderer lays documents out in aligned columns for terminals.
type TextRenderer struct{}

func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

func (TextRenderer) RenderStatement(w io.Writer, s *Statement) error {
	var buf bytes.Buffer
	p := s.Party

	fmt.Fprintln(&buf, "TENANT STATEMENT")
	fmt.Fprintln(&buf)
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Building:\t%s\n", p.Building)
	fmt.Fprintf(tw, "Unit Number:\t%s\n", p.Unit)
	fmt.Fprintf(tw, "Monthly Rent:\t%s\n", ledger.FormatMoney(p.MonthlyRent))
	fmt.Fprintf(tw, "Tenant Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Phone:\t%s\n", orNA(p.Phone))
	fmt.Fprintf(tw, "Email:\t%s\n", orNA(p.Email))
	fmt.Fprintf(tw, "Move-in Date:\t%s\n", formatDate(p.MoveInDate))
	fmt.Fprintf(tw, "Status:\t%s\n", status(p))
	if err := tw.Flush(); err != nil {
		return &RenderError{Document: "statement", Format: "text", Err: err}
	}

	fmt.Fprintln(&buf)
	tw = tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tType\tDescription\tAmount\tBalance\t")
	for _, l := range s.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			formatDate(l.Date), kindLabel(l.Kind), l.Description, l.Signed(), ledger.FormatMoney(l.Balance))
	}
	if err := tw.Flush(); err != nil {
		return &RenderError{Document: "statement", Format: "text", Err: err}
	}

	fmt.Fprintln(&buf)
	fmt.Fprintf(&buf, "Total Charges:   %s\n", ledger.FormatMoney(s.TotalCharges))
	fmt.Fprintf(&buf, "Total Payments:  %s\n", ledger.FormatMoney(s.TotalPayments))
	fmt.Fprintf(&buf, "Current Balance: %s\n", ledger.FormatMoney(s.Balance))
	fmt.Fprintf(&buf, "\nGenerated on %s\n", s.GeneratedAt.Format("2006-01-02 15:04:05"))

	if _, err := buf.WriteTo(w); err != nil {
		return &RenderError{Document: "statement", Format: "text", Err: err}
	}
	return nil
}

func (TextRenderer) RenderInvoice(w io.Writer, inv *Invoice) error {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "RENT INVOICE")
	fmt.Fprintln(&buf)
	fmt.Fprintf(&buf, "Invoice Date: %s\n", formatDate(inv.IssuedOn))
	fmt.Fprintf(&buf, "Invoice #:    %s\n", inv.Number)
	fmt.Fprintf(&buf, "Period:       %s\n", inv.Period)
	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "BILL TO:")
	fmt.Fprintln(&buf, inv.BillTo.Name)
	fmt.Fprintln(&buf, inv.BillTo.Building)
	fmt.Fprintf(&buf, "Unit: %s\n", inv.BillTo.Unit)
	if inv.BillTo.Phone != "" {
		fmt.Fprintln(&buf, inv.BillTo.Phone)
	}
	fmt.Fprintln(&buf)

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Description\tAmount\t")
	for _, item := range inv.Items {
		fmt.Fprintf(tw, "%s\t%s\t\n", item.Description, ledger.FormatMoney(item.Amount))
	}
	fmt.Fprintf(tw, "Total Due:\t%s\t\n", ledger.FormatMoney(inv.Total))
	if err := tw.Flush(); err != nil {
		return &RenderError{Document: "invoice", Format: "text", Err: err}
	}

	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "Payment Instructions:")
	for _, line := range inv.Instructions {
		fmt.Fprintln(&buf, line)
	}

	if _, err := buf.WriteTo(w); err != nil {
		return &RenderError{Document: "invoice", Format: "text", Err: err}
	}
	return nil
}

var (
	_ Renderer = (*HTMLRenderer)(nil)
	_ Renderer = TextRenderer{}
)
