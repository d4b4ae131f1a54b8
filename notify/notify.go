/*
Package notify tells tenants about charges, payments and overdue balances.

PURPOSE:
  Notifications are side effects of ledger writes, never part of them.
  Callers hand a Notifier the facts after the write commits; delivery is
  best-effort and failures are logged, not returned to the ledger caller.

COMPONENTS:
  Notifier    - the contract billing depends on
  Dispatcher  - asynchronous Notifier: queues work, delivers on workers
  Messenger   - composes messages and hands them to a Transport
  Transport   - SMS / email delivery (LogTransport writes to zap)
  Recorder    - captures calls in tests
  Nop         - discards everything

SEE ALSO:
  - billing/: the caller
  - dispatcher.go: queueing and failure accounting
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/tenancy-engine/ledger"
)

// Recipient is the tenant a notification is addressed to, with the context
// the messages quote. Balance is the tenant's balance after the write.
type Recipient struct {
	TenantID  ledger.TenantID
	FirstName string
	FullName  string
	Email     string
	Phone     string
	Unit      string
	Building  string
	Balance   ledger.Money
}

// Notifier is implemented by anything that can tell a tenant about a
// ledger event. Implementations must not block the caller for long.
type Notifier interface {
	NotifyRentCharged(ctx context.Context, to Recipient, amount ledger.Money, period string) error
	NotifyPaymentReceived(ctx context.Context, to Recipient, amount ledger.Money, date time.Time) error
	NotifyLatePayment(ctx context.Context, to Recipient, daysLate int, amountDue ledger.Money) error
}

// Kind names a notification type in logs and metrics.
type Kind string

const (
	KindRentCharged     Kind = "rent_charged"
	KindPaymentReceived Kind = "payment_received"
	KindLatePayment     Kind = "late_payment"
)

// Message is a composed notification: an SMS body plus an email.
type Message struct {
	Kind    Kind
	Subject string
	Text    string
	SMS     string
}

// =============================================================================
// COMPOSITION
// =============================================================================

func ComposeRentCharged(to Recipient, amount ledger.Money, period string) Message {
	return Message{
		Kind:    KindRentCharged,
		Subject: "Rent Charged for " + period,
		SMS: fmt.Sprintf("Dear %s, your rent of %s for %s has been charged. Balance: %s. Thank you!",
			to.FirstName, ledger.FormatMoney(amount), period, ledger.FormatMoney(to.Balance)),
		Text: fmt.Sprintf(`Dear %s,

This is to notify you that your rent has been charged:

Amount: %s
Month: %s
Unit: %s
Building: %s

Current Balance: %s

Please make payment at your earliest convenience.

Thank you for your cooperation.

Best regards,
Property Management Team
`, to.FullName, ledger.FormatMoney(amount), period, to.Unit, to.Building, ledger.FormatMoney(to.Balance)),
	}
}

func ComposePaymentReceived(to Recipient, amount ledger.Money, date time.Time) Message {
	return Message{
		Kind:    KindPaymentReceived,
		Subject: "Payment Received - Thank You!",
		SMS: fmt.Sprintf("Dear %s, we have received your payment of %s. New balance: %s. Thank you!",
			to.FirstName, ledger.FormatMoney(amount), ledger.FormatMoney(to.Balance)),
		Text: fmt.Sprintf(`Dear %s,

We have successfully received your payment:

Amount: %s
Date: %s
New Balance: %s

Thank you for your prompt payment!

Best regards,
Property Management Team
`, to.FullName, ledger.FormatMoney(amount), date.Format(time.DateOnly), ledger.FormatMoney(to.Balance)),
	}
}

func ComposeLatePayment(to Recipient, daysLate int, amountDue ledger.Money) Message {
	return Message{
		Kind:    KindLatePayment,
		Subject: fmt.Sprintf("URGENT: Rent Payment %d Days Overdue", daysLate),
		SMS: fmt.Sprintf("REMINDER: Dear %s, your rent is %d days overdue. Amount due: %s. Please pay ASAP to avoid penalties.",
			to.FirstName, daysLate, ledger.FormatMoney(amountDue)),
		Text: fmt.Sprintf(`Dear %s,

This is a friendly reminder that your rent payment is overdue.

Days Overdue: %d
Amount Due: %s
Total Balance: %s

Please make payment as soon as possible to avoid late fees and other penalties.

If you have already made payment, please disregard this notice.

For any questions or payment arrangements, please contact us.

Best regards,
Property Management Team
`, to.FullName, daysLate, ledger.FormatMoney(amountDue), ledger.FormatMoney(to.Balance)),
	}
}
