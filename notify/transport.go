package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warp/tenancy-engine/ledger"
	"go.uber.org/zap"
)

// ErrNoChannel is returned when a recipient has neither phone nor email.
var ErrNoChannel = errors.New("recipient has no phone or email")

// Transport delivers composed messages. SendSMS and SendEmail are called
// only when the recipient has the matching contact detail.
type Transport interface {
	SendSMS(ctx context.Context, phone, body string) error
	SendEmail(ctx context.Context, address, subject, body string) error
}

// =============================================================================
// MESSENGER - Compose, then deliver on every channel the tenant has
// =============================================================================

type Messenger struct {
	transport Transport
}

func NewMessenger(t Transport) *Messenger {
	return &Messenger{transport: t}
}

func (m *Messenger) NotifyRentCharged(ctx context.Context, to Recipient, amount ledger.Money, period string) error {
	return m.deliver(ctx, to, ComposeRentCharged(to, amount, period))
}

func (m *Messenger) NotifyPaymentReceived(ctx context.Context, to Recipient, amount ledger.Money, date time.Time) error {
	return m.deliver(ctx, to, ComposePaymentReceived(to, amount, date))
}

func (m *Messenger) NotifyLatePayment(ctx context.Context, to Recipient, daysLate int, amountDue ledger.Money) error {
	return m.deliver(ctx, to, ComposeLatePayment(to, daysLate, amountDue))
}

// deliver sends on both channels and joins their errors. One failing
// channel does not stop the other.
func (m *Messenger) deliver(ctx context.Context, to Recipient, msg Message) error {
	if to.Phone == "" && to.Email == "" {
		return ErrNoChannel
	}

	var errs []error
	if to.Phone != "" {
		if err := m.transport.SendSMS(ctx, to.Phone, msg.SMS); err != nil {
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}
	if to.Email != "" {
		if err := m.transport.SendEmail(ctx, to.Email, msg.Subject, msg.Text); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// LOG TRANSPORT
// =============================================================================

// LogTransport writes messages to the log instead of sending them.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) SendSMS(_ context.Context, phone, body string) error {
	t.logger.Info("sms", zap.String("to", phone), zap.String("body", body))
	return nil
}

func (t *LogTransport) SendEmail(_ context.Context, address, subject, body string) error {
	t.logger.Info("email",
		zap.String("to", address),
		zap.String("subject", subject),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// =============================================================================
// NOP & RECORDER
// =============================================================================

type Nop struct{}

func (Nop) NotifyRentCharged(context.Context, Recipient, ledger.Money, string) error     { return nil }
func (Nop) NotifyPaymentReceived(context.Context, Recipient, ledger.Money, time.Time) error { return nil }
func (Nop) NotifyLatePayment(context.Context, Recipient, int, ledger.Money) error          { return nil }

// Call is one notification captured by a Recorder.
type Call struct {
	Kind     Kind
	To       Recipient
	Amount   ledger.Money
	Period   string
	Date     time.Time
	DaysLate int
}

// Recorder captures notifications in memory. Err, when set, is returned
// from every call after recording it.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.Err
}

func (r *Recorder) NotifyRentCharged(_ context.Context, to Recipient, amount ledger.Money, period string) error {
	return r.record(Call{Kind: KindRentCharged, To: to, Amount: amount, Period: period})
}

func (r *Recorder) NotifyPaymentReceived(_ context.Context, to Recipient, amount ledger.Money, date time.Time) error {
	return r.record(Call{Kind: KindPaymentReceived, To: to, Amount: amount, Date: date})
}

func (r *Recorder) NotifyLatePayment(_ context.Context, to Recipient, daysLate int, amountDue ledger.Money) error {
	return r.record(Call{Kind: KindLatePayment, To: to, Amount: amountDue, DaysLate: daysLate})
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

var (
	_ Notifier = (*Messenger)(nil)
	_ Notifier = Nop{}
	_ Notifier = (*Recorder)(nil)
)
