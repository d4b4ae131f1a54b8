package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/notify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func kes(v string) ledger.Money { return ledger.MustMoney(v, ledger.CurrencyKES) }

var amina = notify.Recipient{
	TenantID:  "t-1",
	FirstName: "Amina",
	FullName:  "Amina Otieno",
	Email:     "amina@example.com",
	Phone:     "+254700000001",
	Unit:      "A1",
	Building:  "Sunrise Court",
	Balance:   kes("30000"),
}

// =============================================================================
// COMPOSITION
// =============================================================================

func TestComposeMessages(t *testing.T) {
	rent := notify.ComposeRentCharged(amina, kes("30000"), "March 2026")
	assert.Equal(t, "Rent Charged for March 2026", rent.Subject)
	assert.Equal(t, "Dear Amina, your rent of KES 30,000.00 for March 2026 has been charged. Balance: KES 30,000.00. Thank you!", rent.SMS)
	assert.Contains(t, rent.Text, "Building: Sunrise Court")

	paid := notify.ComposePaymentReceived(amina, kes("1500.5"), ledger.Date(2026, time.March, 3))
	assert.Equal(t, "Payment Received - Thank You!", paid.Subject)
	assert.Contains(t, paid.SMS, "payment of KES 1,500.50")
	assert.Contains(t, paid.Text, "Date: 2026-03-03")

	late := notify.ComposeLatePayment(amina, 12, kes("31500"))
	assert.Equal(t, "URGENT: Rent Payment 12 Days Overdue", late.Subject)
	assert.Equal(t, "REMINDER: Dear Amina, your rent is 12 days overdue. Amount due: KES 31,500.00. Please pay ASAP to avoid penalties.", late.SMS)
}

// =============================================================================
// MESSENGER
// =============================================================================

type fakeTransport struct {
	sms, email []string
	smsErr     error
}

func (f *fakeTransport) SendSMS(_ context.Context, phone, body string) error {
	f.sms = append(f.sms, phone+": "+body)
	return f.smsErr
}

func (f *fakeTransport) SendEmail(_ context.Context, address, subject, _ string) error {
	f.email = append(f.email, address+": "+subject)
	return nil
}

func TestMessenger_DeliversOnAvailableChannels(t *testing.T) {
	ctx := context.Background()

	tr := &fakeTransport{}
	m := notify.NewMessenger(tr)
	require.NoError(t, m.NotifyRentCharged(ctx, amina, kes("30000"), "March 2026"))
	assert.Len(t, tr.sms, 1)
	assert.Equal(t, []string{"amina@example.com: Rent Charged for March 2026"}, tr.email)

	smsOnly := amina
	smsOnly.Email = ""
	tr = &fakeTransport{}
	require.NoError(t, notify.NewMessenger(tr).NotifyLatePayment(ctx, smsOnly, 10, kes("1")))
	assert.Len(t, tr.sms, 1)
	assert.Empty(t, tr.email)

	nobody := amina
	nobody.Email, nobody.Phone = "", ""
	err := notify.NewMessenger(&fakeTransport{}).NotifyPaymentReceived(ctx, nobody, kes("1"), time.Now())
	assert.ErrorIs(t, err, notify.ErrNoChannel)
}

func TestMessenger_EmailStillSentWhenSMSFails(t *testing.T) {
	tr := &fakeTransport{smsErr: errors.New("gateway down")}
	err := notify.NewMessenger(tr).NotifyRentCharged(context.Background(), amina, kes("30000"), "March 2026")

	assert.ErrorContains(t, err, "gateway down")
	assert.Len(t, tr.email, 1)
}

// =============================================================================
// DISPATCHER
// =============================================================================

func TestDispatcher_DeliversAsynchronously(t *testing.T) {
	rec := &notify.Recorder{}
	d := notify.NewDispatcher(rec, zap.NewNop(), notify.DispatcherConfig{Workers: 2, QueueSize: 10})

	require.NoError(t, d.NotifyRentCharged(context.Background(), amina, kes("30000"), "March 2026"))
	require.NoError(t, d.NotifyPaymentReceived(context.Background(), amina, kes("30000"), ledger.Date(2026, time.March, 3)))
	require.NoError(t, d.NotifyLatePayment(context.Background(), amina, 7, kes("500")))

	require.NoError(t, d.Close(context.Background()))

	calls := rec.Calls()
	assert.Len(t, calls, 3)
	assert.Equal(t, notify.Stats{Sent: 3}, d.Stats())
}

func TestDispatcher_FailuresAreLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &notify.Recorder{Err: errors.New("smtp timeout")}
	d := notify.NewDispatcher(rec, zap.New(core), notify.DispatcherConfig{Workers: 1, QueueSize: 4})

	// WHEN: the downstream notifier fails
	err := d.NotifyRentCharged(context.Background(), amina, kes("30000"), "March 2026")

	// THEN: the caller never sees it
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int64(1), d.Stats().Failed)
	entries := logs.FilterMessage("notification failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rent_charged", entries[0].ContextMap()["kind"])
	assert.Contains(t, entries[0].ContextMap()["error"], "smtp timeout")
}

type panickingNotifier struct{ notify.Nop }

func (panickingNotifier) NotifyLatePayment(context.Context, notify.Recipient, int, ledger.Money) error {
	panic("template exploded")
}

func TestDispatcher_RecoversFromPanics(t *testing.T) {
	d := notify.NewDispatcher(panickingNotifier{}, zap.NewNop(), notify.DispatcherConfig{Workers: 1, QueueSize: 4})

	require.NoError(t, d.NotifyLatePayment(context.Background(), amina, 7, kes("500")))
	require.NoError(t, d.NotifyRentCharged(context.Background(), amina, kes("1"), "March 2026"))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, notify.Stats{Sent: 1, Failed: 1}, d.Stats())
}

type blockingNotifier struct {
	notify.Nop
	release chan struct{}
}

func (b blockingNotifier) NotifyRentCharged(context.Context, notify.Recipient, ledger.Money, string) error {
	<-b.release
	return nil
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := blockingNotifier{release: make(chan struct{})}
	d := notify.NewDispatcher(b, zap.New(core), notify.DispatcherConfig{Workers: 1, QueueSize: 1})

	// One in flight (eventually), one queued, the rest dropped. Submitting
	// more than capacity guarantees at least one drop.
	for i := 0; i < 5; i++ {
		require.NoError(t, d.NotifyRentCharged(context.Background(), amina, kes("1"), "March 2026"))
	}
	close(b.release)
	require.NoError(t, d.Close(context.Background()))

	stats := d.Stats()
	assert.GreaterOrEqual(t, stats.Dropped, int64(3))
	assert.Equal(t, int64(5), stats.Sent+stats.Dropped)
	assert.NotEmpty(t, logs.FilterMessage("notification dropped").All())
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	rec := &notify.Recorder{}
	d := notify.NewDispatcher(rec, zap.NewNop(), notify.DispatcherConfig{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()), "close is idempotent")

	require.NoError(t, d.NotifyRentCharged(context.Background(), amina, kes("1"), "March 2026"))
	assert.Empty(t, rec.Calls())
	assert.Equal(t, int64(1), d.Stats().Dropped)
}
