package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/property"
	"go.uber.org/zap"
)

// =============================================================================
// PAYMENTS & AD-HOC CHARGES
// =============================================================================

type PaymentRequest struct {
	TenantID    ledger.TenantID
	Amount      ledger.Money
	Date        time.Time // zero means today
	Method      ledger.PaymentMethod
	Reference   string
	Description string
	Notes       string
	CreatedBy   string
}

// RecordPayment appends a PAYMENT and tells the tenant their new balance.
func (e *Engine) RecordPayment(ctx context.Context, req PaymentRequest) (ledger.Entry, error) {
	a, err := e.directory.Account(ctx, req.TenantID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if req.Date.IsZero() {
		req.Date = e.today()
	}
	if req.Method == "" {
		req.Method = ledger.MethodCash
	}
	if req.Description == "" {
		req.Description = "Payment received"
	}

	saved, err := e.ledger.Record(ctx, ledger.Entry{
		TenantID:        req.TenantID,
		Kind:            ledger.KindPayment,
		Amount:          req.Amount,
		TransactionDate: req.Date,
		Description:     req.Description,
		PaymentMethod:   req.Method,
		ReferenceNumber: req.Reference,
		Notes:           req.Notes,
		CreatedBy:       req.CreatedBy,
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	e.logger.Info("payment recorded",
		zap.String("tenant_id", string(req.TenantID)),
		zap.String("amount", saved.Amount.String()),
		zap.String("method", string(saved.PaymentMethod)),
	)
	e.logActivity(ctx, property.AuditPayment, saved,
		fmt.Sprintf("Payment of %s received from %s", ledger.FormatMoney(saved.Amount), a.Tenant.FullName()))

	to := a.Recipient(e.balanceAfter(ctx, req.TenantID, ledger.Zero(saved.Amount.Currency)))
	e.notifyFailed("payment_received", req.TenantID, e.notifier.NotifyPaymentReceived(ctx, to, saved.Amount, saved.TransactionDate))
	return saved, nil
}

type ChargeRequest struct {
	TenantID    ledger.TenantID
	Category    ledger.Category
	Amount      ledger.Money
	Date        time.Time            // zero means today
	Period      ledger.BillingPeriod // optional; makes the charge unique per period
	Description string
	Notes       string
	CreatedBy   string
}

// RecordCharge appends a deposit or other one-off charge. Rent goes through
// ChargeTenant so that its period rules apply.
func (e *Engine) RecordCharge(ctx context.Context, req ChargeRequest) (ledger.Entry, error) {
	if req.Category == ledger.CategoryRent {
		return e.ChargeTenant(ctx, req.TenantID, RentCharge{
			Period:      req.Period,
			Amount:      req.Amount,
			Date:        req.Date,
			Description: req.Description,
			CreatedBy:   req.CreatedBy,
		})
	}
	a, err := e.directory.Account(ctx, req.TenantID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if req.Date.IsZero() {
		req.Date = e.today()
	}

	entry := ledger.Entry{
		TenantID:        req.TenantID,
		Kind:            ledger.KindCharge,
		Category:        req.Category,
		Amount:          req.Amount,
		TransactionDate: req.Date,
		Description:     req.Description,
		Notes:           req.Notes,
		CreatedBy:       req.CreatedBy,
	}
	if !req.Period.IsZero() {
		entry.PeriodKey = req.Period.Key()
	}

	saved, err := e.ledger.Record(ctx, entry)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.logActivity(ctx, property.AuditCharge, saved,
		fmt.Sprintf("%s charge of %s to %s", saved.Category, ledger.FormatMoney(saved.Amount), a.Tenant.FullName()))
	return saved, nil
}

// =============================================================================
// LATE REMINDERS
// =============================================================================

// SendLateReminders notifies every active tenant who owes money and whose
// latest charge is at least minDays old. Nothing is written to the ledger,
// so with DryRun or SkipNotifications the run only reports who is due.
func (e *Engine) SendLateReminders(ctx context.Context, accounts []Account, minDays int, opts RunOptions) (*RunResult, error) {
	if minDays < 0 {
		return nil, fmt.Errorf("reminder days must not be negative, got %d", minDays)
	}
	today := e.today()
	res := newRunResult("send_late_reminders", ledger.PeriodOf(today), opts.DryRun)

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := e.reminderOne(ctx, a, minDays, today, opts)
		e.record(res, out, err)
	}
	return e.finish(res)
}

// SendAllLateReminders runs SendLateReminders over every active tenant with
// the engine's reminder threshold.
func (e *Engine) SendAllLateReminders(ctx context.Context, opts RunOptions) (*RunResult, error) {
	accounts, err := e.directory.ActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active tenants: %w", err)
	}
	return e.SendLateReminders(ctx, accounts, e.reminderDays, opts)
}

func (e *Engine) reminderOne(ctx context.Context, a Account, minDays int, today time.Time, opts RunOptions) (Outcome, error) {
	out := Outcome{TenantID: a.Tenant.ID, Name: a.Tenant.FullName()}
	if !a.Tenant.IsActive() {
		out.Reason = SkipInactive
		return out, nil
	}

	entries, err := e.ledger.Entries(ctx, a.Tenant.ID)
	if err != nil {
		return out, err
	}
	out.Balance = ledger.Sum(entries)
	out.Amount = out.Balance
	if !out.Balance.IsPositive() {
		out.Reason = SkipNoBalance
		return out, nil
	}

	latest, ok := ledger.LatestCharge(entries)
	if !ok {
		out.Reason = SkipNoCharges
		return out, nil
	}
	days := ledger.DaysBetween(latest.TransactionDate, today)
	if days < 0 {
		days = 0
	}
	out.DaysOverdue = days
	if days < minDays {
		out.Reason = SkipNotDue
		return out, nil
	}

	if !opts.DryRun && !opts.SkipNotifications {
		err := e.notifier.NotifyLatePayment(ctx, a.Recipient(out.Balance), days, out.Balance)
		e.notifyFailed("late_payment", a.Tenant.ID, err)
	}
	return out, nil
}
