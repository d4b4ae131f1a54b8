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
// RENT
// =============================================================================

// legacyRentFragments match rent charges written before period keys, whose
// only record of the period is the description ("Rent for March 2026").
func legacyRentFragments(p ledger.BillingPeriod) []string {
	return []string{"Rent", p.Label()}
}

func rentEntry(a Account, p ledger.BillingPeriod, amount ledger.Money, date time.Time) ledger.Entry {
	return ledger.Entry{
		TenantID:        a.Tenant.ID,
		Kind:            ledger.KindCharge,
		Category:        ledger.CategoryRent,
		Amount:          amount,
		TransactionDate: date,
		PeriodKey:       p.Key(),
		Description:     "Rent for " + p.Label(),
		Notes:           "Auto-generated rent charge for " + p.Label(),
	}
}

// ChargeRent charges every active account its unit's monthly rent for the
// period, dated today. Moved-out tenants are skipped, as is anyone already
// charged rent for the period.
func (e *Engine) ChargeRent(ctx context.Context, accounts []Account, period ledger.BillingPeriod, opts RunOptions) (*RunResult, error) {
	if period.IsZero() {
		return nil, fmt.Errorf("%w: period is required", ledger.ErrInvalidPeriod)
	}
	today := e.today()
	res := newRunResult("charge_rent", period, opts.DryRun)

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := e.chargeRentOne(ctx, a, period, today, opts)
		e.record(res, out, err)
	}
	return e.finish(res)
}

func (e *Engine) chargeRentOne(ctx context.Context, a Account, period ledger.BillingPeriod, today time.Time, opts RunOptions) (Outcome, error) {
	out := Outcome{TenantID: a.Tenant.ID, Name: a.Tenant.FullName(), Amount: a.Unit.MonthlyRent}
	if !a.Tenant.IsActive() {
		out.Reason = SkipInactive
		return out, nil
	}
	if a.Unit.ID == "" {
		return out, fmt.Errorf("%w: tenant %s has no unit", property.ErrUnitNotFound, a.Tenant.ID)
	}
	if err := ledger.ValidateAmount(a.Unit.MonthlyRent); err != nil {
		return out, fmt.Errorf("monthly rent of unit %s: %w", a.Unit.Number, err)
	}

	entry := rentEntry(a, period, a.Unit.MonthlyRent, today)
	entry.CreatedBy = opts.actor()
	if opts.DryRun {
		return out, e.wouldCharge(ctx, entry, legacyRentFragments(period))
	}

	saved, err := e.ledger.RecordPeriodCharge(ctx, entry, legacyRentFragments(period)...)
	if err != nil {
		return out, err
	}
	out.EntryID = saved.ID

	e.afterRentCharged(ctx, a, saved, period, opts)
	return out, nil
}

// wouldCharge answers a dry run: nil if the charge would be written, a
// *ledger.DuplicatePeriodChargeError if it would be skipped.
func (e *Engine) wouldCharge(ctx context.Context, entry ledger.Entry, legacy []string) error {
	key, _ := entry.ChargeKey()
	exists, err := e.ledger.ChargeExists(ctx, key, legacy...)
	if err != nil {
		return err
	}
	if exists {
		return &ledger.DuplicatePeriodChargeError{Key: key}
	}
	return nil
}

func (e *Engine) afterRentCharged(ctx context.Context, a Account, saved ledger.Entry, period ledger.BillingPeriod, opts RunOptions) {
	e.logger.Info("rent charged",
		zap.String("tenant_id", string(a.Tenant.ID)),
		zap.String("period", period.Key()),
		zap.String("amount", saved.Amount.String()),
	)
	e.logActivity(ctx, property.AuditCharge, saved,
		fmt.Sprintf("Rent of %s charged to %s for %s", ledger.FormatMoney(saved.Amount), a.Tenant.FullName(), period.Label()))

	if opts.SkipNotifications {
		return
	}
	to := a.Recipient(e.balanceAfter(ctx, a.Tenant.ID, saved.Amount))
	e.notifyFailed("rent_charged", a.Tenant.ID, e.notifier.NotifyRentCharged(ctx, to, saved.Amount, period.Label()))
}

// ChargeAllActive charges rent to every active tenant in the directory.
func (e *Engine) ChargeAllActive(ctx context.Context, period ledger.BillingPeriod, opts RunOptions) (*RunResult, error) {
	accounts, err := e.directory.ActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active tenants: %w", err)
	}
	return e.ChargeRent(ctx, accounts, period, opts)
}

// =============================================================================
// SINGLE-TENANT RENT CHARGE
// =============================================================================

// RentCharge overrides the defaults of ChargeTenant. Zero fields take the
// unit's rent, today's date, the current period and "Rent for <period>".
type RentCharge struct {
	Period      ledger.BillingPeriod
	Amount      ledger.Money
	Date        time.Time
	Description string
	CreatedBy   string
	Notify      bool
}

// ChargeTenant charges one tenant rent for a period. Unlike the batch it
// returns the duplicate as an error, since the caller asked for this
// specific charge.
func (e *Engine) ChargeTenant(ctx context.Context, id ledger.TenantID, req RentCharge) (ledger.Entry, error) {
	a, err := e.directory.Account(ctx, id)
	if err != nil {
		return ledger.Entry{}, err
	}

	if req.Period.IsZero() {
		req.Period = ledger.PeriodOf(e.now())
	}
	if req.Amount.Value.IsZero() && req.Amount.Currency == "" {
		req.Amount = a.Unit.MonthlyRent
	}
	if req.Date.IsZero() {
		req.Date = e.today()
	}

	entry := rentEntry(a, req.Period, req.Amount, req.Date)
	if req.Description != "" {
		entry.Description = req.Description
	}
	entry.CreatedBy = req.CreatedBy

	saved, err := e.ledger.RecordPeriodCharge(ctx, entry, legacyRentFragments(req.Period)...)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.afterRentCharged(ctx, a, saved, req.Period, RunOptions{SkipNotifications: !req.Notify})
	return saved, nil
}
