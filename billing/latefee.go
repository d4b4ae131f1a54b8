package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/property"
	"go.uber.org/zap"
)

// =============================================================================
// LATE FEE POLICY
// =============================================================================

// LateFeePolicy decides who pays a late fee and how much.
//
//	eligible: balance > 0 and days overdue > GraceDays
//	fee:      round(max(rent * FeePercent / 100, MinFee), Places, Rounding)
type LateFeePolicy struct {
	GraceDays  int
	FeePercent decimal.Decimal
	MinFee     ledger.Money
	Rounding   ledger.RoundingMode
	Places     int32
}

func DefaultLateFeePolicy() LateFeePolicy {
	return LateFeePolicy{
		GraceDays:  5,
		FeePercent: decimal.NewFromInt(5),
		MinFee:     ledger.MustMoney("500.00", ledger.DefaultCurrency),
		Rounding:   ledger.RoundHalfUp,
		Places:     ledger.MinorUnitPlaces,
	}
}

func (p LateFeePolicy) Validate() error {
	switch {
	case p.GraceDays < 0:
		return fmt.Errorf("late fee grace days must not be negative, got %d", p.GraceDays)
	case p.FeePercent.IsNegative():
		return fmt.Errorf("late fee percent must not be negative, got %s", p.FeePercent)
	case p.MinFee.IsNegative():
		return fmt.Errorf("minimum late fee must not be negative, got %s", p.MinFee)
	case p.Places < 0:
		return fmt.Errorf("late fee places must not be negative, got %d", p.Places)
	}
	return nil
}

// Fee computes the late fee for a monthly rent. The minimum applies before
// rounding, so a rounded percentage can never fall below it.
func (p LateFeePolicy) Fee(rent ledger.Money) ledger.Money {
	pct := rent.Mul(p.FeePercent).Value.Div(decimal.NewFromInt(100))
	fee := ledger.NewMoney(pct, rent.Currency).Max(ledger.NewMoney(p.MinFee.Value, rent.Currency))
	return fee.Round(p.Places, p.Rounding)
}

// Eligible reports whether a tenant this many days overdue is charged.
func (p LateFeePolicy) Eligible(daysOverdue int) bool {
	return daysOverdue > p.GraceDays
}

// legacyLateFeeFragments match late fees written before period keys.
func legacyLateFeeFragments(p ledger.BillingPeriod) []string {
	return []string{"Late Fee", p.Label()}
}

// =============================================================================
// APPLY LATE FEES
// =============================================================================

// ApplyLateFees charges a late fee to every eligible account. The fee is
// keyed to the calendar month of the run, so a second run in the same
// month charges nobody twice.
func (e *Engine) ApplyLateFees(ctx context.Context, accounts []Account, policy LateFeePolicy, opts RunOptions) (*RunResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	today := e.today()
	period := ledger.PeriodOf(today)
	res := newRunResult("apply_late_fees", period, opts.DryRun)

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := e.lateFeeOne(ctx, a, policy, period, today, opts)
		e.record(res, out, err)
	}
	return e.finish(res)
}

// ApplyAllLateFees runs ApplyLateFees over every active tenant with the
// engine's policy.
func (e *Engine) ApplyAllLateFees(ctx context.Context, opts RunOptions) (*RunResult, error) {
	accounts, err := e.directory.ActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active tenants: %w", err)
	}
	return e.ApplyLateFees(ctx, accounts, e.policy, opts)
}

func (e *Engine) lateFeeOne(ctx context.Context, a Account, policy LateFeePolicy, period ledger.BillingPeriod, today time.Time, opts RunOptions) (Outcome, error) {
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
	if !out.Balance.IsPositive() {
		out.Reason = SkipNoBalance
		return out, nil
	}

	days, ok := ledger.DaysOverdue(entries, today, e.balances.Basis)
	out.DaysOverdue = days
	switch {
	case !ok:
		out.Reason = SkipNoCharges
		return out, nil
	case !policy.Eligible(days):
		out.Reason = SkipWithinGrace
		return out, nil
	}

	if a.Unit.ID == "" {
		return out, fmt.Errorf("%w: tenant %s has no unit", property.ErrUnitNotFound, a.Tenant.ID)
	}
	fee := policy.Fee(a.Unit.MonthlyRent)
	out.Amount = fee

	entry := ledger.Entry{
		TenantID:        a.Tenant.ID,
		Kind:            ledger.KindCharge,
		Category:        ledger.CategoryLateFee,
		Amount:          fee,
		TransactionDate: today,
		PeriodKey:       period.Key(),
		Description:     fmt.Sprintf("Late Fee for %s (%d days overdue)", period.Label(), days),
		Notes:           fmt.Sprintf("Auto-generated late fee: %s%% of rent", policy.FeePercent.StringFixed(2)),
		CreatedBy:       opts.actor(),
	}
	if opts.DryRun {
		return out, e.wouldCharge(ctx, entry, legacyLateFeeFragments(period))
	}

	saved, err := e.ledger.RecordPeriodCharge(ctx, entry, legacyLateFeeFragments(period)...)
	if err != nil {
		return out, err
	}
	out.EntryID = saved.ID

	e.logger.Info("late fee applied",
		zap.String("tenant_id", string(a.Tenant.ID)),
		zap.Int("days_overdue", days),
		zap.String("balance", out.Balance.String()),
		zap.String("fee", fee.String()),
	)
	e.logActivity(ctx, property.AuditCharge, saved,
		fmt.Sprintf("Late fee of %s charged to %s (%d days overdue)", ledger.FormatMoney(fee), a.Tenant.FullName(), days))

	if !opts.SkipNotifications {
		due := out.Balance.Add(fee)
		e.notifyFailed("late_payment", a.Tenant.ID, e.notifier.NotifyLatePayment(ctx, a.Recipient(due), days, due))
	}
	return out, nil
}
