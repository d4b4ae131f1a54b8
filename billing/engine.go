/*
Package billing runs the money side of the tenancy: monthly rent, late fees,
payments and overdue reminders.

PURPOSE:
  Billing turns policy into ledger entries. It decides who is charged what
  and when; the ledger decides whether the entry may be written.

BATCH SEMANTICS (ChargeRent, ApplyLateFees, SendLateReminders):
  - Tenants are processed one at a time, each in its own ledger write
  - A tenant already charged for the period is SKIPPED, not failed
  - Any other error is recorded against that tenant; the batch continues
  - The returned error is a *ledger.PartialBatchError when any tenant failed;
    the RunResult is returned either way
  - Dry runs read the ledger but write nothing and notify no one

IDEMPOTENCY:
  Rent:     ChargeKey{tenant, period, rent}
  Late fee: ChargeKey{tenant, month of the run, late_fee}
  Entries written before period keys existed are matched by description
  (see legacyRentFragments, legacyLateFeeFragments).

NOTIFICATIONS:
  Sent after the ledger write commits. Errors are logged and never change
  the outcome of the write.

SEE ALSO:
  - ledger/ledger.go: RecordPeriodCharge
  - notify/dispatcher.go: asynchronous delivery
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/notify"
	"github.com/warp/tenancy-engine/property"
	"go.uber.org/zap"
)

// Engine runs billing operations against a ledger.
type Engine struct {
	ledger       *ledger.Ledger
	balances     *ledger.BalanceEngine
	directory    Directory
	notifier     notify.Notifier
	activity     property.Store
	policy       LateFeePolicy
	reminderDays int
	logger       *zap.Logger
	now          func() time.Time
}

type Option func(*Engine)

// WithNotifier sets where rent, payment and late notices go.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithActivityLog records charges and payments in the activity log.
func WithActivityLog(store property.Store) Option {
	return func(e *Engine) { e.activity = store }
}

func WithLateFeePolicy(p LateFeePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithReminderDays sets how many days after the latest charge a tenant
// with a balance gets a reminder.
func WithReminderDays(days int) Option {
	return func(e *Engine) { e.reminderDays = days }
}

func WithOverdueBasis(b ledger.OverdueBasis) Option {
	return func(e *Engine) { e.balances.Basis = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// SystemActor is recorded on entries written by batch runs.
const SystemActor = "system"

// DefaultReminderDays matches the late fee grace period.
const DefaultReminderDays = 5

func NewEngine(l *ledger.Ledger, dir Directory, opts ...Option) *Engine {
	e := &Engine{
		ledger:       l,
		balances:     ledger.NewBalanceEngine(l.Store()),
		directory:    dir,
		notifier:     notify.Nop{},
		policy:       DefaultLateFeePolicy(),
		reminderDays: DefaultReminderDays,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Ledger() *ledger.Ledger          { return e.ledger }
func (e *Engine) Balances() *ledger.BalanceEngine { return e.balances }
func (e *Engine) Directory() Directory            { return e.directory }
func (e *Engine) LateFeePolicy() LateFeePolicy    { return e.policy }
func (e *Engine) ReminderDays() int               { return e.reminderDays }
func (e *Engine) today() time.Time                { return ledger.DateOf(e.now()) }

// RunOptions control a batch run.
type RunOptions struct {
	DryRun            bool
	SkipNotifications bool
	Actor             string // CreatedBy of written entries; empty means "system"
}

func (o RunOptions) actor() string {
	if o.Actor == "" {
		return SystemActor
	}
	return o.Actor
}

// =============================================================================
// RUN RESULT
// =============================================================================

type SkipReason string

const (
	SkipAlreadyCharged SkipReason = "already_charged"
	SkipInactive       SkipReason = "inactive"
	SkipNoBalance      SkipReason = "no_balance"
	SkipNoCharges      SkipReason = "no_charges"
	SkipWithinGrace    SkipReason = "within_grace"
	SkipNotDue         SkipReason = "not_due"
)

// Outcome is what a batch did (or, on a dry run, would do) for one tenant.
type Outcome struct {
	TenantID    ledger.TenantID
	Name        string
	Amount      ledger.Money // rent or fee charged; balance for reminders
	Balance     ledger.Money // balance before the charge
	DaysOverdue int
	EntryID     ledger.EntryID // empty on dry runs and for reminders
	Reason      SkipReason
	Err         error
}

// RunResult collects a batch's outcomes. Applied holds the tenants that
// were charged, fined or reminded.
type RunResult struct {
	Operation string
	Period    ledger.BillingPeriod
	DryRun    bool
	Applied   []Outcome
	Skipped   []Outcome
	Failed    []Outcome
	Total     ledger.Money
}

func newRunResult(op string, period ledger.BillingPeriod, dryRun bool) *RunResult {
	return &RunResult{Operation: op, Period: period, DryRun: dryRun, Total: ledger.Zero(ledger.DefaultCurrency)}
}

// Processed is the number of tenants the run looked at.
func (r *RunResult) Processed() int {
	return len(r.Applied) + len(r.Skipped) + len(r.Failed)
}

// Err returns a *ledger.PartialBatchError when any tenant failed.
func (r *RunResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	failures := make([]ledger.TenantFailure, 0, len(r.Failed))
	for _, f := range r.Failed {
		failures = append(failures, ledger.TenantFailure{TenantID: f.TenantID, Name: f.Name, Err: f.Err})
	}
	return &ledger.PartialBatchError{Operation: r.Operation, Failures: failures, Processed: r.Processed()}
}

// record files one tenant's outcome. A duplicate charge is a skip.
func (e *Engine) record(r *RunResult, out Outcome, err error) {
	switch {
	case err != nil && ledger.IsConflict(err):
		out.Reason = SkipAlreadyCharged
		r.Skipped = append(r.Skipped, out)
		e.logger.Info("already charged, skipping",
			zap.String("operation", r.Operation),
			zap.String("tenant_id", string(out.TenantID)),
			zap.String("period", r.Period.Key()),
		)
	case err != nil:
		out.Err = err
		r.Failed = append(r.Failed, out)
		e.logger.Error("tenant failed",
			zap.String("operation", r.Operation),
			zap.String("tenant_id", string(out.TenantID)),
			zap.Error(err),
		)
	case out.Reason != "":
		r.Skipped = append(r.Skipped, out)
	default:
		r.Applied = append(r.Applied, out)
		r.Total = r.Total.Add(out.Amount)
	}
}

func (e *Engine) finish(r *RunResult) (*RunResult, error) {
	e.logger.Info("billing run finished",
		zap.String("operation", r.Operation),
		zap.String("period", r.Period.Key()),
		zap.Bool("dry_run", r.DryRun),
		zap.Int("applied", len(r.Applied)),
		zap.Int("skipped", len(r.Skipped)),
		zap.Int("failed", len(r.Failed)),
		zap.String("total", r.Total.String()),
	)
	return r, r.Err()
}

// =============================================================================
// SIDE EFFECTS - best-effort, after the ledger write
// =============================================================================

// balanceAfter reads the balance for a notification. A failed read falls
// back to the given amount.
func (e *Engine) balanceAfter(ctx context.Context, id ledger.TenantID, fallback ledger.Money) ledger.Money {
	b, err := e.balances.Balance(ctx, id)
	if err != nil {
		e.logger.Warn("balance read for notification failed", zap.String("tenant_id", string(id)), zap.Error(err))
		return fallback
	}
	return b
}

func (e *Engine) logActivity(ctx context.Context, action property.AuditAction, entry ledger.Entry, description string) {
	if e.activity == nil {
		return
	}
	err := e.activity.AppendAudit(ctx, property.AuditEntry{
		ID:          uuid.NewString(),
		Timestamp:   e.now().UTC(),
		Actor:       entry.CreatedBy,
		Action:      action,
		Model:       "ledger_entry",
		ObjectID:    string(entry.ID),
		Description: description,
	})
	if err != nil {
		e.logger.Warn("activity log write failed", zap.String("entry_id", string(entry.ID)), zap.Error(err))
	}
}

func (e *Engine) notifyFailed(kind string, id ledger.TenantID, err error) {
	if err == nil {
		return
	}
	nerr := &ledger.NotificationError{Kind: kind, TenantID: id, Err: err}
	e.logger.Warn("notification failed", zap.Error(nerr))
}
