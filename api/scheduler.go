/*
scheduler.go - Automated billing scheduler

PURPOSE:
  Periodically runs the billing jobs a property manager would otherwise
  trigger by hand: monthly rent, late fees, overdue reminders and lease
  expiry.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each job runs at most once per calendar day; the ledger's period
    keys make a second rent or late-fee run a no-op anyway
  - Rent is charged on RentDay or later, so a server that was down on
    the 1st still charges when it comes back
  - A failing job is logged and never stops the others
  - Runs never overlap: a tick that arrives mid-run waits for the lock

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - RentDay: Day of month rent becomes due (1-28)

USAGE:
  scheduler := NewJobScheduler(engine, occ, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - billing_handlers.go: the same runs triggered manually
  - billing/engine.go: batch semantics
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/occupancy"
	"go.uber.org/zap"
)

// Job names, also used as log fields.
const (
	JobChargeRent    = "charge_rent"
	JobLateFees      = "late_fees"
	JobReminders     = "reminders"
	JobExpireLeases  = "expire_leases"
	schedulerRunName = "scheduler"
)

// JobScheduler runs the daily billing jobs.
type JobScheduler struct {
	Billing       *billing.Engine
	Occupancy     *occupancy.Service
	CheckInterval time.Duration
	Enabled       bool
	RentDay       int
	LateFees      bool
	Reminders     bool
	Now           func() time.Time

	logger  *zap.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex // guards ticker and stop
	runMu   sync.Mutex // serialises runs
	lastRun map[string]time.Time
}

// NewJobScheduler creates a scheduler with every job enabled, rent due on
// the 1st and an hourly check.
func NewJobScheduler(engine *billing.Engine, occ *occupancy.Service, logger *zap.Logger) *JobScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobScheduler{
		Billing:       engine,
		Occupancy:     occ,
		CheckInterval: time.Hour,
		Enabled:       true,
		RentDay:       1,
		LateFees:      true,
		Reminders:     true,
		Now:           time.Now,
		logger:        logger.Named(schedulerRunName),
		lastRun:       make(map[string]time.Time),
	}
}

// Start begins the scheduler.
func (js *JobScheduler) Start() {
	js.mu.Lock()
	defer js.mu.Unlock()

	if !js.Enabled {
		js.logger.Info("disabled, not starting")
		return
	}
	if js.ticker != nil {
		return
	}

	js.ticker = time.NewTicker(js.CheckInterval)
	js.stop = make(chan struct{})
	js.wg.Add(1)

	go js.run(js.ticker, js.stop)

	js.logger.Info("started", zap.Duration("check_interval", js.CheckInterval), zap.Int("rent_day", js.RentDay))
}

// Stop stops the scheduler and waits for a run in progress to finish.
func (js *JobScheduler) Stop() {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.ticker == nil {
		return
	}
	js.ticker.Stop()
	close(js.stop)
	js.wg.Wait()
	js.ticker = nil
	js.logger.Info("stopped")
}

func (js *JobScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer js.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	js.checkAndProcess(ctx)

	for {
		select {
		case <-ticker.C:
			js.checkAndProcess(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate check (for testing/admin) and returns the
// names of the jobs that ran.
func (js *JobScheduler) RunNow(ctx context.Context) []string {
	return js.checkAndProcess(ctx)
}

// checkAndProcess runs every job that is due today and has not run today.
func (js *JobScheduler) checkAndProcess(ctx context.Context) []string {
	js.runMu.Lock()
	defer js.runMu.Unlock()

	today := ledger.DateOf(js.Now())
	var ran []string

	jobs := []struct {
		name string
		due  bool
		fn   func(context.Context, time.Time) error
	}{
		{JobExpireLeases, true, js.expireLeases},
		{JobChargeRent, today.Day() >= js.RentDay, js.chargeRent},
		{JobLateFees, js.LateFees, js.applyLateFees},
		{JobReminders, js.Reminders, js.sendReminders},
	}
	for _, job := range jobs {
		if !job.due || js.ranOn(job.name, today) {
			continue
		}
		if ctx.Err() != nil {
			return ran
		}
		if err := job.fn(ctx, today); err != nil {
			js.logger.Error("job failed", zap.String("job", job.name), zap.Error(err))
			// A partial batch counts as run; a failed one is retried next tick.
			if !errors.Is(err, ledger.ErrPartialBatchFailure) {
				continue
			}
		}
		js.lastRun[job.name] = today
		ran = append(ran, job.name)
	}
	return ran
}

func (js *JobScheduler) ranOn(job string, day time.Time) bool {
	last, ok := js.lastRun[job]
	return ok && last.Equal(day)
}

// =============================================================================
// JOBS
// =============================================================================

func (js *JobScheduler) chargeRent(ctx context.Context, today time.Time) error {
	res, err := js.Billing.ChargeAllActive(ctx, ledger.PeriodOf(today), billing.RunOptions{Actor: schedulerRunName})
	js.logRun(JobChargeRent, res)
	return err
}

func (js *JobScheduler) applyLateFees(ctx context.Context, _ time.Time) error {
	res, err := js.Billing.ApplyAllLateFees(ctx, billing.RunOptions{Actor: schedulerRunName})
	js.logRun(JobLateFees, res)
	return err
}

func (js *JobScheduler) sendReminders(ctx context.Context, _ time.Time) error {
	res, err := js.Billing.SendAllLateReminders(ctx, billing.RunOptions{Actor: schedulerRunName})
	js.logRun(JobReminders, res)
	return err
}

func (js *JobScheduler) expireLeases(ctx context.Context, today time.Time) error {
	expired, err := js.Occupancy.ExpireLeases(ctx, today)
	if err != nil {
		return err
	}
	if len(expired) > 0 {
		js.logger.Info("job completed", zap.String("job", JobExpireLeases), zap.Int("expired", len(expired)))
	}
	return nil
}

func (js *JobScheduler) logRun(job string, res *billing.RunResult) {
	if res == nil {
		return
	}
	js.logger.Info("job completed",
		zap.String("job", job),
		zap.Int("applied", len(res.Applied)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
		zap.String("total", res.Total.String()),
	)
}
