package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/tenancy-engine/ledger"
	"go.uber.org/zap"
)

// =============================================================================
// DISPATCHER - Asynchronous, best-effort Notifier
// =============================================================================

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration // per delivery
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{Workers: 2, QueueSize: 256, Timeout: 30 * time.Second}
}

// Stats counts what happened to queued notifications.
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}

// Dispatcher queues notifications and delivers them to the next Notifier
// on worker goroutines. Its Notify methods never block and never return an
// error: a full queue drops the notification and a failed delivery is
// logged as a *ledger.NotificationError.
type Dispatcher struct {
	next    Notifier
	logger  *zap.Logger
	timeout time.Duration
	queue   chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

type job struct {
	kind     Kind
	tenantID ledger.TenantID
	send     func(ctx context.Context) error
}

// NewDispatcher starts the workers. Call Close to drain and stop them.
func NewDispatcher(next Notifier, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		next:    next,
		logger:  logger,
		timeout: cfg.Timeout,
		queue:   make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) NotifyRentCharged(_ context.Context, to Recipient, amount ledger.Money, period string) error {
	d.enqueue(KindRentCharged, to.TenantID, func(ctx context.Context) error {
		return d.next.NotifyRentCharged(ctx, to, amount, period)
	})
	return nil
}

func (d *Dispatcher) NotifyPaymentReceived(_ context.Context, to Recipient, amount ledger.Money, date time.Time) error {
	d.enqueue(KindPaymentReceived, to.TenantID, func(ctx context.Context) error {
		return d.next.NotifyPaymentReceived(ctx, to, amount, date)
	})
	return nil
}

func (d *Dispatcher) NotifyLatePayment(_ context.Context, to Recipient, daysLate int, amountDue ledger.Money) error {
	d.enqueue(KindLatePayment, to.TenantID, func(ctx context.Context) error {
		return d.next.NotifyLatePayment(ctx, to, daysLate, amountDue)
	})
	return nil
}

// enqueue never blocks. The caller's context is not carried over: the
// delivery outlives the request that triggered it.
func (d *Dispatcher) enqueue(kind Kind, tenantID ledger.TenantID, send func(context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(kind, tenantID, "dispatcher closed")
		return
	}

	select {
	case d.queue <- job{kind: kind, tenantID: tenantID, send: send}:
	default:
		d.drop(kind, tenantID, "queue full")
	}
}

func (d *Dispatcher) drop(kind Kind, tenantID ledger.TenantID, reason string) {
	d.dropped.Add(1)
	d.logger.Warn("notification dropped",
		zap.String("kind", string(kind)),
		zap.String("tenant_id", string(tenantID)),
		zap.String("reason", reason),
	)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

// deliver runs one job, recovering from panics in the downstream notifier.
func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = j.send(ctx)
	}()

	if err != nil {
		d.failed.Add(1)
		nerr := &ledger.NotificationError{Kind: string(j.kind), TenantID: j.tenantID, Err: err}
		d.logger.Error("notification failed",
			zap.String("kind", string(j.kind)),
			zap.String("tenant_id", string(j.tenantID)),
			zap.Error(nerr),
		)
		return
	}

	d.sent.Add(1)
	d.logger.Debug("notification sent",
		zap.String("kind", string(j.kind)),
		zap.String("tenant_id", string(j.tenantID)),
	)
}

// Close stops accepting work and waits for queued notifications to be
// delivered, or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped",
			zap.Int64("sent", d.sent.Load()),
			zap.Int64("failed", d.failed.Load()),
			zap.Int64("dropped", d.dropped.Load()),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Dropped: d.dropped.Load()}
}

var _ Notifier = (*Dispatcher)(nil)
