package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/config"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/logger"
	"github.com/warp/tenancy-engine/notify"
	"github.com/warp/tenancy-engine/occupancy"
	"github.com/warp/tenancy-engine/store/sqlite"
	"go.uber.org/zap"
)

// cliActor is recorded as CreatedBy on entries rentctl writes.
const cliActor = "rentctl"

// app is one command's view of the stores and services.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *sqlite.Store
	engine     *billing.Engine
	occupancy  *occupancy.Service
	dispatcher *notify.Dispatcher
	now        func() time.Time
}

func openApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	dbPath, _ := cmd.Flags().GetString("db")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Output = "stderr"
	if quiet {
		logCfg.Level = "warn"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	policy, err := cfg.Billing.LateFeePolicy()
	if err != nil {
		db.Close()
		return nil, err
	}
	basis, err := cfg.Billing.Basis()
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db, now: time.Now}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		transport := notify.NewMessenger(notify.NewLogTransport(log.Named("sms")))
		a.dispatcher = notify.NewDispatcher(transport, log.Named("notify"), cfg.Notify.Dispatcher())
		notifier = a.dispatcher
	}

	a.occupancy = occupancy.NewService(db.Properties(),
		occupancy.WithLogger(log.Named("occupancy")),
		occupancy.WithActor(cliActor),
	)
	a.engine = billing.NewEngine(ledger.New(db.Ledger()), billing.NewDirectory(db.Properties()),
		billing.WithNotifier(notifier),
		billing.WithActivityLog(db.Properties()),
		billing.WithLateFeePolicy(policy),
		billing.WithReminderDays(cfg.Billing.ReminderDays),
		billing.WithOverdueBasis(basis),
		billing.WithLogger(log.Named("billing")),
	)
	return a, nil
}

// Close drains queued notifications, then closes the database.
func (a *app) Close(ctx context.Context) {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.dispatcher.Close(ctx); err != nil {
			a.log.Warn("notifications still queued at exit", zap.Error(err))
		}
	}
	a.db.Close()
	a.log.Sync()
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		defer a.Close(ctx)
		return fn(ctx, cmd, a)
	}
}
