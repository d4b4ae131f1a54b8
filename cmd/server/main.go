/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tenancy engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.toml, TENANCY_* env, defaults)
  2. Build the zap logger
  3. Open the SQLite store
  4. Wire ledger, occupancy, notifications and the billing engine
  5. Configure HTTP router and start the billing scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a config file (default: search ./config.toml)
  -port    Overrides app.port
  -db      Overrides database.path; ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections and drain requests
  3. Flush queued notifications
  4. Close database connection

EXAMPLES:
  ./server -db="./data/tenancy.db"
  TENANCY_BILLING_GRACE_DAYS=7 ./server
  ./server -config=/etc/tenancy/config.toml -port=3000

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - api/scheduler.go: Daily billing jobs
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/tenancy-engine/api"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/config"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/logger"
	"github.com/warp/tenancy-engine/notify"
	"github.com/warp/tenancy-engine/occupancy"
	"github.com/warp/tenancy-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.String("port", "", "HTTP server port (overrides app.port)")
	dbPath := flag.String("db", "", "SQLite database path (overrides database.path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.App.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(exitCode(log, run(cfg, log)))
}

// exitCode logs a failed run and flushes the logger before the process exits.
func exitCode(log *zap.Logger, err error) int {
	if err != nil {
		log.Error("server failed", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Initialize store
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	// Notifications go through the async dispatcher so a slow SMS
	// gateway never holds up a billing run.
	var notifier notify.Notifier = notify.Nop{}
	var dispatcher *notify.Dispatcher
	if cfg.Notify.Enabled {
		transport := notify.NewMessenger(notify.NewLogTransport(log.Named("sms")))
		dispatcher = notify.NewDispatcher(transport, log.Named("notify"), cfg.Notify.Dispatcher())
		notifier = dispatcher
	}

	policy, err := cfg.Billing.LateFeePolicy()
	if err != nil {
		return err
	}
	basis, err := cfg.Billing.Basis()
	if err != nil {
		return err
	}

	l := ledger.New(db.Ledger())
	occ := occupancy.NewService(db.Properties(), occupancy.WithLogger(log.Named("occupancy")))
	engine := billing.NewEngine(l, billing.NewDirectory(db.Properties()),
		billing.WithNotifier(notifier),
		billing.WithActivityLog(db.Properties()),
		billing.WithLateFeePolicy(policy),
		billing.WithReminderDays(cfg.Billing.ReminderDays),
		billing.WithOverdueBasis(basis),
		billing.WithLogger(log.Named("billing")),
	)

	handler := api.NewHandler(engine, occ, log.Named("api"))
	handler.Currency = ledger.Currency(cfg.Billing.Currency)
	if !cfg.IsProduction() {
		handler.Reset = db.Reset
	}

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.HTTP.CORSAllowOrigins,
		Logger:      log.Named("http"),
	})

	scheduler := api.NewJobScheduler(engine, occ, log)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.CheckInterval
	scheduler.RentDay = cfg.Scheduler.RentDay
	scheduler.LateFees = cfg.Billing.LateFeeEnabled
	scheduler.Reminders = cfg.Billing.RentReminders
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env),
			zap.String("database", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		scheduler.Stop()
		return err
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if dispatcher != nil {
		if err := dispatcher.Close(ctx); err != nil {
			log.Warn("notifications still queued at shutdown", zap.Error(err))
		}
	}

	log.Info("server stopped")
	return nil
}
