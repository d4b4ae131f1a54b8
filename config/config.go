// Package config loads settings from config.toml, TENANCY_* environment
// variables and built-in defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/notify"
)

// EnvPrefix prefixes every environment override: billing.grace_days is
// read from TENANCY_BILLING_GRACE_DAYS.
const EnvPrefix = "TENANCY"

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Log       LogConfig
	Billing   BillingConfig
	Notify    NotifyConfig
	Scheduler SchedulerConfig
	HTTP      HTTPConfig
}

type AppConfig struct {
	Name string
	Env  string // development, production
	Port string
}

type DatabaseConfig struct {
	Path string // sqlite file, or ":memory:"
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// BillingConfig mirrors the system settings the property manager edits.
type BillingConfig struct {
	Currency       string
	LateFeeEnabled bool
	GraceDays      int
	LateFeePercent string // decimal, e.g. "5"
	LateFeeMinimum string // decimal, e.g. "500.00"
	Rounding       string // half_up, half_even
	OverdueBasis   string // oldest_charge, oldest_unpaid
	RentReminders  bool
	ReminderDays   int
}

type NotifyConfig struct {
	Enabled   bool
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration
	RentDay       int // day of month rent is charged
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
}

// Load reads configuration. path, when not empty, names the config file
// explicitly; otherwise config.toml is searched in . and /etc/tenancy and
// may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tenancy")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Billing: BillingConfig{
			Currency:       v.GetString("billing.currency"),
			LateFeeEnabled: v.GetBool("billing.late_fee_enabled"),
			GraceDays:      v.GetInt("billing.grace_days"),
			LateFeePercent: v.GetString("billing.late_fee_percent"),
			LateFeeMinimum: v.GetString("billing.late_fee_minimum"),
			Rounding:       v.GetString("billing.rounding"),
			OverdueBasis:   v.GetString("billing.overdue_basis"),
			RentReminders:  v.GetBool("billing.rent_reminders"),
			ReminderDays:   v.GetInt("billing.reminder_days"),
		},
		Notify: NotifyConfig{
			Enabled:   v.GetBool("notify.enabled"),
			Workers:   v.GetInt("notify.workers"),
			QueueSize: v.GetInt("notify.queue_size"),
			Timeout:   v.GetDuration("notify.timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			CheckInterval: v.GetDuration("scheduler.check_interval"),
			RentDay:       v.GetInt("scheduler.rent_day"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key, which also lets AutomaticEnv find
// overrides for keys absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tenancy-engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.path", "tenancy.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("billing.currency", string(ledger.CurrencyKES))
	v.SetDefault("billing.late_fee_enabled", true)
	v.SetDefault("billing.grace_days", 5)
	v.SetDefault("billing.late_fee_percent", "5")
	v.SetDefault("billing.late_fee_minimum", "500.00")
	v.SetDefault("billing.rounding", "half_up")
	v.SetDefault("billing.overdue_basis", "oldest_charge")
	v.SetDefault("billing.rent_reminders", true)
	v.SetDefault("billing.reminder_days", billing.DefaultReminderDays)

	d := notify.DefaultDispatcherConfig()
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.workers", d.Workers)
	v.SetDefault("notify.queue_size", d.QueueSize)
	v.SetDefault("notify.timeout", d.Timeout)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.check_interval", time.Hour)
	v.SetDefault("scheduler.rent_day", 1)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.cors_allow_origins", []string{"*"})
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := c.Billing.LateFeePolicy(); err != nil {
		return err
	}
	if _, err := c.Billing.Basis(); err != nil {
		return fmt.Errorf("billing.overdue_basis: %w", err)
	}
	if c.Billing.ReminderDays < 0 {
		return fmt.Errorf("billing.reminder_days cannot be negative")
	}
	if c.Notify.Workers <= 0 {
		return fmt.Errorf("notify.workers must be positive")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be positive")
	}
	if c.Scheduler.RentDay < 1 || c.Scheduler.RentDay > 28 {
		return fmt.Errorf("scheduler.rent_day must be between 1 and 28, got %d", c.Scheduler.RentDay)
	}
	if c.Scheduler.Enabled && c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("scheduler.check_interval must be positive")
	}

	if c.App.Env == "production" {
		if c.Database.Path == ":memory:" {
			return fmt.Errorf("database.path cannot be :memory: in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("http.cors_allow_origins cannot be '*' in production")
			}
		}
	}
	return nil
}

// LateFeePolicy converts the settings into the policy the billing engine
// applies.
func (b BillingConfig) LateFeePolicy() (billing.LateFeePolicy, error) {
	pct, err := decimal.NewFromString(b.LateFeePercent)
	if err != nil {
		return billing.LateFeePolicy{}, fmt.Errorf("billing.late_fee_percent: %w", err)
	}
	minFee, err := ledger.ParseMoney(b.LateFeeMinimum, ledger.Currency(b.Currency))
	if err != nil {
		return billing.LateFeePolicy{}, fmt.Errorf("billing.late_fee_minimum: %w", err)
	}
	rounding, err := ledger.ParseRoundingMode(b.Rounding)
	if err != nil {
		return billing.LateFeePolicy{}, fmt.Errorf("billing.rounding: %w", err)
	}

	p := billing.LateFeePolicy{
		GraceDays:  b.GraceDays,
		FeePercent: pct,
		MinFee:     minFee,
		Rounding:   rounding,
		Places:     ledger.MinorUnitPlaces,
	}
	if err := p.Validate(); err != nil {
		return billing.LateFeePolicy{}, fmt.Errorf("billing: %w", err)
	}
	return p, nil
}

func (b BillingConfig) Basis() (ledger.OverdueBasis, error) {
	return ledger.ParseOverdueBasis(b.OverdueBasis)
}

func (n NotifyConfig) Dispatcher() notify.DispatcherConfig {
	return notify.DispatcherConfig{Workers: n.Workers, QueueSize: n.QueueSize, Timeout: n.Timeout}
}

func (c *Config) IsProduction() bool { return c.App.Env == "production" }
