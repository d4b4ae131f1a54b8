package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/tenancy-engine/ledger"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tenancy-engine", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "tenancy.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.True(t, cfg.Billing.LateFeeEnabled)
	assert.True(t, cfg.Billing.RentReminders)
	assert.Equal(t, 5, cfg.Billing.GraceDays)
	assert.Equal(t, 5, cfg.Billing.ReminderDays)
	assert.Equal(t, "KES", cfg.Billing.Currency)

	assert.True(t, cfg.Notify.Enabled)
	assert.Equal(t, 2, cfg.Notify.Workers)
	assert.Equal(t, time.Hour, cfg.Scheduler.CheckInterval)
	assert.Equal(t, 1, cfg.Scheduler.RentDay)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)

	policy, err := cfg.Billing.LateFeePolicy()
	require.NoError(t, err)
	assert.Equal(t, 5, policy.GraceDays)
	assert.Equal(t, "500.00", policy.MinFee.String())
	assert.Equal(t, ledger.RoundHalfUp, policy.Rounding)
	assert.Equal(t, "1000.00", policy.Fee(ledger.MustMoney("20000", ledger.CurrencyKES)).String())

	basis, err := cfg.Billing.Basis()
	require.NoError(t, err)
	assert.Equal(t, ledger.OverdueFromOldestCharge, basis)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	// GIVEN: a config file
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/var/lib/tenancy/prod.db"

[billing]
grace_days = 3
late_fee_percent = "10"
late_fee_enabled = false
overdue_basis = "oldest_unpaid"

[scheduler]
rent_day = 5
`), 0o600))

	// AND: an environment override
	t.Setenv("TENANCY_BILLING_GRACE_DAYS", "7")

	// WHEN
	cfg, err := Load(path)

	// THEN: env beats file, file beats defaults
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tenancy/prod.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.Billing.GraceDays)
	assert.Equal(t, "10", cfg.Billing.LateFeePercent)
	assert.False(t, cfg.Billing.LateFeeEnabled)
	assert.Equal(t, 5, cfg.Scheduler.RentDay)

	basis, err := cfg.Billing.Basis()
	require.NoError(t, err)
	assert.Equal(t, ledger.OverdueFromOldestUnpaid, basis)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad percent", map[string]string{"TENANCY_BILLING_LATE_FEE_PERCENT": "five"}},
		{"negative grace", map[string]string{"TENANCY_BILLING_GRACE_DAYS": "-1"}},
		{"bad basis", map[string]string{"TENANCY_BILLING_OVERDUE_BASIS": "newest"}},
		{"bad rounding", map[string]string{"TENANCY_BILLING_ROUNDING": "up"}},
		{"rent day", map[string]string{"TENANCY_SCHEDULER_RENT_DAY": "31"}},
		{"workers", map[string]string{"TENANCY_NOTIFY_WORKERS": "0"}},
		{"production wildcard cors", map[string]string{"TENANCY_APP_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestNotifyConfig_Dispatcher(t *testing.T) {
	n := NotifyConfig{Workers: 4, QueueSize: 10, Timeout: time.Second}
	d := n.Dispatcher()
	assert.Equal(t, 4, d.Workers)
	assert.Equal(t, 10, d.QueueSize)
	assert.Equal(t, time.Second, d.Timeout)
}
