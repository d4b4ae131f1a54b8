/*
main.go - rentctl, the operator CLI

PURPOSE:
  Runs the billing operations from a shell or cron without the HTTP server:
  monthly rent, late fees, reminders, lease expiry, statements and demo
  data. It reads the same config.toml and TENANCY_* variables as the
  server, plus a .env file when one is present.

COMMANDS:
  rentctl charge-rent [--period 2026-03] [--dry-run]
  rentctl apply-late-fees [--dry-run]
  rentctl send-reminders [--dry-run]
  rentctl expire-leases
  rentctl statement --tenant t-123 [--format text|html] [--from] [--to]
  rentctl seed --scenario arrears

EXIT STATUS:
  Non-zero when a command fails, including a batch where any tenant failed.

SEE ALSO:
  - cmd/server: the HTTP server over the same stores
  - api/scheduler.go: the same jobs on a timer
*/
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rentctl",
		Short:         "Tenant ledger and billing operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to config file")
	root.PersistentFlags().String("db", "", "SQLite database path (overrides database.path)")
	root.PersistentFlags().Bool("quiet", false, "Only log warnings and errors")

	root.AddCommand(
		chargeRentCmd(),
		lateFeesCmd(),
		remindersCmd(),
		expireLeasesCmd(),
		statementCmd(),
		seedCmd(),
	)
	return root
}
