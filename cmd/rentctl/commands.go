package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/tenancy-engine/api"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/statement"
)

// =============================================================================
// BILLING RUNS
// =============================================================================

func chargeRentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charge-rent",
		Short: "Charge monthly rent to every active tenant",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			period := ledger.PeriodOf(a.now())
			if v, _ := cmd.Flags().GetString("period"); v != "" {
				p, err := ledger.ParsePeriod(v)
				if err != nil {
					return err
				}
				period = p
			}
			res, err := a.engine.ChargeAllActive(ctx, period, runOptions(cmd))
			return report(cmd.OutOrStdout(), res, err)
		}),
	}
	cmd.Flags().String("period", "", "Billing period as YYYY-MM (default: current month)")
	addRunFlags(cmd)
	return cmd
}

func lateFeesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply-late-fees",
		Short: "Charge the late fee to every tenant past the grace period",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			if !a.cfg.Billing.LateFeeEnabled {
				return errors.New("late fees are disabled (billing.late_fee_enabled)")
			}
			res, err := a.engine.ApplyAllLateFees(ctx, runOptions(cmd))
			return report(cmd.OutOrStdout(), res, err)
		}),
	}
	addRunFlags(cmd)
	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send-reminders",
		Short: "Remind every tenant with an overdue balance",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			res, err := a.engine.SendAllLateReminders(ctx, runOptions(cmd))
			return report(cmd.OutOrStdout(), res, err)
		}),
	}
	addRunFlags(cmd)
	return cmd
}

func expireLeasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-leases",
		Short: "Mark ACTIVE leases past their end date as EXPIRED",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			expired, err := a.occupancy.ExpireLeases(ctx, a.now())
			if err != nil {
				return err
			}
			for _, l := range expired {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tended %s\n", l.ID, l.TenantID, l.EndDate.Format("2006-01-02"))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d lease(s) expired\n", len(expired))
			return nil
		}),
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Report what would happen without writing")
	cmd.Flags().Bool("no-notify", false, "Do not notify tenants")
}

func runOptions(cmd *cobra.Command) billing.RunOptions {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noNotify, _ := cmd.Flags().GetBool("no-notify")
	return billing.RunOptions{DryRun: dryRun, SkipNotifications: noNotify, Actor: cliActor}
}

// report prints a run as a table. A partial batch prints, then fails.
func report(w io.Writer, res *billing.RunResult, err error) error {
	if res == nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tNAME\tOUTCOME\tAMOUNT\tDAYS")
	for _, o := range res.Applied {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", o.TenantID, o.Name, appliedLabel(res), o.Amount, o.DaysOverdue)
	}
	for _, o := range res.Skipped {
		fmt.Fprintf(tw, "%s\t%s\tskipped (%s)\t\t%d\n", o.TenantID, o.Name, o.Reason, o.DaysOverdue)
	}
	for _, o := range res.Failed {
		fmt.Fprintf(tw, "%s\t%s\tfailed: %v\t\t\n", o.TenantID, o.Name, o.Err)
	}
	tw.Flush()

	prefix := ""
	if res.DryRun {
		prefix = "[dry run] "
	}
	fmt.Fprintf(w, "%s%s %s: %d applied, %d skipped, %d failed, total %s\n",
		prefix, res.Operation, res.Period.Key(),
		len(res.Applied), len(res.Skipped), len(res.Failed), ledger.FormatMoney(res.Total))
	return err
}

func appliedLabel(res *billing.RunResult) string {
	if res.DryRun {
		return "would apply"
	}
	return "applied"
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func statementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Print a tenant's statement",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			id, _ := cmd.Flags().GetString("tenant")
			format, _ := cmd.Flags().GetString("format")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			if id == "" {
				return errors.New("--tenant is required")
			}

			renderer, err := statement.ForFormat(format)
			if err != nil {
				return err
			}
			account, err := a.engine.Directory().Account(ctx, ledger.TenantID(id))
			if err != nil {
				return err
			}

			var entries []ledger.Entry
			if fromFlag == "" && toFlag == "" {
				entries, err = a.engine.Ledger().Entries(ctx, account.Tenant.ID)
			} else {
				from, to := ledger.Date(1, 1, 1), ledger.DateOf(a.now())
				if fromFlag != "" {
					if from, err = ledger.ParseDate(fromFlag); err != nil {
						return err
					}
				}
				if toFlag != "" {
					if to, err = ledger.ParseDate(toFlag); err != nil {
						return err
					}
				}
				entries, err = a.engine.Ledger().EntriesInRange(ctx, account.Tenant.ID, from, to)
			}
			if err != nil {
				return err
			}

			return renderer.RenderStatement(cmd.OutOrStdout(), statement.Build(account, entries, a.now()))
		}),
	}
	cmd.Flags().String("tenant", "", "Tenant ID")
	cmd.Flags().String("format", "text", "Output format: text or html")
	cmd.Flags().String("from", "", "First date to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last date to include (YYYY-MM-DD)")
	return cmd
}

// =============================================================================
// DEMO DATA
// =============================================================================

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Reset the database and load a demo scenario",
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			if a.cfg.IsProduction() {
				return errors.New("seed is disabled in production")
			}
			scenario, _ := cmd.Flags().GetString("scenario")
			if err := a.db.Reset(ctx); err != nil {
				return fmt.Errorf("reset database: %w", err)
			}
			seeder := api.Seeder{Occupancy: a.occupancy, Billing: a.engine, Today: ledger.DateOf(a.now())}
			if err := seeder.Load(ctx, scenario); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded scenario %q into %s\n", scenario, a.cfg.Database.Path)
			return nil
		}),
	}
	cmd.Flags().String("scenario", "single-building", "Scenario ID (single-building, arrears, turnover)")
	return cmd
}
