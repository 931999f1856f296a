package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/warp/fee-ledger/api"
	"github.com/warp/fee-ledger/internal/app"
	"github.com/warp/fee-ledger/ledger"
)

var (
	verifyPeriodStart string
	verifyAll         bool
	verifyWorkers     int
)

// verifyCmd represents the verify command.
var verifyCmd = &cobra.Command{
	Use:   "verify [STUDENT]",
	Short: "Verify opening balances against recorded snapshots",
	Long: `Recompute a student's opening balance and compare it with the snapshot
recorded for the period. The first verification of a period records the
snapshot. With --all every student is verified for the current period.

Exits with an error when any balance disagrees with its snapshot.

Example:
  ledgerctl verify stu-001 --period-start 2025-01-01
  ledgerctl verify --all --workers 8`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyAll == (len(args) == 1) {
			return errors.New("give either a student or --all")
		}
		return withApp(cmd, func(a *app.App) error {
			if verifyAll {
				return verifyEveryone(cmd, a)
			}
			return verifyOne(cmd, a, ledger.SubjectID(args[0]))
		})
	},
}

var errDiscrepancy = errors.New("opening balance discrepancy found")

func verifyOne(cmd *cobra.Command, a *app.App, id ledger.SubjectID) error {
	start := a.Periods.PeriodFor(ledger.Today()).Start
	if verifyPeriodStart != "" {
		d, err := ledger.ParseDate(verifyPeriodStart)
		if err != nil {
			return err
		}
		start = d
	}

	result, err := a.Engine.VerifyOpeningBalance(actorContext(cmd), id, start)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, api.NewVerificationDTO(result)); err != nil {
		return err
	}
	if !result.Verified {
		return errDiscrepancy
	}
	return nil
}

func verifyEveryone(cmd *cobra.Command, a *app.App) error {
	sched := api.NewVerificationScheduler(a.Engine, a.Backend, a.Periods, a.Logger)
	sched.Workers = verifyWorkers
	if verifyPeriodStart != "" {
		d, err := ledger.ParseDate(verifyPeriodStart)
		if err != nil {
			return err
		}
		sched.Today = func() ledger.Date { return d }
	}

	run := sched.RunNow(actorContext(cmd))
	if err := printJSON(cmd, api.NewVerificationRunDTO(run)); err != nil {
		return err
	}
	switch {
	case run.Status == api.RunStatusFailed || len(run.Errors) > 0:
		return errors.New("verification sweep had errors")
	case len(run.Discrepancies) > 0:
		return errDiscrepancy
	}
	return nil
}

func actorContext(cmd *cobra.Command) context.Context {
	return ledger.WithActor(cmd.Context(), actor)
}

func init() {
	verifyCmd.Flags().StringVar(&verifyPeriodStart, "period-start", "", "period start YYYY-MM-DD (default: start of the current period)")
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify every student")
	verifyCmd.Flags().IntVar(&verifyWorkers, "workers", 4, "concurrent verifications with --all")
}
