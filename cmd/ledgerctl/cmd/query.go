package cmd

import (
	"github.com/spf13/cobra"
	"github.com/warp/fee-ledger/api"
	"github.com/warp/fee-ledger/internal/app"
	"github.com/warp/fee-ledger/ledger"
)

var (
	cutoff      string
	periodStart string
	periodEnd   string
)

var openingBalanceCmd = &cobra.Command{
	Use:   "opening-balance STUDENT",
	Short: "Print the balance carried into a date",
	Long: `Print the opening balance of a student at a cutoff date: every
non-voided transaction dated strictly before the cutoff, folded with the
zero floor unless credit balances are allowed.

Example:
  ledgerctl opening-balance stu-001 --cutoff 2025-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			date := a.Periods.PeriodFor(ledger.Today()).Start
			if cutoff != "" {
				d, err := ledger.ParseDate(cutoff)
				if err != nil {
					return err
				}
				date = d
			}

			id := ledger.SubjectID(args[0])
			balance, err := a.Engine.CalculateOpeningBalance(actorContext(cmd), id, date)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.OpeningBalanceDTO{
				StudentID:      string(id),
				Cutoff:         date.String(),
				OpeningBalance: api.NewAmountDTO(balance),
			})
		})
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger STUDENT",
	Short: "Print the running-balance ledger for a period",
	Long: `Print the ledger of a student for a period. Without --start and --end
the current accounting period is used.

Example:
  ledgerctl ledger stu-001 --start 2025-01-01 --end 2025-12-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			period, err := periodFlags(a, periodStart, periodEnd)
			if err != nil {
				return err
			}

			id := ledger.SubjectID(args[0])
			entries, err := a.Engine.GenerateLedger(actorContext(cmd), id, period.Start, period.End)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.NewLedgerDTO(id, period, entries))
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile STUDENT",
	Short: "Compare the ledger closing balance with invoices",
	Long: `Reconcile a student's ledger for a period against the invoices dated in
it. A mismatch is reported in the output, not as a failure.

Example:
  ledgerctl reconcile stu-001 --start 2025-01-01 --end 2025-12-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			period, err := periodFlags(a, periodStart, periodEnd)
			if err != nil {
				return err
			}

			result, err := a.Engine.Reconcile(actorContext(cmd), ledger.SubjectID(args[0]), period.Start, period.End)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.NewReconciliationDTO(result))
		})
	},
}

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List students",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			students, err := a.Backend.ListStudents(cmd.Context())
			if err != nil {
				return err
			}
			dtos := make([]api.StudentDTO, len(students))
			for i, st := range students {
				dtos[i] = api.NewStudentDTO(st)
			}
			return printJSON(cmd, dtos)
		})
	},
}

func init() {
	openingBalanceCmd.Flags().StringVar(&cutoff, "cutoff", "", "cutoff date YYYY-MM-DD (default: start of the current period)")

	for _, c := range []*cobra.Command{ledgerCmd, reconcileCmd} {
		c.Flags().StringVar(&periodStart, "start", "", "period start YYYY-MM-DD")
		c.Flags().StringVar(&periodEnd, "end", "", "period end YYYY-MM-DD")
	}
}
