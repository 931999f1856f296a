package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/fee-ledger/importer"
	"github.com/warp/fee-ledger/internal/app"
)

// importCmd groups the CSV import commands.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import transactions or invoices from CSV",
	Long: `Import a CSV export into the ledger. Each file is recorded atomically:
if any line fails to parse or validate, nothing is written and every bad
line is reported. Unknown students are created on the fly.

Use "-" as the file name to read from stdin.

Example:
  ledgerctl import transactions fees-2024.csv
  ledgerctl import invoices invoices-2025.csv`,
}

var importTransactionsCmd = &cobra.Command{
	Use:   "transactions FILE",
	Short: "Import transactions (id,student_id,type,amount,date,...)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], (*importer.Importer).ImportTransactions)
	},
}

var importInvoicesCmd = &cobra.Command{
	Use:   "invoices FILE",
	Short: "Import invoices (id,student_id,amount,invoice_date,status)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, args[0], (*importer.Importer).ImportInvoices)
	},
}

type importFunc func(*importer.Importer, context.Context, io.Reader) (importer.Summary, error)

func runImport(cmd *cobra.Command, path string, fn importFunc) error {
	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		in = f
	}

	return withApp(cmd, func(a *app.App) error {
		im := importer.New(a.Backend, a.Logger)
		sum, err := fn(im, actorContext(cmd), in)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"file":     path,
			"rows":     sum.Rows,
			"students": sum.Students,
		})
	})
}

func init() {
	importCmd.AddCommand(importTransactionsCmd)
	importCmd.AddCommand(importInvoicesCmd)
}
