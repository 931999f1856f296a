// Package cmd provides CLI commands for ledgerctl.
package cmd

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/warp/fee-ledger/config"
	"github.com/warp/fee-ledger/internal/app"
	"github.com/warp/fee-ledger/internal/logging"
	"github.com/warp/fee-ledger/ledger"
)

var (
	cfgFile string
	envFile string
	dbDSN   string
	driver  string
	actor   string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Inspect and maintain student fee ledgers",
	Long: `ledgerctl works directly against the ledger database configured for the
server. It can:
- Compute opening balances, period ledgers and reconciliations
- Verify opening balances against their recorded snapshots
- Import transactions and invoices from CSV exports

Results are printed as JSON. Logs go to stderr.

Example:
  ledgerctl import transactions fees-2024.csv
  ledgerctl opening-balance stu-001 --cutoff 2025-01-01
  ledgerctl reconcile stu-001 --start 2025-01-01 --end 2025-12-31
  ledgerctl verify --all`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", ".env file (default is ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "database driver: sqlite, postgres or memory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "database DSN (overrides config)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "ledgerctl", "actor recorded on audit entries")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(openingBalanceCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(studentsCmd)
}

// openApp loads configuration, applies flag overrides and wires the engine.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, err
	}
	if driver != "" {
		cfg.Database.Driver = driver
	}
	if dbDSN != "" {
		cfg.Database.DSN = dbDSN
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
	slog.SetDefault(logger)

	slog.Debug("opening ledger", "driver", cfg.Database.Driver)
	return app.Open(cmd.Context(), cfg, logger)
}

// withApp runs fn against a freshly opened App and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) (err error) {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// periodFlags resolves --start/--end, defaulting to the current period.
func periodFlags(a *app.App, start, end string) (ledger.Period, error) {
	if start == "" && end == "" {
		return a.Periods.PeriodFor(ledger.Today()), nil
	}
	if start == "" || end == "" {
		return ledger.Period{}, errors.New("--start and --end must be given together")
	}
	s, err := ledger.ParseDate(start)
	if err != nil {
		return ledger.Period{}, err
	}
	e, err := ledger.ParseDate(end)
	if err != nil {
		return ledger.Period{}, err
	}
	return ledger.Period{Start: s, End: e}, nil
}
