/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the student fee ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults, YAML, .env, LEDGER_* variables, flags)
  3. Open the configured store and audit sink, build the engine
  4. Start the verification scheduler when enabled
  5. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -env     .env file (default: ./.env when present)
  -addr    HTTP listen address, overrides server.addr
  -db      Database DSN, overrides database.dsn
           Use ":memory:" with the sqlite driver for a throwaway database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler (waits for an in-flight sweep)
  4. Close database connection and audit sink
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run against Postgres, auditing to Kafka
  LEDGER_DB_DRIVER=postgres LEDGER_DB_DSN=postgres://... \
  LEDGER_AUDIT_SINK=kafka LEDGER_KAFKA_BROKERS=kafka:9092 ./server

SEE ALSO:
  - config/config.go: Every setting and its environment variable
  - api/server.go: Router configuration
  - internal/app/app.go: Store and engine wiring
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/fee-ledger/api"
	"github.com/warp/fee-ledger/config"
	"github.com/warp/fee-ledger/internal/app"
	"github.com/warp/fee-ledger/internal/logging"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	envPath := flag.String("env", "", ".env file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dsn := flag.String("db", "", "database DSN (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		logging.New(os.Stderr, "info", "text").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}

	logger := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	a, err := app.Open(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	handler := api.NewHandler(a.Backend, a.Engine, a.Periods, logger)

	scheduler := api.NewVerificationScheduler(a.Engine, a.Backend, a.Periods, logger)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Workers = cfg.Scheduler.Workers
	scheduler.Enabled = cfg.Scheduler.Enabled
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
