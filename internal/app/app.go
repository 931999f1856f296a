// Package app wires configuration into a ready engine: it opens the
// configured backend, selects the audit sink and builds the ledger engine.
// Both the HTTP server and ledgerctl start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/warp/fee-ledger/api"
	"github.com/warp/fee-ledger/config"
	"github.com/warp/fee-ledger/events/kafka"
	"github.com/warp/fee-ledger/importer"
	"github.com/warp/fee-ledger/ledger"
	"github.com/warp/fee-ledger/ledger/store"
	"github.com/warp/fee-ledger/store/postgres"
	"github.com/warp/fee-ledger/store/sqlite"
)

// Backend is what every storage driver provides.
type Backend interface {
	api.Store
	importer.Target
	Repositories() ledger.Repositories
}

// App holds the wired components. Close releases them.
type App struct {
	Config  *config.Config
	Backend Backend
	Engine  *ledger.Engine
	Periods ledger.PeriodConfig
	Logger  *slog.Logger

	closers []io.Closer
}

// Open validates cfg and builds an App from it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	backend, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Backend = backend
	if c, ok := backend.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	repos := backend.Repositories()
	switch cfg.Audit.Sink {
	case "none":
		repos.Audit = nil
	case "kafka":
		pub := kafka.NewPublisher(cfg.Audit.Brokers, cfg.Audit.Topic)
		repos.Audit = pub
		a.closers = append(a.closers, pub)
	}

	opts, err := cfg.EngineOptions(logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	periods, err := cfg.PeriodConfig()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Engine = ledger.NewEngine(repos, opts)
	a.Periods = periods

	logger.Info("ledger initialised",
		"driver", cfg.Database.Driver,
		"audit_sink", cfg.Audit.Sink,
		"period_type", cfg.Periods.Type,
		"tolerance", opts.Tolerance.String(),
		"allow_credit_balance", opts.AllowCreditBalance)
	return a, nil
}

func openBackend(ctx context.Context, db config.DatabaseConfig) (Backend, error) {
	switch db.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		if db.DSN != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(db.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		s, err := sqlite.New(db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", db.Driver)
}

// Close drains pending audit writes, then releases the backend and audit
// sink, reporting every failure.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
