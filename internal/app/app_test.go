package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-ledger/config"
	"github.com/warp/fee-ledger/ledger"
	"github.com/warp/fee-ledger/ledger/store"
	"github.com/warp/fee-ledger/store/sqlite"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpen_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "memory"}
	cfg.Ledger.Tolerance = "0.05"

	a, err := Open(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer a.Close()

	mem, ok := a.Backend.(*store.Memory)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, a.Backend.SaveStudent(ctx, ledger.Student{ID: "stu-1", Name: "Ada Obi"}))
	require.NoError(t, a.Backend.RecordInvoice(ctx, ledger.Invoice{
		ID: "inv-1", SubjectID: "stu-1", Amount: 4, InvoiceDate: ledger.NewDate(2025, time.March, 1),
	}))

	// 0.04 apart is inside a 0.05 tolerance
	res, err := a.Engine.Reconcile(ctx, "stu-1", ledger.NewDate(2025, time.January, 1), ledger.NewDate(2025, time.December, 31))
	require.NoError(t, err)
	assert.True(t, res.Reconciled)
	a.Engine.Wait()
	assert.NotEmpty(t, mem.AuditEntries(), "store sink records ledger generation")
}

func TestOpen_AuditNone(t *testing.T) {
	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "memory"}
	cfg.Audit.Sink = "none"

	a, err := Open(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer a.Close()

	mem := a.Backend.(*store.Memory)
	mem.AddSubject("stu-1")
	_, err = a.Engine.GenerateLedger(context.Background(), "stu-1", ledger.NewDate(2025, time.January, 1), ledger.NewDate(2025, time.December, 31))
	require.NoError(t, err)
	a.Engine.Wait()
	assert.Empty(t, mem.AuditEntries())
}

func TestOpen_SQLiteCreatesDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "nested", "ledger.db")
	cfg.Periods.Type = "academic_year"
	cfg.Periods.StartMonth = 9

	a, err := Open(context.Background(), cfg, quiet())
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Backend.(*sqlite.Store)
	assert.True(t, ok)
	assert.Equal(t, time.September, a.Periods.StartMonth)
}

func TestOpen_KafkaSinkClosesCleanly(t *testing.T) {
	cfg := config.Default()
	cfg.Database = config.DatabaseConfig{Driver: "memory"}
	cfg.Audit.Sink = "kafka"
	cfg.Audit.Brokers = []string{"localhost:9092"}

	a, err := Open(context.Background(), cfg, quiet())
	require.NoError(t, err)
	assert.Len(t, a.closers, 1)
	assert.NoError(t, a.Close())
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"

	_, err := Open(context.Background(), cfg, quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
