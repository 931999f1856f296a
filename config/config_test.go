package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-ledger/ledger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "store", cfg.Audit.Sink)
	assert.NoError(t, cfg.Validate())

	opts, err := cfg.EngineOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(0), opts.Tolerance, "zero selects the engine default")
}

func TestLoad_YAMLThenEnvOverrides(t *testing.T) {
	path := writeFile(t, "ledger.yaml", `
server:
  addr: ":9000"
database:
  driver: postgres
  dsn: postgres://ledger@db/ledger
ledger:
  tolerance: "0.05"
  allow_credit_balance: true
scheduler:
  enabled: true
  interval: 30m
  workers: 2
periods:
  type: academic_year
  start_month: 9
log:
  format: json
`)
	t.Setenv("LEDGER_HTTP_ADDR", ":9100")
	t.Setenv("LEDGER_SCHEDULER_WORKERS", "8")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9100", cfg.Server.Addr, "env wins over YAML")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 8, cfg.Scheduler.Workers)

	opts, err := cfg.EngineOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(5), opts.Tolerance)
	assert.True(t, opts.AllowCreditBalance)

	pc, err := cfg.PeriodConfig()
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodAcademicYear, pc.Type)
	assert.Equal(t, time.September, pc.StartMonth)
}

func TestLoad_DotEnvFile(t *testing.T) {
	envPath := writeFile(t, ".env", "LEDGER_AUDIT_SINK=kafka\nLEDGER_KAFKA_BROKERS=k1:9092, k2:9092\n")
	t.Cleanup(func() {
		os.Unsetenv("LEDGER_AUDIT_SINK")
		os.Unsetenv("LEDGER_KAFKA_BROKERS")
	})

	cfg, err := Load("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "kafka", cfg.Audit.Sink)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.Brokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [\n"), "")
	assert.Error(t, err)

	t.Setenv("LEDGER_ALLOW_CREDIT_BALANCE", "perhaps")
	_, err = Load("", "")
	assert.ErrorContains(t, err, "LEDGER_ALLOW_CREDIT_BALANCE")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"
	cfg.Audit.Sink = "kafka"
	cfg.Ledger.Tolerance = "0.001"
	cfg.Periods.Type = "term"
	cfg.Log.Format = "xml"
	cfg.Log.Level = "verbose"
	cfg.Audit.Timeout = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "database.driver")
	assert.ErrorContains(t, err, "audit.brokers")
	assert.ErrorContains(t, err, "ledger.tolerance")
	assert.ErrorContains(t, err, "periods.terms")
	assert.ErrorContains(t, err, "log.format")
	assert.ErrorContains(t, err, "log.level")
	assert.ErrorContains(t, err, "audit.timeout")
}

func TestLoad_LogLevelAndAuditTimeoutFromEnv(t *testing.T) {
	t.Setenv("LEDGER_LOG_LEVEL", "verbose")
	t.Setenv("LEDGER_AUDIT_TIMEOUT", "250ms")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), `unknown log level "verbose"`)

	opts, err := cfg.EngineOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, opts.AuditTimeout)

	t.Setenv("LEDGER_AUDIT_TIMEOUT", "soon")
	_, err = Load("", "")
	assert.ErrorContains(t, err, "LEDGER_AUDIT_TIMEOUT")
}

func TestPeriodConfig_Terms(t *testing.T) {
	cfg := Default()
	cfg.Periods.Type = "term"
	cfg.Periods.Terms = []string{"09-01", " 01-06", "04-20"}

	pc, err := cfg.PeriodConfig()
	require.NoError(t, err)
	require.Len(t, pc.Terms, 3)
	assert.Equal(t, ledger.TermStart{Month: time.January, Day: 6}, pc.Terms[1])

	cfg.Periods.Terms = []string{"13-40"}
	_, err = cfg.PeriodConfig()
	assert.Error(t, err)
}
