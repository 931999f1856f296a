// Package config provides configuration management for the ledger server and CLI.
// Settings are layered: built-in defaults, an optional YAML file, a .env file,
// LEDGER_* environment variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/fee-ledger/internal/logging"
	"github.com/warp/fee-ledger/ledger"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Audit     AuditConfig     `yaml:"audit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Periods   PeriodsConfig   `yaml:"periods"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the repository backend.
// Driver is one of "sqlite", "postgres" or "memory".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LedgerConfig carries the engine policy knobs.
type LedgerConfig struct {
	// Tolerance in major units ("0.01"). Empty means one minor unit.
	Tolerance           string `yaml:"tolerance"`
	AllowCreditBalance  bool   `yaml:"allow_credit_balance"`
	RejectInvertedRange bool   `yaml:"reject_inverted_range"`
}

// AuditConfig selects where audit entries go: "store", "kafka" or "none".
type AuditConfig struct {
	Sink    string        `yaml:"sink"`
	Brokers []string      `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Workers  int           `yaml:"workers"`
}

// PeriodsConfig describes the accounting calendar.
// Terms are "MM-DD" start days, used when Type is "term".
type PeriodsConfig struct {
	Type       string   `yaml:"type"`
	StartMonth int      `yaml:"start_month"`
	Terms      []string `yaml:"terms"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./data/ledger.db"},
		Audit:    AuditConfig{Sink: "store", Topic: "ledger.audit", Timeout: ledger.DefaultAuditTimeout},
		Scheduler: SchedulerConfig{
			Interval: time.Hour,
			Workers:  4,
		},
		Periods: PeriodsConfig{Type: string(ledger.PeriodCalendarYear), StartMonth: 1},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), the .env file at envPath (or ./.env when empty and present)
// and LEDGER_* environment variables, in that order.
func Load(path, envPath string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Addr = getEnvOrDefault("LEDGER_HTTP_ADDR", c.Server.Addr)
	c.Database.Driver = getEnvOrDefault("LEDGER_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnvOrDefault("LEDGER_DB_DSN", c.Database.DSN)
	c.Ledger.Tolerance = getEnvOrDefault("LEDGER_TOLERANCE", c.Ledger.Tolerance)
	c.Audit.Sink = getEnvOrDefault("LEDGER_AUDIT_SINK", c.Audit.Sink)
	c.Audit.Topic = getEnvOrDefault("LEDGER_KAFKA_TOPIC", c.Audit.Topic)
	c.Periods.Type = getEnvOrDefault("LEDGER_PERIOD_TYPE", c.Periods.Type)
	c.Log.Level = getEnvOrDefault("LEDGER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LEDGER_LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("LEDGER_KAFKA_BROKERS"); v != "" {
		c.Audit.Brokers = splitList(v)
	}
	if v := os.Getenv("LEDGER_PERIOD_TERMS"); v != "" {
		c.Periods.Terms = splitList(v)
	}

	var err error
	if c.Ledger.AllowCreditBalance, err = parseBoolEnv("LEDGER_ALLOW_CREDIT_BALANCE", c.Ledger.AllowCreditBalance); err != nil {
		return err
	}
	if c.Ledger.RejectInvertedRange, err = parseBoolEnv("LEDGER_REJECT_INVERTED_RANGE", c.Ledger.RejectInvertedRange); err != nil {
		return err
	}
	if c.Scheduler.Enabled, err = parseBoolEnv("LEDGER_SCHEDULER_ENABLED", c.Scheduler.Enabled); err != nil {
		return err
	}
	if c.Scheduler.Workers, err = parseIntEnv("LEDGER_SCHEDULER_WORKERS", c.Scheduler.Workers); err != nil {
		return err
	}
	if c.Periods.StartMonth, err = parseIntEnv("LEDGER_PERIOD_START_MONTH", c.Periods.StartMonth); err != nil {
		return err
	}
	if v := os.Getenv("LEDGER_AUDIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_AUDIT_TIMEOUT: %w", err)
		}
		c.Audit.Timeout = d
	}
	if v := os.Getenv("LEDGER_SCHEDULER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_SCHEDULER_INTERVAL: %w", err)
		}
		c.Scheduler.Interval = d
	}
	return nil
}

// Validate reports every missing or invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite, postgres or memory, got %q", c.Database.Driver))
	}

	switch c.Audit.Sink {
	case "store", "none":
	case "kafka":
		if len(c.Audit.Brokers) == 0 {
			errs = append(errs, errors.New("audit.brokers is required for the kafka sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.sink must be store, kafka or none, got %q", c.Audit.Sink))
	}
	if c.Audit.Timeout < 0 {
		errs = append(errs, errors.New("audit.timeout must not be negative"))
	}

	if _, err := c.Tolerance(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.PeriodConfig(); err != nil {
		errs = append(errs, err)
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.Interval <= 0 {
			errs = append(errs, errors.New("scheduler.interval must be positive"))
		}
		if c.Scheduler.Workers <= 0 {
			errs = append(errs, errors.New("scheduler.workers must be positive"))
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Tolerance returns the configured tolerance in minor units, zero when unset.
func (c *Config) Tolerance() (ledger.Money, error) {
	if c.Ledger.Tolerance == "" {
		return 0, nil
	}
	m, err := ledger.ParseMoney(c.Ledger.Tolerance)
	if err != nil {
		return 0, fmt.Errorf("ledger.tolerance: %w", err)
	}
	if m.IsNegative() {
		return 0, fmt.Errorf("ledger.tolerance must not be negative, got %s", c.Ledger.Tolerance)
	}
	return m, nil
}

// EngineOptions builds the ledger.Options this configuration describes.
func (c *Config) EngineOptions(logger *slog.Logger) (ledger.Options, error) {
	tol, err := c.Tolerance()
	if err != nil {
		return ledger.Options{}, err
	}
	return ledger.Options{
		Tolerance:           tol,
		AllowCreditBalance:  c.Ledger.AllowCreditBalance,
		RejectInvertedRange: c.Ledger.RejectInvertedRange,
		AuditTimeout:        c.Audit.Timeout,
		Logger:              logger,
	}, nil
}

// PeriodConfig converts the calendar settings into a ledger.PeriodConfig.
func (c *Config) PeriodConfig() (ledger.PeriodConfig, error) {
	pc := ledger.PeriodConfig{Type: ledger.PeriodType(c.Periods.Type)}
	switch pc.Type {
	case ledger.PeriodCalendarYear:
	case ledger.PeriodAcademicYear:
		if c.Periods.StartMonth < 1 || c.Periods.StartMonth > 12 {
			return pc, fmt.Errorf("periods.start_month must be 1-12, got %d", c.Periods.StartMonth)
		}
		pc.StartMonth = time.Month(c.Periods.StartMonth)
	case ledger.PeriodTerm:
		if len(c.Periods.Terms) == 0 {
			return pc, errors.New("periods.terms is required for term periods")
		}
		for _, s := range c.Periods.Terms {
			t, err := time.Parse("01-02", strings.TrimSpace(s))
			if err != nil {
				return pc, fmt.Errorf("periods.terms: invalid term start %q, want MM-DD", s)
			}
			pc.Terms = append(pc.Terms, ledger.TermStart{Month: t.Month(), Day: t.Day()})
		}
	default:
		return pc, fmt.Errorf("periods.type must be calendar_year, academic_year or term, got %q", c.Periods.Type)
	}
	return pc, nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
