package ledger

import (
	"log/slog"
	"time"
)

// DefaultTolerance is the largest difference, exclusive, still treated as
// balanced: with 1 minor unit only an exact match balances.
const DefaultTolerance Money = 1

// DefaultAuditTimeout bounds a background audit write from ledger generation.
const DefaultAuditTimeout = 5 * time.Second

// Options tunes the engine's policy knobs. The zero value reproduces the
// historical behavior: clamp at zero, empty result for inverted ranges,
// tolerance of one minor unit.
type Options struct {
	// Tolerance for reconciliation and snapshot verification. <= 0 means default.
	Tolerance Money

	// AllowCreditBalance disables the floor at zero, exposing overpayments
	// as negative balances.
	AllowCreditBalance bool

	// RejectInvertedRange makes end < start an ErrInvalidPeriod instead of
	// an empty result.
	RejectInvertedRange bool

	// AuditTimeout bounds each background audit write. <= 0 means default.
	AuditTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

func (o Options) tolerance() Money {
	if o.Tolerance <= 0 {
		return DefaultTolerance
	}
	return o.Tolerance
}

func (o Options) auditTimeout() time.Duration {
	if o.AuditTimeout <= 0 {
		return DefaultAuditTimeout
	}
	return o.AuditTimeout
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now()
}

// floor applies the zero floor unless credit balances are allowed.
func (o Options) floor(m Money) Money {
	if !o.AllowCreditBalance && m < 0 {
		return 0
	}
	return m
}

// within reports |a - b| < tolerance.
func (o Options) within(a, b Money) bool {
	return (a - b).Abs() < o.tolerance()
}
