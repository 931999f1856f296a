/*
store.go - Repository interfaces consumed by the engine

PURPOSE:
  The engine owns no storage. Every component receives these narrow
  interfaces through its constructor, so tests substitute in-memory fakes
  and production wires SQLite or PostgreSQL.

READ-MOSTLY:
  Only SnapshotRepository.InsertIfAbsent writes, and it must be atomic:
  two concurrent first-time verifications of the same (subject, period
  start) may not both insert. Implementations insert under a uniqueness
  constraint and, on conflict, return the row that is already there.

ROW DECODING:
  Implementations decode rows into typed records and return a
  ValidationError for an unknown type or a missing/negative amount
  instead of defaulting to zero.

IMPLEMENTATIONS:
  - store/memory:   in-memory, for tests and demos
  - store/sqlite:   mattn/go-sqlite3
  - store/postgres: lib/pq
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// REPOSITORIES
// =============================================================================

type TransactionRepository interface {
	// History returns all non-voided transactions of a subject, in any order.
	History(ctx context.Context, subjectID SubjectID) ([]Transaction, error)

	// ByPeriod returns non-voided transactions with start <= date <= end.
	ByPeriod(ctx context.Context, subjectID SubjectID, start, end Date) ([]Transaction, error)
}

type InvoiceRepository interface {
	// ByPeriod returns invoices dated within [start, end].
	ByPeriod(ctx context.Context, subjectID SubjectID, start, end Date) ([]Invoice, error)
}

type SnapshotRepository interface {
	// Get returns nil, nil when no snapshot exists.
	Get(ctx context.Context, subjectID SubjectID, periodStart Date) (*Snapshot, error)

	// InsertIfAbsent atomically inserts snap unless a row for its key exists.
	// It returns the row stored afterwards and whether this call inserted it.
	InsertIfAbsent(ctx context.Context, snap Snapshot) (Snapshot, bool, error)
}

type SubjectRepository interface {
	Exists(ctx context.Context, subjectID SubjectID) (bool, error)
}

// Student is the account holder a SubjectID refers to.
type Student struct {
	ID        SubjectID
	Name      string
	Email     string
	CreatedAt time.Time
}

// =============================================================================
// SNAPSHOT - Immutable opening-balance baseline
// =============================================================================

// Snapshot is the recorded opening balance of a subject at a period start.
// Unique per (SubjectID, PeriodStart). Never updated once written.
type Snapshot struct {
	SubjectID      SubjectID
	PeriodStart    Date
	OpeningBalance Money
	RecordedAt     time.Time
}

// =============================================================================
// AUDIT LOG - Who generated what, when
// =============================================================================

type AuditAction string

const (
	AuditLedgerGenerated     AuditAction = "LEDGER_GENERATED"
	AuditSnapshotEstablished AuditAction = "OPENING_BALANCE_ESTABLISHED"
)

type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string
	Action     AuditAction
	EntityType string
	EntityID   string
	Before     map[string]any
	After      map[string]any
}

// AuditSink receives audit entries. The engine never fails a call because
// an audit write failed.
type AuditSink interface {
	LogAudit(ctx context.Context, entry AuditEntry) error
}

// =============================================================================
// ACTOR - Who is calling, carried on the context
// =============================================================================

type actorKey struct{}

// SystemActor is used when no actor is attached to the context.
const SystemActor = "system"

func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func ActorFrom(ctx context.Context) string {
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		return id
	}
	return SystemActor
}
