/*
Package sqlite provides a SQLite-backed implementation of the ledger repositories.

PURPOSE:
  Implements every repository the engine consumes (transactions, invoices,
  snapshots, students) plus the audit sink, and the write side used by the
  HTTP API and the CSV importer. PostgreSQL lives in store/postgres with
  the same table layout.

INTERFACES IMPLEMENTED:
  ledger.TransactionRepository: History, ByPeriod
  ledger.InvoiceRepository:     via Invoices()
  ledger.SnapshotRepository:    Get, InsertIfAbsent
  ledger.SubjectRepository:     Exists
  ledger.AuditSink:             LogAudit

APPEND-ONLY ENFORCEMENT:
  - Transactions are never deleted
  - The only UPDATE is VoidTransaction flipping the voided flag
  - Snapshots are insert-only: UNIQUE(student_id, period_start) and
    ON CONFLICT DO NOTHING

KEY TABLES:
  students:                  Account holders
  transactions:              Raw financial records, amount in minor units
  invoices:                  Independently billed amounts
  opening_balance_snapshots: Immutable baselines
  audit_log:                 Who generated or established what

ROW DECODING:
  Stored rows are decoded into typed records and validated. An unknown
  type or a negative amount fails the read with a ValidationError rather
  than contributing zero.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store.Repositories(), ledger.Options{})

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/fee-ledger/ledger"
)

// timestampLayout sorts lexicographically in the same order as time.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at TEXT NOT NULL
	);

	-- Transactions (append-only apart from the voided flag)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		tx_type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		tx_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		voided INTEGER NOT NULL DEFAULT 0,
		description TEXT,
		reference TEXT
	);

	-- Replay order (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_student_date
		ON transactions(student_id, tx_date, created_at);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		amount INTEGER NOT NULL,
		invoice_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_student_date
		ON invoices(student_id, invoice_date);

	-- CRITICAL: one baseline per student and period start
	CREATE TABLE IF NOT EXISTS opening_balance_snapshots (
		student_id TEXT NOT NULL REFERENCES students(id),
		period_start TEXT NOT NULL,
		opening_balance INTEGER NOT NULL,
		recorded_at TEXT NOT NULL,
		UNIQUE(student_id, period_start)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		before_json TEXT,
		after_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_entity
		ON audit_log(entity_type, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Repositories wires this store into every slot of ledger.Repositories.
func (s *Store) Repositories() ledger.Repositories {
	return ledger.Repositories{
		Transactions: s,
		Invoices:     s.Invoices(),
		Snapshots:    s,
		Subjects:     s,
		Audit:        s,
	}
}

// =============================================================================
// STUDENTS (ledger.SubjectRepository)
// =============================================================================

// SaveStudent inserts or renames a student.
func (s *Store) SaveStudent(ctx context.Context, st ledger.Student) error {
	if st.ID == "" {
		return &ledger.ValidationError{Field: "student_id", Reason: "required"}
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO students (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`
	_, err := s.db.ExecContext(ctx, query,
		st.ID, st.Name, nullString(st.Email), st.CreatedAt.UTC().Format(timestampLayout))
	return err
}

// ensureStudents creates, inside sqlTx, each of ids that does not exist
// yet, named after its ID.
func ensureStudents(ctx context.Context, sqlTx *sql.Tx, ids []ledger.SubjectID) error {
	now := time.Now().UTC().Format(timestampLayout)
	for _, id := range ids {
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO students (id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			id, string(id), now)
		if err != nil {
			return fmt.Errorf("ensure student %s: %w", id, err)
		}
	}
	return nil
}

// ListStudents returns all students ordered by ID.
func (s *Store) ListStudents(ctx context.Context) ([]ledger.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, created_at FROM students ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []ledger.Student
	for rows.Next() {
		var (
			st        ledger.Student
			email     sql.NullString
			createdAt string
		)
		if err = rows.Scan(&st.ID, &st.Name, &email, &createdAt); err != nil {
			return nil, err
		}
		st.Email = email.String
		if st.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
			return nil, fmt.Errorf("student %s: %w", st.ID, err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Store) Exists(ctx context.Context, subjectID ledger.SubjectID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM students WHERE id = ?", subjectID,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// TRANSACTIONS (ledger.TransactionRepository)
// =============================================================================

// RecordTransaction appends one transaction.
func (s *Store) RecordTransaction(ctx context.Context, tx ledger.Transaction) error {
	return s.RecordTransactions(ctx, []ledger.Transaction{tx})
}

// RecordTransactions appends txs atomically: all or none. Every student must
// already exist.
func (s *Store) RecordTransactions(ctx context.Context, txs []ledger.Transaction) error {
	return s.writeTransactions(ctx, nil, txs)
}

// ImportTransactions is RecordTransactions that also creates missing
// students, in the same database transaction.
func (s *Store) ImportTransactions(ctx context.Context, txs []ledger.Transaction) error {
	return s.writeTransactions(ctx, ledger.TransactionSubjects(txs), txs)
}

func (s *Store) writeTransactions(ctx context.Context, students []ledger.SubjectID, txs []ledger.Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := ensureStudents(ctx, sqlTx, students); err != nil {
		return err
	}

	query := `
		INSERT INTO transactions
		(id, student_id, tx_type, amount, tx_date, created_at, voided, description, reference)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, tx := range txs {
		createdAt := tx.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := sqlTx.ExecContext(ctx, query,
			tx.ID,
			tx.SubjectID,
			tx.Type,
			int64(tx.Amount),
			tx.Date.String(),
			createdAt.UTC().Format(timestampLayout),
			tx.Voided,
			nullString(tx.Description),
			nullString(tx.Reference),
		)
		if err != nil {
			return classifyWriteError(err, "transaction", string(tx.ID), tx.SubjectID)
		}
	}

	return sqlTx.Commit()
}

// VoidTransaction flags a transaction as voided. The row is kept.
func (s *Store) VoidTransaction(ctx context.Context, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE transactions SET voided = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
	}
	return nil
}

func (s *Store) History(ctx context.Context, subjectID ledger.SubjectID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, student_id, tx_type, amount, tx_date, created_at, voided, description, reference
		FROM transactions
		WHERE student_id = ? AND voided = 0
		ORDER BY tx_date ASC, created_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query, subjectID)
}

func (s *Store) ByPeriod(ctx context.Context, subjectID ledger.SubjectID, start, end ledger.Date) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, student_id, tx_type, amount, tx_date, created_at, voided, description, reference
		FROM transactions
		WHERE student_id = ? AND voided = 0
		  AND tx_date >= ? AND tx_date <= ?
		ORDER BY tx_date ASC, created_at ASC, id ASC
	`
	return s.queryTransactions(ctx, query, subjectID, start.String(), end.String())
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		txType      string
		amount      int64
		txDate      string
		createdAt   string
		description sql.NullString
		reference   sql.NullString
	)

	err := rows.Scan(
		&tx.ID, &tx.SubjectID, &txType, &amount, &txDate,
		&createdAt, &tx.Voided, &description, &reference,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if tx.Type, err = ledger.ParseTransactionType(txType); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	if tx.Date, err = ledger.ParseDate(txDate); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	tx.Amount = ledger.Money(amount)
	if tx.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	tx.Description = description.String
	tx.Reference = reference.String

	if err := tx.Validate(); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	return tx, nil
}

// =============================================================================
// INVOICES (ledger.InvoiceRepository)
// =============================================================================

func (s *Store) RecordInvoice(ctx context.Context, inv ledger.Invoice) error {
	return s.RecordInvoices(ctx, []ledger.Invoice{inv})
}

// RecordInvoices inserts invs atomically: all or none. Every student must
// already exist.
func (s *Store) RecordInvoices(ctx context.Context, invs []ledger.Invoice) error {
	return s.writeInvoices(ctx, nil, invs)
}

// ImportInvoices is RecordInvoices that also creates missing students, in
// the same database transaction.
func (s *Store) ImportInvoices(ctx context.Context, invs []ledger.Invoice) error {
	return s.writeInvoices(ctx, ledger.InvoiceSubjects(invs), invs)
}

func (s *Store) writeInvoices(ctx context.Context, students []ledger.SubjectID, invs []ledger.Invoice) error {
	for _, inv := range invs {
		if err := inv.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := ensureStudents(ctx, sqlTx, students); err != nil {
		return err
	}

	for _, inv := range invs {
		status := inv.Status
		if status == "" {
			status = ledger.InvoicePending
		}
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO invoices (id, student_id, amount, invoice_date, status) VALUES (?, ?, ?, ?, ?)`,
			inv.ID, inv.SubjectID, int64(inv.Amount), inv.InvoiceDate.String(), status,
		)
		if err != nil {
			return classifyWriteError(err, "invoice", inv.ID, inv.SubjectID)
		}
	}

	return sqlTx.Commit()
}

// Invoices exposes the invoice repository. Store.ByPeriod already serves
// transactions.
func (s *Store) Invoices() ledger.InvoiceRepository { return invoiceRepo{s} }

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) ByPeriod(ctx context.Context, subjectID ledger.SubjectID, start, end ledger.Date) ([]ledger.Invoice, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, amount, invoice_date, status
		FROM invoices
		WHERE student_id = ? AND invoice_date >= ? AND invoice_date <= ?
		ORDER BY invoice_date ASC, id ASC
	`, subjectID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []ledger.Invoice
	for rows.Next() {
		var (
			inv         ledger.Invoice
			amount      int64
			invoiceDate string
			status      string
		)
		if err := rows.Scan(&inv.ID, &inv.SubjectID, &amount, &invoiceDate, &status); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.Amount = ledger.Money(amount)
		inv.Status = ledger.InvoiceStatus(status)
		if inv.InvoiceDate, err = ledger.ParseDate(invoiceDate); err != nil {
			return nil, fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		if err := inv.Validate(); err != nil {
			return nil, fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// =============================================================================
// SNAPSHOTS (ledger.SnapshotRepository)
// =============================================================================

func (s *Store) Get(ctx context.Context, subjectID ledger.SubjectID, periodStart ledger.Date) (*ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getSnapshot(ctx, s.db, subjectID, periodStart)
}

// InsertIfAbsent inserts snap unless a baseline exists for its key, then
// reads back whatever row is stored, all in one database transaction.
func (s *Store) InsertIfAbsent(ctx context.Context, snap ledger.Snapshot) (ledger.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx, `
		INSERT INTO opening_balance_snapshots (student_id, period_start, opening_balance, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(student_id, period_start) DO NOTHING
	`, snap.SubjectID, snap.PeriodStart.String(), int64(snap.OpeningBalance),
		snap.RecordedAt.UTC().Format(timestampLayout))
	if err != nil {
		return ledger.Snapshot{}, false, classifyWriteError(err, "snapshot", snap.PeriodStart.String(), snap.SubjectID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Snapshot{}, false, err
	}

	stored, err := getSnapshot(ctx, sqlTx, snap.SubjectID, snap.PeriodStart)
	if err != nil {
		return ledger.Snapshot{}, false, err
	}
	if stored == nil {
		return ledger.Snapshot{}, false, ledger.ErrSnapshotConflict
	}
	if err := sqlTx.Commit(); err != nil {
		return ledger.Snapshot{}, false, err
	}
	return *stored, n == 1, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSnapshot(ctx context.Context, db queryRower, subjectID ledger.SubjectID, periodStart ledger.Date) (*ledger.Snapshot, error) {
	var (
		snap       ledger.Snapshot
		start      string
		balance    int64
		recordedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT student_id, period_start, opening_balance, recorded_at
		FROM opening_balance_snapshots
		WHERE student_id = ? AND period_start = ?
	`, subjectID, periodStart.String()).Scan(&snap.SubjectID, &start, &balance, &recordedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if snap.PeriodStart, err = ledger.ParseDate(start); err != nil {
		return nil, err
	}
	snap.OpeningBalance = ledger.Money(balance)
	if snap.RecordedAt, err = parseTimestamp("recorded_at", recordedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}

// =============================================================================
// AUDIT LOG (ledger.AuditSink)
// =============================================================================

func (s *Store) LogAudit(ctx context.Context, entry ledger.AuditEntry) error {
	before, err := marshalState(entry.Before)
	if err != nil {
		return err
	}
	after, err := marshalState(entry.After)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, entity_type, entity_id, before_json, after_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Timestamp.UTC().Format(timestampLayout), entry.ActorID,
		entry.Action, entry.EntityType, entry.EntityID, before, after)
	return err
}

// ListAudit returns the most recent audit entries, newest first.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, actor_id, action, entity_type, entity_id, before_json, after_json
		FROM audit_log
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e             ledger.AuditEntry
			ts            string
			before, after sql.NullString
		)
		if err = rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &before, &after); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTimestamp("ts", ts); err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
		}
		if e.Before, err = unmarshalState(before); err != nil {
			return nil, fmt.Errorf("audit entry %s before: %w", e.ID, err)
		}
		if e.After, err = unmarshalState(after); err != nil {
			return nil, fmt.Errorf("audit entry %s after: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Helper functions

// parseTimestamp decodes a stored timestamp. created_at breaks same-day ties
// in replay order, so an unreadable value fails the row.
func parseTimestamp(field, value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: field, Value: value, Reason: "not a timestamp"}
	}
	return t, nil
}

func unmarshalState(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid {
		return nil, nil
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(raw.String), &state); err != nil {
		return nil, err
	}
	return state, nil
}

func marshalState(state map[string]any) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(state)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode audit state: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// classifyWriteError maps constraint failures onto ledger errors.
func classifyWriteError(err error, kind, id string, subjectID ledger.SubjectID) error {
	switch {
	case isUniqueConstraintError(err):
		return fmt.Errorf("%w: %s %s", ledger.ErrDuplicateTransaction, kind, id)
	case isForeignKeyError(err):
		return &ledger.NotFoundError{SubjectID: subjectID}
	default:
		return fmt.Errorf("failed to insert %s: %w", kind, err)
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

var (
	_ ledger.TransactionRepository = (*Store)(nil)
	_ ledger.SnapshotRepository    = (*Store)(nil)
	_ ledger.SubjectRepository     = (*Store)(nil)
	_ ledger.AuditSink             = (*Store)(nil)
	_ ledger.InvoiceRepository     = invoiceRepo{}
)
