/*
Package postgres provides a PostgreSQL-backed implementation of the ledger
repositories using lib/pq.

The table layout mirrors store/sqlite. Differences:
  - dates are DATE, timestamps TIMESTAMPTZ, amounts BIGINT minor units
  - audit state is JSONB
  - concurrency is left to the database: no process-level mutex
  - constraint violations are classified by SQLSTATE, not message text

USAGE:
  store, err := postgres.Open(ctx, "postgres://ledger@localhost/ledger?sslmode=disable")
  if err != nil {
      return err
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/warp/fee-ledger/ledger"
)

// SQLSTATE codes the store classifies.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

// New wraps an open database handle and migrates the schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open connects to dsn, verifies the connection and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		tx_type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		tx_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		voided BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT,
		reference TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_student_date
		ON transactions(student_id, tx_date, created_at);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		amount BIGINT NOT NULL,
		invoice_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_student_date
		ON invoices(student_id, invoice_date);

	CREATE TABLE IF NOT EXISTS opening_balance_snapshots (
		student_id TEXT NOT NULL REFERENCES students(id),
		period_start DATE NOT NULL,
		opening_balance BIGINT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		UNIQUE(student_id, period_start)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		before_state JSONB,
		after_state JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_entity
		ON audit_log(entity_type, entity_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

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
// STUDENTS
// =============================================================================

func (s *Store) SaveStudent(ctx context.Context, st ledger.Student) error {
	if st.ID == "" {
		return &ledger.ValidationError{Field: "student_id", Reason: "required"}
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO students (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
	`
	_, err := s.db.ExecContext(ctx, query, string(st.ID), st.Name, nullString(st.Email), st.CreatedAt)
	return err
}

// ensureStudents creates, inside dbTx, each of ids that does not exist yet,
// named after its ID.
func ensureStudents(ctx context.Context, dbTx *sql.Tx, ids []ledger.SubjectID) error {
	const query = `INSERT INTO students (id, name) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING`
	for _, id := range ids {
		if _, err := dbTx.ExecContext(ctx, query, string(id)); err != nil {
			return fmt.Errorf("ensure student %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) ListStudents(ctx context.Context) ([]ledger.Student, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, created_at FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []ledger.Student
	for rows.Next() {
		var (
			st    ledger.Student
			email sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.Name, &email, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.Email = email.String
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Store) Exists(ctx context.Context, subjectID ledger.SubjectID) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM students WHERE id = $1 LIMIT 1`, string(subjectID)).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) RecordTransaction(ctx context.Context, tx ledger.Transaction) error {
	return s.RecordTransactions(ctx, []ledger.Transaction{tx})
}

// RecordTransactions inserts txs in one database transaction. Every
// student must already exist.
func (s *Store) RecordTransactions(ctx context.Context, txs []ledger.Transaction) error {
	return s.writeTransactions(ctx, nil, txs)
}

// ImportTransactions is RecordTransactions that also creates missing
// students, in the same database transaction.
func (s *Store) ImportTransactions(ctx context.Context, txs []ledger.Transaction) error {
	return s.writeTransactions(ctx, ledger.TransactionSubjects(txs), txs)
}

func (s *Store) writeTransactions(ctx context.Context, students []ledger.SubjectID, txs []ledger.Transaction) (err error) {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = ensureStudents(ctx, dbTx, students); err != nil {
		return err
	}

	const query = `
		INSERT INTO transactions
		(id, student_id, tx_type, amount, tx_date, created_at, voided, description, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, tx := range txs {
		createdAt := tx.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = dbTx.ExecContext(ctx, query,
			string(tx.ID), string(tx.SubjectID), string(tx.Type), int64(tx.Amount),
			tx.Date.Time(), createdAt, tx.Voided,
			nullString(tx.Description), nullString(tx.Reference),
		)
		if err != nil {
			return classifyWriteError(err, "transaction", string(tx.ID), tx.SubjectID)
		}
	}
	return dbTx.Commit()
}

func (s *Store) VoidTransaction(ctx context.Context, id ledger.TransactionID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET voided = TRUE WHERE id = $1`, string(id))
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
	const query = `
		SELECT id, student_id, tx_type, amount, tx_date, created_at, voided, description, reference
		FROM transactions
		WHERE student_id = $1 AND NOT voided
		ORDER BY tx_date, created_at, id
	`
	return s.queryTransactions(ctx, query, string(subjectID))
}

func (s *Store) ByPeriod(ctx context.Context, subjectID ledger.SubjectID, start, end ledger.Date) ([]ledger.Transaction, error) {
	const query = `
		SELECT id, student_id, tx_type, amount, tx_date, created_at, voided, description, reference
		FROM transactions
		WHERE student_id = $1 AND NOT voided AND tx_date BETWEEN $2 AND $3
		ORDER BY tx_date, created_at, id
	`
	return s.queryTransactions(ctx, query, string(subjectID), start.Time(), end.Time())
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx          ledger.Transaction
			txType      string
			amount      int64
			txDate      time.Time
			description sql.NullString
			reference   sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.SubjectID, &txType, &amount, &txDate,
			&tx.CreatedAt, &tx.Voided, &description, &reference); err != nil {
			return nil, err
		}
		if tx.Type, err = ledger.ParseTransactionType(txType); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		tx.Amount = ledger.Money(amount)
		tx.Date = ledger.DateOf(txDate)
		tx.Description = description.String
		tx.Reference = reference.String
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) RecordInvoice(ctx context.Context, inv ledger.Invoice) error {
	return s.RecordInvoices(ctx, []ledger.Invoice{inv})
}

// RecordInvoices inserts invs in one database transaction. Every student
// must already exist.
func (s *Store) RecordInvoices(ctx context.Context, invs []ledger.Invoice) error {
	return s.writeInvoices(ctx, nil, invs)
}

// ImportInvoices is RecordInvoices that also creates missing students, in
// the same database transaction.
func (s *Store) ImportInvoices(ctx context.Context, invs []ledger.Invoice) error {
	return s.writeInvoices(ctx, ledger.InvoiceSubjects(invs), invs)
}

func (s *Store) writeInvoices(ctx context.Context, students []ledger.SubjectID, invs []ledger.Invoice) (err error) {
	for _, inv := range invs {
		if err := inv.Validate(); err != nil {
			return err
		}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = ensureStudents(ctx, dbTx, students); err != nil {
		return err
	}

	const query = `INSERT INTO invoices (id, student_id, amount, invoice_date, status) VALUES ($1, $2, $3, $4, $5)`
	for _, inv := range invs {
		status := inv.Status
		if status == "" {
			status = ledger.InvoicePending
		}
		_, err = dbTx.ExecContext(ctx, query,
			inv.ID, string(inv.SubjectID), int64(inv.Amount), inv.InvoiceDate.Time(), string(status))
		if err != nil {
			return classifyWriteError(err, "invoice", inv.ID, inv.SubjectID)
		}
	}
	return dbTx.Commit()
}

func (s *Store) Invoices() ledger.InvoiceRepository { return invoiceRepo{s.db} }

type invoiceRepo struct{ db *sql.DB }

func (r invoiceRepo) ByPeriod(ctx context.Context, subjectID ledger.SubjectID, start, end ledger.Date) ([]ledger.Invoice, error) {
	const query = `
		SELECT id, student_id, amount, invoice_date, status
		FROM invoices
		WHERE student_id = $1 AND invoice_date BETWEEN $2 AND $3
		ORDER BY invoice_date, id
	`
	rows, err := r.db.QueryContext(ctx, query, string(subjectID), start.Time(), end.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []ledger.Invoice
	for rows.Next() {
		var (
			inv         ledger.Invoice
			amount      int64
			invoiceDate time.Time
			status      string
		)
		if err := rows.Scan(&inv.ID, &inv.SubjectID, &amount, &invoiceDate, &status); err != nil {
			return nil, err
		}
		inv.Amount = ledger.Money(amount)
		inv.InvoiceDate = ledger.DateOf(invoiceDate)
		inv.Status = ledger.InvoiceStatus(status)
		if err := inv.Validate(); err != nil {
			return nil, fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (s *Store) Get(ctx context.Context, subjectID ledger.SubjectID, periodStart ledger.Date) (*ledger.Snapshot, error) {
	return getSnapshot(ctx, s.db, subjectID, periodStart)
}

// InsertIfAbsent relies on the unique key: ON CONFLICT DO NOTHING, then the
// stored row is read back inside the same transaction.
func (s *Store) InsertIfAbsent(ctx context.Context, snap ledger.Snapshot) (stored ledger.Snapshot, inserted bool, err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Snapshot{}, false, err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	res, err := dbTx.ExecContext(ctx, `
		INSERT INTO opening_balance_snapshots (student_id, period_start, opening_balance, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, period_start) DO NOTHING
	`, string(snap.SubjectID), snap.PeriodStart.Time(), int64(snap.OpeningBalance), snap.RecordedAt)
	if err != nil {
		return ledger.Snapshot{}, false, classifyWriteError(err, "snapshot", snap.PeriodStart.String(), snap.SubjectID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledger.Snapshot{}, false, err
	}

	row, err := getSnapshot(ctx, dbTx, snap.SubjectID, snap.PeriodStart)
	if err != nil {
		return ledger.Snapshot{}, false, err
	}
	if row == nil {
		err = ledger.ErrSnapshotConflict
		return ledger.Snapshot{}, false, err
	}
	if err = dbTx.Commit(); err != nil {
		return ledger.Snapshot{}, false, err
	}
	return *row, n == 1, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSnapshot(ctx context.Context, db queryRower, subjectID ledger.SubjectID, periodStart ledger.Date) (*ledger.Snapshot, error) {
	var (
		snap    ledger.Snapshot
		start   time.Time
		balance int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT student_id, period_start, opening_balance, recorded_at
		FROM opening_balance_snapshots
		WHERE student_id = $1 AND period_start = $2
	`, string(subjectID), periodStart.Time()).Scan(&snap.SubjectID, &start, &balance, &snap.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.PeriodStart = ledger.DateOf(start)
	snap.OpeningBalance = ledger.Money(balance)
	return &snap, nil
}

// =============================================================================
// AUDIT LOG
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, entity_type, entity_id, before_state, after_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.Timestamp, entry.ActorID, string(entry.Action),
		entry.EntityType, entry.EntityID, before, after)
	return err
}

// ListAudit returns the most recent audit entries, newest first.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]ledger.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, actor_id, action, entity_type, entity_id, before_state, after_state
		FROM audit_log
		ORDER BY ts DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e             ledger.AuditEntry
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &e.Action,
			&e.EntityType, &e.EntityID, &before, &after); err != nil {
			return nil, err
		}
		if len(before) > 0 {
			if err := json.Unmarshal(before, &e.Before); err != nil {
				return nil, fmt.Errorf("audit entry %s before: %w", e.ID, err)
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &e.After); err != nil {
				return nil, fmt.Errorf("audit entry %s after: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Helper functions

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

func classifyWriteError(err error, kind, id string, subjectID ledger.SubjectID) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s %s", ledger.ErrDuplicateTransaction, kind, id)
		case codeForeignKeyViolation:
			return &ledger.NotFoundError{SubjectID: subjectID}
		}
	}
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}

var (
	_ ledger.TransactionRepository = (*Store)(nil)
	_ ledger.SnapshotRepository    = (*Store)(nil)
	_ ledger.SubjectRepository     = (*Store)(nil)
	_ ledger.AuditSink             = (*Store)(nil)
	_ ledger.InvoiceRepository     = invoiceRepo{}
)
