// Package store provides the in-memory repository implementation used by
// tests and by the "memory" database driver.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/fee-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every repository interface of the ledger package plus
// AuditSink. Safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	students     map[ledger.SubjectID]ledger.Student
	transactions map[ledger.SubjectID][]ledger.Transaction
	invoices     map[ledger.SubjectID][]ledger.Invoice
	snapshots    map[snapshotKey]ledger.Snapshot
	audit        []ledger.AuditEntry

	// Error injection for tests, keyed by operation name.
	failures map[string]error
}

type snapshotKey struct {
	SubjectID   ledger.SubjectID
	PeriodStart string
}

// Operation names accepted by FailWith.
const (
	OpHistory        = "history"
	OpTxByPeriod     = "transactions.by_period"
	OpInvoices       = "invoices.by_period"
	OpSnapshotGet    = "snapshots.get"
	OpSnapshotInsert = "snapshots.insert"
	OpSubjectExists  = "subjects.exists"
	OpAudit          = "audit"
)

func NewMemory() *Memory {
	return &Memory{
		students:     make(map[ledger.SubjectID]ledger.Student),
		transactions: make(map[ledger.SubjectID][]ledger.Transaction),
		invoices:     make(map[ledger.SubjectID][]ledger.Invoice),
		snapshots:    make(map[snapshotKey]ledger.Snapshot),
		failures:     make(map[string]error),
	}
}

// FailWith makes the named operation return err until cleared with nil.
func (m *Memory) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) failure(op string) error {
	return m.failures[op]
}

// =============================================================================
// WRITES (collaborator side)
// =============================================================================

// AddSubject registers a student named after its ID.
func (m *Memory) AddSubject(id ledger.SubjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureStudent(id)
}

func (m *Memory) ensureStudent(id ledger.SubjectID) {
	if _, ok := m.students[id]; !ok {
		m.students[id] = ledger.Student{ID: id, Name: string(id), CreatedAt: time.Now().UTC()}
	}
}

func (m *Memory) SaveStudent(_ context.Context, st ledger.Student) error {
	if st.ID == "" {
		return &ledger.ValidationError{Field: "student_id", Reason: "required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.students[st.ID]; ok && st.CreatedAt.IsZero() {
		st.CreatedAt = existing.CreatedAt
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	m.students[st.ID] = st
	return nil
}

func (m *Memory) ListStudents(_ context.Context) ([]ledger.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Student, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordTransaction appends a validated transaction, keeping per-subject
// rows in replay order. Unknown subjects are registered.
func (m *Memory) RecordTransaction(ctx context.Context, tx ledger.Transaction) error {
	return m.RecordTransactions(ctx, []ledger.Transaction{tx})
}

// ImportTransactions is RecordTransactions; unknown students are always
// registered here.
func (m *Memory) ImportTransactions(ctx context.Context, txs []ledger.Transaction) error {
	return m.RecordTransactions(ctx, txs)
}

// RecordTransactions appends all of txs or none of them.
func (m *Memory) RecordTransactions(_ context.Context, txs []ledger.Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[ledger.TransactionID]bool, len(txs))
	for _, tx := range txs {
		if seen[tx.ID] || m.hasTransaction(tx.ID) {
			return fmt.Errorf("%w: transaction %s", ledger.ErrDuplicateTransaction, tx.ID)
		}
		seen[tx.ID] = true
	}
	for _, tx := range txs {
		rows := append(m.transactions[tx.SubjectID], tx)
		ledger.SortTransactions(rows)
		m.transactions[tx.SubjectID] = rows
		m.ensureStudent(tx.SubjectID)
	}
	return nil
}

func (m *Memory) hasTransaction(id ledger.TransactionID) bool {
	for _, txs := range m.transactions {
		for _, tx := range txs {
			if tx.ID == id {
				return true
			}
		}
	}
	return false
}

// VoidTransaction flags a transaction as voided. It stays stored.
func (m *Memory) VoidTransaction(_ context.Context, id ledger.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for subject, txs := range m.transactions {
		for i := range txs {
			if txs[i].ID == id {
				m.transactions[subject][i].Voided = true
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, id)
}

func (m *Memory) RecordInvoice(ctx context.Context, inv ledger.Invoice) error {
	return m.RecordInvoices(ctx, []ledger.Invoice{inv})
}

// ImportInvoices is RecordInvoices.
func (m *Memory) ImportInvoices(ctx context.Context, invs []ledger.Invoice) error {
	return m.RecordInvoices(ctx, invs)
}

// RecordInvoices appends all of invs or none of them.
func (m *Memory) RecordInvoices(_ context.Context, invs []ledger.Invoice) error {
	for _, inv := range invs {
		if err := inv.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(invs))
	for _, inv := range invs {
		if seen[inv.ID] || m.hasInvoice(inv.ID) {
			return fmt.Errorf("%w: invoice %s", ledger.ErrDuplicateTransaction, inv.ID)
		}
		seen[inv.ID] = true
	}
	for _, inv := range invs {
		if inv.Status == "" {
			inv.Status = ledger.InvoicePending
		}
		m.invoices[inv.SubjectID] = append(m.invoices[inv.SubjectID], inv)
		m.ensureStudent(inv.SubjectID)
	}
	return nil
}

func (m *Memory) hasInvoice(id string) bool {
	for _, invs := range m.invoices {
		for _, inv := range invs {
			if inv.ID == id {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// ledger.TransactionRepository
// =============================================================================

func (m *Memory) History(_ context.Context, subjectID ledger.SubjectID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(OpHistory); err != nil {
		return nil, err
	}

	var result []ledger.Transaction
	for _, tx := range m.transactions[subjectID] {
		if !tx.Voided {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) ByPeriod(_ context.Context, subjectID ledger.SubjectID, start, end ledger.Date) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(OpTxByPeriod); err != nil {
		return nil, err
	}

	period := ledger.Period{Start: start, End: end}
	var result []ledger.Transaction
	for _, tx := range m.transactions[subjectID] {
		if !tx.Voided && period.Contains(tx.Date) {
			result = append(result, tx)
		}
	}
	return result, nil
}

// =============================================================================
// ledger.InvoiceRepository
// =============================================================================

// Invoices exposes the invoice repository; Memory already uses ByPeriod for
// transactions.
func (m *Memory) Invoices() ledger.InvoiceRepository { return memoryInvoices{m} }

type memoryInvoices struct{ m *Memory }

func (mi memoryInvoices) ByPeriod(_ context.Context, subjectID ledger.SubjectID, start, end ledger.Date) ([]ledger.Invoice, error) {
	m := mi.m
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(OpInvoices); err != nil {
		return nil, err
	}

	period := ledger.Period{Start: start, End: end}
	var result []ledger.Invoice
	for _, inv := range m.invoices[subjectID] {
		if period.Contains(inv.InvoiceDate) {
			result = append(result, inv)
		}
	}
	return result, nil
}

// =============================================================================
// ledger.SnapshotRepository
// =============================================================================

func (m *Memory) Get(_ context.Context, subjectID ledger.SubjectID, periodStart ledger.Date) (*ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(OpSnapshotGet); err != nil {
		return nil, err
	}

	snap, ok := m.snapshots[snapshotKey{subjectID, periodStart.String()}]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *Memory) InsertIfAbsent(_ context.Context, snap ledger.Snapshot) (ledger.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpSnapshotInsert); err != nil {
		return ledger.Snapshot{}, false, err
	}

	k := snapshotKey{snap.SubjectID, snap.PeriodStart.String()}
	if existing, ok := m.snapshots[k]; ok {
		return existing, false, nil
	}
	m.snapshots[k] = snap
	return snap, true, nil
}

// Snapshots returns every stored snapshot ordered by subject and period start.
func (m *Memory) Snapshots() []ledger.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubjectID != out[j].SubjectID {
			return out[i].SubjectID < out[j].SubjectID
		}
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})
	return out
}

// =============================================================================
// ledger.SubjectRepository
// =============================================================================

func (m *Memory) Exists(_ context.Context, subjectID ledger.SubjectID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(OpSubjectExists); err != nil {
		return false, err
	}
	_, ok := m.students[subjectID]
	return ok, nil
}

// =============================================================================
// ledger.AuditSink
// =============================================================================

func (m *Memory) LogAudit(_ context.Context, entry ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(OpAudit); err != nil {
		return err
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) AuditEntries() []ledger.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.AuditEntry(nil), m.audit...)
}

// Repositories wires this store into every slot of ledger.Repositories.
func (m *Memory) Repositories() ledger.Repositories {
	return ledger.Repositories{
		Transactions: m,
		Invoices:     m.Invoices(),
		Snapshots:    m,
		Subjects:     m,
		Audit:        m,
	}
}

var (
	_ ledger.TransactionRepository = (*Memory)(nil)
	_ ledger.SnapshotRepository    = (*Memory)(nil)
	_ ledger.SubjectRepository     = (*Memory)(nil)
	_ ledger.AuditSink             = (*Memory)(nil)
	_ ledger.InvoiceRepository     = memoryInvoices{}
)
