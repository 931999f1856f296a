package ledger

import (
	"context"
)

// =============================================================================
// ENGINE - Facade over the four ledger operations
// =============================================================================

// Repositories bundles the collaborators an Engine reads from.
// Subjects and Audit are optional.
type Repositories struct {
	Transactions TransactionRepository
	Invoices     InvoiceRepository
	Snapshots    SnapshotRepository
	Subjects     SubjectRepository
	Audit        AuditSink
}

// Engine composes the calculator, generator, reconciler and verifier over a
// single set of repositories.
type Engine struct {
	Opening    *OpeningBalanceCalculator
	Generator  *LedgerGenerator
	Reconciler *Reconciler
	Verifier   *BalanceVerifier

	subjects SubjectRepository
}

func NewEngine(repos Repositories, opts Options) *Engine {
	opening := NewOpeningBalanceCalculator(repos.Transactions, opts)
	gen := NewLedgerGenerator(opening, repos.Transactions, repos.Audit, opts)
	return &Engine{
		Opening:    opening,
		Generator:  gen,
		Reconciler: NewReconciler(gen, repos.Invoices, opts),
		Verifier:   NewBalanceVerifier(opening, repos.Snapshots, repos.Audit, opts),
		subjects:   repos.Subjects,
	}
}

func (e *Engine) CalculateOpeningBalance(ctx context.Context, subjectID SubjectID, cutoff Date) (Money, error) {
	if err := e.requireSubject(ctx, subjectID); err != nil {
		return 0, err
	}
	return e.Opening.Calculate(ctx, subjectID, cutoff)
}

func (e *Engine) GenerateLedger(ctx context.Context, subjectID SubjectID, start, end Date) ([]LedgerEntry, error) {
	if err := e.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return e.Generator.Generate(ctx, subjectID, start, end)
}

func (e *Engine) Reconcile(ctx context.Context, subjectID SubjectID, start, end Date) (*ReconciliationResult, error) {
	if err := e.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return e.Reconciler.Reconcile(ctx, subjectID, start, end)
}

func (e *Engine) VerifyOpeningBalance(ctx context.Context, subjectID SubjectID, periodStart Date) (*VerificationResult, error) {
	if err := e.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return e.Verifier.Verify(ctx, subjectID, periodStart)
}

// Wait blocks until audit entries queued by GenerateLedger and Reconcile
// have been written or timed out. Call it before closing the audit sink.
func (e *Engine) Wait() {
	e.Generator.Wait()
}

func (e *Engine) requireSubject(ctx context.Context, subjectID SubjectID) error {
	if e.subjects == nil {
		return nil
	}
	ok, err := e.subjects.Exists(ctx, subjectID)
	if err != nil {
		return storeErr("look up subject", err)
	}
	if !ok {
		return &NotFoundError{SubjectID: subjectID}
	}
	return nil
}
