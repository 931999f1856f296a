package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-ledger/ledger"
	"github.com/warp/fee-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const student = ledger.SubjectID("stu-001")

var errBoom = errors.New("disk on fire")

func day(year int, month time.Month, d int) ledger.Date {
	return ledger.NewDate(year, month, d)
}

// txAt builds a transaction created at hour:00 on its own date.
func txAt(id string, typ ledger.TransactionType, amount ledger.Money, date ledger.Date, hour int) ledger.Transaction {
	return ledger.Transaction{
		ID:        ledger.TransactionID(id),
		SubjectID: student,
		Type:      typ,
		Amount:    amount,
		Date:      date,
		CreatedAt: date.Time().Add(time.Duration(hour) * time.Hour),
	}
}

func newEngine(t *testing.T, opts ledger.Options, txs ...ledger.Transaction) (*ledger.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.AddSubject(student)
	for _, tx := range txs {
		require.NoError(t, mem.RecordTransaction(context.Background(), tx))
	}
	return ledger.NewEngine(mem.Repositories(), opts), mem
}

// feesAndReceipts posts two fees and two receipts before April 2025.
// Fees are posted as CREDIT entries and receipts as DEBIT entries.
func feesAndReceipts() []ledger.Transaction {
	return []ledger.Transaction{
		txAt("fee-term1", ledger.TxCredit, 100000, day(2025, time.January, 10), 9),
		txAt("fee-term2", ledger.TxCredit, 50000, day(2025, time.February, 1), 9),
		txAt("rcpt-1", ledger.TxDebit, 60000, day(2025, time.February, 15), 9),
		txAt("rcpt-2", ledger.TxDebit, 50000, day(2025, time.March, 1), 9),
	}
}

// =============================================================================
// OPENING BALANCE
// =============================================================================

func TestOpeningBalance_FeesPartiallyPaid(t *testing.T) {
	// GIVEN: fees of 100000 and 50000, receipts of 60000 and 50000
	// WHEN: computing the opening balance at April 1
	// THEN: 40000 is still owed
	engine, _ := newEngine(t, ledger.Options{}, feesAndReceipts()...)

	got, err := engine.CalculateOpeningBalance(context.Background(), student, day(2025, time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(40000), got)
}

func TestOpeningBalance_ExcludesCutoffDayAndLater(t *testing.T) {
	txs := append(feesAndReceipts(),
		txAt("fee-april", ledger.TxCredit, 7000, day(2025, time.April, 1), 8),
		txAt("fee-may", ledger.TxCredit, 9000, day(2025, time.May, 1), 8),
	)
	engine, _ := newEngine(t, ledger.Options{}, txs...)

	got, err := engine.CalculateOpeningBalance(context.Background(), student, day(2025, time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(40000), got, "transactions on or after the cutoff must not count")
}

func TestOpeningBalance_VoidedContributesNothing(t *testing.T) {
	ctx := context.Background()
	voided := txAt("fee-void", ledger.TxCredit, 123456, day(2025, time.January, 20), 9)
	engine, mem := newEngine(t, ledger.Options{}, append(feesAndReceipts(), voided)...)
	require.NoError(t, mem.VoidTransaction(ctx, voided.ID))

	got, err := engine.CalculateOpeningBalance(ctx, student, day(2025, time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(40000), got)
}

func TestOpeningBalance_FlooredAtZero(t *testing.T) {
	overpaid := []ledger.Transaction{
		txAt("fee", ledger.TxCredit, 1000, day(2025, time.January, 5), 9),
		txAt("rcpt", ledger.TxDebit, 1500, day(2025, time.January, 6), 9),
	}

	engine, _ := newEngine(t, ledger.Options{}, overpaid...)
	got, err := engine.CalculateOpeningBalance(context.Background(), student, day(2025, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(0), got)

	engine, _ = newEngine(t, ledger.Options{AllowCreditBalance: true}, overpaid...)
	got, err = engine.CalculateOpeningBalance(context.Background(), student, day(2025, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(-500), got)
}

func TestOpeningBalance_ReversalDecreasesLikeDebit(t *testing.T) {
	txs := []ledger.Transaction{
		txAt("fee", ledger.TxCredit, 40000, day(2025, time.January, 5), 9),
		txAt("rev", ledger.TxReversal, 5000, day(2025, time.January, 6), 9),
		txAt("adj", ledger.TxAdjustment, 999, day(2025, time.January, 7), 9),
	}
	engine, _ := newEngine(t, ledger.Options{}, txs...)

	got, err := engine.CalculateOpeningBalance(context.Background(), student, day(2025, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(35000), got)
}

func TestOpeningBalance_StoreErrorPropagates(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	mem.FailWith(store.OpHistory, errBoom)

	got, err := engine.CalculateOpeningBalance(context.Background(), student, day(2025, time.April, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, ledger.IsStoreError(err))
	assert.Equal(t, ledger.Money(0), got)
}

func TestOpeningBalance_UnknownSubject(t *testing.T) {
	engine, _ := newEngine(t, ledger.Options{})

	_, err := engine.CalculateOpeningBalance(context.Background(), "stu-missing", day(2025, time.April, 1))
	require.Error(t, err)
	assert.True(t, ledger.IsNotFound(err))
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, ledger.SubjectID("stu-missing"), nf.SubjectID)
}

// =============================================================================
// LEDGER GENERATION
// =============================================================================

func TestGenerateLedger_OpeningThenReversal(t *testing.T) {
	// GIVEN: 40000 owed before April, a 5000 REVERSAL in April
	// WHEN: generating the April ledger
	// THEN: opening line of 40000, reversal in the debit column, closing 35000
	txs := append(feesAndReceipts(), txAt("rev", ledger.TxReversal, 5000, day(2025, time.April, 10), 9))
	engine, _ := newEngine(t, ledger.Options{}, txs...)

	entries, err := engine.GenerateLedger(context.Background(), student, day(2025, time.April, 1), day(2025, time.April, 30))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, ledger.LedgerEntry{
		Date:           day(2025, time.April, 1),
		Type:           ledger.TxOpeningBalance,
		Description:    "Opening balance",
		Debit:          40000,
		RunningBalance: 40000,
	}, entries[0])

	assert.Equal(t, ledger.TxReversal, entries[1].Type)
	assert.Equal(t, ledger.Money(5000), entries[1].Debit)
	assert.Equal(t, ledger.Money(0), entries[1].Credit)
	assert.Equal(t, ledger.Money(35000), entries[1].RunningBalance)
	assert.Equal(t, ledger.Money(35000), ledger.ClosingBalance(entries))
}

func TestGenerateLedger_EmptyPeriod(t *testing.T) {
	engine, _ := newEngine(t, ledger.Options{})

	entries, err := engine.GenerateLedger(context.Background(), student, day(2025, time.April, 1), day(2025, time.April, 30))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, ledger.Money(0), ledger.ClosingBalance(entries))
}

func TestGenerateLedger_NoActivityKeepsOpeningBalance(t *testing.T) {
	engine, _ := newEngine(t, ledger.Options{}, feesAndReceipts()...)

	entries, err := engine.GenerateLedger(context.Background(), student, day(2025, time.June, 1), day(2025, time.June, 30))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Money(40000), ledger.ClosingBalance(entries))
}

func TestGenerateLedger_SameDayOrderedByCreatedAt(t *testing.T) {
	// GIVEN: a credit created at 10:00 and a debit created at 09:00 on the same day
	// THEN: the debit replays first; the floor applies to the cumulative sum
	march3 := day(2025, time.March, 3)
	txs := []ledger.Transaction{
		txAt("b-credit", ledger.TxCredit, 1000, march3, 10),
		txAt("a-debit", ledger.TxDebit, 300, march3, 9),
	}
	engine, _ := newEngine(t, ledger.Options{}, txs...)

	entries, err := engine.GenerateLedger(context.Background(), student, march3, march3)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, ledger.TransactionID("a-debit"), entries[0].TransactionID)
	assert.Equal(t, ledger.Money(0), entries[0].RunningBalance)
	assert.Equal(t, ledger.TransactionID("b-credit"), entries[1].TransactionID)
	assert.Equal(t, ledger.Money(700), entries[1].RunningBalance)
}

func TestGenerateLedger_RunningBalanceMatchesCumulativeFold(t *testing.T) {
	start, end := day(2025, time.April, 1), day(2025, time.June, 30)
	txs := append(feesAndReceipts(),
		txAt("p1", ledger.TxPayment, 2500, day(2025, time.April, 2), 9),
		txAt("c1", ledger.TxCharge, 90000, day(2025, time.April, 3), 9),
		txAt("d1", ledger.TxDebit, 1200, day(2025, time.April, 3), 11),
		txAt("a1", ledger.TxAdjustment, 5000, day(2025, time.May, 1), 9),
		txAt("r1", ledger.TxReversal, 70000, day(2025, time.May, 2), 9),
		txAt("cr", ledger.TxCredit, 31000, day(2025, time.June, 30), 9),
	)
	engine, _ := newEngine(t, ledger.Options{}, txs...)

	opening, err := engine.CalculateOpeningBalance(context.Background(), student, start)
	require.NoError(t, err)
	entries, err := engine.GenerateLedger(context.Background(), student, start, end)
	require.NoError(t, err)

	cumulative := opening
	for _, e := range entries {
		if e.TransactionID == "" {
			continue
		}
		cumulative += e.Credit - e.Debit
		want := cumulative
		if want < 0 {
			want = 0
		}
		assert.Equal(t, want, e.RunningBalance, "entry %s", e.TransactionID)
	}
	assert.Len(t, entries, 7, "opening line plus six period transactions")
}

func TestGenerateLedger_AdjustmentIsNeutral(t *testing.T) {
	txs := []ledger.Transaction{
		txAt("fee", ledger.TxCredit, 1000, day(2025, time.April, 1), 9),
		txAt("adj", ledger.TxAdjustment, 400, day(2025, time.April, 2), 9),
	}
	engine, _ := newEngine(t, ledger.Options{}, txs...)

	entries, err := engine.GenerateLedger(context.Background(), student, day(2025, time.April, 1), day(2025, time.April, 30))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Adjustment", entries[1].Description)
	assert.Zero(t, entries[1].Debit)
	assert.Zero(t, entries[1].Credit)
	assert.Equal(t, ledger.Money(1000), entries[1].RunningBalance)
}

func TestGenerateLedger_Idempotent(t *testing.T) {
	txs := append(feesAndReceipts(), txAt("rev", ledger.TxReversal, 5000, day(2025, time.April, 10), 9))
	engine, _ := newEngine(t, ledger.Options{}, txs...)
	ctx := context.Background()

	first, err := engine.GenerateLedger(ctx, student, day(2025, time.January, 1), day(2025, time.December, 31))
	require.NoError(t, err)
	second, err := engine.GenerateLedger(ctx, student, day(2025, time.January, 1), day(2025, time.December, 31))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerateLedger_VoidedExcluded(t *testing.T) {
	ctx := context.Background()
	voided := txAt("charge-void", ledger.TxCharge, 3000, day(2025, time.April, 5), 9)
	engine, mem := newEngine(t, ledger.Options{}, append(feesAndReceipts(), voided)...)
	require.NoError(t, mem.VoidTransaction(ctx, voided.ID))

	entries, err := engine.GenerateLedger(ctx, student, day(2025, time.April, 1), day(2025, time.April, 30))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Money(40000), ledger.ClosingBalance(entries))
}

func TestGenerateLedger_InvertedRange(t *testing.T) {
	ctx := context.Background()
	start, end := day(2025, time.May, 1), day(2025, time.April, 1)

	engine, _ := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	entries, err := engine.GenerateLedger(ctx, student, start, end)
	require.NoError(t, err)
	assert.Empty(t, entries)

	strict, _ := newEngine(t, ledger.Options{RejectInvertedRange: true}, feesAndReceipts()...)
	_, err = strict.GenerateLedger(ctx, student, start, end)
	assert.ErrorIs(t, err, ledger.ErrInvalidPeriod)
	assert.True(t, ledger.IsClientError(err))
}

func TestGenerateLedger_WritesAuditEntry(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	ctx := ledger.WithActor(context.Background(), "bursar-7")

	_, err := engine.GenerateLedger(ctx, student, day(2025, time.January, 1), day(2025, time.March, 31))
	require.NoError(t, err)
	engine.Wait()

	audit := mem.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, ledger.AuditLedgerGenerated, audit[0].Action)
	assert.Equal(t, "bursar-7", audit[0].ActorID)
	assert.Equal(t, string(student), audit[0].EntityID)
	assert.Equal(t, "2025-01-01", audit[0].After["periodStart"])
	assert.Equal(t, "2025-03-31", audit[0].After["periodEnd"])
	assert.Equal(t, 4, audit[0].After["entryCount"])
}

func TestGenerateLedger_AuditFailureDoesNotFail(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	mem.FailWith(store.OpAudit, errBoom)

	entries, err := engine.GenerateLedger(context.Background(), student, day(2025, time.January, 1), day(2025, time.March, 31))
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	engine.Wait()
}

// blockingSink holds every LogAudit until release is closed or the write's
// context ends.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []ledger.AuditEntry
	errs    []error
}

func (s *blockingSink) LogAudit(ctx context.Context, entry ledger.AuditEntry) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		s.mu.Lock()
		s.errs = append(s.errs, ctx.Err())
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, entry)
	return nil
}

func (s *blockingSink) snapshot() ([]ledger.AuditEntry, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.AuditEntry(nil), s.got...), append([]error(nil), s.errs...)
}

func slowSinkEngine(t *testing.T, sink ledger.AuditSink, opts ledger.Options) *ledger.Engine {
	t.Helper()
	mem := store.NewMemory()
	mem.AddSubject(student)
	require.NoError(t, mem.RecordTransactions(context.Background(), feesAndReceipts()))
	repos := mem.Repositories()
	repos.Audit = sink
	return ledger.NewEngine(repos, opts)
}

func TestGenerateLedger_DoesNotWaitForAuditSink(t *testing.T) {
	// GIVEN: a sink that blocks until released
	sink := &blockingSink{release: make(chan struct{})}
	engine := slowSinkEngine(t, sink, ledger.Options{AuditTimeout: time.Minute})
	reqCtx, cancel := context.WithCancel(ledger.WithActor(context.Background(), "bursar-7"))

	// WHEN: the ledger is generated and the request finishes
	done := make(chan []ledger.LedgerEntry, 1)
	go func() {
		entries, err := engine.GenerateLedger(reqCtx, student, day(2025, time.January, 1), day(2025, time.March, 31))
		assert.NoError(t, err)
		done <- entries
	}()

	// THEN: the call returns while the audit write is still pending
	select {
	case entries := <-done:
		assert.Len(t, entries, 4)
	case <-time.After(2 * time.Second):
		t.Fatal("GenerateLedger blocked on the audit sink")
	}
	cancel()
	got, _ := sink.snapshot()
	assert.Empty(t, got)

	// AND: the entry lands once the sink frees up, despite the request
	// context being cancelled, with the caller's actor
	close(sink.release)
	engine.Wait()
	got, errs := sink.snapshot()
	assert.Empty(t, errs)
	require.Len(t, got, 1)
	assert.Equal(t, "bursar-7", got[0].ActorID)
}

func TestGenerateLedger_StuckAuditSinkTimesOut(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	engine := slowSinkEngine(t, sink, ledger.Options{AuditTimeout: 20 * time.Millisecond})

	entries, err := engine.GenerateLedger(context.Background(), student, day(2025, time.January, 1), day(2025, time.March, 31))
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	engine.Wait()
	got, errs := sink.snapshot()
	assert.Empty(t, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestGenerateLedger_PeriodStoreErrorPropagates(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	mem.FailWith(store.OpTxByPeriod, errBoom)

	entries, err := engine.GenerateLedger(context.Background(), student, day(2025, time.January, 1), day(2025, time.March, 31))
	assert.ErrorIs(t, err, errBoom)
	assert.Nil(t, entries)
}

// badRowRepo returns rows that bypassed validation.
type badRowRepo struct{ rows []ledger.Transaction }

func (b badRowRepo) History(context.Context, ledger.SubjectID) ([]ledger.Transaction, error) {
	return b.rows, nil
}

func (b badRowRepo) ByPeriod(context.Context, ledger.SubjectID, ledger.Date, ledger.Date) ([]ledger.Transaction, error) {
	return b.rows, nil
}

func TestGenerateLedger_InvalidRowFailsInsteadOfZero(t *testing.T) {
	repo := badRowRepo{rows: []ledger.Transaction{
		txAt("bogus", ledger.TransactionType("REFUND?"), 100, day(2025, time.January, 2), 9),
	}}
	engine := ledger.NewEngine(ledger.Repositories{Transactions: repo}, ledger.Options{})

	_, err := engine.GenerateLedger(context.Background(), student, day(2025, time.January, 1), day(2025, time.January, 31))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransaction)

	_, err = engine.CalculateOpeningBalance(context.Background(), student, day(2025, time.February, 1))
	assert.ErrorIs(t, err, ledger.ErrInvalidTransaction)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func addInvoice(t *testing.T, mem *store.Memory, id string, amount ledger.Money, date ledger.Date) {
	t.Helper()
	require.NoError(t, mem.RecordInvoice(context.Background(), ledger.Invoice{
		ID: id, SubjectID: student, Amount: amount, InvoiceDate: date, Status: ledger.InvoicePending,
	}))
}

func TestReconcile_EmptyPeriodBalanced(t *testing.T) {
	engine, _ := newEngine(t, ledger.Options{})

	result, err := engine.Reconcile(context.Background(), student, day(2025, time.April, 1), day(2025, time.April, 30))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(0), result.LedgerBalance)
	assert.Equal(t, ledger.Money(0), result.InvoiceBalance)
	assert.Equal(t, ledger.StatusBalanced, result.Status)
	assert.True(t, result.Reconciled)
	assert.Empty(t, result.Discrepancies)
}

func TestReconcile_MatchingInvoices(t *testing.T) {
	start, end := day(2025, time.January, 1), day(2025, time.March, 31)
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	addInvoice(t, mem, "inv-1", 30000, day(2025, time.January, 10))
	addInvoice(t, mem, "inv-2", 10000, day(2025, time.March, 31))
	addInvoice(t, mem, "inv-next", 99999, day(2025, time.April, 1))

	result, err := engine.Reconcile(context.Background(), student, start, end)
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(40000), result.LedgerBalance)
	assert.Equal(t, ledger.Money(40000), result.InvoiceBalance)
	assert.Equal(t, ledger.Money(0), result.Difference)
	assert.Equal(t, ledger.StatusBalanced, result.Status)
}

func TestReconcile_MismatchReportsOneDiscrepancy(t *testing.T) {
	start, end := day(2025, time.January, 1), day(2025, time.March, 31)
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	addInvoice(t, mem, "inv-1", 45000, day(2025, time.February, 1))

	result, err := engine.Reconcile(context.Background(), student, start, end)
	require.NoError(t, err, "a mismatch is a result, not an error")
	assert.False(t, result.Reconciled)
	assert.Equal(t, ledger.StatusOutOfBalance, result.Status)
	assert.Equal(t, ledger.Money(5000), result.Difference)

	require.Len(t, result.Discrepancies, 1)
	d := result.Discrepancies[0]
	assert.Equal(t, ledger.DiscrepancyBalanceMismatch, d.Type)
	assert.Equal(t, ledger.Money(40000), d.LedgerBalance)
	assert.Equal(t, ledger.Money(45000), d.InvoiceBalance)
	assert.Equal(t, ledger.Money(5000), d.Difference)
	assert.NotEmpty(t, d.ID)
}

func TestReconcile_ToleranceBoundary(t *testing.T) {
	start, end := day(2025, time.January, 1), day(2025, time.March, 31)

	// Default tolerance of 1: a difference of exactly 1 is out of balance.
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	addInvoice(t, mem, "inv-1", 40001, day(2025, time.February, 1))
	result, err := engine.Reconcile(context.Background(), student, start, end)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusOutOfBalance, result.Status)

	loose, mem := newEngine(t, ledger.Options{Tolerance: 2}, feesAndReceipts()...)
	addInvoice(t, mem, "inv-1", 40001, day(2025, time.February, 1))
	result, err = loose.Reconcile(context.Background(), student, start, end)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusBalanced, result.Status)
}

func TestReconcile_InvoiceStoreErrorPropagates(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	mem.FailWith(store.OpInvoices, errBoom)

	result, err := engine.Reconcile(context.Background(), student, day(2025, time.January, 1), day(2025, time.March, 31))
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, ledger.IsStoreError(err))
	assert.Nil(t, result)
}

// =============================================================================
// OPENING BALANCE VERIFICATION
// =============================================================================

func TestVerify_FirstCallEstablishesBaseline(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	april := day(2025, time.April, 1)

	result, err := engine.VerifyOpeningBalance(context.Background(), student, april)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.True(t, result.Established)
	assert.Equal(t, ledger.StatusVerified, result.Status)
	assert.Equal(t, ledger.Money(40000), result.OpeningBalance)

	snaps := mem.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, ledger.Money(40000), snaps[0].OpeningBalance)
	assert.True(t, snaps[0].PeriodStart.Equal(april))

	audit := mem.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, ledger.AuditSnapshotEstablished, audit[0].Action)
}

func TestVerify_RepeatIsIdempotent(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	ctx := context.Background()
	april := day(2025, time.April, 1)

	_, err := engine.VerifyOpeningBalance(ctx, student, april)
	require.NoError(t, err)
	before := mem.Snapshots()

	for i := 0; i < 3; i++ {
		result, err := engine.VerifyOpeningBalance(ctx, student, april)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusVerified, result.Status)
		assert.False(t, result.Established)
	}
	assert.Equal(t, before, mem.Snapshots())
}

func TestVerify_BackdatedChangeIsDiscrepancy(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	ctx := context.Background()
	april := day(2025, time.April, 1)

	_, err := engine.VerifyOpeningBalance(ctx, student, april)
	require.NoError(t, err)

	// A late-posted March charge changes history before the period start.
	require.NoError(t, mem.RecordTransaction(ctx, txAt("late", ledger.TxCredit, 2500, day(2025, time.March, 20), 9)))

	result, err := engine.VerifyOpeningBalance(ctx, student, april)
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, ledger.StatusDiscrepancy, result.Status)
	assert.Equal(t, ledger.Money(42500), result.OpeningBalance)
	assert.Equal(t, ledger.Money(40000), result.RecordedBalance)

	snaps := mem.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, ledger.Money(40000), snaps[0].OpeningBalance, "baseline is never overwritten")
}

func TestVerify_ConcurrentFirstCallsEstablishOnce(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	april := day(2025, time.April, 1)

	const callers = 16
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		established int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.VerifyOpeningBalance(context.Background(), student, april)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, ledger.StatusVerified, result.Status)
			if result.Established {
				mu.Lock()
				established++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, established)
	assert.Len(t, mem.Snapshots(), 1)
}

func TestVerify_SnapshotStoreErrorPropagates(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{}, feesAndReceipts()...)
	mem.FailWith(store.OpSnapshotInsert, errBoom)

	result, err := engine.VerifyOpeningBalance(context.Background(), student, day(2025, time.April, 1))
	assert.ErrorIs(t, err, errBoom)
	assert.Nil(t, result)
	assert.Empty(t, mem.Snapshots())
}

func TestVerify_UnknownSubject(t *testing.T) {
	engine, mem := newEngine(t, ledger.Options{})

	_, err := engine.VerifyOpeningBalance(context.Background(), "stu-missing", day(2025, time.April, 1))
	assert.True(t, ledger.IsNotFound(err))
	assert.Empty(t, mem.Snapshots())
}
