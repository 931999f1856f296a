package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// RECONCILER - Ledger closing balance vs. invoiced total
// =============================================================================

// Reconciler compares the ledger's closing balance for a period with the sum
// of invoices dated in the same period.
//
// A mismatch is a reportable condition, not an error: the result carries
// OUT_OF_BALANCE and one BALANCE_MISMATCH discrepancy.
type Reconciler struct {
	Ledger   *LedgerGenerator
	Invoices InvoiceRepository
	Options  Options
}

func NewReconciler(gen *LedgerGenerator, invoices InvoiceRepository, opts Options) *Reconciler {
	return &Reconciler{Ledger: gen, Invoices: invoices, Options: opts}
}

func (r *Reconciler) Reconcile(ctx context.Context, subjectID SubjectID, start, end Date) (*ReconciliationResult, error) {
	period := Period{Start: start, End: end}

	entries, err := r.Ledger.Generate(ctx, subjectID, start, end)
	if err != nil {
		return nil, err
	}

	invoices, err := r.Invoices.ByPeriod(ctx, subjectID, start, end)
	if err != nil {
		return nil, storeErr("load period invoices", err)
	}

	return r.Compare(subjectID, period, ClosingBalance(entries), SumInvoices(invoices, period)), nil
}

// Compare builds the result for two already computed balances.
func (r *Reconciler) Compare(subjectID SubjectID, period Period, ledgerBalance, invoiceBalance Money) *ReconciliationResult {
	result := &ReconciliationResult{
		SubjectID:      subjectID,
		Period:         period,
		LedgerBalance:  ledgerBalance,
		InvoiceBalance: invoiceBalance,
		Difference:     (ledgerBalance - invoiceBalance).Abs(),
		Discrepancies:  []Discrepancy{},
	}

	if result.Difference < r.Options.tolerance() {
		result.Reconciled = true
		result.Status = StatusBalanced
		return result
	}

	result.Status = StatusOutOfBalance
	result.Discrepancies = append(result.Discrepancies, Discrepancy{
		ID:             uuid.NewString(),
		Type:           DiscrepancyBalanceMismatch,
		LedgerBalance:  ledgerBalance,
		InvoiceBalance: invoiceBalance,
		Difference:     result.Difference,
		Description: fmt.Sprintf("ledger balance %s differs from invoiced %s by %s",
			ledgerBalance, invoiceBalance, result.Difference),
	})
	return result
}

// SumInvoices totals invoices dated within period. Rows outside the period
// are ignored even if a repository returned them.
func SumInvoices(invoices []Invoice, period Period) Money {
	var total Money
	for _, inv := range invoices {
		if period.Contains(inv.InvoiceDate) {
			total += inv.Amount
		}
	}
	return total
}
