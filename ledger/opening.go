/*
opening.go - Opening balance before a cutoff date

The opening balance is the fold of every non-voided transaction dated
strictly before the cutoff:

  CREDIT, PAYMENT          -> +amount
  DEBIT, CHARGE, REVERSAL  -> -amount
  ADJUSTMENT, OPENING_BAL. ->  0

The result is floored at zero: it represents an amount owed, never a
surplus. Options.AllowCreditBalance lifts the floor.
*/
package ledger

import "context"

// OpeningBalanceCalculator reduces a subject's history before a cutoff into
// a single balance.
type OpeningBalanceCalculator struct {
	Transactions TransactionRepository
	Options      Options
}

func NewOpeningBalanceCalculator(txs TransactionRepository, opts Options) *OpeningBalanceCalculator {
	return &OpeningBalanceCalculator{Transactions: txs, Options: opts}
}

// Calculate returns the balance of subjectID immediately before cutoff.
func (c *OpeningBalanceCalculator) Calculate(ctx context.Context, subjectID SubjectID, cutoff Date) (Money, error) {
	history, err := c.Transactions.History(ctx, subjectID)
	if err != nil {
		return 0, storeErr("load transaction history", err)
	}
	return c.Fold(history, cutoff)
}

// Fold computes the opening balance from an already loaded history.
func (c *OpeningBalanceCalculator) Fold(history []Transaction, cutoff Date) (Money, error) {
	var total Money
	for _, tx := range history {
		if tx.Voided || !tx.Date.Before(cutoff) {
			continue
		}
		if err := tx.Validate(); err != nil {
			return 0, err
		}
		total += tx.Signed()
	}
	return c.Options.floor(total), nil
}
