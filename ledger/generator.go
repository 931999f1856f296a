/*
generator.go - Running-balance ledger for a period

PURPOSE:
  Produces the statement a bursar reads: an optional opening-balance line
  followed by every non-voided transaction of the period, in replay order,
  each annotated with the balance after it.

ALGORITHM:
  1. opening = OpeningBalanceCalculator.Calculate(subject, start)
  2. opening > 0 -> synthetic OPENING_BALANCE entry dated start,
     debit = opening, running = opening
  3. load [start, end], drop voided, sort by (Date, CreatedAt)
  4. replay: cumulative += signed amount; running = floor(cumulative)

  The floor applies to the cumulative sum, not step by step, so a
  temporary dip below zero does not erase later debits.

PURITY:
  No writes besides a best-effort audit record, sent in the background so
  a slow sink never delays the statement. Two calls over unchanged data
  return identical entries.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LedgerGenerator builds the running-balance ledger of a subject.
type LedgerGenerator struct {
	Opening      *OpeningBalanceCalculator
	Transactions TransactionRepository
	Audit        AuditSink // optional
	Options      Options

	pending sync.WaitGroup
}

func NewLedgerGenerator(opening *OpeningBalanceCalculator, txs TransactionRepository, audit AuditSink, opts Options) *LedgerGenerator {
	return &LedgerGenerator{Opening: opening, Transactions: txs, Audit: audit, Options: opts}
}

// Generate returns the ledger of subjectID over [start, end].
func (g *LedgerGenerator) Generate(ctx context.Context, subjectID SubjectID, start, end Date) ([]LedgerEntry, error) {
	period := Period{Start: start, End: end}
	if period.IsInverted() {
		if g.Options.RejectInvertedRange {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
		}
		return []LedgerEntry{}, nil
	}

	opening, err := g.Opening.Calculate(ctx, subjectID, start)
	if err != nil {
		return nil, err
	}

	txs, err := g.Transactions.ByPeriod(ctx, subjectID, start, end)
	if err != nil {
		return nil, storeErr("load period transactions", err)
	}

	entries, err := g.Replay(opening, period, txs)
	if err != nil {
		return nil, err
	}

	g.audit(ctx, subjectID, period, len(entries))
	return entries, nil
}

// Replay builds entries from an opening balance and the period's raw rows.
// txs is not modified.
func (g *LedgerGenerator) Replay(opening Money, period Period, txs []Transaction) ([]LedgerEntry, error) {
	active := make([]Transaction, 0, len(txs))
	for _, tx := range activeOnly(txs) {
		if !period.Contains(tx.Date) {
			continue
		}
		if err := tx.Validate(); err != nil {
			return nil, err
		}
		active = append(active, tx)
	}
	SortTransactions(active)

	entries := make([]LedgerEntry, 0, len(active)+1)
	if opening > 0 {
		entries = append(entries, LedgerEntry{
			Date:           period.Start,
			Type:           TxOpeningBalance,
			Description:    "Opening balance",
			Debit:          opening,
			RunningBalance: opening,
		})
	}

	cumulative := opening
	for _, tx := range active {
		entry := LedgerEntry{
			Date:          tx.Date,
			Type:          tx.Type,
			Description:   describe(tx),
			TransactionID: tx.ID,
		}
		switch tx.Type.Direction() {
		case 1:
			entry.Credit = tx.Amount
		case -1:
			entry.Debit = tx.Amount
		}
		cumulative += tx.Signed()
		entry.RunningBalance = g.Options.floor(cumulative)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (g *LedgerGenerator) audit(ctx context.Context, subjectID SubjectID, period Period, count int) {
	if g.Audit == nil {
		return
	}
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  g.Options.now(),
		ActorID:    ActorFrom(ctx),
		Action:     AuditLedgerGenerated,
		EntityType: "student_ledger",
		EntityID:   string(subjectID),
		After: map[string]any{
			"periodStart": period.Start.String(),
			"periodEnd":   period.End.String(),
			"entryCount":  count,
		},
	}

	// The write outlives the request: keep the context values, drop its
	// cancellation, bound it by AuditTimeout.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.Options.auditTimeout())
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		defer cancel()
		if err := g.Audit.LogAudit(actx, entry); err != nil {
			g.Options.logger().WarnContext(actx, "audit log failed",
				"action", entry.Action, "subject_id", subjectID, "error", err)
		}
	}()
}

// Wait blocks until background audit writes have finished.
func (g *LedgerGenerator) Wait() {
	g.pending.Wait()
}

func describe(tx Transaction) string {
	if tx.Description != "" {
		return tx.Description
	}
	words := strings.Split(strings.ToLower(string(tx.Type)), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
