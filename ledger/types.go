/*
Package ledger provides the student financial ledger engine.

PURPOSE:
  Turns a student's append-only stream of financial transactions into
  balances a bursar can act on: the opening balance before a date, a
  running-balance ledger for a period, a reconciliation of that ledger
  against invoices, and an immutable opening-balance snapshot per period.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: an amount in minor currency units (cents), never a float
  - Transaction: an immutable, possibly voided, financial record
  - Invoice: an independently maintained billing record (cross-check only)
  - LedgerEntry / ReconciliationResult / VerificationResult: derived values

DESIGN PRINCIPLES:
  1. Integer money: all arithmetic is int64 minor units
  2. Replay order: (Date, CreatedAt) ascending is the only balance order
  3. Voided rows never contribute to anything
  4. Business outcomes are values, infrastructure failures are errors

SEE ALSO:
  - opening.go: OpeningBalanceCalculator
  - generator.go: LedgerGenerator
  - reconcile.go: Reconciler
  - verify.go: BalanceVerifier
  - engine.go: Engine facade
*/
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Minor currency units
// =============================================================================

// Money is an amount in minor currency units (e.g. cents).
type Money int64

// MinorUnitExponent is the number of decimal places between major and minor units.
const MinorUnitExponent = 2

// ParseMoney parses a major-unit decimal string ("1234.50") into minor units.
// Amounts with more precision than a minor unit are rejected.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	minor := d.Shift(MinorUnitExponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more precise than a minor unit", s)
	}
	return Money(minor.IntPart()), nil
}

func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -MinorUnitExponent) }
func (m Money) String() string           { return m.Decimal().StringFixed(MinorUnitExponent) }
func (m Money) IsNegative() bool         { return m < 0 }
func (m Money) IsPositive() bool         { return m > 0 }

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// SubjectID identifies the account a transaction belongs to (a student).
type SubjectID string

type TransactionID string

// =============================================================================
// TRANSACTION - Raw financial record
// =============================================================================

type TransactionType string

const (
	TxCredit         TransactionType = "CREDIT"
	TxPayment        TransactionType = "PAYMENT"
	TxDebit          TransactionType = "DEBIT"
	TxCharge         TransactionType = "CHARGE"
	TxReversal       TransactionType = "REVERSAL"
	TxAdjustment     TransactionType = "ADJUSTMENT"
	TxOpeningBalance TransactionType = "OPENING_BALANCE"
)

// ParseTransactionType accepts the canonical names, case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Value: s, Reason: "unknown transaction type"}
	}
	return t, nil
}

func (t TransactionType) Valid() bool {
	switch t {
	case TxCredit, TxPayment, TxDebit, TxCharge, TxReversal, TxAdjustment, TxOpeningBalance:
		return true
	}
	return false
}

// Direction returns +1 for types that increase the balance, -1 for types
// that decrease it and 0 for types that do not move it.
//
// REVERSAL decreases the balance exactly like DEBIT.
func (t TransactionType) Direction() int {
	switch t {
	case TxCredit, TxPayment:
		return 1
	case TxDebit, TxCharge, TxReversal:
		return -1
	default:
		return 0
	}
}

// Transaction is an immutable financial record for a subject.
// Voided transactions stay in storage but are ignored by every computation.
type Transaction struct {
	ID          TransactionID
	SubjectID   SubjectID
	Type        TransactionType
	Amount      Money
	Date        Date
	CreatedAt   time.Time
	Voided      bool
	Description string
	Reference   string
}

// Validate checks the fields a balance computation depends on.
func (tx Transaction) Validate() error {
	if tx.SubjectID == "" {
		return &ValidationError{Field: "subject_id", Reason: "required"}
	}
	if !tx.Type.Valid() {
		return &ValidationError{Field: "type", Value: string(tx.Type), Reason: "unknown transaction type"}
	}
	if tx.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Value: tx.Amount.String(), Reason: "must not be negative"}
	}
	if tx.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "required"}
	}
	return nil
}

// Signed returns the amount with the sign of its type applied.
func (tx Transaction) Signed() Money {
	return Money(tx.Type.Direction()) * tx.Amount
}

// SortTransactions orders txs by (Date, CreatedAt) ascending, with ID as a
// final tie-break so the order is total.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// TransactionSubjects lists the distinct subjects of txs in first-seen order.
func TransactionSubjects(txs []Transaction) []SubjectID {
	ids := make([]SubjectID, len(txs))
	for i, tx := range txs {
		ids[i] = tx.SubjectID
	}
	return distinctSubjects(ids)
}

// InvoiceSubjects lists the distinct subjects of invs in first-seen order.
func InvoiceSubjects(invs []Invoice) []SubjectID {
	ids := make([]SubjectID, len(invs))
	for i, inv := range invs {
		ids[i] = inv.SubjectID
	}
	return distinctSubjects(ids)
}

func distinctSubjects(ids []SubjectID) []SubjectID {
	seen := make(map[SubjectID]bool, len(ids))
	out := make([]SubjectID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// activeOnly drops voided transactions. It never mutates the input.
func activeOnly(txs []Transaction) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Voided {
			out = append(out, tx)
		}
	}
	return out
}

// =============================================================================
// INVOICE - Independently billed amounts
// =============================================================================

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoicePartial   InvoiceStatus = "PARTIAL"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

type Invoice struct {
	ID          string
	SubjectID   SubjectID
	Amount      Money
	InvoiceDate Date
	Status      InvoiceStatus
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoicePending, InvoicePartial, InvoicePaid, InvoiceCancelled:
		return true
	}
	return false
}

// Validate checks an invoice before it is recorded. An empty status is
// accepted and stored as PENDING by the repositories.
func (inv Invoice) Validate() error {
	if inv.ID == "" {
		return &ValidationError{Field: "invoice_id", Reason: "required"}
	}
	if inv.SubjectID == "" {
		return &ValidationError{Field: "subject_id", Reason: "required"}
	}
	if inv.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Value: inv.Amount.String(), Reason: "must not be negative"}
	}
	if inv.InvoiceDate.IsZero() {
		return &ValidationError{Field: "invoice_date", Reason: "required"}
	}
	if inv.Status != "" && !inv.Status.Valid() {
		return &ValidationError{Field: "status", Value: string(inv.Status), Reason: "unknown invoice status"}
	}
	return nil
}

// =============================================================================
// LEDGER ENTRY - Derived, never persisted
// =============================================================================

type LedgerEntry struct {
	Date           Date
	Type           TransactionType
	Description    string
	Debit          Money
	Credit         Money
	RunningBalance Money

	// Empty for the synthetic opening-balance entry.
	TransactionID TransactionID
}

// ClosingBalance returns the running balance after the last entry, or zero.
func ClosingBalance(entries []LedgerEntry) Money {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].RunningBalance
}

// =============================================================================
// RESULTS
// =============================================================================

type ReconciliationStatus string

const (
	StatusBalanced     ReconciliationStatus = "BALANCED"
	StatusOutOfBalance ReconciliationStatus = "OUT_OF_BALANCE"
)

type DiscrepancyType string

const DiscrepancyBalanceMismatch DiscrepancyType = "BALANCE_MISMATCH"

type Discrepancy struct {
	ID             string
	Type           DiscrepancyType
	LedgerBalance  Money
	InvoiceBalance Money
	Difference     Money
	Description    string
}

type ReconciliationResult struct {
	SubjectID      SubjectID
	Period         Period
	Reconciled     bool
	LedgerBalance  Money
	InvoiceBalance Money
	Difference     Money
	Status         ReconciliationStatus
	Discrepancies  []Discrepancy
}

type VerificationStatus string

const (
	StatusVerified    VerificationStatus = "VERIFIED"
	StatusDiscrepancy VerificationStatus = "DISCREPANCY"
)

type VerificationResult struct {
	SubjectID       SubjectID
	PeriodStart     Date
	Verified        bool
	OpeningBalance  Money
	RecordedBalance Money
	Status          VerificationStatus

	// Established is true when this call wrote the baseline snapshot.
	Established bool
}
