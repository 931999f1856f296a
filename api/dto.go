/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger package's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Every amount is rendered twice: integer minor units for machines and a
  fixed two-decimal string for people. Request amounts are decimal strings
  ("123.45") and are rejected if more precise than a minor unit.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/fee-ledger/ledger"
)

// AmountDTO renders a Money value.
type AmountDTO struct {
	Minor int64  `json:"minor"`
	Value string `json:"value"`
}

func NewAmountDTO(m ledger.Money) AmountDTO {
	return AmountDTO{Minor: int64(m), Value: m.String()}
}

// =============================================================================
// STUDENTS
// =============================================================================

type StudentDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateStudentRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func NewStudentDTO(st ledger.Student) StudentDTO {
	dto := StudentDTO{ID: string(st.ID), Name: st.Name, Email: st.Email}
	if !st.CreatedAt.IsZero() {
		dto.CreatedAt = st.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// TRANSACTIONS AND INVOICES
// =============================================================================

// RecordTransactionRequest posts a transaction. ID is generated when empty.
type RecordTransactionRequest struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

type TransactionDTO struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Type        string    `json:"type"`
	Amount      AmountDTO `json:"amount"`
	Date        string    `json:"date"`
	CreatedAt   string    `json:"created_at"`
	Voided      bool      `json:"voided"`
	Description string    `json:"description,omitempty"`
	Reference   string    `json:"reference,omitempty"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		StudentID:   string(tx.SubjectID),
		Type:        string(tx.Type),
		Amount:      NewAmountDTO(tx.Amount),
		Date:        tx.Date.String(),
		CreatedAt:   tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		Voided:      tx.Voided,
		Description: tx.Description,
		Reference:   tx.Reference,
	}
}

type RecordInvoiceRequest struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	InvoiceDate string `json:"invoice_date"`
	Status      string `json:"status"`
}

type InvoiceDTO struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Amount      AmountDTO `json:"amount"`
	InvoiceDate string    `json:"invoice_date"`
	Status      string    `json:"status"`
}

func toInvoiceDTO(inv ledger.Invoice) InvoiceDTO {
	status := inv.Status
	if status == "" {
		status = ledger.InvoicePending
	}
	return InvoiceDTO{
		ID:          inv.ID,
		StudentID:   string(inv.SubjectID),
		Amount:      NewAmountDTO(inv.Amount),
		InvoiceDate: inv.InvoiceDate.String(),
		Status:      string(status),
	}
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

type OpeningBalanceDTO struct {
	StudentID      string    `json:"student_id"`
	Cutoff         string    `json:"cutoff"`
	OpeningBalance AmountDTO `json:"opening_balance"`
}

type LedgerEntryDTO struct {
	Date           string    `json:"date"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	Debit          AmountDTO `json:"debit"`
	Credit         AmountDTO `json:"credit"`
	RunningBalance AmountDTO `json:"running_balance"`
	TransactionID  string    `json:"transaction_id,omitempty"`
}

type LedgerDTO struct {
	StudentID      string           `json:"student_id"`
	PeriodStart    string           `json:"period_start"`
	PeriodEnd      string           `json:"period_end"`
	Entries        []LedgerEntryDTO `json:"entries"`
	ClosingBalance AmountDTO        `json:"closing_balance"`
}

func NewLedgerDTO(subjectID ledger.SubjectID, period ledger.Period, entries []ledger.LedgerEntry) LedgerDTO {
	dto := LedgerDTO{
		StudentID:      string(subjectID),
		PeriodStart:    period.Start.String(),
		PeriodEnd:      period.End.String(),
		Entries:        make([]LedgerEntryDTO, 0, len(entries)),
		ClosingBalance: NewAmountDTO(ledger.ClosingBalance(entries)),
	}
	for _, e := range entries {
		dto.Entries = append(dto.Entries, LedgerEntryDTO{
			Date:           e.Date.String(),
			Type:           string(e.Type),
			Description:    e.Description,
			Debit:          NewAmountDTO(e.Debit),
			Credit:         NewAmountDTO(e.Credit),
			RunningBalance: NewAmountDTO(e.RunningBalance),
			TransactionID:  string(e.TransactionID),
		})
	}
	return dto
}

type DiscrepancyDTO struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	LedgerBalance  AmountDTO `json:"ledger_balance"`
	InvoiceBalance AmountDTO `json:"invoice_balance"`
	Difference     AmountDTO `json:"difference"`
	Description    string    `json:"description"`
}

type ReconciliationDTO struct {
	StudentID      string           `json:"student_id"`
	PeriodStart    string           `json:"period_start"`
	PeriodEnd      string           `json:"period_end"`
	Reconciled     bool             `json:"reconciled"`
	Status         string           `json:"status"`
	LedgerBalance  AmountDTO        `json:"ledger_balance"`
	InvoiceBalance AmountDTO        `json:"invoice_balance"`
	Difference     AmountDTO        `json:"difference"`
	Discrepancies  []DiscrepancyDTO `json:"discrepancies"`
}

func NewReconciliationDTO(res *ledger.ReconciliationResult) ReconciliationDTO {
	dto := ReconciliationDTO{
		StudentID:      string(res.SubjectID),
		PeriodStart:    res.Period.Start.String(),
		PeriodEnd:      res.Period.End.String(),
		Reconciled:     res.Reconciled,
		Status:         string(res.Status),
		LedgerBalance:  NewAmountDTO(res.LedgerBalance),
		InvoiceBalance: NewAmountDTO(res.InvoiceBalance),
		Difference:     NewAmountDTO(res.Difference),
		Discrepancies:  make([]DiscrepancyDTO, 0, len(res.Discrepancies)),
	}
	for _, d := range res.Discrepancies {
		dto.Discrepancies = append(dto.Discrepancies, DiscrepancyDTO{
			ID:             d.ID,
			Type:           string(d.Type),
			LedgerBalance:  NewAmountDTO(d.LedgerBalance),
			InvoiceBalance: NewAmountDTO(d.InvoiceBalance),
			Difference:     NewAmountDTO(d.Difference),
			Description:    d.Description,
		})
	}
	return dto
}

// VerifyRequest names the period start to verify. Empty means the start of
// the current accounting period.
type VerifyRequest struct {
	PeriodStart string `json:"period_start"`
}

type VerificationDTO struct {
	StudentID       string    `json:"student_id"`
	PeriodStart     string    `json:"period_start"`
	Verified        bool      `json:"verified"`
	Status          string    `json:"status"`
	OpeningBalance  AmountDTO `json:"opening_balance"`
	RecordedBalance AmountDTO `json:"recorded_balance"`
	Established     bool      `json:"established"`
}

func NewVerificationDTO(res *ledger.VerificationResult) VerificationDTO {
	return VerificationDTO{
		StudentID:       string(res.SubjectID),
		PeriodStart:     res.PeriodStart.String(),
		Verified:        res.Verified,
		Status:          string(res.Status),
		OpeningBalance:  NewAmountDTO(res.OpeningBalance),
		RecordedBalance: NewAmountDTO(res.RecordedBalance),
		Established:     res.Established,
	}
}

// =============================================================================
// SCHEDULER AND SCENARIOS
// =============================================================================

type VerificationRunDTO struct {
	ID            string   `json:"id"`
	PeriodStart   string   `json:"period_start"`
	Status        string   `json:"status"`
	Checked       int      `json:"checked"`
	Verified      int      `json:"verified"`
	Established   int      `json:"established"`
	Discrepancies []string `json:"discrepancies"`
	Errors        []string `json:"errors,omitempty"`
	StartedAt     string   `json:"started_at"`
	CompletedAt   string   `json:"completed_at,omitempty"`
}

func NewVerificationRunDTO(run VerificationRun) VerificationRunDTO {
	dto := VerificationRunDTO{
		ID:            run.ID,
		PeriodStart:   run.PeriodStart.String(),
		Status:        run.Status,
		Checked:       run.Checked,
		Verified:      run.Verified,
		Established:   run.Established,
		Discrepancies: make([]string, 0, len(run.Discrepancies)),
		Errors:        run.Errors,
		StartedAt:     run.StartedAt.UTC().Format(time.RFC3339),
	}
	for _, id := range run.Discrepancies {
		dto.Discrepancies = append(dto.Discrepancies, string(id))
	}
	if !run.CompletedAt.IsZero() {
		dto.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
