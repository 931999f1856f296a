/*
handlers.go - HTTP API handlers for the student financial ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger package.

ENDPOINTS:
  Students:
    GET    /api/students                            List students
    POST   /api/students                            Create or update a student
    GET    /api/students/{id}/opening-balance       Opening balance (?cutoff=)
    POST   /api/students/{id}/opening-balance/verify  Verify against snapshot
    GET    /api/students/{id}/ledger                Ledger (?start=&end=)
    GET    /api/students/{id}/reconciliation        Reconcile (?start=&end=)
    POST   /api/students/{id}/transactions          Record a transaction
    POST   /api/students/{id}/invoices              Record an invoice

  Transactions:
    POST   /api/transactions/{id}/void              Void a transaction

  Verification:
    GET    /api/verification/runs                   Recent scheduled sweeps
    POST   /api/verification/runs                   Run a sweep now

  Scenarios:
    GET    /api/scenarios                           List demo scenarios
    POST   /api/scenarios/load                      Load a demo scenario

  GET    /api/health

DATES:
  Query dates are YYYY-MM-DD. When both start and end (or cutoff) are
  omitted, the current accounting period is used.

ACTOR:
  The X-Actor-ID header names who is acting; it is recorded on audit
  entries. Requests without it are attributed to "api".

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, inverted ranges (when rejected)
  - 404: Student or transaction not found
  - 409: Conflict (duplicate transaction or invoice ID)
  - 500: Store failures

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/fee-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the write side the API needs. The memory, SQLite and Postgres
// stores all satisfy it.
type Store interface {
	StudentLister
	SaveStudent(ctx context.Context, st ledger.Student) error
	Exists(ctx context.Context, id ledger.SubjectID) (bool, error)
	RecordTransaction(ctx context.Context, tx ledger.Transaction) error
	RecordTransactions(ctx context.Context, txs []ledger.Transaction) error
	VoidTransaction(ctx context.Context, id ledger.TransactionID) error
	RecordInvoice(ctx context.Context, inv ledger.Invoice) error
	RecordInvoices(ctx context.Context, invs []ledger.Invoice) error
}

// ActorHeader carries the acting user for audit entries.
const ActorHeader = "X-Actor-ID"

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Engine  *ledger.Engine
	Periods ledger.PeriodConfig
	Logger  *slog.Logger

	// Scheduler is optional; without it the run endpoints report no runs.
	Scheduler *VerificationScheduler

	// Now stamps CreatedAt on recorded transactions. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler creates a new handler over the given store and engine.
func NewHandler(store Store, engine *ledger.Engine, periods ledger.PeriodConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:   store,
		Engine:  engine,
		Periods: periods,
		Logger:  logger,
		Now:     time.Now,
	}
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, st := range students {
		dtos[i] = NewStudentDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent creates or updates a student.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	st := ledger.Student{ID: ledger.SubjectID(req.ID), Name: req.Name, Email: req.Email}
	if err := h.Store.SaveStudent(r.Context(), st); err != nil {
		writeLedgerError(w, "Failed to save student", err)
		return
	}

	writeJSON(w, http.StatusCreated, NewStudentDTO(st))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetOpeningBalance returns the balance carried into the cutoff date.
func (h *Handler) GetOpeningBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubjectID(chi.URLParam(r, "id"))

	cutoff, err := h.dateParam(r, "cutoff")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cutoff", err)
		return
	}

	balance, err := h.Engine.CalculateOpeningBalance(r.Context(), id, cutoff)
	if err != nil {
		writeLedgerError(w, "Failed to calculate opening balance", err)
		return
	}

	writeJSON(w, http.StatusOK, OpeningBalanceDTO{
		StudentID:      string(id),
		Cutoff:         cutoff.String(),
		OpeningBalance: NewAmountDTO(balance),
	})
}

// GetLedger returns the running-balance ledger for a period.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubjectID(chi.URLParam(r, "id"))

	period, err := h.periodParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	entries, err := h.Engine.GenerateLedger(r.Context(), id, period.Start, period.End)
	if err != nil {
		writeLedgerError(w, "Failed to generate ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, NewLedgerDTO(id, period, entries))
}

// GetReconciliation compares the ledger with invoices for a period.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubjectID(chi.URLParam(r, "id"))

	period, err := h.periodParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	result, err := h.Engine.Reconcile(r.Context(), id, period.Start, period.End)
	if err != nil {
		writeLedgerError(w, "Failed to reconcile", err)
		return
	}

	writeJSON(w, http.StatusOK, NewReconciliationDTO(result))
}

// VerifyOpeningBalance checks the opening balance against its snapshot,
// establishing the snapshot on first use.
func (h *Handler) VerifyOpeningBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubjectID(chi.URLParam(r, "id"))

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	periodStart := h.currentPeriod().Start
	if req.PeriodStart != "" {
		d, err := ledger.ParseDate(req.PeriodStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period_start", err)
			return
		}
		periodStart = d
	}

	result, err := h.Engine.VerifyOpeningBalance(r.Context(), id, periodStart)
	if err != nil {
		writeLedgerError(w, "Failed to verify opening balance", err)
		return
	}

	writeJSON(w, http.StatusOK, NewVerificationDTO(result))
}

// =============================================================================
// TRANSACTION AND INVOICE HANDLERS
// =============================================================================

// RecordTransaction records a transaction for a student.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubjectID(chi.URLParam(r, "id"))

	var req RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	typ, err := ledger.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid type", err)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	if !h.requireStudent(w, r.Context(), id) {
		return
	}

	tx := ledger.Transaction{
		ID:          ledger.TransactionID(req.ID),
		SubjectID:   id,
		Type:        typ,
		Amount:      amount,
		Date:        date,
		CreatedAt:   h.now().UTC(),
		Description: req.Description,
		Reference:   req.Reference,
	}
	if tx.ID == "" {
		tx.ID = ledger.TransactionID(uuid.NewString())
	}

	if err := h.Store.RecordTransaction(r.Context(), tx); err != nil {
		writeLedgerError(w, "Failed to record transaction", err)
		return
	}

	h.Logger.Info("transaction recorded",
		"student_id", id, "transaction_id", tx.ID, "type", tx.Type, "amount", tx.Amount.String(),
		"actor", ledger.ActorFrom(r.Context()))
	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// VoidTransaction marks a transaction voided. Voided rows are kept but
// ignored by every computation.
func (h *Handler) VoidTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))

	if err := h.Store.VoidTransaction(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to void transaction", err)
		return
	}

	h.Logger.Info("transaction voided", "transaction_id", id, "actor", ledger.ActorFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "voided", "id": string(id)})
}

// RecordInvoice records an invoice for a student.
func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubjectID(chi.URLParam(r, "id"))

	var req RecordInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := ledger.ParseDate(req.InvoiceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice_date (use YYYY-MM-DD)", err)
		return
	}

	if !h.requireStudent(w, r.Context(), id) {
		return
	}

	inv := ledger.Invoice{
		ID:          req.ID,
		SubjectID:   id,
		Amount:      amount,
		InvoiceDate: date,
		Status:      ledger.InvoiceStatus(req.Status),
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}

	if err := h.Store.RecordInvoice(r.Context(), inv); err != nil {
		writeLedgerError(w, "Failed to record invoice", err)
		return
	}

	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// =============================================================================
// VERIFICATION RUNS
// =============================================================================

// ListVerificationRuns returns recent scheduled sweeps, newest first.
func (h *Handler) ListVerificationRuns(w http.ResponseWriter, r *http.Request) {
	dtos := []VerificationRunDTO{}
	if h.Scheduler != nil {
		for _, run := range h.Scheduler.Runs() {
			dtos = append(dtos, NewVerificationRunDTO(run))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerVerification runs a sweep synchronously.
func (h *Handler) TriggerVerification(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Verification scheduler is not configured", nil)
		return
	}
	run := h.Scheduler.RunNow(r.Context())
	writeJSON(w, http.StatusOK, NewVerificationRunDTO(run))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// withActor copies the X-Actor-ID header into the request context.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(ActorHeader)
		if actor == "" {
			actor = "api"
		}
		next.ServeHTTP(w, r.WithContext(ledger.WithActor(r.Context(), actor)))
	})
}

func (h *Handler) requireStudent(w http.ResponseWriter, ctx context.Context, id ledger.SubjectID) bool {
	ok, err := h.Store.Exists(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up student", err)
		return false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Student not found", &ledger.NotFoundError{SubjectID: id})
		return false
	}
	return true
}

// dateParam reads a single date query parameter, defaulting to the start of
// the current period.
func (h *Handler) dateParam(r *http.Request, name string) (ledger.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return h.currentPeriod().Start, nil
	}
	return ledger.ParseDate(v)
}

// periodParams reads start and end. Both or neither must be given.
func (h *Handler) periodParams(r *http.Request) (ledger.Period, error) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" && end == "" {
		return h.currentPeriod(), nil
	}
	if start == "" || end == "" {
		return ledger.Period{}, errors.New("start and end must be given together")
	}

	s, err := ledger.ParseDate(start)
	if err != nil {
		return ledger.Period{}, err
	}
	e, err := ledger.ParseDate(end)
	if err != nil {
		return ledger.Period{}, err
	}
	return ledger.Period{Start: s, End: e}, nil
}

func (h *Handler) currentPeriod() ledger.Period {
	return h.Periods.PeriodFor(ledger.DateOf(h.now()))
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger error classes onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsConflict(err):
		status = http.StatusConflict
	case ledger.IsClientError(err):
		status = http.StatusBadRequest
	}
	writeError(w, status, message, err)
}
