/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built student accounts that show specific ledger
	behaviour. Each scenario creates one student plus the transactions and
	invoices that exercise a feature of the engine.

AVAILABLE SCENARIOS:

	fees-and-receipts: Two fees, two receipts, 400.00 carried into 2025
	reversal:          A late fee posted in error, then reversed
	overpaid:          Receipts exceed fees; the opening balance floors at zero
	out-of-balance:    Invoices disagree with the ledger by 50.00

HOW SCENARIOS WORK:
 1. Save the demo student (ID "demo-<scenario>")
 2. Record its transactions in one batch
 3. Record its invoices in one batch

All dates are fixed in 2024 and 2025 so results never drift. Fees are
posted as CREDIT rows and receipts as DEBIT rows, following the engine's
sign rule.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fees-and-receipts"}

NOTE:

	Scenarios never reset data. Loading the same scenario twice fails with
	409 because its record IDs are already taken.

SEE ALSO:
  - handlers.go: Store interface used to record the data
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/warp/fee-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	build func() scenarioData
}

type scenarioData struct {
	student  ledger.Student
	txs      []ledger.Transaction
	invoices []ledger.Invoice
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fees-and-receipts",
			Name:        "Fees and Receipts",
			Description: "1500.00 billed and 1100.00 received in 2024; 2025 opens at 400.00 and reconciles",
		},
		build: feesAndReceipts,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "reversal",
			Name:        "Reversed Fee",
			Description: "A late fee posted in error is reversed; the ledger shows both rows",
		},
		build: reversedFee,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overpaid",
			Name:        "Overpaid Account",
			Description: "Receipts exceed fees; balances floor at zero unless credit balances are allowed",
		},
		build: overpaid,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "out-of-balance",
			Name:        "Out of Balance",
			Description: "Invoices total 50.00 more than the ledger; reconciliation reports a mismatch",
		},
		build: outOfBalance,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario records a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	data := s.build()
	if err := h.loadScenario(r.Context(), data); err != nil {
		writeLedgerError(w, "Failed to load scenario", err)
		return
	}

	h.Logger.Info("scenario loaded", "scenario", s.ID, "student_id", data.student.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "loaded",
		"scenario":   s.ID,
		"student_id": string(data.student.ID),
	})
}

func (h *Handler) loadScenario(ctx context.Context, data scenarioData) error {
	if err := h.Store.SaveStudent(ctx, data.student); err != nil {
		return err
	}
	if err := h.Store.RecordTransactions(ctx, data.txs); err != nil {
		return err
	}
	if len(data.invoices) > 0 {
		return h.Store.RecordInvoices(ctx, data.invoices)
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoBuilder stamps IDs and creation times for one demo student.
type demoBuilder struct {
	student ledger.SubjectID
	data    scenarioData
	seq     int
}

func newDemo(id, name string) *demoBuilder {
	sid := ledger.SubjectID("demo-" + id)
	return &demoBuilder{
		student: sid,
		data: scenarioData{
			student: ledger.Student{ID: sid, Name: name},
		},
	}
}

func (b *demoBuilder) tx(typ ledger.TransactionType, amount ledger.Money, date ledger.Date, desc string) *demoBuilder {
	b.seq++
	b.data.txs = append(b.data.txs, ledger.Transaction{
		ID:          ledger.TransactionID(string(b.student) + "-tx-" + strconv.Itoa(b.seq)),
		SubjectID:   b.student,
		Type:        typ,
		Amount:      amount,
		Date:        date,
		CreatedAt:   date.Time().Add(9*time.Hour + time.Duration(b.seq)*time.Minute),
		Description: desc,
	})
	return b
}

func (b *demoBuilder) invoice(amount ledger.Money, date ledger.Date, status ledger.InvoiceStatus) *demoBuilder {
	b.data.invoices = append(b.data.invoices, ledger.Invoice{
		ID:          string(b.student) + "-inv-" + strconv.Itoa(len(b.data.invoices)+1),
		SubjectID:   b.student,
		Amount:      amount,
		InvoiceDate: date,
		Status:      status,
	})
	return b
}

func feesAndReceipts() scenarioData {
	return newDemo("fees-and-receipts", "Amara Nwosu").
		tx(ledger.TxCredit, 100000, ledger.NewDate(2024, time.January, 15), "Tuition fee, first semester").
		tx(ledger.TxCredit, 50000, ledger.NewDate(2024, time.February, 1), "Accommodation fee").
		tx(ledger.TxDebit, 60000, ledger.NewDate(2024, time.March, 1), "Receipt, bank transfer").
		tx(ledger.TxDebit, 50000, ledger.NewDate(2024, time.June, 3), "Receipt, card").
		tx(ledger.TxCredit, 80000, ledger.NewDate(2025, time.January, 13), "Tuition fee, second semester").
		invoice(120000, ledger.NewDate(2025, time.January, 13), ledger.InvoicePending).
		data
}

func reversedFee() scenarioData {
	return newDemo("reversal", "Tomasz Kowal").
		tx(ledger.TxCredit, 90000, ledger.NewDate(2024, time.September, 2), "Tuition fee").
		tx(ledger.TxCredit, 5000, ledger.NewDate(2024, time.September, 16), "Late payment fee").
		tx(ledger.TxReversal, 5000, ledger.NewDate(2024, time.September, 18), "Late fee posted in error").
		tx(ledger.TxDebit, 40000, ledger.NewDate(2024, time.September, 20), "Receipt, cheque").
		invoice(50000, ledger.NewDate(2024, time.September, 2), ledger.InvoicePartial).
		data
}

func overpaid() scenarioData {
	return newDemo("overpaid", "Lucia Ferrante").
		tx(ledger.TxCredit, 30000, ledger.NewDate(2024, time.February, 5), "Library fee").
		tx(ledger.TxDebit, 45000, ledger.NewDate(2024, time.February, 20), "Receipt, duplicate transfer").
		tx(ledger.TxCredit, 10000, ledger.NewDate(2025, time.March, 3), "Lab fee").
		invoice(10000, ledger.NewDate(2025, time.March, 3), ledger.InvoicePending).
		data
}

func outOfBalance() scenarioData {
	return newDemo("out-of-balance", "Kwame Asante").
		tx(ledger.TxCredit, 75000, ledger.NewDate(2024, time.April, 8), "Tuition fee").
		tx(ledger.TxAdjustment, 5000, ledger.NewDate(2024, time.April, 9), "Scholarship note, no balance effect").
		invoice(80000, ledger.NewDate(2024, time.April, 8), ledger.InvoicePending).
		data
}
