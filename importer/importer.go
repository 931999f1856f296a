// Package importer loads transactions and invoices from CSV exports.
//
// Transaction files carry the header
//
//	id,student_id,type,amount,date,created_at,voided,description,reference
//
// and invoice files
//
//	id,student_id,amount,invoice_date,status
//
// Columns are matched by header name, so order is free and created_at,
// voided, description, reference and status may be omitted. Amounts are
// major-unit decimals ("1250.00"). A file is imported all-or-nothing: every
// row is parsed and validated first, and any failure rejects the whole file
// with one error per offending line.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/fee-ledger/ledger"
)

// Target receives parsed rows. The memory, SQLite and Postgres stores all
// satisfy it. Each call must be atomic, creating unknown students in the
// same write as the rows.
type Target interface {
	ImportTransactions(ctx context.Context, txs []ledger.Transaction) error
	ImportInvoices(ctx context.Context, invs []ledger.Invoice) error
}

// LineError ties a parse failure to its 1-based line in the file.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// Summary reports what an import recorded.
type Summary struct {
	Rows     int
	Students int
}

// Importer parses CSV files and records them through a Target.
type Importer struct {
	Target Target
	Logger *slog.Logger

	// Now stamps rows without created_at. Defaults to time.Now.
	Now func() time.Time
}

func New(target Target, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{Target: target, Logger: logger, Now: time.Now}
}

// ImportTransactions parses r and records every row in one batch.
func (im *Importer) ImportTransactions(ctx context.Context, r io.Reader) (Summary, error) {
	txs, err := ParseTransactions(r, im.now())
	if err != nil {
		return Summary{}, err
	}

	students := len(ledger.TransactionSubjects(txs))
	if len(txs) > 0 {
		if err := im.Target.ImportTransactions(ctx, txs); err != nil {
			return Summary{}, fmt.Errorf("record transactions: %w", err)
		}
	}

	im.Logger.InfoContext(ctx, "transactions imported", "rows", len(txs), "students", students)
	return Summary{Rows: len(txs), Students: students}, nil
}

// ImportInvoices parses r and records every row in one batch.
func (im *Importer) ImportInvoices(ctx context.Context, r io.Reader) (Summary, error) {
	invs, err := ParseInvoices(r)
	if err != nil {
		return Summary{}, err
	}

	students := len(ledger.InvoiceSubjects(invs))
	if len(invs) > 0 {
		if err := im.Target.ImportInvoices(ctx, invs); err != nil {
			return Summary{}, fmt.Errorf("record invoices: %w", err)
		}
	}

	im.Logger.InfoContext(ctx, "invoices imported", "rows", len(invs), "students", students)
	return Summary{Rows: len(invs), Students: students}, nil
}

func (im *Importer) now() time.Time {
	if im.Now != nil {
		return im.Now()
	}
	return time.Now()
}

// =============================================================================
// PARSING
// =============================================================================

var (
	transactionColumns = []string{"id", "student_id", "type", "amount", "date"}
	invoiceColumns     = []string{"id", "student_id", "amount", "invoice_date"}
)

// ParseTransactions reads a transaction file. Rows without created_at are
// stamped from now, one microsecond apart in file order, so same-day rows
// replay in the order they appear.
func ParseTransactions(r io.Reader, now time.Time) ([]ledger.Transaction, error) {
	rows, err := readRows(r, transactionColumns)
	if err != nil {
		return nil, err
	}

	var (
		txs  []ledger.Transaction
		errs []error
		seen = make(map[ledger.TransactionID]int)
	)
	for i, row := range rows {
		tx, err := parseTransactionRow(row, now.Add(time.Duration(i)*time.Microsecond))
		if err == nil {
			if first, dup := seen[tx.ID]; dup {
				err = fmt.Errorf("%w: id %q also on line %d", ledger.ErrDuplicateTransaction, tx.ID, first)
			} else {
				seen[tx.ID] = row.line
			}
		}
		if err != nil {
			errs = append(errs, &LineError{Line: row.line, Err: err})
			continue
		}
		txs = append(txs, tx)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return txs, nil
}

func parseTransactionRow(row row, fallbackCreated time.Time) (ledger.Transaction, error) {
	typ, err := ledger.ParseTransactionType(row.get("type"))
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := ledger.ParseMoney(row.get("amount"))
	if err != nil {
		return ledger.Transaction{}, &ledger.ValidationError{Field: "amount", Value: row.get("amount"), Reason: "expected a decimal amount"}
	}
	date, err := ledger.ParseDate(row.get("date"))
	if err != nil {
		return ledger.Transaction{}, err
	}

	createdAt := fallbackCreated.UTC()
	if v := row.get("created_at"); v != "" {
		createdAt, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return ledger.Transaction{}, &ledger.ValidationError{Field: "created_at", Value: v, Reason: "expected RFC3339"}
		}
	}

	voided := false
	if v := row.get("voided"); v != "" {
		voided, err = strconv.ParseBool(v)
		if err != nil {
			return ledger.Transaction{}, &ledger.ValidationError{Field: "voided", Value: v, Reason: "expected true or false"}
		}
	}

	tx := ledger.Transaction{
		ID:          ledger.TransactionID(row.get("id")),
		SubjectID:   ledger.SubjectID(row.get("student_id")),
		Type:        typ,
		Amount:      amount,
		Date:        date,
		CreatedAt:   createdAt,
		Voided:      voided,
		Description: row.get("description"),
		Reference:   row.get("reference"),
	}
	if tx.ID == "" {
		tx.ID = ledger.TransactionID(uuid.NewString())
	}
	return tx, tx.Validate()
}

// ParseInvoices reads an invoice file.
func ParseInvoices(r io.Reader) ([]ledger.Invoice, error) {
	rows, err := readRows(r, invoiceColumns)
	if err != nil {
		return nil, err
	}

	var (
		invs []ledger.Invoice
		errs []error
		seen = make(map[string]int)
	)
	for _, row := range rows {
		inv, err := parseInvoiceRow(row)
		if err == nil {
			if first, dup := seen[inv.ID]; dup {
				err = fmt.Errorf("%w: id %q also on line %d", ledger.ErrDuplicateTransaction, inv.ID, first)
			} else {
				seen[inv.ID] = row.line
			}
		}
		if err != nil {
			errs = append(errs, &LineError{Line: row.line, Err: err})
			continue
		}
		invs = append(invs, inv)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return invs, nil
}

func parseInvoiceRow(row row) (ledger.Invoice, error) {
	amount, err := ledger.ParseMoney(row.get("amount"))
	if err != nil {
		return ledger.Invoice{}, &ledger.ValidationError{Field: "amount", Value: row.get("amount"), Reason: "expected a decimal amount"}
	}
	date, err := ledger.ParseDate(row.get("invoice_date"))
	if err != nil {
		return ledger.Invoice{}, err
	}

	inv := ledger.Invoice{
		ID:          row.get("id"),
		SubjectID:   ledger.SubjectID(row.get("student_id")),
		Amount:      amount,
		InvoiceDate: date,
		Status:      ledger.InvoiceStatus(strings.ToUpper(row.get("status"))),
	}
	return inv, inv.Validate()
}

// =============================================================================
// CSV
// =============================================================================

type row struct {
	line   int
	fields map[string]string
}

func (r row) get(col string) string { return strings.TrimSpace(r.fields[col]) }

// readRows reads a header plus data rows, requiring the given columns.
// Blank lines are skipped by encoding/csv.
func readRows(r io.Reader, required []string) ([]row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ledger.ValidationError{Field: "header", Reason: "file is empty"}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ledger.ValidationError{Field: "header", Value: strings.Join(header, ","),
			Reason: "missing columns " + strings.Join(missing, ", ")}
	}

	var rows []row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &LineError{Line: pe.StartLine, Err: pe.Err}
			}
			return nil, err
		}
		line, _ := reader.FieldPos(0)

		fields := make(map[string]string, len(index))
		for name, i := range index {
			if i < len(record) {
				fields[name] = record[i]
			}
		}
		rows = append(rows, row{line: line, fields: fields})
	}
	return rows, nil
}
