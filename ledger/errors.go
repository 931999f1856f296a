/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Not found     - unknown subject or transaction; never retried
  2. Store errors  - repository I/O failures; always propagated unmodified
  3. Validation    - malformed rows or inputs rejected at the boundary
  4. Conflict      - a record ID that is already taken

Business mismatches (reconciliation drift, verification discrepancy) are
NOT errors. They are reported through ReconciliationResult.Status and
VerificationResult.Status.

USAGE:
  if ledger.IsNotFound(err) { ... 404 ... }
  if ledger.IsStoreError(err) { ... 500 ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSubjectNotFound is returned when the subject does not exist.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrTransactionNotFound is returned when voiding an unknown transaction.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateTransaction is returned when a transaction or invoice ID
	// is already recorded.
	ErrDuplicateTransaction = errors.New("duplicate record id")

	// ErrInvalidTransaction is returned when a record fails validation,
	// either on input or while decoding a stored row.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInvalidPeriod is returned for inverted ranges when rejection is enabled.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrSnapshotConflict is returned when an atomic snapshot insert neither
	// inserted nor found a row.
	ErrSnapshotConflict = errors.New("snapshot conflict")

	// ErrStore marks repository failures.
	ErrStore = errors.New("store error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing subject.
type NotFoundError struct {
	SubjectID SubjectID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("subject %q not found", e.SubjectID)
}

func (e *NotFoundError) Unwrap() error { return ErrSubjectNotFound }

// StoreError wraps a repository failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidTransaction }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// storeErr wraps err as a StoreError unless it already carries one or is a
// classified domain error.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStore) || IsNotFound(err) || IsClientError(err) || IsConflict(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsNotFound returns true if the error indicates a missing subject or
// transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubjectNotFound) || errors.Is(err, ErrTransactionNotFound)
}

// IsConflict returns true if the error indicates a duplicate record.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateTransaction)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransaction) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsStoreError returns true for repository failures.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}
