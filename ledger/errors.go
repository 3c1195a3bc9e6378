/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Workflow packages (consignment, trade) return these so callers can
  branch with errors.Is / errors.As regardless of which operation failed.

ERROR CATEGORIES:
  1. Validation   - bad input, rejected before any ledger call
  2. State guard  - a document is in the wrong state for the operation
  3. Not found    - a referenced record does not exist
  4. Store        - the Record Store reported a failure

  Negative stock is NOT an error: it is clamped to zero.

USAGE:
  if errors.Is(err, ledger.ErrPendingInvoices) {
      var pending *ledger.PendingInvoicesError
      errors.As(err, &pending)
      fmt.Println(pending.InvoiceNumbers)
  }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input is rejected before touching a ledger.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStoreFailure is returned when the Record Store rejects a read or write.
	ErrStoreFailure = errors.New("record store failure")

	// ErrAlreadySettled is returned when a settlement is requested for a note
	// that is no longer issued.
	ErrAlreadySettled = errors.New("delivery note already settled")

	// ErrDuplicateSettlement is returned when a settlement already references the note.
	ErrDuplicateSettlement = errors.New("settlement already exists for delivery note")

	// ErrPendingInvoices is returned when invoices linked to a note are not delivered.
	ErrPendingInvoices = errors.New("delivery note has undelivered invoices")

	// ErrLocked is returned when editing a document that left its editable state.
	ErrLocked = errors.New("document is locked")

	// ErrLinkedToInvoice is returned when a note is referenced by sales invoices.
	ErrLinkedToInvoice = errors.New("delivery note is linked to invoices")

	// ErrIrreversible is returned when a movement has no computable inverse.
	ErrIrreversible = errors.New("movement cannot be reversed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Table Table
	ID    int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s #%d not found", e.Table, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StoreError wraps a failure reported by the Record Store.
type StoreError struct {
	Op    string
	Table Table
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

// Is matches ErrStoreFailure so callers need not know the underlying cause.
func (e *StoreError) Is(target error) bool { return target == ErrStoreFailure }

func (e *StoreError) Unwrap() error { return e.Err }

// PendingInvoicesError lists invoices that block a settlement.
type PendingInvoicesError struct {
	DeliveryNoteID int64
	InvoiceNumbers []string
}

func (e *PendingInvoicesError) Error() string {
	return fmt.Sprintf("delivery note #%d has undelivered invoices: %s",
		e.DeliveryNoteID, strings.Join(e.InvoiceNumbers, ", "))
}

func (e *PendingInvoicesError) Unwrap() error { return ErrPendingInvoices }

// LinkedError lists the invoices referencing a delivery note.
type LinkedError struct {
	DeliveryNoteID int64
	InvoiceNumbers []string
}

func (e *LinkedError) Error() string {
	return fmt.Sprintf("delivery note #%d is linked to invoices: %s",
		e.DeliveryNoteID, strings.Join(e.InvoiceNumbers, ", "))
}

func (e *LinkedError) Unwrap() error { return ErrLinkedToInvoice }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsStateGuard returns true if err is one of the document state guards.
func IsStateGuard(err error) bool {
	return errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrDuplicateSettlement) ||
		errors.Is(err, ErrPendingInvoices) ||
		errors.Is(err, ErrLocked) ||
		errors.Is(err, ErrLinkedToInvoice)
}

// IsClientError returns true if the error is due to invalid client input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrIrreversible) || IsStateGuard(err)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
