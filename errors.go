package quarry

import (
	"errors"
	"fmt"

	"github.com/quarrydb/quarry/dialect/sql"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("quarry: record not found")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("quarry: cannot start a transaction within a transaction")

	// ErrRecordGone is returned when an operation is attempted on a
	// hard-deleted record.
	ErrRecordGone = errors.New("quarry: record was deleted")
)

// Constraint and query-construction errors originate in dialect/sql and
// are re-exported so callers only need this package.
type (
	// ConstraintError is a unique or foreign-key violation surfaced from storage.
	ConstraintError = sql.ConstraintError
	// InvalidQueryError is a query-construction error raised at builder-call time.
	InvalidQueryError = sql.InvalidQueryError
)

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool { return sql.IsConstraintError(err) }

// IsInvalidQuery returns true if the error is an InvalidQueryError.
func IsInvalidQuery(err error) bool { return sql.IsInvalidQuery(err) }

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("quarry: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("quarry: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the record label.
func (e *NotFoundError) Label() string { return e.label }

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any { return e.id }

// NewNotFoundError returns a new NotFoundError for the given record type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was
// searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// MassAssignmentError reports a key outside the fillable/guarded
// whitelist supplied to Fill.
type MassAssignmentError struct {
	Model string
	Key   string
}

// Error returns the error string.
func (e *MassAssignmentError) Error() string {
	return fmt.Sprintf("quarry: mass assignment of %q rejected on %s", e.Key, e.Model)
}

// IsMassAssignment returns true if the error is a MassAssignmentError.
func IsMassAssignment(err error) bool {
	if err == nil {
		return false
	}
	var e *MassAssignmentError
	return errors.As(err, &e)
}

// RelationError reports a named eager-load path with no matching resolver
// registered on the record type.
type RelationError struct {
	Model    string
	Relation string
}

// Error returns the error string.
func (e *RelationError) Error() string {
	return fmt.Sprintf("quarry: relation %q is not configured on %s", e.Relation, e.Model)
}

// IsRelationError returns true if the error is a RelationError.
func IsRelationError(err error) bool {
	if err == nil {
		return false
	}
	var e *RelationError
	return errors.As(err, &e)
}

// TxError wraps a failure raised inside a transaction callback. The
// original error is preserved; a failed rollback is joined to it.
type TxError struct {
	Err error
}

// Error returns the error string.
func (e *TxError) Error() string {
	return fmt.Sprintf("quarry: transaction failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TxError) Unwrap() error { return e.Err }

// IsTxError returns true if the error is a TxError.
func IsTxError(err error) bool {
	if err == nil {
		return false
	}
	var e *TxError
	return errors.As(err, &e)
}

// CastError wraps a failure raised by a custom caster. Built-in cast
// failures never raise; they degrade to an absent value.
type CastError struct {
	Key string
	Err error
}

// Error returns the error string.
func (e *CastError) Error() string {
	return fmt.Sprintf("quarry: cast failed for %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CastError) Unwrap() error { return e.Err }
