package sql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/quarrydb/quarry/dialect"
)

// InvalidQueryError reports a query-construction error detected at
// builder-call time, such as an unsupported operator. Builder methods
// panic with it immediately instead of deferring to render time.
type InvalidQueryError struct {
	Reason string
}

// Error returns the error string.
func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("quarry: invalid query construction: %s", e.Reason)
}

// IsInvalidQuery returns true if the error is an InvalidQueryError.
func IsInvalidQuery(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidQueryError
	return errors.As(err, &e)
}

// ConstraintError represents a unique or foreign-key violation surfaced
// from storage. Violations are never pre-validated locally; they are
// detected from the driver error and re-raised in a dialect-independent
// form that still unwraps to the original.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("quarry: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying driver error.
func (e *ConstraintError) Unwrap() error { return e.wrap }

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// ConvertError inspects a driver error and converts recognizable
// constraint violations to *ConstraintError. Unrecognized errors are
// returned unchanged; storage failures are never swallowed.
func ConvertError(dialectName string, err error) error {
	if err == nil {
		return nil
	}
	switch dialectName {
	case dialect.Postgres:
		var pqe *pq.Error
		// Class 23 covers integrity constraint violations.
		if errors.As(err, &pqe) && strings.HasPrefix(string(pqe.Code), "23") {
			return &ConstraintError{msg: pqe.Message, wrap: err}
		}
	case dialect.MySQL:
		var mye *mysql.MySQLError
		if errors.As(err, &mye) {
			switch mye.Number {
			case 1062, 1451, 1452, 1557, 1586, 1761, 1762:
				return &ConstraintError{msg: mye.Message, wrap: err}
			}
		}
	case dialect.SQLite:
		// modernc.org/sqlite and mattn/go-sqlite3 both embed the literal
		// "constraint" in their violation messages.
		if strings.Contains(strings.ToLower(err.Error()), "constraint") {
			return &ConstraintError{msg: err.Error(), wrap: err}
		}
	}
	return err
}

// GrammarFor returns the grammar matching the given dialect name.
func GrammarFor(dialectName string) (Grammar, error) {
	switch {
	case strings.HasPrefix(dialectName, dialect.Postgres):
		return NewPostgres(), nil
	case strings.HasPrefix(dialectName, dialect.MySQL):
		return NewMySQL(), nil
	case strings.HasPrefix(dialectName, dialect.SQLite):
		return NewSQLite(), nil
	default:
		return nil, fmt.Errorf("quarry: unsupported dialect %q", dialectName)
	}
}
