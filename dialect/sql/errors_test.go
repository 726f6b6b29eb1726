package sql

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertErrorPostgres(t *testing.T) {
	src := &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "users_email_key"`}
	err := ConvertError("postgres", src)
	require.True(t, IsConstraintError(err))
	assert.ErrorIs(t, err, src)

	// Non-constraint classes pass through unchanged.
	other := &pq.Error{Code: "42703", Message: "column does not exist"}
	assert.Equal(t, error(other), ConvertError("postgres", other))
}

func TestConvertErrorMySQL(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ana@example.com'"}
	require.True(t, IsConstraintError(ConvertError("mysql", dup)))

	fk := &mysql.MySQLError{Number: 1452, Message: "a foreign key constraint fails"}
	require.True(t, IsConstraintError(ConvertError("mysql", fk)))

	gone := &mysql.MySQLError{Number: 1146, Message: "table does not exist"}
	assert.False(t, IsConstraintError(ConvertError("mysql", gone)))
}

func TestConvertErrorSQLite(t *testing.T) {
	err := ConvertError("sqlite", errors.New("UNIQUE constraint failed: users.email"))
	require.True(t, IsConstraintError(err))

	plain := errors.New("database is locked")
	assert.Equal(t, plain, ConvertError("sqlite", plain))
}

func TestConvertErrorNil(t *testing.T) {
	assert.NoError(t, ConvertError("sqlite", nil))
}

func TestConstraintErrorUnwraps(t *testing.T) {
	src := errors.New("FOREIGN KEY constraint failed")
	err := ConvertError("sqlite", src)
	assert.ErrorIs(t, err, src)
	assert.Contains(t, err.Error(), "quarry: constraint failed")
}

func TestIsInvalidQuery(t *testing.T) {
	assert.True(t, IsInvalidQuery(&InvalidQueryError{Reason: "x"}))
	assert.False(t, IsInvalidQuery(errors.New("x")))
	assert.False(t, IsInvalidQuery(nil))
}
