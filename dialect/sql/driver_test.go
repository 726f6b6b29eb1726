package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return OpenDB("sqlite", db), mock
}

func TestDriverQueryScanMaps(t *testing.T) {
	drv, mock := mockDriver(t)
	mock.ExpectQuery(`SELECT * FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("ana")).
			AddRow(int64(2), "bo"))

	var rows Rows
	require.NoError(t, drv.Query(context.Background(), `SELECT * FROM "users"`, []any{}, &rows))
	out, err := ScanMaps(&rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// []byte cells come back as strings.
	assert.Equal(t, map[string]any{"id": int64(1), "name": "ana"}, out[0])
	assert.Equal(t, map[string]any{"id": int64(2), "name": "bo"}, out[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverExecResult(t *testing.T) {
	drv, mock := mockDriver(t)
	mock.ExpectExec(`UPDATE "users" SET "name" = ? WHERE "id" = ?`).
		WithArgs("ana", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var res Result
	require.NoError(t, drv.Exec(context.Background(), `UPDATE "users" SET "name" = ? WHERE "id" = ?`, []any{"ana", 1}, &res))
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverExecRejectsBadArgType(t *testing.T) {
	drv, _ := mockDriver(t)
	err := drv.Exec(context.Background(), "DELETE FROM x", "not-a-slice", nil)
	assert.Error(t, err)
}

func TestDriverTx(t *testing.T) {
	drv, mock := mockDriver(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "logs" ("msg") VALUES (?)`).
		WithArgs("hi").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), `INSERT INTO "logs" ("msg") VALUES (?)`, []any{"hi"}, nil))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverTxRollback(t *testing.T) {
	drv, mock := mockDriver(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverDialectStripsSuffix(t *testing.T) {
	assert.Equal(t, "sqlite", NewDriver("sqlite3", Conn{}).Dialect())
	assert.Equal(t, "postgres", NewDriver("postgres-replica", Conn{}).Dialect())
	assert.Equal(t, "mysql", NewDriver("mysql", Conn{}).Dialect())
}
