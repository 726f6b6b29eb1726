package quarry

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	qsql "github.com/quarrydb/quarry/dialect/sql"
)

// newMockConn returns a sqlite-flavored connection over a sqlmock driver
// with exact statement matching.
func newMockConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn, err := NewConn(qsql.OpenDB("sqlite", db))
	require.NoError(t, err)
	return conn, mock
}

// newPostgresMockConn is newMockConn with the postgres grammar, for paths
// that diverge on RETURNING and ordinal placeholders.
func newPostgresMockConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn, err := NewConn(qsql.OpenDB("postgres", db))
	require.NoError(t, err)
	return conn, mock
}
