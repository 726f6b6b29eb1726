package quarry

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAllHydratesRecords(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	mock.ExpectQuery(`SELECT * FROM "users" WHERE "active" = ?`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "ana").
			AddRow(int64(2), "bo"))

	recs, err := m.Query(conn).WhereEq("active", 1).All(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Exists())
	assert.True(t, recs[0].Clean())
	assert.Equal(t, "bo", recs[1].GetString("name"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFirstLimitsAndFailsWhenEmpty(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	mock.ExpectQuery(`SELECT * FROM "users" WHERE "email" = ? LIMIT 1`).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := m.Query(conn).WhereEq("email", "ghost@example.com").First(context.Background())
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFind(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	mock.ExpectQuery(`SELECT * FROM "users" WHERE "id" = ? LIMIT 1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "ana"))

	r, err := m.Query(conn).Find(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.Key())

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "id" = ? LIMIT 1`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = m.Query(conn).Find(context.Background(), 8)
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, 8, nfe.ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCountStripsOrderingAndLimit(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	mock.ExpectQuery(`SELECT COUNT(*) AS aggregate FROM "users" WHERE "active" = ?`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(int64(3)))

	q := m.Query(conn).WhereEq("active", 1).OrderBy("name").Limit(5)
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// The original query state survives the aggregate.
	query, _ := conn.Grammar().CompileSelect(q.Builder())
	assert.Contains(t, query, "ORDER BY")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryNumericAggregates(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("Order")
	mock.ExpectQuery(`SELECT SUM("total") AS aggregate FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(99.5))
	sum, err := m.Query(conn).Sum(context.Background(), "total")
	require.NoError(t, err)
	assert.Equal(t, 99.5, sum)

	mock.ExpectQuery(`SELECT MAX("total") AS aggregate FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(int64(70)))
	max, err := m.Query(conn).Max(context.Background(), "total")
	require.NoError(t, err)
	assert.Equal(t, int64(70), max)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryExists(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	mock.ExpectQuery(`SELECT COUNT(*) AS aggregate FROM "users" WHERE "role" = ?`).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(int64(0)))

	ok, err := m.Query(conn).WhereEq("role", "admin").Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryValueAndPluck(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	mock.ExpectQuery(`SELECT "email" FROM "users" WHERE "id" = ? LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("ana@example.com"))

	v, err := m.Query(conn).WhereEq("id", 1).Value(context.Background(), "email")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", v)

	mock.ExpectQuery(`SELECT "email" FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("a@x.com").AddRow("b@x.com"))
	vals, err := m.Query(conn).Pluck(context.Background(), "email")
	require.NoError(t, err)
	assert.Equal(t, []any{"a@x.com", "b@x.com"}, vals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryBulkUpdateBypassesLifecycle(t *testing.T) {
	conn, mock := newMockConn(t)
	saving := 0
	m := NewModel("User").Saving(func(context.Context, *Record) bool { saving++; return true })

	mock.ExpectExec(`UPDATE "users" SET "active" = ? WHERE "last_seen" < ?`).
		WithArgs(0, "2025-01-01").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := m.Query(conn).Where("last_seen", "<", "2025-01-01").
		Update(context.Background(), map[string]any{"active": 0})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Zero(t, saving)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryBulkDelete(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("Session")
	mock.ExpectExec(`DELETE FROM "sessions" WHERE "expired" = ?`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 9))

	n, err := m.Query(conn).WhereEq("expired", 1).Delete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestQueryBulkInsert(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("Tag")
	mock.ExpectExec(`INSERT INTO "tags" ("name") VALUES (?), (?)`).
		WithArgs("go", "sql").
		WillReturnResult(sqlmock.NewResult(2, 2))

	err := m.Query(conn).InsertAll(context.Background(), []map[string]any{
		{"name": "go"},
		{"name": "sql"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryInsertGetID(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("Tag")
	mock.ExpectExec(`INSERT INTO "tags" ("name") VALUES (?)`).
		WithArgs("go").
		WillReturnResult(sqlmock.NewResult(11, 1))

	id, err := m.Query(conn).InsertGetID(context.Background(), map[string]any{"name": "go"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
}

func TestQueryCloneDiverges(t *testing.T) {
	conn, _ := newMockConn(t)
	m := NewModel("User")
	q := m.Query(conn).WhereEq("active", 1)
	c := q.Clone().WhereEq("role", "admin")

	qSQL, _ := conn.Grammar().CompileSelect(q.Builder())
	cSQL, _ := conn.Grammar().CompileSelect(c.Builder())
	assert.NotContains(t, qSQL, "role")
	assert.Contains(t, cSQL, "role")
}

func TestQueryWithUnknownRelation(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	mock.ExpectQuery(`SELECT * FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	_, err := m.Query(conn).With("ghosts").All(context.Background())
	var re *RelationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ghosts", re.Relation)
}

func TestQueryWhereGroup(t *testing.T) {
	conn, _ := newMockConn(t)
	m := NewModel("User")
	q := m.Query(conn).WhereEq("active", 1).WhereGroup(func(g *Query) {
		g.WhereEq("role", "admin").OrWhere("role", "=", "editor")
	})
	query, args := conn.Grammar().CompileSelect(q.Builder())
	assert.Equal(t, `SELECT * FROM "users" WHERE "active" = ? AND ("role" = ? OR "role" = ?)`, query)
	assert.Equal(t, []any{1, "admin", "editor"}, args)
}

func TestQueryRememberServesFromCache(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	cache := NewMemoryCache()

	// Only one storage round-trip is expected for two identical reads.
	mock.ExpectQuery(`SELECT * FROM "users" WHERE "active" = ?`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ana"))

	for i := 0; i < 2; i++ {
		recs, err := m.Query(conn).WhereEq("active", 1).
			Remember(cache, 0).
			All(context.Background())
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "ana", recs[0].GetString("name"))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
