package quarry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewModelDefaults(t *testing.T) {
	m := NewModel("OrderItem")
	assert.Equal(t, "order_items", m.TableName())
	assert.Equal(t, "id", m.KeyName())

	m = NewModel("Person").Table("people").PrimaryKey("person_id")
	assert.Equal(t, "people", m.TableName())
	assert.Equal(t, "person_id", m.KeyName())
}

func TestGlobalScopesApplyInSortedNameOrder(t *testing.T) {
	conn, _ := newMockConn(t)
	m := NewModel("Post").
		Scope("b_published", func(q *Query) { q.WhereEq("published", 1) }).
		Scope("a_tenant", func(q *Query) { q.WhereEq("tenant_id", 7) })

	q := m.Query(conn)
	query, args := conn.Grammar().CompileSelect(q.Builder())
	assert.Equal(t, `SELECT * FROM "posts" WHERE "tenant_id" = ? AND "published" = ?`, query)
	assert.Equal(t, []any{7, 1}, args)
}

func TestWithoutScopeSkipsByName(t *testing.T) {
	conn, _ := newMockConn(t)
	m := NewModel("Post").
		Scope("published", func(q *Query) { q.WhereEq("published", 1) }).
		Scope("tenant", func(q *Query) { q.WhereEq("tenant_id", 7) })

	q := m.Query(conn, WithoutScope("published"))
	query, args := conn.Grammar().CompileSelect(q.Builder())
	assert.Equal(t, `SELECT * FROM "posts" WHERE "tenant_id" = ?`, query)
	assert.Equal(t, []any{7}, args)

	q = m.Query(conn, WithoutScopes())
	query, _ = conn.Grammar().CompileSelect(q.Builder())
	assert.Equal(t, `SELECT * FROM "posts"`, query)
}

func TestSoftDeleteScopeShapesQueries(t *testing.T) {
	conn, _ := newMockConn(t)
	m := NewModel("Post").Use(&SoftDeletes{})

	q := m.Query(conn)
	query, _ := conn.Grammar().CompileSelect(q.Builder())
	assert.Equal(t, `SELECT * FROM "posts" WHERE "posts"."deleted_at" IS NULL`, query)

	q = m.Query(conn, WithTrashed())
	query, _ = conn.Grammar().CompileSelect(q.Builder())
	assert.Equal(t, `SELECT * FROM "posts"`, query)
}

func TestUseInstallsCapability(t *testing.T) {
	m := NewModel("User").Use(&Timestamps{})
	_, ok := m.capability("timestamps")
	assert.True(t, ok)
	_, ok = m.capability("uuid_key")
	assert.False(t, ok)
	// Install registered the datetime casts.
	assert.Contains(t, m.casts, "created_at")
	assert.Contains(t, m.casts, "updated_at")
}
