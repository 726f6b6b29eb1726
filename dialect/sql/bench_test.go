package sql

import (
	"testing"
)

func BenchmarkCompileSelect(b *testing.B) {
	g := NewSQLite()
	builder := NewBuilder(g, "users").
		Select("id", "name", "email").
		WhereEq("active", 1).
		WhereIn("role", "admin", "editor", "viewer").
		OrderBy("name").
		Limit(50)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.CompileSelect(builder)
	}
}

func BenchmarkCompileSelectPostgres(b *testing.B) {
	g := NewPostgres()
	builder := NewBuilder(g, "users").
		WhereEq("active", 1).
		WhereIn("id", 1, 2, 3, 4, 5)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.CompileSelect(builder)
	}
}

func BenchmarkCompileInsert(b *testing.B) {
	g := NewSQLite()
	row := map[string]any{"name": "ana", "email": "ana@example.com", "active": 1}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.CompileInsert("users", []map[string]any{row}, "")
	}
}
