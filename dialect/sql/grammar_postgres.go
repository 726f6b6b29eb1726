package sql

import (
	"strconv"
	"strings"
)

// PostgresGrammar renders SQL for PostgreSQL: double-quoted identifiers,
// ordinal "$n" placeholders and INSERT ... RETURNING for generated keys.
//
// Compilation runs through the shared "?" core and rebinds the final
// string once, so placeholder numbering always matches binding order.
type PostgresGrammar struct {
	grammar
}

// NewPostgres returns the PostgreSQL grammar.
func NewPostgres() *PostgresGrammar {
	return &PostgresGrammar{grammar{name: "postgres", quote: `"`}}
}

// SupportsReturning reports that generated keys are fetched with
// INSERT ... RETURNING.
func (g *PostgresGrammar) SupportsReturning() bool { return true }

// BoolLiteral renders booleans as true/false for debug echo.
func (g *PostgresGrammar) BoolLiteral(v bool) string {
	return strconv.FormatBool(v)
}

// CompileSelect renders a SELECT with $n placeholders.
func (g *PostgresGrammar) CompileSelect(b *Builder) (string, []any) {
	sql, args := g.compileSelect(b)
	return rebind(sql), args
}

// CompileInsert renders an INSERT with $n placeholders.
func (g *PostgresGrammar) CompileInsert(table string, rows []map[string]any, returning string) (string, []any) {
	sql, args := g.compileInsert(table, rows, returning)
	return rebind(sql), args
}

// CompileUpdate renders an UPDATE with $n placeholders.
func (g *PostgresGrammar) CompileUpdate(b *Builder, values map[string]any) (string, []any) {
	sql, args := g.compileUpdate(b, values)
	return rebind(sql), args
}

// CompileDelete renders a DELETE with $n placeholders.
func (g *PostgresGrammar) CompileDelete(b *Builder) (string, []any) {
	sql, args := g.compileDelete(b)
	return rebind(sql), args
}

// rebind replaces each "?" with its ordinal "$n" placeholder.
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			sb.WriteByte(query[i])
			continue
		}
		n++
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}

var _ Grammar = (*PostgresGrammar)(nil)
