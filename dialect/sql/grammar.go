package sql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Grammar renders builder state into dialect-correct SQL text and an
// ordered binding list. Implementations are stateless: the same builder
// state always renders identical SQL, and the placeholder order in the
// returned SQL matches the returned bindings exactly.
type Grammar interface {
	// Dialect returns the dialect name this grammar renders for.
	Dialect() string

	// Wrap quotes an identifier. Dotted identifiers are quoted segment by
	// segment, and "expr AS alias" quotes both sides.
	Wrap(identifier string) string

	// WrapTable quotes a table reference.
	WrapTable(table string) string

	// CompileSelect renders a SELECT statement.
	CompileSelect(b *Builder) (string, []any)

	// CompileInsert renders a (possibly multi-row) INSERT. A non-empty
	// returning column is appended as a RETURNING clause on dialects that
	// support it; callers must check SupportsReturning first.
	CompileInsert(table string, rows []map[string]any, returning string) (string, []any)

	// CompileUpdate renders an UPDATE over the builder's WHERE state.
	CompileUpdate(b *Builder, values map[string]any) (string, []any)

	// CompileDelete renders a DELETE over the builder's WHERE state.
	CompileDelete(b *Builder) (string, []any)

	// PrepareBindings converts binding values to driver-safe values.
	PrepareBindings(args []any) []any

	// SupportsReturning reports whether the dialect fetches generated keys
	// with INSERT ... RETURNING instead of a last-insert-id lookup.
	SupportsReturning() bool

	// BoolLiteral renders a boolean for debug echo output.
	BoolLiteral(v bool) string
}

// grammar is the shared rendering core. Dialects configure the quote
// character and override the entry points they diverge on. All internal
// helpers emit "?" placeholders; ordinal-placeholder dialects rebind the
// final string.
type grammar struct {
	name  string
	quote string
}

func (g *grammar) Dialect() string { return g.name }

func (g *grammar) SupportsReturning() bool { return false }

func (g *grammar) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (g *grammar) PrepareBindings(args []any) []any { return args }

// Wrap quotes an identifier, handling dotted table.column references and
// "x AS y" aliasing.
func (g *grammar) Wrap(identifier string) string {
	if lower := strings.ToLower(identifier); strings.Contains(lower, " as ") {
		i := strings.Index(lower, " as ")
		return g.Wrap(identifier[:i]) + " AS " + g.wrapSegment(strings.TrimSpace(identifier[i+4:]))
	}
	segments := strings.Split(identifier, ".")
	for i, s := range segments {
		segments[i] = g.wrapSegment(s)
	}
	return strings.Join(segments, ".")
}

// WrapTable quotes a table reference.
func (g *grammar) WrapTable(table string) string { return g.Wrap(table) }

func (g *grammar) wrapSegment(s string) string {
	if s == "*" {
		return s
	}
	return g.quote + strings.ReplaceAll(s, g.quote, g.quote+g.quote) + g.quote
}

// CompileSelect renders the builder in a fixed clause sequence: columns,
// from, joins, wheres, groups, havings, orders, limit, offset, unions.
// Each clause emits its placeholders and bindings in the same order.
func (g *grammar) CompileSelect(b *Builder) (string, []any) {
	return g.compileSelect(b)
}

func (g *grammar) compileSelect(b *Builder) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(g.compileColumns(b, &args))
	sb.WriteString(" FROM ")
	sb.WriteString(g.WrapTable(b.table))
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j.fragment)
		args = append(args, j.args...)
	}
	if w := g.compileConditions(b, b.wheres, &args); w != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(w)
	}
	if len(b.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(g.compileGroups(b, &args))
	}
	if h := g.compileConditions(b, b.havings, &args); h != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(h)
	}
	// Unions precede the outer orders and limit/offset, so those apply to
	// the combined set rather than splitting the statement mid-union.
	for _, u := range b.unions {
		sub, subArgs := g.compileSelect(u.b)
		sb.WriteString(" ")
		sb.WriteString(u.kind)
		sb.WriteString(" ")
		sb.WriteString(sub)
		args = append(args, subArgs...)
	}
	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(g.compileOrders(b, &args))
	}
	if b.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}
	if b.offset >= 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(b.offset))
	}
	return sb.String(), args
}

// compileColumns renders the select list. Raw expressions pass through
// unmodified; once any join is present, bare names and "*" are qualified
// with the base table to avoid ambiguous column errors.
func (g *grammar) compileColumns(b *Builder, args *[]any) string {
	cols := b.columns
	if len(cols) == 0 {
		cols = []any{"*"}
	}
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		switch c := c.(type) {
		case Raw:
			parts = append(parts, c.SQL)
			*args = append(*args, c.Args...)
		case string:
			parts = append(parts, g.Wrap(g.qualify(b, c)))
		default:
			parts = append(parts, g.Wrap(g.qualify(b, fmt.Sprint(c))))
		}
	}
	return strings.Join(parts, ", ")
}

// qualify prefixes a bare column with the base table when the query has
// joins. Dotted names and aliased expressions are kept as-is.
func (g *grammar) qualify(b *Builder, column string) string {
	if !b.HasJoins() || strings.Contains(column, ".") {
		if column == "*" && b.HasJoins() {
			return b.table + ".*"
		}
		return column
	}
	if column == "*" {
		return b.table + ".*"
	}
	return b.table + "." + column
}

func (g *grammar) compileGroups(b *Builder, args *[]any) string {
	parts := make([]string, 0, len(b.groups))
	for _, c := range b.groups {
		switch c := c.(type) {
		case Raw:
			parts = append(parts, c.SQL)
			*args = append(*args, c.Args...)
		case string:
			parts = append(parts, g.Wrap(c))
		}
	}
	return strings.Join(parts, ", ")
}

func (g *grammar) compileOrders(b *Builder, args *[]any) string {
	parts := make([]string, 0, len(b.orders))
	for _, o := range b.orders {
		if o.raw != "" {
			parts = append(parts, o.raw)
			*args = append(*args, o.args...)
			continue
		}
		parts = append(parts, g.Wrap(o.column)+" "+o.dir)
	}
	return strings.Join(parts, ", ")
}

// compileConditions renders each condition's fragment prefixed with its
// connective, then strips exactly one leading connective token.
func (g *grammar) compileConditions(b *Builder, conds []Condition, args *[]any) string {
	if len(conds) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(c.conj)
		sb.WriteString(" ")
		sb.WriteString(g.compileCondition(b, c, args))
	}
	return stripLeadingConjunction(sb.String())
}

func stripLeadingConjunction(s string) string {
	if rest, ok := strings.CutPrefix(s, And+" "); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(s, Or+" "); ok {
		return rest
	}
	return s
}

func (g *grammar) compileCondition(b *Builder, c Condition, args *[]any) string {
	switch c.kind {
	case condBasic:
		if r, ok := c.values[0].(Raw); ok {
			*args = append(*args, r.Args...)
			return g.Wrap(c.column) + " " + c.op + " " + r.SQL
		}
		*args = append(*args, c.values[0])
		return g.Wrap(c.column) + " " + c.op + " ?"
	case condIn:
		if len(c.values) == 0 {
			return "0 = 1"
		}
		*args = append(*args, c.values...)
		return g.Wrap(c.column) + " IN (" + placeholders(len(c.values)) + ")"
	case condNotIn:
		if len(c.values) == 0 {
			return "1 = 1"
		}
		*args = append(*args, c.values...)
		return g.Wrap(c.column) + " NOT IN (" + placeholders(len(c.values)) + ")"
	case condNull:
		return g.Wrap(c.column) + " IS NULL"
	case condNotNull:
		return g.Wrap(c.column) + " IS NOT NULL"
	case condBetween:
		*args = append(*args, c.values[0], c.values[1])
		return g.Wrap(c.column) + " BETWEEN ? AND ?"
	case condNotBetween:
		*args = append(*args, c.values[0], c.values[1])
		return g.Wrap(c.column) + " NOT BETWEEN ? AND ?"
	case condColumn:
		return g.Wrap(c.column) + " " + c.op + " " + g.Wrap(c.values[0].(string))
	case condExists:
		sub, subArgs := g.compileSelect(c.sub)
		*args = append(*args, subArgs...)
		return "EXISTS (" + sub + ")"
	case condNotExists:
		sub, subArgs := g.compileSelect(c.sub)
		*args = append(*args, subArgs...)
		return "NOT EXISTS (" + sub + ")"
	case condSub:
		sub, subArgs := g.compileSelect(c.sub)
		*args = append(*args, subArgs...)
		return g.Wrap(c.column) + " " + c.op + " (" + sub + ")"
	case condNested:
		inner := g.compileConditions(c.sub, c.sub.wheres, args)
		return "(" + inner + ")"
	case condRaw:
		*args = append(*args, c.values...)
		return c.raw
	}
	return ""
}

func placeholders(n int) string {
	if n == 1 {
		return "?"
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// CompileInsert renders a multi-row insert with deterministic (sorted)
// column order. Row values may be Raw expressions.
func (g *grammar) CompileInsert(table string, rows []map[string]any, returning string) (string, []any) {
	return g.compileInsert(table, rows, returning)
}

// emptyInsert reports whether the insert carries no explicit values. A
// single empty row map, the shape of a brand-new record whose generated
// key was stripped, renders the same as no rows at all.
func emptyInsert(rows []map[string]any) bool {
	return len(rows) == 0 || (len(rows) == 1 && len(rows[0]) == 0)
}

func (g *grammar) compileInsert(table string, rows []map[string]any, returning string) (string, []any) {
	if emptyInsert(rows) {
		sql := "INSERT INTO " + g.WrapTable(table) + " DEFAULT VALUES"
		if returning != "" {
			sql += " RETURNING " + g.Wrap(returning)
		}
		return sql, nil
	}
	columns := sortedColumns(rows[0])
	wrapped := make([]string, len(columns))
	for i, c := range columns {
		wrapped[i] = g.Wrap(c)
	}
	var (
		args   []any
		values = make([]string, len(rows))
	)
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			if r, ok := row[c].(Raw); ok {
				cells[j] = r.SQL
				args = append(args, r.Args...)
				continue
			}
			cells[j] = "?"
			args = append(args, row[c])
		}
		values[i] = "(" + strings.Join(cells, ", ") + ")"
	}
	sql := "INSERT INTO " + g.WrapTable(table) +
		" (" + strings.Join(wrapped, ", ") + ") VALUES " + strings.Join(values, ", ")
	if returning != "" {
		sql += " RETURNING " + g.Wrap(returning)
	}
	return sql, args
}

// CompileUpdate renders an UPDATE of the given values constrained by the
// builder's WHERE state. Column order is sorted for determinism; SET
// bindings precede WHERE bindings.
func (g *grammar) CompileUpdate(b *Builder, values map[string]any) (string, []any) {
	return g.compileUpdate(b, values)
}

func (g *grammar) compileUpdate(b *Builder, values map[string]any) (string, []any) {
	columns := sortedColumns(values)
	var (
		args []any
		sets = make([]string, len(columns))
	)
	for i, c := range columns {
		if r, ok := values[c].(Raw); ok {
			sets[i] = g.Wrap(c) + " = " + r.SQL
			args = append(args, r.Args...)
			continue
		}
		sets[i] = g.Wrap(c) + " = ?"
		args = append(args, values[c])
	}
	sql := "UPDATE " + g.WrapTable(b.table) + " SET " + strings.Join(sets, ", ")
	if w := g.compileConditions(b, b.wheres, &args); w != "" {
		sql += " WHERE " + w
	}
	return sql, args
}

// CompileDelete renders a DELETE constrained by the builder's WHERE state.
func (g *grammar) CompileDelete(b *Builder) (string, []any) {
	return g.compileDelete(b)
}

func (g *grammar) compileDelete(b *Builder) (string, []any) {
	var args []any
	sql := "DELETE FROM " + g.WrapTable(b.table)
	if w := g.compileConditions(b, b.wheres, &args); w != "" {
		sql += " WHERE " + w
	}
	return sql, args
}

func sortedColumns(row map[string]any) []string {
	columns := make([]string, 0, len(row))
	for c := range row {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

// InlineBindings substitutes bindings into the SQL for debug echo output.
// Both "?" and ordinal "$n" placeholder styles are handled. The result is
// for logging only and must never be executed.
func InlineBindings(g Grammar, query string, args []any) string {
	var sb strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		switch {
		case query[i] == '?' && n < len(args):
			writeEchoValue(g, &sb, args[n])
			n++
		case query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9':
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			ord, _ := strconv.Atoi(query[i+1 : j])
			if ord >= 1 && ord <= len(args) {
				writeEchoValue(g, &sb, args[ord-1])
				i = j - 1
				continue
			}
			sb.WriteByte(query[i])
		default:
			sb.WriteByte(query[i])
		}
	}
	return sb.String()
}

func writeEchoValue(g Grammar, sb *strings.Builder, arg any) {
	switch v := arg.(type) {
	case nil:
		sb.WriteString("NULL")
	case bool:
		sb.WriteString(g.BoolLiteral(v))
	case string:
		sb.WriteString("'" + strings.ReplaceAll(v, "'", "''") + "'")
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}
