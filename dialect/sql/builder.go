package sql

import (
	"fmt"
)

// operators is the whitelist of comparison operators accepted by Where and
// Having. An operator outside this set panics with *InvalidQueryError at
// call time rather than producing malformed SQL at render time.
var operators = map[string]bool{
	"=": true, "<": true, ">": true, "<=": true, ">=": true,
	"!=": true, "<>": true, "<=>": true,
	"LIKE": true, "NOT LIKE": true, "ILIKE": true, "NOT ILIKE": true,
	"&": true, "|": true, "^": true, "<<": true, ">>": true,
	"IS": true, "IS NOT": true,
	"REGEXP": true, "NOT REGEXP": true,
}

// Builder accumulates query state from a fluent call surface. It performs
// no I/O and generates no SQL itself; a Grammar renders it. The only
// rendering done at append time is JOIN fragments, which cannot be
// affected by later-added predicates.
type Builder struct {
	grammar  Grammar
	table    string
	columns  []any // string or Raw
	distinct bool
	joins    []join
	wheres   []Condition
	groups   []any // string or Raw
	havings  []Condition
	orders   []order
	limit    int
	offset   int
	unions   []union
}

// NewBuilder returns a builder rendered by the given grammar, targeting
// the given table.
func NewBuilder(g Grammar, table string) *Builder {
	return &Builder{grammar: g, table: table, limit: -1, offset: -1}
}

// Grammar returns the grammar that renders this builder.
func (b *Builder) Grammar() Grammar { return b.grammar }

// TableName returns the base table of the query.
func (b *Builder) TableName() string { return b.table }

// Table retargets the builder to the given table.
func (b *Builder) Table(name string) *Builder {
	b.table = name
	return b
}

// Select sets the selected columns. Accepts plain names and Raw
// expressions. Calling Select replaces a previous column list.
func (b *Builder) Select(columns ...any) *Builder {
	b.columns = columns
	return b
}

// AddSelect appends columns to the current selection.
func (b *Builder) AddSelect(columns ...any) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// SelectRaw appends a raw select expression.
func (b *Builder) SelectRaw(sql string, args ...any) *Builder {
	b.columns = append(b.columns, Expr(sql, args...))
	return b
}

// Distinct marks the query as SELECT DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// Where appends a basic AND condition. The operator must be in the
// accepted whitelist.
func (b *Builder) Where(column, op string, value any) *Builder {
	return b.whereBasic(column, op, value, And)
}

// OrWhere appends a basic OR condition.
func (b *Builder) OrWhere(column, op string, value any) *Builder {
	return b.whereBasic(column, op, value, Or)
}

// WhereEq is shorthand for Where(column, "=", value).
func (b *Builder) WhereEq(column string, value any) *Builder {
	return b.Where(column, "=", value)
}

func (b *Builder) whereBasic(column, op string, value any, conj string) *Builder {
	if !operators[op] {
		panic(&InvalidQueryError{Reason: fmt.Sprintf("unsupported operator %q", op)})
	}
	b.wheres = append(b.wheres, Condition{kind: condBasic, column: column, op: op, values: []any{value}, conj: conj})
	return b
}

// WhereIn appends an AND membership condition. An empty value list renders
// as a never-true predicate.
func (b *Builder) WhereIn(column string, values ...any) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condIn, column: column, values: values, conj: And})
	return b
}

// OrWhereIn appends an OR membership condition.
func (b *Builder) OrWhereIn(column string, values ...any) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condIn, column: column, values: values, conj: Or})
	return b
}

// WhereNotIn appends a negated membership condition. An empty value list
// renders as an always-true predicate.
func (b *Builder) WhereNotIn(column string, values ...any) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condNotIn, column: column, values: values, conj: And})
	return b
}

// WhereNull appends an IS NULL condition.
func (b *Builder) WhereNull(column string) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condNull, column: column, conj: And})
	return b
}

// OrWhereNull appends an OR IS NULL condition.
func (b *Builder) OrWhereNull(column string) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condNull, column: column, conj: Or})
	return b
}

// WhereNotNull appends an IS NOT NULL condition.
func (b *Builder) WhereNotNull(column string) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condNotNull, column: column, conj: And})
	return b
}

// WhereBetween appends a BETWEEN condition. The two-value arity is
// enforced by the signature.
func (b *Builder) WhereBetween(column string, low, high any) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condBetween, column: column, values: []any{low, high}, conj: And})
	return b
}

// WhereNotBetween appends a NOT BETWEEN condition.
func (b *Builder) WhereNotBetween(column string, low, high any) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condNotBetween, column: column, values: []any{low, high}, conj: And})
	return b
}

// WhereColumn appends a column-to-column comparison.
func (b *Builder) WhereColumn(first, op, second string) *Builder {
	if !operators[op] {
		panic(&InvalidQueryError{Reason: fmt.Sprintf("unsupported operator %q", op)})
	}
	b.wheres = append(b.wheres, Condition{kind: condColumn, column: first, op: op, values: []any{second}, conj: And})
	return b
}

// WhereExists appends an EXISTS condition over the given sub-query.
func (b *Builder) WhereExists(sub *Builder) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condExists, sub: sub, conj: And})
	return b
}

// WhereNotExists appends a NOT EXISTS condition over the given sub-query.
func (b *Builder) WhereNotExists(sub *Builder) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condNotExists, sub: sub, conj: And})
	return b
}

// WhereSub appends a comparison against a single-column sub-select.
func (b *Builder) WhereSub(column, op string, sub *Builder) *Builder {
	if !operators[op] {
		panic(&InvalidQueryError{Reason: fmt.Sprintf("unsupported operator %q", op)})
	}
	b.wheres = append(b.wheres, Condition{kind: condSub, column: column, op: op, sub: sub, conj: And})
	return b
}

// WhereRaw appends a raw AND condition fragment.
func (b *Builder) WhereRaw(sql string, args ...any) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condRaw, raw: sql, values: args, conj: And})
	return b
}

// OrWhereRaw appends a raw OR condition fragment.
func (b *Builder) OrWhereRaw(sql string, args ...any) *Builder {
	b.wheres = append(b.wheres, Condition{kind: condRaw, raw: sql, values: args, conj: Or})
	return b
}

// WhereGroup captures a nested builder via the callback and folds its
// predicates into a single parenthesized AND condition.
func (b *Builder) WhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup(fn, And)
}

// OrWhereGroup is the OR variant of WhereGroup.
func (b *Builder) OrWhereGroup(fn func(*Builder)) *Builder {
	return b.whereGroup(fn, Or)
}

func (b *Builder) whereGroup(fn func(*Builder), conj string) *Builder {
	sub := NewBuilder(b.grammar, b.table)
	fn(sub)
	if len(sub.wheres) > 0 {
		b.wheres = append(b.wheres, Condition{kind: condNested, sub: sub, conj: conj})
	}
	return b
}

// Join appends an INNER JOIN. The fragment is rendered at append time.
func (b *Builder) Join(table, first, op, second string) *Builder {
	return b.joinType("INNER JOIN", table, first, op, second)
}

// LeftJoin appends a LEFT JOIN.
func (b *Builder) LeftJoin(table, first, op, second string) *Builder {
	return b.joinType("LEFT JOIN", table, first, op, second)
}

// RightJoin appends a RIGHT JOIN.
func (b *Builder) RightJoin(table, first, op, second string) *Builder {
	return b.joinType("RIGHT JOIN", table, first, op, second)
}

// CrossJoin appends a CROSS JOIN without an ON clause.
func (b *Builder) CrossJoin(table string) *Builder {
	b.joins = append(b.joins, join{fragment: "CROSS JOIN " + b.grammar.WrapTable(table)})
	return b
}

// JoinRaw appends a raw join fragment with bindings.
func (b *Builder) JoinRaw(sql string, args ...any) *Builder {
	b.joins = append(b.joins, join{fragment: sql, args: args})
	return b
}

func (b *Builder) joinType(kind, table, first, op, second string) *Builder {
	if !operators[op] {
		panic(&InvalidQueryError{Reason: fmt.Sprintf("unsupported operator %q", op)})
	}
	frag := kind + " " + b.grammar.WrapTable(table) + " ON " +
		b.grammar.Wrap(first) + " " + op + " " + b.grammar.Wrap(second)
	b.joins = append(b.joins, join{fragment: frag})
	return b
}

// HasJoins reports whether the query has any join clauses.
func (b *Builder) HasJoins() bool { return len(b.joins) > 0 }

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	for _, c := range columns {
		b.groups = append(b.groups, c)
	}
	return b
}

// GroupByRaw appends a raw grouping expression.
func (b *Builder) GroupByRaw(sql string) *Builder {
	b.groups = append(b.groups, Expr(sql))
	return b
}

// Having appends a basic AND condition on grouped rows.
func (b *Builder) Having(column, op string, value any) *Builder {
	if !operators[op] {
		panic(&InvalidQueryError{Reason: fmt.Sprintf("unsupported operator %q", op)})
	}
	b.havings = append(b.havings, Condition{kind: condBasic, column: column, op: op, values: []any{value}, conj: And})
	return b
}

// OrHaving appends a basic OR condition on grouped rows.
func (b *Builder) OrHaving(column, op string, value any) *Builder {
	if !operators[op] {
		panic(&InvalidQueryError{Reason: fmt.Sprintf("unsupported operator %q", op)})
	}
	b.havings = append(b.havings, Condition{kind: condBasic, column: column, op: op, values: []any{value}, conj: Or})
	return b
}

// HavingRaw appends a raw HAVING fragment.
func (b *Builder) HavingRaw(sql string, args ...any) *Builder {
	b.havings = append(b.havings, Condition{kind: condRaw, raw: sql, values: args, conj: And})
	return b
}

// OrderBy appends an ascending order expression.
func (b *Builder) OrderBy(column string) *Builder {
	b.orders = append(b.orders, order{column: column, dir: "ASC"})
	return b
}

// OrderByDesc appends a descending order expression.
func (b *Builder) OrderByDesc(column string) *Builder {
	b.orders = append(b.orders, order{column: column, dir: "DESC"})
	return b
}

// OrderByRaw appends a raw order expression with bindings.
func (b *Builder) OrderByRaw(sql string, args ...any) *Builder {
	b.orders = append(b.orders, order{raw: sql, args: args})
	return b
}

// ClearOrders drops all order expressions. Used by terminal aggregates.
func (b *Builder) ClearOrders() *Builder {
	b.orders = nil
	return b
}

// Limit caps the number of returned rows. Negative values clear the cap.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Offset skips the first n rows.
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Union appends a UNION sub-query.
func (b *Builder) Union(sub *Builder) *Builder {
	b.unions = append(b.unions, union{kind: UnionType, b: sub})
	return b
}

// UnionAll appends a UNION ALL sub-query.
func (b *Builder) UnionAll(sub *Builder) *Builder {
	b.unions = append(b.unions, union{kind: UnionAllType, b: sub})
	return b
}

// Intersect appends an INTERSECT sub-query.
func (b *Builder) Intersect(sub *Builder) *Builder {
	b.unions = append(b.unions, union{kind: IntersectType, b: sub})
	return b
}

// Except appends an EXCEPT sub-query.
func (b *Builder) Except(sub *Builder) *Builder {
	b.unions = append(b.unions, union{kind: ExceptType, b: sub})
	return b
}

// Wheres returns the accumulated WHERE conditions.
func (b *Builder) Wheres() []Condition { return b.wheres }

// Clone returns a deep copy of the builder state. Sub-builders referenced
// by conditions and unions are shared; they are never mutated after being
// captured.
func (b *Builder) Clone() *Builder {
	nb := *b
	nb.columns = append([]any(nil), b.columns...)
	nb.joins = append([]join(nil), b.joins...)
	nb.wheres = append([]Condition(nil), b.wheres...)
	nb.groups = append([]any(nil), b.groups...)
	nb.havings = append([]Condition(nil), b.havings...)
	nb.orders = append([]order(nil), b.orders...)
	nb.unions = append([]union(nil), b.unions...)
	return &nb
}
