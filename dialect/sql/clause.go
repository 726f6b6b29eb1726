package sql

// Raw is a raw SQL expression with optional bindings. Raw expressions are
// passed through grammar compilation unmodified, so the caller is
// responsible for quoting and injection safety.
type Raw struct {
	SQL  string
	Args []any
}

// Expr returns a raw SQL expression with the given bindings.
func Expr(sql string, args ...any) Raw {
	return Raw{SQL: sql, Args: args}
}

// condKind discriminates the predicate variants a Condition can hold.
type condKind int

const (
	condBasic condKind = iota
	condIn
	condNotIn
	condNull
	condNotNull
	condBetween
	condNotBetween
	condColumn
	condExists
	condNotExists
	condSub
	condNested
	condRaw
)

// Conjunction tokens connecting conditions in a WHERE/HAVING list.
const (
	And = "AND"
	Or  = "OR"
)

// Condition is an immutable predicate value object. It is produced by the
// Builder and rendered by a Grammar; it never renders itself.
type Condition struct {
	kind   condKind
	column string
	op     string
	values []any
	conj   string   // And/Or; the grammar strips the leading token.
	sub    *Builder // nested group, sub-select value or EXISTS body
	raw    string   // raw fragment for condRaw
}

// Column returns the column the condition constrains, if any.
func (c Condition) Column() string { return c.column }

// Operator returns the comparison operator of a basic condition.
func (c Condition) Operator() string { return c.op }

// Conjunction returns the connective (AND/OR) of the condition.
func (c Condition) Conjunction() string { return c.conj }

// join is a pre-rendered JOIN fragment. Join fragments are computed at
// append time from table/columns/operator since they do not depend on
// later-added predicates.
type join struct {
	fragment string
	args     []any
}

// order is a single ORDER BY expression.
type order struct {
	column string
	dir    string
	raw    string
	args   []any
}

// Set operation type tags.
const (
	UnionType     = "UNION"
	UnionAllType  = "UNION ALL"
	IntersectType = "INTERSECT"
	ExceptType    = "EXCEPT"
)

// union holds a set-operation sub-query and its type tag.
type union struct {
	kind string
	b    *Builder
}
