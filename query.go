package quarry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quarrydb/quarry/dialect/sql"
)

// Query accumulates a statement against one model. It wraps the clause
// builder with model awareness: global scopes, hydration and eager
// loading. Compilation and execution happen only in terminal operations.
type Query struct {
	model   *Model
	conn    *Conn
	builder *sql.Builder
	withs   map[string]func(*Query)
	cache   Cache
	ttl     time.Duration
}

// Builder exposes the underlying clause builder for constructs the Query
// surface does not wrap.
func (q *Query) Builder() *sql.Builder { return q.builder }

// Clone returns a copy of the query that can diverge from the original.
func (q *Query) Clone() *Query {
	nq := *q
	nq.builder = q.builder.Clone()
	nq.withs = make(map[string]func(*Query), len(q.withs))
	for k, v := range q.withs {
		nq.withs[k] = v
	}
	return &nq
}

// Select sets the selected columns, replacing a previous selection.
func (q *Query) Select(columns ...any) *Query {
	q.builder.Select(columns...)
	return q
}

// SelectRaw appends a raw select expression.
func (q *Query) SelectRaw(expr string, args ...any) *Query {
	q.builder.SelectRaw(expr, args...)
	return q
}

// Distinct marks the query as SELECT DISTINCT.
func (q *Query) Distinct() *Query {
	q.builder.Distinct()
	return q
}

// Where appends a basic AND condition.
func (q *Query) Where(column, op string, value any) *Query {
	q.builder.Where(column, op, value)
	return q
}

// OrWhere appends a basic OR condition.
func (q *Query) OrWhere(column, op string, value any) *Query {
	q.builder.OrWhere(column, op, value)
	return q
}

// WhereEq is shorthand for Where(column, "=", value).
func (q *Query) WhereEq(column string, value any) *Query {
	q.builder.WhereEq(column, value)
	return q
}

// WhereIn appends a membership condition.
func (q *Query) WhereIn(column string, values ...any) *Query {
	q.builder.WhereIn(column, values...)
	return q
}

// WhereNotIn appends a negated membership condition.
func (q *Query) WhereNotIn(column string, values ...any) *Query {
	q.builder.WhereNotIn(column, values...)
	return q
}

// WhereNull appends an IS NULL condition.
func (q *Query) WhereNull(column string) *Query {
	q.builder.WhereNull(column)
	return q
}

// WhereNotNull appends an IS NOT NULL condition.
func (q *Query) WhereNotNull(column string) *Query {
	q.builder.WhereNotNull(column)
	return q
}

// WhereBetween appends a BETWEEN condition.
func (q *Query) WhereBetween(column string, low, high any) *Query {
	q.builder.WhereBetween(column, low, high)
	return q
}

// WhereColumn appends a column-to-column comparison.
func (q *Query) WhereColumn(first, op, second string) *Query {
	q.builder.WhereColumn(first, op, second)
	return q
}

// WhereRaw appends a raw condition fragment.
func (q *Query) WhereRaw(expr string, args ...any) *Query {
	q.builder.WhereRaw(expr, args...)
	return q
}

// WhereGroup folds the conditions accumulated by fn into a single
// parenthesized condition.
func (q *Query) WhereGroup(fn func(*Query)) *Query {
	q.builder.WhereGroup(func(b *sql.Builder) {
		fn(&Query{model: q.model, conn: q.conn, builder: b, withs: make(map[string]func(*Query))})
	})
	return q
}

// Join appends an INNER JOIN.
func (q *Query) Join(table, first, op, second string) *Query {
	q.builder.Join(table, first, op, second)
	return q
}

// LeftJoin appends a LEFT JOIN.
func (q *Query) LeftJoin(table, first, op, second string) *Query {
	q.builder.LeftJoin(table, first, op, second)
	return q
}

// GroupBy appends grouping columns.
func (q *Query) GroupBy(columns ...string) *Query {
	q.builder.GroupBy(columns...)
	return q
}

// Having appends a HAVING condition.
func (q *Query) Having(column, op string, value any) *Query {
	q.builder.Having(column, op, value)
	return q
}

// HavingRaw appends a raw HAVING fragment.
func (q *Query) HavingRaw(expr string, args ...any) *Query {
	q.builder.HavingRaw(expr, args...)
	return q
}

// OrderBy appends an ascending order expression.
func (q *Query) OrderBy(column string) *Query {
	q.builder.OrderBy(column)
	return q
}

// OrderByDesc appends a descending order expression.
func (q *Query) OrderByDesc(column string) *Query {
	q.builder.OrderByDesc(column)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.builder.Limit(n)
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.builder.Offset(n)
	return q
}

// Union appends a UNION sub-query.
func (q *Query) Union(other *Query) *Query {
	q.builder.Union(other.builder)
	return q
}

// UnionAll appends a UNION ALL sub-query.
func (q *Query) UnionAll(other *Query) *Query {
	q.builder.UnionAll(other.builder)
	return q
}

// With registers a (possibly nested dot-path) relation for eager loading.
// An optional constraint composes with the key constraint the resolver
// injects; it never replaces it.
func (q *Query) With(path string, constraint ...func(*Query)) *Query {
	var fn func(*Query)
	if len(constraint) > 0 {
		fn = constraint[0]
	}
	q.withs[path] = fn
	return q
}

// Remember serves this query's rows through the given cache for ttl.
func (q *Query) Remember(c Cache, ttl time.Duration) *Query {
	q.cache = c
	q.ttl = ttl
	return q
}

// All runs the query and hydrates every row, then eager-loads the
// registered relation paths in a fixed number of batched queries.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	rows, err := q.getRows(ctx, q.builder)
	if err != nil {
		return nil, err
	}
	recs := make([]*Record, len(rows))
	for i, row := range rows {
		recs[i] = q.model.Hydrate(q.conn, row)
	}
	if err := q.loadRelations(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// First runs the query with LIMIT 1 and returns the single record, or a
// *NotFoundError when the result is empty.
func (q *Query) First(ctx context.Context) (*Record, error) {
	q.builder.Limit(1)
	recs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundError(q.model.name)
	}
	return recs[0], nil
}

// Find fetches a record by primary key, returning *NotFoundError when no
// row matches.
func (q *Query) Find(ctx context.Context, id any) (*Record, error) {
	q.builder.WhereEq(q.model.primaryKey, id).Limit(1)
	recs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundErrorWithID(q.model.name, id)
	}
	return recs[0], nil
}

// Exists reports whether the query matches at least one row.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	n, err := q.Count(ctx)
	return n > 0, err
}

// Count executes immediately and returns the matching row count.
func (q *Query) Count(ctx context.Context) (int64, error) {
	v, err := q.aggregate(ctx, "COUNT(*)")
	if err != nil {
		return 0, err
	}
	n, _ := CastInt.FromStorage(v)
	if n == nil {
		return 0, nil
	}
	return n.(int64), nil
}

// Sum executes immediately and returns the sum of the column.
func (q *Query) Sum(ctx context.Context, column string) (float64, error) {
	return q.numericAggregate(ctx, "SUM", column)
}

// Avg executes immediately and returns the average of the column.
func (q *Query) Avg(ctx context.Context, column string) (float64, error) {
	return q.numericAggregate(ctx, "AVG", column)
}

// Max executes immediately and returns the maximum value of the column.
func (q *Query) Max(ctx context.Context, column string) (any, error) {
	return q.aggregate(ctx, "MAX("+q.conn.Grammar().Wrap(column)+")")
}

// Min executes immediately and returns the minimum value of the column.
func (q *Query) Min(ctx context.Context, column string) (any, error) {
	return q.aggregate(ctx, "MIN("+q.conn.Grammar().Wrap(column)+")")
}

func (q *Query) numericAggregate(ctx context.Context, fn, column string) (float64, error) {
	v, err := q.aggregate(ctx, fn+"("+q.conn.Grammar().Wrap(column)+")")
	if err != nil {
		return 0, err
	}
	f, _ := CastFloat.FromStorage(v)
	if f == nil {
		return 0, nil
	}
	return f.(float64), nil
}

// aggregate constructs a derived select with a raw aggregate expression
// and extracts the single scalar from the single-row result.
func (q *Query) aggregate(ctx context.Context, expr string) (any, error) {
	b := q.builder.Clone().ClearOrders().Limit(-1).Offset(-1).Select(sql.Expr(expr + " AS aggregate"))
	rows, err := q.getRows(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0]["aggregate"], nil
}

// Value runs the query and returns the given column of the first row.
func (q *Query) Value(ctx context.Context, column string) (any, error) {
	b := q.builder.Clone().Select(column).Limit(1)
	rows, err := q.getRows(ctx, b)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0][baseColumn(column)], nil
}

// Pluck runs the query and returns the given column of every row.
func (q *Query) Pluck(ctx context.Context, column string) ([]any, error) {
	b := q.builder.Clone().Select(column)
	rows, err := q.getRows(ctx, b)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row[baseColumn(column)]
	}
	return out, nil
}

// Insert writes one row directly against the storage adapter. Like all
// bulk write operations it bypasses record lifecycle hooks and
// capabilities by design.
func (q *Query) Insert(ctx context.Context, values map[string]any) error {
	return q.InsertAll(ctx, []map[string]any{values})
}

// InsertAll writes the given rows in a single multi-row INSERT,
// bypassing record lifecycle hooks.
func (q *Query) InsertAll(ctx context.Context, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	query, args := q.conn.Grammar().CompileInsert(q.model.table, rows, "")
	_, err := q.conn.Exec(ctx, query, args)
	return err
}

// InsertGetID writes one row and returns the generated identity,
// bypassing record lifecycle hooks.
func (q *Query) InsertGetID(ctx context.Context, values map[string]any) (any, error) {
	return q.conn.Insert(ctx, q.model.table, values, q.model.primaryKey, true)
}

// Update writes the given values to every row matching the accumulated
// WHERE state and returns the affected row count. It bypasses record
// lifecycle hooks and capabilities by design; global scopes applied at
// construction still constrain it.
func (q *Query) Update(ctx context.Context, values map[string]any) (int64, error) {
	query, args := q.conn.Grammar().CompileUpdate(q.builder, values)
	return q.conn.Exec(ctx, query, args)
}

// Delete removes every row matching the accumulated WHERE state and
// returns the affected row count, bypassing record lifecycle hooks and
// the soft-delete capability.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	query, args := q.conn.Grammar().CompileDelete(q.builder)
	return q.conn.Exec(ctx, query, args)
}

func (q *Query) getRows(ctx context.Context, b *sql.Builder) ([]map[string]any, error) {
	query, args := q.conn.Grammar().CompileSelect(b)
	if q.cache == nil {
		return q.conn.Query(ctx, query, args)
	}
	key := q.conn.Dialect() + ":" + query + ":" + fmt.Sprintf("%v", args)
	return cachedRows(ctx, q.cache, key, q.ttl, func() ([]map[string]any, error) {
		return q.conn.Query(ctx, query, args)
	})
}

// loadSpec groups the eager-load paths sharing a first segment.
type loadSpec struct {
	constraint func(*Query)
	nested     map[string]func(*Query)
}

// loadRelations eager-loads the registered paths onto recs. Each path is
// split on its first segment; that segment's resolver is batch-loaded for
// the current record set and the remainder recursed against the related
// record set, not the original owners.
func (q *Query) loadRelations(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 || len(q.withs) == 0 {
		return nil
	}
	specs := make(map[string]*loadSpec)
	for path, fn := range q.withs {
		first, rest, _ := strings.Cut(path, ".")
		s := specs[first]
		if s == nil {
			s = &loadSpec{nested: make(map[string]func(*Query))}
			specs[first] = s
		}
		if rest == "" {
			if fn != nil {
				s.constraint = fn
			}
		} else {
			s.nested[rest] = fn
		}
	}
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := specs[name]
		relFn, ok := q.model.relations[name]
		if !ok {
			return &RelationError{Model: q.model.name, Relation: name}
		}
		rel := relFn(q.model.New(q.conn))
		related, err := rel.eagerLoad(ctx, recs, name, s.constraint)
		if err != nil {
			return err
		}
		if len(s.nested) == 0 || len(related) == 0 {
			continue
		}
		// Recurse per related model; MorphTo results can be heterogeneous.
		groups := make(map[*Model][]*Record)
		order := make([]*Model, 0, 1)
		for _, rr := range related {
			if _, seen := groups[rr.model]; !seen {
				order = append(order, rr.model)
			}
			groups[rr.model] = append(groups[rr.model], rr)
		}
		for _, m := range order {
			sub := m.Query(q.conn)
			for p, fn := range s.nested {
				sub.withs[p] = fn
			}
			if err := sub.loadRelations(ctx, groups[m]); err != nil {
				return err
			}
		}
	}
	return nil
}

// baseColumn strips a table qualifier from a column reference, matching
// the bare name drivers report in result sets.
func baseColumn(column string) string {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}
