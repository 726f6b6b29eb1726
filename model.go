package quarry

import (
	"context"
	"sort"

	"github.com/go-openapi/inflect"
)

// BeforeHook runs before a lifecycle operation. Returning false vetoes
// the operation: no I/O is performed and the call returns nil.
type BeforeHook func(ctx context.Context, r *Record) bool

// AfterHook runs after a lifecycle operation completed.
type AfterHook func(ctx context.Context, r *Record)

// RelationFunc builds a relation descriptor for a record. Descriptors are
// created once per accessor invocation and are stateless beyond the keys
// they were built with.
type RelationFunc func(r *Record) *Relation

// ScopeFunc is a named, injectable default query constraint applied at
// query-construction time.
type ScopeFunc func(q *Query)

// Model is the per-entity registration table: table mapping, casting
// rules, mass-assignment whitelist, relation resolvers, global scopes,
// capabilities and lifecycle hooks. A Model is built once at startup and
// must not be mutated afterwards.
type Model struct {
	name          string
	table         string
	primaryKey    string
	autoIncrement bool
	casts         map[string]Caster
	fillable      map[string]bool
	guarded       map[string]bool
	relations     map[string]RelationFunc
	scopes        map[string]ScopeFunc
	capabilities  []Capability

	saving   []BeforeHook
	saved    []AfterHook
	deleting []BeforeHook
	deleted  []AfterHook
}

// NewModel returns a model named name. The table defaults to the
// pluralized snake-case form of the name ("OrderItem" -> "order_items")
// and the primary key to "id" with auto-increment semantics.
func NewModel(name string) *Model {
	return &Model{
		name:          name,
		table:         inflect.Pluralize(inflect.Underscore(name)),
		primaryKey:    "id",
		autoIncrement: true,
		casts:         make(map[string]Caster),
		fillable:      make(map[string]bool),
		guarded:       make(map[string]bool),
		relations:     make(map[string]RelationFunc),
		scopes:        make(map[string]ScopeFunc),
	}
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// TableName returns the table the model maps to.
func (m *Model) TableName() string { return m.table }

// Table overrides the table the model maps to.
func (m *Model) Table(table string) *Model {
	m.table = table
	return m
}

// KeyName returns the primary key column.
func (m *Model) KeyName() string { return m.primaryKey }

// PrimaryKey overrides the primary key column.
func (m *Model) PrimaryKey(column string) *Model {
	m.primaryKey = column
	return m
}

// Cast registers a casting rule for a column.
func (m *Model) Cast(column string, c Caster) *Model {
	m.casts[column] = c
	return m
}

// Fillable whitelists columns for mass assignment via Fill.
func (m *Model) Fillable(columns ...string) *Model {
	for _, c := range columns {
		m.fillable[c] = true
	}
	return m
}

// Guarded blacklists columns for mass assignment via Fill. Guarding "*"
// rejects every key not explicitly fillable.
func (m *Model) Guarded(columns ...string) *Model {
	for _, c := range columns {
		m.guarded[c] = true
	}
	return m
}

// Relation registers a named relation resolver. Eager-load paths are
// resolved against this registry; an unregistered name yields a
// *RelationError.
func (m *Model) Relation(name string, fn RelationFunc) *Model {
	m.relations[name] = fn
	return m
}

// Scope registers a named global scope. Scopes run against every freshly
// constructed query for this model, in sorted name order, unless skipped
// via WithoutScope/WithoutScopes at construction.
func (m *Model) Scope(name string, fn ScopeFunc) *Model {
	m.scopes[name] = fn
	return m
}

// Use installs capabilities. Extension points (pre-save, pre-delete,
// query construction) invoke capabilities in registration order.
func (m *Model) Use(caps ...Capability) *Model {
	for _, c := range caps {
		m.capabilities = append(m.capabilities, c)
		c.Install(m)
	}
	return m
}

// capability returns the installed capability with the given name.
func (m *Model) capability(name string) (Capability, bool) {
	for _, c := range m.capabilities {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Saving registers a vetoable pre-save hook.
func (m *Model) Saving(h BeforeHook) *Model {
	m.saving = append(m.saving, h)
	return m
}

// Saved registers a post-save hook.
func (m *Model) Saved(h AfterHook) *Model {
	m.saved = append(m.saved, h)
	return m
}

// Deleting registers a vetoable pre-delete hook.
func (m *Model) Deleting(h BeforeHook) *Model {
	m.deleting = append(m.deleting, h)
	return m
}

// Deleted registers a post-delete hook.
func (m *Model) Deleted(h AfterHook) *Model {
	m.deleted = append(m.deleted, h)
	return m
}

// New returns a fresh, not-yet-persisted record of this model.
func (m *Model) New(conn *Conn) *Record {
	return &Record{
		model:      m,
		conn:       conn,
		attributes: make(map[string]any),
		original:   make(map[string]any),
		relations:  make(map[string]any),
	}
}

// Hydrate builds a persisted record from a raw storage row. The original
// snapshot is captured from the row, so the record starts clean.
func (m *Model) Hydrate(conn *Conn, row map[string]any) *Record {
	r := m.New(conn)
	r.exists = true
	for k, v := range row {
		r.attributes[k] = v
	}
	r.SyncOriginal()
	return r
}

// Query returns a new query for this model with all global scopes applied
// to the freshly constructed builder. Scopes can be skipped per name or
// entirely through options.
func (m *Model) Query(conn *Conn, opts ...QueryOption) *Query {
	var qo queryOptions
	for _, opt := range opts {
		opt(&qo)
	}
	q := &Query{
		model:   m,
		conn:    conn,
		builder: conn.Builder(m.table),
		withs:   make(map[string]func(*Query)),
	}
	if qo.withoutScopes {
		return q
	}
	names := make([]string, 0, len(m.scopes))
	for name := range m.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if qo.skipped[name] {
			continue
		}
		m.scopes[name](q)
	}
	return q
}

// queryOptions carries scope-skipping decisions made at construction.
type queryOptions struct {
	withoutScopes bool
	skipped       map[string]bool
}

// QueryOption configures query construction.
type QueryOption func(*queryOptions)

// WithoutScope skips the named global scopes for this query.
func WithoutScope(names ...string) QueryOption {
	return func(qo *queryOptions) {
		if qo.skipped == nil {
			qo.skipped = make(map[string]bool)
		}
		for _, n := range names {
			qo.skipped[n] = true
		}
	}
}

// WithoutScopes skips all global scopes for this query.
func WithoutScopes() QueryOption {
	return func(qo *queryOptions) { qo.withoutScopes = true }
}

// WithTrashed includes soft-deleted records in the query.
func WithTrashed() QueryOption {
	return WithoutScope(softDeleteScope)
}
