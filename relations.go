package quarry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// RelationKind discriminates the relation resolvers.
type RelationKind int

const (
	KindHasOne RelationKind = iota
	KindHasMany
	KindBelongsTo
	KindBelongsToMany
	KindMorphOne
	KindMorphMany
	KindMorphTo
	KindMorphToMany
	KindHasManyThrough
)

// Relation is a descriptor binding a parent record to a related record
// type through a key mapping. It is built fresh per accessor invocation
// and resolved either lazily (Get/First) or in batch for a whole owner
// set (eager loading).
type Relation struct {
	kind    RelationKind
	parent  *Record
	related *Model
	conn    *Conn

	// foreignKey is the referencing column: on the related table for the
	// has-family, on the parent table for belongs-to, and the morph id
	// column for the polymorphic kinds.
	foreignKey string
	// localKey is the referenced column: on the parent table for the
	// has-family, on the related table for belongs-to.
	localKey string

	pivotTable      string
	pivotForeignKey string
	pivotRelatedKey string
	pivotColumns    []string
	pivotMdl        *Model

	morphType  string
	morphClass string
	morphMap   map[string]*Model

	through        *Model
	firstKey       string
	secondKey      string
	secondLocalKey string

	constraints []func(*Query)
}

// Kind returns the relation kind.
func (rel *Relation) Kind() RelationKind { return rel.kind }

// Scoped appends a constraint applied to every query this relation
// issues, lazy and eager alike.
func (rel *Relation) Scoped(fn func(*Query)) *Relation {
	rel.constraints = append(rel.constraints, fn)
	return rel
}

// WithPivot carries additional intermediate-table columns into the pivot
// record of a many-to-many result.
func (rel *Relation) WithPivot(columns ...string) *Relation {
	rel.pivotColumns = append(rel.pivotColumns, columns...)
	return rel
}

// foreignKeyFor derives the conventional referencing column for a model:
// the singular table name suffixed with "_id".
func foreignKeyFor(m *Model) string {
	return inflect.Singularize(m.table) + "_id"
}

// HasOne declares a to-one relation whose foreign key lives on the
// related table. Empty keys fall back to convention: "<parent>_id"
// referencing the parent's primary key.
func HasOne(r *Record, related *Model, foreignKey, localKey string) *Relation {
	rel := hasRelation(r, related, foreignKey, localKey)
	rel.kind = KindHasOne
	return rel
}

// HasMany declares a to-many relation whose foreign key lives on the
// related table.
func HasMany(r *Record, related *Model, foreignKey, localKey string) *Relation {
	rel := hasRelation(r, related, foreignKey, localKey)
	rel.kind = KindHasMany
	return rel
}

func hasRelation(r *Record, related *Model, foreignKey, localKey string) *Relation {
	if foreignKey == "" {
		foreignKey = foreignKeyFor(r.model)
	}
	if localKey == "" {
		localKey = r.model.primaryKey
	}
	return &Relation{parent: r, related: related, conn: r.conn, foreignKey: foreignKey, localKey: localKey}
}

// BelongsTo declares the inverse of a has relation: the foreign key lives
// on the parent record and references ownerKey on the related table.
func BelongsTo(r *Record, related *Model, foreignKey, ownerKey string) *Relation {
	if foreignKey == "" {
		foreignKey = foreignKeyFor(related)
	}
	if ownerKey == "" {
		ownerKey = related.primaryKey
	}
	return &Relation{kind: KindBelongsTo, parent: r, related: related, conn: r.conn, foreignKey: foreignKey, localKey: ownerKey}
}

// BelongsToMany declares a many-to-many relation through an intermediate
// table. Empty arguments fall back to convention: the pivot table is the
// two singular table names sorted and joined with "_", and the pivot
// columns are "<parent>_id" and "<related>_id".
func BelongsToMany(r *Record, related *Model, pivotTable, pivotForeignKey, pivotRelatedKey string) *Relation {
	if pivotTable == "" {
		names := []string{inflect.Singularize(r.model.table), inflect.Singularize(related.table)}
		sort.Strings(names)
		pivotTable = names[0] + "_" + names[1]
	}
	if pivotForeignKey == "" {
		pivotForeignKey = foreignKeyFor(r.model)
	}
	if pivotRelatedKey == "" {
		pivotRelatedKey = foreignKeyFor(related)
	}
	return &Relation{
		kind:            KindBelongsToMany,
		parent:          r,
		related:         related,
		conn:            r.conn,
		localKey:        r.model.primaryKey,
		foreignKey:      related.primaryKey,
		pivotTable:      pivotTable,
		pivotForeignKey: pivotForeignKey,
		pivotRelatedKey: pivotRelatedKey,
	}
}

// MorphOne declares a polymorphic to-one relation. The related table
// carries "<name>_type" and "<name>_id" columns; rows belonging to this
// parent carry the parent's morph class (its table name) in the type
// column.
func MorphOne(r *Record, related *Model, name string) *Relation {
	rel := morphRelation(r, related, name)
	rel.kind = KindMorphOne
	return rel
}

// MorphMany declares a polymorphic to-many relation.
func MorphMany(r *Record, related *Model, name string) *Relation {
	rel := morphRelation(r, related, name)
	rel.kind = KindMorphMany
	return rel
}

func morphRelation(r *Record, related *Model, name string) *Relation {
	return &Relation{
		parent:     r,
		related:    related,
		conn:       r.conn,
		foreignKey: name + "_id",
		morphType:  name + "_type",
		morphClass: r.model.table,
		localKey:   r.model.primaryKey,
	}
}

// MorphTo declares the inverse polymorphic relation: the parent carries
// "<name>_type" and "<name>_id" columns and candidates maps the stored
// discriminator values to their models. An unknown discriminator resolves
// to an absent relation, never an error.
func MorphTo(r *Record, name string, candidates map[string]*Model) *Relation {
	return &Relation{
		kind:       KindMorphTo,
		parent:     r,
		conn:       r.conn,
		foreignKey: name + "_id",
		morphType:  name + "_type",
		morphMap:   candidates,
	}
}

// MorphToMany declares a polymorphic many-to-many relation through an
// intermediate table keyed by "<name>_type"/"<name>_id" on the parent
// side.
func MorphToMany(r *Record, related *Model, name, pivotTable string) *Relation {
	if pivotTable == "" {
		pivotTable = inflect.Pluralize(name)
	}
	return &Relation{
		kind:            KindMorphToMany,
		parent:          r,
		related:         related,
		conn:            r.conn,
		localKey:        r.model.primaryKey,
		foreignKey:      related.primaryKey,
		pivotTable:      pivotTable,
		pivotForeignKey: name + "_id",
		pivotRelatedKey: foreignKeyFor(related),
		morphType:       name + "_type",
		morphClass:      r.model.table,
	}
}

// HasManyThrough declares a to-many relation reached across an
// intermediate model: parent -> through (firstKey references the parent)
// -> related (secondKey references the through row).
func HasManyThrough(r *Record, related, through *Model, firstKey, secondKey, localKey, secondLocalKey string) *Relation {
	if firstKey == "" {
		firstKey = foreignKeyFor(r.model)
	}
	if secondKey == "" {
		secondKey = foreignKeyFor(through)
	}
	if localKey == "" {
		localKey = r.model.primaryKey
	}
	if secondLocalKey == "" {
		secondLocalKey = through.primaryKey
	}
	return &Relation{
		kind:           KindHasManyThrough,
		parent:         r,
		related:        related,
		conn:           r.conn,
		through:        through,
		firstKey:       firstKey,
		secondKey:      secondKey,
		localKey:       localKey,
		secondLocalKey: secondLocalKey,
	}
}

// HasManyThroughMorph declares a to-many relation reached across a
// polymorphic intermediate model: the through table carries "<name>_type"
// and "<name>_id" columns referencing the parent, so the intermediate hop
// is constrained by the parent's morph class on top of the key match.
func HasManyThroughMorph(r *Record, related, through *Model, name, secondKey, localKey, secondLocalKey string) *Relation {
	rel := HasManyThrough(r, related, through, name+"_id", secondKey, localKey, secondLocalKey)
	rel.morphType = name + "_type"
	rel.morphClass = r.model.table
	return rel
}

// Query returns the constrained lazy query for this relation, or nil when
// the parent carries no usable key (an absent relation). MorphTo with an
// unknown discriminator is likewise nil.
func (rel *Relation) Query() *Query {
	var q *Query
	switch rel.kind {
	case KindHasOne, KindHasMany:
		v := rel.parent.attributes[rel.localKey]
		if v == nil {
			return nil
		}
		q = rel.related.Query(rel.conn).WhereEq(rel.foreignKey, v)
	case KindBelongsTo:
		v := rel.parent.attributes[rel.foreignKey]
		if v == nil {
			return nil
		}
		q = rel.related.Query(rel.conn).WhereEq(rel.localKey, v)
	case KindMorphOne, KindMorphMany:
		v := rel.parent.attributes[rel.localKey]
		if v == nil {
			return nil
		}
		q = rel.related.Query(rel.conn).
			WhereEq(rel.morphType, rel.morphClass).
			WhereEq(rel.foreignKey, v)
	case KindMorphTo:
		typ := rel.parent.GetString(rel.morphType)
		id := rel.parent.attributes[rel.foreignKey]
		m, ok := rel.morphMap[typ]
		if !ok || id == nil {
			return nil
		}
		q = m.Query(rel.conn).WhereEq(m.primaryKey, id)
	case KindBelongsToMany, KindMorphToMany:
		v := rel.parent.attributes[rel.localKey]
		if v == nil {
			return nil
		}
		q = rel.joinedPivotQuery().WhereEq(rel.pivotTable+"."+rel.pivotForeignKey, v)
	case KindHasManyThrough:
		// Resolved as a two-query plan in Get; no single lazy query.
		return nil
	}
	if q == nil {
		return nil
	}
	for _, fn := range rel.constraints {
		fn(q)
	}
	return q
}

// joinedPivotQuery selects the related table joined against the pivot,
// aliasing the carried pivot columns with a "pivot_" prefix so they can
// be split off the hydrated record.
func (rel *Relation) joinedPivotQuery() *Query {
	q := rel.related.Query(rel.conn).
		Join(rel.pivotTable, rel.related.table+"."+rel.foreignKey, "=", rel.pivotTable+"."+rel.pivotRelatedKey)
	if rel.kind == KindMorphToMany {
		q.WhereEq(rel.pivotTable+"."+rel.morphType, rel.morphClass)
	}
	cols := []any{rel.related.table + ".*"}
	for _, c := range rel.pivotCarried() {
		cols = append(cols, rel.pivotTable+"."+c+" AS pivot_"+c)
	}
	return q.Select(cols...)
}

// pivotCarried returns the pivot columns read back with a many-to-many
// result: the two key columns plus any WithPivot extras.
func (rel *Relation) pivotCarried() []string {
	cols := []string{rel.pivotForeignKey, rel.pivotRelatedKey}
	cols = append(cols, rel.pivotColumns...)
	return cols
}

func (rel *Relation) pivotModel() *Model {
	if rel.pivotMdl == nil {
		rel.pivotMdl = NewModel(rel.pivotTable).Table(rel.pivotTable)
	}
	return rel.pivotMdl
}

// splitPivot moves "pivot_"-prefixed attributes off a joined row into the
// record's pivot sub-record.
func (rel *Relation) splitPivot(rec *Record) {
	attrs := make(map[string]any)
	for k, v := range rec.attributes {
		if strings.HasPrefix(k, "pivot_") {
			attrs[strings.TrimPrefix(k, "pivot_")] = v
			delete(rec.attributes, k)
			delete(rec.original, k)
		}
	}
	if len(attrs) > 0 {
		rec.pivot = rel.pivotModel().Hydrate(rel.conn, attrs)
	}
}

// Get resolves the relation lazily for its single parent. An absent
// relation (nil key, unknown discriminator, no matching rows) returns an
// empty result and no error.
func (rel *Relation) Get(ctx context.Context) ([]*Record, error) {
	if rel.kind == KindHasManyThrough {
		return rel.getThrough(ctx, nil)
	}
	q := rel.Query()
	if q == nil {
		return nil, nil
	}
	recs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if rel.kind == KindBelongsToMany || rel.kind == KindMorphToMany {
		for _, rec := range recs {
			rel.splitPivot(rec)
		}
	}
	return recs, nil
}

// First resolves the relation lazily and returns the first record, or
// (nil, nil) when the relation is absent.
func (rel *Relation) First(ctx context.Context) (*Record, error) {
	recs, err := rel.Get(ctx)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// getThrough runs the two-query plan for has-many-through. With a nil
// constraint it resolves for the single parent; eagerLoad passes the
// owner set through loadThrough instead.
func (rel *Relation) getThrough(ctx context.Context, constraint func(*Query)) ([]*Record, error) {
	v := rel.parent.attributes[rel.localKey]
	if v == nil {
		return nil, nil
	}
	b := rel.conn.Builder(rel.through.table).
		Select(rel.secondLocalKey).
		WhereEq(rel.firstKey, v)
	if rel.morphType != "" {
		b.WhereEq(rel.morphType, rel.morphClass)
	}
	query, args := rel.conn.Grammar().CompileSelect(b)
	rows, err := rel.conn.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	keys := make([]any, 0, len(rows))
	for _, row := range rows {
		if k := row[rel.secondLocalKey]; k != nil {
			keys = append(keys, k)
		}
	}
	q := rel.related.Query(rel.conn).WhereIn(rel.secondKey, keys...)
	rel.applyConstraints(q, constraint)
	return q.All(ctx)
}

func (rel *Relation) applyConstraints(q *Query, constraint func(*Query)) {
	for _, fn := range rel.constraints {
		fn(q)
	}
	if constraint != nil {
		constraint(q)
	}
}

// keyString normalizes a key value for in-memory grouping. Integer-like
// values of different widths compare equal through their printed form.
func keyString(v any) string { return fmt.Sprintf("%v", v) }

// eagerLoad resolves the relation for a whole owner set in a fixed number
// of queries and grafts the results onto each owner under name. It
// returns the related records so nested paths can recurse on them.
func (rel *Relation) eagerLoad(ctx context.Context, owners []*Record, name string, constraint func(*Query)) ([]*Record, error) {
	switch rel.kind {
	case KindHasOne, KindHasMany, KindMorphOne, KindMorphMany:
		return rel.loadHas(ctx, owners, name, constraint)
	case KindBelongsTo:
		return rel.loadBelongsTo(ctx, owners, name, constraint)
	case KindBelongsToMany, KindMorphToMany:
		return rel.loadBelongsToMany(ctx, owners, name, constraint)
	case KindMorphTo:
		return rel.loadMorphTo(ctx, owners, name, constraint)
	case KindHasManyThrough:
		return rel.loadThrough(ctx, owners, name, constraint)
	}
	return nil, nil
}

// distinctKeys collects the distinct non-nil values of column across the
// owner set, preserving first-seen order.
func distinctKeys(owners []*Record, column string) []any {
	seen := make(map[string]bool, len(owners))
	keys := make([]any, 0, len(owners))
	for _, o := range owners {
		v := o.attributes[column]
		if v == nil {
			continue
		}
		s := keyString(v)
		if !seen[s] {
			seen[s] = true
			keys = append(keys, v)
		}
	}
	return keys
}

func (rel *Relation) toMany() bool {
	switch rel.kind {
	case KindHasMany, KindMorphMany, KindBelongsToMany, KindMorphToMany, KindHasManyThrough:
		return true
	}
	return false
}

// initRelation seeds every owner with the empty result for the relation's
// cardinality, so an owner with no match still reads as loaded.
func (rel *Relation) initRelation(owners []*Record, name string) {
	for _, o := range owners {
		if rel.toMany() {
			o.SetRelation(name, []*Record{})
		} else {
			o.SetRelation(name, nil)
		}
	}
}

func (rel *Relation) loadHas(ctx context.Context, owners []*Record, name string, constraint func(*Query)) ([]*Record, error) {
	rel.initRelation(owners, name)
	keys := distinctKeys(owners, rel.localKey)
	if len(keys) == 0 {
		return nil, nil
	}
	q := rel.related.Query(rel.conn)
	if rel.kind == KindMorphOne || rel.kind == KindMorphMany {
		q.WhereEq(rel.morphType, rel.morphClass)
	}
	q.WhereIn(rel.foreignKey, keys...)
	rel.applyConstraints(q, constraint)
	related, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	byOwner := make(map[string][]*Record)
	for _, rr := range related {
		k := keyString(rr.attributes[rel.foreignKey])
		byOwner[k] = append(byOwner[k], rr)
	}
	for _, o := range owners {
		v := o.attributes[rel.localKey]
		if v == nil {
			continue
		}
		matches := byOwner[keyString(v)]
		if rel.toMany() {
			if matches != nil {
				o.SetRelation(name, matches)
			}
		} else if len(matches) > 0 {
			o.SetRelation(name, matches[0])
		}
	}
	return related, nil
}

func (rel *Relation) loadBelongsTo(ctx context.Context, owners []*Record, name string, constraint func(*Query)) ([]*Record, error) {
	rel.initRelation(owners, name)
	keys := distinctKeys(owners, rel.foreignKey)
	if len(keys) == 0 {
		return nil, nil
	}
	q := rel.related.Query(rel.conn).WhereIn(rel.localKey, keys...)
	rel.applyConstraints(q, constraint)
	related, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*Record, len(related))
	for _, rr := range related {
		byKey[keyString(rr.attributes[rel.localKey])] = rr
	}
	for _, o := range owners {
		v := o.attributes[rel.foreignKey]
		if v == nil {
			continue
		}
		if rr, ok := byKey[keyString(v)]; ok {
			o.SetRelation(name, rr)
		}
	}
	return related, nil
}

func (rel *Relation) loadBelongsToMany(ctx context.Context, owners []*Record, name string, constraint func(*Query)) ([]*Record, error) {
	rel.initRelation(owners, name)
	keys := distinctKeys(owners, rel.localKey)
	if len(keys) == 0 {
		return nil, nil
	}
	pb := rel.conn.Builder(rel.pivotTable).WhereIn(rel.pivotForeignKey, keys...)
	if rel.kind == KindMorphToMany {
		pb.WhereEq(rel.morphType, rel.morphClass)
	}
	query, args := rel.conn.Grammar().CompileSelect(pb)
	pivotRows, err := rel.conn.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(pivotRows) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool)
	relatedKeys := make([]any, 0, len(pivotRows))
	for _, row := range pivotRows {
		v := row[rel.pivotRelatedKey]
		if v == nil {
			continue
		}
		s := keyString(v)
		if !seen[s] {
			seen[s] = true
			relatedKeys = append(relatedKeys, v)
		}
	}
	if len(relatedKeys) == 0 {
		return nil, nil
	}
	q := rel.related.Query(rel.conn).WhereIn(rel.foreignKey, relatedKeys...)
	rel.applyConstraints(q, constraint)
	related, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*Record, len(related))
	for _, rr := range related {
		byKey[keyString(rr.attributes[rel.foreignKey])] = rr
	}
	ownersByKey := make(map[string][]*Record, len(owners))
	for _, o := range owners {
		if v := o.attributes[rel.localKey]; v != nil {
			s := keyString(v)
			ownersByKey[s] = append(ownersByKey[s], o)
		}
	}
	// One clone per pivot row: the same related row grafted onto several
	// owners must not share attribute maps.
	out := make([]*Record, 0, len(pivotRows))
	for _, row := range pivotRows {
		rr, ok := byKey[keyString(row[rel.pivotRelatedKey])]
		if !ok {
			continue
		}
		for _, o := range ownersByKey[keyString(row[rel.pivotForeignKey])] {
			c := rr.clone()
			c.pivot = rel.pivotModel().Hydrate(rel.conn, row)
			o.SetRelation(name, append(o.RelationRecords(name), c))
			out = append(out, c)
		}
	}
	return out, nil
}

func (rel *Relation) loadMorphTo(ctx context.Context, owners []*Record, name string, constraint func(*Query)) ([]*Record, error) {
	rel.initRelation(owners, name)
	byType := make(map[string][]*Record)
	for _, o := range owners {
		typ := o.GetString(rel.morphType)
		if typ == "" || o.attributes[rel.foreignKey] == nil {
			continue
		}
		byType[typ] = append(byType[typ], o)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	var all []*Record
	for _, typ := range types {
		m, ok := rel.morphMap[typ]
		if !ok {
			// Unknown discriminator: those owners keep an absent relation.
			continue
		}
		group := byType[typ]
		keys := distinctKeys(group, rel.foreignKey)
		q := m.Query(rel.conn).WhereIn(m.primaryKey, keys...)
		rel.applyConstraints(q, constraint)
		related, err := q.All(ctx)
		if err != nil {
			return nil, err
		}
		byKey := make(map[string]*Record, len(related))
		for _, rr := range related {
			byKey[keyString(rr.attributes[m.primaryKey])] = rr
		}
		for _, o := range group {
			if rr, ok := byKey[keyString(o.attributes[rel.foreignKey])]; ok {
				o.SetRelation(name, rr)
			}
		}
		all = append(all, related...)
	}
	return all, nil
}

func (rel *Relation) loadThrough(ctx context.Context, owners []*Record, name string, constraint func(*Query)) ([]*Record, error) {
	rel.initRelation(owners, name)
	keys := distinctKeys(owners, rel.localKey)
	if len(keys) == 0 {
		return nil, nil
	}
	tb := rel.conn.Builder(rel.through.table).
		Select(rel.firstKey, rel.secondLocalKey).
		WhereIn(rel.firstKey, keys...)
	if rel.morphType != "" {
		tb.WhereEq(rel.morphType, rel.morphClass)
	}
	query, args := rel.conn.Grammar().CompileSelect(tb)
	throughRows, err := rel.conn.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(throughRows) == 0 {
		return nil, nil
	}
	// secondLocal value -> owner keys reachable through it.
	ownersOf := make(map[string][]string)
	seen := make(map[string]bool)
	secondKeys := make([]any, 0, len(throughRows))
	for _, row := range throughRows {
		sl, fk := row[rel.secondLocalKey], row[rel.firstKey]
		if sl == nil || fk == nil {
			continue
		}
		s := keyString(sl)
		ownersOf[s] = append(ownersOf[s], keyString(fk))
		if !seen[s] {
			seen[s] = true
			secondKeys = append(secondKeys, sl)
		}
	}
	if len(secondKeys) == 0 {
		return nil, nil
	}
	q := rel.related.Query(rel.conn).WhereIn(rel.secondKey, secondKeys...)
	rel.applyConstraints(q, constraint)
	related, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	ownersByKey := make(map[string][]*Record, len(owners))
	for _, o := range owners {
		if v := o.attributes[rel.localKey]; v != nil {
			s := keyString(v)
			ownersByKey[s] = append(ownersByKey[s], o)
		}
	}
	out := make([]*Record, 0, len(related))
	for _, rr := range related {
		for _, ownerKey := range ownersOf[keyString(rr.attributes[rel.secondKey])] {
			for _, o := range ownersByKey[ownerKey] {
				c := rr.clone()
				o.SetRelation(name, append(o.RelationRecords(name), c))
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// Attach inserts a pivot row binding the parent to relatedID, carrying
// any extra pivot columns. Valid on many-to-many relations only.
func (rel *Relation) Attach(ctx context.Context, relatedID any, extra map[string]any) error {
	if err := rel.requirePivot(); err != nil {
		return err
	}
	values := map[string]any{
		rel.pivotForeignKey: rel.parent.attributes[rel.localKey],
		rel.pivotRelatedKey: relatedID,
	}
	if rel.kind == KindMorphToMany {
		values[rel.morphType] = rel.morphClass
	}
	for k, v := range extra {
		values[k] = v
	}
	query, args := rel.conn.Grammar().CompileInsert(rel.pivotTable, []map[string]any{values}, "")
	_, err := rel.conn.Exec(ctx, query, args)
	return err
}

// Detach removes the pivot rows binding the parent to the given related
// ids, or every pivot row of the parent when none are given. It returns
// the number of removed rows.
func (rel *Relation) Detach(ctx context.Context, relatedIDs ...any) (int64, error) {
	if err := rel.requirePivot(); err != nil {
		return 0, err
	}
	b := rel.conn.Builder(rel.pivotTable).
		WhereEq(rel.pivotForeignKey, rel.parent.attributes[rel.localKey])
	if rel.kind == KindMorphToMany {
		b.WhereEq(rel.morphType, rel.morphClass)
	}
	if len(relatedIDs) > 0 {
		b.WhereIn(rel.pivotRelatedKey, relatedIDs...)
	}
	query, args := rel.conn.Grammar().CompileDelete(b)
	return rel.conn.Exec(ctx, query, args)
}

// Sync makes the pivot rows of the parent match relatedIDs exactly,
// detaching the rest and attaching the missing ones.
func (rel *Relation) Sync(ctx context.Context, relatedIDs []any) error {
	if err := rel.requirePivot(); err != nil {
		return err
	}
	b := rel.conn.Builder(rel.pivotTable).
		Select(rel.pivotRelatedKey).
		WhereEq(rel.pivotForeignKey, rel.parent.attributes[rel.localKey])
	if rel.kind == KindMorphToMany {
		b.WhereEq(rel.morphType, rel.morphClass)
	}
	query, args := rel.conn.Grammar().CompileSelect(b)
	rows, err := rel.conn.Query(ctx, query, args)
	if err != nil {
		return err
	}
	current := make(map[string]any, len(rows))
	for _, row := range rows {
		if v := row[rel.pivotRelatedKey]; v != nil {
			current[keyString(v)] = v
		}
	}
	wanted := make(map[string]bool, len(relatedIDs))
	for _, id := range relatedIDs {
		wanted[keyString(id)] = true
	}
	var stale []any
	for s, v := range current {
		if !wanted[s] {
			stale = append(stale, v)
		}
	}
	if len(stale) > 0 {
		if _, err := rel.Detach(ctx, stale...); err != nil {
			return err
		}
	}
	for _, id := range relatedIDs {
		if _, ok := current[keyString(id)]; ok {
			continue
		}
		if err := rel.Attach(ctx, id, nil); err != nil {
			return err
		}
	}
	return nil
}

func (rel *Relation) requirePivot() error {
	if rel.kind != KindBelongsToMany && rel.kind != KindMorphToMany {
		return &InvalidQueryError{Reason: "pivot mutation on a relation without an intermediate table"}
	}
	if rel.parent.attributes[rel.localKey] == nil {
		return &InvalidQueryError{Reason: "pivot mutation on an unsaved parent record"}
	}
	return nil
}
