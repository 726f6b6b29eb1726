package quarry

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Record is the in-memory representation of one storage row. Attributes
// hold storage primitives (typed values are dehydrated on write); the
// original snapshot is captured at hydration time and after each
// successful write, so IsDirty(key) is always attributes[key] !=
// original[key].
type Record struct {
	model      *Model
	conn       *Conn
	attributes map[string]any
	original   map[string]any
	relations  map[string]any
	pivot      *Record
	exists     bool
	gone       bool
}

// Model returns the record's model.
func (r *Record) Model() *Model { return r.model }

// Conn returns the connection the record is bound to.
func (r *Record) Conn() *Conn { return r.conn }

// Exists reports whether the record has a persisted row.
func (r *Record) Exists() bool { return r.exists }

// Key returns the raw primary key value, or nil for a new record.
func (r *Record) Key() any { return r.attributes[r.model.primaryKey] }

// Get returns the typed value for the given column, lazily coerced
// through the column's cast. Built-in cast failures and NULLs resolve to
// nil; custom caster failures propagate wrapped in *CastError.
func (r *Record) Get(key string) (any, error) {
	raw, ok := r.attributes[key]
	if !ok || raw == nil {
		return nil, nil
	}
	c, ok := r.model.casts[key]
	if !ok {
		return raw, nil
	}
	v, err := c.FromStorage(raw)
	if err != nil {
		return nil, &CastError{Key: key, Err: err}
	}
	return v, nil
}

// MustGet is Get without the error; custom-caster failures resolve to nil.
func (r *Record) MustGet(key string) any {
	v, _ := r.Get(key)
	return v
}

// GetString returns the column as a string, or "" when absent.
func (r *Record) GetString(key string) string {
	v, _ := r.Get(key)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// GetInt64 returns the column as an int64, or 0 when absent.
func (r *Record) GetInt64(key string) int64 {
	v, _ := r.Get(key)
	n, _ := CastInt.FromStorage(v)
	if n == nil {
		return 0
	}
	return n.(int64)
}

// GetBool returns the column as a bool, or false when absent.
func (r *Record) GetBool(key string) bool {
	v, _ := r.Get(key)
	b, _ := CastBool.FromStorage(v)
	return b == true
}

// GetTime returns the column as a time.Time, or the zero time when absent.
func (r *Record) GetTime(key string) time.Time {
	v, _ := r.Get(key)
	t, _ := CastDateTime.FromStorage(v)
	if t == nil {
		return time.Time{}
	}
	return t.(time.Time)
}

// Set stores a typed value, converting it to its storage-safe primitive
// immediately through the column's cast. An explicit nil bypasses all
// casting and is stored as-is. Custom caster failures propagate.
func (r *Record) Set(key string, value any) error {
	if value == nil {
		r.attributes[key] = nil
		return nil
	}
	c, ok := r.model.casts[key]
	if !ok {
		r.attributes[key] = value
		return nil
	}
	stored, err := c.ToStorage(value)
	if err != nil {
		return &CastError{Key: key, Err: err}
	}
	r.attributes[key] = stored
	return nil
}

// Fill mass-assigns the given values through Set, honoring the model's
// fillable/guarded whitelist. A key outside the whitelist rejects the
// whole call with *MassAssignmentError before any assignment.
func (r *Record) Fill(values map[string]any) error {
	for k := range values {
		if !r.model.assignable(k) {
			return &MassAssignmentError{Model: r.model.name, Key: k}
		}
	}
	for k, v := range values {
		if err := r.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// assignable reports whether a column may be mass-assigned.
func (m *Model) assignable(key string) bool {
	if len(m.fillable) > 0 {
		return m.fillable[key]
	}
	if m.guarded["*"] {
		return false
	}
	return !m.guarded[key]
}

// IsDirty reports whether the column's current value differs from the
// original snapshot.
func (r *Record) IsDirty(key string) bool {
	cur, curOK := r.attributes[key]
	orig, origOK := r.original[key]
	if curOK != origOK {
		return true
	}
	return !valuesEqual(cur, orig)
}

// Dirty returns the changed attribute subset in storage form.
func (r *Record) Dirty() map[string]any {
	dirty := make(map[string]any)
	for k, v := range r.attributes {
		if r.IsDirty(k) {
			dirty[k] = v
		}
	}
	for k := range r.original {
		if _, ok := r.attributes[k]; !ok {
			dirty[k] = nil
		}
	}
	return dirty
}

// Clean reports whether no attribute differs from the original snapshot.
func (r *Record) Clean() bool { return len(r.Dirty()) == 0 }

// SyncOriginal resnapshots the current attributes as the original state.
func (r *Record) SyncOriginal() {
	r.original = make(map[string]any, len(r.attributes))
	for k, v := range r.attributes {
		r.original[k] = v
	}
}

// Original returns the column value from the original snapshot.
func (r *Record) Original(key string) any { return r.original[key] }

// Attributes returns a copy of the raw attribute map.
func (r *Record) Attributes() map[string]any {
	out := make(map[string]any, len(r.attributes))
	for k, v := range r.attributes {
		out[k] = v
	}
	return out
}

// Dehydrate returns the storage-safe row for the record. Attributes are
// already kept in storage form, so this is a copy.
func (r *Record) Dehydrate() map[string]any { return r.Attributes() }

// SetRelation stores a loaded relation result (a *Record, []*Record or
// nil for an absent relation).
func (r *Record) SetRelation(name string, value any) {
	r.relations[name] = value
}

// RelationValue returns a loaded relation result. The second return is
// false when the relation was never loaded.
func (r *Record) RelationValue(name string) (any, bool) {
	v, ok := r.relations[name]
	return v, ok
}

// RelationRecord returns a loaded to-one relation, or nil when absent or
// not loaded.
func (r *Record) RelationRecord(name string) *Record {
	v, ok := r.relations[name]
	if !ok || v == nil {
		return nil
	}
	rec, _ := v.(*Record)
	return rec
}

// RelationRecords returns a loaded to-many relation.
func (r *Record) RelationRecords(name string) []*Record {
	v, ok := r.relations[name]
	if !ok || v == nil {
		return nil
	}
	recs, _ := v.([]*Record)
	return recs
}

// Pivot returns the intermediate-table record for a many-to-many result,
// or nil outside that context.
func (r *Record) Pivot() *Record { return r.pivot }

// Related returns the named relation descriptor for this record.
func (r *Record) Related(name string) (*Relation, error) {
	fn, ok := r.model.relations[name]
	if !ok {
		return nil, &RelationError{Model: r.model.name, Relation: name}
	}
	return fn(r), nil
}

// Load eager-loads the given (possibly nested dot-path) relations onto
// this record.
func (r *Record) Load(ctx context.Context, paths ...string) error {
	q := r.model.Query(r.conn)
	for _, p := range paths {
		q.With(p)
	}
	return q.loadRelations(ctx, []*Record{r})
}

// clone returns a shallow copy sharing no attribute maps with the
// original. Used when one related row is grafted onto several owners.
func (r *Record) clone() *Record {
	c := r.model.Hydrate(r.conn, r.attributes)
	c.exists = r.exists
	return c
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
