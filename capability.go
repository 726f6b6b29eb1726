package quarry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Capability is a composable cross-cutting behavior the lifecycle
// orchestrator consults at fixed extension points. Install runs once when
// the capability is registered on a model; the optional sub-interfaces
// below hook the remaining extension points.
type Capability interface {
	// Name identifies the capability (also used to skip its scopes).
	Name() string
	// Install wires the capability into the model: casts, global scopes,
	// key semantics.
	Install(m *Model)
}

// PreSaver runs right before an insert or update is rendered. It runs
// after the clean-skip decision, so a bump it performs never forces a
// write on its own; see ForceWriter for that.
type PreSaver interface {
	PreSave(r *Record, isNew bool)
}

// ForceWriter lets a capability force an update even when the caller made
// no visible change. A forced write wins over the clean-skip rule.
type ForceWriter interface {
	ForcesWrite(r *Record) bool
}

// DeleteInterceptor lets a capability replace the physical DELETE, e.g.
// with a soft-delete marker update. Returning handled stops the
// orchestrator from deleting the row.
type DeleteInterceptor interface {
	InterceptDelete(ctx context.Context, r *Record) (handled bool, err error)
}

// Timestamps maintains created_at/updated_at audit columns.
type Timestamps struct {
	// CreatedColumn defaults to "created_at".
	CreatedColumn string
	// UpdatedColumn defaults to "updated_at".
	UpdatedColumn string
	// now is overridable in tests.
	now func() time.Time
}

// Name implements Capability.
func (t *Timestamps) Name() string { return "timestamps" }

// Install registers datetime casts for the audit columns.
func (t *Timestamps) Install(m *Model) {
	if t.CreatedColumn == "" {
		t.CreatedColumn = "created_at"
	}
	if t.UpdatedColumn == "" {
		t.UpdatedColumn = "updated_at"
	}
	if t.now == nil {
		t.now = time.Now
	}
	m.Cast(t.CreatedColumn, CastDateTime)
	m.Cast(t.UpdatedColumn, CastDateTime)
}

// PreSave stamps the audit columns.
func (t *Timestamps) PreSave(r *Record, isNew bool) {
	now := t.now().UTC()
	if isNew {
		_ = r.Set(t.CreatedColumn, now)
	}
	_ = r.Set(t.UpdatedColumn, now)
}

// softDeleteScope is the global scope name SoftDeletes installs; queries
// skip it via WithTrashed.
const softDeleteScope = "soft_deletes"

// SoftDeletes turns Delete into an UPDATE of a deletion marker and
// excludes marked rows from default queries through a global scope.
type SoftDeletes struct {
	// Column defaults to "deleted_at".
	Column string
	// now is overridable in tests.
	now func() time.Time
}

// Name implements Capability.
func (s *SoftDeletes) Name() string { return softDeleteScope }

// Install registers the marker cast and the exclusion scope.
func (s *SoftDeletes) Install(m *Model) {
	if s.Column == "" {
		s.Column = "deleted_at"
	}
	if s.now == nil {
		s.now = time.Now
	}
	m.Cast(s.Column, CastDateTime)
	column := m.table + "." + s.Column
	m.Scope(softDeleteScope, func(q *Query) {
		q.WhereNull(column)
	})
}

// InterceptDelete sets the deletion marker instead of deleting the row.
func (s *SoftDeletes) InterceptDelete(ctx context.Context, r *Record) (bool, error) {
	if err := r.Set(s.Column, s.now().UTC()); err != nil {
		return true, err
	}
	values := map[string]any{s.Column: r.attributes[s.Column]}
	b := r.conn.Builder(r.model.table).WhereEq(r.model.primaryKey, r.Key())
	query, args := r.conn.Grammar().CompileUpdate(b, values)
	if _, err := r.conn.Exec(ctx, query, args); err != nil {
		return true, err
	}
	r.SyncOriginal()
	return true, nil
}

// UUIDKey assigns a random UUID string primary key on insert and turns
// off auto-increment identity fetching.
type UUIDKey struct{}

// Name implements Capability.
func (UUIDKey) Name() string { return "uuid_key" }

// Install disables auto-increment semantics for the primary key.
func (UUIDKey) Install(m *Model) {
	m.autoIncrement = false
}

// PreSave assigns a fresh UUID when the key is still unset.
func (UUIDKey) PreSave(r *Record, isNew bool) {
	if isNew && r.Key() == nil {
		_ = r.Set(r.model.primaryKey, uuid.NewString())
	}
}
