package quarry

import (
	"context"
)

// Save persists the record: INSERT for a new record (capturing the
// generated identity), UPDATE of the changed attributes for a persisted
// one. A persisted record with no visible changes skips the write
// entirely unless a capability forces it. Pre-save hooks may veto, in
// which case no I/O happens and Save returns nil.
func (r *Record) Save(ctx context.Context) error {
	if r.gone {
		return ErrRecordGone
	}
	for _, h := range r.model.saving {
		if !h(ctx, r) {
			return nil
		}
	}
	if r.exists {
		// The clean-skip decision runs before capability stamps, so an
		// updated_at bump alone never causes a write. A capability that
		// wants one anyway forces it through ForceWriter.
		forced := false
		for _, c := range r.model.capabilities {
			if f, ok := c.(ForceWriter); ok && f.ForcesWrite(r) {
				forced = true
				break
			}
		}
		if r.Clean() && !forced {
			for _, h := range r.model.saved {
				h(ctx, r)
			}
			return nil
		}
		if err := r.update(ctx); err != nil {
			return err
		}
	} else {
		if err := r.insert(ctx); err != nil {
			return err
		}
	}
	r.SyncOriginal()
	for _, h := range r.model.saved {
		h(ctx, r)
	}
	return nil
}

func (r *Record) insert(ctx context.Context) error {
	for _, c := range r.model.capabilities {
		if p, ok := c.(PreSaver); ok {
			p.PreSave(r, true)
		}
	}
	values := r.Dehydrate()
	if r.model.autoIncrement && values[r.model.primaryKey] == nil {
		delete(values, r.model.primaryKey)
	}
	id, err := r.conn.Insert(ctx, r.model.table, values, r.model.primaryKey, r.model.autoIncrement)
	if err != nil {
		return err
	}
	if r.model.autoIncrement && id != nil {
		r.attributes[r.model.primaryKey] = id
	}
	r.exists = true
	return nil
}

func (r *Record) update(ctx context.Context) error {
	for _, c := range r.model.capabilities {
		if p, ok := c.(PreSaver); ok {
			p.PreSave(r, false)
		}
	}
	dirty := r.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	b := r.conn.Builder(r.model.table).WhereEq(r.model.primaryKey, r.Key())
	query, args := r.conn.Grammar().CompileUpdate(b, dirty)
	_, err := r.conn.Exec(ctx, query, args)
	return err
}

// Delete removes the record. With a soft-delete capability installed the
// row is kept and its deletion marker set; otherwise the row is deleted
// by primary key and the record transitions to gone. Pre-delete hooks may
// veto, in which case no I/O happens and Delete returns nil.
func (r *Record) Delete(ctx context.Context) error {
	if r.gone {
		return ErrRecordGone
	}
	if !r.exists {
		return nil
	}
	for _, h := range r.model.deleting {
		if !h(ctx, r) {
			return nil
		}
	}
	handled := false
	for _, c := range r.model.capabilities {
		if d, ok := c.(DeleteInterceptor); ok {
			h, err := d.InterceptDelete(ctx, r)
			if err != nil {
				return err
			}
			if h {
				handled = true
				break
			}
		}
	}
	if !handled {
		b := r.conn.Builder(r.model.table).WhereEq(r.model.primaryKey, r.Key())
		query, args := r.conn.Grammar().CompileDelete(b)
		if _, err := r.conn.Exec(ctx, query, args); err != nil {
			return err
		}
		r.exists = false
		r.gone = true
	}
	for _, h := range r.model.deleted {
		h(ctx, r)
	}
	return nil
}

// ForceDelete removes the row physically even when a soft-delete
// capability is installed.
func (r *Record) ForceDelete(ctx context.Context) error {
	if r.gone {
		return ErrRecordGone
	}
	if !r.exists {
		return nil
	}
	for _, h := range r.model.deleting {
		if !h(ctx, r) {
			return nil
		}
	}
	b := r.conn.Builder(r.model.table).WhereEq(r.model.primaryKey, r.Key())
	query, args := r.conn.Grammar().CompileDelete(b)
	if _, err := r.conn.Exec(ctx, query, args); err != nil {
		return err
	}
	r.exists = false
	r.gone = true
	for _, h := range r.model.deleted {
		h(ctx, r)
	}
	return nil
}

// Trashed reports whether the record carries a soft-deletion marker.
func (r *Record) Trashed() bool {
	c, ok := r.model.capability(softDeleteScope)
	if !ok {
		return false
	}
	return r.attributes[c.(*SoftDeletes).Column] != nil
}

// Restore clears the soft-deletion marker and persists the change. It is
// a no-op on models without the soft-delete capability.
func (r *Record) Restore(ctx context.Context) error {
	if r.gone {
		return ErrRecordGone
	}
	c, ok := r.model.capability(softDeleteScope)
	if !ok {
		return nil
	}
	column := c.(*SoftDeletes).Column
	if err := r.Set(column, nil); err != nil {
		return err
	}
	if !r.IsDirty(column) {
		return nil
	}
	b := r.conn.Builder(r.model.table).WhereEq(r.model.primaryKey, r.Key())
	query, args := r.conn.Grammar().CompileUpdate(b, map[string]any{column: nil})
	if _, err := r.conn.Exec(ctx, query, args); err != nil {
		return err
	}
	r.SyncOriginal()
	return nil
}
