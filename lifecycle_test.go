package quarry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveInsertsNewRecord(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	r := m.New(conn)
	require.NoError(t, r.Set("name", "ana"))
	require.NoError(t, r.Set("email", "ana@example.com"))

	mock.ExpectExec(`INSERT INTO "users" ("email", "name") VALUES (?, ?)`).
		WithArgs("ana@example.com", "ana").
		WillReturnResult(sqlmock.NewResult(42, 1))

	require.NoError(t, r.Save(context.Background()))
	assert.Equal(t, int64(42), r.Key())
	assert.True(t, r.Exists())
	assert.True(t, r.Clean())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNewRecordWithoutAttributes(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("Item")
	r := m.New(conn)

	mock.ExpectExec(`INSERT INTO "items" DEFAULT VALUES`).
		WillReturnResult(sqlmock.NewResult(7, 1))

	require.NoError(t, r.Save(context.Background()))
	assert.Equal(t, int64(7), r.Key())
	assert.True(t, r.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInsertReturningPostgres(t *testing.T) {
	conn, mock := newPostgresMockConn(t)
	m := NewModel("User")
	r := m.New(conn)
	require.NoError(t, r.Set("name", "ana"))

	mock.ExpectQuery(`INSERT INTO "users" ("name") VALUES ($1) RETURNING "id"`).
		WithArgs("ana").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, r.Save(context.Background()))
	assert.Equal(t, int64(7), r.Key())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpdatesOnlyDirtyColumns(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User")
	r := m.Hydrate(conn, map[string]any{"id": int64(1), "name": "ana", "email": "ana@example.com"})
	require.NoError(t, r.Set("name", "bo"))

	mock.ExpectExec(`UPDATE "users" SET "name" = ? WHERE "id" = ?`).
		WithArgs("bo", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Save(context.Background()))
	assert.True(t, r.Clean())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSkipsWriteWhenClean(t *testing.T) {
	conn, mock := newMockConn(t)
	saved := 0
	m := NewModel("User").Saved(func(context.Context, *Record) { saved++ })
	r := m.Hydrate(conn, map[string]any{"id": int64(1), "name": "ana"})

	require.NoError(t, r.Save(context.Background()))
	assert.Equal(t, 1, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimestampBumpAloneNeverForcesWrite(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User").Use(&Timestamps{now: func() time.Time {
		return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	}})
	r := m.Hydrate(conn, map[string]any{"id": int64(1), "name": "ana", "updated_at": "2025-01-01T00:00:00Z"})

	// No visible change: the clean-skip decision runs before the stamp.
	require.NoError(t, r.Save(context.Background()))
	assert.Equal(t, "2025-01-01T00:00:00Z", r.Attributes()["updated_at"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimestampsStampOnInsertAndUpdate(t *testing.T) {
	conn, mock := newMockConn(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewModel("User").Use(&Timestamps{now: func() time.Time { return now }})

	r := m.New(conn)
	require.NoError(t, r.Set("name", "ana"))
	mock.ExpectExec(`INSERT INTO "users" ("created_at", "name", "updated_at") VALUES (?, ?, ?)`).
		WithArgs("2026-05-01T10:00:00Z", "ana", "2026-05-01T10:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, r.Save(context.Background()))

	now = now.Add(time.Hour)
	require.NoError(t, r.Set("name", "bo"))
	mock.ExpectExec(`UPDATE "users" SET "name" = ?, "updated_at" = ? WHERE "id" = ?`).
		WithArgs("bo", "2026-05-01T11:00:00Z", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Save(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// forceTouch forces a write on every save and stamps a column, standing in
// for capabilities that must win over the clean-skip rule.
type forceTouch struct{ stamp string }

func (f *forceTouch) Name() string             { return "force_touch" }
func (f *forceTouch) Install(*Model)           {}
func (f *forceTouch) ForcesWrite(*Record) bool { return true }
func (f *forceTouch) PreSave(r *Record, _ bool) {
	_ = r.Set("touched_at", f.stamp)
}

func TestCapabilityForcedWriteWinsOverCleanSkip(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User").Use(&forceTouch{stamp: "2026-05-01T10:00:00Z"})
	r := m.Hydrate(conn, map[string]any{"id": int64(1), "name": "ana"})

	mock.ExpectExec(`UPDATE "users" SET "touched_at" = ? WHERE "id" = ?`).
		WithArgs("2026-05-01T10:00:00Z", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Save(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavingHookVetoesWithoutIO(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User").Saving(func(context.Context, *Record) bool { return false })
	r := m.New(conn)
	require.NoError(t, r.Set("name", "ana"))

	require.NoError(t, r.Save(context.Background()))
	assert.False(t, r.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesRow(t *testing.T) {
	conn, mock := newMockConn(t)
	deleted := 0
	m := NewModel("User").Deleted(func(context.Context, *Record) { deleted++ })
	r := m.Hydrate(conn, map[string]any{"id": int64(1)})

	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Delete(context.Background()))
	assert.False(t, r.Exists())
	assert.Equal(t, 1, deleted)

	// The record is gone; further writes are refused.
	assert.ErrorIs(t, r.Save(context.Background()), ErrRecordGone)
	assert.ErrorIs(t, r.Delete(context.Background()), ErrRecordGone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletingHookVetoes(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User").Deleting(func(context.Context, *Record) bool { return false })
	r := m.Hydrate(conn, map[string]any{"id": int64(1)})

	require.NoError(t, r.Delete(context.Background()))
	assert.True(t, r.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMarksInsteadOfDeleting(t *testing.T) {
	conn, mock := newMockConn(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := NewModel("Post").Use(&SoftDeletes{now: func() time.Time { return now }})
	r := m.Hydrate(conn, map[string]any{"id": int64(1), "title": "hello"})

	mock.ExpectExec(`UPDATE "posts" SET "deleted_at" = ? WHERE "id" = ?`).
		WithArgs("2026-05-01T10:00:00Z", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Delete(context.Background()))
	assert.True(t, r.Exists())
	assert.True(t, r.Trashed())
	assert.True(t, r.Clean())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreClearsDeletionMarker(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("Post").Use(&SoftDeletes{})
	r := m.Hydrate(conn, map[string]any{"id": int64(1), "deleted_at": "2026-05-01T10:00:00Z"})
	require.True(t, r.Trashed())

	mock.ExpectExec(`UPDATE "posts" SET "deleted_at" = ? WHERE "id" = ?`).
		WithArgs(nil, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Restore(context.Background()))
	assert.False(t, r.Trashed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestForceDeleteBypassesSoftDelete(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("Post").Use(&SoftDeletes{})
	r := m.Hydrate(conn, map[string]any{"id": int64(1)})

	mock.ExpectExec(`DELETE FROM "posts" WHERE "id" = ?`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.ForceDelete(context.Background()))
	assert.False(t, r.Exists())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUUIDKeyAssignsKeyOnInsert(t *testing.T) {
	conn, mock := newMockConn(t)
	m := NewModel("User").Use(UUIDKey{})
	r := m.New(conn)
	require.NoError(t, r.Set("name", "ana"))

	mock.ExpectExec(`INSERT INTO "users" ("id", "name") VALUES (?, ?)`).
		WithArgs(sqlmock.AnyArg(), "ana").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Save(context.Background()))
	key, ok := r.Key().(string)
	require.True(t, ok)
	assert.Len(t, key, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}
