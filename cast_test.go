package quarry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCastInt(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want any
	}{
		{int64(7), int64(7)},
		{7, int64(7)},
		{7.9, int64(7)},
		{"42", int64(42)},
		{"42.7", int64(42)},
		{[]byte("5"), int64(5)},
		{true, int64(1)},
		{"not a number", nil},
		{nil, nil},
	} {
		got, err := CastInt.FromStorage(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}
}

func TestCastFloat(t *testing.T) {
	got, err := CastFloat.FromStorage("3.14")
	require.NoError(t, err)
	assert.Equal(t, 3.14, got)

	got, _ = CastFloat.FromStorage(int64(2))
	assert.Equal(t, 2.0, got)

	got, _ = CastFloat.FromStorage("oops")
	assert.Nil(t, got)
}

func TestCastBool(t *testing.T) {
	for _, truthy := range []any{true, int64(1), "1", "true", "T"} {
		got, err := CastBool.FromStorage(truthy)
		require.NoError(t, err)
		assert.Equal(t, true, got, "input %v", truthy)
	}
	for _, falsy := range []any{false, int64(0), "0", "false", "f"} {
		got, _ := CastBool.FromStorage(falsy)
		assert.Equal(t, false, got, "input %v", falsy)
	}
	got, _ := CastBool.FromStorage("maybe")
	assert.Nil(t, got)

	// Booleans are stored as 0/1 so every dialect accepts them.
	stored, _ := CastBool.ToStorage(true)
	assert.Equal(t, int64(1), stored)
	stored, _ = CastBool.ToStorage(false)
	assert.Equal(t, int64(0), stored)
}

func TestCastDateTime(t *testing.T) {
	got, err := CastDateTime.FromStorage("2026-03-01T12:30:00Z")
	require.NoError(t, err)
	require.IsType(t, time.Time{}, got)
	assert.Equal(t, 2026, got.(time.Time).Year())

	got, _ = CastDateTime.FromStorage("2026-03-01 12:30:00")
	require.NotNil(t, got)

	got, _ = CastDateTime.FromStorage("2026-03-01")
	require.NotNil(t, got)

	got, _ = CastDateTime.FromStorage("yesterday-ish")
	assert.Nil(t, got)

	stored, err := CastDateTime.ToStorage(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:30:00Z", stored)
}

func TestCastJSON(t *testing.T) {
	got, err := CastJSON.FromStorage(`{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, got)

	got, _ = CastJSON.FromStorage("{broken")
	assert.Nil(t, got)

	stored, err := CastJSON.ToStorage(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, stored.(string))

	// A string that is already valid JSON passes through unmodified.
	stored, _ = CastJSON.ToStorage(`[1, 2]`)
	assert.Equal(t, `[1, 2]`, stored)
}

func TestCastArrayAndObjectShapes(t *testing.T) {
	got, _ := CastArray.FromStorage(`[1, 2]`)
	assert.Equal(t, []any{float64(1), float64(2)}, got)
	got, _ = CastArray.FromStorage(`{"not": "array"}`)
	assert.Nil(t, got)

	got, _ = CastObject.FromStorage(`{"a": true}`)
	assert.Equal(t, map[string]any{"a": true}, got)
	got, _ = CastObject.FromStorage(`[1]`)
	assert.Nil(t, got)
}

func TestCastEnum(t *testing.T) {
	c := CastEnum("draft", "published")

	got, err := c.FromStorage("draft")
	require.NoError(t, err)
	assert.Equal(t, "draft", got)

	// Unknown names resolve to absent rather than erroring.
	got, err = c.FromStorage("archived")
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, _ := c.ToStorage("published")
	assert.Equal(t, "published", stored)
	stored, _ = c.ToStorage("archived")
	assert.Nil(t, stored)
}
