package quarry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Caster converts a column value between its storage primitive and its
// domain type. Built-in casters never fail: unparseable values degrade to
// an absent (nil) result. Custom casters may fail, and their errors
// propagate to the caller wrapped in *CastError.
type Caster interface {
	// FromStorage converts a raw storage value to the domain value.
	FromStorage(raw any) (any, error)
	// ToStorage converts a domain value to a storage-safe primitive.
	ToStorage(v any) (any, error)
}

// Built-in casts, keyed per column in a Model's cast map.
var (
	// CastInt coerces to int64, with a float fallback for numeric strings.
	CastInt Caster = intCast{}
	// CastFloat coerces to float64.
	CastFloat Caster = floatCast{}
	// CastBool coerces "1"/"true"/1 style values to bool; stores as 0/1.
	CastBool Caster = boolCast{}
	// CastDateTime coerces ISO-8601 strings to time.Time; stores RFC3339.
	CastDateTime Caster = timeCast{}
	// CastJSON decodes JSON text to a generic value.
	CastJSON Caster = jsonCast{}
	// CastArray decodes JSON text to a []any; non-arrays are absent.
	CastArray Caster = arrayCast{}
	// CastObject decodes JSON text to a map[string]any; non-objects are absent.
	CastObject Caster = objectCast{}
)

// CastEnum returns a caster that reads values back by name lookup against
// the supplied set. Unknown names resolve to absent rather than erroring.
func CastEnum(values ...string) Caster {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return enumCast{set}
}

type intCast struct{}

func (intCast) FromStorage(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return parseInt(string(v)), nil
	case string:
		return parseInt(v), nil
	}
	return nil, nil
}

func (intCast) ToStorage(v any) (any, error) {
	out, _ := intCast{}.FromStorage(v)
	return out, nil
}

func parseInt(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return nil
}

type floatCast struct{}

func (floatCast) FromStorage(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case []byte:
		return parseFloat(string(v)), nil
	case string:
		return parseFloat(v), nil
	}
	return nil, nil
}

func (floatCast) ToStorage(v any) (any, error) {
	out, _ := floatCast{}.FromStorage(v)
	return out, nil
}

func parseFloat(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return nil
}

type boolCast struct{}

func (boolCast) FromStorage(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(v) {
		case "1", "true", "t":
			return true, nil
		case "0", "false", "f":
			return false, nil
		}
		return nil, nil
	}
	return nil, nil
}

// ToStorage stores booleans as 0/1 so every dialect accepts them.
func (boolCast) ToStorage(v any) (any, error) {
	b, _ := boolCast{}.FromStorage(v)
	switch b {
	case true:
		return int64(1), nil
	case false:
		return int64(0), nil
	}
	return nil, nil
}

type timeCast struct{}

func (timeCast) FromStorage(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v, nil
	case []byte:
		return parseTime(string(v)), nil
	case string:
		return parseTime(v), nil
	}
	return nil, nil
}

func (timeCast) ToStorage(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339), nil
	case string:
		if parsed := parseTime(t); parsed != nil {
			return parsed.(time.Time).UTC().Format(time.RFC3339), nil
		}
	}
	return nil, nil
}

func parseTime(s string) any {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return nil
}

type jsonCast struct{}

func (jsonCast) FromStorage(raw any) (any, error) {
	return decodeJSON(raw), nil
}

func (jsonCast) ToStorage(v any) (any, error) {
	return encodeJSON(v), nil
}

type arrayCast struct{}

func (arrayCast) FromStorage(raw any) (any, error) {
	if v, ok := decodeJSON(raw).([]any); ok {
		return v, nil
	}
	return nil, nil
}

func (arrayCast) ToStorage(v any) (any, error) {
	return encodeJSON(v), nil
}

type objectCast struct{}

func (objectCast) FromStorage(raw any) (any, error) {
	if v, ok := decodeJSON(raw).(map[string]any); ok {
		return v, nil
	}
	return nil, nil
}

func (objectCast) ToStorage(v any) (any, error) {
	return encodeJSON(v), nil
}

func decodeJSON(raw any) any {
	var text []byte
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		text = []byte(v)
	case []byte:
		text = v
	default:
		return nil
	}
	var out any
	if err := json.Unmarshal(text, &out); err != nil {
		return nil
	}
	return out
}

// encodeJSON tries the value's own serializer before falling back to
// generic encoding.
func encodeJSON(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && json.Valid([]byte(s)) {
		return s
	}
	if m, ok := v.(json.Marshaler); ok {
		if b, err := m.MarshalJSON(); err == nil {
			return string(b)
		}
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

type enumCast struct {
	values map[string]bool
}

func (e enumCast) FromStorage(raw any) (any, error) {
	s, ok := rawString(raw)
	if !ok || !e.values[s] {
		return nil, nil
	}
	return s, nil
}

func (e enumCast) ToStorage(v any) (any, error) {
	s, ok := rawString(v)
	if !ok || !e.values[s] {
		return nil, nil
	}
	return s, nil
}

func rawString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}
