package docstore

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Document is an untyped remote document: top-level field name to value.
// Values are nil, bool, string, numbers, Timestamp, []any or map[string]any.
type Document map[string]any

// Snapshot is one document together with its id.
type Snapshot struct {
	ID   string
	Data Document
}

// Timestamp is the boxed remote time representation.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// FromTime boxes t.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time unboxes ts in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// Clone deep-copies d so callers never share nested maps or slices.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case Document:
		return val.Clone()
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	default:
		return v
	}
}

// Merge overlays patch onto d: keys present in patch overwrite, others stay.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	if out == nil {
		out = make(Document, len(patch))
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}

// FieldError reports a field with an unexpected type.
type FieldError struct {
	Field string
	Want  string
	Got   any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: expected %s, got %T", e.Field, e.Want, e.Got)
}

// String reads an optional string field.
func (d Document) String(key string) (*string, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &FieldError{Field: key, Want: "string", Got: v}
	}
	return &s, nil
}

// Bool reads an optional bool field.
func (d Document) Bool(key string) (*bool, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, &FieldError{Field: key, Want: "bool", Got: v}
	}
	return &b, nil
}

// Int reads an optional integer field. Integral floats are accepted since
// JSON backends may hand numbers back as float64.
func (d Document) Int(key string) (*int, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := toInt(v)
	if !ok {
		return nil, &FieldError{Field: key, Want: "integer", Got: v}
	}
	return &n, nil
}

// Float reads an optional number field.
func (d Document) Float(key string) (*float64, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, &FieldError{Field: key, Want: "number", Got: v}
	}
	return &f, nil
}

// Time reads an optional Timestamp field as a native time.
func (d Document) Time(key string) (*time.Time, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch ts := v.(type) {
	case Timestamp:
		t := ts.Time()
		return &t, nil
	case *Timestamp:
		t := ts.Time()
		return &t, nil
	case time.Time:
		t := ts.UTC()
		return &t, nil
	}
	return nil, &FieldError{Field: key, Want: "timestamp", Got: v}
}

// Strings reads an optional list of strings.
func (d Document) Strings(key string) ([]string, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string{}, list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, &FieldError{Field: key, Want: "string list", Got: v}
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, &FieldError{Field: key, Want: "string list", Got: v}
}

// Ints reads an optional list of integers.
func (d Document) Ints(key string) ([]int, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []int:
		return append([]int{}, list...), nil
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			n, ok := toInt(item)
			if !ok {
				return nil, &FieldError{Field: key, Want: "integer list", Got: v}
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, &FieldError{Field: key, Want: "integer list", Got: v}
}

// PutString sets key when v is not nil.
func (d Document) PutString(key string, v *string) {
	if v != nil {
		d[key] = *v
	}
}

// PutBool sets key when v is not nil.
func (d Document) PutBool(key string, v *bool) {
	if v != nil {
		d[key] = *v
	}
}

// PutInt sets key when v is not nil.
func (d Document) PutInt(key string, v *int) {
	if v != nil {
		d[key] = *v
	}
}

// PutFloat sets key when v is not nil.
func (d Document) PutFloat(key string, v *float64) {
	if v != nil {
		d[key] = *v
	}
}

// PutTime boxes and sets key when v is not nil.
func (d Document) PutTime(key string, v *time.Time) {
	if v != nil {
		d[key] = FromTime(*v)
	}
}

// PutStrings sets key when v is not nil.
func (d Document) PutStrings(key string, v []string) {
	if v != nil {
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		d[key] = list
	}
}

// PutInts sets key when v is not nil.
func (d Document) PutInts(key string, v []int) {
	if v != nil {
		list := make([]any, len(v))
		for i, n := range v {
			list[i] = n
		}
		d[key] = list
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
