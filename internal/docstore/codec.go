package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	tsSecondsKey = "_seconds"
	tsNanosKey   = "_nanoseconds"
)

// MarshalJSON encodes the timestamp as {"_seconds":..,"_nanoseconds":..}.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"%s":%d,"%s":%d}`, tsSecondsKey, ts.Seconds, tsNanosKey, ts.Nanos)), nil
}

// MarshalDocument encodes d as JSON for storage.
func MarshalDocument(d Document) ([]byte, error) {
	if d == nil {
		d = Document{}
	}
	return json.Marshal(map[string]any(d))
}

// UnmarshalDocument decodes stored JSON, reviving timestamps and keeping
// integers as int.
func UnmarshalDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = revive(v)
	}
	return doc, nil
}

func revive(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		if ts, ok := asTimestamp(val); ok {
			return ts
		}
		for k, inner := range val {
			val[k] = revive(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = revive(inner)
		}
		return val
	}
	return v
}

func asTimestamp(m map[string]any) (Timestamp, bool) {
	if len(m) != 2 {
		return Timestamp{}, false
	}
	sec, ok1 := m[tsSecondsKey].(json.Number)
	nsec, ok2 := m[tsNanosKey].(json.Number)
	if !ok1 || !ok2 {
		return Timestamp{}, false
	}
	s, err1 := sec.Int64()
	n, err2 := nsec.Int64()
	if err1 != nil || err2 != nil {
		return Timestamp{}, false
	}
	return Timestamp{Seconds: s, Nanos: int32(n)}, true
}
