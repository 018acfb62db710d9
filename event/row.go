package event

import json "github.com/goccy/go-json"

// Canonical text layouts for temporal values written to the index.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Row maps column names to values.
type Row map[string]Value

// Clone returns a shallow copy of r. A nil row clones to nil.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RowOf builds a Row from plain Go values using ValueOf.
func RowOf(m map[string]any) Row {
	if m == nil {
		return nil
	}
	r := make(Row, len(m))
	for k, v := range m {
		r[k] = ValueOf(v)
	}
	return r
}

// MarshalJSON encodes the row as a JSON object with keys in sorted order.
func (r Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]Value(r))
}
