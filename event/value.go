package event

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// ValueKind tags the dynamic type held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindDateTime
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	default:
		return "unknown"
	}
}

// Value is a single column value from a replicated row. The zero Value is
// Null. Only the field matching kind is meaningful.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
}

func NullValue() Value                { return Value{} }
func BoolValue(b bool) Value          { return Value{kind: KindBool, b: b} }
func IntValue(i int64) Value          { return Value{kind: KindInt, i: i} }
func FloatValue(f float64) Value      { return Value{kind: KindFloat, f: f} }
func StringValue(s string) Value      { return Value{kind: KindString, s: s} }
func DateValue(t time.Time) Value     { return Value{kind: KindDate, t: t} }
func DateTimeValue(t time.Time) Value { return Value{kind: KindDateTime, t: t} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// IsTemporal reports whether v holds a date or a datetime.
func (v Value) IsTemporal() bool { return v.kind == KindDate || v.kind == KindDateTime }

func (v Value) Bool() bool      { return v.b }
func (v Value) Int() int64      { return v.i }
func (v Value) Float() float64  { return v.f }
func (v Value) Str() string     { return v.s }
func (v Value) Time() time.Time { return v.t }

// String renders the value as text. Null renders as "". Temporal values use
// the canonical date and datetime layouts.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	case KindDate:
		return v.t.Format(DateLayout)
	case KindDateTime:
		return v.t.Format(DateTimeLayout)
	default:
		return ""
	}
}

// Any returns the value as a plain Go scalar (nil, bool, int64, float64,
// string or time.Time).
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindDate, KindDateTime:
		return v.t
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	default:
		return v.t.Equal(o.t)
	}
}

// MarshalJSON writes the natural JSON scalar for the value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindDate, KindDateTime:
		return json.Marshal(v.String())
	default:
		return json.Marshal(v.Any())
	}
}

// ValueOf converts a plain Go scalar into a Value. Unknown types are rendered
// with their default string form. time.Time becomes a DateTime.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int8:
		return IntValue(int64(t))
	case int16:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint8:
		return IntValue(int64(t))
	case uint16:
		return IntValue(int64(t))
	case uint32:
		return IntValue(int64(t))
	case uint:
		return uintValue(uint64(t))
	case uint64:
		return uintValue(t)
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case string:
		return StringValue(t)
	case []byte:
		return StringValue(string(t))
	case time.Time:
		return DateTimeValue(t)
	default:
		return StringValue(fmt.Sprint(t))
	}
}

// uintValue keeps unsigned values that overflow int64 as decimal strings.
func uintValue(u uint64) Value {
	if u > 1<<63-1 {
		return StringValue(strconv.FormatUint(u, 10))
	}
	return IntValue(int64(u))
}
