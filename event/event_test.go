package event

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		pos         Position
		zero, known bool
		str         string
	}{
		{Position{}, true, false, ":0"},
		{Position{File: "mysql-bin.000001"}, false, false, "mysql-bin.000001:0"},
		{Position{Offset: 4}, false, false, ":4"},
		{Position{File: "mysql-bin.000001", Offset: 4}, false, true, "mysql-bin.000001:4"},
	}
	for _, tt := range tests {
		if tt.pos.IsZero() != tt.zero || tt.pos.Known() != tt.known {
			t.Errorf("%v: IsZero=%v Known=%v", tt.pos, tt.pos.IsZero(), tt.pos.Known())
		}
		if tt.pos.String() != tt.str {
			t.Errorf("String = %q, want %q", tt.pos.String(), tt.str)
		}
	}
}

func TestParsePosition(t *testing.T) {
	got, err := ParsePosition("mysql-bin.000003:4562")
	if err != nil {
		t.Fatal(err)
	}
	if want := (Position{File: "mysql-bin.000003", Offset: 4562}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, bad := range []string{"", "mysql-bin.000003", ":12", "file:", "file:-1", "file:abc"} {
		if _, err := ParsePosition(bad); err == nil {
			t.Errorf("ParsePosition(%q) succeeded", bad)
		}
	}
}

func TestValue_JSON(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	row := Row{
		"null":  NullValue(),
		"bool":  BoolValue(true),
		"int":   IntValue(-3),
		"float": FloatValue(2.5),
		"str":   StringValue("x"),
		"date":  DateValue(ts),
		"dt":    DateTimeValue(ts),
	}
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"null": nil, "bool": true, "int": float64(-3), "float": 2.5,
		"str": "x", "date": "2024-05-06", "dt": "2024-05-06 07:08:09",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %#v, want %#v", k, m[k], v)
		}
	}
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		in   any
		kind ValueKind
		str  string
	}{
		{nil, KindNull, ""},
		{true, KindBool, "true"},
		{int8(-4), KindInt, "-4"},
		{uint32(7), KindInt, "7"},
		{uint64(1 << 63), KindString, "9223372036854775808"},
		{float32(0.5), KindFloat, "0.5"},
		{[]byte("raw"), KindString, "raw"},
		{struct{ A int }{1}, KindString, "{1}"},
	}
	for _, tt := range tests {
		v := ValueOf(tt.in)
		if v.Kind() != tt.kind || v.String() != tt.str {
			t.Errorf("ValueOf(%#v) = %v %q, want %v %q", tt.in, v.Kind(), v.String(), tt.kind, tt.str)
		}
	}
}

func TestValue_Equal(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !DateValue(ts).Equal(DateValue(ts.In(time.FixedZone("x", 3600)))) {
		t.Error("same instant in different zones should be equal")
	}
	if IntValue(1).Equal(FloatValue(1)) {
		t.Error("different kinds compared equal")
	}
	if !NullValue().Equal(Value{}) {
		t.Error("zero Value should be null")
	}
}

func TestRow_CloneIsIndependent(t *testing.T) {
	r := Row{"a": IntValue(1)}
	c := r.Clone()
	c["a"] = IntValue(2)
	c["b"] = IntValue(3)
	if r["a"].Int() != 1 || len(r) != 1 {
		t.Errorf("original mutated: %v", r)
	}
}

func TestChange_Values(t *testing.T) {
	before, after := Row{"id": IntValue(1)}, Row{"id": IntValue(2)}
	if got := (Change{Kind: KindDelete, Before: before, After: after}).Values(); got["id"].Int() != 1 {
		t.Error("delete should identify by Before")
	}
	if got := (Change{Kind: KindUpdate, Before: before, After: after}).Values(); got["id"].Int() != 2 {
		t.Error("update should identify by After")
	}
}

func TestParseChangeKind(t *testing.T) {
	for _, k := range []ChangeKind{KindInsert, KindUpdate, KindDelete} {
		if ParseChangeKind(k.String()) != k {
			t.Errorf("round trip failed for %v", k)
		}
	}
	if ParseChangeKind("TRUNCATE") != 0 {
		t.Error("unknown kind should parse to 0")
	}
}

func TestOperation_Size(t *testing.T) {
	del := Operation{Action: ActionDelete, Index: "shop", DocType: "orders", ID: "42"}
	if got, want := del.Size(), bulkOverhead+len("shop")+len("orders")+len("42"); got != want {
		t.Errorf("delete size = %d, want %d", got, want)
	}

	up := del
	up.Action = ActionUpsert
	up.Body = Row{"id": IntValue(42)}
	body, _ := json.Marshal(up.Body)
	if got, want := up.Size(), del.Size()+len(body)+1; got != want {
		t.Errorf("upsert size = %d, want %d", got, want)
	}

	if got := (Batch{del, up}).Size(); got != del.Size()+up.Size() {
		t.Errorf("batch size = %d", got)
	}
}
