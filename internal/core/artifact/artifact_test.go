package artifact

import (
	"encoding/json"
	"testing"
	"time"
)

func TestKindLabelsAndCompatibility(t *testing.T) {
	labels := map[Kind]string{
		KindString:    "string",
		KindInt:       "integer",
		KindFloat:     "float",
		KindBool:      "boolean",
		KindTimestamp: "timestamp",
		KindList:      "list",
		KindNested:    "nested",
		KindInvalid:   "invalid",
	}
	for k, want := range labels {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}

	if !KindInt.CompatibleWith(KindFloat) {
		t.Fatalf("integers should widen to float")
	}
	if KindFloat.CompatibleWith(KindInt) {
		t.Fatalf("floats must not narrow to integer")
	}
	if !KindString.CompatibleWith(KindString) {
		t.Fatalf("same kind should be compatible")
	}
	if KindBool.CompatibleWith(KindString) {
		t.Fatalf("bool/string should be incompatible")
	}
}

func TestValueConstructorsAndAccessors(t *testing.T) {
	now := time.Now()

	if s, ok := String("x").Str(); !ok || s != "x" {
		t.Fatalf("Str accessor failed")
	}
	if i, ok := Int(7).Int64(); !ok || i != 7 {
		t.Fatalf("Int64 accessor failed")
	}
	if f, ok := Float(0.5).Float64(); !ok || f != 0.5 {
		t.Fatalf("Float64 accessor failed")
	}
	// integers widen through Float64
	if f, ok := Int(3).Float64(); !ok || f != 3.0 {
		t.Fatalf("Int should widen via Float64")
	}
	if b, ok := Bool(true).Boolean(); !ok || !b {
		t.Fatalf("Boolean accessor failed")
	}
	if ts, ok := Timestamp(now).Time(); !ok || !ts.Equal(now) {
		t.Fatalf("Time accessor failed")
	}
	if items, ok := List(Int(1), Int(2)).Items(); !ok || len(items) != 2 {
		t.Fatalf("Items accessor failed")
	}
	if obj, ok := Nested(map[string]Value{"k": String("v")}).Object(); !ok || len(obj) != 1 {
		t.Fatalf("Object accessor failed")
	}

	// wrong-kind accessors report !ok
	if _, ok := String("x").Int64(); ok {
		t.Fatalf("Int64 on string should fail")
	}
	if _, ok := Bool(true).Float64(); ok {
		t.Fatalf("Float64 on bool should fail")
	}

	var zero Value
	if zero.Kind() != KindInvalid {
		t.Fatalf("zero Value should be invalid")
	}
}

func TestValueEqual(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"strings equal", String("a"), String("a"), true},
		{"strings differ", String("a"), String("b"), false},
		{"kinds differ", Int(1), Float(1), false},
		{"timestamps by instant", Timestamp(now), Timestamp(now.UTC()), true},
		{"lists equal", List(Int(1), String("x")), List(Int(1), String("x")), true},
		{"lists differ len", List(Int(1)), List(Int(1), Int(2)), false},
		{"nested equal", Nested(map[string]Value{"k": Int(1)}), Nested(map[string]Value{"k": Int(1)}), true},
		{"nested differ", Nested(map[string]Value{"k": Int(1)}), Nested(map[string]Value{"k": Int(2)}), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Equal(c.b); got != c.want {
				t.Fatalf("Equal = %v, want %v", got, c.want)
			}
		})
	}
}

func TestFromAnyCoercion(t *testing.T) {
	v, ok := FromAny("s")
	if !ok || v.Kind() != KindString {
		t.Fatalf("string coercion failed")
	}
	v, ok = FromAny(42)
	if !ok || v.Kind() != KindInt {
		t.Fatalf("int coercion failed")
	}
	// JSON numbers come back as float64; whole values stay integral
	v, ok = FromAny(float64(10))
	if !ok || v.Kind() != KindInt {
		t.Fatalf("whole float64 should coerce to integer, got %v", v.Kind())
	}
	v, ok = FromAny(0.25)
	if !ok || v.Kind() != KindFloat {
		t.Fatalf("fractional float64 should stay float")
	}
	v, ok = FromAny(true)
	if !ok || v.Kind() != KindBool {
		t.Fatalf("bool coercion failed")
	}
	v, ok = FromAny(time.Now())
	if !ok || v.Kind() != KindTimestamp {
		t.Fatalf("time coercion failed")
	}
	v, ok = FromAny([]any{"a", 1})
	if !ok || v.Kind() != KindList {
		t.Fatalf("list coercion failed")
	}
	v, ok = FromAny([]string{"a", "b"})
	if !ok || v.Kind() != KindList {
		t.Fatalf("string slice coercion failed")
	}
	v, ok = FromAny(map[string]any{"k": 1})
	if !ok || v.Kind() != KindNested {
		t.Fatalf("map coercion failed")
	}
	if _, ok := FromAny(nil); ok {
		t.Fatalf("nil should not coerce")
	}
	if _, ok := FromAny(struct{}{}); ok {
		t.Fatalf("struct should not coerce")
	}
}

func TestFieldsFromAny(t *testing.T) {
	fields, err := FieldsFromAny(map[string]any{
		"session_id": "s1",
		"turn_id":    1,
		"temp":       0.3,
		"cache_hit":  false,
		"skipme":     nil,
		"role_tags":  []any{"processing", "qa"},
	})
	if err != nil {
		t.Fatalf("FieldsFromAny error: %v", err)
	}
	if _, present := fields["skipme"]; present {
		t.Fatalf("nil field should be dropped")
	}
	if len(fields) != 5 {
		t.Fatalf("field count = %d, want 5", len(fields))
	}

	if _, err := FieldsFromAny(map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatalf("unsupported field type should error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	inner := map[string]Value{"k": String("orig")}
	f := Fields{
		"nested": Nested(inner),
		"list":   List(String("a")),
	}
	c := f.Clone()

	inner["k"] = String("mutated")
	if obj, _ := c["nested"].Object(); obj["k"].s != "orig" {
		t.Fatalf("Clone shares nested map with original")
	}
}

func TestJSONRoundTripThroughAny(t *testing.T) {
	ts := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	f := Fields{
		"session_id": String("s1"),
		"turn_id":    Int(3),
		"temp":       Float(0.3),
		"cache_hit":  Bool(true),
		"timestamp":  Timestamp(ts),
		"role_tags":  List(String("a"), String("b")),
		"care_metadata": Nested(map[string]Value{
			"collective_benefit": Bool(true),
		}),
	}

	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back, err := FieldsFromAny(decoded)
	if err != nil {
		t.Fatalf("FieldsFromAny: %v", err)
	}

	// timestamps serialize as RFC3339 strings; everything else round-trips by kind
	if v := back["turn_id"]; !v.Equal(Int(3)) {
		t.Fatalf("turn_id mismatch: %#v", v)
	}
	if v := back["temp"]; !v.Equal(Float(0.3)) {
		t.Fatalf("temp mismatch: %#v", v)
	}
	if v := back["cache_hit"]; !v.Equal(Bool(true)) {
		t.Fatalf("cache_hit mismatch: %#v", v)
	}
	if v := back["timestamp"]; !v.Equal(String(ts.Format(time.RFC3339Nano))) {
		t.Fatalf("timestamp mismatch: %#v", v)
	}
	if v := back["role_tags"]; !v.Equal(List(String("a"), String("b"))) {
		t.Fatalf("role_tags mismatch: %#v", v)
	}
}

func TestBuiltinTypes(t *testing.T) {
	got := BuiltinTypes()
	want := []Type{ExecutionContext, AgentGraph, BoundaryEvent, GovernanceLedger}
	if len(got) != len(want) {
		t.Fatalf("BuiltinTypes len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BuiltinTypes[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
