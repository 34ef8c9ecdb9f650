// Package artifact defines the core types for telemetry records: artifact
// type identifiers, the tagged-union field value, and the record envelope
package artifact

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names a schema and a partition namespace. The set is fixed and
// enumerable at startup
type Type string

// Phase 0 artifact types
const (
	ExecutionContext Type = "execution_context"
	AgentGraph       Type = "agent_graph"
	BoundaryEvent    Type = "boundary_event"
	GovernanceLedger Type = "governance_ledger"
)

// BuiltinTypes returns the Phase 0 artifact set in stable order
func BuiltinTypes() []Type {
	return []Type{ExecutionContext, AgentGraph, BoundaryEvent, GovernanceLedger}
}

// Kind discriminates the Value union
type Kind uint8

// Value kinds
const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTimestamp
	KindList
	KindNested
)

// String returns a stable label for the kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindList:
		return "list"
	case KindNested:
		return "nested"
	default:
		return "invalid"
	}
}

// CompatibleWith reports whether a value of kind k satisfies a field declared
// as want. Integers widen to float; everything else must match exactly
func (k Kind) CompatibleWith(want Kind) bool {
	if k == want {
		return true
	}
	return k == KindInt && want == KindFloat
}

// Value is a tagged union over the supported field kinds. The zero Value is
// invalid and reports KindInvalid
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	list []Value
	obj  map[string]Value
}

// Constructors

// String returns a string Value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer Value
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float Value
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean Value
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Timestamp returns a timestamp Value (stored in UTC)
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t.UTC()} }

// List returns a list Value
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// Nested returns a nested-object Value
func Nested(m map[string]Value) Value { return Value{kind: KindNested, obj: m} }

// Kind returns the discriminator
func (v Value) Kind() Kind { return v.kind }

// Accessors; the bool result reports whether the value holds that kind

// Str returns the string payload
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Int64 returns the integer payload
func (v Value) Int64() (int64, bool) { return v.i, v.kind == KindInt }

// Float64 returns the float payload; integers widen
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Boolean returns the bool payload
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Time returns the timestamp payload
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindTimestamp }

// Items returns the list payload
func (v Value) Items() ([]Value, bool) { return v.list, v.kind == KindList }

// Object returns the nested payload
func (v Value) Object() (map[string]Value, bool) { return v.obj, v.kind == KindNested }

// Equal reports deep equality; timestamps compare by instant
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindNested:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return true // two invalid values
	}
}

// Any returns the plain Go form used for JSON and columnar encoding
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case KindNested:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the plain form
func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Any()) }

// FromAny coerces a plain Go value (caller input or decoded JSON) into a
// Value. Nil yields an invalid Value and ok=false; callers drop such fields
func FromAny(x any) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Value{}, false
	case Value:
		return t, t.kind != KindInvalid
	case string:
		return String(t), true
	case bool:
		return Bool(t), true
	case int:
		return Int(int64(t)), true
	case int32:
		return Int(int64(t)), true
	case int64:
		return Int(t), true
	case float32:
		return Float(float64(t)), true
	case float64:
		// decoded JSON numbers arrive as float64; keep exact integers integral
		if t == float64(int64(t)) {
			return Int(int64(t)), true
		}
		return Float(t), true
	case time.Time:
		return Timestamp(t), true
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			v, ok := FromAny(e)
			if !ok {
				continue
			}
			items = append(items, v)
		}
		return List(items...), true
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return List(items...), true
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			v, ok := FromAny(e)
			if !ok {
				continue
			}
			obj[k] = v
		}
		return Nested(obj), true
	default:
		return Value{}, false
	}
}

// Fields maps field names to values
type Fields map[string]Value

// Clone returns a deep copy (lists and nested objects included)
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v.clone()
	}
	return out
}

func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i := range v.list {
			items[i] = v.list[i].clone()
		}
		return Value{kind: KindList, list: items}
	case KindNested:
		obj := make(map[string]Value, len(v.obj))
		for k, e := range v.obj {
			obj[k] = e.clone()
		}
		return Value{kind: KindNested, obj: obj}
	default:
		return v
	}
}

// Any returns the plain map form
func (f Fields) Any() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v.Any()
	}
	return out
}

// FieldsFromAny coerces a caller-supplied map. Unsupported values fail loudly
// rather than being silently dropped; nil values are dropped (absent field)
func FieldsFromAny(m map[string]any) (Fields, error) {
	out := make(Fields, len(m))
	for k, x := range m {
		if x == nil {
			continue
		}
		v, ok := FromAny(x)
		if !ok {
			return nil, fmt.Errorf("field %q: unsupported value type %T", k, x)
		}
		out[k] = v
	}
	return out, nil
}

// Record is a single structured observation submitted by a caller
type Record struct {
	Type        Type
	Fields      Fields
	SubmittedAt time.Time
}
