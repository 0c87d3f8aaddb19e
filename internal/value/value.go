// Package value defines the canonical in-memory value representation shared
// across GraphQL arguments, upstream JSON bodies, and wire-format conversions.
// Every boundary (HTTP response decoding, GraphQL argument coercion, gRPC
// message <-> JSON) converts into and out of this single sum type instead of
// passing raw `any` around, so structural validation (JsonSchema) and
// templating (PathContext lookups) have one shape to agree on.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the canonical representation: exactly one field is meaningful,
// selected by Kind. Object preserves insertion order via Keys so that
// re-serialization is deterministic.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	keys []string
	obj  map[string]Value
}

// Null is the canonical null value.
var Null = Value{kind: KindNull}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number constructs a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String constructs a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List constructs a list value.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Object constructs an object from keys (in order) to values. The two slices
// must be the same length.
func Object(keys []string, values []Value) Value {
	obj := make(map[string]Value, len(keys))
	ks := make([]string, len(keys))
	copy(ks, keys)
	for i, k := range keys {
		obj[k] = values[i]
	}
	return Value{kind: KindObject, keys: ks, obj: obj}
}

// ObjectBuilder builds an object value incrementally.
type ObjectBuilder struct {
	keys []string
	obj  map[string]Value
}

// NewObjectBuilder creates an empty ObjectBuilder.
func NewObjectBuilder() *ObjectBuilder {
	return &ObjectBuilder{obj: make(map[string]Value)}
}

// Set inserts or overwrites a field, preserving first-insertion order.
func (b *ObjectBuilder) Set(key string, v Value) *ObjectBuilder {
	if _, exists := b.obj[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.obj[key] = v
	return b
}

// Build finalizes the builder into a Value.
func (b *ObjectBuilder) Build() Value {
	keys := make([]string, len(b.keys))
	copy(keys, b.keys)
	obj := make(map[string]Value, len(b.obj))
	for k, v := range b.obj {
		obj[k] = v
	}
	return Value{kind: KindObject, keys: keys, obj: obj}
}

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() string { return v.s }
func (v Value) AsList() []Value  { return v.list }

// Keys returns the object's field names in insertion order. Empty for
// non-objects.
func (v Value) Keys() []string { return v.keys }

// Field looks up a single object field.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Null, false
	}
	fv, ok := v.obj[name]
	return fv, ok
}

// FromJSON decodes arbitrary decoded JSON (the output of json.Unmarshal into
// `any`) into a Value.
func FromJSON(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case json.Number:
		f, _ := t.Float64()
		return Number(f)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromJSON(item)
		}
		return List(items...)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]Value, len(keys))
		for i, k := range keys {
			values[i] = FromJSON(t[k])
		}
		return Object(keys, values)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// ToJSON converts a Value back into plain `any` suitable for json.Marshal.
func ToJSON(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = ToJSON(item)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = ToJSON(v.obj[k])
		}
		return out
	default:
		return nil
	}
}

// Scalar renders a Value as it would appear interpolated into a plain-text
// template segment: strings verbatim, booleans/numbers as JSON scalars,
// lists/objects as compact JSON, null as the empty string.
func Scalar(v Value) string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.n)
	default:
		b, _ := json.Marshal(ToJSON(v))
		return string(b)
	}
}

// GraphQLLiteral renders a Value as a GraphQL inline literal (used by
// @graphQL request templates): strings are quoted and escaped, everything
// else matches its GraphQL literal syntax.
func GraphQLLiteral(v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		b, _ := json.Marshal(v.s)
		return string(b)
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.n)
	case KindList:
		out := "["
		for i, item := range v.list {
			if i > 0 {
				out += ", "
			}
			out += GraphQLLiteral(item)
		}
		return out + "]"
	case KindObject:
		out := "{"
		for i, k := range v.keys {
			if i > 0 {
				out += ", "
			}
			out += fmt.Sprintf("%s: %s", k, GraphQLLiteral(v.obj[k]))
		}
		return out + "}"
	default:
		return "null"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// Equal reports deep structural equality, ignoring object key order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
