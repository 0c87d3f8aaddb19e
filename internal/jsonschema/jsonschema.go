// Package jsonschema implements JsonSchema: a structural schema over
// value.Value used to validate upstream responses and GraphQL arguments
// against the shape a Blueprint field declares, and to compare two schemas
// for compatibility (e.g. a federated field's declared type against the
// subgraph response it actually receives).
package jsonschema

import (
	"fmt"

	"github.com/latticegql/lattice/internal/value"
)

// Tag identifies which shape a Schema describes.
type Tag int

const (
	TagStr Tag = iota
	TagNum
	TagBool
	TagArr
	TagOpt
	TagObj
	TagEnum
)

// Schema is a structural description of a value.Value: a scalar tag, a
// homogeneous array, an optional (nullable) wrapper, an object of named
// fields, or an enum of allowed string tags.
type Schema struct {
	tag    Tag
	of     *Schema
	fields map[string]Schema
	set    map[string]struct{}
}

func Str() Schema  { return Schema{tag: TagStr} }
func Num() Schema  { return Schema{tag: TagNum} }
func Bool() Schema { return Schema{tag: TagBool} }

// Arr builds an array schema whose elements must each match of.
func Arr(of Schema) Schema { return Schema{tag: TagArr, of: &of} }

// Opt builds a nullable wrapper around of: a null value.Value is always
// accepted, otherwise of must match.
func Opt(of Schema) Schema { return Schema{tag: TagOpt, of: &of} }

// Obj builds an object schema from a field name to sub-schema map.
func Obj(fields map[string]Schema) Schema { return Schema{tag: TagObj, fields: fields} }

// Enum builds a schema accepting any value (tag enforcement reserved).
func Enum(set map[string]struct{}) Schema { return Schema{tag: TagEnum, set: set} }

// Optional wraps s in Opt, unless it already is one.
func (s Schema) Optional() Schema {
	if s.tag == TagOpt {
		return s
	}
	return Opt(s)
}

func (s Schema) IsOptional() bool { return s.tag == TagOpt }
func (s Schema) IsRequired() bool { return s.tag != TagOpt }

func (s Schema) Tag() Tag { return s.tag }

// ExpectsArray reports whether this schema (unwrapping any Opt nesting)
// describes an array. Used to decide whether a batched loader's per-key
// result list should be handed over whole or unwrapped to its single item.
func (s Schema) ExpectsArray() bool {
	cur := s
	for cur.tag == TagOpt {
		cur = *cur.of
	}
	return cur.tag == TagArr
}

// Violation is a single validation failure, with path tracing from the
// root schema down to the offending field.
type Violation struct {
	Path    []string
	Message string
}

func (v Violation) String() string {
	if len(v.Path) == 0 {
		return v.Message
	}
	path := v.Path[0]
	for _, p := range v.Path[1:] {
		path += "." + p
	}
	return fmt.Sprintf("%s: %s", path, v.Message)
}

// Validate checks v against the schema, returning every violation found
// (not just the first), each traced with the path to the offending field.
func (s Schema) Validate(v value.Value) []Violation {
	return validate(s, v, nil)
}

func validate(s Schema, v value.Value, path []string) []Violation {
	switch s.tag {
	case TagStr:
		if v.Kind() != value.KindString {
			return []Violation{{Path: path, Message: "expected string"}}
		}
	case TagNum:
		if v.Kind() != value.KindNumber {
			return []Violation{{Path: path, Message: "expected number"}}
		}
	case TagBool:
		if v.Kind() != value.KindBool {
			return []Violation{{Path: path, Message: "expected boolean"}}
		}
	case TagArr:
		if v.Kind() != value.KindList {
			return []Violation{{Path: path, Message: "expected array"}}
		}
		var out []Violation
		for i, item := range v.AsList() {
			out = append(out, validate(*s.of, item, appendPath(path, fmt.Sprint(i)))...)
		}
		return out
	case TagObj:
		if v.Kind() != value.KindObject {
			return []Violation{{Path: path, Message: "expected object"}}
		}
		var out []Violation
		for name, fieldSchema := range s.fields {
			fieldValue, ok := v.Field(name)
			if !ok {
				if fieldSchema.IsRequired() {
					out = append(out, Violation{Path: appendPath(path, name), Message: "expected field to be non-nullable"})
				}
				continue
			}
			out = append(out, validate(fieldSchema, fieldValue, appendPath(path, name))...)
		}
		return out
	case TagOpt:
		if v.IsNull() {
			return nil
		}
		return validate(*s.of, v, path)
	case TagEnum:
		return nil
	}
	return nil
}

func appendPath(path []string, next string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = next
	return out
}

// Compare reports whether other is compatible with s: every field other
// declares must be present (by the same name) on s and itself
// Compare-compatible, scalar tags must match exactly, Arr/Opt must nest
// matching variants, and Enum sets must be identical. name seeds the trace
// path (the field name under which s was declared).
func (s Schema) Compare(other Schema, name string) []Violation {
	return compare(s, other, []string{name})
}

func compare(a, b Schema, path []string) []Violation {
	switch a.tag {
	case TagObj:
		if b.tag != TagObj {
			return []Violation{{Path: path, Message: "expected Object type"}}
		}
		var out []Violation
		for key, bSchema := range b.fields {
			aSchema, ok := a.fields[key]
			if !ok {
				out = append(out, Violation{Path: path, Message: "missing key: " + key})
				continue
			}
			out = append(out, compare(aSchema, bSchema, appendPath(path, key))...)
		}
		return out
	case TagArr:
		if b.tag != TagArr {
			return []Violation{{Path: path, Message: "expected Non repeatable type"}}
		}
		return compare(*a.of, *b.of, path)
	case TagOpt:
		if b.tag != TagOpt {
			return []Violation{{Path: path, Message: "expected type to be required"}}
		}
		return compare(*a.of, *b.of, path)
	case TagStr:
		if b.tag != TagStr {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected String, got %s", tagName(b.tag))}}
		}
	case TagNum:
		if b.tag != TagNum {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected Number, got %s", tagName(b.tag))}}
		}
	case TagBool:
		if b.tag != TagBool {
			return []Violation{{Path: path, Message: fmt.Sprintf("expected Boolean, got %s", tagName(b.tag))}}
		}
	case TagEnum:
		if b.tag != TagEnum {
			return []Violation{{Path: path, Message: "expected Enum got: " + tagName(b.tag)}}
		}
		if !sameSet(a.set, b.set) {
			return []Violation{{Path: path, Message: "expected enum set does not match"}}
		}
	}
	return nil
}

func tagName(t Tag) string {
	switch t {
	case TagStr:
		return "Str"
	case TagNum:
		return "Num"
	case TagBool:
		return "Bool"
	case TagArr:
		return "Arr"
	case TagOpt:
		return "Opt"
	case TagObj:
		return "Obj"
	case TagEnum:
		return "Enum"
	default:
		return "unknown"
	}
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
