package blueprint

import (
	"github.com/latticegql/lattice/internal/jsonschema"
	"github.com/latticegql/lattice/internal/language"
	"github.com/latticegql/lattice/internal/schema"
)

// projectTypeRef converts a parsed SDL type expression into a schema.TypeRef,
// recording a violation if the named type was never declared.
func (b *builder) projectTypeRef(node *language.Type) *schema.TypeRef {
	if node.NonNull {
		inner := &language.Type{NamedType: node.NamedType, Elem: node.Elem, Position: node.Position}
		return schema.NonNullType(b.projectTypeRef(inner))
	}
	if node.Elem != nil {
		return schema.ListType(b.projectTypeRef(node.Elem))
	}
	if _, ok := b.types[node.NamedType]; !ok && !isBuiltinScalar(node.NamedType) {
		b.addViolation(violationAt(node.Position, "unknown type %q", node.NamedType))
	}
	return schema.NamedType(node.NamedType)
}

func isBuiltinScalar(name string) bool {
	switch name {
	case "String", "Int", "Float", "Boolean", "ID":
		return true
	default:
		return false
	}
}

// schemaFor derives a jsonschema.Schema describing the shape a value of ref
// must have, used to validate upstream responses and @const/@expr literals
// against a field's declared GraphQL type. seen guards against infinite
// recursion through self-referential object types: a type revisited within
// its own expansion degrades to an accept-anything schema, matching the
// "resolved lazily, never by pointer cycle" design note.
func (b *builder) schemaFor(ref *schema.TypeRef, seen map[string]bool) jsonschema.Schema {
	if ref.IsNonNull() {
		return b.schemaFor(ref.OfType, seen)
	}
	if ref.Kind == schema.TypeRefKindList {
		return jsonschema.Opt(jsonschema.Arr(b.schemaFor(ref.OfType, seen)))
	}

	named := ref.Named
	switch named {
	case "Int", "Float":
		return jsonschema.Opt(jsonschema.Num())
	case "String", "ID":
		return jsonschema.Opt(jsonschema.Str())
	case "Boolean":
		return jsonschema.Opt(jsonschema.Bool())
	}

	t, ok := b.types[named]
	if !ok {
		return jsonschema.Opt(jsonschema.Enum(nil))
	}
	if seen[named] {
		return jsonschema.Opt(jsonschema.Enum(nil))
	}

	switch t.Kind {
	case schema.TypeKindEnum:
		set := make(map[string]struct{}, len(t.EnumValues))
		for _, v := range t.EnumValues {
			set[v.Name] = struct{}{}
		}
		return jsonschema.Opt(jsonschema.Enum(set))
	case schema.TypeKindScalar:
		return jsonschema.Opt(jsonschema.Enum(nil))
	case schema.TypeKindObject, schema.TypeKindInterface:
		seen = withSeen(seen, named)
		fields := make(map[string]jsonschema.Schema, len(t.Fields))
		for _, f := range t.Fields {
			fields[f.Name] = b.schemaFor(f.Type, seen)
		}
		return jsonschema.Opt(jsonschema.Obj(fields))
	case schema.TypeKindUnion:
		return jsonschema.Opt(jsonschema.Enum(nil))
	default:
		return jsonschema.Opt(jsonschema.Enum(nil))
	}
}

func withSeen(seen map[string]bool, name string) map[string]bool {
	out := make(map[string]bool, len(seen)+1)
	for k := range seen {
		out[k] = true
	}
	out[name] = true
	return out
}
