package blueprint

import (
	"strconv"

	"github.com/latticegql/lattice/internal/language"
	"github.com/latticegql/lattice/internal/value"
)

// astToValue converts a directive argument's parsed AST literal into a
// value.Value. Directive arguments must be compile-time constants: a
// Variable node is rejected with a violation (there is no per-request
// context available while compiling the blueprint).
func (b *builder) astToValue(node *language.Value) value.Value {
	if node == nil {
		return value.Null
	}
	switch node.Kind {
	case language.Variable:
		b.addViolation(violationAt(node.Position, "directive arguments must be constants, got variable $%s", node.Raw))
		return value.Null
	case language.IntValue:
		n, _ := strconv.ParseFloat(node.Raw, 64)
		return value.Number(n)
	case language.FloatValue:
		n, _ := strconv.ParseFloat(node.Raw, 64)
		return value.Number(n)
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.String(node.Raw)
	case language.BooleanValue:
		return value.Bool(node.Raw == "true")
	case language.NullValue:
		return value.Null
	case language.ListValue:
		items := make([]value.Value, 0, len(node.Children))
		for _, child := range node.Children {
			items = append(items, b.astToValue(child.Value))
		}
		return value.List(items...)
	case language.ObjectValue:
		keys := make([]string, 0, len(node.Children))
		vals := make([]value.Value, 0, len(node.Children))
		for _, child := range node.Children {
			keys = append(keys, child.Name)
			vals = append(vals, b.astToValue(child.Value))
		}
		return value.Object(keys, vals)
	default:
		return value.Null
	}
}

func (b *builder) stringArg(node *language.Value) string {
	if node == nil || node.Kind != language.StringValue {
		b.addViolation(violationAt(nodePos(node), "expected a string value"))
		return ""
	}
	return node.Raw
}

func (b *builder) boolArg(node *language.Value) bool {
	if node == nil || node.Kind != language.BooleanValue {
		b.addViolation(violationAt(nodePos(node), "expected a boolean value"))
		return false
	}
	return node.Raw == "true"
}

func (b *builder) intArg(node *language.Value) int {
	if node == nil || node.Kind != language.IntValue {
		b.addViolation(violationAt(nodePos(node), "expected an integer value"))
		return 0
	}
	n, _ := strconv.Atoi(node.Raw)
	return n
}

func (b *builder) stringListArg(node *language.Value) []string {
	if node == nil || node.Kind != language.ListValue {
		b.addViolation(violationAt(nodePos(node), "expected a list of strings"))
		return nil
	}
	out := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		out = append(out, b.stringArg(child.Value))
	}
	return out
}

// kvListArg parses a list of `{key: "...", value: "..."}` object literals,
// the shape used by @http's query/headers arguments and @graphQL's args.
func (b *builder) kvListArg(node *language.Value) []rawKV {
	if node == nil || node.Kind != language.ListValue {
		b.addViolation(violationAt(nodePos(node), "expected a list of {key, value} objects"))
		return nil
	}
	out := make([]rawKV, 0, len(node.Children))
	for _, child := range node.Children {
		obj := child.Value
		if obj == nil || obj.Kind != language.ObjectValue {
			b.addViolation(violationAt(nodePos(obj), "expected a {key, value} object"))
			continue
		}
		var kv rawKV
		for _, f := range obj.Children {
			switch f.Name {
			case "key":
				kv.Key = b.stringArg(f.Value)
			case "value":
				kv.Value = b.stringArg(f.Value)
			}
		}
		out = append(out, kv)
	}
	return out
}

type rawKV struct {
	Key   string
	Value string
}

func nodePos(node *language.Value) *language.Position {
	if node == nil {
		return nil
	}
	return node.Position
}

// directiveArgs indexes a directive's arguments by name for convenient
// lookup; directives in this grammar never repeat an argument name.
func directiveArgs(dir *language.Directive) map[string]*language.Value {
	out := make(map[string]*language.Value, len(dir.Arguments))
	for _, arg := range dir.Arguments {
		out[arg.Name] = arg.Value
	}
	return out
}
