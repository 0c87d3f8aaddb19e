package blueprint

import (
	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/language"
	"github.com/latticegql/lattice/internal/schema"
	"github.com/latticegql/lattice/internal/value"
)

// compileAddFields handles `@addField(name: String!, type: String!, const: ...)`
// on an object/interface type definition: it declares an extra field not
// present in the SDL's own field list, resolved by a fixed literal. This is
// the common composition-gateway case (attaching a federation key or a
// computed constant); an @addField field is resolved only by its const
// value and cannot be backed by an @http/@modify chain.
func (b *builder) compileAddFields(node *language.Definition) {
	if node.Kind != language.Object && node.Kind != language.Interface {
		return
	}
	t := b.types[node.Name]
	for _, dir := range node.Directives {
		if dir.Name != "addField" {
			continue
		}
		args := directiveArgs(dir)
		name, typeName := "", ""
		if v, ok := args["name"]; ok {
			name = b.stringArg(v)
		}
		if v, ok := args["type"]; ok {
			typeName = b.stringArg(v)
		}
		if name == "" || typeName == "" {
			b.addViolation(violationAt(dir.Position, "@addField on %s requires name and type", node.Name))
			continue
		}
		ref := schema.NamedType(typeName)
		t.Fields = append(t.Fields, &schema.Field{Name: name, Type: ref})

		lit := expr.Expression(expr.Literal{Value: value.Null})
		if v, ok := args["const"]; ok {
			literal := b.astToValue(v)
			sch := b.schemaFor(ref, nil)
			if violations := sch.Validate(literal); len(violations) > 0 {
				b.addViolation(violationAt(dir.Position, "@addField %s.%s: const does not match declared type: %s", node.Name, name, violations[0].String()))
			}
			lit = expr.Input{Schema: sch, Value: literal}
		} else {
			b.addViolation(violationAt(dir.Position, "@addField %s.%s requires a const value", node.Name, name))
		}

		if b.fields[node.Name] == nil {
			b.fields[node.Name] = make(map[string]*CompiledField)
		}
		b.fields[node.Name][name] = &CompiledField{Expression: lit}
	}
}
