package blueprint

import (
	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/language"
	"github.com/latticegql/lattice/internal/template"
	"github.com/latticegql/lattice/internal/value"
)

// objectFields indexes an ObjectValue's children by name, the same shape
// directiveArgs produces for a directive's argument list, so the helpers
// below work identically over either source.
func (b *builder) objectFields(node *language.Value) map[string]*language.Value {
	out := map[string]*language.Value{}
	if node == nil || node.Kind != language.ObjectValue {
		return out
	}
	for _, c := range node.Children {
		out[c.Name] = c.Value
	}
	return out
}

// exprNode compiles one node of the expression-tree grammar: an object value
// whose `op` field selects which Expression variant it builds, recursing
// into nested node-shaped fields for operands. `@expr(node: {...})` and
// `@modify(op: ..., args: [...])` are its two entry points.
func (b *builder) exprNode(node *language.Value, typeName, fieldName string, declared map[string]struct{}) expr.Expression {
	if node == nil {
		return expr.Literal{Value: value.Null}
	}
	fields := b.objectFields(node)
	opVal, ok := fields["op"]
	if !ok {
		b.addViolation(violationAt(node.Position, "%s.%s: expression node requires an op field", typeName, fieldName))
		return expr.Literal{Value: value.Null}
	}
	return b.buildExprOp(b.stringArg(opVal), fields, node.Position, typeName, fieldName, declared)
}

func (b *builder) exprChild(fields map[string]*language.Value, key, typeName, fieldName string, declared map[string]struct{}) expr.Expression {
	v, ok := fields[key]
	if !ok {
		return expr.Literal{Value: value.Null}
	}
	return b.exprNode(v, typeName, fieldName, declared)
}

func (b *builder) exprChildList(fields map[string]*language.Value, key, typeName, fieldName string, declared map[string]struct{}) []expr.Expression {
	v, ok := fields[key]
	if !ok || v.Kind != language.ListValue {
		return nil
	}
	out := make([]expr.Expression, 0, len(v.Children))
	for _, c := range v.Children {
		out = append(out, b.exprNode(c.Value, typeName, fieldName, declared))
	}
	return out
}

func (b *builder) exprPath(fields map[string]*language.Value, key string) []string {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	return b.stringListArg(v)
}

func (b *builder) exprTemplate(fields map[string]*language.Value, key, typeName, fieldName string, pos *language.Position, declared map[string]struct{}) template.Template {
	v, ok := fields[key]
	if !ok {
		b.addViolation(violationAt(pos, "%s.%s: expression op %q requires a %s field", typeName, fieldName, "render", key))
		return template.Template{}
	}
	t := template.Parse(b.stringArg(v))
	b.validateArgTemplate(typeName, fieldName, t, pos, declared)
	return t
}

// buildExprOp constructs the Expression variant named by op from fields,
// recursing through exprChild/exprChildList for operand nodes. compileModify
// has its own op switch, with the preceding directive's expression as the
// first operand; it reaches this grammar only for its `arg`/`args` operand
// nodes, through the same exprChild/exprChildList helpers.
func (b *builder) buildExprOp(op string, fields map[string]*language.Value, pos *language.Position, typeName, fieldName string, declared map[string]struct{}) expr.Expression {
	child := func(key string) expr.Expression { return b.exprChild(fields, key, typeName, fieldName, declared) }
	children := func(key string) []expr.Expression { return b.exprChildList(fields, key, typeName, fieldName, declared) }
	path := func(key string) []string { return b.exprPath(fields, key) }

	switch op {
	case "literal":
		v, ok := fields["value"]
		if !ok {
			return expr.Literal{Value: value.Null}
		}
		return expr.Literal{Value: b.astToValue(v)}
	case "context":
		return expr.Context{Path: path("path")}
	case "render":
		return expr.Render{Template: b.exprTemplate(fields, "template", typeName, fieldName, pos, declared)}
	case "if":
		return expr.If{Cond: child("cond"), Then: child("then"), Else: child("else")}
	case "and":
		return expr.And{Exprs: children("exprs")}
	case "or":
		return expr.Or{Exprs: children("exprs")}
	case "cond":
		return expr.Cond{Branches: b.exprBranches(fields, "branches", typeName, fieldName, declared), Default: child("default")}
	case "defaultTo":
		return expr.DefaultTo{Inner: child("inner"), Default: child("default")}
	case "isEmpty":
		return expr.IsEmpty{Inner: child("inner")}
	case "not":
		return expr.Not{Inner: child("inner")}
	case "concat":
		return expr.Concat{Exprs: children("exprs")}
	case "add":
		return expr.Add{Lhs: child("lhs"), Rhs: child("rhs")}
	case "sub":
		return expr.Sub{Lhs: child("lhs"), Rhs: child("rhs")}
	case "mul":
		return expr.Mul{Lhs: child("lhs"), Rhs: child("rhs")}
	case "div":
		return expr.Div{Lhs: child("lhs"), Rhs: child("rhs")}
	case "mod":
		return expr.Mod{Lhs: child("lhs"), Rhs: child("rhs")}
	case "inc":
		return expr.Inc{Inner: child("inner")}
	case "dec":
		return expr.Dec{Inner: child("inner")}
	case "negate":
		return expr.Negate{Inner: child("inner")}
	case "sum":
		return expr.Sum{Exprs: children("exprs")}
	case "product":
		return expr.Product{Exprs: children("exprs")}
	case "eq":
		return expr.Equals{Lhs: child("lhs"), Rhs: child("rhs")}
	case "gt":
		return expr.Gt{Lhs: child("lhs"), Rhs: child("rhs")}
	case "gte":
		return expr.Gte{Lhs: child("lhs"), Rhs: child("rhs")}
	case "lt":
		return expr.Lt{Lhs: child("lhs"), Rhs: child("rhs")}
	case "lte":
		return expr.Lte{Lhs: child("lhs"), Rhs: child("rhs")}
	case "max":
		return expr.Max{Exprs: children("exprs")}
	case "min":
		return expr.Min{Exprs: children("exprs")}
	case "intersection":
		return expr.Intersection{Exprs: children("exprs")}
	case "union":
		return expr.Union{Lhs: children("lhs"), Rhs: children("rhs")}
	case "difference":
		return expr.Difference{Lhs: children("lhs"), Rhs: children("rhs")}
	case "symmetricDifference":
		return expr.SymmetricDifference{Lhs: children("lhs"), Rhs: children("rhs")}
	case "pathEq":
		return expr.PathEq{Lhs: child("lhs"), Rhs: child("rhs"), Path: path("path")}
	case "propEq":
		prop := ""
		if v, ok := fields["prop"]; ok {
			prop = b.stringArg(v)
		}
		return expr.PropEq{Lhs: child("lhs"), Rhs: child("rhs"), Prop: prop}
	case "sortPath":
		return expr.SortPath{Inner: child("inner"), Path: path("path")}
	case "concurrency":
		exprs := children("exprs")
		return expr.Concurrency{Mode: b.exprMode(fields), Exprs: exprs}
	default:
		b.addViolation(violationAt(pos, "%s.%s: unknown expression op %q", typeName, fieldName, op))
		return expr.Literal{Value: value.Null}
	}
}

func (b *builder) exprBranches(fields map[string]*language.Value, key, typeName, fieldName string, declared map[string]struct{}) []expr.CondBranch {
	bv, ok := fields[key]
	if !ok || bv.Kind != language.ListValue {
		return nil
	}
	var branches []expr.CondBranch
	for _, c := range bv.Children {
		bf := b.objectFields(c.Value)
		branches = append(branches, expr.CondBranch{
			Cond: b.exprChild(bf, "when", typeName, fieldName, declared),
			Then: b.exprChild(bf, "then", typeName, fieldName, declared),
		})
	}
	return branches
}

func (b *builder) exprMode(fields map[string]*language.Value) expr.Mode {
	v, ok := fields["mode"]
	if !ok {
		return expr.Parallel
	}
	switch b.stringArg(v) {
	case "sequential":
		return expr.Sequential
	case "batched":
		return expr.Batched
	default:
		return expr.Parallel
	}
}
