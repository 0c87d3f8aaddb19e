package blueprint

import (
	"encoding/json"
	"fmt"

	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/language"
	"github.com/latticegql/lattice/internal/pathctx"
	"github.com/latticegql/lattice/internal/reqtemplate"
	"github.com/latticegql/lattice/internal/schema"
	"github.com/latticegql/lattice/internal/template"
	"github.com/latticegql/lattice/internal/value"
)

// compileField walks one field's directive list in declaration order,
// building up a single Expression. @http/@grpc/@graphQL/@const/@expr each
// establish the field's base resolution; @groupBy attaches batching
// identity to a preceding IO; @modify wraps the current expression;
// @cache wraps it last, in the order directives were written. A field with
// none of these directives has no compiled resolver (the Executor falls
// back to reading the same-named property off the parent value).
func (b *builder) compileField(typeName string, fieldNode *language.FieldDefinition, declared map[string]struct{}) *CompiledField {
	var base expr.Expression
	async := false
	var pendingIO *expr.IO
	var maxAge *int

	for _, dir := range fieldNode.Directives {
		switch dir.Name {
		case "http":
			io := b.compileHTTP(typeName, fieldNode, dir, declared)
			base, pendingIO, async = io, io, true
		case "grpc":
			io := b.compileGRPC(typeName, fieldNode, dir, declared)
			base, pendingIO, async = io, io, true
		case "graphQL":
			io := b.compileGraphQL(typeName, fieldNode, dir, declared)
			base, pendingIO, async = io, io, true
		case "const":
			base = b.compileConst(typeName, fieldNode, dir)
			pendingIO = nil
		case "expr":
			base = b.compileExpr(typeName, fieldNode, dir, declared)
			pendingIO = nil
		case "groupBy":
			if pendingIO == nil {
				b.addViolation(violationAt(dir.Position, "%s.%s: @groupBy must follow @http/@grpc/@graphQL", typeName, fieldNode.Name))
				continue
			}
			args := directiveArgs(dir)
			if v, ok := args["path"]; ok {
				pendingIO.GroupBy = b.stringListArg(v)
			}
			pendingIO.LoaderID = fmt.Sprintf("%s.%s", typeName, fieldNode.Name)
		case "modify":
			if base == nil {
				b.addViolation(violationAt(dir.Position, "%s.%s: @modify requires a preceding resolver directive", typeName, fieldNode.Name))
				continue
			}
			base = b.compileModify(typeName, fieldNode.Name, base, dir, declared)
		case "cache":
			if base == nil {
				b.addViolation(violationAt(dir.Position, "%s.%s: @cache requires a preceding resolver directive", typeName, fieldNode.Name))
				continue
			}
			base = b.compileCache(typeName, fieldNode.Name, base, dir)
			maxAge = b.cacheMaxAge(dir)
		case "addField", "id", "internal", "deprecated":
			// handled elsewhere (type-level pass / schema metadata, not resolution)
		default:
			b.addViolation(violationAt(dir.Position, "unknown directive @%s on %s.%s", dir.Name, typeName, fieldNode.Name))
		}
	}

	if base == nil {
		return nil
	}
	return &CompiledField{Expression: base, Async: async, CacheMaxAge: maxAge}
}

// validateArgTemplate checks that every `{{args.x}}` segment in t refers to
// a declared argument of the enclosing field.
func (b *builder) validateArgTemplate(typeName, fieldName string, t template.Template, pos *language.Position, declared map[string]struct{}) {
	for _, seg := range t.Segments() {
		if seg.Expr == nil || len(seg.Expr) < 2 || seg.Expr[0] != pathctx.RootArgs {
			continue
		}
		if _, ok := declared[seg.Expr[1]]; !ok {
			b.addViolation(violationAt(pos, "%s.%s: template references undeclared argument %q", typeName, fieldName, seg.Expr[1]))
		}
	}
}

func (b *builder) resolveUpstream(dir *language.Directive, args map[string]*language.Value) *UpstreamConfig {
	name := ""
	if v, ok := args["upstream"]; ok {
		name = b.stringArg(v)
	}
	up, ok := b.upstreams[name]
	if !ok {
		b.addViolation(violationAt(dir.Position, "@%s references unknown upstream %q", dir.Name, name))
		return &UpstreamConfig{}
	}
	return up
}

func (b *builder) compileHTTP(typeName string, fieldNode *language.FieldDefinition, dir *language.Directive, declared map[string]struct{}) *expr.IO {
	args := directiveArgs(dir)
	up := b.resolveUpstream(dir, args)

	path := ""
	if v, ok := args["path"]; ok {
		path = b.stringArg(v)
	}
	rootURL := template.Parse(up.BaseURL + path)
	b.validateArgTemplate(typeName, fieldNode.Name, rootURL, dir.Position, declared)

	method := reqtemplate.MethodGet
	if v, ok := args["method"]; ok {
		method = reqtemplate.Method(b.stringArg(v))
	}

	var query []reqtemplate.KV
	if v, ok := args["query"]; ok {
		for _, kv := range b.kvListArg(v) {
			t := template.Parse(kv.Value)
			b.validateArgTemplate(typeName, fieldNode.Name, t, dir.Position, declared)
			query = append(query, reqtemplate.KV{Key: kv.Key, Value: t})
		}
	}
	var headers []reqtemplate.KV
	if v, ok := args["headers"]; ok {
		for _, kv := range b.kvListArg(v) {
			t := template.Parse(kv.Value)
			b.validateArgTemplate(typeName, fieldNode.Name, t, dir.Position, declared)
			headers = append(headers, reqtemplate.KV{Key: kv.Key, Value: t})
		}
	}
	var body *template.Template
	if v, ok := args["body"]; ok {
		t := template.Parse(b.stringArg(v))
		b.validateArgTemplate(typeName, fieldNode.Name, t, dir.Position, declared)
		body = &t
	}

	plan := reqtemplate.HTTP{RootURL: rootURL, Query: query, Method: method, Headers: headers, Body: body}
	respSchema := b.schemaFor(b.fieldReturnType(typeName, fieldNode), nil)

	return &expr.IO{
		Protocol:       expr.IOProtocolHTTP,
		Plan:           plan,
		LoaderID:       fmt.Sprintf("%s.%s", typeName, fieldNode.Name),
		Schema:         &respSchema,
		AllowedHeaders: up.AllowedHeaders,
	}
}

func (b *builder) compileGRPC(typeName string, fieldNode *language.FieldDefinition, dir *language.Directive, declared map[string]struct{}) *expr.IO {
	args := directiveArgs(dir)
	up := b.resolveUpstream(dir, args)
	pkg, svc, method := "", "", ""
	if v, ok := args["package"]; ok {
		pkg = b.stringArg(v)
	}
	if v, ok := args["service"]; ok {
		svc = b.stringArg(v)
	}
	if v, ok := args["method"]; ok {
		method = b.stringArg(v)
	}
	var body template.Template
	if v, ok := args["body"]; ok {
		body = template.Parse(b.stringArg(v))
		b.validateArgTemplate(typeName, fieldNode.Name, body, dir.Position, declared)
	}
	plan := reqtemplate.GRPC{Target: up.BaseURL, Package: pkg, Service: svc, Method: method, Body: body}
	respSchema := b.schemaFor(b.fieldReturnType(typeName, fieldNode), nil)
	return &expr.IO{
		Protocol:       expr.IOProtocolGRPC,
		Plan:           plan,
		LoaderID:       fmt.Sprintf("%s.%s", typeName, fieldNode.Name),
		Schema:         &respSchema,
		AllowedHeaders: up.AllowedHeaders,
	}
}

func (b *builder) compileGraphQL(typeName string, fieldNode *language.FieldDefinition, dir *language.Directive, declared map[string]struct{}) *expr.IO {
	args := directiveArgs(dir)
	up := b.resolveUpstream(dir, args)

	opType := "query"
	if v, ok := args["operationType"]; ok {
		opType = b.stringArg(v)
	}
	field := fieldNode.Name
	if v, ok := args["field"]; ok {
		field = b.stringArg(v)
	}
	selectionSet := ""
	if v, ok := args["selectionSet"]; ok {
		selectionSet = b.stringArg(v)
	}
	var kvs []reqtemplate.KV
	if v, ok := args["args"]; ok {
		for _, kv := range b.kvListArg(v) {
			t := template.Parse(kv.Value)
			b.validateArgTemplate(typeName, fieldNode.Name, t, dir.Position, declared)
			kvs = append(kvs, reqtemplate.KV{Key: kv.Key, Value: t})
		}
	}
	federate := false
	if v, ok := args["federate"]; ok {
		federate = b.boolArg(v)
	}
	typeNameArg, idField := "", ""
	if v, ok := args["typeName"]; ok {
		typeNameArg = b.stringArg(v)
	}
	if v, ok := args["representationIdField"]; ok {
		idField = b.stringArg(v)
	}

	plan := reqtemplate.GraphQL{
		RootURL: template.Parse(up.BaseURL), OperationType: opType, FieldName: field, Args: kvs,
		SelectionSet: selectionSet, Federate: federate, TypeName: typeNameArg, RepresentationIDField: idField,
	}
	respSchema := b.schemaFor(b.fieldReturnType(typeName, fieldNode), nil)
	return &expr.IO{
		Protocol:       expr.IOProtocolGraphQL,
		Plan:           plan,
		LoaderID:       fmt.Sprintf("%s.%s", typeName, fieldNode.Name),
		Schema:         &respSchema,
		AllowedHeaders: up.AllowedHeaders,
	}
}

// compileConst validates its literal against the field's declared return
// type at compile time (the Open Question resolution recorded in the
// project's design notes), then wraps it as an expr.Input so the same
// check also runs defensively at evaluation time.
func (b *builder) compileConst(typeName string, fieldNode *language.FieldDefinition, dir *language.Directive) expr.Expression {
	args := directiveArgs(dir)
	v, ok := args["value"]
	if !ok {
		b.addViolation(violationAt(dir.Position, "%s.%s: @const requires a value argument", typeName, fieldNode.Name))
		return expr.Literal{Value: value.Null}
	}
	literal := b.astToValue(v)
	sch := b.schemaFor(b.fieldReturnType(typeName, fieldNode), nil)
	if violations := sch.Validate(literal); len(violations) > 0 {
		b.addViolation(violationAt(dir.Position, "%s.%s: @const value does not match field type: %s", typeName, fieldNode.Name, violations[0].String()))
	}
	return expr.Input{Schema: sch, Value: literal}
}

// compileExpr implements `@expr`. `template: "..."` renders a Mustache
// template against the field's EvalContext, for simple derived values that
// don't need a full upstream call. `node: {op: ..., ...}` instead compiles a
// full expression tree (Logic/Relation/Math/List/Concurrency included) via
// the grammar buildExprOp implements, for fields whose value is computed
// from other fields rather than fetched or templated.
func (b *builder) compileExpr(typeName string, fieldNode *language.FieldDefinition, dir *language.Directive, declared map[string]struct{}) expr.Expression {
	args := directiveArgs(dir)
	if node, ok := args["node"]; ok {
		return b.exprNode(node, typeName, fieldNode.Name, declared)
	}
	v, ok := args["template"]
	if !ok {
		b.addViolation(violationAt(dir.Position, "%s.%s: @expr requires a template or node argument", typeName, fieldNode.Name))
		return expr.Literal{Value: value.Null}
	}
	t := template.Parse(b.stringArg(v))
	b.validateArgTemplate(typeName, fieldNode.Name, t, dir.Position, declared)
	return expr.Render{Template: t}
}

// compileModify wraps inner with the op named by `@modify(op: ...)`. Beyond
// the null-handling transforms (defaultTo/isEmpty/not), op selects any
// Logic/Relation/Math/List/Concurrency variant, with inner supplying that
// variant's first (or only) operand and `arg`/`args`/`branches`/`path`/
// `prop`/`mode` supplying the rest through the same node grammar
// buildExprOp uses for `@expr(node:)`.
func (b *builder) compileModify(typeName, fieldName string, inner expr.Expression, dir *language.Directive, declared map[string]struct{}) expr.Expression {
	args := directiveArgs(dir)
	op := ""
	if v, ok := args["op"]; ok {
		op = b.stringArg(v)
	}
	arg := func() expr.Expression { return b.exprChild(args, "arg", typeName, fieldName, declared) }
	argList := func() []expr.Expression { return b.exprChildList(args, "args", typeName, fieldName, declared) }
	path := func() []string { return b.exprPath(args, "path") }

	switch op {
	case "defaultTo":
		a := ""
		if v, ok := args["arg"]; ok {
			a = b.stringArg(v)
		}
		return expr.DefaultTo{Inner: inner, Default: expr.Render{Template: template.Parse(a)}}
	case "isEmpty":
		return expr.IsEmpty{Inner: inner}
	case "not":
		return expr.Not{Inner: inner}
	case "inc":
		return expr.Inc{Inner: inner}
	case "dec":
		return expr.Dec{Inner: inner}
	case "negate":
		return expr.Negate{Inner: inner}
	case "sortPath":
		return expr.SortPath{Inner: inner, Path: path()}
	case "if":
		return expr.If{Cond: inner, Then: b.exprChild(args, "then", typeName, fieldName, declared), Else: b.exprChild(args, "else", typeName, fieldName, declared)}
	case "cond":
		return expr.Cond{Branches: b.exprBranches(args, "branches", typeName, fieldName, declared), Default: inner}
	case "and":
		return expr.And{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "or":
		return expr.Or{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "concat":
		return expr.Concat{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "sum":
		return expr.Sum{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "product":
		return expr.Product{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "max":
		return expr.Max{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "min":
		return expr.Min{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "intersection":
		return expr.Intersection{Exprs: append([]expr.Expression{inner}, argList()...)}
	case "union":
		return expr.Union{Lhs: []expr.Expression{inner}, Rhs: argList()}
	case "difference":
		return expr.Difference{Lhs: []expr.Expression{inner}, Rhs: argList()}
	case "symmetricDifference":
		return expr.SymmetricDifference{Lhs: []expr.Expression{inner}, Rhs: argList()}
	case "add":
		return expr.Add{Lhs: inner, Rhs: arg()}
	case "sub":
		return expr.Sub{Lhs: inner, Rhs: arg()}
	case "mul":
		return expr.Mul{Lhs: inner, Rhs: arg()}
	case "div":
		return expr.Div{Lhs: inner, Rhs: arg()}
	case "mod":
		return expr.Mod{Lhs: inner, Rhs: arg()}
	case "eq":
		return expr.Equals{Lhs: inner, Rhs: arg()}
	case "gt":
		return expr.Gt{Lhs: inner, Rhs: arg()}
	case "gte":
		return expr.Gte{Lhs: inner, Rhs: arg()}
	case "lt":
		return expr.Lt{Lhs: inner, Rhs: arg()}
	case "lte":
		return expr.Lte{Lhs: inner, Rhs: arg()}
	case "pathEq":
		return expr.PathEq{Lhs: inner, Rhs: arg(), Path: path()}
	case "propEq":
		prop := ""
		if v, ok := args["prop"]; ok {
			prop = b.stringArg(v)
		}
		return expr.PropEq{Lhs: inner, Rhs: arg(), Prop: prop}
	case "concurrency":
		return expr.Concurrency{Mode: b.exprMode(args), Exprs: append([]expr.Expression{inner}, argList()...)}
	default:
		b.addViolation(violationAt(dir.Position, "@modify: unknown op %q", op))
		return inner
	}
}

// compileCache wraps inner in expr.Cached, keyed by a fingerprint derived
// from the field identity plus the current value/args (serialized via
// value.ToJSON), so two resolutions of the same field with the same
// arguments against the same parent share one AsyncCache entry.
func (b *builder) compileCache(typeName, fieldName string, inner expr.Expression, dir *language.Directive) expr.Expression {
	prefix := typeName + "." + fieldName
	return expr.Cached{
		Inner: inner,
		Fingerprint: func(ctx *expr.EvalContext) string {
			v, _ := ctx.Path.Lookup([]string{pathctx.RootValue})
			a, _ := ctx.Path.Lookup([]string{pathctx.RootArgs})
			encoded, _ := json.Marshal(struct {
				V any `json:"v"`
				A any `json:"a"`
			}{V: value.ToJSON(v), A: value.ToJSON(a)})
			return prefix + ":" + string(encoded)
		},
	}
}

// cacheMaxAge reads @cache's maxAge argument, used by the executor to call
// RequestContext.CacheControl.SetCacheControl once the field resolves.
func (b *builder) cacheMaxAge(dir *language.Directive) *int {
	args := directiveArgs(dir)
	v, ok := args["maxAge"]
	if !ok {
		return nil
	}
	n := b.intArg(v)
	return &n
}

// fieldReturnType finds the schema.TypeRef a field declares, used by
// @http/@grpc/@graphQL to derive a response-validation schema and by
// @const to validate its literal. The field was already projected once
// during populateTypeBody, so this looks the result up rather than
// re-parsing (and re-validating) the AST node.
func (b *builder) fieldReturnType(typeName string, fieldNode *language.FieldDefinition) *schema.TypeRef {
	t, ok := b.types[typeName]
	if !ok {
		return schema.NamedType("")
	}
	for _, f := range t.Fields {
		if f.Name == fieldNode.Name {
			return f.Type
		}
	}
	return schema.NamedType("")
}
