package blueprint

import (
	"strings"
	"time"

	"github.com/latticegql/lattice/internal/language"
	"github.com/latticegql/lattice/internal/schema"
)

type builder struct {
	docs []*language.SchemaDocument

	types      map[string]*schema.Type
	rootQuery  string
	rootMut    string
	rootSub    string
	server     *ServerConfig
	upstreams  map[string]*UpstreamConfig
	fields     map[string]map[string]*CompiledField
	violations []*Violation

	// declaredArgs[typeName][fieldName] is the set of argument names
	// available to {{args.*}} templates on that field.
	declaredArgs map[string]map[string]map[string]struct{}
}

// Compile parses every named SDL source, resolves the type system, and
// compiles each field's directive chain into an Expression. Errors are
// collected across the whole pass and returned together as a
// ValidationError; compilation never stops at the first defect.
func Compile(sources map[string]string) (*Blueprint, error) {
	b := &builder{
		types:        make(map[string]*schema.Type),
		upstreams:    make(map[string]*UpstreamConfig),
		fields:       make(map[string]map[string]*CompiledField),
		declaredArgs: make(map[string]map[string]map[string]struct{}),
	}

	for name, src := range sources {
		doc, err := language.ParseSchema(name, src)
		if err != nil {
			return nil, err
		}
		b.docs = append(b.docs, doc)
	}

	b.populateTypes()
	b.populateSchemaRoots()
	b.populateTopLevelDirectives()
	if len(b.violations) > 0 {
		return nil, ValidationError(b.violations)
	}

	b.populateFieldDirectives()
	if len(b.violations) > 0 {
		return nil, ValidationError(b.violations)
	}

	if b.server == nil {
		b.server = defaultServerConfig()
	}

	sch := &schema.Schema{
		QueryType:        b.rootQuery,
		MutationType:     b.rootMut,
		SubscriptionType: b.rootSub,
		Types:            b.types,
	}
	schema.AddBuiltins(sch)
	b.markAsyncFields(sch)

	return &Blueprint{Schema: sch, Fields: b.fields, Server: b.server, Upstreams: b.upstreams}, nil
}

// markAsyncFields flags every field whose compiled Expression performs
// upstream IO, so the Executor routes it through BatchResolveAsync (and the
// loader batching window) instead of ResolveSync.
func (b *builder) markAsyncFields(sch *schema.Schema) {
	for typeName, fields := range b.fields {
		t, ok := sch.Types[typeName]
		if !ok {
			continue
		}
		for _, f := range t.Fields {
			if cf, ok := fields[f.Name]; ok {
				f.Async = cf.Async
			}
		}
	}
}

func (b *builder) populateTypes() {
	for _, doc := range b.docs {
		for _, node := range doc.Definitions {
			if _, exists := b.types[node.Name]; exists {
				b.addViolation(violationAt(node.Position, "type %q already defined", node.Name))
				continue
			}
			b.types[node.Name] = b.newType(node)
		}
	}
	// Second pass: field lists, interface lists, union members — deferred
	// until every named type exists, so forward references resolve.
	for _, doc := range b.docs {
		for _, node := range doc.Definitions {
			b.populateTypeBody(b.types[node.Name], node)
		}
		for _, node := range doc.Extensions {
			t, ok := b.types[node.Name]
			if !ok {
				b.addViolation(violationAt(node.Position, "extend of undeclared type %q", node.Name))
				continue
			}
			b.populateTypeBody(t, node)
		}
	}
}

func (b *builder) newType(node *language.Definition) *schema.Type {
	t := &schema.Type{Name: node.Name, Description: node.Description}
	switch node.Kind {
	case language.Object:
		t.Kind = schema.TypeKindObject
	case language.Interface:
		t.Kind = schema.TypeKindInterface
	case language.Union:
		t.Kind = schema.TypeKindUnion
	case language.Scalar:
		t.Kind = schema.TypeKindScalar
	case language.Enum:
		t.Kind = schema.TypeKindEnum
	case language.InputObject:
		t.Kind = schema.TypeKindInputObject
	}
	return t
}

func (b *builder) populateTypeBody(t *schema.Type, node *language.Definition) {
	if t == nil {
		return
	}
	switch node.Kind {
	case language.Object, language.Interface:
		for _, fieldNode := range node.Fields {
			if strings.HasPrefix(fieldNode.Name, "__") {
				continue
			}
			f := &schema.Field{
				Name:        fieldNode.Name,
				Description: fieldNode.Description,
				Type:        b.projectTypeRef(fieldNode.Type),
			}
			args := make(map[string]struct{}, len(fieldNode.Arguments))
			for _, argNode := range fieldNode.Arguments {
				f.Arguments = append(f.Arguments, &schema.InputValue{
					Name: argNode.Name,
					Type: b.projectTypeRef(argNode.Type),
				})
				args[argNode.Name] = struct{}{}
			}
			t.Fields = append(t.Fields, f)
			if b.declaredArgs[t.Name] == nil {
				b.declaredArgs[t.Name] = make(map[string]map[string]struct{})
			}
			b.declaredArgs[t.Name][fieldNode.Name] = args
		}
		t.Interfaces = append(t.Interfaces, node.Interfaces...)
	case language.Union:
		t.PossibleTypes = append(t.PossibleTypes, node.Types...)
	case language.Enum:
		for _, v := range node.EnumValues {
			t.EnumValues = append(t.EnumValues, &schema.EnumValue{Name: v.Name, Description: v.Description})
		}
	case language.InputObject:
		for _, f := range node.Fields {
			t.InputFields = append(t.InputFields, &schema.InputValue{Name: f.Name, Type: b.projectTypeRef(f.Type)})
		}
	}
}

func (b *builder) populateSchemaRoots() {
	for _, doc := range b.docs {
		for _, def := range doc.Schema {
			for _, op := range def.OperationTypes {
				switch op.Operation {
				case language.Query:
					b.rootQuery = op.Type
				case language.Mutation:
					b.rootMut = op.Type
				case language.Subscription:
					b.rootSub = op.Type
				}
			}
		}
	}
	if b.rootQuery == "" {
		if _, ok := b.types["Query"]; ok {
			b.rootQuery = "Query"
		}
	}
}

func (b *builder) populateTopLevelDirectives() {
	for _, doc := range b.docs {
		for _, def := range doc.Schema {
			b.processTopLevelDirectives(def.Directives)
		}
		for _, def := range doc.SchemaExtension {
			b.processTopLevelDirectives(def.Directives)
		}
	}
}

func (b *builder) processTopLevelDirectives(dirs language.DirectiveList) {
	for _, dir := range dirs {
		switch dir.Name {
		case "server":
			b.compileServerDirective(dir)
		case "upstream":
			b.compileUpstreamDirective(dir)
		}
	}
}

func (b *builder) compileServerDirective(dir *language.Directive) {
	if b.server != nil {
		b.addViolation(violationAt(dir.Position, "@server declared more than once"))
		return
	}
	cfg := defaultServerConfig()
	args := directiveArgs(dir)
	if v, ok := args["addr"]; ok {
		cfg.Addr = b.stringArg(v)
	}
	if v, ok := args["enableBatchRequests"]; ok {
		cfg.EnableBatchRequests = b.boolArg(v)
	}
	if v, ok := args["exposeInternalErrors"]; ok {
		cfg.ExposeInternalErrors = b.boolArg(v)
	}
	if v, ok := args["jwksURL"]; ok {
		cfg.JWKSURL = b.stringArg(v)
	}
	if v, ok := args["issuer"]; ok {
		cfg.Issuer = b.stringArg(v)
	}
	if v, ok := args["audiences"]; ok {
		cfg.Audiences = b.stringListArg(v)
	}
	b.server = cfg
}

func (b *builder) compileUpstreamDirective(dir *language.Directive) {
	args := directiveArgs(dir)
	name := ""
	if v, ok := args["name"]; ok {
		name = b.stringArg(v)
	}
	if name == "" {
		b.addViolation(violationAt(dir.Position, "@upstream requires a non-empty name"))
		return
	}
	if _, exists := b.upstreams[name]; exists {
		b.addViolation(violationAt(dir.Position, "@upstream %q declared more than once", name))
		return
	}
	cfg := &UpstreamConfig{Name: name, AllowedHeaders: map[string]struct{}{}}
	if v, ok := args["baseURL"]; ok {
		cfg.BaseURL = b.stringArg(v)
	}
	if v, ok := args["timeout"]; ok {
		raw := b.stringArg(v)
		d, err := time.ParseDuration(raw)
		if err != nil {
			b.addViolation(violationAt(dir.Position, "@upstream %q: invalid timeout %q: %v", name, raw, err))
		} else {
			cfg.Timeout = d
		}
	} else {
		cfg.Timeout = 10 * time.Second
	}
	if v, ok := args["allowedHeaders"]; ok {
		for _, h := range b.stringListArg(v) {
			cfg.AllowedHeaders[strings.ToLower(h)] = struct{}{}
		}
	}
	b.upstreams[name] = cfg
}

func (b *builder) populateFieldDirectives() {
	for _, doc := range b.docs {
		for _, node := range doc.Definitions {
			b.populateFieldDirectivesForNode(node)
		}
		for _, node := range doc.Extensions {
			b.populateFieldDirectivesForNode(node)
		}
	}
}

func (b *builder) populateFieldDirectivesForNode(node *language.Definition) {
	if node.Kind != language.Object && node.Kind != language.Interface {
		return
	}
	for _, fieldNode := range node.Fields {
		if strings.HasPrefix(fieldNode.Name, "__") {
			continue
		}
		declared := b.declaredArgs[node.Name][fieldNode.Name]
		cf := b.compileField(node.Name, fieldNode, declared)
		if cf == nil {
			continue
		}
		if b.fields[node.Name] == nil {
			b.fields[node.Name] = make(map[string]*CompiledField)
		}
		b.fields[node.Name][fieldNode.Name] = cf
	}
	b.compileAddFields(node)
}
