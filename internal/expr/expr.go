// Package expr implements Expression: the small algebra an Executor uses to
// resolve a single GraphQL field's value. Every node is a pure function of
// itself plus an EvalContext; IO nodes are the only ones that touch the
// outside world, delegating to the RequestContext's loaders and clients.
package expr

import (
	"fmt"

	"github.com/latticegql/lattice/internal/jsonschema"
	"github.com/latticegql/lattice/internal/pathctx"
	"github.com/latticegql/lattice/internal/template"
	"github.com/latticegql/lattice/internal/value"
)

// Expression is implemented by every node in the algebra.
type Expression interface {
	Eval(ctx *EvalContext) (value.Value, error)
}

// EvalContext wraps the PathContext an Expression tree evaluates against
// (value/args/headers/vars/env), plus the IO dispatch capability used by IO
// nodes. It is rebuilt fresh per field resolution, rooted at that field's
// parent value.
type EvalContext struct {
	Path pathctx.PathContext
	IO   IODispatcher
}

// IODispatcher performs the actual upstream call an IO expression
// describes, given the already-rendered request plan. Concrete
// implementations live in the layer that wires reqtemplate + dataloader +
// the real HTTP/gRPC/GraphQL clients together (kept out of this package so
// expr stays a pure evaluator over an interface seam).
type IODispatcher interface {
	Dispatch(ctx *EvalContext, io *IO) (value.Value, error)
}

func (c *EvalContext) contextValue(path []string) value.Value {
	v, ok := c.Path.Lookup(path)
	if !ok {
		return value.Null
	}
	return v
}

// Literal always evaluates to the same constant value.
type Literal struct{ Value value.Value }

func (e Literal) Eval(*EvalContext) (value.Value, error) { return e.Value, nil }

// Context reads a path out of the EvalContext's PathContext; an absent path
// evaluates to null rather than an error.
type Context struct{ Path []string }

func (e Context) Eval(ctx *EvalContext) (value.Value, error) { return ctx.contextValue(e.Path), nil }

// Input is a validated constant: Value must conform to Schema, checked once
// at evaluation time (mirroring argument coercion).
type Input struct {
	Schema jsonschema.Schema
	Value  value.Value
}

func (e Input) Eval(*EvalContext) (value.Value, error) {
	if violations := e.Schema.Validate(e.Value); len(violations) > 0 {
		return value.Null, &ValidationError{Violations: violations}
	}
	return e.Value, nil
}

// Render evaluates a Mustache-style Template against the EvalContext's
// PathContext, yielding a string. Used by `@expr` fields that compute a
// simple templated value rather than issuing upstream IO.
type Render struct{ Template template.Template }

func (e Render) Eval(ctx *EvalContext) (value.Value, error) {
	return value.String(e.Template.Render(ctx.Path)), nil
}

// ValidationError reports Input failing its declared Schema.
type ValidationError struct {
	Violations []jsonschema.Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Violations[0].String()
}

// IOProtocol selects which upstream protocol an IO expression targets.
type IOProtocol int

const (
	IOProtocolHTTP IOProtocol = iota
	IOProtocolGRPC
	IOProtocolGraphQL
)

// IO is an upstream call: build a request from the field's compiled
// RequestTemplate (owned by the blueprint layer, referenced here only by
// opaque Plan), render it against the EvalContext, and dispatch it through
// the selected loader (if GroupBy/LoaderID are set) or directly.
type IO struct {
	Protocol IOProtocol
	Plan     interface{} // the compiled reqtemplate.HTTP / GraphQL / GRPC for this field
	GroupBy  []string
	LoaderID string
	Schema   *jsonschema.Schema // optional response validation

	// AllowedHeaders is the set of incoming request header names (declared
	// by this call's @upstream(allowedHeaders: [...])) that may be
	// forwarded onto the outgoing request. Empty means none are forwarded.
	AllowedHeaders map[string]struct{}
}

func (e *IO) Eval(ctx *EvalContext) (value.Value, error) {
	if ctx.IO == nil {
		return value.Null, fmt.Errorf("expr: no IO dispatcher configured")
	}
	return ctx.IO.Dispatch(ctx, e)
}

// Cached memoizes Inner's result by a caller-supplied Fingerprint function
// of the current EvalContext. The memoizing is done by the engine's field
// resolver (engine.Runtime), which checks whether a field's top-level
// expression is a Cached and, if so, serves it through its caches keyed by
// Fingerprint; Cached itself just marks the boundary.
type Cached struct {
	Inner       Expression
	Fingerprint func(ctx *EvalContext) string
}

func (e Cached) Eval(ctx *EvalContext) (value.Value, error) {
	// Plain evaluation still produces a correct (if unmemoized) result —
	// memoization is an optimization the engine's field resolver applies
	// using Fingerprint, not a semantic requirement the bare evaluator must
	// implement.
	return e.Inner.Eval(ctx)
}

// ---- Logic ----

type If struct{ Cond, Then, Else Expression }

func (e If) Eval(ctx *EvalContext) (value.Value, error) {
	cond, err := e.Cond.Eval(ctx)
	if err != nil {
		return value.Null, err
	}
	if truthy(cond) {
		return e.Then.Eval(ctx)
	}
	return e.Else.Eval(ctx)
}

type And struct{ Exprs []Expression }

func (e And) Eval(ctx *EvalContext) (value.Value, error) {
	for _, expr := range e.Exprs {
		v, err := expr.Eval(ctx)
		if err != nil {
			return value.Null, err
		}
		if !truthy(v) {
			return value.Bool(false), nil
		}
	}
	return value.Bool(true), nil
}

type Or struct{ Exprs []Expression }

func (e Or) Eval(ctx *EvalContext) (value.Value, error) {
	for _, expr := range e.Exprs {
		v, err := expr.Eval(ctx)
		if err != nil {
			return value.Null, err
		}
		if truthy(v) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

// CondBranch is one (condition, result) pair of a Cond expression.
type CondBranch struct{ Cond, Then Expression }

// Cond evaluates branches in order, returning the first whose condition is
// truthy, or Default if none match.
type Cond struct {
	Branches []CondBranch
	Default  Expression
}

func (e Cond) Eval(ctx *EvalContext) (value.Value, error) {
	for _, b := range e.Branches {
		cond, err := b.Cond.Eval(ctx)
		if err != nil {
			return value.Null, err
		}
		if truthy(cond) {
			return b.Then.Eval(ctx)
		}
	}
	return e.Default.Eval(ctx)
}

// DefaultTo evaluates Inner; if it is null (or errors), Default is returned
// instead.
type DefaultTo struct{ Inner, Default Expression }

func (e DefaultTo) Eval(ctx *EvalContext) (value.Value, error) {
	v, err := e.Inner.Eval(ctx)
	if err != nil || v.IsNull() {
		return e.Default.Eval(ctx)
	}
	return v, nil
}

// IsEmpty reports whether Inner evaluates to null, an empty string, an
// empty list, or an empty object.
type IsEmpty struct{ Inner Expression }

func (e IsEmpty) Eval(ctx *EvalContext) (value.Value, error) {
	v, err := e.Inner.Eval(ctx)
	if err != nil {
		return value.Null, err
	}
	empty := false
	switch v.Kind() {
	case value.KindNull:
		empty = true
	case value.KindString:
		empty = v.AsString() == ""
	case value.KindList:
		empty = len(v.AsList()) == 0
	case value.KindObject:
		empty = len(v.Keys()) == 0
	}
	return value.Bool(empty), nil
}

type Not struct{ Inner Expression }

func (e Not) Eval(ctx *EvalContext) (value.Value, error) {
	v, err := e.Inner.Eval(ctx)
	if err != nil {
		return value.Null, err
	}
	return value.Bool(!truthy(v)), nil
}

func truthy(v value.Value) bool {
	switch v.Kind() {
	case value.KindNull:
		return false
	case value.KindBool:
		return v.AsBool()
	default:
		return true
	}
}

// ---- List ----

// Concat evaluates every expression (each expected to yield a list) and
// concatenates their elements in order.
type Concat struct{ Exprs []Expression }

func (e Concat) Eval(ctx *EvalContext) (value.Value, error) {
	var out []value.Value
	for _, expr := range e.Exprs {
		v, err := expr.Eval(ctx)
		if err != nil {
			return value.Null, err
		}
		if v.Kind() != value.KindList {
			return value.Null, fmt.Errorf("expr: concat operand is not a list")
		}
		out = append(out, v.AsList()...)
	}
	return value.List(out...), nil
}
