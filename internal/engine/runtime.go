// Package engine implements executor.Runtime against a compiled
// blueprint.Blueprint: it is the glue between the directive-compiled
// Expression algebra and the generic breadth-first Executor, resolving
// every field (synchronous projection or asynchronous upstream call) by
// evaluating its CompiledField.Expression against a per-request
// EvalContext.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/latticegql/lattice/internal/blueprint"
	"github.com/latticegql/lattice/internal/executor"
	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/pathctx"
	"github.com/latticegql/lattice/internal/reqcontext"
	"github.com/latticegql/lattice/internal/value"
	"github.com/latticegql/lattice/pkg/errors"
)

// Runtime implements executor.Runtime over one compiled Blueprint. A single
// Runtime is built once at startup and reused concurrently across every
// incoming request; all per-request state lives in the *reqcontext.RequestContext
// attached to ctx via WithRequestContext.
type Runtime struct {
	bp *blueprint.Blueprint
}

// New builds the Runtime for a compiled Blueprint.
func New(bp *blueprint.Blueprint) *Runtime {
	return &Runtime{bp: bp}
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx so the Runtime (and anything else
// downstream) can recover the per-request state the Executor's context-only
// method signatures don't otherwise carry.
func WithRequestContext(ctx context.Context, rc *reqcontext.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom recovers the RequestContext WithRequestContext attached,
// or nil if none was set (a programmer error in every real call path).
func RequestContextFrom(ctx context.Context) *reqcontext.RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*reqcontext.RequestContext)
	return rc
}

// asValue coerces an Executor source value into a value.Value. The Executor
// traffics in plain JSON-safe Go values (maps, slices, scalars, nil), so
// anything that is not already a value.Value converts through FromJSON.
func asValue(v any) value.Value {
	if v == nil {
		return value.Null
	}
	if vv, ok := v.(value.Value); ok {
		return vv
	}
	return value.FromJSON(v)
}

// toExecutor converts a resolved value.Value back into the plain Go shape
// the Executor's completion logic (null detection, list traversal, leaf
// serialization) operates over.
func toExecutor(v value.Value) any {
	return value.ToJSON(v)
}

// classify wraps resolution failures that escaped the taxonomy: response
// validation surfaces as a schema mismatch, context cancellation as
// cancelled, everything else from the expression layer as an eval error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.ErrorCode(err) != errors.EInternal {
		return err
	}
	var ve *expr.ValidationError
	if stderrors.As(err, &ve) {
		return errors.Wrap(err, errors.ESchemaMismatch, "response does not match the field's declared type")
	}
	if errors.IsContextCanceledError(err) {
		return errors.Wrap(err, errors.ECancelled, "request cancelled")
	}
	return errors.Wrap(err, errors.EEval, "field resolution failed")
}

func (r *Runtime) evalContext(rc *reqcontext.RequestContext, source any, args map[string]any) *expr.EvalContext {
	return &expr.EvalContext{
		Path: pathctx.Stacked{
			Value:   asValue(source),
			Args:    value.FromJSON(args),
			Headers: pathctx.Headers{Values: rc.Headers},
			Vars:    rc.Vars,
			Env:     pathctx.Env{Lookup_: rc.App.Env.Lookup},
		},
		IO: &dispatcher{rc: rc},
	}
}

// resolveField evaluates objectType.field against source/args. A field with
// no compiled resolver falls back to reading the same-named property off
// the parent value — the Executor's documented default for plain
// projections.
func (r *Runtime) resolveField(ctx context.Context, rc *reqcontext.RequestContext, objectType, field string, source any, args map[string]any) (value.Value, error) {
	cf := r.bp.Field(objectType, field)
	if cf == nil {
		v, ok := asValue(source).Field(field)
		if !ok {
			return value.Null, nil
		}
		return v, nil
	}

	evalCtx := r.evalContext(rc, source, args)

	var v value.Value
	var err error
	if cached, ok := cf.Expression.(expr.Cached); ok {
		v, err = r.evalCached(rc, cached, cf.CacheMaxAge, evalCtx)
	} else {
		v, err = cf.Expression.Eval(evalCtx)
	}
	if err != nil {
		return value.Null, err
	}
	if cf.CacheMaxAge != nil {
		rc.CacheControl.SetCacheControl(reqcontext.CachePolicy{MaxAge: cf.CacheMaxAge})
	}
	return v, nil
}

// evalCached fulfils an @cache field through two layers: the long-lived
// EntityCache (keyed by the same fingerprint, expiring after maxAge) serves
// repeat requests without touching the upstream at all, and the
// per-request Inflight AsyncCache coalesces concurrent evaluations of the
// same fingerprint within one operation so a cache miss only ever triggers
// one Inner.Eval no matter how many selections land on it.
func (r *Runtime) evalCached(rc *reqcontext.RequestContext, cached expr.Cached, maxAge *int, evalCtx *expr.EvalContext) (value.Value, error) {
	key := cached.Fingerprint(evalCtx)
	if v, ok := rc.CacheGet(key); ok {
		return v, nil
	}
	v, err := rc.Inflight().GetOrEval(key, func() (value.Value, error) {
		return cached.Inner.Eval(evalCtx)
	})
	if err != nil {
		return value.Null, err
	}
	if maxAge != nil && *maxAge > 0 {
		rc.CacheInsert(key, v, time.Duration(*maxAge)*time.Second)
	}
	return v, nil
}

// ResolveSync implements executor.Runtime.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	rc := RequestContextFrom(ctx)
	if rc == nil {
		return nil, fmt.Errorf("engine: no RequestContext attached to context")
	}
	v, err := r.resolveField(ctx, rc, objectType, field, source, args)
	if err != nil {
		return nil, classify(err)
	}
	return toExecutor(v), nil
}

// BatchResolveAsync implements executor.Runtime. Every task is evaluated
// concurrently; the concurrency itself is what lets the shared DataLoader
// backing each `@http`/`@grpc`/`@graphQL` field coalesce the individual
// upstream calls issued within this depth into as few round trips as the
// blueprint's batching configuration allows.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	rc := RequestContextFrom(ctx)
	results := make([]executor.AsyncResolveResult, len(tasks))
	if rc == nil {
		err := fmt.Errorf("engine: no RequestContext attached to context")
		for i := range results {
			results[i] = executor.AsyncResolveResult{Error: err}
		}
		return results
	}

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t executor.AsyncResolveTask) {
			defer wg.Done()
			v, err := r.resolveField(ctx, rc, t.ObjectType, t.Field, t.Source, t.Args)
			if err != nil {
				results[i] = executor.AsyncResolveResult{Error: classify(err)}
				return
			}
			results[i] = executor.AsyncResolveResult{Value: toExecutor(v)}
		}(i, t)
	}
	wg.Wait()
	return results
}

// ResolveType implements executor.Runtime for interfaces and unions:
// abstract field results are always object values carrying the concrete
// type's name under "__typename" (either projected through verbatim from a
// federated upstream's own `__typename`, or declared as an `@addField`
// constant on the concrete type).
func (r *Runtime) ResolveType(ctx context.Context, abstractType string, v any) (string, error) {
	name, ok := asValue(v).Field("__typename")
	if !ok || name.Kind() != value.KindString {
		return "", fmt.Errorf("engine: value resolved for abstract type %q carries no __typename", abstractType)
	}
	return name.AsString(), nil
}

// ResolveUnionConcreteValue implements executor.Runtime. Lattice never
// wraps union members in a discriminated envelope (no protobuf oneof to
// unwrap) — the resolved value already is its concrete representation.
func (r *Runtime) ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, v any) (any, error) {
	return v, nil
}

// ResolveInterfaceConcreteValue implements executor.Runtime, symmetric with
// ResolveUnionConcreteValue.
func (r *Runtime) ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, v any) (any, error) {
	return v, nil
}

// SerializeLeafValue implements executor.Runtime: by the time completion
// reaches a leaf the value is already a JSON-safe Go scalar (or a
// value.Value produced by an embedded projection), so serialization is a
// pass-through modulo that one conversion.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, v any) (any, error) {
	if vv, ok := v.(value.Value); ok {
		return value.ToJSON(vv), nil
	}
	return v, nil
}
