package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/latticegql/lattice/internal/blueprint"
	"github.com/latticegql/lattice/internal/executor"
	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/reqcontext"
	"github.com/latticegql/lattice/internal/value"
	"github.com/latticegql/lattice/pkg/logger"
)

// countingExpr evaluates to a fixed value, counting how many times Eval
// actually runs so tests can assert on single-flight coalescing.
type countingExpr struct {
	n   *int64
	val value.Value
}

func (c countingExpr) Eval(ctx *expr.EvalContext) (value.Value, error) {
	atomic.AddInt64(c.n, 1)
	return c.val, nil
}

func newTestRequestContext(t *testing.T) *reqcontext.RequestContext {
	t.Helper()
	log, _ := logger.NewForTest()
	app := &reqcontext.AppContext{
		Loaders:  map[string]*reqcontext.Loader{},
		Entities: reqcontext.NewEntityCache(),
		Env:      testEnv{},
	}
	return reqcontext.New(app, "req-1", log, map[string][]string{}, value.Null)
}

type testEnv struct{}

func (testEnv) Lookup(key string) (string, bool) { return "", false }

func TestResolveFieldPlainProjection(t *testing.T) {
	bp := &blueprint.Blueprint{Fields: map[string]map[string]*blueprint.CompiledField{}}
	rt := New(bp)
	rc := newTestRequestContext(t)
	ctx := WithRequestContext(context.Background(), rc)

	obj := value.NewObjectBuilder().Set("name", value.String("widget")).Build()
	v, err := rt.ResolveSync(ctx, "Widget", "name", obj, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "widget" {
		t.Fatalf("expected widget, got %v", v)
	}
}

func TestResolveFieldMissingProjectionReturnsNull(t *testing.T) {
	bp := &blueprint.Blueprint{Fields: map[string]map[string]*blueprint.CompiledField{}}
	rt := New(bp)
	rc := newTestRequestContext(t)
	ctx := WithRequestContext(context.Background(), rc)

	obj := value.NewObjectBuilder().Build()
	v, err := rt.ResolveSync(ctx, "Widget", "missing", obj, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil, got %v", v)
	}
}

// TestCachedFieldCoalescesConcurrentEvaluations exercises the @cache
// single-flight path: many concurrent BatchResolveAsync tasks for the same
// fingerprint must only evaluate Inner once.
func TestCachedFieldCoalescesConcurrentEvaluations(t *testing.T) {
	var evalCount int64
	maxAge := 60
	cf := &blueprint.CompiledField{
		CacheMaxAge: &maxAge,
		Expression: expr.Cached{
			Inner: countingExpr{n: &evalCount, val: value.String("cached-value")},
			Fingerprint: func(ctx *expr.EvalContext) string {
				return "Query.expensive:static"
			},
		},
	}
	bp := &blueprint.Blueprint{Fields: map[string]map[string]*blueprint.CompiledField{
		"Query": {"expensive": cf},
	}}
	rt := New(bp)
	rc := newTestRequestContext(t)
	ctx := WithRequestContext(context.Background(), rc)

	const n = 20
	tasks := make([]executor.AsyncResolveTask, n)
	for i := range tasks {
		tasks[i] = executor.AsyncResolveTask{ObjectType: "Query", Field: "expensive"}
	}
	results := rt.BatchResolveAsync(ctx, tasks)
	for _, r := range results {
		if r.Error != nil {
			t.Fatalf("unexpected error: %v", r.Error)
		}
		if r.Value != "cached-value" {
			t.Fatalf("unexpected value: %v", r.Value)
		}
	}
	if got := atomic.LoadInt64(&evalCount); got != 1 {
		t.Fatalf("expected Inner.Eval to run exactly once, ran %d times", got)
	}

	// A second wave within the same RequestContext still only reuses the
	// in-flight/entity cache entry; it must not re-run Inner either.
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.ResolveSync(ctx, "Query", "expensive", nil, nil)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt64(&evalCount); got != 1 {
		t.Fatalf("expected Inner.Eval to remain at 1 call after reuse, got %d", got)
	}
}

func TestCachedFieldServedFromEntityCacheAcrossRequests(t *testing.T) {
	var evalCount int64
	maxAge := 60
	cf := &blueprint.CompiledField{
		CacheMaxAge: &maxAge,
		Expression: expr.Cached{
			Inner: countingExpr{n: &evalCount, val: value.String("shared")},
			Fingerprint: func(ctx *expr.EvalContext) string {
				return "Query.shared:static"
			},
		},
	}
	bp := &blueprint.Blueprint{Fields: map[string]map[string]*blueprint.CompiledField{
		"Query": {"shared": cf},
	}}
	rt := New(bp)

	log, _ := logger.NewForTest()
	app := &reqcontext.AppContext{
		Loaders:  map[string]*reqcontext.Loader{},
		Entities: reqcontext.NewEntityCache(),
		Env:      testEnv{},
	}

	rc1 := reqcontext.New(app, "req-1", log, map[string][]string{}, value.Null)
	ctx1 := WithRequestContext(context.Background(), rc1)
	if _, err := rt.ResolveSync(ctx1, "Query", "shared", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc2 := reqcontext.New(app, "req-2", log, map[string][]string{}, value.Null)
	ctx2 := WithRequestContext(context.Background(), rc2)
	if _, err := rt.ResolveSync(ctx2, "Query", "shared", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt64(&evalCount); got != 1 {
		t.Fatalf("expected entity cache to serve the second request without re-evaluating, got %d calls", got)
	}
}

func TestResolveTypeRequiresTypename(t *testing.T) {
	bp := &blueprint.Blueprint{Fields: map[string]map[string]*blueprint.CompiledField{}}
	rt := New(bp)
	_, err := rt.ResolveType(context.Background(), "Node", value.NewObjectBuilder().Build())
	if err == nil {
		t.Fatalf("expected error when __typename is absent")
	}
}
