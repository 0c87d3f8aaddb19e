package expr

import (
	"sync"

	"github.com/latticegql/lattice/internal/value"
)

// Mode selects how a Concurrency expression's children are evaluated
// relative to each other.
type Mode int

const (
	// Sequential evaluates children left to right; each may observe the
	// effects of the ones before it.
	Sequential Mode = iota
	// Parallel evaluates all children concurrently; side-effect ordering is
	// unspecified, but result assembly is deterministic (result[i]
	// corresponds to Exprs[i]).
	Parallel
	// Batched evaluates all children concurrently, same as Parallel; actual
	// upstream coalescing into one flush happens inside the DataLoader each
	// IO child's Dispatch call reaches, governed by the loader's own delay
	// window rather than anything in this package.
	Batched
)

// Concurrency evaluates Exprs under Mode and assembles their results into a
// list, in Exprs' original order regardless of completion order.
type Concurrency struct {
	Mode  Mode
	Exprs []Expression
}

func (e Concurrency) Eval(ctx *EvalContext) (value.Value, error) {
	switch e.Mode {
	case Sequential:
		return sequentialEval(ctx, e.Exprs)
	default:
		return parallelEval(ctx, e.Exprs)
	}
}

func sequentialEval(ctx *EvalContext, exprs []Expression) (value.Value, error) {
	out := make([]value.Value, len(exprs))
	for i, expr := range exprs {
		v, err := expr.Eval(ctx)
		if err != nil {
			return value.Null, err
		}
		out[i] = v
	}
	return value.List(out...), nil
}

func parallelEval(ctx *EvalContext, exprs []Expression) (value.Value, error) {
	out := make([]value.Value, len(exprs))
	errs := make([]error, len(exprs))

	var wg sync.WaitGroup
	wg.Add(len(exprs))
	for i, expr := range exprs {
		i, expr := i, expr
		go func() {
			defer wg.Done()
			out[i], errs[i] = expr.Eval(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return value.Null, err
		}
	}
	return value.List(out...), nil
}
