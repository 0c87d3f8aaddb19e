package engine

import "github.com/latticegql/lattice/internal/expr"

// findIO locates the *expr.IO node inside a compiled field's Expression
// tree, so BuildAppContext can register a loader for every upstream-backed
// field regardless of what @modify/@cache wrapped around the call.
func findIO(e expr.Expression) *expr.IO {
	return expr.FindIO(e)
}
