package blueprint

import (
	"fmt"
	"sort"

	"github.com/latticegql/lattice/internal/expr"
)

// NPlusOneWarning flags a field whose upstream call risks firing once per
// item of an enclosing list rather than being folded into a single batch.
type NPlusOneWarning struct {
	Type    string
	Field   string
	Message string
}

// AnalyzeNPlusOne walks every compiled field reachable as the element of a
// list and reports any that resolve via an ungrouped upstream call: inside
// a list, that call fires once per item instead of once per batch.
func (bp *Blueprint) AnalyzeNPlusOne() []NPlusOneWarning {
	listElementTypes := make(map[string]bool)
	for _, t := range bp.Schema.Types {
		for _, f := range t.Fields {
			if f.Type != nil && f.Type.IsList() {
				if named := f.Type.GetNamedType(); named != "" {
					listElementTypes[named] = true
				}
			}
		}
	}

	var warnings []NPlusOneWarning
	for typeName, fields := range bp.Fields {
		if !listElementTypes[typeName] {
			continue
		}
		for fieldName, cf := range fields {
			node := findIO(cf.Expression)
			if node == nil || len(node.GroupBy) > 0 {
				continue
			}
			warnings = append(warnings, NPlusOneWarning{
				Type:  typeName,
				Field: fieldName,
				Message: fmt.Sprintf(
					"%s.%s issues one upstream call per item when resolved inside a list; add @groupBy to batch it",
					typeName, fieldName,
				),
			})
		}
	}

	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Type != warnings[j].Type {
			return warnings[i].Type < warnings[j].Type
		}
		return warnings[i].Field < warnings[j].Field
	})
	return warnings
}

// findIO locates the *expr.IO node inside an Expression tree, whatever
// @modify/@cache wrapped around it.
func findIO(e expr.Expression) *expr.IO {
	return expr.FindIO(e)
}
