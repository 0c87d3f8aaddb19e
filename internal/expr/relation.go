package expr

import (
	"fmt"

	"github.com/latticegql/lattice/internal/value"
)

// NotComparableError is returned by relation operators when their operands
// cannot be placed in a partial order (e.g. comparing an object to a list).
type NotComparableError struct{ Op string }

func (e *NotComparableError) Error() string {
	return fmt.Sprintf("expr: %s cannot be calculated for types that cannot be compared", e.Op)
}

// ordering mirrors a three-way comparison result; ok is false when a and b
// are not comparable (different kinds, or kinds with no total order).
func compare(a, b value.Value) (ord int, ok bool) {
	if a.Kind() != b.Kind() {
		return 0, false
	}
	switch a.Kind() {
	case value.KindNumber:
		switch {
		case a.AsNumber() < b.AsNumber():
			return -1, true
		case a.AsNumber() > b.AsNumber():
			return 1, true
		default:
			return 0, true
		}
	case value.KindString:
		switch {
		case a.AsString() < b.AsString():
			return -1, true
		case a.AsString() > b.AsString():
			return 1, true
		default:
			return 0, true
		}
	case value.KindBool:
		if a.AsBool() == b.AsBool() {
			return 0, true
		}
		if !a.AsBool() && b.AsBool() {
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

type Equals struct{ Lhs, Rhs Expression }

func (e Equals) Eval(ctx *EvalContext) (value.Value, error) {
	lhs, rhs, err := evalPair(ctx, e.Lhs, e.Rhs)
	if err != nil {
		return value.Null, err
	}
	return value.Bool(value.Equal(lhs, rhs)), nil
}

type Gt struct{ Lhs, Rhs Expression }

func (e Gt) Eval(ctx *EvalContext) (value.Value, error) { return compareBool(ctx, e.Lhs, e.Rhs, "gt", 1) }

type Gte struct{ Lhs, Rhs Expression }

func (e Gte) Eval(ctx *EvalContext) (value.Value, error) {
	return compareBool(ctx, e.Lhs, e.Rhs, "gte", 1, 0)
}

type Lt struct{ Lhs, Rhs Expression }

func (e Lt) Eval(ctx *EvalContext) (value.Value, error) { return compareBool(ctx, e.Lhs, e.Rhs, "lt", -1) }

type Lte struct{ Lhs, Rhs Expression }

func (e Lte) Eval(ctx *EvalContext) (value.Value, error) {
	return compareBool(ctx, e.Lhs, e.Rhs, "lte", -1, 0)
}

func compareBool(ctx *EvalContext, lhsExpr, rhsExpr Expression, op string, want ...int) (value.Value, error) {
	lhs, rhs, err := evalPair(ctx, lhsExpr, rhsExpr)
	if err != nil {
		return value.Null, err
	}
	ord, ok := compare(lhs, rhs)
	if !ok {
		return value.Null, &NotComparableError{Op: op}
	}
	for _, w := range want {
		if ord == w {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func evalPair(ctx *EvalContext, lhs, rhs Expression) (value.Value, value.Value, error) {
	lv, err := lhs.Eval(ctx)
	if err != nil {
		return value.Null, value.Null, err
	}
	rv, err := rhs.Eval(ctx)
	if err != nil {
		return value.Null, value.Null, err
	}
	return lv, rv, nil
}

func evalList(ctx *EvalContext, exprs []Expression) ([]value.Value, error) {
	out := make([]value.Value, 0, len(exprs))
	for _, e := range exprs {
		v, err := e.Eval(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Max returns the greatest of Exprs' results, by partial order.
type Max struct{ Exprs []Expression }

func (e Max) Eval(ctx *EvalContext) (value.Value, error) {
	return extremum(ctx, e.Exprs, "max", 1)
}

// Min returns the least of Exprs' results, by partial order.
type Min struct{ Exprs []Expression }

func (e Min) Eval(ctx *EvalContext) (value.Value, error) {
	return extremum(ctx, e.Exprs, "min", -1)
}

func extremum(ctx *EvalContext, exprs []Expression, op string, want int) (value.Value, error) {
	results, err := evalList(ctx, exprs)
	if err != nil {
		return value.Null, err
	}
	if len(results) == 0 {
		return value.Null, fmt.Errorf("expr: `%s` cannot be called on empty list", op)
	}
	best := results[len(results)-1]
	for _, cur := range results[:len(results)-1] {
		ord, ok := compare(cur, best)
		if !ok {
			return value.Null, &NotComparableError{Op: op}
		}
		if ord == want {
			best = cur
		}
	}
	return best, nil
}

func keyOf(v value.Value) string {
	return value.Scalar(v) + "\x00" + v.Kind().String()
}

func toSet(v value.Value) (map[string]value.Value, error) {
	if v.Kind() != value.KindList {
		return nil, fmt.Errorf("expr: expected list operand for set operation")
	}
	set := make(map[string]value.Value, len(v.AsList()))
	for _, item := range v.AsList() {
		set[keyOf(item)] = item
	}
	return set, nil
}

func setOperation(ctx *EvalContext, lhsExprs, rhsExprs []Expression, combine func(lhs, rhs map[string]value.Value) []value.Value) (value.Value, error) {
	lhsList, err := evalList(ctx, lhsExprs)
	if err != nil {
		return value.Null, err
	}
	rhsList, err := evalList(ctx, rhsExprs)
	if err != nil {
		return value.Null, err
	}
	lhs, err := mergeSets(lhsList)
	if err != nil {
		return value.Null, err
	}
	rhs, err := mergeSets(rhsList)
	if err != nil {
		return value.Null, err
	}
	return value.List(combine(lhs, rhs)...), nil
}

func mergeSets(lists []value.Value) (map[string]value.Value, error) {
	out := make(map[string]value.Value)
	for _, l := range lists {
		set, err := toSet(l)
		if err != nil {
			return nil, err
		}
		for k, v := range set {
			out[k] = v
		}
	}
	return out, nil
}

// Intersection evaluates every expression (each yielding a list) and
// returns the elements common to all of them.
type Intersection struct{ Exprs []Expression }

func (e Intersection) Eval(ctx *EvalContext) (value.Value, error) {
	results, err := evalList(ctx, e.Exprs)
	if err != nil {
		return value.Null, err
	}
	if len(results) == 0 {
		return value.Null, fmt.Errorf("expr: intersection requires at least one list")
	}
	acc, err := toSet(results[0])
	if err != nil {
		return value.Null, err
	}
	for _, r := range results[1:] {
		set, err := toSet(r)
		if err != nil {
			return value.Null, err
		}
		for k := range acc {
			if _, ok := set[k]; !ok {
				delete(acc, k)
			}
		}
	}
	out := make([]value.Value, 0, len(acc))
	for _, v := range acc {
		out = append(out, v)
	}
	return value.List(out...), nil
}

// Difference returns the elements of Lhs not present in Rhs.
type Difference struct{ Lhs, Rhs []Expression }

func (e Difference) Eval(ctx *EvalContext) (value.Value, error) {
	return setOperation(ctx, e.Lhs, e.Rhs, func(lhs, rhs map[string]value.Value) []value.Value {
		var out []value.Value
		for k, v := range lhs {
			if _, ok := rhs[k]; !ok {
				out = append(out, v)
			}
		}
		return out
	})
}

// SymmetricDifference returns elements present in exactly one of Lhs/Rhs.
type SymmetricDifference struct{ Lhs, Rhs []Expression }

func (e SymmetricDifference) Eval(ctx *EvalContext) (value.Value, error) {
	return setOperation(ctx, e.Lhs, e.Rhs, func(lhs, rhs map[string]value.Value) []value.Value {
		var out []value.Value
		for k, v := range lhs {
			if _, ok := rhs[k]; !ok {
				out = append(out, v)
			}
		}
		for k, v := range rhs {
			if _, ok := lhs[k]; !ok {
				out = append(out, v)
			}
		}
		return out
	})
}

// Union returns the deduplicated elements of Lhs and Rhs combined.
type Union struct{ Lhs, Rhs []Expression }

func (e Union) Eval(ctx *EvalContext) (value.Value, error) {
	return setOperation(ctx, e.Lhs, e.Rhs, func(lhs, rhs map[string]value.Value) []value.Value {
		out := make([]value.Value, 0, len(lhs)+len(rhs))
		for _, v := range lhs {
			out = append(out, v)
		}
		for k, v := range rhs {
			if _, ok := lhs[k]; !ok {
				out = append(out, v)
			}
		}
		return out
	})
}

// PathEq reports whether the value found by walking Path on Lhs's and
// Rhs's results are equal.
type PathEq struct {
	Lhs, Rhs Expression
	Path     []string
}

func (e PathEq) Eval(ctx *EvalContext) (value.Value, error) {
	lhs, rhs, err := evalPair(ctx, e.Lhs, e.Rhs)
	if err != nil {
		return value.Null, err
	}
	lv, lok := walk(lhs, e.Path)
	rv, rok := walk(rhs, e.Path)
	if !lok || !rok {
		return value.Null, fmt.Errorf("expr: could not find path %v", e.Path)
	}
	return value.Bool(value.Equal(lv, rv)), nil
}

// PropEq is PathEq specialized to a single property name.
type PropEq struct {
	Lhs, Rhs Expression
	Prop     string
}

func (e PropEq) Eval(ctx *EvalContext) (value.Value, error) {
	return PathEq{Lhs: e.Lhs, Rhs: e.Rhs, Path: []string{e.Prop}}.Eval(ctx)
}

func walk(v value.Value, path []string) (value.Value, bool) {
	cur := v
	for _, p := range path {
		next, ok := cur.Field(p)
		if !ok {
			return value.Null, false
		}
		cur = next
	}
	return cur, true
}

// SortPath evaluates Inner (expected to yield a list), sorting its elements
// ascending by the value found at Path within each element.
type SortPath struct {
	Inner Expression
	Path  []string
}

func (e SortPath) Eval(ctx *EvalContext) (value.Value, error) {
	v, err := e.Inner.Eval(ctx)
	if err != nil {
		return value.Null, err
	}
	if v.Kind() != value.KindList {
		return value.Null, fmt.Errorf("expr: sortPath can only be applied to an expression that returns a list")
	}
	items := v.AsList()
	keys := make([]value.Value, len(items))
	for i, item := range items {
		key, ok := walk(item, e.Path)
		if !ok {
			return value.Null, fmt.Errorf("expr: path is not valid for every element in the list")
		}
		keys[i] = key
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	var sortErr error
	for i := 1; i < len(order) && sortErr == nil; i++ {
		for j := i; j > 0; j-- {
			ord, ok := compare(keys[order[j-1]], keys[order[j]])
			if !ok {
				sortErr = fmt.Errorf("expr: sortPath requires a list of comparable types")
				break
			}
			if ord <= 0 {
				break
			}
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	if sortErr != nil {
		return value.Null, sortErr
	}

	out := make([]value.Value, len(items))
	for i, idx := range order {
		out[i] = items[idx]
	}
	return value.List(out...), nil
}
