package expr

import (
	"fmt"

	"github.com/latticegql/lattice/internal/value"
)

func evalNumber(ctx *EvalContext, e Expression) (float64, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		return 0, err
	}
	if v.Kind() != value.KindNumber {
		return 0, fmt.Errorf("expr: expected number, got %s", v.Kind())
	}
	return v.AsNumber(), nil
}

type Add struct{ Lhs, Rhs Expression }

func (e Add) Eval(ctx *EvalContext) (value.Value, error) { return binaryMath(ctx, e.Lhs, e.Rhs, func(a, b float64) float64 { return a + b }) }

type Sub struct{ Lhs, Rhs Expression }

func (e Sub) Eval(ctx *EvalContext) (value.Value, error) { return binaryMath(ctx, e.Lhs, e.Rhs, func(a, b float64) float64 { return a - b }) }

type Mul struct{ Lhs, Rhs Expression }

func (e Mul) Eval(ctx *EvalContext) (value.Value, error) { return binaryMath(ctx, e.Lhs, e.Rhs, func(a, b float64) float64 { return a * b }) }

type Div struct{ Lhs, Rhs Expression }

func (e Div) Eval(ctx *EvalContext) (value.Value, error) {
	lhs, err := evalNumber(ctx, e.Lhs)
	if err != nil {
		return value.Null, err
	}
	rhs, err := evalNumber(ctx, e.Rhs)
	if err != nil {
		return value.Null, err
	}
	if rhs == 0 {
		return value.Null, fmt.Errorf("expr: division by zero")
	}
	return value.Number(lhs / rhs), nil
}

type Mod struct{ Lhs, Rhs Expression }

func (e Mod) Eval(ctx *EvalContext) (value.Value, error) {
	lhs, err := evalNumber(ctx, e.Lhs)
	if err != nil {
		return value.Null, err
	}
	rhs, err := evalNumber(ctx, e.Rhs)
	if err != nil {
		return value.Null, err
	}
	if rhs == 0 {
		return value.Null, fmt.Errorf("expr: modulo by zero")
	}
	return value.Number(float64(int64(lhs) % int64(rhs))), nil
}

func binaryMath(ctx *EvalContext, lhsExpr, rhsExpr Expression, op func(a, b float64) float64) (value.Value, error) {
	lhs, err := evalNumber(ctx, lhsExpr)
	if err != nil {
		return value.Null, err
	}
	rhs, err := evalNumber(ctx, rhsExpr)
	if err != nil {
		return value.Null, err
	}
	return value.Number(op(lhs, rhs)), nil
}

type Inc struct{ Inner Expression }

func (e Inc) Eval(ctx *EvalContext) (value.Value, error) {
	v, err := evalNumber(ctx, e.Inner)
	if err != nil {
		return value.Null, err
	}
	return value.Number(v + 1), nil
}

type Dec struct{ Inner Expression }

func (e Dec) Eval(ctx *EvalContext) (value.Value, error) {
	v, err := evalNumber(ctx, e.Inner)
	if err != nil {
		return value.Null, err
	}
	return value.Number(v - 1), nil
}

type Negate struct{ Inner Expression }

func (e Negate) Eval(ctx *EvalContext) (value.Value, error) {
	v, err := evalNumber(ctx, e.Inner)
	if err != nil {
		return value.Null, err
	}
	return value.Number(-v), nil
}

type Sum struct{ Exprs []Expression }

func (e Sum) Eval(ctx *EvalContext) (value.Value, error) {
	total := 0.0
	for _, expr := range e.Exprs {
		n, err := evalNumber(ctx, expr)
		if err != nil {
			return value.Null, err
		}
		total += n
	}
	return value.Number(total), nil
}

type Product struct{ Exprs []Expression }

func (e Product) Eval(ctx *EvalContext) (value.Value, error) {
	total := 1.0
	for _, expr := range e.Exprs {
		n, err := evalNumber(ctx, expr)
		if err != nil {
			return value.Null, err
		}
		total *= n
	}
	return value.Number(total), nil
}
