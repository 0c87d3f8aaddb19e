package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegql/lattice/internal/jsonschema"
	"github.com/latticegql/lattice/internal/pathctx"
	"github.com/latticegql/lattice/internal/value"
)

func evalCtx() *EvalContext {
	return &EvalContext{Path: pathctx.Stacked{
		Value: value.Object([]string{"name"}, []value.Value{value.String("ada")}),
		Args:  value.Object([]string{"n"}, []value.Value{value.Number(3)}),
	}}
}

func TestLiteralAndContext(t *testing.T) {
	ctx := evalCtx()
	v, err := Literal{Value: value.Number(1)}.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)

	v, err = Context{Path: []string{"value", "name"}}.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", v.AsString())

	v, err = Context{Path: []string{"value", "missing"}}.Eval(ctx)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestInput_ValidatesAgainstSchema(t *testing.T) {
	ctx := evalCtx()
	_, err := Input{Schema: jsonschema.Str(), Value: value.String("x")}.Eval(ctx)
	assert.NoError(t, err)

	_, err = Input{Schema: jsonschema.Str(), Value: value.Number(1)}.Eval(ctx)
	assert.Error(t, err)
}

func TestLogic_IfAndOrNot(t *testing.T) {
	ctx := evalCtx()
	v, err := If{Cond: Literal{value.Bool(true)}, Then: Literal{value.Number(1)}, Else: Literal{value.Number(2)}}.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), v)

	v, err = And{Exprs: []Expression{Literal{value.Bool(true)}, Literal{value.Bool(false)}}}.Eval(ctx)
	require.NoError(t, err)
	assert.False(t, v.AsBool())

	v, err = Or{Exprs: []Expression{Literal{value.Bool(false)}, Literal{value.Bool(true)}}}.Eval(ctx)
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = Not{Inner: Literal{value.Bool(false)}}.Eval(ctx)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestLogic_DefaultToAndIsEmpty(t *testing.T) {
	ctx := evalCtx()
	v, err := DefaultTo{Inner: Literal{value.Null}, Default: Literal{value.String("fallback")}}.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v.AsString())

	v, err = IsEmpty{Inner: Literal{value.List()}}.Eval(ctx)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestRelation_Comparisons(t *testing.T) {
	ctx := evalCtx()
	v, err := Gt{Lhs: Literal{value.Number(5)}, Rhs: Literal{value.Number(3)}}.Eval(ctx)
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	_, err = Gt{Lhs: Literal{value.String("a")}, Rhs: Literal{value.Number(3)}}.Eval(ctx)
	var notComparable *NotComparableError
	assert.ErrorAs(t, err, &notComparable)
}

func TestRelation_MinMaxEmptyErrors(t *testing.T) {
	ctx := evalCtx()
	_, err := Max{Exprs: nil}.Eval(ctx)
	assert.Error(t, err)
}

func TestRelation_Union(t *testing.T) {
	ctx := evalCtx()
	v, err := Union{
		Lhs: []Expression{Literal{value.List(value.Number(1), value.Number(2))}},
		Rhs: []Expression{Literal{value.List(value.Number(2), value.Number(3))}},
	}.Eval(ctx)
	require.NoError(t, err)
	assert.Len(t, v.AsList(), 3)
}

func TestMath_DivByZero(t *testing.T) {
	ctx := evalCtx()
	_, err := Div{Lhs: Literal{value.Number(1)}, Rhs: Literal{value.Number(0)}}.Eval(ctx)
	assert.Error(t, err)
}

func TestMath_Sum(t *testing.T) {
	ctx := evalCtx()
	v, err := Sum{Exprs: []Expression{Literal{value.Number(1)}, Literal{value.Number(2)}, Literal{value.Number(3)}}}.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v.AsNumber())
}

func TestConcurrency_SequentialAndParallelPreserveOrder(t *testing.T) {
	ctx := evalCtx()
	exprs := []Expression{Literal{value.Number(1)}, Literal{value.Number(2)}, Literal{value.Number(3)}}

	v, err := Concurrency{Mode: Sequential, Exprs: exprs}.Eval(ctx)
	require.NoError(t, err)
	assertNumberList(t, v, 1, 2, 3)

	v, err = Concurrency{Mode: Parallel, Exprs: exprs}.Eval(ctx)
	require.NoError(t, err)
	assertNumberList(t, v, 1, 2, 3)
}

func assertNumberList(t *testing.T, v value.Value, want ...float64) {
	t.Helper()
	require.Equal(t, value.KindList, v.Kind())
	require.Len(t, v.AsList(), len(want))
	for i, item := range v.AsList() {
		assert.Equal(t, want[i], item.AsNumber())
	}
}
