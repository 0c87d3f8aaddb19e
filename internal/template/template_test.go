package template

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticegql/lattice/internal/pathctx"
	"github.com/latticegql/lattice/internal/value"
)

func TestParse_SingleLiteral(t *testing.T) {
	tpl := Parse("hello/world")
	assert.Equal(t, []Segment{{Literal: "hello/world"}}, tpl.Segments())
	assert.True(t, tpl.IsConst())
}

func TestParse_SingleExpression(t *testing.T) {
	tpl := Parse("{{hello.world}}")
	assert.Equal(t, []Segment{{Expr: []string{"hello", "world"}}}, tpl.Segments())
	assert.False(t, tpl.IsConst())
}

func TestParse_Mixed(t *testing.T) {
	tpl := Parse("http://localhost:8090/{{foo.bar}}/api/{{hello.world}}/end")
	assert.Equal(t, []Segment{
		{Literal: "http://localhost:8090/"},
		{Expr: []string{"foo", "bar"}},
		{Literal: "/api/"},
		{Expr: []string{"hello", "world"}},
		{Literal: "/end"},
	}, tpl.Segments())
}

func TestParse_WithSpaces(t *testing.T) {
	tpl := Parse("{{ foo . bar }}")
	assert.Equal(t, []Segment{{Expr: []string{"foo", "bar"}}}, tpl.Segments())
}

func TestParse_TrailingLiteral(t *testing.T) {
	tpl := Parse("{{ foo.bar }} extra")
	assert.Equal(t, []Segment{
		{Expr: []string{"foo", "bar"}},
		{Literal: " extra"},
	}, tpl.Segments())
}

func TestParse_UnterminatedExpressionDegradesToLiteral(t *testing.T) {
	tpl := Parse("{{hello.world")
	assert.Equal(t, []Segment{{Literal: "{{hello.world"}}, tpl.Segments())
	assert.True(t, tpl.IsConst())
}

func TestParse_StrayClosingBracesIsLiteral(t *testing.T) {
	tpl := Parse("foo.bar }}")
	assert.Equal(t, []Segment{{Literal: "foo.bar }}"}}, tpl.Segments())
}

func TestParse_NumberIsLiteral(t *testing.T) {
	tpl := Parse("123")
	assert.Equal(t, []Segment{{Literal: "123"}}, tpl.Segments())
}

func TestRender_Mixed(t *testing.T) {
	tpl := Parse("prefix {{foo.bar}} middle {{baz.qux}} suffix")
	ctx := pathctx.Map{Root: value.Object(
		[]string{"foo", "baz"},
		[]value.Value{
			value.Object([]string{"bar"}, []value.Value{value.String("FOOBAR")}),
			value.Object([]string{"qux"}, []value.Value{value.String("BAZQUX")}),
		},
	)}
	assert.Equal(t, "prefix FOOBAR middle BAZQUX suffix", tpl.Render(ctx))
}

func TestRender_MissingPathYieldsEmptyString(t *testing.T) {
	tpl := Parse("prefix {{foo.bar}} suffix")
	ctx := pathctx.Map{Root: value.Object(nil, nil)}
	assert.Equal(t, "prefix  suffix", tpl.Render(ctx))
}

func TestRender_PreservesSurroundingSpaces(t *testing.T) {
	tpl := Parse("    {{foo}}    ")
	ctx := pathctx.Map{Root: value.Object([]string{"foo"}, []value.Value{value.String("bar")})}
	assert.Equal(t, "    bar    ", tpl.Render(ctx))
}

func TestRender_NonStringScalarsStringifyAsJSONScalars(t *testing.T) {
	tpl := Parse("{{value.n}}-{{value.b}}")
	ctx := pathctx.Map{Root: value.Object(
		[]string{"value"},
		[]value.Value{value.Object(
			[]string{"n", "b"},
			[]value.Value{value.Number(42), value.Bool(true)},
		)},
	)}
	assert.Equal(t, "42-true", tpl.Render(ctx))
}

func TestRenderGraphQL_QuotesStrings(t *testing.T) {
	tpl := Parse(`{"name": {{args.name}}}`)
	ctx := pathctx.Stacked{Args: value.Object([]string{"name"}, []value.Value{value.String(`a"b`)})}
	assert.Equal(t, `{"name": "a\"b"}`, tpl.RenderGraphQL(ctx))
}

func TestRenderGraphQL_MissingPathYieldsNull(t *testing.T) {
	tpl := Parse("{{args.missing}}")
	ctx := pathctx.Stacked{}
	assert.Equal(t, "null", tpl.RenderGraphQL(ctx))
}

func TestIsConst(t *testing.T) {
	assert.True(t, Parse("literal/only").IsConst())
	assert.False(t, Parse("has {{an.expr}}").IsConst())
}
