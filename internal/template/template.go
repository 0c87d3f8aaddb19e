// Package template implements Mustache-style templates over a PathContext:
// an ordered sequence of literal and expression segments, parsed
// permissively (any parse failure collapses to a single literal segment so
// rendering never needs to report an error) and rendered by substituting
// each expression segment with the stringified lookup result.
package template

import (
	"encoding/json"
	"strings"

	"github.com/latticegql/lattice/internal/pathctx"
	"github.com/latticegql/lattice/internal/value"
)

// Segment is one piece of a parsed Template.
type Segment struct {
	// Literal holds the verbatim text when Expr is nil.
	Literal string
	// Expr holds the dot-separated path when this segment is `{{...}}`; nil
	// for literal segments.
	Expr []string
}

// Template is a parsed Mustache-style string: an ordered list of segments.
type Template struct {
	segments []Segment
	raw      string
}

// Parse scans str left to right, splitting it into literal and `{{a.b.c}}`
// expression segments. Malformed input (an unterminated `{{`, or anything
// the scanner cannot make sense of) degrades to a single literal segment
// covering the whole input — Parse never fails.
func Parse(str string) Template {
	segments, ok := tryParse(str)
	if !ok {
		return Template{segments: []Segment{{Literal: str}}, raw: str}
	}
	return Template{segments: segments, raw: str}
}

// tryParse performs the actual two-pass scan: first splitting on `{{`/`}}`
// delimiters, then splitting each expression body on `.` with surrounding
// whitespace trimmed from each name. It reports ok=false on any malformed
// expression (unterminated delimiter, empty name list), letting the caller
// fall back to a single literal segment.
func tryParse(str string) ([]Segment, bool) {
	var segments []Segment
	var literal strings.Builder

	flushLiteral := func() {
		if literal.Len() > 0 {
			segments = append(segments, Segment{Literal: literal.String()})
			literal.Reset()
		}
	}

	i := 0
	for i < len(str) {
		if str[i] == '{' && i+1 < len(str) && str[i+1] == '{' {
			end := strings.Index(str[i+2:], "}}")
			if end < 0 {
				// Unterminated expression: the whole remaining input,
				// including the literal text already scanned, becomes part
				// of a single literal fallback at the top level.
				return nil, false
			}
			body := str[i+2 : i+2+end]
			names, ok := parseNames(body)
			if !ok {
				return nil, false
			}
			flushLiteral()
			segments = append(segments, Segment{Expr: names})
			i = i + 2 + end + 2
			continue
		}
		literal.WriteByte(str[i])
		i++
	}
	flushLiteral()

	if len(segments) == 0 {
		// Empty input parses to a single empty literal segment.
		segments = []Segment{{Literal: ""}}
	}
	return segments, true
}

// parseNames splits an expression body on '.', trimming surrounding
// whitespace from each name, and requires every name be non-empty, start
// with a letter, and contain only letters and digits.
func parseNames(body string) ([]string, bool) {
	parts := strings.Split(body, ".")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if !isValidName(name) {
			return nil, false
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, false
	}
	return names, true
}

func isValidName(s string) bool {
	if s == "" {
		return false
	}
	if !isAlpha(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isAlpha(s[i]) && !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// IsConst reports whether every segment is a literal (no `{{...}}`
// expressions), meaning the template renders the same string regardless of
// PathContext.
func (t Template) IsConst() bool {
	for _, seg := range t.segments {
		if seg.Expr != nil {
			return false
		}
	}
	return true
}

// Segments exposes the parsed segment list (read-only use by callers that
// need to inspect path references, e.g. blueprint argument validation).
func (t Template) Segments() []Segment { return t.segments }

// String returns the original, unparsed template text.
func (t Template) String() string { return t.raw }

// Render concatenates every segment against ctx: literals verbatim,
// expressions resolved via ctx.Lookup and stringified as a plain-text
// scalar. A missing lookup renders as the empty string.
func (t Template) Render(ctx pathctx.PathContext) string {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.Expr == nil {
			b.WriteString(seg.Literal)
			continue
		}
		v, ok := ctx.Lookup(seg.Expr)
		if !ok {
			continue
		}
		b.WriteString(value.Scalar(v))
	}
	return b.String()
}

// RenderGraphQL is like Render, but expression segments are rendered as
// GraphQL inline literals (quoted/escaped strings, bare numbers/booleans,
// `null` for missing lookups) for use inside a @graphQL request body.
func (t Template) RenderGraphQL(ctx pathctx.PathContext) string {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.Expr == nil {
			b.WriteString(seg.Literal)
			continue
		}
		v, ok := ctx.Lookup(seg.Expr)
		if !ok {
			b.WriteString("null")
			continue
		}
		b.WriteString(value.GraphQLLiteral(v))
	}
	return b.String()
}

// MarshalJSON renders the template back to its source text form, useful when
// a compiled Blueprint is serialized for `check --schema` output.
func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.raw)
}
