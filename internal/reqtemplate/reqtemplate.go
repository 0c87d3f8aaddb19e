// Package reqtemplate compiles Template-backed descriptions of an upstream
// HTTP, GraphQL, or gRPC call into a concrete request against a PathContext,
// producing bit-exact wire output (URL, headers, method, body) from the
// same rendering rules regardless of protocol.
package reqtemplate

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/latticegql/lattice/internal/grpcwire"
	"github.com/latticegql/lattice/internal/pathctx"
	"github.com/latticegql/lattice/internal/template"
)

// Method is an upstream HTTP method, taken verbatim from configuration.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// KV is one templated key/value pair; used for both query parameters and
// headers to preserve declaration order (and allow duplicate keys).
type KV struct {
	Key   string
	Value template.Template
}

// HTTP is a compiled upstream HTTP request template.
type HTTP struct {
	RootURL template.Template
	Query   []KV
	Method  Method
	Headers []KV
	Body    *template.Template
}

// IsConst reports whether every templated piece of this request is a
// constant (no parent-value/args/vars/env dependence) — such a request can
// be rendered and cached once rather than per-evaluation.
func (t HTTP) IsConst() bool {
	if !t.RootURL.IsConst() {
		return false
	}
	for _, kv := range t.Query {
		if !kv.Value.IsConst() {
			return false
		}
	}
	for _, kv := range t.Headers {
		if !kv.Value.IsConst() {
			return false
		}
	}
	if t.Body != nil && !t.Body.IsConst() {
		return false
	}
	return true
}

// ToRequest renders this template against ctx, producing a ready-to-send
// *http.Request. forwarded carries request-scoped headers allowed through
// by @upstream.allowedHeaders, merged in after the template's own headers.
func (t HTTP) ToRequest(ctx pathctx.PathContext, forwarded http.Header) (*http.Request, error) {
	raw := t.RootURL.Render(ctx)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("reqtemplate: invalid root_url %q: %w", raw, err)
	}

	query := u.Query()
	for _, kv := range t.Query {
		rendered := kv.Value.Render(ctx)
		if rendered == "" {
			continue
		}
		query.Add(kv.Key, rendered)
	}
	if len(query) == 0 {
		u.RawQuery = ""
	} else {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequest(string(t.Method), u.String(), nil)
	if err != nil {
		return nil, err
	}

	sawContentType := false
	for _, kv := range t.Headers {
		rendered := kv.Value.Render(ctx)
		if !validHeaderValue(rendered) {
			continue
		}
		req.Header.Add(kv.Key, rendered)
		if strings.EqualFold(kv.Key, "Content-Type") {
			sawContentType = true
		}
	}
	if !sawContentType {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, values := range forwarded {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	if t.Body != nil {
		rendered := t.Body.Render(ctx)
		if req.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
			rendered = url.QueryEscape(rendered)
		}
		req.Body = io.NopCloser(strings.NewReader(rendered))
		req.ContentLength = int64(len(rendered))
	}

	return req, nil
}

func validHeaderValue(s string) bool {
	return textproto.TrimString(s) == s && !strings.ContainsAny(s, "\r\n")
}

// GraphQL is a compiled upstream GraphQL request template: an operation
// name, field, templated argument list, and a fixed selection set string
// taken verbatim from the @graphQL directive's selectionSet argument.
type GraphQL struct {
	RootURL      template.Template
	OperationType string // "query" or "mutation"
	FieldName    string
	Args         []KV
	SelectionSet string

	// Federate, when set, wraps the request in an `_entities` envelope
	// instead of calling FieldName directly.
	Federate bool
	TypeName string
	// RepresentationIDField is the field name in the parent value used as
	// the keyed id for the `_entities` representation.
	RepresentationIDField string
}

// Body renders the GraphQL request body as a JSON-encodable string,
// `{"query": "..."}`.
func (t GraphQL) Body(ctx pathctx.PathContext) string {
	var query string
	if t.Federate {
		idPath := []string{pathctx.RootValue, t.RepresentationIDField}
		id := ""
		if v, ok := ctx.Lookup(idPath); ok {
			id = v.AsString()
		}
		query = fmt.Sprintf(
			`query { _entities(representations: [{__typename: %q, %s: %q}]) { ... on %s { %s } } }`,
			t.TypeName, t.RepresentationIDField, id, t.TypeName, t.SelectionSet,
		)
	} else {
		args := t.renderArgs(ctx)
		if args != "" {
			args = "(" + args + ")"
		}
		query = fmt.Sprintf("%s { %s%s %s }", t.OperationType, t.FieldName, args, t.SelectionSet)
	}

	payload := struct {
		Query string `json:"query"`
	}{Query: query}
	b, _ := json.Marshal(payload)
	return string(b)
}

func (t GraphQL) renderArgs(ctx pathctx.PathContext) string {
	parts := make([]string, 0, len(t.Args))
	for _, kv := range t.Args {
		parts = append(parts, fmt.Sprintf("%s: %s", kv.Key, kv.Value.RenderGraphQL(ctx)))
	}
	return strings.Join(parts, ", ")
}

// GRPC is a compiled upstream gRPC request template: the fully-qualified
// method path and a body template whose rendered JSON is marshaled into the
// request protobuf message by the caller (the wire framing itself is
// always produced via grpcwire.Frame, bit-exact regardless of message
// shape).
type GRPC struct {
	// Target is the dial address of the upstream named by @grpc's upstream
	// argument (its @upstream baseURL, e.g. "dns:///users.internal:9090").
	Target  string
	Package string
	Service string
	Method  string
	Body    template.Template
}

// Path is the gRPC method path: /<package>.<service>/<method>.
func (t GRPC) Path() string {
	return fmt.Sprintf("/%s.%s/%s", t.Package, t.Service, t.Method)
}

// RenderBody renders the request body template to its JSON text form,
// ready for conversion into the method's input protobuf message.
func (t GRPC) RenderBody(ctx pathctx.PathContext) string {
	return t.Body.Render(ctx)
}

// FrameMessage wraps an already-encoded protobuf message in gRPC's
// length-prefixed message framing.
func FrameMessage(encoded []byte) []byte {
	return grpcwire.Frame(encoded)
}
