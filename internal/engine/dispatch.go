package engine

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/reqcontext"
	"github.com/latticegql/lattice/internal/reqtemplate"
	"github.com/latticegql/lattice/internal/value"
)

// dispatcher implements expr.IODispatcher against one request's
// RequestContext: it renders an IO's RequestTemplate, turns the rendered
// request into a DataLoaderRequest fingerprint, and delegates the actual
// round trip to the shared DataLoader the AppContext registered for that
// field's LoaderID at startup.
type dispatcher struct {
	rc *reqcontext.RequestContext
}

func (d *dispatcher) Dispatch(ec *expr.EvalContext, node *expr.IO) (value.Value, error) {
	switch node.Protocol {
	case expr.IOProtocolHTTP:
		return d.dispatchHTTP(ec, node)
	case expr.IOProtocolGraphQL:
		return d.dispatchGraphQL(ec, node)
	case expr.IOProtocolGRPC:
		return d.dispatchGRPC(ec, node)
	default:
		return value.Null, fmt.Errorf("engine: unknown IO protocol %v", node.Protocol)
	}
}

func (d *dispatcher) load(node *expr.IO, key reqcontext.DataLoaderRequest) (value.Value, error) {
	loader := d.rc.Loader(node.LoaderID)
	if loader == nil {
		return value.Null, fmt.Errorf("engine: no loader registered for loader id %q", node.LoaderID)
	}
	loaded, ok, err := loader.LoadOne(key)
	if err != nil {
		return value.Null, err
	}
	if !ok {
		return value.Null, nil
	}
	d.rc.CacheControl.SetCacheControl(loaded.Cache)

	v := loaded.Value
	// A grouped flush hands every key its slice of the merged response; a
	// field declared as a single object gets the first (only) match.
	if len(node.GroupBy) > 0 && v.Kind() == value.KindList && node.Schema != nil && !node.Schema.ExpectsArray() {
		if items := v.AsList(); len(items) > 0 {
			v = items[0]
		} else {
			v = value.Null
		}
	}

	if node.Schema != nil {
		if violations := node.Schema.Validate(v); len(violations) > 0 {
			return value.Null, &expr.ValidationError{Violations: violations}
		}
	}
	return v, nil
}

func (d *dispatcher) dispatchHTTP(ec *expr.EvalContext, node *expr.IO) (value.Value, error) {
	plan := node.Plan.(reqtemplate.HTTP)
	forwarded := filterHeaders(d.rc.Headers, node.AllowedHeaders)
	req, err := plan.ToRequest(ec.Path, forwarded)
	if err != nil {
		return value.Null, err
	}
	key, err := requestKey(req)
	if err != nil {
		return value.Null, err
	}
	return d.load(node, key)
}

func (d *dispatcher) dispatchGraphQL(ec *expr.EvalContext, node *expr.IO) (value.Value, error) {
	plan := node.Plan.(reqtemplate.GraphQL)
	forwarded := filterHeaders(d.rc.Headers, node.AllowedHeaders)
	rootURL := plan.RootURL.Render(ec.Path)
	body := plan.Body(ec.Path)

	req, err := http.NewRequest(http.MethodPost, rootURL, strings.NewReader(body))
	if err != nil {
		return value.Null, err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, values := range forwarded {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	key := reqcontext.DataLoaderRequest{
		Method:  http.MethodPost,
		URL:     rootURL,
		Headers: canonicalHeaders(req.Header),
		Body:    body,
	}
	return d.load(node, key)
}

func (d *dispatcher) dispatchGRPC(ec *expr.EvalContext, node *expr.IO) (value.Value, error) {
	plan := node.Plan.(reqtemplate.GRPC)
	key := reqcontext.DataLoaderRequest{
		Method:  "GRPC",
		URL:     plan.Target + plan.Path(),
		Headers: "",
		Body:    plan.RenderBody(ec.Path),
	}
	return d.load(node, key)
}

// requestKey reads and restores req's body (if any) and encodes req into a
// DataLoaderRequest fingerprint.
func requestKey(req *http.Request) (reqcontext.DataLoaderRequest, error) {
	var body string
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return reqcontext.DataLoaderRequest{}, fmt.Errorf("engine: reading rendered request body: %w", err)
		}
		body = string(b)
	}
	return reqcontext.DataLoaderRequest{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: canonicalHeaders(req.Header),
		Body:    body,
	}, nil
}
