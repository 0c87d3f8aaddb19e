package engine

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/jsonschema"
	"github.com/latticegql/lattice/internal/reqcontext"
	"github.com/latticegql/lattice/internal/value"
	"github.com/latticegql/lattice/pkg/errors"
)

func newDispatchFixture(t *testing.T, handler http.HandlerFunc, node *expr.IO) (*dispatcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rc := newTestRequestContext(t)
	rc.App.Loaders[node.LoaderID] = newLoader(node, Deps{HTTPClient: srv.Client()})
	return &dispatcher{rc: rc}, srv
}

// TestDispatchAppliesUpstreamCachePolicy covers the aggregate policy across
// two upstream responses: the lower max-age wins, and one private response
// makes the whole operation private.
func TestDispatchAppliesUpstreamCachePolicy(t *testing.T) {
	node := &expr.IO{Protocol: expr.IOProtocolHTTP, LoaderID: "Query.post"}
	d, srv := newDispatchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			w.Header().Set("Cache-Control", "max-age=120, public")
		case "/b":
			w.Header().Set("Cache-Control", "max-age=30, private")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, node)

	for _, path := range []string{"/a", "/b"} {
		if _, err := d.load(node, reqcontext.DataLoaderRequest{Method: http.MethodGet, URL: srv.URL + path}); err != nil {
			t.Fatalf("unexpected error for %s: %v", path, err)
		}
	}

	maxAge, public := d.rc.CacheControl.Snapshot()
	if maxAge == nil || *maxAge != 30 {
		t.Fatalf("expected aggregate max-age 30, got %v", maxAge)
	}
	if public {
		t.Fatalf("expected private after a private upstream response")
	}
}

func TestDispatchNon2xxSurfacesRemoteFailure(t *testing.T) {
	node := &expr.IO{Protocol: expr.IOProtocolHTTP, LoaderID: "Query.broken"}
	d, srv := newDispatchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`upstream down`))
	}, node)

	_, err := d.load(node, reqcontext.DataLoaderRequest{Method: http.MethodGet, URL: srv.URL + "/x"})
	if err == nil {
		t.Fatalf("expected error for a 503 response")
	}
	if errors.ErrorCode(err) != errors.ERemote {
		t.Fatalf("expected a remote failure, got %q: %v", errors.ErrorCode(err), err)
	}
}

// TestDispatchGroupByUnwrapsSingleObject checks that a grouped flush hands a
// field declared as a single object the first matching item rather than the
// whole per-key slice.
func TestDispatchGroupByUnwrapsSingleObject(t *testing.T) {
	sch := jsonschema.Opt(jsonschema.Obj(map[string]jsonschema.Schema{
		"id":   jsonschema.Opt(jsonschema.Str()),
		"name": jsonschema.Opt(jsonschema.Str()),
	}))
	node := &expr.IO{
		Protocol: expr.IOProtocolHTTP,
		LoaderID: "Post.user",
		GroupBy:  []string{"id"},
		Schema:   &sch,
	}
	d, srv := newDispatchFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","name":"ada"},{"id":"2","name":"grace"}]`))
	}, node)

	v, err := d.load(node, reqcontext.DataLoaderRequest{Method: http.MethodGet, URL: srv.URL + "/users?id=1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind() != value.KindObject {
		t.Fatalf("expected a single object, got %s", v.Kind())
	}
	name, _ := v.Field("name")
	if name.AsString() != "ada" {
		t.Fatalf("expected the matching item, got %v", name)
	}
}
