package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/latticegql/lattice/internal/engine"
	executor "github.com/latticegql/lattice/internal/executor"
	"github.com/latticegql/lattice/internal/reqcontext"
	"github.com/latticegql/lattice/pkg/logger"
	reqid "github.com/latticegql/lattice/internal/reqid"
	schema "github.com/latticegql/lattice/internal/schema"
)

func newTestHandler(t *testing.T, rt executor.Runtime, opts ...Option) *Handler {
	t.Helper()
	sdl := `type Query { hello: String }`
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	app := &reqcontext.AppContext{Loaders: map[string]*reqcontext.Loader{}, Entities: reqcontext.NewEntityCache()}
	log, _ := logger.NewForTest()
	h, err := New(rt, sch, app, log, opts...)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return h
}

func TestForwardedHeaders(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var captured map[string][]string
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		captured = engine.RequestContextFrom(ctx).Headers
		return "world", nil
	})
	h := newTestHandler(t, rt)

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test", "abc")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if len(captured["X-Test"]) == 0 || captured["X-Test"][0] != "abc" {
		t.Fatalf("request header not attached to RequestContext: %v", captured)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt, WithCORS("*"))

	// simple request
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestMaxBodyBytes(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})
	h := newTestHandler(t, rt, WithMaxBodyBytes(10))

	body := bytes.NewBufferString(`{"query":"1234567890"}`)
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestBatchRequestsGatedByOption(t *testing.T) {
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.hello": executor.NewMockValueResolver("world"),
	})

	body := `[{"query":"{ hello }"},{"query":"{ hello }"}]`

	// Off by default: a JSON array body is rejected before execution.
	h := newTestHandler(t, rt)
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with batching disabled, got %d", w.Code)
	}

	// Enabled: every operation in the array executes and the response is an
	// array of the same length.
	h = newTestHandler(t, rt, WithBatchRequests(true))
	req = httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with batching enabled, got %d", w.Code)
	}
	var results []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("response is not a JSON array: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 batch results, got %d", len(results))
	}
}

func TestCacheControlHeaderFromAggregator(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	maxAge := 30
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		rc := engine.RequestContextFrom(ctx)
		age := 120
		rc.CacheControl.SetCacheControl(reqcontext.CachePolicy{MaxAge: &age})
		rc.CacheControl.SetCacheControl(reqcontext.CachePolicy{MaxAge: &maxAge})
		return "world", nil
	})
	h := newTestHandler(t, rt)

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Cache-Control"); got != "public, max-age=30" {
		t.Fatalf("unexpected Cache-Control header: %q", got)
	}

	// A private response latches the aggregate to private.
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		rc := engine.RequestContextFrom(ctx)
		rc.CacheControl.SetCacheControl(reqcontext.CachePolicy{MaxAge: &maxAge, Visibility: reqcontext.VisibilityPrivate})
		return "world", nil
	})
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Cache-Control"); got != "private, max-age=30" {
		t.Fatalf("unexpected Cache-Control header: %q", got)
	}
}

func TestRequestID(t *testing.T) {
	rt := executor.NewMockRuntime(nil)
	var capturedID string
	var capturedRequestID string
	rt.SetResolver("Query", "hello", func(ctx context.Context, src any, args map[string]any) (any, error) {
		capturedID, _ = reqid.FromContext(ctx)
		capturedRequestID = engine.RequestContextFrom(ctx).RequestID
		return "world", nil
	})
	h := newTestHandler(t, rt)

	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"query":"{ hello }"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if capturedID == "" {
		t.Fatalf("missing request id in context")
	}
	if capturedRequestID == "" {
		t.Fatalf("RequestContext.RequestID not set")
	}
}
