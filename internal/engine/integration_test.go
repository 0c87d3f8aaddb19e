package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/latticegql/lattice/internal/blueprint"
	"github.com/latticegql/lattice/internal/executor"
	"github.com/latticegql/lattice/internal/language"
	"github.com/latticegql/lattice/internal/reqcontext"
	"github.com/latticegql/lattice/internal/value"
	"github.com/latticegql/lattice/pkg/logger"
)

// executeQuery compiles sdl, wires a Runtime against the given upstream
// client, and runs one GraphQL query through the real Executor.
func executeQuery(t *testing.T, sdl string, client *http.Client, query string) *executor.ExecutionResult {
	t.Helper()

	bp, err := blueprint.Compile(map[string]string{"schema.graphql": sdl})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	rt := New(bp)
	app := BuildAppContext(bp, Deps{HTTPClient: client, Env: testEnv{}})
	log, _ := logger.NewForTest()
	rc := reqcontext.New(app, "req-1", log, map[string][]string{}, value.Null)
	ctx := WithRequestContext(context.Background(), rc)

	doc, err := language.ParseQuery(query)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	exec := executor.NewExecutor(rt, bp.Schema)
	return exec.ExecuteRequest(ctx, doc, "", nil, nil)
}

// TestSingleResolverSingleUpstream drives one @http field end to end: one
// GET against the upstream, response projected into the selection.
func TestSingleResolverSingleUpstream(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if r.URL.Path != "/posts/1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"title":"hello"}`))
	}))
	defer srv.Close()

	sdl := fmt.Sprintf(`
	extend schema @upstream(name: "posts", baseURL: %q)

	type Query {
		post(id: Int!): Post @http(upstream: "posts", path: "/posts/{{args.id}}")
	}

	type Post {
		id: Int
		title: String
	}
	`, srv.URL)

	res := executeQuery(t, sdl, srv.Client(), `{ post(id: 1) { id title } }`)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	b, _ := json.Marshal(res.Data)
	if string(b) != `{"post":{"id":1,"title":"hello"}}` {
		t.Fatalf("unexpected data: %s", b)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", got)
	}
}

// TestNPlusOneBatchedThroughGroupBy resolves three posts' users through one
// merged upstream call: duplicate userIds deduplicate into a single query
// parameter and every post gets its matching user back.
func TestNPlusOneBatchedThroughGroupBy(t *testing.T) {
	var userCalls int64
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/posts":
			_, _ = w.Write([]byte(`[
				{"id":1,"userId":1},
				{"id":2,"userId":2},
				{"id":3,"userId":1}
			]`))
		case "/users":
			atomic.AddInt64(&userCalls, 1)
			gotQuery = r.URL.RawQuery
			var users []map[string]any
			for _, id := range r.URL.Query()["id"] {
				users = append(users, map[string]any{"id": json.Number(id), "name": "user-" + id})
			}
			_ = json.NewEncoder(w).Encode(users)
		}
	}))
	defer srv.Close()

	sdl := fmt.Sprintf(`
	extend schema @upstream(name: "api", baseURL: %q)

	type Query {
		posts: [Post!]! @http(upstream: "api", path: "/posts")
	}

	type Post {
		id: Int
		userId: Int
		user: User @http(upstream: "api", path: "/users", query: [{key: "id", value: "{{value.userId}}"}]) @groupBy(path: ["id"])
	}

	type User {
		id: Int
		name: String
	}
	`, srv.URL)

	res := executeQuery(t, sdl, srv.Client(), `{ posts { id user { name } } }`)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	if got := atomic.LoadInt64(&userCalls); got != 1 {
		t.Fatalf("expected exactly one merged /users call, got %d", got)
	}
	if gotQuery != "id=1&id=2" {
		t.Fatalf("expected deduplicated query id=1&id=2, got %q", gotQuery)
	}

	data := res.Data.(map[string]any)
	posts := data["posts"].([]any)
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
	wantNames := []string{"user-1", "user-2", "user-1"}
	for i, p := range posts {
		user := p.(map[string]any)["user"].(map[string]any)
		if user["name"] != wantNames[i] {
			t.Fatalf("post %d: expected %s, got %v", i, wantNames[i], user["name"])
		}
	}
}
