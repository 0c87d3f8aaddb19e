package blueprint_test

import (
	"strings"
	"testing"

	"github.com/latticegql/lattice/internal/blueprint"
	"github.com/latticegql/lattice/internal/expr"
)

func TestCompileGoodSchema(t *testing.T) {
	src := `
	extend schema @server(addr: ":9090", enableBatchRequests: true)
	extend schema @upstream(name: "users", baseURL: "http://users.internal", timeout: "5s", allowedHeaders: ["authorization"])

	type Query {
		user(id: ID!): User @http(upstream: "users", path: "/users/{{args.id}}", method: "GET")
		version: String @const(value: "1.0.0")
	}

	type User {
		id: ID!
		name: String @http(upstream: "users", path: "/users/{{value.id}}/name", method: "GET") @cache(maxAge: 60)
		nickname: String @const(value: "anon") @modify(op: "defaultTo", arg: "anon")
	}
	`

	bp, err := blueprint.Compile(map[string]string{"schema.graphql": src})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if bp.Server == nil || bp.Server.Addr != ":9090" || !bp.Server.EnableBatchRequests {
		t.Fatalf("unexpected server config: %+v", bp.Server)
	}
	if _, ok := bp.Upstreams["users"]; !ok {
		t.Fatalf("expected upstream %q to be registered", "users")
	}

	userField := bp.Field("Query", "user")
	if userField == nil {
		t.Fatal("expected Query.user to have a compiled resolver")
	}
	if !userField.Async {
		t.Error("expected Query.user to be async (IO-backed)")
	}
	io, ok := userField.Expression.(*expr.IO)
	if !ok {
		t.Fatalf("expected Query.user to compile to *expr.IO, got %T", userField.Expression)
	}
	if io.LoaderID != "Query.user" {
		t.Errorf("expected LoaderID %q, got %q", "Query.user", io.LoaderID)
	}

	versionField := bp.Field("Query", "version")
	if versionField == nil {
		t.Fatal("expected Query.version to have a compiled resolver")
	}
	if versionField.Async {
		t.Error("expected Query.version to not be async (no IO)")
	}

	nameField := bp.Field("User", "name")
	if nameField == nil {
		t.Fatal("expected User.name to have a compiled resolver")
	}
	if nameField.CacheMaxAge == nil || *nameField.CacheMaxAge != 60 {
		t.Fatalf("expected User.name CacheMaxAge 60, got %+v", nameField.CacheMaxAge)
	}
	if _, ok := nameField.Expression.(expr.Cached); !ok {
		t.Fatalf("expected User.name to compile to expr.Cached, got %T", nameField.Expression)
	}

	nicknameField := bp.Field("User", "nickname")
	if nicknameField == nil {
		t.Fatal("expected User.nickname to have a compiled resolver")
	}
	if _, ok := nicknameField.Expression.(expr.DefaultTo); !ok {
		t.Fatalf("expected User.nickname to compile to expr.DefaultTo, got %T", nicknameField.Expression)
	}
}

func TestCompileAddField(t *testing.T) {
	src := `
	type Query {
		user: User
	}

	type User @addField(name: "source", type: "String", const: "gateway") {
		id: ID!
	}
	`
	bp, err := blueprint.Compile(map[string]string{"schema.graphql": src})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	userType := bp.Schema.Types["User"]
	found := false
	for _, f := range userType.Fields {
		if f.Name == "source" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected @addField to append a 'source' field to User's type")
	}
	if bp.Field("User", "source") == nil {
		t.Fatal("expected a compiled resolver for the added field")
	}
}

func TestCompileUnknownUpstream(t *testing.T) {
	src := `
	type Query {
		user: String @http(upstream: "missing", path: "/users")
	}
	`
	_, err := blueprint.Compile(map[string]string{"schema.graphql": src})
	if err == nil {
		t.Fatal("expected error for unknown upstream")
	}
	if !strings.Contains(err.Error(), "unknown upstream") {
		t.Errorf("expected error to mention unknown upstream, got %v", err)
	}
}

func TestCompileUndeclaredArgTemplate(t *testing.T) {
	src := `
	extend schema @upstream(name: "users", baseURL: "http://users.internal")

	type Query {
		user: String @http(upstream: "users", path: "/users/{{args.id}}")
	}
	`
	_, err := blueprint.Compile(map[string]string{"schema.graphql": src})
	if err == nil {
		t.Fatal("expected error for template referencing an undeclared argument")
	}
	if !strings.Contains(err.Error(), "undeclared argument") {
		t.Errorf("expected error to mention undeclared argument, got %v", err)
	}
}

func TestCompileModifyWithoutBase(t *testing.T) {
	src := `
	type Query {
		user: String @modify(op: "isEmpty")
	}
	`
	_, err := blueprint.Compile(map[string]string{"schema.graphql": src})
	if err == nil {
		t.Fatal("expected error for @modify without a preceding resolver directive")
	}
	if !strings.Contains(err.Error(), "@modify must") && !strings.Contains(err.Error(), "requires a preceding") {
		t.Errorf("expected error about missing base directive, got %v", err)
	}
}

func TestCompileDuplicateType(t *testing.T) {
	src := `
	type Query {
		user: String
	}

	type Query {
		name: String
	}
	`
	_, err := blueprint.Compile(map[string]string{"schema.graphql": src})
	if err == nil {
		t.Fatal("expected error for duplicate type definition")
	}
	if !strings.Contains(err.Error(), "already defined") {
		t.Errorf("expected error to mention already-defined type, got %v", err)
	}
}

func TestCompileConstTypeMismatch(t *testing.T) {
	src := `
	type Query {
		count: Int @const(value: "not-a-number")
	}
	`
	_, err := blueprint.Compile(map[string]string{"schema.graphql": src})
	if err == nil {
		t.Fatal("expected error for @const value not matching the field's declared type")
	}
	if !strings.Contains(err.Error(), "does not match field type") {
		t.Errorf("expected error about type mismatch, got %v", err)
	}
}
