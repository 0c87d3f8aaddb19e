// Package blueprint compiles directive-annotated GraphQL SDL into an
// immutable Blueprint: a resolved type system plus one compiled Expression
// per field, ready for the executor to walk. It is the single compiler
// entry point — there is no separate discovery/IR pass to keep in sync.
package blueprint

import (
	"time"

	"github.com/latticegql/lattice/internal/expr"
	"github.com/latticegql/lattice/internal/schema"
)

// Blueprint is the compiled, validated result of Compile: an immutable type
// system plus one resolver Expression per field, and the server/upstream
// settings declared via top-level directives.
type Blueprint struct {
	Schema    *schema.Schema
	Fields    map[string]map[string]*CompiledField
	Server    *ServerConfig
	Upstreams map[string]*UpstreamConfig
}

// Field looks up the compiled resolver for a type's field, or nil if the
// field has no declared resolution (a plain schema-only field resolves by
// reading the parent value's same-named property, the Executor's default).
func (bp *Blueprint) Field(typeName, fieldName string) *CompiledField {
	return bp.Fields[typeName][fieldName]
}

// CompiledField is one field's resolver: an Expression tree plus whether
// evaluating it performs upstream IO (and so must run through the
// Executor's async batching path rather than ResolveSync).
type CompiledField struct {
	Expression expr.Expression
	Async      bool

	// CacheMaxAge is set by a trailing @cache(maxAge: ...) and applied by
	// the executor via RequestContext.CacheControl.SetCacheControl once
	// this field resolves. Nil means the field does not constrain the
	// response's cache-control.
	CacheMaxAge *int
}

// ServerConfig holds the settings declared by a top-level @server directive.
type ServerConfig struct {
	Addr                 string
	EnableBatchRequests  bool
	ExposeInternalErrors bool

	// JWKSURL, if set, turns on bearer-token verification for every
	// incoming request: requests without a valid token are rejected before
	// any resolver runs. Issuer/Audiences are optional extra constraints on
	// the verified token's claims.
	JWKSURL   string
	Issuer    string
	Audiences []string
}

// UpstreamConfig holds one named upstream's settings, declared by a
// top-level @upstream directive.
type UpstreamConfig struct {
	Name           string
	BaseURL        string
	Timeout        time.Duration
	AllowedHeaders map[string]struct{}
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{Addr: ":8080", EnableBatchRequests: false, ExposeInternalErrors: false}
}
