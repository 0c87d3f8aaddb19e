// Package pathctx implements PathContext: uniform, path-addressable read
// access over the heterogeneous state a Template or Expression can reference
// (parent value, arguments, headers, vars, environment).
package pathctx

import (
	"strings"

	"github.com/latticegql/lattice/internal/value"
)

// PathContext is a capability, not a concrete type: anything that can answer
// a lookup by ordered path keys can be used to render a Template or evaluate
// a Context expression.
type PathContext interface {
	// Lookup resolves an ordered path (e.g. ["args", "id"]) to a value. The
	// second return is false when nothing at that path exists.
	Lookup(path []string) (value.Value, bool)
}

// Root names recognized by the Stacked implementation. Any path whose first
// element is not one of these resolves to (Null, false).
const (
	RootValue   = "value"
	RootArgs    = "args"
	RootHeaders = "headers"
	RootVars    = "vars"
	RootEnv     = "env"
)

// Map is the simplest PathContext: a JSON-like value.Value navigated by
// walking successive object fields. Used for `value` (parent) and `args`.
type Map struct {
	Root value.Value
}

// Lookup implements PathContext by descending through Root one object field
// at a time.
func (m Map) Lookup(path []string) (value.Value, bool) {
	cur := m.Root
	for _, key := range path {
		field, ok := cur.Field(key)
		if !ok {
			return value.Null, false
		}
		cur = field
	}
	return cur, true
}

// Headers is a PathContext over an HTTP-header-like map. Lookup requires
// exactly one remaining path element (the header name); comparison is
// case-insensitive, and multi-valued headers are concatenated with ", ".
type Headers struct {
	Values map[string][]string
}

// Lookup implements PathContext. Only a single-element path is meaningful;
// anything else misses.
func (h Headers) Lookup(path []string) (value.Value, bool) {
	if len(path) != 1 {
		return value.Null, false
	}
	name := strings.ToLower(path[0])
	for k, vs := range h.Values {
		if strings.ToLower(k) == name {
			if len(vs) == 0 {
				return value.Null, false
			}
			return value.String(strings.Join(vs, ", ")), true
		}
	}
	return value.Null, false
}

// Env is a PathContext over environment variables, delegating to a Lookup
// capability so tests can inject a fake without touching the real process
// environment.
type Env struct {
	Lookup_ func(key string) (string, bool)
}

// Lookup implements PathContext; only a single-element path resolves.
func (e Env) Lookup(path []string) (value.Value, bool) {
	if len(path) != 1 || e.Lookup_ == nil {
		return value.Null, false
	}
	v, ok := e.Lookup_(path[0])
	if !ok {
		return value.Null, false
	}
	return value.String(v), true
}

// Stacked probes a fixed, ordered list of named roots, dispatching on the
// first element of the path. This is the PathContext implementation the
// engine builds per field evaluation, wrapping `value`, `args`, `headers`,
// `vars`, and `env`.
type Stacked struct {
	Value   value.Value
	Args    value.Value
	Headers Headers
	Vars    value.Value
	Env     Env
}

// Lookup dispatches on path[0] to the matching root, then delegates the
// remaining path elements. An empty path or an unrecognized root returns
// (Null, false).
func (s Stacked) Lookup(path []string) (value.Value, bool) {
	if len(path) == 0 {
		return value.Null, false
	}
	root, rest := path[0], path[1:]
	switch root {
	case RootValue:
		return Map{Root: s.Value}.Lookup(rest)
	case RootArgs:
		return Map{Root: s.Args}.Lookup(rest)
	case RootHeaders:
		return s.Headers.Lookup(rest)
	case RootVars:
		return Map{Root: s.Vars}.Lookup(rest)
	case RootEnv:
		return s.Env.Lookup(rest)
	default:
		return value.Null, false
	}
}
