// Package reqcontext implements RequestContext and its long-lived sibling,
// AppContext: AppContext holds the HTTP client, the single DataLoader
// registry (one loader per IO-backed field, whatever its protocol) and the
// entity cache;
// RequestContext is created fresh per incoming GraphQL request and holds
// shared references into AppContext plus request-scoped state (headers,
// variables, the cache-control aggregator, and the single-flight AsyncCache
// backing @cache fields for the lifetime of the operation).
package reqcontext

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/latticegql/lattice/internal/asynccache"
	"github.com/latticegql/lattice/internal/dataloader"
	"github.com/latticegql/lattice/internal/value"
	"github.com/latticegql/lattice/pkg/logger"
)

// DataLoaderRequest is a normalized request fingerprint used as a loader
// key: method, URL, the ordered set of forwarded request headers, and a
// canonicalized body. Two logically identical upstream calls must hash and
// compare equal under this type regardless of incidental differences
// (header ordering from the caller, for instance) so that batching and
// AsyncCache coalescing actually coalesce.
type DataLoaderRequest struct {
	Method  string
	URL     string
	Headers string
	Body    string
}

// Loaded is one resolved upstream response: the decoded body plus the
// cache-control policy the response declared. The policy rides alongside the
// value because loaders are shared process-wide while the cache-control
// aggregator is per-request — every request whose dispatcher awaited this
// load applies the policy to its own aggregator.
type Loaded struct {
	Value value.Value
	Cache CachePolicy
}

// Loader is the concrete DataLoader instantiation every upstream kind
// shares: keys are normalized request fingerprints, values are the
// canonical decoded response plus its cache policy.
type Loader = dataloader.DataLoader[DataLoaderRequest, Loaded]

// EntityEntry is one cached response, expiring at ExpiresAt (zero meaning
// "no expiry").
type EntityEntry struct {
	Value     value.Value
	ExpiresAt time.Time
}

// EntityCache is the shared, internally-locked response cache referenced
// by every RequestContext.
type EntityCache struct {
	mu      sync.Mutex
	entries map[string]EntityEntry
}

func NewEntityCache() *EntityCache {
	return &EntityCache{entries: make(map[string]EntityEntry)}
}

func (c *EntityCache) Get(key string) (value.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return value.Null, false
	}
	if !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt) {
		delete(c.entries, key)
		return value.Null, false
	}
	return e.Value, true
}

func (c *EntityCache) Insert(key string, v value.Value, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.entries[key] = EntityEntry{Value: v, ExpiresAt: expires}
}

// EnvIO abstracts environment variable access so {{env.*}} templates can be
// evaluated against a fake in tests.
type EnvIO interface {
	Lookup(key string) (string, bool)
}

// AppContext is the long-lived, process-wide set of capabilities shared by
// every request: HTTP client, the loader registry (keyed by each IO's
// LoaderID, the "Type.field" the blueprint compiler assigns), the entity
// cache, and environment access.
type AppContext struct {
	HTTPClient *http.Client
	Loaders    map[string]*Loader
	Entities   *EntityCache
	Env        EnvIO
}

// Visibility is the cache-control visibility a response declares.
type Visibility int

const (
	VisibilityUnset Visibility = iota
	VisibilityPublic
	VisibilityPrivate
)

// CachePolicy is the subset of an upstream response's Cache-Control header
// Lattice understands.
type CachePolicy struct {
	MaxAge     *int
	NoCache    bool
	Visibility Visibility
}

// ParseCacheControl extracts the policy from a Cache-Control header value.
// Unrecognized directives are ignored; an empty header yields the zero
// policy, which SetCacheControl treats as a no-op.
func ParseCacheControl(header string) CachePolicy {
	var p CachePolicy
	for _, part := range strings.Split(header, ",") {
		directive := strings.ToLower(strings.TrimSpace(part))
		switch {
		case directive == "no-cache" || directive == "no-store":
			p.NoCache = true
		case directive == "private":
			p.Visibility = VisibilityPrivate
		case directive == "public":
			if p.Visibility == VisibilityUnset {
				p.Visibility = VisibilityPublic
			}
		case strings.HasPrefix(directive, "max-age="):
			if n, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil {
				p.MaxAge = &n
			}
		}
	}
	return p
}

// CacheControlAggregator accumulates the most restrictive cache-control
// policy observed across every upstream response in a single GraphQL
// operation, so the top-level response can carry a single aggregate
// Cache-Control header.
type CacheControlAggregator struct {
	mu        sync.Mutex
	minMaxAge *int
	public    *bool
}

// SetMinMaxAge takes the minimum of s and any prior value; the first write
// establishes the value unconditionally.
func (c *CacheControlAggregator) SetMinMaxAge(s int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.minMaxAge == nil || s < *c.minMaxAge {
		v := s
		c.minMaxAge = &v
	}
}

// SetCacheVisibility latches cache_public to false on Private; Public is a
// no-op (absence of any visibility write means public).
func (c *CacheControlAggregator) SetCacheVisibility(v Visibility) {
	if v != VisibilityPrivate {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f := false
	c.public = &f
}

// SetCacheControl applies a parsed upstream Cache-Control policy: max_age
// via SetMinMaxAge, no-cache as SetMinMaxAge(-1), and the declared
// visibility.
func (c *CacheControlAggregator) SetCacheControl(p CachePolicy) {
	if p.MaxAge != nil {
		c.SetMinMaxAge(*p.MaxAge)
	}
	if p.NoCache {
		c.SetMinMaxAge(-1)
	}
	c.SetCacheVisibility(p.Visibility)
}

// Snapshot returns a consistent read of the current aggregate state.
func (c *CacheControlAggregator) Snapshot() (minMaxAge *int, public bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	public = c.public == nil || *c.public
	return c.minMaxAge, public
}

// RequestContext is created fresh for each incoming GraphQL request from a
// shared AppContext, mutated only through the cache-control aggregator
// methods, and discarded once the response is emitted.
type RequestContext struct {
	App *AppContext

	RequestID string
	Log       logger.Logger

	Headers map[string][]string
	Vars    value.Value

	CacheControl CacheControlAggregator

	// inflight coalesces concurrent evaluations of the same @cache field
	// fingerprint within this one operation (e.g. the same field reached
	// through two different selection paths in the same query), so that a
	// slow upstream call backing it only ever runs once per request rather
	// than once per occurrence.
	inflight *asynccache.AsyncCache[string, value.Value]
}

// New builds a RequestContext for one incoming operation.
func New(app *AppContext, requestID string, log logger.Logger, headers map[string][]string, vars value.Value) *RequestContext {
	return &RequestContext{
		App:       app,
		RequestID: requestID,
		Log:       log,
		Headers:   headers,
		Vars:      vars,
		inflight:  asynccache.New[string, value.Value](),
	}
}

// Inflight returns the request-scoped single-flight cache backing @cache
// fields: it never outlives this RequestContext.
func (rc *RequestContext) Inflight() *asynccache.AsyncCache[string, value.Value] {
	return rc.inflight
}

// Loader looks up a shared DataLoader by id (an IO's "Type.field"
// LoaderID). Returns nil if engine.BuildAppContext registered no loader
// under that id.
func (rc *RequestContext) Loader(id string) *Loader {
	return rc.App.Loaders[id]
}

func (rc *RequestContext) CacheGet(key string) (value.Value, bool) {
	return rc.App.Entities.Get(key)
}

func (rc *RequestContext) CacheInsert(key string, v value.Value, ttl time.Duration) {
	rc.App.Entities.Insert(key, v, ttl)
}
