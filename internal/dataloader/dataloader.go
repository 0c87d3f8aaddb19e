// Package dataloader batches and coalesces loads: concurrent Load calls
// issued within a short delay window are merged into a single batched
// LoadFunc invocation (or split into multiple once MaxBatchSize is
// reached), with an optional per-instance result cache.
//
// The batching window itself is github.com/graph-gophers/dataloader's
// batcher; this package layers typed keys, duplicate-key coalescing within
// a flush, and a feedable result cache on top of it. The library's own
// cache is not used (it is fixed at construction and cannot express
// Feed/Clear/EnableCache), so the loader is always built with NoCache and
// the result cache lives here.
package dataloader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gopherdl "github.com/graph-gophers/dataloader"
)

// LoadFunc fetches the values for a batch of keys in one round trip. It must
// return a map containing an entry for every key it was able to resolve;
// keys absent from the result are reported as "not found" to callers.
type LoadFunc[K comparable, V any] func(keys []K) (map[K]V, error)

// batchKey adapts a typed key onto the library's Key interface. String is
// only a debugging label; Raw carries the real key through the batcher.
type batchKey[K comparable] struct {
	key K
}

func (b batchKey[K]) String() string   { return fmt.Sprintf("%#v", b.key) }
func (b batchKey[K]) Raw() interface{} { return b.key }

// resolved carries a per-key batch outcome through the library's untyped
// Result.Data, distinguishing "resolved to v" from "absent from the batch
// response".
type resolved[V any] struct {
	value V
	ok    bool
}

// DataLoader batches and caches calls to a LoadFunc.
type DataLoader[K comparable, V any] struct {
	load LoadFunc[K, V]

	delay        time.Duration
	maxBatchSize int

	mu           sync.Mutex
	loader       *gopherdl.Loader
	cache        map[K]V
	cacheEnabled bool
	disableAll   atomic.Bool
}

// New creates a DataLoader with no result cache: every Load call reaches
// the underlying LoadFunc, with only in-flight batching applied.
func New[K comparable, V any](load LoadFunc[K, V]) *DataLoader[K, V] {
	return &DataLoader[K, V]{
		load:         load,
		delay:        time.Millisecond,
		maxBatchSize: 1000,
		cache:        nil,
		cacheEnabled: false,
	}
}

// WithCache creates a DataLoader backed by a result cache: resolved values
// are retained and served without re-invoking LoadFunc until Clear is
// called or the cache is disabled.
func WithCache[K comparable, V any](load LoadFunc[K, V]) *DataLoader[K, V] {
	return &DataLoader[K, V]{
		load:         load,
		delay:        time.Millisecond,
		maxBatchSize: 1000,
		cache:        make(map[K]V),
		cacheEnabled: true,
	}
}

// WithDelay overrides the batching delay window (default 1ms). Must be
// called before the first Load.
func (d *DataLoader[K, V]) WithDelay(delay time.Duration) *DataLoader[K, V] {
	d.delay = delay
	return d
}

// WithMaxBatchSize overrides the max batch size (default 1000): once the
// number of keys awaiting dispatch reaches this threshold, the batch is
// flushed immediately instead of waiting out the delay window. Must be
// called before the first Load.
func (d *DataLoader[K, V]) WithMaxBatchSize(n int) *DataLoader[K, V] {
	d.maxBatchSize = n
	return d
}

// batched lazily builds the underlying batched loader, so the WithDelay/
// WithMaxBatchSize chaining after New has taken effect by the time the
// first Load constructs it.
func (d *DataLoader[K, V]) batched() *gopherdl.Loader {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loader == nil {
		d.loader = gopherdl.NewBatchedLoader(
			d.batchFunc,
			gopherdl.WithCache(&gopherdl.NoCache{}),
			gopherdl.WithWait(d.delay),
			gopherdl.WithBatchCapacity(d.maxBatchSize),
		)
	}
	return d.loader
}

// batchFunc is the library-facing batch callback: it deduplicates the
// flush's keys (two concurrent Load calls for the same key must cost one
// LoadFunc key, not two), invokes LoadFunc once, and fans the outcome back
// out to every position of the batch. A failed flush delivers the same
// error to every awaiter.
func (d *DataLoader[K, V]) batchFunc(_ context.Context, keys gopherdl.Keys) []*gopherdl.Result {
	results := make([]*gopherdl.Result, len(keys))

	unique := make([]K, 0, len(keys))
	seen := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		key := k.Raw().(K)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	values, err := d.load(unique)
	if err != nil {
		for i := range results {
			results[i] = &gopherdl.Result{Error: err}
		}
		return results
	}

	for i, k := range keys {
		key := k.Raw().(K)
		v, ok := values[key]
		results[i] = &gopherdl.Result{Data: resolved[V]{value: v, ok: ok}}
	}
	return results
}

// EnableAllCache enables or disables the cache globally for this loader,
// overriding EnableCache's per-instance flag.
func (d *DataLoader[K, V]) EnableAllCache(enable bool) {
	d.disableAll.Store(!enable)
}

// EnableCache enables or disables this loader's own cache flag.
func (d *DataLoader[K, V]) EnableCache(enable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cacheEnabled = enable
}

func (d *DataLoader[K, V]) cacheDisabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.cacheEnabled || d.disableAll.Load()
}

// LoadOne loads a single key, returning ok=false if the resolved batch
// contains no entry for it.
func (d *DataLoader[K, V]) LoadOne(key K) (V, bool, error) {
	values, err := d.LoadMany([]K{key})
	if err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// LoadMany loads a set of keys, coalescing with any other Load call
// currently within the same delay window, and returns a map containing
// every key that was resolved (from cache or from the batched LoadFunc
// call).
func (d *DataLoader[K, V]) LoadMany(keys []K) (map[K]V, error) {
	if len(keys) == 0 {
		return map[K]V{}, nil
	}

	out := make(map[K]V, len(keys))
	var misses []K

	if d.cacheDisabled() {
		misses = keys
	} else {
		d.mu.Lock()
		for _, k := range keys {
			if v, ok := d.cache[k]; ok {
				out[k] = v
			} else {
				misses = append(misses, k)
			}
		}
		d.mu.Unlock()
	}
	if len(misses) == 0 {
		return out, nil
	}

	// Enqueue every miss before resolving any thunk, so they all land in
	// the same batch window.
	loader := d.batched()
	ctx := context.Background()
	thunks := make([]gopherdl.Thunk, len(misses))
	for i, k := range misses {
		thunks[i] = loader.Load(ctx, batchKey[K]{key: k})
	}

	fetched := make(map[K]V, len(misses))
	for i, thunk := range thunks {
		data, err := thunk()
		if err != nil {
			return nil, err
		}
		res := data.(resolved[V])
		if res.ok {
			out[misses[i]] = res.value
			fetched[misses[i]] = res.value
		}
	}

	if !d.cacheDisabled() && len(fetched) > 0 {
		d.mu.Lock()
		if d.cache == nil {
			d.cache = make(map[K]V)
		}
		for k, v := range fetched {
			d.cache[k] = v
		}
		d.mu.Unlock()
	}
	return out, nil
}

// FeedMany primes the cache with known key/value pairs. Has no effect if
// this loader has no cache (was created with New instead of WithCache).
func (d *DataLoader[K, V]) FeedMany(values map[K]V) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache == nil {
		return
	}
	for k, v := range values {
		d.cache[k] = v
	}
}

// FeedOne is FeedMany for a single key.
func (d *DataLoader[K, V]) FeedOne(key K, value V) {
	d.FeedMany(map[K]V{key: value})
}

// Clear empties the cache. Has no effect if this loader has no cache.
func (d *DataLoader[K, V]) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache == nil {
		return
	}
	d.cache = make(map[K]V)
}

// CachedValues returns a snapshot of everything currently cached.
func (d *DataLoader[K, V]) CachedValues() map[K]V {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[K]V, len(d.cache))
	for k, v := range d.cache {
		out[k] = v
	}
	return out
}
