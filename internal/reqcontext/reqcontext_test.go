package reqcontext

import (
	"sync"
	"testing"
	"time"

	"github.com/latticegql/lattice/internal/value"
)

func TestSetMinMaxAgeIsMonotonicallyNonIncreasing(t *testing.T) {
	var agg CacheControlAggregator

	agg.SetMinMaxAge(120)
	if v, _ := agg.Snapshot(); *v != 120 {
		t.Fatalf("expected 120, got %d", *v)
	}

	agg.SetMinMaxAge(30)
	if v, _ := agg.Snapshot(); *v != 30 {
		t.Fatalf("expected 30, got %d", *v)
	}

	// A larger value must never raise the aggregate back up.
	agg.SetMinMaxAge(600)
	if v, _ := agg.Snapshot(); *v != 30 {
		t.Fatalf("expected 30 after larger write, got %d", *v)
	}
}

func TestVisibilityLatchesPrivate(t *testing.T) {
	var agg CacheControlAggregator

	if _, public := agg.Snapshot(); !public {
		t.Fatalf("expected public by default")
	}

	agg.SetCacheVisibility(VisibilityPublic)
	if _, public := agg.Snapshot(); !public {
		t.Fatalf("explicit public must be a no-op")
	}

	agg.SetCacheVisibility(VisibilityPrivate)
	if _, public := agg.Snapshot(); public {
		t.Fatalf("expected private after private write")
	}

	// Once private, a later public response cannot undo it.
	agg.SetCacheVisibility(VisibilityPublic)
	if _, public := agg.Snapshot(); public {
		t.Fatalf("private must latch")
	}
}

func TestSetCacheControlAppliesPolicy(t *testing.T) {
	var agg CacheControlAggregator

	maxAge := 90
	agg.SetCacheControl(CachePolicy{MaxAge: &maxAge, Visibility: VisibilityPrivate})
	v, public := agg.Snapshot()
	if *v != 90 || public {
		t.Fatalf("unexpected snapshot: maxAge=%d public=%v", *v, public)
	}

	agg.SetCacheControl(CachePolicy{NoCache: true})
	v, _ = agg.Snapshot()
	if *v != -1 {
		t.Fatalf("no-cache must drive the aggregate to -1, got %d", *v)
	}
}

func TestAggregatorConcurrentWrites(t *testing.T) {
	var agg CacheControlAggregator
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			agg.SetMinMaxAge(n)
		}(i)
	}
	wg.Wait()
	if v, _ := agg.Snapshot(); *v != 1 {
		t.Fatalf("expected minimum of all writes, got %d", *v)
	}
}

func TestParseCacheControl(t *testing.T) {
	cases := []struct {
		header  string
		maxAge  int
		hasAge  bool
		noCache bool
		vis     Visibility
	}{
		{"max-age=120, public", 120, true, false, VisibilityPublic},
		{"private, max-age=30", 30, true, false, VisibilityPrivate},
		{"no-cache", 0, false, true, VisibilityUnset},
		{"no-store", 0, false, true, VisibilityUnset},
		{"", 0, false, false, VisibilityUnset},
		{"s-maxage=10, stale-while-revalidate=30", 0, false, false, VisibilityUnset},
		{"Max-Age=45", 45, true, false, VisibilityUnset},
	}
	for _, tc := range cases {
		p := ParseCacheControl(tc.header)
		if (p.MaxAge != nil) != tc.hasAge {
			t.Fatalf("%q: maxAge presence mismatch", tc.header)
		}
		if tc.hasAge && *p.MaxAge != tc.maxAge {
			t.Fatalf("%q: expected max-age %d, got %d", tc.header, tc.maxAge, *p.MaxAge)
		}
		if p.NoCache != tc.noCache {
			t.Fatalf("%q: noCache mismatch", tc.header)
		}
		if p.Visibility != tc.vis {
			t.Fatalf("%q: visibility mismatch", tc.header)
		}
	}
}

func TestEntityCacheTTL(t *testing.T) {
	c := NewEntityCache()

	c.Insert("k", value.String("v"), 50*time.Millisecond)
	if v, ok := c.Get("k"); !ok || v.AsString() != "v" {
		t.Fatalf("expected fresh entry")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected entry to expire")
	}

	// Zero TTL means no expiry.
	c.Insert("forever", value.String("v"), 0)
	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("forever"); !ok {
		t.Fatalf("zero-TTL entry must not expire")
	}
}
