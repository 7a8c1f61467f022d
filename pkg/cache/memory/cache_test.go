package memory

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/toongate/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, cfg Config, opts ...Option) *Cache {
	t.Helper()
	// Keep the sweep out of the way unless a test asks for it.
	if cfg.CheckPeriod == 0 {
		cfg.CheckPeriod = time.Hour
	}
	c := New(cfg, opts...)
	t.Cleanup(c.Destroy)
	return c
}

func result(data string) models.ConversionResult {
	return models.ConversionResult{Success: true, Data: data, OriginalSize: 10, ConvertedSize: len(data)}
}

func assertPresent(t *testing.T, c *Cache, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if _, ok := c.Entry(k); !ok {
			t.Errorf("expected %q in cache", k)
		}
	}
}

func assertAbsent(t *testing.T, c *Cache, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if _, ok := c.Entry(k); ok {
			t.Errorf("expected %q to be gone", k)
		}
	}
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t, Config{})

	if !c.Set("k", result("a: 1")) {
		t.Fatal("Set returned false")
	}
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Data != "a: 1" {
		t.Errorf("Data = %q, want %q", got.Data, "a: 1")
	}

	if _, ok := c.Get("other"); ok {
		t.Error("expected miss for unknown key")
	}

	want := models.CacheStats{Hits: 1, Misses: 1, Sets: 1, Entries: 1}
	if s := c.Stats(); s != want {
		t.Errorf("Stats = %+v, want %+v", s, want)
	}
}

func TestEmptyKey(t *testing.T) {
	c := newTestCache(t, Config{})

	if c.Set("", result("x")) {
		t.Error("Set with empty key should fail")
	}
	if _, ok := c.Get(""); ok {
		t.Error("Get with empty key should miss")
	}
	if s := c.Stats(); s != (models.CacheStats{}) {
		t.Errorf("empty key touched counters: %+v", s)
	}
}

func TestExpiryCountsAsMiss(t *testing.T) {
	clock := newFakeClock()
	var kinds []EventKind
	c := newTestCache(t, Config{TTL: time.Second},
		WithClock(clock.Now),
		WithListener(func(e Event) { kinds = append(kinds, e.Kind) }))

	c.Set("k", result("x"))
	clock.Advance(time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be valid at exactly expiresAt")
	}

	clock.Advance(time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if n := c.Len(); n != 0 {
		t.Errorf("Len = %d after expired read, want 0", n)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", s.Hits, s.Misses)
	}
	if want := []EventKind{EventSet, EventHit, EventExpired}; !reflect.DeepEqual(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
}

func TestSetWithTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Config{TTL: time.Minute}, WithClock(clock.Now))

	c.SetWithTTL("short", result("x"), time.Second)
	c.SetWithTTL("default", result("y"), 0)

	clock.Advance(2 * time.Second)
	if _, ok := c.Get("short"); ok {
		t.Error("short TTL entry should have expired")
	}
	if _, ok := c.Get("default"); !ok {
		t.Error("default TTL entry should still be cached")
	}
}

// Fill to capacity, add one more: the first-created entry goes.
func TestEvictsOldestCreated(t *testing.T) {
	clock := newFakeClock()
	var evicted []string
	c := newTestCache(t, Config{MaxSize: 2},
		WithClock(clock.Now),
		WithListener(func(e Event) {
			if e.Kind == EventEvicted {
				evicted = append(evicted, e.Key)
			}
		}))

	c.Set("a", result("1"))
	clock.Advance(time.Second)
	c.Set("b", result("2"))
	clock.Advance(time.Second)

	// Reading a does not protect it: eviction ignores access.
	_, _ = c.Get("a")
	_, _ = c.Get("a")

	c.Set("c", result("3"))

	assertAbsent(t, c, "a")
	assertPresent(t, c, "b", "c")
	if !reflect.DeepEqual(evicted, []string{"a"}) {
		t.Errorf("evicted = %v, want [a]", evicted)
	}
	if n := c.Stats().Evictions; n != 1 {
		t.Errorf("Evictions = %d, want 1", n)
	}
}

func TestEvictionTieBreaksOnInsertOrder(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Config{MaxSize: 3}, WithClock(clock.Now))

	c.Set("a", result("1"))
	c.Set("b", result("2"))
	c.Set("c", result("3"))
	c.Set("d", result("4"))

	assertAbsent(t, c, "a")
	assertPresent(t, c, "b", "c", "d")
}

func TestOverwriteInFullCacheEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, Config{MaxSize: 2}, WithClock(clock.Now))

	c.Set("a", result("1"))
	clock.Advance(time.Second)
	c.Set("b", result("2"))
	clock.Advance(time.Second)
	c.Set("b", result("2b"))

	assertAbsent(t, c, "a")
	got, ok := c.Get("b")
	if !ok || got.Data != "2b" {
		t.Errorf("Get(b) = %q, %v; want 2b, true", got.Data, ok)
	}
	if n := c.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
	if n := c.Stats().Evictions; n != 1 {
		t.Errorf("Evictions = %d, want 1", n)
	}
}

func TestOverwriteBelowCapacity(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 3})

	c.Set("a", result("1"))
	c.Set("b", result("2"))
	c.Set("a", result("1b"))

	if n := c.Len(); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	if n := c.Stats().Evictions; n != 0 {
		t.Errorf("Evictions = %d, want 0", n)
	}
	if got, _ := c.Get("a"); got.Data != "1b" {
		t.Errorf("Data = %q, want 1b", got.Data)
	}
}

func TestSizeBound(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10})
	for i := range 50 {
		c.Set(fmt.Sprintf("k%d", i), result("x"))
		if n := c.Len(); n > 10 {
			t.Fatalf("Len = %d after %d sets, exceeds MaxSize", n, i+1)
		}
	}
	if n := c.Stats().Evictions; n != 40 {
		t.Errorf("Evictions = %d, want 40", n)
	}
}

func TestAccessCount(t *testing.T) {
	c := newTestCache(t, Config{})
	c.Set("k", result("x"))
	for range 3 {
		_, _ = c.Get("k")
	}
	e, ok := c.Entry("k")
	if !ok {
		t.Fatal("expected entry")
	}
	if e.AccessCount != 3 {
		t.Errorf("AccessCount = %d, want 3", e.AccessCount)
	}
}

func TestCleanup(t *testing.T) {
	clock := newFakeClock()
	var cleaned int
	c := newTestCache(t, Config{TTL: time.Minute},
		WithClock(clock.Now),
		WithListener(func(e Event) {
			if e.Kind == EventCleanup {
				cleaned = e.Count
			}
		}))

	c.SetWithTTL("a", result("1"), time.Second)
	c.SetWithTTL("b", result("2"), time.Second)
	c.Set("c", result("3"))

	if n := c.Cleanup(); n != 0 {
		t.Errorf("Cleanup before expiry = %d, want 0", n)
	}
	clock.Advance(2 * time.Second)
	if n := c.Cleanup(); n != 2 {
		t.Errorf("Cleanup = %d, want 2", n)
	}
	if cleaned != 2 {
		t.Errorf("cleanup event count = %d, want 2", cleaned)
	}
	if n := c.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestClear(t *testing.T) {
	var cleared = -1
	c := newTestCache(t, Config{}, WithListener(func(e Event) {
		if e.Kind == EventCleared {
			cleared = e.Count
		}
	}))
	c.Set("a", result("1"))
	c.Set("b", result("2"))

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear = %d, want 2", n)
	}
	if cleared != 2 {
		t.Errorf("cleared event count = %d, want 2", cleared)
	}
	if n := c.Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := newTestCache(t, Config{TTL: time.Millisecond, CheckPeriod: 5 * time.Millisecond})
	c.Set("a", result("1"))
	c.Set("b", result("2"))

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep left %d entries", c.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	calls := 0
	c := New(Config{CheckPeriod: time.Hour}, WithListener(func(Event) { calls++ }))
	c.Set("a", result("1"))

	c.Destroy()
	c.Destroy()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := c.Len(); n != 0 {
		t.Errorf("Len = %d after destroy, want 0", n)
	}
	before := calls
	c.Set("b", result("2"))
	if calls != before {
		t.Error("listeners should be dropped on destroy")
	}
}

func TestUnsubscribe(t *testing.T) {
	c := newTestCache(t, Config{})
	n := 0
	unsub := c.Subscribe(func(Event) { n++ })
	c.Set("a", result("1"))
	unsub()
	c.Set("b", result("2"))
	if n != 1 {
		t.Errorf("listener calls = %d, want 1", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 64, TTL: time.Minute, CheckPeriod: time.Millisecond})

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				key := fmt.Sprintf("k%d", (w*31+i)%100)
				if i%3 == 0 {
					c.Set(key, result(key))
				} else if got, ok := c.Get(key); ok && got.Data != key {
					t.Errorf("Get(%s) = %q", key, got.Data)
				}
				if i%97 == 0 {
					c.Cleanup()
				}
			}
		}()
	}
	wg.Wait()

	if n := c.Len(); n > 64 {
		t.Errorf("Len = %d, exceeds MaxSize", n)
	}
	if s := c.Stats(); s.Sets != 8*167 {
		t.Errorf("Sets = %d, want %d", s.Sets, 8*167)
	}
}

func TestSingleSlotCache(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 1})

	c.Set("first", result("1"))
	c.Set("second", result("2"))

	assertAbsent(t, c, "first")
	assertPresent(t, c, "second")
	if n := c.Stats().Evictions; n != 1 {
		t.Errorf("Evictions = %d, want 1", n)
	}
}
