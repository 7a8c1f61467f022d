// Package memory is a bounded, TTL-based, in-process cache of conversion
// results keyed by content fingerprint.
//
// Entries expire lazily on Get and eagerly through a background sweep that
// runs every CheckPeriod. When the cache is full the entry created first is
// evicted; AccessCount is tracked for reporting only and never influences
// eviction. State is not persisted and not shared across processes.
//
// The cache does not deduplicate concurrent work: two callers that miss on
// the same key will both compute and both Set. Callers that care wrap their
// builds in a singleflight group.
package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/toongate/pkg/models"
)

// Defaults for Config.
const (
	DefaultMaxSize     = 1000
	DefaultTTL         = 5 * time.Minute
	DefaultCheckPeriod = time.Minute
)

// Config bounds the cache. Zero values take the defaults.
type Config struct {
	MaxSize     int
	TTL         time.Duration
	CheckPeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.CheckPeriod <= 0 {
		c.CheckPeriod = DefaultCheckPeriod
	}
	return c
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithListener subscribes l to cache events from construction on.
func WithListener(l Listener) Option {
	return func(c *Cache) { c.Subscribe(l) }
}

type item struct {
	entry models.CacheEntry
	seq   uint64
}

// Cache maps fingerprints to conversion results.
type Cache struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*item
	seq     uint64

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64

	events emitter

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Cache and starts its expiry sweep. Call Destroy to stop it.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		entries: make(map[string]*item),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	c.wg.Add(1)
	go c.sweepLoop()

	return c
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// Get returns the stored result for key. A missing or expired entry is a
// miss; expired entries are deleted on the spot.
func (c *Cache) Get(key string) (models.ConversionResult, bool) {
	if key == "" {
		return models.ConversionResult{}, false
	}

	c.mu.RLock()
	it, ok := c.entries[key]
	if ok && !it.entry.Expired(c.now()) {
		atomic.AddInt64(&it.entry.AccessCount, 1)
		value := it.entry.Value
		c.mu.RUnlock()

		c.hits.Add(1)
		c.events.emit(Event{Kind: EventHit, Key: key})
		return value, true
	}
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		c.events.emit(Event{Kind: EventMiss, Key: key})
		return models.ConversionResult{}, false
	}

	c.mu.Lock()
	// Re-check: a concurrent Set may have replaced the entry since RUnlock.
	if cur, still := c.entries[key]; still && cur == it {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	c.misses.Add(1)
	c.events.emit(Event{Kind: EventExpired, Key: key})
	return models.ConversionResult{}, false
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value models.ConversionResult) bool {
	return c.SetWithTTL(key, value, c.cfg.TTL)
}

// SetWithTTL stores value under key for ttl (the default TTL if ttl <= 0).
// Any Set into a full cache first evicts the oldest entry, even when key is
// already present.
func (c *Cache) SetWithTTL(key string, value models.ConversionResult, ttl time.Duration) bool {
	if key == "" {
		return false
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}

	now := c.now()
	var evicted string

	c.mu.Lock()
	if len(c.entries) >= c.cfg.MaxSize {
		evicted = c.evictOldestLocked()
	}
	c.seq++
	c.entries[key] = &item{
		entry: models.CacheEntry{
			Value:     value,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		},
		seq: c.seq,
	}
	c.mu.Unlock()

	if evicted != "" {
		c.evictions.Add(1)
		c.events.emit(Event{Kind: EventEvicted, Key: evicted})
	}
	c.sets.Add(1)
	c.events.emit(Event{Kind: EventSet, Key: key})
	return true
}

// evictOldestLocked removes the entry with the earliest CreatedAt, breaking
// ties by insertion order. c.mu must be held for writing.
func (c *Cache) evictOldestLocked() string {
	var (
		oldestKey string
		oldest    *item
	)
	for k, it := range c.entries {
		if oldest == nil ||
			it.entry.CreatedAt.Before(oldest.entry.CreatedAt) ||
			(it.entry.CreatedAt.Equal(oldest.entry.CreatedAt) && it.seq < oldest.seq) {
			oldestKey, oldest = k, it
		}
	}
	if oldest != nil {
		delete(c.entries, oldestKey)
	}
	return oldestKey
}

// Entry returns a snapshot of the entry stored under key, expired or not,
// without touching counters.
func (c *Cache) Entry(key string) (models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.entries[key]
	if !ok {
		return models.CacheEntry{}, false
	}
	snapshot := it.entry
	snapshot.AccessCount = atomic.LoadInt64(&it.entry.AccessCount)
	return snapshot, true
}

// Cleanup deletes every expired entry and returns how many were removed.
func (c *Cache) Cleanup() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, it := range c.entries {
		if it.entry.Expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.events.emit(Event{Kind: EventCleanup, Count: removed})
	}
	return removed
}

// Clear removes all entries and returns how many there were.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*item)
	c.mu.Unlock()

	c.events.emit(Event{Kind: EventCleared, Count: n})
	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:   int64(c.Len()),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Destroy stops the sweep, clears all entries and drops all listeners.
// It is safe to call more than once.
func (c *Cache) Destroy() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.Clear()
		c.events.reset()
	})
}

// Close implements io.Closer by calling Destroy.
func (c *Cache) Close() error {
	c.Destroy()
	return nil
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
