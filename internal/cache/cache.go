// Package cache provides a generic in-memory TTL cache.
// Eviction is lazy on read plus a periodic background sweep, so entries for
// keys that are never re-read still get reclaimed.
package cache

import (
	"sync"
	"time"
)

// Entry is a stored value with its expiry bookkeeping. Entries are immutable
// once stored; a Set for the same key replaces the whole entry.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether the entry is past its TTL at the given time.
func (e Entry[V]) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Cache is a thread-safe TTL cache from K to V.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]Entry[V]

	defaultTTL time.Duration
	now        func() time.Time

	sweepEvery time.Duration
	stopSweep  chan struct{}
	stopOnce   sync.Once

	hits   uint64
	misses uint64
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock overrides the time source, for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.now = now
	}
}

// WithSweepInterval sets how often the background sweep runs. Zero disables
// the sweep goroutine entirely (lazy eviction still applies).
func WithSweepInterval[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.sweepEvery = d
	}
}

// New creates a cache with the given default TTL and starts the sweep
// goroutine unless disabled. Call Stop when done.
func New[K comparable, V any](defaultTTL time.Duration, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		entries:    make(map[K]Entry[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
		sweepEvery: time.Minute,
		stopSweep:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepEvery > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the live entry for key, evicting it first if expired.
func (c *Cache[K, V]) Get(key K) (Entry[V], bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return Entry[V]{}, false
	}
	if e.Expired(now) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have replaced it.
		if cur, still := c.entries[key]; still && cur.Expired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.miss()
		return Entry[V]{}, false
	}

	c.hit()
	return e, true
}

// Set stores value under key with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
func (c *Cache[K, V]) SetTTL(key K, value V, ttl time.Duration) {
	e := Entry[V]{Value: value, StoredAt: c.now(), TTL: ttl}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including any not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache[K, V]) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Sweep removes all expired entries now and returns how many were removed.
func (c *Cache[K, V]) Sweep() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Stop terminates the sweep goroutine. Idempotent.
func (c *Cache[K, V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopSweep)
	})
}

func (c *Cache[K, V]) sweepLoop() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Cache[K, V]) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache[K, V]) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}
