// Package cache provides a TTL-aware LRU used to deduplicate page fetches
// within a crawl run. Entries are bounded three ways: by count, by resident
// bytes, and by age.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Defaults applied when an Options field is left zero.
const (
	DefaultTTL           = 30 * time.Minute
	DefaultMaxEntries    = 256
	DefaultSweepFraction = 16
)

// Clock abstracts time so tests can drive expiry deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Options tunes a Cache.
type Options[V any] struct {
	// TTL is the maximum age of an entry before a Get treats it as a miss.
	TTL time.Duration
	// MaxEntries bounds the number of live entries.
	MaxEntries int
	// MaxBytes bounds the total SizeOf-weighted bytes held. Zero means no
	// byte bound.
	MaxBytes int64
	// SweepFraction controls opportunistic expiry: each write scans
	// len/SweepFraction of the coldest entries and drops the expired
	// ones. Zero disables the sweep; expired entries then only leave on
	// Get or LRU pressure.
	SweepFraction int
	// SizeOf reports the resident size of a value. Nil means entries
	// weigh nothing and only MaxEntries applies.
	SizeOf func(key string, value V) int
	Clock  Clock
}

type entry[V any] struct {
	value     V
	size      int64
	expiresAt time.Time
}

type flight[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Cache is a thread-safe LRU with per-entry TTL and byte accounting.
type Cache[V any] struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *entry[V]]
	opts     Options[V]
	bytes    int64
	inflight map[string]*flight[V]
	hits     uint64
	misses   uint64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
	Bytes   int64
}

// New builds a Cache from opts, applying defaults for zero fields.
func New[V any](opts Options[V]) (*Cache[V], error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.SweepFraction < 0 {
		opts.SweepFraction = 0
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	c := &Cache[V]{
		opts:     opts,
		inflight: make(map[string]*flight[V]),
	}
	lru, err := simplelru.NewLRU[string, *entry[V]](opts.MaxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("init lru: %w", err)
	}
	c.lru = lru
	return c, nil
}

// onEvict runs under c.mu for every entry leaving the LRU.
func (c *Cache[V]) onEvict(_ string, e *entry[V]) {
	c.bytes -= e.size
}

// Get returns the live value for key. Expired entries are removed and
// reported as misses.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[V]) getLocked(key string) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if c.opts.Clock.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key, replacing any previous entry and evicting
// from the cold end until the count and byte bounds hold.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *Cache[V]) setLocked(key string, value V) {
	var size int64
	if c.opts.SizeOf != nil {
		size = int64(c.opts.SizeOf(key, value))
	}
	// Add replaces in place without an evict callback, so settle the old
	// entry's bytes first.
	if old, ok := c.lru.Peek(key); ok {
		c.bytes -= old.size
	}
	c.lru.Add(key, &entry[V]{
		value:     value,
		size:      size,
		expiresAt: c.opts.Clock.Now().Add(c.opts.TTL),
	})
	c.bytes += size
	c.sweepLocked()
	for c.opts.MaxBytes > 0 && c.bytes > c.opts.MaxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// sweepLocked drops expired entries from the cold end, scanning at most
// len/SweepFraction keys so writes stay cheap.
func (c *Cache[V]) sweepLocked() {
	if c.opts.SweepFraction <= 0 {
		return
	}
	n := c.lru.Len() / c.opts.SweepFraction
	if n == 0 {
		n = 1
	}
	now := c.opts.Clock.Now()
	keys := c.lru.Keys()
	if len(keys) < n {
		n = len(keys)
	}
	for _, key := range keys[:n] {
		if e, ok := c.lru.Peek(key); ok && now.After(e.expiresAt) {
			c.lru.Remove(key)
		}
	}
}

// GetOrCompute returns the cached value for key, invoking compute on a
// miss. Concurrent callers for the same key share a single computation;
// errors are returned to every waiter and never cached.
func (c *Cache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-f.done
		return f.val, f.err
	}
	f := &flight[V]{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	f.val, f.err = compute()

	c.mu.Lock()
	delete(c.inflight, key)
	if f.err == nil {
		c.setLocked(key, f.val)
	}
	c.mu.Unlock()
	close(f.done)
	return f.val, f.err
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.bytes = 0
}

// Len reports the number of live entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes reports the SizeOf-weighted total of resident entries.
func (c *Cache[V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Snapshot returns current counters for logging and metrics.
func (c *Cache[V]) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: c.lru.Len(),
		Bytes:   c.bytes,
	}
}
