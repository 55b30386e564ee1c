// Package cache holds discovered function tables keyed by module path and
// modification time.
//
// An entry is served only while its TTL has not elapsed and the file's
// modification time still matches the one recorded at discovery. Stale
// entries are never swept; they simply stop matching and age out of the
// underlying LRU.
package cache

import (
	"os"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/caffeineduck/runit/function"
)

const (
	// DefaultTTL is how long an entry stays fresh without a file change.
	DefaultTTL = 300 * time.Second
	// DefaultMaxEntries bounds the number of files cached before eviction.
	DefaultMaxEntries = 1024
)

type entry struct {
	mtime  time.Time
	stored time.Time
	table  function.Table
}

// Cache is safe for concurrent use.
type Cache struct {
	entries *lru.Cache
	ttl     time.Duration
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// WithTTL sets how long an entry stays valid after it was stored.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithMaxEntries bounds the number of modules kept in memory.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	cfg := config{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	// lru.New only fails for a non-positive size, which the options rule out.
	entries, _ := lru.New(cfg.maxEntries)

	return &Cache{
		entries: entries,
		ttl:     cfg.ttl,
		now:     cfg.now,
	}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the table cached for path if the file's current modification
// time matches the cached one and the entry is younger than the TTL.
func (c *Cache) Get(path string) (function.Table, bool) {
	info, err := os.Stat(path)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	return c.Lookup(path, info.ModTime())
}

// Lookup is Get with a caller-supplied modification time.
func (c *Cache) Lookup(path string, mtime time.Time) (function.Table, bool) {
	raw, ok := c.entries.Get(path)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	e := raw.(entry)
	if !e.mtime.Equal(mtime) || c.now().Sub(e.stored) >= c.ttl {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.table.Clone(), true
}

// Put stores table for (path, mtime), replacing any previous entry for path.
func (c *Cache) Put(path string, mtime time.Time, table function.Table) {
	if table == nil {
		table = function.Table{}
	}
	c.entries.Add(path, entry{
		mtime:  mtime,
		stored: c.now(),
		table:  table.Clone(),
	})
}

// Remove drops the entry for path.
func (c *Cache) Remove(path string) {
	c.entries.Remove(path)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Stats reports entry count and hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.entries.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
