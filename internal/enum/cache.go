package enum

import (
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a resolved id is reused.
const DefaultCacheTTL = 10 * time.Minute

type cacheKey struct {
	table Table
	name  string
}

// keyFor lowercases like SQL lower() so a hit never covers a label the
// store would not match.
func keyFor(table Table, name string) cacheKey {
	return cacheKey{table: table, name: strings.ToLower(strings.TrimSpace(name))}
}

type cacheEntry struct {
	id      int64
	expires time.Time
}

// Cache maps (table, lowercased label) to a lookup id with a fixed TTL.
// It holds no state beyond what a fresh lookup would return while an entry
// is unexpired.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	hits    int
	misses  int
}

// NewCache creates a cache. A non-positive ttl falls back to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Get returns the cached id for name. Expired entries are evicted.
func (c *Cache) Get(table Table, name string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	key := keyFor(table, name)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return 0, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		c.misses++
		return 0, false
	}
	c.hits++
	return e.id, true
}

// Put stores id for name.
func (c *Cache) Put(table Table, name string, id int64) {
	if c == nil {
		return
	}
	key := keyFor(table, name)

	c.mu.Lock()
	c.entries[key] = cacheEntry{id: id, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[cacheKey]cacheEntry)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts since the last Invalidate.
func (c *Cache) Stats() (hits, misses int) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
