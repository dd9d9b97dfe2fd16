package xsdcheck

import (
	"crypto/sha256"
	"sync"

	"github.com/agentflare-ai/xsdcheck/xsd"
	"github.com/golang/groupcache/lru"
)

// DefaultCacheSize is the number of compiled schemas a SchemaCache keeps
// when created with a non-positive size.
const DefaultCacheSize = 32

// SchemaCache keeps compiled schemas keyed by the SHA-256 of their source
// bytes and location. Compile failures are cached too, so a malformed schema is
// reported without recompiling. Safe for concurrent use.
type SchemaCache struct {
	mu      sync.Mutex
	entries *lru.Cache
	hits    uint64
	misses  uint64
}

type cacheKey [sha256.Size]byte

// cacheEntry compiles at most once even when several goroutines ask for
// the same schema at the same time.
type cacheEntry struct {
	once   sync.Once
	schema *xsd.Schema
	err    error
}

// NewSchemaCache creates a cache holding up to size compiled schemas.
func NewSchemaCache(size int) *SchemaCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &SchemaCache{entries: lru.New(size)}
}

// GetOrCompile returns the cached schema for data loaded from location
// or runs compile and caches its outcome. Location only matters for
// schemas with relative includes; pass "" otherwise.
func (c *SchemaCache) GetOrCompile(location string, data []byte, compile func() (*xsd.Schema, error)) (*xsd.Schema, error) {
	h := sha256.New()
	h.Write([]byte(location))
	h.Write([]byte{0})
	h.Write(data)
	var key cacheKey
	h.Sum(key[:0])

	c.mu.Lock()
	var entry *cacheEntry
	if v, ok := c.entries.Get(key); ok {
		entry = v.(*cacheEntry)
		c.hits++
	} else {
		entry = &cacheEntry{}
		c.entries.Add(key, entry)
		c.misses++
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.schema, entry.err = compile()
	})
	return entry.schema, entry.err
}

// Len returns the number of cached schemas.
func (c *SchemaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns the hit and miss counters.
func (c *SchemaCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Clear drops every cached schema.
func (c *SchemaCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Clear()
}
