package homomorphism

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wbrown/janus-chase/datalog"
)

// DefaultCacheSize is the number of compiled patterns kept by NewPatternCache(0)
const DefaultCacheSize = 1024

// PatternCache caches compiled patterns. Rule bodies are searched again on
// every chase round, so their ranking is computed once per run.
type PatternCache struct {
	cache *lru.Cache[string, *RankedPattern]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewPatternCache creates a cache holding up to size patterns
func NewPatternCache(size int) *PatternCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *RankedPattern](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &PatternCache{cache: c}
}

// Compile returns the cached ranking for atoms, computing it on a miss
func (c *PatternCache) Compile(atoms []datalog.Atom, frozen []datalog.Term) *RankedPattern {
	if c == nil {
		return Compile(atoms, frozen)
	}
	key := patternKey(atoms, frozen)
	if p, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return p
	}
	c.misses.Add(1)
	p := Compile(atoms, frozen)
	c.cache.Add(key, p)
	return p
}

// Stats returns cache statistics
func (c *PatternCache) Stats() (hits, misses int64, size int) {
	if c == nil {
		return 0, 0, 0
	}
	return c.hits.Load(), c.misses.Load(), c.cache.Len()
}

// Purge removes every cached pattern
func (c *PatternCache) Purge() {
	if c == nil {
		return
	}
	c.cache.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}
