package pricing

import "sync"

// cacheKey identifies a cached price lookup.
type cacheKey struct {
	identifier string
	currency   string
}

// Cache memoizes price lookups for the duration of a run. Keys are the
// original caller-supplied identifiers, not resolved canonical IDs, so a
// cache hit skips resolution entirely.
type Cache struct {
	mu     sync.RWMutex
	prices map[cacheKey]float64
}

// NewCache creates an empty price cache.
func NewCache() *Cache {
	return &Cache{prices: make(map[cacheKey]float64)}
}

// Get returns the cached price for (identifier, currency), if present.
func (c *Cache) Get(identifier, currency string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[cacheKey{identifier, currency}]
	return price, ok
}

// Put stores a price for (identifier, currency).
func (c *Cache) Put(identifier, currency string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[cacheKey{identifier, currency}] = price
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}
