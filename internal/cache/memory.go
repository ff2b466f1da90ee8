package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is an in-memory LRU cache where the newest block wins per key
type MemoryCache struct {
	cache *lru.Cache[string, Entry]
	mu    sync.Mutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(size int) (*MemoryCache, error) {
	cache, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache}, nil
}

// Get retrieves an entry from the cache
func (mc *MemoryCache) Get(key string) (Entry, bool) {
	return mc.cache.Get(key)
}

// Set stores the entry if it is not older than the cached one
func (mc *MemoryCache) Set(key string, entry Entry) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if current, ok := mc.cache.Peek(key); ok && current.BlockNumber > entry.BlockNumber {
		return false
	}
	mc.cache.Add(key, entry)
	return true
}

// Remove drops the entry for key
func (mc *MemoryCache) Remove(key string) {
	mc.cache.Remove(key)
}

// Len returns the number of cached entries
func (mc *MemoryCache) Len() int {
	return mc.cache.Len()
}

// Close purges the cache
func (mc *MemoryCache) Close() {
	mc.cache.Purge()
}
