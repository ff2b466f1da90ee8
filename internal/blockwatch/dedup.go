package blockwatch

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Deduplicator remembers recently seen block hashes
type Deduplicator struct {
	cache *lru.Cache[string, struct{}]
}

// NewDeduplicator creates a new Deduplicator with the given cache size
func NewDeduplicator(size int) (*Deduplicator, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Deduplicator{cache: cache}, nil
}

// IsDuplicate reports whether hash was seen before and records it otherwise.
// An empty hash is never a duplicate.
func (d *Deduplicator) IsDuplicate(hash string) bool {
	if hash == "" {
		return false
	}
	seen, _ := d.cache.ContainsOrAdd(hash, struct{}{})
	return seen
}

// Len returns the current cache size
func (d *Deduplicator) Len() int {
	return d.cache.Len()
}
