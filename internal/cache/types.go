package cache

// Entry is a call result as stored by the multicall subsystem
type Entry struct {
	// Data is the raw return data; nil together with Failed marks a failed fetch
	Data        []byte
	BlockNumber uint64
	Failed      bool
}

// Cache defines the interface for block-aware call result storage.
// This interface allows for different implementations (in-memory, Redis, etc.)
type Cache interface {
	// Get retrieves an entry by call key
	Get(key string) (Entry, bool)

	// Set stores the entry unless a newer block is already cached.
	// Returns true if the entry was stored.
	Set(key string, entry Entry) bool

	// Remove drops the entry for key
	Remove(key string)

	// Len returns the number of cached entries
	Len() int

	// Close releases any resources held by the cache
	Close()
}
