package multicall

import (
	"sync"

	"farmcall/internal/cache"
)

type listenerEntry struct {
	call Call
	// counts of active listeners per blocksPerFetch
	counts map[uint64]int
}

// activeBlocksPerFetch returns the smallest cadence with a live listener
func (e *listenerEntry) activeBlocksPerFetch() (uint64, bool) {
	var min uint64
	found := false
	for bpf, n := range e.counts {
		if n > 0 && (!found || bpf < min) {
			min = bpf
			found = true
		}
	}
	return min, found
}

// Store holds listener registrations, fetch bookkeeping and call results
type Store struct {
	mu        sync.Mutex
	listeners map[string]*listenerEntry
	fetching  map[string]uint64
	versions  map[string]uint64
	results   cache.Cache
	changed   chan struct{}
}

// NewStore creates a store backed by results
func NewStore(results cache.Cache) *Store {
	return &Store{
		listeners: make(map[string]*listenerEntry),
		fetching:  make(map[string]uint64),
		versions:  make(map[string]uint64),
		results:   results,
		changed:   make(chan struct{}, 1),
	}
}

// Changed signals that the listener set changed
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

func (s *Store) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// AddListeners registers one listener per call at the given cadence
func (s *Store) AddListeners(calls []Call, opts ListenerOptions) {
	if len(calls) == 0 {
		return
	}
	bpf := opts.normalized().BlocksPerFetch

	s.mu.Lock()
	for _, c := range calls {
		key := c.Key()
		entry, ok := s.listeners[key]
		if !ok {
			entry = &listenerEntry{call: c, counts: make(map[uint64]int)}
			s.listeners[key] = entry
		}
		entry.counts[bpf]++
	}
	s.mu.Unlock()

	s.notify()
}

// RemoveListeners undoes a matching AddListeners
func (s *Store) RemoveListeners(calls []Call, opts ListenerOptions) {
	if len(calls) == 0 {
		return
	}
	bpf := opts.normalized().BlocksPerFetch

	s.mu.Lock()
	for _, c := range calls {
		key := c.Key()
		entry, ok := s.listeners[key]
		if !ok {
			continue
		}
		if entry.counts[bpf] <= 1 {
			delete(entry.counts, bpf)
		} else {
			entry.counts[bpf]--
		}
		if len(entry.counts) == 0 {
			delete(s.listeners, key)
			delete(s.fetching, key)
			delete(s.versions, key)
		}
	}
	s.mu.Unlock()

	s.notify()
}

// ListenerCount returns the number of keys with at least one listener
func (s *Store) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Outdated returns the listened calls whose result is stale at latest.
// A call already being fetched at a fresh enough block is skipped.
func (s *Store) Outdated(latest uint64) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for key, entry := range s.listeners {
		bpf, ok := entry.activeBlocksPerFetch()
		if !ok {
			continue
		}
		minDataBlock := minDataBlockNumber(latest, bpf)

		if fetching, ok := s.fetching[key]; ok && fetching >= minDataBlock {
			continue
		}
		if res, ok := s.results.Get(key); ok && res.BlockNumber >= minDataBlock {
			continue
		}
		out = append(out, entry.call)
	}
	return out
}

// minDataBlockNumber is latest-(bpf-1), saturating at zero
func minDataBlockNumber(latest, bpf uint64) uint64 {
	if bpf-1 >= latest {
		return 0
	}
	return latest - (bpf - 1)
}

// MarkFetching records that calls are being fetched at block
func (s *Store) MarkFetching(calls []Call, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range calls {
		s.fetching[c.Key()] = block
	}
}

// StoreResults saves fetched results observed at block.
// Results older than the cached ones are dropped.
func (s *Store) StoreResults(calls []Call, results []CallResult, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range calls {
		if i >= len(results) {
			break
		}
		key := c.Key()
		entry := cache.Entry{
			Data:        results[i].ReturnData,
			BlockNumber: block,
			Failed:      !results[i].Success,
		}
		if !s.results.Set(key, entry) {
			continue
		}
		if fetching, ok := s.fetching[key]; ok && fetching <= block {
			delete(s.fetching, key)
		}
		s.bump(key)
	}
}

// StoreErrors marks calls as failed at block, but only for calls whose
// in-flight fetch is not newer than block
func (s *Store) StoreErrors(calls []Call, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range calls {
		key := c.Key()
		fetching, ok := s.fetching[key]
		if !ok || fetching > block {
			continue
		}
		delete(s.fetching, key)
		if s.results.Set(key, cache.Entry{BlockNumber: block, Failed: true}) {
			s.bump(key)
		}
	}
}

// bump advances the key version; keys without listeners are not tracked
func (s *Store) bump(key string) {
	if _, ok := s.listeners[key]; ok {
		s.versions[key]++
	}
}

// Get returns the stored result for key
func (s *Store) Get(key string) (cache.Entry, bool) {
	return s.results.Get(key)
}

// Version returns the change counter of key
func (s *Store) Version(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[key]
}

// VersionSum returns the sum of the versions of keys
func (s *Store) VersionSum(keys []string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum uint64
	for _, k := range keys {
		sum += s.versions[k]
	}
	return sum
}
