package chunked

import (
	"slices"
	"sync"

	"farmcall/internal/multicall"
)

// part is one chunk's subscription plus the number of positions it covers
type part struct {
	sub    multicall.Subscription
	length int
}

// Reassembler concatenates chunk states in chunk order. The merged slice
// is rebuilt only when a chunk version changes.
type Reassembler struct {
	parts []part

	mu       sync.Mutex
	built    bool
	versions []uint64
	memo     []multicall.CallState
}

func newReassembler(parts []part) *Reassembler {
	return &Reassembler{parts: parts, versions: make([]uint64, len(parts))}
}

// Len returns the number of positions covered
func (r *Reassembler) Len() int {
	n := 0
	for _, p := range r.parts {
		n += p.length
	}
	return n
}

// States returns one state per position of every chunk
func (r *Reassembler) States() []multicall.CallState {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := make([]uint64, len(r.parts))
	for i, p := range r.parts {
		versions[i] = p.sub.Version()
	}
	if r.built && slices.Equal(versions, r.versions) {
		return r.memo
	}

	out := make([]multicall.CallState, 0, r.Len())
	for _, p := range r.parts {
		out = appendAligned(out, p.sub.States(), p.length)
	}

	r.memo = out
	r.versions = versions
	r.built = true
	return out
}

// appendAligned appends exactly n states, padding with Invalid when the
// chunk reported fewer
func appendAligned(out, states []multicall.CallState, n int) []multicall.CallState {
	if len(states) >= n {
		return append(out, states[:n]...)
	}
	out = append(out, states...)
	for i := len(states); i < n; i++ {
		out = append(out, multicall.InvalidState)
	}
	return out
}

func (r *Reassembler) close() {
	for _, p := range r.parts {
		p.sub.Close()
	}
}

// staticPart is a chunk that never reaches the transport
type staticPart struct {
	states []multicall.CallState
}

func invalidPart(n int) staticPart {
	states := make([]multicall.CallState, n)
	for i := range states {
		states[i] = multicall.InvalidState
	}
	return staticPart{states: states}
}

func (p staticPart) States() []multicall.CallState { return p.states }
func (p staticPart) Version() uint64               { return 0 }
func (p staticPart) Close()                        {}
