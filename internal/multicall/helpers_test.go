package multicall

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"farmcall/internal/cache"
)

const testTokenABI = `[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

func mustABI(t *testing.T, def string) *abi.ABI {
	t.Helper()
	parsed, err := ParseABI(def)
	if err != nil {
		t.Fatalf("failed to parse ABI: %v", err)
	}
	return parsed
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	results, err := cache.NewMemoryCache(1000)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return NewStore(results)
}

func packUint(t *testing.T, v int64) []byte {
	t.Helper()
	uint256, _ := abi.NewType("uint256", "", nil)
	out, err := abi.Arguments{{Type: uint256}}.Pack(big.NewInt(v))
	if err != nil {
		t.Fatalf("failed to pack: %v", err)
	}
	return out
}

type fakeBlocks struct {
	latest atomic.Uint64
	mu     sync.Mutex
	subs   []chan uint64
}

func newFakeBlocks(latest uint64) *fakeBlocks {
	b := &fakeBlocks{}
	b.latest.Store(latest)
	return b
}

func (b *fakeBlocks) Latest() uint64 { return b.latest.Load() }

func (b *fakeBlocks) Subscribe() (<-chan uint64, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan uint64, 1)
	b.subs = append(b.subs, ch)
	return ch, func() {}
}

func (b *fakeBlocks) advance(n uint64) {
	b.latest.Store(n)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// fakeAggregator answers every call through respond, at block
type fakeAggregator struct {
	mu      sync.Mutex
	block   uint64
	respond func(Call) CallResult
	fail    error
	batches [][]Call
}

func (f *fakeAggregator) TryBlockAndAggregate(_ context.Context, calls []Call) (*AggregateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, calls)
	if f.fail != nil {
		return nil, f.fail
	}
	results := make([]CallResult, len(calls))
	for i, c := range calls {
		results[i] = f.respond(c)
	}
	return &AggregateResult{BlockNumber: f.block, Results: results}, nil
}

func (f *fakeAggregator) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

var errUpstream = errors.New("upstream unavailable")
