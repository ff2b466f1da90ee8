package chunked

import (
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"farmcall/internal/multicall"
)

// fakeSub is a scripted subscription: valid states echo their input
type fakeSub struct {
	mu      sync.Mutex
	states  []multicall.CallState
	version uint64
	closed  bool
}

func (s *fakeSub) States() []multicall.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states
}

func (s *fakeSub) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *fakeSub) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// set replaces the state at i with a fresh slice and bumps the version
func (s *fakeSub) set(i int, state multicall.CallState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := append([]multicall.CallState(nil), s.states...)
	states[i] = state
	s.states = states
	s.version++
}

type openedChunk struct {
	method    string
	inputs    []multicall.Args
	addresses []string
	listener  multicall.ListenerOptions
	gas       uint64
	sub       *fakeSub
}

type fakeTransport struct {
	mu     sync.Mutex
	opened []*openedChunk
}

func valid(v interface{}) multicall.CallState {
	return multicall.CallState{Kind: multicall.StateValid, Result: []interface{}{v}, BlockNumber: 1}
}

func (f *fakeTransport) PollSingleContractMultipleData(_ *multicall.Contract, method string, inputs []multicall.Args, opts multicall.ListenerOptions, gasRequired uint64) multicall.Subscription {
	states := make([]multicall.CallState, len(inputs))
	for i, in := range inputs {
		if in == nil {
			states[i] = multicall.InvalidState
			continue
		}
		states[i] = valid(in[0])
	}
	return f.record(&openedChunk{method: method, inputs: inputs, listener: opts, gas: gasRequired, sub: &fakeSub{states: states, version: 1}})
}

func (f *fakeTransport) PollMultipleContractSingleData(addresses []string, _ *abi.ABI, method string, _ multicall.Args, opts multicall.ListenerOptions, gasRequired uint64) multicall.Subscription {
	states := make([]multicall.CallState, len(addresses))
	for i, addr := range addresses {
		states[i] = valid(addr)
	}
	return f.record(&openedChunk{method: method, addresses: addresses, listener: opts, gas: gasRequired, sub: &fakeSub{states: states, version: 1}})
}

func (f *fakeTransport) record(c *openedChunk) multicall.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, c)
	return c.sub
}

func (f *fakeTransport) chunks() []*openedChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*openedChunk(nil), f.opened...)
}

func pids(n int) []multicall.Args {
	inputs := make([]multicall.Args, n)
	for i := range inputs {
		inputs[i] = multicall.Args{i}
	}
	return inputs
}

var testContract = &multicall.Contract{ABI: &abi.ABI{}}
