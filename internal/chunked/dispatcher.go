package chunked

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/rs/zerolog"

	"farmcall/internal/multicall"
)

// Transport opens multicall subscriptions. multicall.Poller implements it.
type Transport interface {
	PollSingleContractMultipleData(contract *multicall.Contract, method string, inputs []multicall.Args, opts multicall.ListenerOptions, gasRequired uint64) multicall.Subscription
	PollMultipleContractSingleData(addresses []string, contractABI *abi.ABI, method string, args multicall.Args, opts multicall.ListenerOptions, gasRequired uint64) multicall.Subscription
}

// Options configures one chunked batch
type Options struct {
	Limits Limits
	// Listener is the cadence of every chunk without an override
	Listener multicall.ListenerOptions
	// ChunkListeners[i] overrides the cadence of chunk i when set
	ChunkListeners []multicall.ListenerOptions
	GasRequired    uint64
}

func (o Options) listenerFor(chunk int) multicall.ListenerOptions {
	if chunk < len(o.ChunkListeners) && o.ChunkListeners[chunk].BlocksPerFetch > 0 {
		return o.ChunkListeners[chunk]
	}
	return o.Listener
}

// Dispatcher creates chunked batches over a shared transport
type Dispatcher struct {
	transport Transport
	counter   CallCounter
	logger    zerolog.Logger
}

// NewDispatcher creates a new Dispatcher. A nil counter records nothing.
func NewDispatcher(transport Transport, counter CallCounter, logger zerolog.Logger) *Dispatcher {
	if counter == nil {
		counter = MultiCounter{}
	}
	return &Dispatcher{
		transport: transport,
		counter:   counter,
		logger:    logger.With().Str("component", "chunked").Logger(),
	}
}

// SingleContractBatch calls one method on one contract for a list of inputs
type SingleContractBatch struct {
	batch[multicall.Args]
}

// SingleContract prepares a batch calling method on contract once per input.
// A nil contract yields Invalid states without touching the transport.
func (d *Dispatcher) SingleContract(contract *multicall.Contract, method string, opts Options) *SingleContractBatch {
	b := &SingleContractBatch{}
	b.init(d, method, opts, formatArgs, func(chunk []multicall.Args, listener multicall.ListenerOptions) multicall.Subscription {
		if contract == nil || contract.ABI == nil {
			return invalidPart(len(chunk))
		}
		return d.transport.PollSingleContractMultipleData(contract, method, chunk, listener, opts.GasRequired)
	})
	return b
}

// Poll returns one state per input. Chunks are reopened only when inputs
// differ by value from the previous call.
func (b *SingleContractBatch) Poll(inputs []multicall.Args) []multicall.CallState {
	return b.poll(inputs)
}

// MultipleContractBatch calls the same method with the same args on a list of addresses
type MultipleContractBatch struct {
	batch[string]
}

// MultipleContract prepares a batch calling method(args) on every address.
// A nil ABI yields Invalid states without touching the transport.
func (d *Dispatcher) MultipleContract(contractABI *abi.ABI, method string, args multicall.Args, opts Options) *MultipleContractBatch {
	b := &MultipleContractBatch{}
	b.init(d, method, opts, formatAddress, func(chunk []string, listener multicall.ListenerOptions) multicall.Subscription {
		if contractABI == nil {
			return invalidPart(len(chunk))
		}
		return d.transport.PollMultipleContractSingleData(chunk, contractABI, method, args, listener, opts.GasRequired)
	})
	return b
}

// Poll returns one state per address
func (b *MultipleContractBatch) Poll(addresses []string) []multicall.CallState {
	return b.poll(addresses)
}

type batch[T any] struct {
	method  string
	opts    Options
	counter CallCounter
	logger  zerolog.Logger
	format  func(T) string
	open    func(chunk []T, listener multicall.ListenerOptions) multicall.Subscription

	mu          sync.Mutex
	key         string
	count       int
	started     bool
	closed      bool
	reassembler *Reassembler
}

func (b *batch[T]) init(d *Dispatcher, method string, opts Options, format func(T) string, open func([]T, multicall.ListenerOptions) multicall.Subscription) {
	b.method = method
	b.opts = opts
	b.counter = d.counter
	b.logger = d.logger.With().Str("method", method).Logger()
	b.format = format
	b.open = open
}

func (b *batch[T]) poll(items []T) []multicall.CallState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		if b.reassembler == nil {
			return []multicall.CallState{}
		}
		return b.reassembler.States()
	}

	key := b.fingerprint(items)
	if !b.started || key != b.key || len(items) != b.count {
		b.dispatch(items, key)
	}
	return b.reassembler.States()
}

// fingerprint is the dispatch key of items
func (b *batch[T]) fingerprint(items []T) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = b.format(item)
	}
	return DispatchKey(b.method, parts)
}

// dispatch replaces the open chunks with chunks for items
func (b *batch[T]) dispatch(items []T, key string) {
	if b.reassembler != nil {
		b.reassembler.close()
	}

	b.counter.Record(b.method, key)
	b.key = key
	b.count = len(items)
	b.started = true

	chunks := Plan(items, b.opts.Limits, b.logger)
	parts := make([]part, len(chunks))
	for i, chunk := range chunks {
		parts[i] = part{sub: b.openChunk(chunk, b.opts.listenerFor(i)), length: len(chunk)}
	}
	b.reassembler = newReassembler(parts)

	b.logger.Debug().
		Int("calls", len(items)).
		Int("chunks", len(chunks)).
		Msg("dispatched chunked batch")
}

func (b *batch[T]) openChunk(chunk []T, listener multicall.ListenerOptions) multicall.Subscription {
	if len(chunk) == 0 {
		return staticPart{states: []multicall.CallState{}}
	}
	return b.open(chunk, listener)
}

// Close tears down every chunk subscription. Later polls return the last states.
func (b *batch[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.reassembler != nil {
		b.reassembler.close()
	}
}

// formatAddress renders one address for the dispatch key
func formatAddress(address string) string {
	if address == "" {
		return "undefined"
	}
	return strings.ToLower(address)
}

// formatArgs renders one input tuple for the dispatch key
func formatArgs(args multicall.Args) string {
	if args == nil {
		return "undefined"
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
