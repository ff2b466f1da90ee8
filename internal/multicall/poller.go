package multicall

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// LatestBlock reports the current chain head
type LatestBlock interface {
	Latest() uint64
}

// Poller opens subscriptions against the store
type Poller struct {
	store  *Store
	blocks LatestBlock
	logger zerolog.Logger
}

// NewPoller creates a new Poller
func NewPoller(store *Store, blocks LatestBlock, logger zerolog.Logger) *Poller {
	return &Poller{
		store:  store,
		blocks: blocks,
		logger: logger.With().Str("component", "poller").Logger(),
	}
}

// PollSingleContractMultipleData calls method on one contract once per input
func (p *Poller) PollSingleContractMultipleData(contract *Contract, method string, inputs []Args, opts ListenerOptions, gasRequired uint64) Subscription {
	calls := make([]*Call, len(inputs))
	var fn *abi.Method

	if contract != nil && contract.ABI != nil {
		if m, ok := contract.ABI.Methods[method]; ok {
			fn = &m
			for i, in := range inputs {
				calls[i] = p.encode(contract.Address, fn, in, gasRequired)
			}
		} else {
			p.logger.Debug().Str("method", method).Msg("method not found in ABI")
		}
	}

	return p.open(calls, fn, opts)
}

// PollMultipleContractSingleData calls the same method with the same args on every address.
// Addresses that are not valid hex produce Invalid states.
func (p *Poller) PollMultipleContractSingleData(addresses []string, contractABI *abi.ABI, method string, args Args, opts ListenerOptions, gasRequired uint64) Subscription {
	calls := make([]*Call, len(addresses))
	var fn *abi.Method

	if contractABI != nil {
		if m, ok := contractABI.Methods[method]; ok {
			fn = &m
			data, err := packCall(fn, args)
			if err != nil {
				p.logger.Debug().Err(err).Str("method", method).Msg("failed to encode call")
			} else {
				for i, addr := range addresses {
					if !common.IsHexAddress(addr) {
						continue
					}
					calls[i] = &Call{
						Address:     common.HexToAddress(addr),
						CallData:    data,
						GasRequired: gasRequired,
					}
				}
			}
		}
	}

	return p.open(calls, fn, opts)
}

// PollSingleCall calls one method on one contract
func (p *Poller) PollSingleCall(contract *Contract, method string, args Args, opts ListenerOptions) Subscription {
	if args == nil {
		args = Args{}
	}
	return p.PollSingleContractMultipleData(contract, method, []Args{args}, opts, 0)
}

func (p *Poller) encode(address common.Address, fn *abi.Method, args Args, gasRequired uint64) *Call {
	if args == nil {
		return nil
	}
	data, err := packCall(fn, args)
	if err != nil {
		p.logger.Debug().Err(err).Str("method", fn.Name).Msg("failed to encode call")
		return nil
	}
	return &Call{Address: address, CallData: data, GasRequired: gasRequired}
}

// packCall encodes selector and arguments; a nil argument is rejected
func packCall(fn *abi.Method, args Args) ([]byte, error) {
	for i, a := range args {
		if a == nil {
			return nil, fmt.Errorf("argument %d of %s is nil", i, fn.Name)
		}
	}
	packed, err := fn.Inputs.Pack(args...)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, fn.ID...), packed...), nil
}

func (p *Poller) open(calls []*Call, fn *abi.Method, opts ListenerOptions) Subscription {
	s := &subscription{
		store:  p.store,
		blocks: p.blocks,
		calls:  calls,
		fn:     fn,
		opts:   opts.normalized(),
	}
	for _, c := range calls {
		if c != nil {
			s.valid = append(s.valid, *c)
			s.keys = append(s.keys, c.Key())
		}
	}
	p.store.AddListeners(s.valid, s.opts)
	return s
}

type subscription struct {
	store  *Store
	blocks LatestBlock
	calls  []*Call
	valid  []Call
	keys   []string
	fn     *abi.Method
	opts   ListenerOptions

	mu          sync.Mutex
	closed      bool
	built       bool
	memoVersion uint64
	memo        []CallState
}

// Version folds the store versions of every key with the chain head.
// Both only grow while the subscription is open, so the sum moves
// whenever any of them does.
func (s *subscription) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.memoVersion
	}
	return s.currentVersion()
}

func (s *subscription) currentVersion() uint64 {
	return s.store.VersionSum(s.keys) + s.blocks.Latest()
}

func (s *subscription) States() []CallState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.memo
	}

	version := s.currentVersion()
	if s.built && version == s.memoVersion {
		return s.memo
	}

	s.memo = s.build()
	s.memoVersion = version
	s.built = true
	return s.memo
}

func (s *subscription) build() []CallState {
	latest := s.blocks.Latest()
	states := make([]CallState, len(s.calls))
	for i, c := range s.calls {
		states[i] = s.toCallState(c, latest)
	}
	return states
}

func (s *subscription) toCallState(c *Call, latest uint64) CallState {
	if c == nil || s.fn == nil {
		return InvalidState
	}

	entry, ok := s.store.Get(c.Key())
	if !ok || entry.BlockNumber == 0 {
		return LoadingState
	}

	syncing := entry.BlockNumber < latest
	if entry.Failed || len(entry.Data) == 0 {
		return CallState{Kind: StateError, BlockNumber: entry.BlockNumber, Syncing: syncing, Err: "call failed"}
	}

	result, err := s.fn.Outputs.Unpack(entry.Data)
	if err != nil {
		return CallState{Kind: StateError, BlockNumber: entry.BlockNumber, Syncing: syncing, Err: err.Error()}
	}

	return CallState{Kind: StateValid, Result: result, BlockNumber: entry.BlockNumber, Syncing: syncing}
}

func (s *subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.built {
		s.memo = s.build()
		s.built = true
	}
	s.closed = true
	s.mu.Unlock()

	s.store.RemoveListeners(s.valid, s.opts)
}
