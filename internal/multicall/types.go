package multicall

import (
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Call is one read against a contract, already ABI encoded
type Call struct {
	Address     common.Address
	CallData    []byte
	GasRequired uint64
}

// Key identifies the call in the result store: address-0xcalldata[-gas]
func (c Call) Key() string {
	key := strings.ToLower(c.Address.Hex()) + "-" + hexutil.Encode(c.CallData)
	if c.GasRequired > 0 {
		key += "-" + strconv.FormatUint(c.GasRequired, 10)
	}
	return key
}

// Args are the positional arguments of one call. A nil Args marks an input
// that is not known yet and produces an Invalid state.
type Args []interface{}

// ListenerOptions sets how often a call is refreshed
type ListenerOptions struct {
	// BlocksPerFetch is the number of blocks a result stays fresh
	BlocksPerFetch uint64
}

var (
	// DefaultListenerOptions refreshes on every block
	DefaultListenerOptions = ListenerOptions{BlocksPerFetch: 1}

	// NeverReload fetches once and keeps the result
	NeverReload = ListenerOptions{BlocksPerFetch: math.MaxUint64}
)

func (o ListenerOptions) normalized() ListenerOptions {
	if o.BlocksPerFetch == 0 {
		return DefaultListenerOptions
	}
	return o
}

// StateKind tags a CallState
type StateKind int

const (
	StateInvalid StateKind = iota
	StateLoading
	StateValid
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateLoading:
		return "loading"
	case StateValid:
		return "valid"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}

// MarshalText renders the kind as its name in JSON output
func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// CallState is the observed outcome of one call position
type CallState struct {
	Kind        StateKind     `json:"kind"`
	Result      []interface{} `json:"result,omitempty"`
	BlockNumber uint64        `json:"blockNumber,omitempty"`
	Syncing     bool          `json:"syncing,omitempty"`
	Err         string        `json:"error,omitempty"`
}

var (
	InvalidState = CallState{Kind: StateInvalid}
	LoadingState = CallState{Kind: StateLoading}
)

// IsValid reports whether the state carries a decoded result
func (s CallState) IsValid() bool {
	return s.Kind == StateValid
}

// IsLoading reports whether the call has not produced a result yet
func (s CallState) IsLoading() bool {
	return s.Kind == StateLoading
}

// Contract is a handle to a deployed contract and its ABI
type Contract struct {
	Address common.Address
	ABI     *abi.ABI
}

// NewContract creates a contract handle
func NewContract(address common.Address, contractABI *abi.ABI) *Contract {
	return &Contract{Address: address, ABI: contractABI}
}

// Subscription is a live view of a list of calls. States is cheap to call
// repeatedly: it only rebuilds when Version changes.
type Subscription interface {
	// States returns one state per requested position
	States() []CallState
	// Version changes whenever any position may have changed
	Version() uint64
	// Close removes the listeners; the subscription stops updating
	Close()
}
