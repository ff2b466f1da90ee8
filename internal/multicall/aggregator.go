package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller executes a read-only contract call
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Aggregator runs a batch of calls in one round trip
type Aggregator interface {
	TryBlockAndAggregate(ctx context.Context, calls []Call) (*AggregateResult, error)
}

// AggregateResult is the decoded tryBlockAndAggregate output
type AggregateResult struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Results     []CallResult
}

// CallResult is the per-call outcome reported by the aggregator contract
type CallResult struct {
	Success    bool
	ReturnData []byte
}

type multicall2Call struct {
	Target   common.Address
	CallData []byte
}

// Multicall2 calls tryBlockAndAggregate on a deployed Multicall2 contract
type Multicall2 struct {
	address common.Address
	abi     *abi.ABI
	caller  ContractCaller
}

// NewMulticall2 creates an aggregator bound to the contract at address
func NewMulticall2(address common.Address, caller ContractCaller) (*Multicall2, error) {
	parsed, err := ParseABI(Multicall2ABI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse multicall ABI: %w", err)
	}
	return &Multicall2{address: address, abi: parsed, caller: caller}, nil
}

// TryBlockAndAggregate sends calls with requireSuccess=false so one failing
// call does not fail its siblings
func (m *Multicall2) TryBlockAndAggregate(ctx context.Context, calls []Call) (*AggregateResult, error) {
	packedCalls := make([]multicall2Call, len(calls))
	for i, c := range calls {
		packedCalls[i] = multicall2Call{Target: c.Address, CallData: c.CallData}
	}

	input, err := m.abi.Pack(methodTryBlockAndAggregate, false, packedCalls)
	if err != nil {
		return nil, fmt.Errorf("error packing aggregated call data: %w", err)
	}

	output, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &m.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("error calling multicall contract: %w", err)
	}

	values, err := m.abi.Unpack(methodTryBlockAndAggregate, output)
	if err != nil {
		return nil, fmt.Errorf("error unpacking aggregated response data: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected output count %d", len(values))
	}

	blockNumber := *abi.ConvertType(values[0], new(*big.Int)).(**big.Int)
	blockHash := *abi.ConvertType(values[1], new([32]byte)).(*[32]byte)
	results := *abi.ConvertType(values[2], new([]CallResult)).(*[]CallResult)

	if len(results) != len(calls) {
		return nil, fmt.Errorf("result count mismatch: sent %d calls, got %d results", len(calls), len(results))
	}
	if !blockNumber.IsUint64() {
		return nil, fmt.Errorf("block number %s out of range", blockNumber)
	}

	return &AggregateResult{
		BlockNumber: blockNumber.Uint64(),
		BlockHash:   blockHash,
		Results:     results,
	}, nil
}
