package multicall

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Multicall2ABI is the subset of the Multicall2 interface used for polling
const Multicall2ABI = `[
	{
		"inputs": [
			{"internalType": "bool", "name": "requireSuccess", "type": "bool"},
			{
				"components": [
					{"internalType": "address", "name": "target", "type": "address"},
					{"internalType": "bytes", "name": "callData", "type": "bytes"}
				],
				"internalType": "struct Multicall2.Call[]",
				"name": "calls",
				"type": "tuple[]"
			}
		],
		"name": "tryBlockAndAggregate",
		"outputs": [
			{"internalType": "uint256", "name": "blockNumber", "type": "uint256"},
			{"internalType": "bytes32", "name": "blockHash", "type": "bytes32"},
			{
				"components": [
					{"internalType": "bool", "name": "success", "type": "bool"},
					{"internalType": "bytes", "name": "returnData", "type": "bytes"}
				],
				"internalType": "struct Multicall2.Result[]",
				"name": "returnData",
				"type": "tuple[]"
			}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getBlockNumber",
		"outputs": [{"internalType": "uint256", "name": "blockNumber", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const methodTryBlockAndAggregate = "tryBlockAndAggregate"

// ParseABI parses a JSON ABI definition
func ParseABI(definition string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
