package jsonrpc

import (
	"encoding/json"
	"strings"
	"sync/atomic"
)

// Version is the JSON-RPC version
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// Server error codes range: -32000 to -32099
	CodeServerError = -32000

	// CodeExecutionReverted is returned by geth-style nodes for reverted eth_call
	CodeExecutionReverted = 3
)

// Methods issued by farmcall against its upstreams
const (
	MethodCall        = "eth_call"
	MethodBlockNumber = "eth_blockNumber"
	MethodChainID     = "eth_chainId"
	MethodSubscribe   = "eth_subscribe"
	MethodUnsubscribe = "eth_unsubscribe"
	SubNewHeads       = "newHeads"
	BlockTagLatest    = "latest"
)

var idCounter atomic.Uint64

// NextID returns a process-unique numeric request ID
func NextID() ID {
	return NewIDInt(int64(idCounter.Add(1)))
}

// ID represents a JSON-RPC request/response ID
// It can be a string, number, or null
type ID struct {
	value interface{}
}

// NewIDString creates an ID from a string
func NewIDString(s string) ID {
	return ID{value: s}
}

// NewIDInt creates an ID from an integer
func NewIDInt(n int64) ID {
	return ID{value: n}
}

// IsNull returns true if the ID is null
func (id ID) IsNull() bool {
	return id.value == nil
}

// Value returns the underlying value
func (id ID) Value() interface{} {
	return id.value
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &id.value)
}

// Error represents a JSON-RPC error
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new JSON-RPC error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// nonRetryableMessages are logical failures of the call itself
var nonRetryableMessages = []string{
	"execution reverted",
	"invalid opcode",
	"out of gas",
	"invalid argument",
}

// IsRetryable reports whether another upstream might answer differently.
// MethodNotFound stays retryable since providers differ in what they expose.
func (e *Error) IsRetryable() bool {
	if e == nil {
		return false
	}

	switch e.Code {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams, CodeExecutionReverted:
		return false
	}

	msg := strings.ToLower(e.Message)
	for _, m := range nonRetryableMessages {
		if strings.Contains(msg, m) {
			return false
		}
	}
	return true
}

// CallArgs is the transaction object of an eth_call
type CallArgs struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Gas  string `json:"gas,omitempty"`
	Data string `json:"data"`
}

// SubscriptionNotification represents a subscription event notification
type SubscriptionNotification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  SubscriptionParams `json:"params"`
}

// SubscriptionParams contains the subscription notification parameters
type SubscriptionParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// BlockHeader is the subset of a newHeads payload farmcall reads
type BlockHeader struct {
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
	Number     string `json:"number"`
	Timestamp  string `json:"timestamp"`
}
