package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"farmcall/internal/balancer"
	"farmcall/internal/jsonrpc"
	"farmcall/internal/upstream"
)

// ErrAllUpstreamsFailed is returned when all upstreams fail
var ErrAllUpstreamsFailed = errors.New("all upstreams failed")

// ErrNoUpstreamsAvailable is returned when no upstreams are available
var ErrNoUpstreamsAvailable = errors.New("no upstreams available")

const (
	outcomeOK       = "ok"
	outcomeRPCError = "rpc_error"
	outcomeFailed   = "transport_error"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled     bool
	MaxAttempts int
}

// MainProvider reports the selectable main upstreams
type MainProvider interface {
	GetHealthyMain() []*upstream.Upstream
}

// Executor sends read-only JSON-RPC calls with retry across upstreams
type Executor struct {
	balancer balancer.Selector
	pool     MainProvider
	config   RetryConfig
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewExecutor creates a new Executor
func NewExecutor(b balancer.Selector, pool MainProvider, cfg RetryConfig, metrics *Metrics, logger zerolog.Logger) *Executor {
	return &Executor{
		balancer: b,
		pool:     pool,
		config:   cfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "ethrpc").Logger(),
	}
}

// Execute sends a request, trying main upstreams first and then fallbacks.
// A non-retryable JSON-RPC error is returned as *jsonrpc.Error without further attempts.
func (e *Executor) Execute(ctx context.Context, req *jsonrpc.Request) (json.RawMessage, error) {
	tried := make(map[string]bool)

	maxAttempts := e.config.MaxAttempts
	if !e.config.Enabled || maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	usedFallback := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !usedFallback && e.isUsingFallback(tried) {
			usedFallback = true
			e.logger.Warn().
				Str("method", req.Method).
				Int("triedMain", len(tried)).
				Msg("all main upstreams failed, falling back to fallback upstreams")
		}

		resp, upstreamName, err := e.executeOnce(ctx, req, tried)
		if errors.Is(err, ErrNoUpstreamsAvailable) {
			if lastErr == nil {
				return nil, err
			}
			break
		}

		if err == nil {
			if !resp.HasError() {
				return resp.Result, nil
			}
			if !resp.IsRetryableError() {
				return nil, resp.Error
			}
			err = resp.Error
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		e.logger.Warn().
			Int("attempt", attempt+1).
			Int("maxAttempts", maxAttempts).
			Err(err).
			Str("method", req.Method).
			Str("upstream", upstreamName).
			Bool("usingFallback", usedFallback).
			Msg("request failed, retrying")
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllUpstreamsFailed, lastErr)
	}
	return nil, ErrAllUpstreamsFailed
}

// isUsingFallback checks if all main upstreams have been tried
func (e *Executor) isUsingFallback(tried map[string]bool) bool {
	if e.pool == nil {
		return false
	}
	mainUpstreams := e.pool.GetHealthyMain()
	for _, u := range mainUpstreams {
		if !tried[u.Name()] {
			return false
		}
	}
	return len(mainUpstreams) > 0
}

func (e *Executor) executeOnce(ctx context.Context, req *jsonrpc.Request, exclude map[string]bool) (*jsonrpc.Response, string, error) {
	u := e.balancer.Next(exclude)
	if u == nil {
		return nil, "", ErrNoUpstreamsAvailable
	}
	exclude[u.Name()] = true

	start := time.Now()
	resp, err := u.Execute(ctx, req)
	elapsed := time.Since(start).Seconds()

	switch {
	case err != nil:
		u.RecordFailure()
		e.metrics.observe(u.Name(), req.Method, outcomeFailed, elapsed)
		e.metrics.setBreaker(u.Name(), u.BreakerState())
		e.logger.Warn().
			Err(err).
			Str("upstream", u.Name()).
			Str("method", req.Method).
			Bool("isFallback", u.IsFallback()).
			Msg("request failed")
		return nil, u.Name(), err
	case resp.HasError():
		if resp.IsRetryableError() {
			u.RecordFailure()
		} else {
			u.RecordSuccess()
		}
		e.metrics.observe(u.Name(), req.Method, outcomeRPCError, elapsed)
		e.logger.Debug().
			Str("upstream", u.Name()).
			Str("method", req.Method).
			Int("errorCode", resp.Error.Code).
			Str("errorMessage", resp.Error.Message).
			Msg("RPC error response")
	default:
		u.RecordSuccess()
		e.metrics.observe(u.Name(), req.Method, outcomeOK, elapsed)
	}
	e.metrics.setBreaker(u.Name(), u.BreakerState())

	return resp, u.Name(), nil
}

// CallContract executes an eth_call at the given block, or latest when blockNumber is nil
func (e *Executor) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil {
		return nil, errors.New("eth_call requires a target address")
	}

	args := jsonrpc.CallArgs{
		To:   msg.To.Hex(),
		Data: hexutil.Encode(msg.Data),
	}
	if msg.From != (common.Address{}) {
		args.From = msg.From.Hex()
	}
	if msg.Gas > 0 {
		args.Gas = hexutil.EncodeUint64(msg.Gas)
	}

	blockTag := jsonrpc.BlockTagLatest
	if blockNumber != nil {
		blockTag = hexutil.EncodeBig(blockNumber)
	}

	req, err := jsonrpc.NewCallRequest(args, blockTag)
	if err != nil {
		return nil, err
	}

	raw, err := e.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode eth_call result: %w", err)
	}
	return out, nil
}

// BlockNumber returns the latest block number reported by a selected upstream
func (e *Executor) BlockNumber(ctx context.Context) (uint64, error) {
	return e.executeUint64(ctx, jsonrpc.MethodBlockNumber)
}

// ChainID returns the chain id reported by a selected upstream
func (e *Executor) ChainID(ctx context.Context) (uint64, error) {
	return e.executeUint64(ctx, jsonrpc.MethodChainID)
}

// executeUint64 runs a parameterless method whose result is a hex quantity
func (e *Executor) executeUint64(ctx context.Context, method string) (uint64, error) {
	req, err := jsonrpc.NewRequest(method, nil, jsonrpc.NextID())
	if err != nil {
		return 0, err
	}

	raw, err := e.Execute(ctx, req)
	if err != nil {
		return 0, err
	}

	var n hexutil.Uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return uint64(n), nil
}
