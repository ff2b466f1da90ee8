package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"farmcall/internal/config"
	"farmcall/internal/jsonrpc"
)

// Upstream represents a single JSON-RPC node serving eth_call and eth_blockNumber
type Upstream struct {
	name   string
	rpcURL string
	wsURL  string
	weight int
	role   Role

	httpClient *http.Client
	status     *Status
	breaker    *CircuitBreaker
	logger     zerolog.Logger
}

// Config for creating a new Upstream
type Config struct {
	Name           string
	RPCURL         string
	WSURL          string
	Weight         int
	Role           Role
	RequestTimeout time.Duration
	CircuitBreaker CircuitBreakerConfig
	Logger         zerolog.Logger
}

// NewUpstream creates a new Upstream instance
func NewUpstream(cfg Config) *Upstream {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Upstream{
		name:   cfg.Name,
		rpcURL: cfg.RPCURL,
		wsURL:  cfg.WSURL,
		weight: cfg.Weight,
		role:   cfg.Role,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		status:  NewStatus(),
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
	}
}

// NewUpstreamFromConfig creates an Upstream from config
func NewUpstreamFromConfig(cfg config.UpstreamConfig, globalCfg *config.Config, logger zerolog.Logger) *Upstream {
	var cb CircuitBreakerConfig
	if globalCfg.IsCircuitBreakerEnabled() {
		cb = CircuitBreakerConfig{
			Enabled:             true,
			FailureThreshold:    globalCfg.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:     globalCfg.CircuitBreaker.GetRecoveryTimeoutDuration(),
			HalfOpenMaxRequests: globalCfg.CircuitBreaker.HalfOpenMaxRequests,
		}
	}

	return NewUpstream(Config{
		Name:           cfg.Name,
		RPCURL:         cfg.RPCURL,
		WSURL:          cfg.WSURL,
		Weight:         cfg.Weight,
		Role:           RoleFromConfig(cfg.Role),
		RequestTimeout: globalCfg.GetRequestTimeoutDuration(),
		CircuitBreaker: cb,
		Logger:         logger,
	})
}

// Name returns the upstream name
func (u *Upstream) Name() string {
	return u.name
}

// WSURL returns the WebSocket URL used for newHeads
func (u *Upstream) WSURL() string {
	return u.wsURL
}

// HasWS returns true if WebSocket URL is configured
func (u *Upstream) HasWS() bool {
	return u.wsURL != ""
}

// Weight returns the weight for load balancing
func (u *Upstream) Weight() int {
	return u.weight
}

// IsMain returns true if this is a main upstream
func (u *Upstream) IsMain() bool {
	return u.role == RoleMain
}

// IsFallback returns true if this is a fallback upstream
func (u *Upstream) IsFallback() bool {
	return u.role == RoleFallback
}

// IsHealthy returns the health status
func (u *Upstream) IsHealthy() bool {
	return u.status.IsHealthy()
}

// SetHealthy sets the health status
func (u *Upstream) SetHealthy(healthy bool) {
	u.status.SetHealthy(healthy)
}

// IsSelectable reports whether the upstream is healthy and its breaker admits traffic
func (u *Upstream) IsSelectable() bool {
	return u.status.IsHealthy() && u.breaker.AllowRequest()
}

// GetCurrentBlock returns the current block number
func (u *Upstream) GetCurrentBlock() uint64 {
	return u.status.GetCurrentBlock()
}

// UpdateBlock updates the block if the new value is higher
func (u *Upstream) UpdateBlock(block uint64) bool {
	return u.status.UpdateBlock(block)
}

// GetLastBlockTime returns the time of the last block update
func (u *Upstream) GetLastBlockTime() time.Time {
	return u.status.GetLastBlockTime()
}

// SwapRequestCount returns the current request count and resets it to zero
func (u *Upstream) SwapRequestCount() uint64 {
	return u.status.SwapRequestCount()
}

// RecordSuccess feeds a successful round trip into the circuit breaker
func (u *Upstream) RecordSuccess() {
	u.breaker.RecordSuccess()
}

// RecordFailure feeds a failed round trip into the circuit breaker
func (u *Upstream) RecordFailure() {
	u.breaker.RecordFailure()
}

// BreakerState returns the circuit breaker state
func (u *Upstream) BreakerState() BreakerState {
	return u.breaker.State()
}

// BreakerTrips returns how many times the circuit breaker opened
func (u *Upstream) BreakerTrips() uint64 {
	return u.breaker.Trips()
}

// Execute sends a JSON-RPC request via HTTP
func (u *Upstream) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if u.rpcURL == "" {
		return nil, fmt.Errorf("HTTP RPC URL not configured for upstream %s", u.name)
	}

	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.rpcURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	u.status.IncrementRequestCount()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	return jsonrpc.ParseResponse(body)
}

// Close releases idle connections
func (u *Upstream) Close() {
	u.httpClient.CloseIdleConnections()
}
