package config

import "time"

// Role defines the upstream role type
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Overflow policies for chunk slot capacity
const (
	OverflowTruncate = "truncate"
	OverflowExpand   = "expand"
)

// Config represents the main configuration structure
type Config struct {
	Host                      string                `json:"host"`
	Port                      int                   `json:"port"`
	LogLevel                  string                `json:"logLevel"`
	RequestTimeout            int                   `json:"requestTimeout"`    // ms
	BlockPollInterval         int                   `json:"blockPollInterval"` // ms
	StatusLogInterval         int                   `json:"statusLogInterval"` // ms
	BlockLagThreshold         uint64                `json:"blockLagThreshold"`
	LagRecoveryTimeout        int                   `json:"lagRecoveryTimeout"`        // ms
	UpstreamMessageTimeout    int                   `json:"upstreamMessageTimeout"`    // ms - read timeout on the newHeads WebSocket
	UpstreamReconnectInterval int                   `json:"upstreamReconnectInterval"` // ms
	DedupCacheSize            int                   `json:"dedupCacheSize"`
	RetryEnabled              bool                  `json:"retryEnabled"`
	RetryMaxAttempts          int                   `json:"retryMaxAttempts"`
	CircuitBreaker            *CircuitBreakerConfig `json:"circuitBreaker,omitempty"`
	ChainID                   uint64                `json:"chainId"`
	MulticallAddress          string                `json:"multicallAddress"`
	MinichefAddress           string                `json:"minichefAddress"`
	Account                   string                `json:"account,omitempty"`
	EmissionToken             string                `json:"emissionToken,omitempty"`
	SnapshotInterval          int                   `json:"snapshotInterval"` // ms
	Multicall                 MulticallConfig       `json:"multicall"`
	Tokens                    []TokenConfig         `json:"tokens"`
	Upstreams                 []UpstreamConfig      `json:"upstreams"`
}

// MulticallConfig controls chunking and the polling subsystem
type MulticallConfig struct {
	PageSize            int    `json:"pageSize"`
	MaxChunks           int    `json:"maxChunks"`
	SoftCeiling         int    `json:"softCeiling"`
	ExtendedMaxChunks   int    `json:"extendedMaxChunks"`
	ExtendedSoftCeiling int    `json:"extendedSoftCeiling"`
	Overflow            string `json:"overflow"`
	ChunkGasLimit       uint64 `json:"chunkGasLimit"`
	DefaultGasRequired  uint64 `json:"defaultGasRequired"`
	CacheSize           int    `json:"cacheSize"`
}

// CircuitBreakerConfig represents per-upstream circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled             bool `json:"enabled"`
	FailureThreshold    int  `json:"failureThreshold"`
	RecoveryTimeout     int  `json:"recoveryTimeout"` // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests"`
}

// TokenConfig describes a token known to the static price oracle
type TokenConfig struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	PriceUSD string `json:"priceUsd"`
}

// UpstreamConfig represents a single upstream configuration
type UpstreamConfig struct {
	Name   string `json:"name"`
	RPCURL string `json:"rpcUrl"`
	WSURL  string `json:"wsUrl"`
	Weight int    `json:"weight"`
	Role   Role   `json:"role"`
}

// Default values
const (
	DefaultHost                      = "localhost"
	DefaultPort                      = 8080
	DefaultLogLevel                  = "info"
	DefaultRequestTimeout            = 5000 // ms
	DefaultBlockPollInterval         = 4000 // ms
	DefaultStatusLogInterval         = 30000
	DefaultBlockLagThreshold         = uint64(0)
	DefaultLagRecoveryTimeout        = 2000  // ms - time for lagging upstreams to catch up before marking unhealthy
	DefaultUpstreamMessageTimeout    = 60000 // ms
	DefaultUpstreamReconnectInterval = 5000  // ms
	DefaultDedupCacheSize            = 1024
	DefaultRetryEnabled              = true
	DefaultRetryMaxAttempts          = 3
	DefaultUpstreamWeight            = 1
	DefaultUpstreamRole              = RoleMain
	DefaultSnapshotInterval          = 1000 // ms

	DefaultPageSize            = 50
	DefaultMaxChunks           = 6
	DefaultSoftCeiling         = 300
	DefaultExtendedMaxChunks   = 14
	DefaultExtendedSoftCeiling = 700
	DefaultOverflow            = OverflowTruncate
	DefaultChunkGasLimit       = uint64(100_000_000)
	DefaultGasRequired         = uint64(1_000_000)
	DefaultResultCacheSize     = 10000

	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30000 // ms
	DefaultHalfOpenMaxRequests = 2
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetBlockPollIntervalDuration returns the block poll interval as time.Duration
func (c *Config) GetBlockPollIntervalDuration() time.Duration {
	return time.Duration(c.BlockPollInterval) * time.Millisecond
}

// GetStatusLogIntervalDuration returns status log interval as time.Duration
func (c *Config) GetStatusLogIntervalDuration() time.Duration {
	return time.Duration(c.StatusLogInterval) * time.Millisecond
}

// GetLagRecoveryTimeoutDuration returns lag recovery timeout as time.Duration
func (c *Config) GetLagRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.LagRecoveryTimeout) * time.Millisecond
}

// GetUpstreamMessageTimeoutDuration returns upstream message timeout as time.Duration
func (c *Config) GetUpstreamMessageTimeoutDuration() time.Duration {
	return time.Duration(c.UpstreamMessageTimeout) * time.Millisecond
}

// GetUpstreamReconnectIntervalDuration returns upstream reconnect interval as time.Duration
func (c *Config) GetUpstreamReconnectIntervalDuration() time.Duration {
	return time.Duration(c.UpstreamReconnectInterval) * time.Millisecond
}

// GetSnapshotIntervalDuration returns the farm snapshot refresh interval as time.Duration
func (c *Config) GetSnapshotIntervalDuration() time.Duration {
	return time.Duration(c.SnapshotInterval) * time.Millisecond
}

// IsCircuitBreakerEnabled returns true if the circuit breaker is configured and enabled
func (c *Config) IsCircuitBreakerEnabled() bool {
	return c.CircuitBreaker != nil && c.CircuitBreaker.Enabled
}

// HasAccount returns true if a wallet account is configured
func (c *Config) HasAccount() bool {
	return c.Account != ""
}

// GetRecoveryTimeoutDuration returns the breaker recovery timeout as time.Duration
func (c *CircuitBreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.RecoveryTimeout) * time.Millisecond
}
