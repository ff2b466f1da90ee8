package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.BlockPollInterval == 0 {
		cfg.BlockPollInterval = DefaultBlockPollInterval
	}
	if cfg.StatusLogInterval == 0 {
		cfg.StatusLogInterval = DefaultStatusLogInterval
	}
	// BlockLagThreshold default is 0, which is valid
	if cfg.LagRecoveryTimeout == 0 {
		cfg.LagRecoveryTimeout = DefaultLagRecoveryTimeout
	}
	if cfg.UpstreamMessageTimeout == 0 {
		cfg.UpstreamMessageTimeout = DefaultUpstreamMessageTimeout
	}
	if cfg.UpstreamReconnectInterval == 0 {
		cfg.UpstreamReconnectInterval = DefaultUpstreamReconnectInterval
	}
	if cfg.DedupCacheSize == 0 {
		cfg.DedupCacheSize = DefaultDedupCacheSize
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}

	mc := &cfg.Multicall
	if mc.PageSize == 0 {
		mc.PageSize = DefaultPageSize
	}
	if mc.MaxChunks == 0 {
		mc.MaxChunks = DefaultMaxChunks
	}
	if mc.SoftCeiling == 0 {
		mc.SoftCeiling = DefaultSoftCeiling
	}
	if mc.ExtendedMaxChunks == 0 {
		mc.ExtendedMaxChunks = DefaultExtendedMaxChunks
	}
	if mc.ExtendedSoftCeiling == 0 {
		mc.ExtendedSoftCeiling = DefaultExtendedSoftCeiling
	}
	if mc.Overflow == "" {
		mc.Overflow = DefaultOverflow
	}
	if mc.ChunkGasLimit == 0 {
		mc.ChunkGasLimit = DefaultChunkGasLimit
	}
	if mc.DefaultGasRequired == 0 {
		mc.DefaultGasRequired = DefaultGasRequired
	}
	if mc.CacheSize == 0 {
		mc.CacheSize = DefaultResultCacheSize
	}

	if cb := cfg.CircuitBreaker; cb != nil {
		if cb.FailureThreshold == 0 {
			cb.FailureThreshold = DefaultFailureThreshold
		}
		if cb.RecoveryTimeout == 0 {
			cb.RecoveryTimeout = DefaultRecoveryTimeout
		}
		if cb.HalfOpenMaxRequests == 0 {
			cb.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
		}
	}

	for i := range cfg.Upstreams {
		if cfg.Upstreams[i].Weight == 0 {
			cfg.Upstreams[i].Weight = DefaultUpstreamWeight
		}
		if cfg.Upstreams[i].Role == "" {
			cfg.Upstreams[i].Role = DefaultUpstreamRole
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Upstreams) == 0 {
		return errors.New("at least one upstream is required")
	}

	upstreamNames := make(map[string]bool)
	for j, upstream := range cfg.Upstreams {
		if upstream.Name == "" {
			return fmt.Errorf("upstream[%d]: name is required", j)
		}

		if upstreamNames[upstream.Name] {
			return fmt.Errorf("duplicate upstream name '%s'", upstream.Name)
		}
		upstreamNames[upstream.Name] = true

		if upstream.RPCURL == "" {
			return fmt.Errorf("upstream '%s': rpcUrl is required", upstream.Name)
		}

		if upstream.Weight <= 0 {
			return fmt.Errorf("upstream '%s': weight must be positive", upstream.Name)
		}

		if upstream.Role != RoleMain && upstream.Role != RoleFallback {
			return fmt.Errorf("upstream '%s': role must be 'main' or 'fallback'", upstream.Name)
		}
	}

	if !common.IsHexAddress(cfg.MulticallAddress) {
		return fmt.Errorf("multicallAddress must be a hex address")
	}
	if !common.IsHexAddress(cfg.MinichefAddress) {
		return fmt.Errorf("minichefAddress must be a hex address")
	}
	if cfg.Account != "" && !common.IsHexAddress(cfg.Account) {
		return fmt.Errorf("account must be a hex address")
	}
	if cfg.EmissionToken != "" && !common.IsHexAddress(cfg.EmissionToken) {
		return fmt.Errorf("emissionToken must be a hex address")
	}
	if cfg.SnapshotInterval < 0 {
		return fmt.Errorf("snapshotInterval must be non-negative")
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.BlockPollInterval < 0 {
		return fmt.Errorf("blockPollInterval must be non-negative")
	}

	if cfg.DedupCacheSize < 0 {
		return fmt.Errorf("dedupCacheSize must be non-negative")
	}

	if cfg.RetryMaxAttempts < 0 {
		return fmt.Errorf("retryMaxAttempts must be non-negative")
	}

	mc := cfg.Multicall
	if mc.PageSize < 1 {
		return fmt.Errorf("multicall.pageSize must be positive")
	}
	if mc.MaxChunks < 1 || mc.ExtendedMaxChunks < 1 {
		return fmt.Errorf("multicall.maxChunks and multicall.extendedMaxChunks must be positive")
	}
	if mc.Overflow != OverflowTruncate && mc.Overflow != OverflowExpand {
		return fmt.Errorf("multicall.overflow must be 'truncate' or 'expand'")
	}
	if mc.DefaultGasRequired > mc.ChunkGasLimit {
		return fmt.Errorf("multicall.defaultGasRequired must not exceed multicall.chunkGasLimit")
	}
	if mc.CacheSize < 0 {
		return fmt.Errorf("multicall.cacheSize must be non-negative")
	}

	for i, token := range cfg.Tokens {
		if !common.IsHexAddress(token.Address) {
			return fmt.Errorf("tokens[%d]: address must be a hex address", i)
		}
		if token.Decimals < 0 || token.Decimals > 36 {
			return fmt.Errorf("tokens[%d]: decimals must be between 0 and 36", i)
		}
		if token.PriceUSD != "" {
			if _, err := decimal.NewFromString(token.PriceUSD); err != nil {
				return fmt.Errorf("tokens[%d]: invalid priceUsd: %w", i, err)
			}
		}
	}

	return nil
}

// configWithRetryDefault is used for proper default handling of retryEnabled
type configWithRetryDefault struct {
	Config
	RetryEnabledPtr *bool `json:"retryEnabled"`
}

// LoadWithDefaults reads and parses the configuration file with proper bool default handling
func LoadWithDefaults(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document
func Parse(data []byte) (*Config, error) {
	var rawCfg configWithRetryDefault
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &rawCfg.Config

	if rawCfg.RetryEnabledPtr != nil {
		cfg.RetryEnabled = *rawCfg.RetryEnabledPtr
	} else {
		cfg.RetryEnabled = DefaultRetryEnabled
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
