package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"farmcall/internal/balancer"
	"farmcall/internal/blockwatch"
	"farmcall/internal/cache"
	"farmcall/internal/chunked"
	"farmcall/internal/config"
	"farmcall/internal/ethrpc"
	"farmcall/internal/farm"
	"farmcall/internal/multicall"
	"farmcall/internal/upstream"
)

// Server represents the main server
type Server struct {
	cfg        *config.Config
	pool       *upstream.Pool
	executor   *ethrpc.Executor
	watcher    *blockwatch.Watcher
	results    cache.Cache
	updater    *multicall.Updater
	reader     *farm.Reader
	service    *farm.Service
	handler    *Handler
	httpServer *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     zerolog.Logger
}

// New wires upstreams, block tracking, the multicall layer and the farm service
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pool := upstream.NewPool(cfg, logger)
	executor := ethrpc.NewExecutor(
		balancer.NewWeightedRoundRobin(pool),
		pool,
		ethrpc.RetryConfig{Enabled: cfg.RetryEnabled, MaxAttempts: cfg.RetryMaxAttempts},
		ethrpc.NewMetrics(registry),
		logger,
	)

	watcher, err := blockwatch.NewWatcher(pool.GetAll(), blockwatch.Config{
		PollInterval:       cfg.GetBlockPollIntervalDuration(),
		StatusLogInterval:  cfg.GetStatusLogIntervalDuration(),
		BlockLagThreshold:  cfg.BlockLagThreshold,
		LagRecoveryTimeout: cfg.GetLagRecoveryTimeoutDuration(),
		MessageTimeout:     cfg.GetUpstreamMessageTimeoutDuration(),
		ReconnectInterval:  cfg.GetUpstreamReconnectIntervalDuration(),
		DedupCacheSize:     cfg.DedupCacheSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create block watcher: %w", err)
	}

	results, err := cache.NewMemoryCache(cfg.Multicall.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	store := multicall.NewStore(results)

	aggregator, err := multicall.NewMulticall2(common.HexToAddress(cfg.MulticallAddress), executor)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicall aggregator: %w", err)
	}
	updater := multicall.NewUpdater(store, aggregator, watcher, multicall.UpdaterConfig{
		ChunkGasLimit:      cfg.Multicall.ChunkGasLimit,
		DefaultGasRequired: cfg.Multicall.DefaultGasRequired,
	}, multicall.NewMetrics(registry), logger)
	poller := multicall.NewPoller(store, watcher, logger)

	counts := chunked.NewCounts()
	dispatcher := chunked.NewDispatcher(poller, chunked.MultiCounter{counts, chunked.NewPrometheusCounter(registry)}, logger)

	abis, err := farm.LoadABIs()
	if err != nil {
		return nil, err
	}
	simple, extended := chunked.LimitsFromConfig(cfg.Multicall)
	readerCfg := farm.ReaderConfig{
		MiniChef: common.HexToAddress(cfg.MinichefAddress),
		Simple:   simple,
		Extended: extended,
	}
	if cfg.HasAccount() {
		account := common.HexToAddress(cfg.Account)
		readerCfg.Account = &account
	}
	reader, err := farm.NewReader(poller, dispatcher, abis, readerCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create farm reader: %w", err)
	}

	oracle, err := farm.NewStaticPriceOracle(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to create price oracle: %w", err)
	}
	serviceCfg := farm.ServiceConfig{RefreshInterval: cfg.GetSnapshotIntervalDuration()}
	if cfg.EmissionToken != "" {
		token := common.HexToAddress(cfg.EmissionToken)
		serviceCfg.EmissionToken = &token
	}
	service := farm.NewService(reader, oracle, watcher, serviceCfg, logger)

	logger.Info().
		Int("upstreams", len(pool.GetAll())).
		Str("multicall", cfg.MulticallAddress).
		Str("minichef", cfg.MinichefAddress).
		Bool("account", cfg.HasAccount()).
		Int("pageSize", simple.PageSize).
		Str("overflow", string(simple.Overflow)).
		Msg("farm reader configured")

	return &Server{
		cfg:      cfg,
		pool:     pool,
		executor: executor,
		watcher:  watcher,
		results:  results,
		updater:  updater,
		reader:   reader,
		service:  service,
		handler:  NewHandler(service, counts, pool, watcher, registry, logger),
		logger:   logger,
	}, nil
}

// Start checks the chain, then starts block tracking, polling and the HTTP server
func (s *Server) Start() error {
	if err := s.checkChain(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.watcher.Start()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.updater.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.service.Run(ctx)
	}()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", addr).
			Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.logger.Info().
		Str("pools", fmt.Sprintf("http://%s/pools", addr)).
		Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
		Msg("endpoint available")

	return nil
}

// checkChain verifies the configured chain id. Unreachable upstreams are
// only logged since the block watcher keeps retrying them.
func (s *Server) checkChain() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetRequestTimeoutDuration())
	defer cancel()

	chainID, err := s.executor.ChainID(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read chain id at startup")
		return nil
	}
	if s.cfg.ChainID != 0 && chainID != s.cfg.ChainID {
		return fmt.Errorf("upstreams serve chain %d, configured chainId is %d", chainID, s.cfg.ChainID)
	}

	head, err := s.executor.BlockNumber(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read block number at startup")
		return nil
	}
	s.logger.Info().
		Uint64("chainId", chainID).
		Uint64("block", head).
		Msg("connected to chain")
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}

	// Stop polling; the updater waits for in-flight multicalls
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.reader.Close()
	s.watcher.Stop()
	s.pool.Close()
	s.results.Close()

	if httpErr != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", httpErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
