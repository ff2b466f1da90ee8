package blockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"farmcall/internal/jsonrpc"
	"farmcall/internal/upstream"
)

// Config holds the watcher timings
type Config struct {
	PollInterval       time.Duration
	StatusLogInterval  time.Duration
	BlockLagThreshold  uint64
	LagRecoveryTimeout time.Duration
	MessageTimeout     time.Duration
	ReconnectInterval  time.Duration
	DedupCacheSize     int
}

// Watcher tracks the chain head across upstreams and keeps their health in sync with it.
// New maximum heights are published to subscribers.
type Watcher struct {
	upstreams       []*upstream.Upstream
	upstreamsByName map[string]*upstream.Upstream
	cfg             Config
	dedup           *Deduplicator
	logger          zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	maxBlock    uint64
	subscribers map[int]chan uint64
	nextSubID   int
}

// NewWatcher creates a new Watcher
func NewWatcher(upstreams []*upstream.Upstream, cfg Config, logger zerolog.Logger) (*Watcher, error) {
	size := cfg.DedupCacheSize
	if size <= 0 {
		size = 1024
	}
	dedup, err := NewDeduplicator(size)
	if err != nil {
		return nil, err
	}

	upstreamsByName := make(map[string]*upstream.Upstream, len(upstreams))
	for _, u := range upstreams {
		upstreamsByName[u.Name()] = u
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		upstreams:       upstreams,
		upstreamsByName: upstreamsByName,
		cfg:             cfg,
		dedup:           dedup,
		logger:          logger.With().Str("component", "blockwatch").Logger(),
		ctx:             ctx,
		cancel:          cancel,
		subscribers:     make(map[int]chan uint64),
	}, nil
}

// Start fetches initial heights and begins monitoring.
// Upstreams with a WebSocket URL are followed via newHeads, the rest are polled.
func (w *Watcher) Start() {
	w.fetchInitialBlocks()

	for _, u := range w.upstreams {
		if u.HasWS() {
			sub := NewHeadSubscriber(u.Name(), u.WSURL(), w.cfg.MessageTimeout, w.cfg.ReconnectInterval, w.OnHead, w.logger)
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				sub.Run(w.ctx)
			}()
			continue
		}
		w.wg.Add(1)
		go w.monitorWithPolling(u)
	}

	if w.cfg.StatusLogInterval > 0 {
		w.wg.Add(1)
		go w.logStatus()
	}
}

// Stop stops monitoring and closes all subscriber channels
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	for id, ch := range w.subscribers {
		close(ch)
		delete(w.subscribers, id)
	}
	w.mu.Unlock()
}

// Latest returns the maximum block number seen across upstreams
func (w *Watcher) Latest() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.maxBlock
}

// Subscribe returns a channel that receives new maximum heights.
// The channel holds at most one pending height; a slow reader only sees the newest one.
func (w *Watcher) Subscribe() (<-chan uint64, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextSubID
	w.nextSubID++
	ch := make(chan uint64, 1)
	w.subscribers[id] = ch

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if c, ok := w.subscribers[id]; ok {
			close(c)
			delete(w.subscribers, id)
		}
	}
}

// OnHead handles a newHeads header pushed by an upstream
func (w *Watcher) OnHead(upstreamName string, header jsonrpc.BlockHeader) {
	u, ok := w.upstreamsByName[upstreamName]
	if !ok {
		w.logger.Warn().Str("upstream", upstreamName).Msg("received block from unknown upstream")
		return
	}

	blockNum, err := hexutil.DecodeUint64(header.Number)
	if err != nil {
		w.logger.Warn().Err(err).Str("number", header.Number).Msg("failed to parse block number")
		return
	}

	u.UpdateBlock(blockNum)
	u.SetHealthy(true)
	w.observe(u, blockNum)

	if !w.dedup.IsDuplicate(header.Hash) {
		w.logger.Debug().
			Str("upstream", u.Name()).
			Uint64("block", blockNum).
			Str("hash", header.Hash).
			Msg("new block from newHeads")
	}
}

// observe folds a height reported by u into the max block and lag bookkeeping
func (w *Watcher) observe(u *upstream.Upstream, blockNum uint64) {
	if w.updateMaxBlock(blockNum) {
		w.scheduleLagCheck(blockNum)
	}
	w.checkUpstreamCaughtUp(u)
}

// fetchInitialBlocks fetches the current block number from all upstreams in parallel
func (w *Watcher) fetchInitialBlocks() {
	var wg sync.WaitGroup
	for _, u := range w.upstreams {
		wg.Add(1)
		go func(u *upstream.Upstream) {
			defer wg.Done()
			w.pollBlockNumber(u)
		}(u)
	}
	wg.Wait()

	for _, u := range w.upstreams {
		if block := u.GetCurrentBlock(); block > 0 {
			w.logger.Info().
				Str("upstream", u.Name()).
				Uint64("block", block).
				Bool("healthy", u.IsHealthy()).
				Msg("fetched initial block")
		} else {
			w.logger.Warn().
				Str("upstream", u.Name()).
				Bool("healthy", u.IsHealthy()).
				Msg("failed to fetch initial block")
		}
	}

	w.logger.Info().
		Uint64("maxBlock", w.Latest()).
		Int("upstreams", len(w.upstreams)).
		Msg("initial blocks fetched")
}

// monitorWithPolling monitors an upstream using periodic eth_blockNumber calls
func (w *Watcher) monitorWithPolling(u *upstream.Upstream) {
	defer w.wg.Done()

	interval := w.cfg.PollInterval
	if interval <= 0 {
		interval = 4 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.pollBlockNumber(u)
		}
	}
}

// pollBlockNumber fetches the current block number via HTTP
func (w *Watcher) pollBlockNumber(u *upstream.Upstream) {
	ctx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	blockNum, err := fetchBlockNumber(ctx, u)
	if err != nil {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Warn().Err(err).Str("upstream", u.Name()).Msg("failed to get block number")
		u.SetHealthy(false)
		return
	}

	u.UpdateBlock(blockNum)
	w.observe(u, blockNum)

	w.logger.Debug().
		Str("upstream", u.Name()).
		Uint64("block", blockNum).
		Msg("polled block number")
}

func fetchBlockNumber(ctx context.Context, u *upstream.Upstream) (uint64, error) {
	req, err := jsonrpc.NewRequest(jsonrpc.MethodBlockNumber, nil, jsonrpc.NextID())
	if err != nil {
		return 0, err
	}

	resp, err := u.Execute(ctx, req)
	if err != nil {
		return 0, err
	}
	if resp.HasError() {
		return 0, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var n hexutil.Uint64
	if err := json.Unmarshal(resp.Result, &n); err != nil {
		return 0, fmt.Errorf("failed to parse block number: %w", err)
	}
	return uint64(n), nil
}

// updateMaxBlock raises the maximum block and notifies subscribers.
// Returns true if this is a new maximum block.
func (w *Watcher) updateMaxBlock(block uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if block <= w.maxBlock {
		return false
	}
	w.maxBlock = block

	for _, ch := range w.subscribers {
		select {
		case ch <- block:
		default:
			// replace the stale pending height
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- block:
			default:
			}
		}
	}
	return true
}

// scheduleLagCheck schedules a health check for a specific block after lagRecoveryTimeout
func (w *Watcher) scheduleLagCheck(targetBlock uint64) {
	if w.cfg.LagRecoveryTimeout <= 0 {
		return
	}

	time.AfterFunc(w.cfg.LagRecoveryTimeout, func() {
		if w.ctx.Err() != nil {
			return
		}
		w.checkLagForBlock(targetBlock)
	})
}

// checkLagForBlock marks upstreams unhealthy if they haven't caught up to targetBlock
func (w *Watcher) checkLagForBlock(targetBlock uint64) {
	for _, u := range w.upstreams {
		currentBlock := u.GetCurrentBlock()
		if targetBlock <= currentBlock {
			continue
		}

		lag := targetBlock - currentBlock
		if lag > w.cfg.BlockLagThreshold {
			if u.IsHealthy() {
				w.logger.Warn().
					Str("upstream", u.Name()).
					Uint64("currentBlock", currentBlock).
					Uint64("targetBlock", targetBlock).
					Uint64("lag", lag).
					Msg("upstream did not catch up in time, marking unhealthy")
			}
			u.SetHealthy(false)
		}
	}
}

// checkUpstreamCaughtUp marks u healthy once its lag is within threshold
func (w *Watcher) checkUpstreamCaughtUp(u *upstream.Upstream) {
	maxBlock := w.Latest()
	currentBlock := u.GetCurrentBlock()
	if maxBlock == 0 || currentBlock == 0 {
		return
	}

	var lag uint64
	if maxBlock > currentBlock {
		lag = maxBlock - currentBlock
	}

	if lag <= w.cfg.BlockLagThreshold {
		if !u.IsHealthy() {
			w.logger.Info().
				Str("upstream", u.Name()).
				Uint64("currentBlock", currentBlock).
				Uint64("maxBlock", maxBlock).
				Msg("upstream caught up, marking healthy")
		}
		u.SetHealthy(true)
	}
}

// logStatus periodically logs the status of all upstreams
func (w *Watcher) logStatus() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.StatusLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.logCurrentStatus()
		}
	}
}

func (w *Watcher) logCurrentStatus() {
	var healthy, unhealthy []string
	var requests uint64

	for _, u := range w.upstreams {
		status := fmt.Sprintf("%s(block=%d,breaker=%s,trips=%d)", u.Name(), u.GetCurrentBlock(), u.BreakerState(), u.BreakerTrips())
		if u.IsHealthy() {
			healthy = append(healthy, status)
		} else {
			unhealthy = append(unhealthy, status)
		}
		requests += u.SwapRequestCount()
	}

	w.logger.Info().
		Uint64("maxBlock", w.Latest()).
		Strs("healthy", healthy).
		Strs("unhealthy", unhealthy).
		Uint64("requests", requests).
		Dur("interval", w.cfg.StatusLogInterval).
		Msg("upstreams status")
}
