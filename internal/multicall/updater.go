package multicall

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

const (
	DefaultChunkGasLimit      = uint64(100_000_000)
	DefaultDefaultGasRequired = uint64(1_000_000)
)

// BlockSource reports the chain head and announces new heights
type BlockSource interface {
	Latest() uint64
	Subscribe() (<-chan uint64, func())
}

// UpdaterConfig holds the gas budget used to split outdated calls
type UpdaterConfig struct {
	ChunkGasLimit      uint64
	DefaultGasRequired uint64
}

// Updater refreshes outdated calls on every new block and listener change
type Updater struct {
	store   *Store
	agg     Aggregator
	blocks  BlockSource
	cfg     UpdaterConfig
	metrics *Metrics
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// NewUpdater creates a new Updater
func NewUpdater(store *Store, agg Aggregator, blocks BlockSource, cfg UpdaterConfig, metrics *Metrics, logger zerolog.Logger) *Updater {
	if cfg.ChunkGasLimit == 0 {
		cfg.ChunkGasLimit = DefaultChunkGasLimit
	}
	if cfg.DefaultGasRequired == 0 {
		cfg.DefaultGasRequired = DefaultDefaultGasRequired
	}
	return &Updater{
		store:   store,
		agg:     agg,
		blocks:  blocks,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "multicall").Logger(),
	}
}

// Run drives updates until ctx is cancelled, then waits for in-flight fetches
func (u *Updater) Run(ctx context.Context) {
	heads, unsubscribe := u.blocks.Subscribe()
	defer unsubscribe()
	defer u.wg.Wait()

	u.Update(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-heads:
			if !ok {
				return
			}
			u.Update(ctx)
		case <-u.store.Changed():
			u.Update(ctx)
		}
	}
}

// Update dispatches one fetch per gas chunk of the currently outdated calls.
// Fetches run in the background; results land in the store.
func (u *Updater) Update(ctx context.Context) {
	latest := u.blocks.Latest()
	if latest == 0 {
		return
	}

	outdated := u.store.Outdated(latest)
	u.metrics.setOutdated(len(outdated))
	if len(outdated) == 0 {
		return
	}

	// map iteration order is random; keep chunk composition stable
	sort.Slice(outdated, func(i, j int) bool { return outdated[i].Key() < outdated[j].Key() })

	u.store.MarkFetching(outdated, latest)
	chunks := chunkCalls(outdated, u.cfg.ChunkGasLimit, u.cfg.DefaultGasRequired)

	u.logger.Debug().
		Uint64("block", latest).
		Int("calls", len(outdated)).
		Int("chunks", len(chunks)).
		Msg("fetching outdated calls")

	for _, chunk := range chunks {
		u.wg.Add(1)
		go func(chunk []Call) {
			defer u.wg.Done()
			u.fetchChunk(ctx, chunk, latest)
		}(chunk)
	}
}

func (u *Updater) fetchChunk(ctx context.Context, chunk []Call, fetchBlock uint64) {
	res, err := u.agg.TryBlockAndAggregate(ctx, chunk)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		u.metrics.fetched("error", len(chunk))
		u.logger.Warn().
			Err(err).
			Int("calls", len(chunk)).
			Uint64("block", fetchBlock).
			Msg("failed to fetch multicall chunk")
		u.store.StoreErrors(chunk, fetchBlock)
		return
	}

	u.metrics.fetched("ok", len(chunk))
	u.store.StoreResults(chunk, res.Results, res.BlockNumber)
}

// chunkCalls groups calls greedily so each group stays within gasLimit.
// A call heavier than the limit gets a group of its own.
func chunkCalls(calls []Call, gasLimit, defaultGas uint64) [][]Call {
	var chunks [][]Call
	var current []Call
	var currentGas uint64

	for _, c := range calls {
		gas := c.GasRequired
		if gas == 0 {
			gas = defaultGas
		}
		if len(current) > 0 && currentGas+gas > gasLimit {
			chunks = append(chunks, current)
			current = nil
			currentGas = 0
		}
		current = append(current, c)
		currentGas += gas
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
