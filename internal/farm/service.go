package farm

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrPoolNotFound = errors.New("pool not found")
	ErrPoolLoading  = errors.New("pool data is loading")
)

// BlockSource reports the chain head and announces new heights
type BlockSource interface {
	Latest() uint64
	Subscribe() (<-chan uint64, func())
}

// ServiceConfig configures a Service
type ServiceConfig struct {
	// EmissionToken prices the MiniChef emission for APR; nil disables APR
	EmissionToken   *common.Address
	RefreshInterval time.Duration
}

// Service keeps the latest dashboard snapshot
type Service struct {
	reader   *Reader
	oracle   PriceOracle
	blocks   BlockSource
	cfg      ServiceConfig
	snapshot atomic.Pointer[Snapshot]
	logger   zerolog.Logger
}

// NewService creates a new Service
func NewService(reader *Reader, oracle PriceOracle, blocks BlockSource, cfg ServiceConfig, logger zerolog.Logger) *Service {
	s := &Service{
		reader: reader,
		oracle: oracle,
		blocks: blocks,
		cfg:    cfg,
		logger: logger.With().Str("component", "farm-service").Logger(),
	}
	s.snapshot.Store(&Snapshot{Pools: []PoolView{}})
	return s
}

// Run refreshes the snapshot on every new block and every refresh interval
// until ctx is cancelled. The interval picks up results that land between blocks.
func (s *Service) Run(ctx context.Context) {
	heads, unsubscribe := s.blocks.Subscribe()
	defer unsubscribe()

	var tick <-chan time.Time
	if s.cfg.RefreshInterval > 0 {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-heads:
			if !ok {
				return
			}
			s.Refresh()
		case <-tick:
			s.Refresh()
		}
	}
}

// Refresh recomputes the snapshot from the current call states
func (s *Service) Refresh() *Snapshot {
	block := s.blocks.Latest()
	pools := s.reader.Pools()

	lpTokens := make([]common.Address, len(pools))
	for i, p := range pools {
		lpTokens[i] = p.LPToken
	}
	pairs := s.reader.PairStates(lpTokens)

	views := make([]PoolView, len(pools))
	for i, p := range pools {
		views[i] = s.view(p, &pairs[i])
	}

	snap := &Snapshot{BlockNumber: block, UpdatedAt: time.Now(), Pools: views}
	s.snapshot.Store(snap)

	s.logger.Debug().
		Uint64("block", block).
		Int("pools", len(views)).
		Msg("refreshed farm snapshot")
	return snap
}

func (s *Service) view(p RawPool, pair *PairState) PoolView {
	v := PoolView{
		RawPool:           p,
		Pair:              pair,
		OwnWeeklyEmission: OwnWeeklyEmission(p.EmissionPerSecond, p.StakedAmount, pair.TotalStaked),
		APR:               new(big.Int),
	}

	poolTVL, ok := PoolTVL(s.oracle, pair)
	if !ok {
		return v
	}
	v.PoolTVL = &poolTVL

	farmTVL, ok := FarmTVL(poolTVL, pair.TotalStaked, pair.TotalSupply)
	if !ok {
		return v
	}
	v.FarmTVL = &farmTVL

	if s.cfg.EmissionToken != nil {
		v.APR = CalculateAPR(s.oracle, *s.cfg.EmissionToken, p.EmissionPerSecond, farmTVL)
	}
	return v
}

// Snapshot returns the latest snapshot
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// PoolDetail reads one pool and its rewarder
func (s *Service) PoolDetail(pid uint64) (*PoolDetail, error) {
	if n, ok := s.reader.PoolLength(); ok && pid >= n {
		return nil, ErrPoolNotFound
	}

	pool, ok := s.reader.Pool(pid)
	if !ok {
		return nil, ErrPoolLoading
	}

	detail := &PoolDetail{RawPool: *pool}
	if pool.Rewarder != nil {
		detail.Reward = s.reader.RewardInfo(pid, *pool.Rewarder)
	}
	return detail, nil
}
