package farm

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"farmcall/internal/multicall"
)

// PoolInfo is the MiniChef (or rewarder) accounting record of one pool
type PoolInfo struct {
	AccPerShare    *big.Int `json:"accPerShare"`
	LastRewardTime uint64   `json:"lastRewardTime"`
	AllocPoint     uint64   `json:"allocPoint"`
}

// RawPool is a MiniChef pool as read from chain
type RawPool struct {
	PoolID            uint64          `json:"poolId"`
	LPToken           common.Address  `json:"lpToken"`
	Rewarder          *common.Address `json:"rewarder,omitempty"`
	Info              PoolInfo        `json:"poolInfo"`
	StakedAmount      *big.Int        `json:"stakedAmount"`
	PendingAmount     *big.Int        `json:"pendingAmount"`
	EmissionPerSecond *big.Int        `json:"emissionPerSecond"`
}

// RewardInfo is the extra reward a rewarder pays on top of the base emission
type RewardInfo struct {
	RewardToken     *common.Address `json:"rewardToken,omitempty"`
	PendingAmount   *big.Int        `json:"pendingAmount,omitempty"`
	RewardPerSecond *big.Int        `json:"rewardPerSecond,omitempty"`
	Info            PoolInfo        `json:"poolInfo"`
}

// PairState is the on-chain state of one LP pair
type PairState struct {
	Address     common.Address  `json:"address"`
	Token0      *common.Address `json:"token0,omitempty"`
	Token1      *common.Address `json:"token1,omitempty"`
	Reserve0    *big.Int        `json:"reserve0,omitempty"`
	Reserve1    *big.Int        `json:"reserve1,omitempty"`
	TotalSupply *big.Int        `json:"totalSupply,omitempty"`
	TotalStaked *big.Int        `json:"totalStaked,omitempty"`
}

// PoolView is a pool with its pair and the derived dashboard metrics
type PoolView struct {
	RawPool
	Pair              *PairState       `json:"pair,omitempty"`
	OwnWeeklyEmission *big.Int         `json:"ownWeeklyEmission"`
	PoolTVL           *decimal.Decimal `json:"poolTvlUsd,omitempty"`
	FarmTVL           *decimal.Decimal `json:"farmTvlUsd,omitempty"`
	APR               *big.Int         `json:"apr"`
}

// PoolDetail is the single pool view including its rewarder
type PoolDetail struct {
	RawPool
	Reward *RewardInfo `json:"reward,omitempty"`
}

// Snapshot is the dashboard state computed at one block
type Snapshot struct {
	BlockNumber uint64     `json:"blockNumber"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Pools       []PoolView `json:"pools"`
}

// result helpers; each returns nil when the state carries no usable value

func bigAt(s multicall.CallState, i int) *big.Int {
	if !s.IsValid() || len(s.Result) <= i {
		return nil
	}
	v, _ := s.Result[i].(*big.Int)
	return v
}

func addressAt(s multicall.CallState, i int) *common.Address {
	if !s.IsValid() || len(s.Result) <= i {
		return nil
	}
	v, ok := s.Result[i].(common.Address)
	if !ok {
		return nil
	}
	return &v
}

func poolInfoOf(s multicall.CallState) *PoolInfo {
	if !s.IsValid() || len(s.Result) < 3 {
		return nil
	}
	acc, ok1 := s.Result[0].(*big.Int)
	last, ok2 := s.Result[1].(uint64)
	alloc, ok3 := s.Result[2].(uint64)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	return &PoolInfo{AccPerShare: acc, LastRewardTime: last, AllocPoint: alloc}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonZeroAddress(a *common.Address) *common.Address {
	if a == nil || *a == (common.Address{}) {
		return nil
	}
	return a
}
