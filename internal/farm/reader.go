package farm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"farmcall/internal/chunked"
	"farmcall/internal/multicall"
)

// watchCacheSize bounds the per-pool and per-rewarder subscriptions kept open
const watchCacheSize = 256

// SingleCaller opens a subscription for one contract call
type SingleCaller interface {
	PollSingleCall(contract *multicall.Contract, method string, args multicall.Args, opts multicall.ListenerOptions) multicall.Subscription
}

// ReaderConfig holds the addresses and chunk limits of a Reader
type ReaderConfig struct {
	MiniChef common.Address
	// Account is the wallet whose positions are read; nil reads no positions
	Account  *common.Address
	Simple   chunked.Limits
	Extended chunked.Limits
}

func every(blocks uint64) multicall.ListenerOptions {
	return multicall.ListenerOptions{BlocksPerFetch: blocks}
}

// Reader reads MiniChef pools, rewarders and LP pairs through the multicall layer
type Reader struct {
	calls    SingleCaller
	abis     *ABIs
	minichef *multicall.Contract
	account  *common.Address
	logger   zerolog.Logger

	poolLength         multicall.Subscription
	diffusionPerSecond multicall.Subscription
	totalAllocPoint    multicall.Subscription

	poolInfos *chunked.SingleContractBatch
	lpTokens  *chunked.SingleContractBatch
	rewarders *chunked.SingleContractBatch
	userInfos *chunked.SingleContractBatch
	pendings  *chunked.SingleContractBatch

	token0s  *chunked.MultipleContractBatch
	token1s  *chunked.MultipleContractBatch
	reserves *chunked.MultipleContractBatch
	supplies *chunked.MultipleContractBatch
	staked   *chunked.MultipleContractBatch

	pools   *lru.Cache[uint64, *poolWatch]
	rewards *lru.Cache[rewardKey, *rewardWatch]
}

// NewReader creates a Reader and opens the pool list subscriptions
func NewReader(calls SingleCaller, dispatcher *chunked.Dispatcher, abis *ABIs, cfg ReaderConfig, logger zerolog.Logger) (*Reader, error) {
	r := &Reader{
		calls:    calls,
		abis:     abis,
		minichef: multicall.NewContract(cfg.MiniChef, abis.MiniChef),
		account:  cfg.Account,
		logger:   logger.With().Str("component", "farm").Logger(),
	}

	var err error
	r.pools, err = lru.NewWithEvict(watchCacheSize, func(_ uint64, w *poolWatch) { w.close() })
	if err != nil {
		return nil, err
	}
	r.rewards, err = lru.NewWithEvict(watchCacheSize, func(_ rewardKey, w *rewardWatch) { w.close() })
	if err != nil {
		return nil, err
	}

	r.poolLength = calls.PollSingleCall(r.minichef, "poolLength", nil, every(25))
	r.diffusionPerSecond = calls.PollSingleCall(r.minichef, "diffusionPerSecond", nil, every(22))
	r.totalAllocPoint = calls.PollSingleCall(r.minichef, "totalAllocPoint", nil, every(4))

	simple := func(blocks uint64) chunked.Options {
		return chunked.Options{Limits: cfg.Simple, Listener: every(blocks)}
	}
	r.poolInfos = dispatcher.SingleContract(r.minichef, "poolInfo", simple(26))
	r.lpTokens = dispatcher.SingleContract(r.minichef, "lpToken", simple(27))
	r.rewarders = dispatcher.SingleContract(r.minichef, "rewarder", simple(28))
	r.userInfos = dispatcher.SingleContract(r.minichef, "userInfo", simple(29))
	r.pendings = dispatcher.SingleContract(r.minichef, "pendingDiffusion", simple(4))

	extended := func(opts multicall.ListenerOptions) chunked.Options {
		return chunked.Options{Limits: cfg.Extended, Listener: opts}
	}
	r.token0s = dispatcher.MultipleContract(abis.Pair, "token0", nil, extended(multicall.NeverReload))
	r.token1s = dispatcher.MultipleContract(abis.Pair, "token1", nil, extended(multicall.NeverReload))
	r.reserves = dispatcher.MultipleContract(abis.Pair, "getReserves", nil, extended(multicall.DefaultListenerOptions))
	r.supplies = dispatcher.MultipleContract(abis.Pair, "totalSupply", nil, extended(multicall.DefaultListenerOptions))
	r.staked = dispatcher.MultipleContract(abis.Pair, "balanceOf", multicall.Args{cfg.MiniChef}, extended(multicall.DefaultListenerOptions))

	return r, nil
}

func first(sub multicall.Subscription) multicall.CallState {
	return stateAt(sub.States(), 0)
}

func stateAt(states []multicall.CallState, i int) multicall.CallState {
	if i < 0 || i >= len(states) {
		return multicall.InvalidState
	}
	return states[i]
}

// PoolLength returns the number of pools, or false while it is unknown
func (r *Reader) PoolLength() (uint64, bool) {
	length := bigAt(first(r.poolLength), 0)
	if length == nil || !length.IsUint64() {
		return 0, false
	}
	return length.Uint64(), true
}

// accountArg is the account argument, nil when no account is configured
func (r *Reader) accountArg() interface{} {
	if r.account == nil {
		return nil
	}
	return *r.account
}

// Pools returns every pool whose LP token and pool info are known
func (r *Reader) Pools() []RawPool {
	n, _ := r.PoolLength()

	pidArgs := make([]multicall.Args, n)
	userArgs := make([]multicall.Args, n)
	var pendingArgs []multicall.Args
	for i := range pidArgs {
		pid := new(big.Int).SetUint64(uint64(i))
		pidArgs[i] = multicall.Args{pid}
		userArgs[i] = multicall.Args{pid, r.accountArg()}
		if r.account != nil {
			pendingArgs = append(pendingArgs, multicall.Args{pid, *r.account})
		}
	}

	infos := r.poolInfos.Poll(pidArgs)
	lps := r.lpTokens.Poll(pidArgs)
	rewarders := r.rewarders.Poll(pidArgs)
	users := r.userInfos.Poll(userArgs)
	pending := r.pendings.Poll(pendingArgs)
	diffusion := bigAt(first(r.diffusionPerSecond), 0)
	totalAlloc := bigAt(first(r.totalAllocPoint), 0)

	pools := make([]RawPool, 0, n)
	for i := range pidArgs {
		lp := addressAt(stateAt(lps, i), 0)
		info := poolInfoOf(stateAt(infos, i))
		if lp == nil || info == nil {
			continue
		}
		pool := RawPool{
			PoolID:            uint64(i),
			LPToken:           *lp,
			Rewarder:          nonZeroAddress(addressAt(stateAt(rewarders, i), 0)),
			Info:              *info,
			StakedAmount:      orZero(bigAt(stateAt(users, i), 0)),
			PendingAmount:     new(big.Int),
			EmissionPerSecond: orZero(PoolEmissionPerSecond(diffusion, info.AllocPoint, totalAlloc)),
		}
		if r.account != nil {
			pool.PendingAmount = orZero(bigAt(stateAt(pending, i), 0))
		}
		pools = append(pools, pool)
	}
	return pools
}

// PairStates reads token, reserve and supply data of each LP pair
func (r *Reader) PairStates(lpTokens []common.Address) []PairState {
	addresses := make([]string, len(lpTokens))
	for i, a := range lpTokens {
		addresses[i] = a.Hex()
	}

	token0s := r.token0s.Poll(addresses)
	token1s := r.token1s.Poll(addresses)
	reserves := r.reserves.Poll(addresses)
	supplies := r.supplies.Poll(addresses)
	staked := r.staked.Poll(addresses)

	pairs := make([]PairState, len(lpTokens))
	for i, a := range lpTokens {
		pairs[i] = PairState{
			Address:     a,
			Token0:      addressAt(stateAt(token0s, i), 0),
			Token1:      addressAt(stateAt(token1s, i), 0),
			Reserve0:    bigAt(stateAt(reserves, i), 0),
			Reserve1:    bigAt(stateAt(reserves, i), 1),
			TotalSupply: bigAt(stateAt(supplies, i), 0),
			TotalStaked: bigAt(stateAt(staked, i), 0),
		}
	}
	return pairs
}

type poolWatch struct {
	poolInfo           multicall.Subscription
	lpToken            multicall.Subscription
	rewarder           multicall.Subscription
	userInfo           multicall.Subscription
	diffusionPerSecond multicall.Subscription
	totalAllocPoint    multicall.Subscription
	pending            multicall.Subscription
}

func (w *poolWatch) close() {
	for _, sub := range []multicall.Subscription{w.poolInfo, w.lpToken, w.rewarder, w.userInfo, w.diffusionPerSecond, w.totalAllocPoint, w.pending} {
		sub.Close()
	}
}

func (r *Reader) watchPool(pid uint64) *poolWatch {
	if w, ok := r.pools.Get(pid); ok {
		return w
	}
	id := new(big.Int).SetUint64(pid)
	w := &poolWatch{
		poolInfo:           r.calls.PollSingleCall(r.minichef, "poolInfo", multicall.Args{id}, every(20)),
		lpToken:            r.calls.PollSingleCall(r.minichef, "lpToken", multicall.Args{id}, every(19)),
		rewarder:           r.calls.PollSingleCall(r.minichef, "rewarder", multicall.Args{id}, every(22)),
		userInfo:           r.calls.PollSingleCall(r.minichef, "userInfo", multicall.Args{id, r.accountArg()}, every(21)),
		diffusionPerSecond: r.calls.PollSingleCall(r.minichef, "diffusionPerSecond", nil, every(18)),
		totalAllocPoint:    r.calls.PollSingleCall(r.minichef, "totalAllocPoint", nil, every(19)),
		pending:            r.calls.PollSingleCall(r.minichef, "pendingDiffusion", multicall.Args{id, r.accountArg()}, multicall.DefaultListenerOptions),
	}
	if existing, ok, _ := r.pools.PeekOrAdd(pid, w); ok {
		w.close()
		return existing
	}
	return w
}

// Pool reads a single pool. It returns false until the LP token and pool
// info are known.
func (r *Reader) Pool(pid uint64) (*RawPool, bool) {
	w := r.watchPool(pid)

	lp := addressAt(first(w.lpToken), 0)
	info := poolInfoOf(first(w.poolInfo))
	if lp == nil || info == nil {
		return nil, false
	}

	pool := &RawPool{
		PoolID:        pid,
		LPToken:       *lp,
		Rewarder:      nonZeroAddress(addressAt(first(w.rewarder), 0)),
		Info:          *info,
		StakedAmount:  orZero(bigAt(first(w.userInfo), 0)),
		PendingAmount: new(big.Int),
		EmissionPerSecond: orZero(PoolEmissionPerSecond(
			bigAt(first(w.diffusionPerSecond), 0),
			info.AllocPoint,
			bigAt(first(w.totalAllocPoint), 0),
		)),
	}
	if r.account != nil {
		pool.PendingAmount = orZero(bigAt(first(w.pending), 0))
	}
	return pool, true
}

type rewardKey struct {
	pid      uint64
	rewarder common.Address
}

type rewardWatch struct {
	pendingTokens   multicall.Subscription
	rewardPerSecond multicall.Subscription
	poolInfo        multicall.Subscription
	totalAllocPoint multicall.Subscription
}

func (w *rewardWatch) close() {
	w.pendingTokens.Close()
	w.rewardPerSecond.Close()
	w.poolInfo.Close()
	w.totalAllocPoint.Close()
}

func (r *Reader) watchReward(key rewardKey) *rewardWatch {
	if w, ok := r.rewards.Get(key); ok {
		return w
	}
	contract := multicall.NewContract(key.rewarder, r.abis.Rewarder)
	user := common.Address{}
	if r.account != nil {
		user = *r.account
	}
	id := new(big.Int).SetUint64(key.pid)
	w := &rewardWatch{
		pendingTokens:   r.calls.PollSingleCall(contract, "pendingTokens", multicall.Args{id, user, new(big.Int)}, multicall.DefaultListenerOptions),
		rewardPerSecond: r.calls.PollSingleCall(contract, "rewardPerSecond", nil, multicall.DefaultListenerOptions),
		poolInfo:        r.calls.PollSingleCall(contract, "poolInfo", multicall.Args{id}, multicall.DefaultListenerOptions),
		totalAllocPoint: r.calls.PollSingleCall(contract, "totalAllocPoint", nil, multicall.DefaultListenerOptions),
	}
	if existing, ok, _ := r.rewards.PeekOrAdd(key, w); ok {
		w.close()
		return existing
	}
	return w
}

// RewardInfo reads the extra reward paid by rewarder for pool pid. Amounts
// stay nil until the reward token is known.
func (r *Reader) RewardInfo(pid uint64, rewarder common.Address) *RewardInfo {
	w := r.watchReward(rewardKey{pid: pid, rewarder: rewarder})

	info := RewardInfo{}
	if pi := poolInfoOf(first(w.poolInfo)); pi != nil {
		info.Info = *pi
	}

	pending := first(w.pendingTokens)
	if !pending.IsValid() || len(pending.Result) < 2 {
		return &info
	}
	tokens, _ := pending.Result[0].([]common.Address)
	amounts, _ := pending.Result[1].([]*big.Int)
	if len(tokens) == 0 {
		return &info
	}

	token := tokens[0]
	info.RewardToken = &token
	info.PendingAmount = new(big.Int)
	if len(amounts) > 0 && amounts[0] != nil {
		info.PendingAmount = amounts[0]
	}
	info.RewardPerSecond = orZero(PoolEmissionPerSecond(
		bigAt(first(w.rewardPerSecond), 0),
		info.Info.AllocPoint,
		bigAt(first(w.totalAllocPoint), 0),
	))
	return &info
}

// Close removes every listener opened by the reader
func (r *Reader) Close() {
	r.poolLength.Close()
	r.diffusionPerSecond.Close()
	r.totalAllocPoint.Close()

	for _, b := range []*chunked.SingleContractBatch{r.poolInfos, r.lpTokens, r.rewarders, r.userInfos, r.pendings} {
		b.Close()
	}
	for _, b := range []*chunked.MultipleContractBatch{r.token0s, r.token1s, r.reserves, r.supplies, r.staked} {
		b.Close()
	}

	r.pools.Purge()
	r.rewards.Purge()
}
