package farm

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"farmcall/internal/cache"
	"farmcall/internal/chunked"
	"farmcall/internal/multicall"
)

var (
	minichefAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	accountAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	pairA        = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	pairB        = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	rewarderAddr = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	usdcAddr     = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	wethAddr     = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	diffAddr     = common.HexToAddress("0x0000000000000000000000000000000000000d03")
	extraAddr    = common.HexToAddress("0x0000000000000000000000000000000000000d04")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type handler func(args []interface{}) []interface{}

// fakeChain answers encoded calls the way the deployed contracts would
type fakeChain struct {
	t         *testing.T
	abis      map[common.Address]*abi.ABI
	responses map[common.Address]map[string]handler
}

func newFakeChain(t *testing.T, abis *ABIs) *fakeChain {
	c := &fakeChain{
		t:         t,
		abis:      map[common.Address]*abi.ABI{minichefAddr: abis.MiniChef, rewarderAddr: abis.Rewarder, pairA: abis.Pair, pairB: abis.Pair},
		responses: make(map[common.Address]map[string]handler),
	}

	pools := map[int64]struct {
		lp    common.Address
		rew   common.Address
		alloc uint64
	}{
		0: {lp: pairA, alloc: 60},
		1: {lp: pairB, rew: rewarderAddr, alloc: 40},
	}
	pid := func(args []interface{}) int64 { return args[0].(*big.Int).Int64() }

	c.on(minichefAddr, "poolLength", func([]interface{}) []interface{} { return []interface{}{big.NewInt(2)} })
	c.on(minichefAddr, "diffusionPerSecond", func([]interface{}) []interface{} { return []interface{}{ether(1)} })
	c.on(minichefAddr, "totalAllocPoint", func([]interface{}) []interface{} { return []interface{}{big.NewInt(100)} })
	c.on(minichefAddr, "poolInfo", func(args []interface{}) []interface{} {
		return []interface{}{big.NewInt(5), uint64(1700000000), pools[pid(args)].alloc}
	})
	c.on(minichefAddr, "lpToken", func(args []interface{}) []interface{} { return []interface{}{pools[pid(args)].lp} })
	c.on(minichefAddr, "rewarder", func(args []interface{}) []interface{} { return []interface{}{pools[pid(args)].rew} })
	c.on(minichefAddr, "userInfo", func([]interface{}) []interface{} { return []interface{}{big.NewInt(10), big.NewInt(-3)} })
	c.on(minichefAddr, "pendingDiffusion", func([]interface{}) []interface{} { return []interface{}{big.NewInt(7)} })

	c.on(rewarderAddr, "pendingTokens", func([]interface{}) []interface{} {
		return []interface{}{[]common.Address{extraAddr}, []*big.Int{big.NewInt(11)}}
	})
	c.on(rewarderAddr, "rewardPerSecond", func([]interface{}) []interface{} { return []interface{}{big.NewInt(900)} })
	c.on(rewarderAddr, "poolInfo", func([]interface{}) []interface{} { return []interface{}{big.NewInt(1), uint64(1), uint64(30)} })
	c.on(rewarderAddr, "totalAllocPoint", func([]interface{}) []interface{} { return []interface{}{big.NewInt(90)} })

	for _, pair := range []common.Address{pairA, pairB} {
		c.on(pair, "token0", func([]interface{}) []interface{} { return []interface{}{usdcAddr} })
		c.on(pair, "token1", func([]interface{}) []interface{} { return []interface{}{wethAddr} })
		c.on(pair, "getReserves", func([]interface{}) []interface{} {
			return []interface{}{big.NewInt(1_000_000_000), ether(1), uint32(1)}
		})
		c.on(pair, "totalSupply", func([]interface{}) []interface{} { return []interface{}{big.NewInt(100)} })
		c.on(pair, "balanceOf", func([]interface{}) []interface{} { return []interface{}{big.NewInt(50)} })
	}
	return c
}

func (c *fakeChain) on(address common.Address, method string, h handler) {
	if c.responses[address] == nil {
		c.responses[address] = make(map[string]handler)
	}
	c.responses[address][method] = h
}

func (c *fakeChain) answer(call multicall.Call) multicall.CallResult {
	contractABI := c.abis[call.Address]
	if contractABI == nil {
		return multicall.CallResult{}
	}
	method, err := contractABI.MethodById(call.CallData[:4])
	if err != nil {
		c.t.Fatalf("unknown selector %x on %s", call.CallData[:4], call.Address)
	}
	args, err := method.Inputs.Unpack(call.CallData[4:])
	if err != nil {
		c.t.Fatalf("failed to unpack %s input: %v", method.Name, err)
	}
	h := c.responses[call.Address][method.Name]
	if h == nil {
		return multicall.CallResult{}
	}
	out, err := method.Outputs.Pack(h(args)...)
	if err != nil {
		c.t.Fatalf("failed to pack %s output: %v", method.Name, err)
	}
	return multicall.CallResult{Success: true, ReturnData: out}
}

// serve answers every outdated call at the current block
func (c *fakeChain) serve(store *multicall.Store, block uint64) int {
	outdated := store.Outdated(block)
	results := make([]multicall.CallResult, len(outdated))
	for i, call := range outdated {
		results[i] = c.answer(call)
	}
	store.StoreResults(outdated, results, block)
	return len(outdated)
}

type testBlocks struct {
	mu     sync.Mutex
	latest uint64
}

func (b *testBlocks) Latest() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

func (b *testBlocks) Subscribe() (<-chan uint64, func()) {
	return make(chan uint64), func() {}
}

type farmFixture struct {
	chain  *fakeChain
	store  *multicall.Store
	blocks *testBlocks
	reader *Reader
	counts *chunked.Counts
}

func newFarmFixture(t *testing.T, account *common.Address) *farmFixture {
	t.Helper()
	abis, err := LoadABIs()
	if err != nil {
		t.Fatalf("failed to load ABIs: %v", err)
	}
	results, err := cache.NewMemoryCache(1000)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	store := multicall.NewStore(results)
	blocks := &testBlocks{latest: 1}
	poller := multicall.NewPoller(store, blocks, zerolog.Nop())
	counts := chunked.NewCounts()
	dispatcher := chunked.NewDispatcher(poller, counts, zerolog.Nop())

	reader, err := NewReader(poller, dispatcher, abis, ReaderConfig{
		MiniChef: minichefAddr,
		Account:  account,
		Simple:   chunked.SimpleLimits,
		Extended: chunked.ExtendedLimits,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	t.Cleanup(reader.Close)

	return &farmFixture{chain: newFakeChain(t, abis), store: store, blocks: blocks, reader: reader, counts: counts}
}

func (f *farmFixture) serve() int {
	return f.chain.serve(f.store, f.blocks.Latest())
}
