package farm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"farmcall/internal/multicall"
)

const MiniChefABI = `[
	{"inputs":[],"name":"poolLength","outputs":[{"name":"pools","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"uint256"}],"name":"poolInfo","outputs":[{"name":"accDiffusionPerShare","type":"uint128"},{"name":"lastRewardTime","type":"uint64"},{"name":"allocPoint","type":"uint64"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"uint256"}],"name":"lpToken","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"uint256"}],"name":"rewarder","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"uint256"},{"name":"","type":"address"}],"name":"userInfo","outputs":[{"name":"amount","type":"uint256"},{"name":"rewardDebt","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_pid","type":"uint256"},{"name":"_user","type":"address"}],"name":"pendingDiffusion","outputs":[{"name":"pending","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"diffusionPerSecond","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalAllocPoint","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const RewarderABI = `[
	{"inputs":[{"name":"pid","type":"uint256"},{"name":"user","type":"address"},{"name":"","type":"uint256"}],"name":"pendingTokens","outputs":[{"name":"rewardTokens","type":"address[]"},{"name":"rewardAmounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"rewardPerSecond","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"","type":"uint256"}],"name":"poolInfo","outputs":[{"name":"accToken1PerShare","type":"uint128"},{"name":"lastRewardTime","type":"uint64"},{"name":"allocPoint","type":"uint64"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalAllocPoint","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const PairABI = `[
	{"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ABIs holds the parsed contract interfaces used by the reader
type ABIs struct {
	MiniChef *abi.ABI
	Rewarder *abi.ABI
	Pair     *abi.ABI
}

// LoadABIs parses the farm contract ABIs
func LoadABIs() (*ABIs, error) {
	miniChef, err := multicall.ParseABI(MiniChefABI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse minichef ABI: %w", err)
	}
	rewarder, err := multicall.ParseABI(RewarderABI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rewarder ABI: %w", err)
	}
	pair, err := multicall.ParseABI(PairABI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	return &ABIs{MiniChef: miniChef, Rewarder: rewarder, Pair: pair}, nil
}
