package farm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	SecondsPerWeek = 60 * 60 * 24 * 7
	SecondsPerYear = 60 * 60 * 24 * 365
)

// PoolEmissionPerSecond splits a per-second rate by allocation points.
// It returns nil when the total allocation is unknown or zero.
func PoolEmissionPerSecond(ratePerSecond *big.Int, allocPoint uint64, totalAllocPoint *big.Int) *big.Int {
	if totalAllocPoint == nil || totalAllocPoint.Sign() <= 0 {
		return nil
	}
	out := new(big.Int).Mul(orZero(ratePerSecond), new(big.Int).SetUint64(allocPoint))
	return out.Quo(out, totalAllocPoint)
}

// OwnWeeklyEmission is the weekly emission earned by staked out of totalStaked
func OwnWeeklyEmission(emissionPerSecond, staked, totalStaked *big.Int) *big.Int {
	if emissionPerSecond == nil || staked == nil || totalStaked == nil || totalStaked.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(emissionPerSecond, big.NewInt(SecondsPerWeek))
	out.Mul(out, staked)
	return out.Quo(out, totalStaked)
}

// PoolTVL values a pair at twice one side of its reserves, preferring token0
func PoolTVL(oracle PriceOracle, pair *PairState) (decimal.Decimal, bool) {
	if pair == nil {
		return decimal.Zero, false
	}
	if pair.Token0 != nil && pair.Reserve0 != nil {
		if v, ok := oracle.Value(*pair.Token0, pair.Reserve0); ok {
			return v.Mul(decimal.NewFromInt(2)), true
		}
	}
	if pair.Token1 != nil && pair.Reserve1 != nil {
		if v, ok := oracle.Value(*pair.Token1, pair.Reserve1); ok {
			return v.Mul(decimal.NewFromInt(2)), true
		}
	}
	return decimal.Zero, false
}

// FarmTVL is the share of the pool value held by the farm
func FarmTVL(poolTVL decimal.Decimal, totalStaked, totalSupply *big.Int) (decimal.Decimal, bool) {
	if totalStaked == nil || totalSupply == nil || totalSupply.Sign() <= 0 {
		return decimal.Zero, false
	}
	return poolTVL.Mul(decimal.NewFromBigInt(totalStaked, 0)).Div(decimal.NewFromBigInt(totalSupply, 0)), true
}

// CalculateAPR returns the yearly emission value as a whole percentage of farmTVL
func CalculateAPR(oracle PriceOracle, emissionToken common.Address, emissionPerSecond *big.Int, farmTVL decimal.Decimal) *big.Int {
	if emissionPerSecond == nil || !farmTVL.IsPositive() {
		return new(big.Int)
	}
	yearly := new(big.Int).Mul(emissionPerSecond, big.NewInt(SecondsPerYear))
	value, ok := oracle.Value(emissionToken, yearly)
	if !ok {
		return new(big.Int)
	}
	return value.Mul(decimal.NewFromInt(100)).Div(farmTVL).Floor().BigInt()
}
