package farm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"farmcall/internal/config"
)

// PriceOracle values raw token amounts in USD
type PriceOracle interface {
	Value(token common.Address, amount *big.Int) (decimal.Decimal, bool)
}

type tokenPrice struct {
	decimals int32
	price    decimal.Decimal
}

// StaticPriceOracle prices tokens from configuration
type StaticPriceOracle struct {
	tokens map[common.Address]tokenPrice
}

// NewStaticPriceOracle creates an oracle for the priced tokens in cfg.
// Tokens without a price are ignored.
func NewStaticPriceOracle(tokens []config.TokenConfig) (*StaticPriceOracle, error) {
	o := &StaticPriceOracle{tokens: make(map[common.Address]tokenPrice)}
	for _, t := range tokens {
		if t.PriceUSD == "" {
			continue
		}
		price, err := decimal.NewFromString(t.PriceUSD)
		if err != nil {
			return nil, fmt.Errorf("token %s: invalid price: %w", t.Address, err)
		}
		o.tokens[common.HexToAddress(t.Address)] = tokenPrice{decimals: t.Decimals, price: price}
	}
	return o, nil
}

// Value converts amount from base units and multiplies by the token price
func (o *StaticPriceOracle) Value(token common.Address, amount *big.Int) (decimal.Decimal, bool) {
	t, ok := o.tokens[token]
	if !ok || amount == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(amount, -t.decimals).Mul(t.price), true
}
