package model

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const priceScale = 18

var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// PriceFromSqrtX96 converts a Q64.96 square root price into token1 per token0,
// adjusted for the tokens' decimals.
func PriceFromSqrtX96(sqrtPriceX96 *uint256.Int, decimals0, decimals1 int32) decimal.Decimal {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return decimal.Zero
	}
	sq := decimal.NewFromBigInt(sqrtPriceX96.ToBig(), 0)
	return sq.Mul(sq).DivRound(q192, priceScale).Shift(decimals0 - decimals1)
}

// FormatAmount renders a raw token amount in whole-token units.
func FormatAmount(value *uint256.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -decimals).String()
}
