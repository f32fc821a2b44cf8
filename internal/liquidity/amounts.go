// Package liquidity converts between liquidity and token amounts over price ranges.
package liquidity

import (
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
)

// AddDelta applies a two's complement delta to an unsigned liquidity value.
func AddDelta(x, delta *uint256.Int) (*uint256.Int, error) {
	if fixedpoint.IsNegative(delta) {
		abs := fixedpoint.Neg(delta)
		if abs.Gt(x) {
			return nil, ammerr.ErrInsufficientLiquidity
		}
		return new(uint256.Int).Sub(x, abs), nil
	}
	z, carry := new(uint256.Int).AddOverflow(x, delta)
	if carry || !fixedpoint.FitsUint128(z) {
		return nil, ammerr.ErrLiquidityOverflow
	}
	return z, nil
}

// AmountsForLiquidityDelta returns the signed token amounts for adding (delta > 0) or
// removing (delta < 0) liquidity in [sqrtLower, sqrtUpper) at sqrtCurrent.
//
// Positive results are owed to the pool and are rounded up. Negative results are owed
// by the pool and are rounded toward zero.
func AmountsForLiquidityDelta(delta, sqrtCurrent, sqrtLower, sqrtUpper *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if sqrtLower.Gt(sqrtUpper) {
		sqrtLower, sqrtUpper = sqrtUpper, sqrtLower
	}
	amount0, amount1 := new(uint256.Int), new(uint256.Int)

	switch {
	case !sqrtCurrent.Gt(sqrtLower):
		a0, err := SignedAmount0Delta(sqrtLower, sqrtUpper, delta)
		if err != nil {
			return nil, nil, err
		}
		amount0 = a0
	case sqrtCurrent.Lt(sqrtUpper):
		a0, err := SignedAmount0Delta(sqrtCurrent, sqrtUpper, delta)
		if err != nil {
			return nil, nil, err
		}
		a1, err := SignedAmount1Delta(sqrtLower, sqrtCurrent, delta)
		if err != nil {
			return nil, nil, err
		}
		amount0, amount1 = a0, a1
	default:
		a1, err := SignedAmount1Delta(sqrtLower, sqrtUpper, delta)
		if err != nil {
			return nil, nil, err
		}
		amount1 = a1
	}
	return amount0, amount1, nil
}

// ForAmount0 returns the liquidity that amount0 buys between two prices.
func ForAmount0(sqrtA, sqrtB, amount0 *uint256.Int) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.Eq(sqrtB) {
		return new(uint256.Int), nil
	}
	intermediate, err := fixedpoint.MulDiv(sqrtA, sqrtB, fixedpoint.Q96)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(amount0, intermediate, new(uint256.Int).Sub(sqrtB, sqrtA))
}

// ForAmount1 returns the liquidity that amount1 buys between two prices.
func ForAmount1(sqrtA, sqrtB, amount1 *uint256.Int) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.Eq(sqrtB) {
		return new(uint256.Int), nil
	}
	return fixedpoint.MulDiv(amount1, fixedpoint.Q96, new(uint256.Int).Sub(sqrtB, sqrtA))
}

// ForAmounts returns the largest liquidity that both amounts can fund at sqrtCurrent.
func ForAmounts(sqrtCurrent, sqrtA, sqrtB, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	var (
		liq *uint256.Int
		err error
	)
	switch {
	case !sqrtCurrent.Gt(sqrtA):
		liq, err = ForAmount0(sqrtA, sqrtB, amount0)
	case sqrtCurrent.Lt(sqrtB):
		liq0, err0 := ForAmount0(sqrtCurrent, sqrtB, amount0)
		if err0 != nil {
			return nil, err0
		}
		liq1, err1 := ForAmount1(sqrtA, sqrtCurrent, amount1)
		if err1 != nil {
			return nil, err1
		}
		liq = fixedpoint.Min(liq0, liq1)
	default:
		liq, err = ForAmount1(sqrtA, sqrtB, amount1)
	}
	if err != nil {
		return nil, err
	}
	if !fixedpoint.FitsUint128(liq) {
		return nil, ammerr.ErrLiquidityOverflow
	}
	return liq, nil
}

// AmountsForLiquidity returns the unsigned amounts a position of the given liquidity
// is worth at sqrtCurrent, rounded down.
func AmountsForLiquidity(sqrtCurrent, sqrtA, sqrtB, liq *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	amount0, amount1 := new(uint256.Int), new(uint256.Int)
	var err error
	switch {
	case !sqrtCurrent.Gt(sqrtA):
		amount0, err = Amount0Delta(sqrtA, sqrtB, liq, false)
	case sqrtCurrent.Lt(sqrtB):
		amount0, err = Amount0Delta(sqrtCurrent, sqrtB, liq, false)
		if err == nil {
			amount1, err = Amount1Delta(sqrtA, sqrtCurrent, liq, false)
		}
	default:
		amount1, err = Amount1Delta(sqrtA, sqrtB, liq, false)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
