package liquidity

import (
	"errors"

	"github.com/holiman/uint256"

	"clamm/internal/fixedpoint"
)

var (
	ErrSqrtPriceZero  = errors.New("liquidity: sqrt price must be greater than zero")
	ErrLiquidityZero  = errors.New("liquidity: liquidity must be greater than zero")
	ErrPriceUnderflow = errors.New("liquidity: output exceeds reserves at this price")
	ErrPriceOverflow  = errors.New("liquidity: next sqrt price exceeds 160 bits")
)

// Amount0Delta returns liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB), the token0
// amount between two prices. Order of the prices does not matter.
func Amount0Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, fixedpoint.Resolution96)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)

	if roundUp {
		tmp, err := fixedpoint.MulDivRoundingUp(numerator1, numerator2, sqrtB)
		if err != nil {
			return nil, err
		}
		return fixedpoint.DivRoundingUp(tmp, sqrtA)
	}
	tmp, err := fixedpoint.MulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return tmp.Div(tmp, sqrtA), nil
}

// Amount1Delta returns liquidity * (sqrtB - sqrtA), the token1 amount between two prices.
func Amount1Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return fixedpoint.MulDivRoundingUp(liquidity, diff, fixedpoint.Q96)
	}
	return fixedpoint.MulDiv(liquidity, diff, fixedpoint.Q96)
}

// SignedAmount0Delta takes a two's complement liquidity delta. Adding liquidity rounds
// up (the pool is paid); removing rounds down and the result is negative.
func SignedAmount0Delta(sqrtA, sqrtB, delta *uint256.Int) (*uint256.Int, error) {
	if fixedpoint.IsNegative(delta) {
		amt, err := Amount0Delta(sqrtA, sqrtB, fixedpoint.Neg(delta), false)
		if err != nil {
			return nil, err
		}
		return fixedpoint.Neg(amt), nil
	}
	return Amount0Delta(sqrtA, sqrtB, delta, true)
}

// SignedAmount1Delta is the token1 counterpart of SignedAmount0Delta.
func SignedAmount1Delta(sqrtA, sqrtB, delta *uint256.Int) (*uint256.Int, error) {
	if fixedpoint.IsNegative(delta) {
		amt, err := Amount1Delta(sqrtA, sqrtB, fixedpoint.Neg(delta), false)
		if err != nil {
			return nil, err
		}
		return fixedpoint.Neg(amt), nil
	}
	return Amount1Delta(sqrtA, sqrtB, delta, true)
}

// NextSqrtPriceFromAmount0RoundingUp moves the price by a token0 amount. Adding token0
// lowers the price. Rounding up keeps the price on the pool's side.
func NextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return sqrtP.Clone(), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, fixedpoint.Resolution96)

	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtP)
	if add {
		if !overflow {
			denominator, carry := new(uint256.Int).AddOverflow(numerator1, product)
			if !carry {
				return fixedpoint.MulDivRoundingUp(numerator1, sqrtP, denominator)
			}
		}
		// numerator1 / (numerator1/sqrtP + amount)
		denominator := new(uint256.Int).Div(numerator1, sqrtP)
		denominator.Add(denominator, amount)
		return fixedpoint.DivRoundingUp(numerator1, denominator)
	}

	if overflow || !numerator1.Gt(product) {
		return nil, ErrPriceUnderflow
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	next, err := fixedpoint.MulDivRoundingUp(numerator1, sqrtP, denominator)
	if err != nil {
		return nil, err
	}
	if !fixedpoint.FitsUint160(next) {
		return nil, ErrPriceOverflow
	}
	return next, nil
}

// NextSqrtPriceFromAmount1RoundingDown moves the price by a token1 amount. Adding
// token1 raises the price.
func NextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if add {
		quotient, err := fixedpoint.MulDiv(amount, fixedpoint.Q96, liquidity)
		if err != nil {
			return nil, err
		}
		next, carry := new(uint256.Int).AddOverflow(sqrtP, quotient)
		if carry || !fixedpoint.FitsUint160(next) {
			return nil, ErrPriceOverflow
		}
		return next, nil
	}

	quotient, err := fixedpoint.MulDivRoundingUp(amount, fixedpoint.Q96, liquidity)
	if err != nil {
		return nil, err
	}
	if !sqrtP.Gt(quotient) {
		return nil, ErrPriceUnderflow
	}
	return new(uint256.Int).Sub(sqrtP, quotient), nil
}

// NextSqrtPriceFromInput returns the price after amountIn enters the pool.
func NextSqrtPriceFromInput(sqrtP, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtP.IsZero() {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return NextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amountIn, true)
	}
	return NextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after amountOut leaves the pool.
func NextSqrtPriceFromOutput(sqrtP, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtP.IsZero() {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return NextSqrtPriceFromAmount1RoundingDown(sqrtP, liquidity, amountOut, false)
	}
	return NextSqrtPriceFromAmount0RoundingUp(sqrtP, liquidity, amountOut, false)
}
