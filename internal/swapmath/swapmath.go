// Package swapmath computes a single swap step inside one initialized-tick interval.
package swapmath

import (
	"github.com/holiman/uint256"

	"clamm/internal/fixedpoint"
	"clamm/internal/liquidity"
)

// FeeDenominator expresses fees in pips: 3000 is 0.3%.
const FeeDenominator = 1_000_000

var feeDenominator = uint256.NewInt(FeeDenominator)

// Step is the outcome of ComputeSwapStep.
type Step struct {
	SqrtPriceNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeSwapStep moves the price from current toward target using at most
// amountRemaining. With exactIn the remaining amount is input (fee included);
// otherwise it is the output still wanted. The direction follows from the two prices.
func ComputeSwapStep(current, target, liq, amountRemaining *uint256.Int, feePips uint32, exactIn bool) (Step, error) {
	zeroForOne := !current.Lt(target)
	fee := uint256.NewInt(uint64(feePips))

	var (
		next      *uint256.Int
		amountIn  = new(uint256.Int)
		amountOut = new(uint256.Int)
		err       error
	)

	if exactIn {
		var lessFee *uint256.Int
		lessFee, err = fixedpoint.MulDiv(amountRemaining, new(uint256.Int).Sub(feeDenominator, fee), feeDenominator)
		if err != nil {
			return Step{}, err
		}
		if zeroForOne {
			amountIn, err = liquidity.Amount0Delta(target, current, liq, true)
		} else {
			amountIn, err = liquidity.Amount1Delta(current, target, liq, true)
		}
		if err != nil {
			return Step{}, err
		}
		if !lessFee.Lt(amountIn) {
			next = target.Clone()
		} else {
			next, err = liquidity.NextSqrtPriceFromInput(current, liq, lessFee, zeroForOne)
			if err != nil {
				return Step{}, err
			}
		}
	} else {
		if zeroForOne {
			amountOut, err = liquidity.Amount1Delta(target, current, liq, false)
		} else {
			amountOut, err = liquidity.Amount0Delta(current, target, liq, false)
		}
		if err != nil {
			return Step{}, err
		}
		if !amountRemaining.Lt(amountOut) {
			next = target.Clone()
		} else {
			next, err = liquidity.NextSqrtPriceFromOutput(current, liq, amountRemaining, zeroForOne)
			if err != nil {
				return Step{}, err
			}
		}
	}

	reachedTarget := target.Eq(next)

	// recompute the side that was not fixed by the target
	if zeroForOne {
		if !(reachedTarget && exactIn) {
			if amountIn, err = liquidity.Amount0Delta(next, current, liq, true); err != nil {
				return Step{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if amountOut, err = liquidity.Amount1Delta(next, current, liq, false); err != nil {
				return Step{}, err
			}
		}
	} else {
		if !(reachedTarget && exactIn) {
			if amountIn, err = liquidity.Amount1Delta(current, next, liq, true); err != nil {
				return Step{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if amountOut, err = liquidity.Amount0Delta(current, next, liq, false); err != nil {
				return Step{}, err
			}
		}
	}

	// cap the output amount to not exceed the remaining output amount
	if !exactIn && amountOut.Gt(amountRemaining) {
		amountOut = amountRemaining.Clone()
	}

	var feeAmount *uint256.Int
	if exactIn && !next.Eq(target) {
		// the remainder of the input is all fee
		feeAmount = new(uint256.Int).Sub(amountRemaining, amountIn)
	} else {
		feeAmount, err = fixedpoint.MulDivRoundingUp(amountIn, fee, new(uint256.Int).Sub(feeDenominator, fee))
		if err != nil {
			return Step{}, err
		}
	}

	return Step{
		SqrtPriceNextX96: next,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		FeeAmount:        feeAmount,
	}, nil
}
