package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
	"clamm/internal/liquidity"
	"clamm/internal/swapmath"
	"clamm/internal/tickmath"
)

// SwapCallback must pay the pool its side of the swap. Deltas are two's complement:
// positive is owed to the pool, negative was sent to the recipient.
type SwapCallback func(amount0Delta, amount1Delta *uint256.Int) error

type SwapParams struct {
	ZeroForOne bool
	// Amount is the exact input, or the exact output when ExactOutput is set.
	Amount      *uint256.Int
	ExactOutput bool
	// SqrtPriceLimitX96 bounds the execution price. Nil or zero means no limit, in
	// which case running out of liquidity is an error instead of a partial fill.
	SqrtPriceLimitX96 *uint256.Int
}

type SwapResult struct {
	AmountIn     *uint256.Int
	AmountOut    *uint256.Int
	SqrtPriceX96 *uint256.Int
	Tick         int32
	Liquidity    *uint256.Int
	// TicksCrossed counts initialized ticks the swap crossed.
	TicksCrossed int
}

type swapState struct {
	remaining  *uint256.Int
	calculated *uint256.Int
	sqrtPrice  *uint256.Int
	tick       int32
	feeGrowth  *uint256.Int
	liquidity  *uint256.Int
	crossed    int
}

// Swap trades against the pool, sends the output to recipient and collects the input
// through pay.
func (p *Pool) Swap(recipient common.Address, params SwapParams, pay SwapCallback) (result SwapResult, err error) {
	err = p.run(func() error {
		res, err := p.swap(params)
		if err != nil {
			return err
		}

		tokenIn, tokenOut := p.key.Token0, p.key.Token1
		if !params.ZeroForOne {
			tokenIn, tokenOut = tokenOut, tokenIn
		}
		if err := p.pay(tokenOut, recipient, res.AmountOut); err != nil {
			return err
		}

		var before *uint256.Int
		if p.ledger != nil {
			before = p.ledger.BalanceOf(tokenIn, p.address)
		}
		if pay != nil {
			amount0, amount1 := res.AmountIn.Clone(), fixedpoint.Neg(res.AmountOut)
			if !params.ZeroForOne {
				amount0, amount1 = amount1, amount0
			}
			if err := pay(amount0, amount1); err != nil {
				return err
			}
		}
		if p.ledger != nil {
			after := p.ledger.BalanceOf(tokenIn, p.address)
			if new(uint256.Int).Add(before, res.AmountIn).Gt(after) {
				return ammerr.ErrInsufficientInputAmount
			}
		}
		result = res
		return nil
	})
	return result, err
}

// Simulate runs the swap on a throwaway copy and leaves the pool untouched.
func (p *Pool) Simulate(params SwapParams) (SwapResult, error) {
	return p.Clone().Swap(common.Address{}, params, nil)
}

func (p *Pool) swap(params SwapParams) (SwapResult, error) {
	if params.Amount == nil || params.Amount.IsZero() {
		return SwapResult{}, ammerr.ErrInsufficientInputAmount
	}
	if !p.state.Initialized {
		return SwapResult{}, ammerr.ErrNotInitialized
	}

	zeroForOne := params.ZeroForOne
	exactIn := !params.ExactOutput

	limitGiven := params.SqrtPriceLimitX96 != nil && !params.SqrtPriceLimitX96.IsZero()
	var limit *uint256.Int
	switch {
	case limitGiven:
		limit = params.SqrtPriceLimitX96.Clone()
	case zeroForOne:
		limit = new(uint256.Int).AddUint64(tickmath.MinSqrtRatio, 1)
	default:
		limit = new(uint256.Int).SubUint64(tickmath.MaxSqrtRatio, 1)
	}
	price := &p.state.SqrtPriceX96
	if zeroForOne {
		if !limit.Lt(price) || !limit.Gt(tickmath.MinSqrtRatio) {
			return SwapResult{}, ammerr.ErrInvalidPriceLimit
		}
	} else {
		if !limit.Gt(price) || !limit.Lt(tickmath.MaxSqrtRatio) {
			return SwapResult{}, ammerr.ErrInvalidPriceLimit
		}
	}

	feeGrowth := &p.state.FeeGrowthGlobal1X128
	if zeroForOne {
		feeGrowth = &p.state.FeeGrowthGlobal0X128
	}
	s := swapState{
		remaining:  params.Amount.Clone(),
		calculated: new(uint256.Int),
		sqrtPrice:  p.state.SqrtPriceX96.Clone(),
		tick:       p.state.Tick,
		feeGrowth:  feeGrowth.Clone(),
		liquidity:  p.state.Liquidity.Clone(),
	}

	for !s.remaining.IsZero() && !s.sqrtPrice.Eq(limit) {
		start := s.sqrtPrice.Clone()

		var (
			tickNext    int32
			initialized bool
		)
		if s.liquidity.IsZero() {
			// nothing to trade against until the next initialized tick
			tickNext, initialized = p.bitmap.NextInitializedTick(s.tick, zeroForOne)
			if !initialized {
				tickNext = tickmath.MaxTick
				if zeroForOne {
					tickNext = tickmath.MinTick
				}
			}
		} else {
			tickNext, initialized = p.bitmap.NextInitializedTickWithinOneWord(s.tick, zeroForOne)
		}
		if tickNext < tickmath.MinTick {
			tickNext = tickmath.MinTick
		} else if tickNext > tickmath.MaxTick {
			tickNext = tickmath.MaxTick
		}

		priceNext := tickmath.MustTickToSqrtPrice(tickNext)
		target := priceNext
		if (zeroForOne && priceNext.Lt(limit)) || (!zeroForOne && priceNext.Gt(limit)) {
			target = limit
		}

		step, err := swapmath.ComputeSwapStep(s.sqrtPrice, target, s.liquidity, s.remaining, p.key.Fee, exactIn)
		if err != nil {
			return SwapResult{}, err
		}
		s.sqrtPrice = step.SqrtPriceNextX96

		if exactIn {
			s.remaining.Sub(s.remaining, new(uint256.Int).Add(step.AmountIn, step.FeeAmount))
			s.calculated.Add(s.calculated, step.AmountOut)
		} else {
			s.remaining.Sub(s.remaining, step.AmountOut)
			s.calculated.Add(s.calculated, new(uint256.Int).Add(step.AmountIn, step.FeeAmount))
		}

		if !s.liquidity.IsZero() {
			growth, err := fixedpoint.MulDiv(step.FeeAmount, fixedpoint.Q128, s.liquidity)
			if err != nil {
				return SwapResult{}, err
			}
			s.feeGrowth = fixedpoint.WrappingAdd(s.feeGrowth, growth)
		}

		if s.sqrtPrice.Eq(priceNext) {
			if initialized {
				global0, global1 := &p.state.FeeGrowthGlobal0X128, s.feeGrowth
				if zeroForOne {
					global0, global1 = s.feeGrowth, &p.state.FeeGrowthGlobal1X128
				}
				net := p.crossTick(tickNext, global0, global1)
				if zeroForOne {
					net = fixedpoint.Neg(net)
				}
				next, err := liquidity.AddDelta(s.liquidity, net)
				if err != nil {
					return SwapResult{}, err
				}
				s.liquidity = next
				s.crossed++
			}
			if zeroForOne {
				s.tick = tickNext - 1
			} else {
				s.tick = tickNext
			}
		} else if !s.sqrtPrice.Eq(start) {
			tick, err := tickmath.SqrtPriceToTick(s.sqrtPrice)
			if err != nil {
				return SwapResult{}, err
			}
			s.tick = tick
		}
	}

	if !s.remaining.IsZero() && !limitGiven {
		return SwapResult{}, ammerr.ErrNotEnoughLiquidity
	}

	p.saveState()
	p.state.SqrtPriceX96 = *s.sqrtPrice
	p.state.Tick = s.tick
	p.state.Liquidity = *s.liquidity
	if zeroForOne {
		p.state.FeeGrowthGlobal0X128 = *s.feeGrowth
	} else {
		p.state.FeeGrowthGlobal1X128 = *s.feeGrowth
	}

	filled := new(uint256.Int).Sub(params.Amount, s.remaining)
	res := SwapResult{
		SqrtPriceX96: s.sqrtPrice.Clone(),
		Tick:         s.tick,
		Liquidity:    s.liquidity.Clone(),
		TicksCrossed: s.crossed,
	}
	if exactIn {
		res.AmountIn, res.AmountOut = filled, s.calculated
	} else {
		res.AmountIn, res.AmountOut = s.calculated, filled
	}
	return res, nil
}
