package pool

import (
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
	"clamm/internal/liquidity"
	"clamm/internal/tickmath"
)

// TickInfo is the per-boundary bookkeeping. LiquidityNet is a two's complement int256:
// the liquidity added when the price crosses the tick left to right.
type TickInfo struct {
	LiquidityGross        uint256.Int
	LiquidityNet          uint256.Int
	FeeGrowthOutside0X128 uint256.Int
	FeeGrowthOutside1X128 uint256.Int
}

// Initialized reports whether any position references the tick.
func (t *TickInfo) Initialized() bool {
	return !t.LiquidityGross.IsZero()
}

// MaxLiquidityPerTick caps gross liquidity so the sum over all usable ticks fits uint128.
func MaxLiquidityPerTick(spacing int32) *uint256.Int {
	minTick := tickmath.MinUsableTick(spacing)
	maxTick := tickmath.MaxUsableTick(spacing)
	numTicks := uint64((maxTick-minTick)/spacing) + 1
	return new(uint256.Int).Div(fixedpoint.MaxUint128, uint256.NewInt(numTicks))
}

// touchTick returns the tick entry for mutation, journaling its previous value.
func (p *Pool) touchTick(tick int32) *TickInfo {
	prev, existed := p.ticks[tick]
	var saved TickInfo
	if existed {
		saved = *prev
	}
	p.journal.Append(func() {
		if existed {
			restored := saved
			p.ticks[tick] = &restored
		} else {
			delete(p.ticks, tick)
		}
	})
	if !existed {
		prev = new(TickInfo)
		p.ticks[tick] = prev
	}
	return prev
}

func (p *Pool) clearTick(tick int32) {
	if _, ok := p.ticks[tick]; !ok {
		return
	}
	p.touchTick(tick)
	delete(p.ticks, tick)
}

func (p *Pool) flipTick(tick int32) error {
	if err := p.bitmap.Flip(tick); err != nil {
		return err
	}
	p.journal.Append(func() { _ = p.bitmap.Flip(tick) })
	return nil
}

// updateTick applies a liquidity delta at a boundary and reports whether the tick
// flipped between initialized and uninitialized.
func (p *Pool) updateTick(tick int32, delta *uint256.Int, upper bool) (bool, error) {
	var grossBefore uint256.Int
	if info, ok := p.ticks[tick]; ok {
		grossBefore = info.LiquidityGross
	}
	grossAfter, err := liquidity.AddDelta(&grossBefore, delta)
	if err != nil {
		return false, err
	}
	if grossAfter.Gt(&p.maxLiquidityPerTick) {
		return false, ammerr.ErrLiquidityOverflow
	}

	info := p.touchTick(tick)
	flipped := grossAfter.IsZero() != grossBefore.IsZero()

	if grossBefore.IsZero() && tick <= p.state.Tick {
		// growth below the current tick is assumed to have happened below it
		info.FeeGrowthOutside0X128 = p.state.FeeGrowthGlobal0X128
		info.FeeGrowthOutside1X128 = p.state.FeeGrowthGlobal1X128
	}
	info.LiquidityGross = *grossAfter
	if upper {
		info.LiquidityNet.Sub(&info.LiquidityNet, delta)
	} else {
		info.LiquidityNet.Add(&info.LiquidityNet, delta)
	}
	return flipped, nil
}

// crossTick flips the outside accumulators of tick and returns its liquidityNet.
func (p *Pool) crossTick(tick int32, feeGrowthGlobal0, feeGrowthGlobal1 *uint256.Int) *uint256.Int {
	info := p.touchTick(tick)
	info.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0, &info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1, &info.FeeGrowthOutside1X128)
	return info.LiquidityNet.Clone()
}

// feeGrowthInside returns the fee growth per unit of liquidity accumulated inside
// [lower, upper). Values wrap; only differences are meaningful.
func (p *Pool) feeGrowthInside(lower, upper int32) (*uint256.Int, *uint256.Int) {
	var lo, hi TickInfo
	if info, ok := p.ticks[lower]; ok {
		lo = *info
	}
	if info, ok := p.ticks[upper]; ok {
		hi = *info
	}
	global0 := &p.state.FeeGrowthGlobal0X128
	global1 := &p.state.FeeGrowthGlobal1X128

	var below0, below1, above0, above1 *uint256.Int
	if p.state.Tick >= lower {
		below0, below1 = lo.FeeGrowthOutside0X128.Clone(), lo.FeeGrowthOutside1X128.Clone()
	} else {
		below0 = fixedpoint.WrappingSub(global0, &lo.FeeGrowthOutside0X128)
		below1 = fixedpoint.WrappingSub(global1, &lo.FeeGrowthOutside1X128)
	}
	if p.state.Tick < upper {
		above0, above1 = hi.FeeGrowthOutside0X128.Clone(), hi.FeeGrowthOutside1X128.Clone()
	} else {
		above0 = fixedpoint.WrappingSub(global0, &hi.FeeGrowthOutside0X128)
		above1 = fixedpoint.WrappingSub(global1, &hi.FeeGrowthOutside1X128)
	}

	inside0 := fixedpoint.WrappingSub(fixedpoint.WrappingSub(global0, below0), above0)
	inside1 := fixedpoint.WrappingSub(fixedpoint.WrappingSub(global1, below1), above1)
	return inside0, inside1
}
