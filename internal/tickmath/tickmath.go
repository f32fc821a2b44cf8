// Package tickmath converts between ticks and Q64.96 square-root prices.
package tickmath

import (
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
)

const (
	// MinTick is the smallest tick whose price fits the Q64.96 range (log base sqrt(1.0001) of 2^-128).
	MinTick int32 = -887272
	// MaxTick is the largest valid tick.
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is TickToSqrtPrice(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is TickToSqrtPrice(MaxTick).
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")
)

// sqrt(1.0001^-(2^i)) in Q128.128 for bit i of |tick|.
var ratioConstants = [20]*uint256.Int{
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

var (
	lowMask32 = uint256.NewInt(0xffffffff)

	// log_sqrt(1.0001)(2) in Q64.64 scaled to Q128.128 by the multiplication below.
	logSqrt10001Multiplier = uint256.MustFromDecimal("255738958999603826347141")
	tickLowCorrection      = uint256.MustFromDecimal("3402992956809132418596140100660247210")
	tickHighCorrection     = uint256.MustFromDecimal("291339464771989622907027621153398088495")
)

// TickToSqrtPrice returns sqrt(1.0001^tick) * 2^96, rounded up.
func TickToSqrtPrice(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ammerr.TickOutOfRange(tick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(ratioConstants[0])
	} else {
		ratio.Set(fixedpoint.Q128)
	}
	for i := 1; i < len(ratioConstants); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, ratioConstants[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(fixedpoint.MaxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so that SqrtPriceToTick(TickToSqrtPrice(t)) == t.
	roundUp := !new(uint256.Int).And(ratio, lowMask32).IsZero()
	ratio.Rsh(ratio, 32)
	if roundUp {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// MustTickToSqrtPrice panics on an out-of-range tick. Only for validated ticks.
func MustTickToSqrtPrice(tick int32) *uint256.Int {
	p, err := TickToSqrtPrice(tick)
	if err != nil {
		panic(err)
	}
	return p
}

// SqrtPriceToTick returns the greatest tick whose sqrt price is <= sqrtPriceX96.
// Valid inputs are in [MinSqrtRatio, MaxSqrtRatio).
func SqrtPriceToTick(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96.Lt(MinSqrtRatio) || !sqrtPriceX96.Lt(MaxSqrtRatio) {
		return 0, ammerr.PriceOutOfRange(sqrtPriceX96)
	}

	ratio := new(uint256.Int).Lsh(sqrtPriceX96, 32)
	msb := ratio.BitLen() - 1

	r := new(uint256.Int)
	if msb >= 128 {
		r.Rsh(ratio, uint(msb-127))
	} else {
		r.Lsh(ratio, uint(127-msb))
	}

	// log2 is a signed Q64.64 value held in two's complement.
	log2 := new(uint256.Int)
	if msb >= 128 {
		log2.SetUint64(uint64(msb - 128))
	} else {
		log2.SetUint64(uint64(128 - msb))
		log2.Neg(log2)
	}
	log2.Lsh(log2, 64)

	f := new(uint256.Int)
	for i := 0; i < 14; i++ {
		r.Mul(r, r)
		r.Rsh(r, 127)
		f.Rsh(r, 128)
		log2.Or(log2, new(uint256.Int).Lsh(f, uint(63-i)))
		r.Rsh(r, uint(f.Uint64()))
	}

	logSqrt10001 := new(uint256.Int).Mul(log2, logSqrt10001Multiplier)

	tickLow := signedShift128(new(uint256.Int).Sub(logSqrt10001, tickLowCorrection))
	tickHigh := signedShift128(new(uint256.Int).Add(logSqrt10001, tickHighCorrection))

	if tickLow == tickHigh {
		return tickLow, nil
	}
	high, err := TickToSqrtPrice(tickHigh)
	if err != nil {
		return tickLow, nil
	}
	if !high.Gt(sqrtPriceX96) {
		return tickHigh, nil
	}
	return tickLow, nil
}

func signedShift128(x *uint256.Int) int32 {
	v := new(uint256.Int).SRsh(x, 128)
	return int32(int64(v.Uint64()))
}

// MinUsableTick is the lowest tick that is a multiple of spacing.
func MinUsableTick(spacing int32) int32 {
	return (MinTick / spacing) * spacing
}

// MaxUsableTick is the highest tick that is a multiple of spacing.
func MaxUsableTick(spacing int32) int32 {
	return (MaxTick / spacing) * spacing
}

// Compress returns floor(tick / spacing).
func Compress(tick, spacing int32) int32 {
	c := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		c--
	}
	return c
}
