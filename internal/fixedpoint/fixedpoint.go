// Package fixedpoint provides the Q64.96 and Q128.128 helpers shared by the math packages.
//
// All values are 256-bit unsigned integers. Signed quantities (liquidity deltas, net
// liquidity) use two's complement in the same width. Fee growth accumulators wrap
// modulo 2^256: only differences between two readings are meaningful.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	Resolution96  = 96
	Resolution128 = 128
)

var (
	ErrMulDivOverflow = errors.New("fixedpoint: result overflows 256 bits")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
)

var (
	Q96        = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution96)
	Q128       = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution128)
	MaxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	MaxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	MaxUint256 = new(uint256.Int).SetAllOne()
)

// MulDiv returns floor(a*b/denominator) computed over a 512-bit product.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, ErrMulDivOverflow
	}
	return z, nil
}

// MulDivRoundingUp returns ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, b, denominator).IsZero() {
		if z.Eq(MaxUint256) {
			return nil, ErrMulDivOverflow
		}
		z.AddUint64(z, 1)
	}
	return z, nil
}

// DivRoundingUp returns ceil(a/b).
func DivRoundingUp(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	z := new(uint256.Int).Div(a, b)
	if !new(uint256.Int).Mod(a, b).IsZero() {
		z.AddUint64(z, 1)
	}
	return z, nil
}

// WrappingAdd returns a+b mod 2^256.
func WrappingAdd(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Add(a, b)
}

// WrappingSub returns a-b mod 2^256. Used for fee growth differences.
func WrappingSub(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sub(a, b)
}

// FitsUint128 reports whether x <= 2^128-1.
func FitsUint128(x *uint256.Int) bool {
	return !x.Gt(MaxUint128)
}

// FitsUint160 reports whether x <= 2^160-1.
func FitsUint160(x *uint256.Int) bool {
	return !x.Gt(MaxUint160)
}

// IsNegative interprets x as a two's complement int256.
func IsNegative(x *uint256.Int) bool {
	return x.Sign() < 0
}

// Abs returns |x| for a two's complement int256.
func Abs(x *uint256.Int) *uint256.Int {
	if x.Sign() < 0 {
		return new(uint256.Int).Neg(x)
	}
	return x.Clone()
}

// Neg returns -x in two's complement.
func Neg(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Neg(x)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}
