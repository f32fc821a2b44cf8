package tickmath

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
)

// encodePriceSqrt returns sqrt(reserve1/reserve0) * 2^96.
func encodePriceSqrt(reserve1, reserve0 int64) *uint256.Int {
	num := new(big.Int).Lsh(big.NewInt(reserve1), 192)
	num.Div(num, big.NewInt(reserve0))
	return uint256.MustFromBig(num.Sqrt(num))
}

func TestTickToSqrtPrice(t *testing.T) {
	t.Run("too low", func(t *testing.T) {
		_, err := TickToSqrtPrice(MinTick - 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ammerr.ErrTickOutOfRange)
	})

	t.Run("too high", func(t *testing.T) {
		_, err := TickToSqrtPrice(MaxTick + 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ammerr.ErrTickOutOfRange)
	})

	cases := []struct {
		tick int32
		want string
	}{
		{MinTick, "4295128739"},
		{MaxTick, "1461446703485210103287273052203988822378723970342"},
		{0, "79228162514264337593543950336"},
		{1, "79232123823359799118286999568"},
		{-1, "79224201403219477170569942574"},
		{-249428, "304011615425126403287043"},
	}
	for _, tc := range cases {
		got, err := TickToSqrtPrice(tc.tick)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Dec(), "tick %d", tc.tick)
	}
}

func TestTickToSqrtPriceIsMonotonic(t *testing.T) {
	prev, err := TickToSqrtPrice(-1000)
	require.NoError(t, err)
	for tick := int32(-999); tick <= 1000; tick++ {
		cur, err := TickToSqrtPrice(tick)
		require.NoError(t, err)
		require.True(t, cur.Gt(prev), "tick %d not increasing", tick)
		prev = cur
	}
}

func TestSqrtPriceToTick(t *testing.T) {
	t.Run("too low", func(t *testing.T) {
		_, err := SqrtPriceToTick(new(uint256.Int).Sub(MinSqrtRatio, uint256.NewInt(1)))
		assert.ErrorIs(t, err, ammerr.ErrPriceOutOfRange)
	})

	t.Run("too high", func(t *testing.T) {
		_, err := SqrtPriceToTick(MaxSqrtRatio)
		assert.ErrorIs(t, err, ammerr.ErrPriceOutOfRange)
	})

	t.Run("min ratio", func(t *testing.T) {
		tick, err := SqrtPriceToTick(MinSqrtRatio)
		require.NoError(t, err)
		assert.Equal(t, MinTick, tick)
	})

	t.Run("closest to max", func(t *testing.T) {
		tick, err := SqrtPriceToTick(new(uint256.Int).Sub(MaxSqrtRatio, uint256.NewInt(1)))
		require.NoError(t, err)
		assert.Equal(t, MaxTick-1, tick)
	})

	t.Run("price one", func(t *testing.T) {
		tick, err := SqrtPriceToTick(fixedpoint.Q96)
		require.NoError(t, err)
		assert.Equal(t, int32(0), tick)
	})

	ratios := []struct {
		name  string
		ratio *uint256.Int
	}{
		{"1e12:1", encodePriceSqrt(1_000_000_000_000, 1)},
		{"1e6:1", encodePriceSqrt(1_000_000, 1)},
		{"1:64", encodePriceSqrt(1, 64)},
		{"1:8", encodePriceSqrt(1, 8)},
		{"1:2", encodePriceSqrt(1, 2)},
		{"2:1", encodePriceSqrt(2, 1)},
		{"64:1", encodePriceSqrt(64, 1)},
		{"1:1e6", encodePriceSqrt(1, 1_000_000)},
		{"1:1e12", encodePriceSqrt(1, 1_000_000_000_000)},
	}
	for _, tc := range ratios {
		t.Run(tc.name, func(t *testing.T) {
			tick, err := SqrtPriceToTick(tc.ratio)
			require.NoError(t, err)
			atTick, err := TickToSqrtPrice(tick)
			require.NoError(t, err)
			atNext, err := TickToSqrtPrice(tick + 1)
			require.NoError(t, err)

			assert.False(t, atTick.Gt(tc.ratio))
			assert.True(t, tc.ratio.Lt(atNext))
		})
	}
}

func TestRoundTripFloorConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		tick := MinTick + 1 + int32(rng.Int63n(int64(MaxTick-MinTick-1)))
		price, err := TickToSqrtPrice(tick)
		require.NoError(t, err)

		back, err := SqrtPriceToTick(price)
		require.NoError(t, err)
		require.Equal(t, tick, back)

		below, err := SqrtPriceToTick(new(uint256.Int).Sub(price, uint256.NewInt(1)))
		require.NoError(t, err)
		require.Equal(t, tick-1, below)

		floor, err := TickToSqrtPrice(back)
		require.NoError(t, err)
		require.False(t, floor.Gt(price))
	}
}

func TestUsableTicksAndCompress(t *testing.T) {
	assert.Equal(t, int32(-887270), MinUsableTick(10))
	assert.Equal(t, int32(887220), MaxUsableTick(60))
	assert.Equal(t, int32(-2), Compress(-15, 10))
	assert.Equal(t, int32(-1), Compress(-10, 10))
	assert.Equal(t, int32(1), Compress(15, 10))
	assert.Equal(t, int32(0), Compress(0, 60))
}
