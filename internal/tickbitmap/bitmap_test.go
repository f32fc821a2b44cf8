package tickbitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clamm/internal/tickmath"
)

func newBitmapWith(t *testing.T, spacing int32, ticks ...int32) *Bitmap {
	t.Helper()
	b := New(spacing)
	for _, tick := range ticks {
		require.NoError(t, b.Flip(tick), "flip %d", tick)
	}
	return b
}

type nextCase struct {
	tick     int32
	lte      bool
	wantTick int32
	wantInit bool
}

func assertNext(t *testing.T, next func(int32, bool) (int32, bool), cases map[string]nextCase) {
	t.Helper()
	for name, tc := range cases {
		gotTick, gotInit := next(tc.tick, tc.lte)
		assert.Equal(t, tc.wantTick, gotTick, name)
		assert.Equal(t, tc.wantInit, gotInit, name)
	}
}

func TestFlipToggles(t *testing.T) {
	b := New(1)
	require.False(t, b.IsInitialized(-230))
	require.NoError(t, b.Flip(-230))
	require.True(t, b.IsInitialized(-230))
	for _, neighbour := range []int32{-231, -229, -230 + 256, -230 - 256} {
		assert.False(t, b.IsInitialized(neighbour), "tick %d", neighbour)
	}

	require.NoError(t, b.Flip(-230))
	assert.False(t, b.IsInitialized(-230))
	assert.Empty(t, b.words, "empty words should be dropped")
}

func TestFlipRejectsUnalignedTick(t *testing.T) {
	assert.Error(t, New(60).Flip(61))
}

func TestNextInitializedTickWithinOneWord(t *testing.T) {
	b := newBitmapWith(t, 1, -200, -55, -4, 70, 78, 84, 139, 240, 535)

	assertNext(t, b.NextInitializedTickWithinOneWord, map[string]nextCase{
		"right of initialized tick":             {78, false, 84, true},
		"right of negative initialized tick":    {-55, false, -4, true},
		"directly right":                        {77, false, 78, true},
		"directly right negative":               {-56, false, -55, true},
		"right boundary jumps to next word end": {255, false, 511, false},
		"next word from left boundary":          {-257, false, -200, true},
		"does not exceed word":                  {508, false, 511, false},
		"skips half word":                       {383, false, 511, false},
		"at initialized tick lte":               {78, true, 78, true},
		"left of tick lte":                      {79, true, 78, true},
		"word boundary lte":                     {258, true, 256, false},
		"at word boundary lte":                  {256, true, 256, false},
		"nearest to left":                       {72, true, 70, true},
		"negative word lte":                     {-257, true, -512, false},
		"whole word lte":                        {1023, true, 768, false},
		"half word lte":                         {900, true, 768, false},
		"zero lte":                              {0, true, 0, false},
		"minus one to right":                    {-1, false, 70, true},
	})
}

func TestNextInitializedTickWithSpacing(t *testing.T) {
	b := newBitmapWith(t, 10, -100, 100)

	assertNext(t, b.NextInitializedTickWithinOneWord, map[string]nextCase{
		"up from 0":     {0, false, 100, true},
		"down from -15": {-15, true, -100, true},
		"up from -105":  {-105, false, -100, true},
	})
}

func TestNextInitializedTickAcrossWords(t *testing.T) {
	b := newBitmapWith(t, 1, -200, -55, -4, 70, 78, 84, 139, 240, 535)

	assertNext(t, b.NextInitializedTick, map[string]nextCase{
		"up from 255":         {255, false, 535, true},
		"down past last tick": {-201, true, tickmath.MinTick, false},
		"up past last tick":   {600, false, tickmath.MaxTick, false},
		"down at -4":          {-4, true, -4, true},
	})
}

func TestNextInitializedTickAtExtremes(t *testing.T) {
	b := New(60)
	maxUsable := tickmath.MaxUsableTick(60)
	minUsable := tickmath.MinUsableTick(60)

	assertNext(t, b.NextInitializedTick, map[string]nextCase{
		"search above max": {maxUsable, false, maxUsable, false},
		"search below min": {minUsable, true, minUsable, false},
	})

	require.NoError(t, b.Flip(minUsable))
	tick, ok := b.NextInitializedTick(0, true)
	assert.True(t, ok)
	assert.Equal(t, minUsable, tick)
}

func TestInitializedTicksAndClone(t *testing.T) {
	b := newBitmapWith(t, 10, 300, -120, 5000, -887270)
	require.Equal(t, []int32{-887270, -120, 300, 5000}, b.InitializedTicks())

	clone := b.Clone()
	require.NoError(t, clone.Flip(300))
	assert.True(t, b.IsInitialized(300), "clone mutation leaked into original")
	assert.False(t, clone.IsInitialized(300))
}
