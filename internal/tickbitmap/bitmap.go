// Package tickbitmap tracks initialized ticks as a sparse set of 256-bit words.
package tickbitmap

import (
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"

	"clamm/internal/tickmath"
)

// Bitmap maps word index -> 256 bit flags. Bit b of word w stands for the compressed
// tick w*256+b, where compressed = floor(tick / spacing).
type Bitmap struct {
	spacing int32
	words   map[int16]*uint256.Int
}

func New(spacing int32) *Bitmap {
	if spacing <= 0 {
		panic(fmt.Sprintf("tickbitmap: invalid spacing %d", spacing))
	}
	return &Bitmap{spacing: spacing, words: make(map[int16]*uint256.Int)}
}

// Spacing returns the tick spacing the bitmap was built for.
func (b *Bitmap) Spacing() int32 {
	return b.spacing
}

func position(compressed int32) (int16, uint8) {
	return int16(compressed >> 8), uint8(compressed & 0xff)
}

// Flip toggles the initialized flag of tick. The tick must be a multiple of spacing.
func (b *Bitmap) Flip(tick int32) error {
	if tick%b.spacing != 0 {
		return fmt.Errorf("tick %d is not a multiple of spacing %d", tick, b.spacing)
	}
	wordPos, bitPos := position(tick / b.spacing)
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))

	word, ok := b.words[wordPos]
	if !ok {
		word = new(uint256.Int)
		b.words[wordPos] = word
	}
	word.Xor(word, mask)
	if word.IsZero() {
		delete(b.words, wordPos)
	}
	return nil
}

// IsInitialized reports whether tick's bit is set.
func (b *Bitmap) IsInitialized(tick int32) bool {
	if tick%b.spacing != 0 {
		return false
	}
	wordPos, bitPos := position(tick / b.spacing)
	word, ok := b.words[wordPos]
	if !ok {
		return false
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	return !mask.And(mask, word).IsZero()
}

// NextInitializedTickWithinOneWord searches the word containing the starting point.
// With lte it returns the greatest initialized tick <= tick; otherwise the least
// initialized tick > tick. When nothing is set in that word it returns the word's
// boundary tick and false.
func (b *Bitmap) NextInitializedTickWithinOneWord(tick int32, lte bool) (int32, bool) {
	compressed := tickmath.Compress(tick, b.spacing)

	if lte {
		wordPos, bitPos := position(compressed)
		// all the 1s at or to the right of bitPos
		mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
		mask.Add(mask, new(uint256.Int).SubUint64(mask, 1))
		masked := new(uint256.Int).And(b.word(wordPos), mask)

		if masked.IsZero() {
			return (compressed - int32(bitPos)) * b.spacing, false
		}
		msb := int32(masked.BitLen() - 1)
		return (compressed - (int32(bitPos) - msb)) * b.spacing, true
	}

	wordPos, bitPos := position(compressed + 1)
	// all the 1s at or to the left of bitPos
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	mask.SubUint64(mask, 1)
	mask.Not(mask)
	masked := new(uint256.Int).And(b.word(wordPos), mask)

	if masked.IsZero() {
		return (compressed + 1 + int32(255-bitPos)) * b.spacing, false
	}
	lsb := int32(leastSignificantBit(masked))
	return (compressed + 1 + (lsb - int32(bitPos))) * b.spacing, true
}

// NextInitializedTick scans word by word until an initialized tick is found or the
// usable tick range is exhausted. The bound tick is returned with false in that case.
func (b *Bitmap) NextInitializedTick(tick int32, lte bool) (int32, bool) {
	minTick := tickmath.MinUsableTick(b.spacing)
	maxTick := tickmath.MaxUsableTick(b.spacing)

	cur := tick
	for {
		next, ok := b.NextInitializedTickWithinOneWord(cur, lte)
		if lte {
			if ok && next >= minTick {
				return next, true
			}
			if next <= minTick {
				return minTick, false
			}
			cur = next - 1
			continue
		}
		if ok && next <= maxTick {
			return next, true
		}
		if next >= maxTick {
			return maxTick, false
		}
		cur = next
	}
}

// InitializedTicks returns every set tick in ascending order.
func (b *Bitmap) InitializedTicks() []int32 {
	out := make([]int32, 0)
	cur := tickmath.MinUsableTick(b.spacing) - 1
	for {
		next, ok := b.NextInitializedTick(cur, false)
		if !ok {
			return out
		}
		out = append(out, next)
		cur = next
	}
}

// Clone deep-copies the bitmap.
func (b *Bitmap) Clone() *Bitmap {
	words := make(map[int16]*uint256.Int, len(b.words))
	for k, v := range b.words {
		words[k] = v.Clone()
	}
	return &Bitmap{spacing: b.spacing, words: words}
}

func (b *Bitmap) word(pos int16) *uint256.Int {
	if w, ok := b.words[pos]; ok {
		return w
	}
	return new(uint256.Int)
}

func leastSignificantBit(x *uint256.Int) int {
	for i := 0; i < 4; i++ {
		if x[i] != 0 {
			return i*64 + bits.TrailingZeros64(x[i])
		}
	}
	return 256
}
