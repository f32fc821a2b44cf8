package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"clamm/internal/ammerr"
)

const (
	addrSize = common.AddressLength
	feeSize  = 3
	hopSize  = addrSize + feeSize
)

// Path is a chain of pools: Tokens[i] -> Tokens[i+1] through the Fees[i] tier.
type Path struct {
	Tokens []common.Address
	Fees   []uint32
}

// Hop is one pool traversal of a path.
type Hop struct {
	TokenIn  common.Address
	TokenOut common.Address
	Fee      uint32
}

// NewPath checks the token/fee alternation and returns the path.
func NewPath(tokens []common.Address, fees []uint32) (Path, error) {
	if len(fees) == 0 || len(tokens) != len(fees)+1 {
		return Path{}, ammerr.ErrInvalidPath
	}
	for _, fee := range fees {
		if fee >= 1<<24 {
			return Path{}, ammerr.ErrInvalidPath
		}
	}
	return Path{Tokens: tokens, Fees: fees}, nil
}

// Hops splits the path into pool traversals.
func (p Path) Hops() []Hop {
	hops := make([]Hop, len(p.Fees))
	for i, fee := range p.Fees {
		hops[i] = Hop{TokenIn: p.Tokens[i], TokenOut: p.Tokens[i+1], Fee: fee}
	}
	return hops
}

// Encode packs the path as token (20 bytes), fee (3 bytes big endian), token, ...
func (p Path) Encode() []byte {
	out := make([]byte, 0, len(p.Fees)*hopSize+addrSize)
	for i, fee := range p.Fees {
		out = append(out, p.Tokens[i].Bytes()...)
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	if len(p.Tokens) > 0 {
		out = append(out, p.Tokens[len(p.Tokens)-1].Bytes()...)
	}
	return out
}

// DecodePath parses the packed form produced by Encode.
func DecodePath(data []byte) (Path, error) {
	if len(data) < hopSize+addrSize || (len(data)-addrSize)%hopSize != 0 {
		return Path{}, ammerr.ErrInvalidPath
	}
	n := (len(data) - addrSize) / hopSize
	p := Path{
		Tokens: make([]common.Address, 0, n+1),
		Fees:   make([]uint32, 0, n),
	}
	for i := 0; i < n; i++ {
		off := i * hopSize
		p.Tokens = append(p.Tokens, common.BytesToAddress(data[off:off+addrSize]))
		f := data[off+addrSize : off+hopSize]
		p.Fees = append(p.Fees, uint32(f[0])<<16|uint32(f[1])<<8|uint32(f[2]))
	}
	p.Tokens = append(p.Tokens, common.BytesToAddress(data[len(data)-addrSize:]))
	return p, nil
}

// ParsePath reads the human form "0xA,500,0xB,3000,0xC".
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 || len(parts)%2 == 0 {
		return Path{}, ammerr.ErrInvalidPath
	}
	var (
		tokens []common.Address
		fees   []uint32
	)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i%2 == 0 {
			if !common.IsHexAddress(part) {
				return Path{}, fmt.Errorf("path token %q: %w", part, ammerr.ErrInvalidPath)
			}
			tokens = append(tokens, common.HexToAddress(part))
			continue
		}
		fee, err := strconv.ParseUint(part, 10, 24)
		if err != nil {
			return Path{}, fmt.Errorf("path fee %q: %w", part, ammerr.ErrInvalidPath)
		}
		fees = append(fees, uint32(fee))
	}
	return NewPath(tokens, fees)
}

// String renders the human form accepted by ParsePath.
func (p Path) String() string {
	var b strings.Builder
	for i, token := range p.Tokens {
		if i > 0 {
			fmt.Fprintf(&b, ",%d,", p.Fees[i-1])
		}
		b.WriteString(token.Hex())
	}
	return b.String()
}
