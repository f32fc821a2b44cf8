package pool

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"

	"clamm/internal/ammerr"
)

// FeeTickSpacing lists the supported fee tiers (in pips) and their tick spacing.
var FeeTickSpacing = map[uint32]int32{
	100:   1,
	500:   10,
	3000:  60,
	10000: 200,
}

// TickSpacing returns the spacing for a fee tier.
func TickSpacing(fee uint32) (int32, error) {
	spacing, ok := FeeTickSpacing[fee]
	if !ok {
		return 0, ammerr.InvalidFeeTier(fee)
	}
	return spacing, nil
}

// Key identifies a pool. Token0 sorts below Token1.
type Key struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
	Fee    uint32         `json:"fee"`
}

// NewKey sorts the two assets and validates the fee tier.
func NewKey(tokenA, tokenB common.Address, fee uint32) (Key, error) {
	if tokenA == tokenB {
		return Key{}, fmt.Errorf("pool: identical assets %s", tokenA.Hex())
	}
	if _, err := TickSpacing(fee); err != nil {
		return Key{}, err
	}
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return Key{Token0: tokenA, Token1: tokenB, Fee: fee}, nil
}

// ID is blake3(token0 || token1 || fee as uint24).
func (k Key) ID() [32]byte {
	h := blake3.New()
	h.Write(k.Token0.Bytes())
	h.Write(k.Token1.Bytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], k.Fee)
	h.Write(feeBytes[1:])

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Address is the account that holds the pool's reserves in the ledger.
func (k Key) Address() common.Address {
	id := k.ID()
	return common.BytesToAddress(id[12:])
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Token0.Hex(), k.Token1.Hex(), k.Fee)
}
