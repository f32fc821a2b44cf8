// Package ammerr defines the tagged failures surfaced by the engine.
//
// Every failure kind has a Solidity-style signature. The first four bytes of its
// keccak256 hash form the selector, and the parameters are ABI encoded after it, so a
// caller can branch on the selector without parsing messages.
package ammerr

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Kind identifies one failure class.
type Kind struct {
	Name      string
	Signature string
	Selector  [4]byte
	args      abi.Arguments
}

var registry = map[[4]byte]*Kind{}

func newKind(name string, types ...string) *Kind {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("ammerr: bad abi type %q for %s: %v", t, name, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}

	k := &Kind{
		Name:      name,
		Signature: name + "(" + strings.Join(types, ",") + ")",
		args:      args,
	}
	copy(k.Selector[:], crypto.Keccak256([]byte(k.Signature))[:4])
	registry[k.Selector] = k
	return k
}

var (
	KindInvalidTickRange        = newKind("InvalidTickRange", "int24", "int24")
	KindTickOutOfRange          = newKind("TickOutOfRange", "int24")
	KindPriceOutOfRange         = newKind("PriceOutOfRange", "uint160")
	KindAlreadyInitialized      = newKind("AlreadyInitialized")
	KindNotInitialized          = newKind("NotInitialized")
	KindInsufficientLiquidity   = newKind("InsufficientLiquidity")
	KindNotEnoughLiquidity      = newKind("NotEnoughLiquidity")
	KindSlippageExceeded        = newKind("SlippageExceeded", "uint256", "uint256")
	KindPositionNotCleared      = newKind("PositionNotCleared", "uint256")
	KindNotAuthorized           = newKind("NotAuthorized", "address")
	KindZeroLiquidity           = newKind("ZeroLiquidity")
	KindInvalidPriceLimit       = newKind("InvalidPriceLimit")
	KindInsufficientInputAmount = newKind("InsufficientInputAmount")
	KindLocked                  = newKind("Locked")
	KindInvalidPath             = newKind("InvalidPath")
	KindPoolNotFound            = newKind("PoolNotFound", "address", "address", "uint24")
	KindPoolAlreadyExists       = newKind("PoolAlreadyExists", "address", "address", "uint24")
	KindInvalidFeeTier          = newKind("InvalidFeeTier", "uint24")
	KindPositionNotFound        = newKind("PositionNotFound", "uint256")
	KindLiquidityOverflow       = newKind("LiquidityOverflow")
	KindInsufficientBalance     = newKind("InsufficientBalance", "address", "address")
	KindBalanceOverflow         = newKind("BalanceOverflow", "address", "address")
)

// Sentinels for errors.Is. They match any error of the same kind regardless of params.
var (
	ErrInvalidTickRange        = &Error{Kind: KindInvalidTickRange}
	ErrTickOutOfRange          = &Error{Kind: KindTickOutOfRange}
	ErrPriceOutOfRange         = &Error{Kind: KindPriceOutOfRange}
	ErrAlreadyInitialized      = &Error{Kind: KindAlreadyInitialized}
	ErrNotInitialized          = &Error{Kind: KindNotInitialized}
	ErrInsufficientLiquidity   = &Error{Kind: KindInsufficientLiquidity}
	ErrNotEnoughLiquidity      = &Error{Kind: KindNotEnoughLiquidity}
	ErrSlippageExceeded        = &Error{Kind: KindSlippageExceeded}
	ErrPositionNotCleared      = &Error{Kind: KindPositionNotCleared}
	ErrNotAuthorized           = &Error{Kind: KindNotAuthorized}
	ErrZeroLiquidity           = &Error{Kind: KindZeroLiquidity}
	ErrInvalidPriceLimit       = &Error{Kind: KindInvalidPriceLimit}
	ErrInsufficientInputAmount = &Error{Kind: KindInsufficientInputAmount}
	ErrLocked                  = &Error{Kind: KindLocked}
	ErrInvalidPath             = &Error{Kind: KindInvalidPath}
	ErrPoolNotFound            = &Error{Kind: KindPoolNotFound}
	ErrPoolAlreadyExists       = &Error{Kind: KindPoolAlreadyExists}
	ErrInvalidFeeTier          = &Error{Kind: KindInvalidFeeTier}
	ErrPositionNotFound        = &Error{Kind: KindPositionNotFound}
	ErrLiquidityOverflow       = &Error{Kind: KindLiquidityOverflow}
	ErrInsufficientBalance     = &Error{Kind: KindInsufficientBalance}
	ErrBalanceOverflow         = &Error{Kind: KindBalanceOverflow}
)

// Error is a tagged failure. Params are stored in their ABI-ready Go form.
type Error struct {
	Kind   *Kind
	Params []interface{}
}

func (e *Error) Error() string {
	if len(e.Params) == 0 {
		return e.Kind.Name
	}
	parts := make([]string, 0, len(e.Params))
	for _, p := range e.Params {
		switch v := p.(type) {
		case common.Address:
			parts = append(parts, v.Hex())
		default:
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	return e.Kind.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Is reports whether target has the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Selector returns the 4-byte kind selector.
func (e *Error) Selector() [4]byte {
	return e.Kind.Selector
}

// Encode returns selector || abi.encode(params).
func (e *Error) Encode() ([]byte, error) {
	out := make([]byte, 4, 4+32*len(e.Params))
	copy(out, e.Kind.Selector[:])
	if len(e.Kind.args) == 0 {
		return out, nil
	}
	if len(e.Params) != len(e.Kind.args) {
		return nil, fmt.Errorf("encode %s: have %d params, want %d", e.Kind.Name, len(e.Params), len(e.Kind.args))
	}
	packed, err := e.Kind.args.Pack(e.Params...)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Kind.Name, err)
	}
	return append(out, packed...), nil
}

// Decode parses revert data produced by Encode.
func Decode(data []byte) (*Error, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("revert data too short: %d bytes", len(data))
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	kind, ok := registry[sel]
	if !ok {
		return nil, fmt.Errorf("unknown selector 0x%x", sel)
	}
	if len(kind.args) == 0 {
		return &Error{Kind: kind}, nil
	}
	params, err := kind.args.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind.Name, err)
	}
	return &Error{Kind: kind, Params: params}, nil
}

// As extracts the tagged error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindBySelector looks up a registered kind.
func KindBySelector(sel [4]byte) (*Kind, bool) {
	k, ok := registry[sel]
	return k, ok
}

func InvalidTickRange(lower, upper int32) error {
	return &Error{Kind: KindInvalidTickRange, Params: []interface{}{big.NewInt(int64(lower)), big.NewInt(int64(upper))}}
}

func TickOutOfRange(tick int32) error {
	return &Error{Kind: KindTickOutOfRange, Params: []interface{}{big.NewInt(int64(tick))}}
}

func PriceOutOfRange(sqrtPriceX96 *uint256.Int) error {
	return &Error{Kind: KindPriceOutOfRange, Params: []interface{}{sqrtPriceX96.ToBig()}}
}

func SlippageExceeded(amountOut, minAmountOut *uint256.Int) error {
	return &Error{Kind: KindSlippageExceeded, Params: []interface{}{amountOut.ToBig(), minAmountOut.ToBig()}}
}

func PositionNotCleared(id uint64) error {
	return &Error{Kind: KindPositionNotCleared, Params: []interface{}{new(big.Int).SetUint64(id)}}
}

func NotAuthorized(caller common.Address) error {
	return &Error{Kind: KindNotAuthorized, Params: []interface{}{caller}}
}

func PoolNotFound(asset0, asset1 common.Address, fee uint32) error {
	return &Error{Kind: KindPoolNotFound, Params: []interface{}{asset0, asset1, big.NewInt(int64(fee))}}
}

func PoolAlreadyExists(asset0, asset1 common.Address, fee uint32) error {
	return &Error{Kind: KindPoolAlreadyExists, Params: []interface{}{asset0, asset1, big.NewInt(int64(fee))}}
}

func InvalidFeeTier(fee uint32) error {
	return &Error{Kind: KindInvalidFeeTier, Params: []interface{}{big.NewInt(int64(fee))}}
}

func PositionNotFound(id uint64) error {
	return &Error{Kind: KindPositionNotFound, Params: []interface{}{new(big.Int).SetUint64(id)}}
}

func InsufficientBalance(asset, account common.Address) error {
	return &Error{Kind: KindInsufficientBalance, Params: []interface{}{asset, account}}
}

func BalanceOverflow(asset, account common.Address) error {
	return &Error{Kind: KindBalanceOverflow, Params: []interface{}{asset, account}}
}
