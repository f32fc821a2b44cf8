// Package dex reads live V3 pool state over JSON-RPC.
package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Caller performs eth_call. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolState is the live state of a pool at one block.
type PoolState struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	Fee          uint32
	TickSpacing  int32
	SqrtPriceX96 *uint256.Int
	Tick         int32
	Liquidity    *uint256.Int
}

// TickLiquidity is an initialized tick and its signed net liquidity.
type TickLiquidity struct {
	Index        int32
	LiquidityNet *big.Int
}

// TokenMeta is ERC20 metadata. Decimals is zero when the call failed.
type TokenMeta struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// FetchPoolState loads the immutable pool parameters and its current slot0 and
// liquidity. A nil block reads the latest state.
func FetchPoolState(ctx context.Context, caller Caller, pool common.Address, block *big.Int) (PoolState, error) {
	if caller == nil {
		return PoolState{}, fmt.Errorf("chain client is nil")
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}
	state := PoolState{Address: pool}

	values, err := callMethod(ctx, caller, pool, poolABI, "token0", block)
	if err != nil {
		return PoolState{}, err
	}
	if state.Token0, err = asAddress(values[0]); err != nil {
		return PoolState{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "token1", block)
	if err != nil {
		return PoolState{}, err
	}
	if state.Token1, err = asAddress(values[0]); err != nil {
		return PoolState{}, fmt.Errorf("token1: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "fee", block)
	if err != nil {
		return PoolState{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("fee: %w", err)
	}
	state.Fee = uint32(feeInt.Uint64())

	values, err = callMethod(ctx, caller, pool, poolABI, "tickSpacing", block)
	if err != nil {
		return PoolState{}, err
	}
	tickSpacingInt, err := asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("tick spacing: %w", err)
	}
	if state.TickSpacing, err = int24FromBig(tickSpacingInt); err != nil {
		return PoolState{}, fmt.Errorf("tick spacing: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "slot0", block)
	if err != nil {
		return PoolState{}, err
	}
	if len(values) < 2 {
		return PoolState{}, fmt.Errorf("slot0: short output")
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("slot0 price: %w", err)
	}
	if state.SqrtPriceX96, err = toUint256(sqrt); err != nil {
		return PoolState{}, fmt.Errorf("slot0 price: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return PoolState{}, fmt.Errorf("slot0 tick: %w", err)
	}
	if state.Tick, err = int24FromBig(tickInt); err != nil {
		return PoolState{}, fmt.Errorf("slot0 tick: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, "liquidity", block)
	if err != nil {
		return PoolState{}, err
	}
	liq, err := asBigInt(values[0])
	if err != nil {
		return PoolState{}, fmt.Errorf("liquidity: %w", err)
	}
	if state.Liquidity, err = toUint256(liq); err != nil {
		return PoolState{}, fmt.Errorf("liquidity: %w", err)
	}

	return state, nil
}

// FetchTicks scans the tick bitmap words within `words` of the word holding the
// current tick and returns the initialized ticks found there, ascending.
func FetchTicks(ctx context.Context, caller Caller, state PoolState, words int, block *big.Int) ([]TickLiquidity, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if state.TickSpacing <= 0 {
		return nil, fmt.Errorf("tick spacing must be positive")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	compressed := state.Tick / state.TickSpacing
	if state.Tick < 0 && state.Tick%state.TickSpacing != 0 {
		compressed--
	}
	center := int(compressed >> 8)

	var out []TickLiquidity
	for pos := center - words; pos <= center+words; pos++ {
		if pos < -32768 || pos > 32767 {
			continue
		}
		values, err := callMethod(ctx, caller, state.Address, poolABI, "tickBitmap", block, int16(pos))
		if err != nil {
			return nil, err
		}
		word, err := asBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("tick bitmap word %d: %w", pos, err)
		}
		for bit := 0; bit < 256; bit++ {
			if word.Bit(bit) == 0 {
				continue
			}
			index := (int32(pos)*256 + int32(bit)) * state.TickSpacing
			values, err := callMethod(ctx, caller, state.Address, poolABI, "ticks", block, big.NewInt(int64(index)))
			if err != nil {
				return nil, err
			}
			if len(values) < 2 {
				return nil, fmt.Errorf("ticks(%d): short output", index)
			}
			net, err := asBigInt(values[1])
			if err != nil {
				return nil, fmt.Errorf("ticks(%d) net: %w", index, err)
			}
			out = append(out, TickLiquidity{Index: index, LiquidityNet: net})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func callMethod(ctx context.Context, caller Caller, target common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// FetchTokenMeta loads token metadata via ERC20 calls. Symbol and name fall back to
// the bytes32 variants.
func FetchTokenMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (TokenMeta, error) {
	meta := TokenMeta{Address: token}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20StringView.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32View.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, caller, token, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}

func toUint256(value *big.Int) (*uint256.Int, error) {
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", value)
	}
	v, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fmt.Errorf("value %s overflows 256 bits", value)
	}
	return v, nil
}
