package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"clamm/internal/liquidity"
	"clamm/internal/model"
	"clamm/internal/pool"
	"clamm/internal/tickmath"
)

// DefaultFunder owns the liquidity a seed recreates.
var DefaultFunder = common.HexToAddress("0x0000000000000000000000000000000000005eed")

// SeedConfig controls which pools are copied and how much of their liquidity.
type SeedConfig struct {
	Pools  []common.Address
	Funder common.Address
	// Words is how many tick bitmap words on each side of the current one are scanned
	// for liquidity. Zero copies only the price.
	Words        int
	Block        uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Seeder turns live pools into an operation stream that recreates them.
type Seeder struct {
	cfg    SeedConfig
	caller Caller
	tokens *TokenMetaCache
	logger *zap.Logger
}

func NewSeeder(cfg SeedConfig, caller Caller, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Funder == (common.Address{}) {
		cfg.Funder = DefaultFunder
	}
	return &Seeder{cfg: cfg, caller: caller, tokens: NewTokenMetaCache(), logger: logger}
}

// Seed reads every configured pool and returns the operations, pool by pool.
func (s *Seeder) Seed(ctx context.Context) ([]model.Operation, error) {
	if len(s.cfg.Pools) == 0 {
		return nil, fmt.Errorf("at least one pool is required")
	}
	var block *big.Int
	if s.cfg.Block > 0 {
		block = new(big.Int).SetUint64(s.cfg.Block)
	}

	var ops []model.Operation
	for _, address := range s.cfg.Pools {
		var state PoolState
		err := s.retry(ctx, address, "slot0", func(ctx context.Context) error {
			var err error
			state, err = FetchPoolState(ctx, s.caller, address, block)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", address.Hex(), err)
		}
		if err := checkTier(state); err != nil {
			return nil, fmt.Errorf("pool %s: %w", address.Hex(), err)
		}
		s.logTokens(ctx, state)

		var ticks []TickLiquidity
		if s.cfg.Words > 0 {
			err := s.retry(ctx, address, "ticks", func(ctx context.Context) error {
				var err error
				ticks, err = FetchTicks(ctx, s.caller, state, s.cfg.Words, block)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("pool %s ticks: %w", address.Hex(), err)
			}
		}

		poolOps, err := PoolOperations(state, ticks, s.cfg.Funder)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", address.Hex(), err)
		}
		s.logger.Info("pool seeded",
			zap.String("pool", address.Hex()),
			zap.Uint32("fee", state.Fee),
			zap.Int32("tick", state.Tick),
			zap.Int("ticks", len(ticks)),
			zap.Int("operations", len(poolOps)),
		)
		ops = append(ops, poolOps...)
	}
	return ops, nil
}

// retry runs one read against a pool until it succeeds, the context ends or the
// configured attempts are spent. The wait doubles after every failure.
func (s *Seeder) retry(ctx context.Context, address common.Address, read string, fn func(context.Context) error) error {
	wait := s.cfg.RetryBackoff
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}
	attempts := s.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		s.logger.Warn("pool read failed, retrying",
			zap.String("pool", address.Hex()),
			zap.String("read", read),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("%s after %d attempts: %w", read, attempts, err)
}

func (s *Seeder) logTokens(ctx context.Context, state PoolState) {
	for _, token := range []common.Address{state.Token0, state.Token1} {
		meta, ok := s.tokens.Get(token)
		if !ok {
			var err error
			meta, err = FetchTokenMeta(ctx, s.caller, token, s.logger)
			if err != nil {
				s.logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
			}
			s.tokens.Set(token, meta)
		}
		s.logger.Info("token",
			zap.String("address", token.Hex()),
			zap.String("symbol", meta.Symbol),
			zap.Uint8("decimals", meta.Decimals),
		)
	}
}

func checkTier(state PoolState) error {
	spacing, err := pool.TickSpacing(state.Fee)
	if err != nil {
		return err
	}
	if spacing != state.TickSpacing {
		return fmt.Errorf("fee %d uses tick spacing %d here, pool has %d", state.Fee, spacing, state.TickSpacing)
	}
	return nil
}

// segment is a tick range with constant active liquidity.
type segment struct {
	lower, upper int32
	liquidity    *big.Int
}

// segments rebuilds the liquidity curve between the scanned ticks. Net liquidity is
// anchored on the pool's active liquidity at the current tick, so ticks outside the
// scanned window still count.
func segments(state PoolState, ticks []TickLiquidity) []segment {
	if len(ticks) < 2 {
		return nil
	}
	prefix := make([]*big.Int, len(ticks))
	sum := new(big.Int)
	for i, t := range ticks {
		sum.Add(sum, t.LiquidityNet)
		prefix[i] = new(big.Int).Set(sum)
	}

	active := state.Liquidity.ToBig()
	offset := new(big.Int)
	switch {
	case state.Tick < ticks[0].Index:
		offset.Set(active)
	case state.Tick >= ticks[len(ticks)-1].Index:
		offset.Sub(active, prefix[len(prefix)-1])
	default:
		for i := 0; i < len(ticks)-1; i++ {
			if state.Tick >= ticks[i].Index && state.Tick < ticks[i+1].Index {
				offset.Sub(active, prefix[i])
				break
			}
		}
	}

	out := make([]segment, 0, len(ticks)-1)
	for i := 0; i < len(ticks)-1; i++ {
		liq := new(big.Int).Add(offset, prefix[i])
		if liq.Sign() <= 0 {
			continue
		}
		out = append(out, segment{lower: ticks[i].Index, upper: ticks[i+1].Index, liquidity: liq})
	}
	return out
}

// PoolOperations returns create_pool, initialize and, when ticks are given, the fund
// and mint operations that approximate the live liquidity curve.
func PoolOperations(state PoolState, ticks []TickLiquidity, funder common.Address) ([]model.Operation, error) {
	token0, token1 := state.Token0.Hex(), state.Token1.Hex()
	ops := []model.Operation{
		{Op: model.OpCreatePool, Token0: token0, Token1: token1, Fee: state.Fee},
		{Op: model.OpInitialize, Token0: token0, Token1: token1, Fee: state.Fee, SqrtPriceX96: state.SqrtPriceX96.Dec()},
	}

	var mints []model.Operation
	total0, total1 := new(uint256.Int), new(uint256.Int)
	for _, seg := range segments(state, ticks) {
		liq, overflow := uint256.FromBig(seg.liquidity)
		if overflow {
			return nil, fmt.Errorf("segment [%d, %d] liquidity overflows", seg.lower, seg.upper)
		}
		sqrtLower, err := tickmath.TickToSqrtPrice(seg.lower)
		if err != nil {
			return nil, err
		}
		sqrtUpper, err := tickmath.TickToSqrtPrice(seg.upper)
		if err != nil {
			return nil, err
		}
		amount0, amount1, err := liquidity.AmountsForLiquidity(state.SqrtPriceX96, sqrtLower, sqrtUpper, liq)
		if err != nil {
			return nil, fmt.Errorf("segment [%d, %d]: %w", seg.lower, seg.upper, err)
		}
		minted, err := liquidity.ForAmounts(state.SqrtPriceX96, sqrtLower, sqrtUpper, amount0, amount1)
		if err != nil || minted.IsZero() {
			continue
		}

		lower, upper := seg.lower, seg.upper
		mints = append(mints, model.Operation{
			Op:             model.OpMint,
			Caller:         funder.Hex(),
			Token0:         token0,
			Token1:         token1,
			Fee:            state.Fee,
			TickLower:      &lower,
			TickUpper:      &upper,
			Amount0Desired: amount0.Dec(),
			Amount1Desired: amount1.Dec(),
		})
		total0.Add(total0, amount0)
		total1.Add(total1, amount1)
	}
	if len(mints) == 0 {
		return ops, nil
	}

	if !total0.IsZero() {
		ops = append(ops, model.Operation{Op: model.OpFund, Asset: token0, Account: funder.Hex(), Amount: total0.Dec()})
	}
	if !total1.IsZero() {
		ops = append(ops, model.Operation{Op: model.OpFund, Asset: token1, Account: funder.Hex(), Amount: total1.Dec()})
	}
	return append(ops, mints...), nil
}
