// Package engine wires the ledger, pool registry, position manager and router around
// one undo journal. Every exported operation is all-or-nothing across all of them.
package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"clamm/internal/journal"
	"clamm/internal/ledger"
	"clamm/internal/manager"
	"clamm/internal/pool"
	"clamm/internal/registry"
	"clamm/internal/router"
)

var (
	DefaultManagerAddress = common.HexToAddress("0x00000000000000000000000000000000000c1a01")
	DefaultRouterAddress  = common.HexToAddress("0x00000000000000000000000000000000000c1a02")
)

// Options sets the accounts the manager and router hold funds under.
type Options struct {
	ManagerAddress common.Address
	RouterAddress  common.Address
}

func (o Options) withDefaults() Options {
	if o.ManagerAddress == (common.Address{}) {
		o.ManagerAddress = DefaultManagerAddress
	}
	if o.RouterAddress == (common.Address{}) {
		o.RouterAddress = DefaultRouterAddress
	}
	return o
}

type Engine struct {
	opts     Options
	journal  *journal.Journal
	ledger   *ledger.Ledger
	registry *registry.Registry
	manager  *manager.Manager
	router   *router.Router
	logger   *zap.Logger
}

func New(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	j := journal.New()
	l := ledger.New(j)
	reg := registry.New(l, j)
	return &Engine{
		opts:     opts,
		journal:  j,
		ledger:   l,
		registry: reg,
		manager:  manager.New(opts.ManagerAddress, reg, l, j),
		router:   router.New(opts.RouterAddress, reg, l, j),
		logger:   logger,
	}
}

func (e *Engine) Ledger() *ledger.Ledger       { return e.ledger }
func (e *Engine) Registry() *registry.Registry { return e.registry }
func (e *Engine) Manager() *manager.Manager    { return e.manager }
func (e *Engine) Router() *router.Router       { return e.router }

// atomic runs fn as one unit: either all of its mutations stay or none do.
func (e *Engine) atomic(op string, fn func() error) error {
	snap := e.journal.Snapshot()
	if err := fn(); err != nil {
		e.journal.RevertToSnapshot(snap)
		e.logger.Debug("operation reverted", zap.String("op", op), zap.Error(err))
		return err
	}
	e.journal.Commit()
	e.logger.Debug("operation applied", zap.String("op", op))
	return nil
}

// Fund credits an account out of thin air. It is how scenarios seed balances.
func (e *Engine) Fund(asset, account common.Address, amount *uint256.Int) error {
	return e.atomic("fund", func() error {
		return e.ledger.Mint(asset, account, amount)
	})
}

func (e *Engine) CreatePool(tokenA, tokenB common.Address, fee uint32) (pool.Key, error) {
	var key pool.Key
	err := e.atomic("create_pool", func() error {
		p, err := e.registry.CreatePool(tokenA, tokenB, fee)
		if err != nil {
			return err
		}
		key = p.Key()
		return nil
	})
	return key, err
}

func (e *Engine) Initialize(tokenA, tokenB common.Address, fee uint32, sqrtPriceX96 *uint256.Int) (int32, error) {
	var tick int32
	err := e.atomic("initialize", func() error {
		p, err := e.registry.Pool(tokenA, tokenB, fee)
		if err != nil {
			return err
		}
		if err := p.Initialize(sqrtPriceX96); err != nil {
			return err
		}
		tick = p.Tick()
		return nil
	})
	return tick, err
}

func (e *Engine) Mint(params manager.MintParams) (manager.MintResult, error) {
	var res manager.MintResult
	err := e.atomic("mint", func() error {
		var err error
		res, err = e.manager.Mint(params)
		return err
	})
	return res, err
}

func (e *Engine) AddLiquidity(caller common.Address, id uint64, amount0Desired, amount1Desired, amount0Min, amount1Min *uint256.Int) (liq, amount0, amount1 *uint256.Int, err error) {
	err = e.atomic("add_liquidity", func() error {
		var err error
		liq, amount0, amount1, err = e.manager.AddLiquidity(caller, id, amount0Desired, amount1Desired, amount0Min, amount1Min)
		return err
	})
	return liq, amount0, amount1, err
}

func (e *Engine) RemoveLiquidity(caller common.Address, id uint64, amount, amount0Min, amount1Min *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	err = e.atomic("remove_liquidity", func() error {
		var err error
		amount0, amount1, err = e.manager.RemoveLiquidity(caller, id, amount, amount0Min, amount1Min)
		return err
	})
	return amount0, amount1, err
}

func (e *Engine) Collect(caller common.Address, id uint64) (amount0, amount1 *uint256.Int, err error) {
	err = e.atomic("collect", func() error {
		var err error
		amount0, amount1, err = e.manager.Collect(caller, id)
		return err
	})
	return amount0, amount1, err
}

func (e *Engine) Burn(caller common.Address, id uint64) error {
	return e.atomic("burn", func() error {
		return e.manager.Burn(caller, id)
	})
}

func (e *Engine) TransferPosition(caller common.Address, id uint64, to common.Address) error {
	return e.atomic("transfer_position", func() error {
		return e.manager.TransferPosition(caller, id, to)
	})
}

func (e *Engine) SwapSingle(params router.SingleParams) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.atomic("swap_single", func() error {
		var err error
		out, err = e.router.SwapSingle(params)
		return err
	})
	return out, err
}

func (e *Engine) SwapMulti(params router.MultiParams) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.atomic("swap_multi", func() error {
		var err error
		out, err = e.router.SwapMulti(params)
		return err
	})
	return out, err
}

// QuoteSingle and QuoteMulti never mutate, so they skip the journal.
func (e *Engine) QuoteSingle(params router.SingleParams) (router.Quote, error) {
	return e.router.QuoteSingle(params)
}

func (e *Engine) QuoteMulti(path router.Path, amountIn *uint256.Int) (router.MultiQuote, error) {
	return e.router.QuoteMulti(path, amountIn)
}

func (e *Engine) FindRoute(from, to common.Address) (router.Path, error) {
	return e.router.FindRoute(from, to)
}

// Flash lends the amounts to borrower, who repays principal plus fee from its own
// balance before the call returns. It returns the fees paid.
func (e *Engine) Flash(tokenA, tokenB common.Address, fee uint32, borrower common.Address, amount0, amount1 *uint256.Int) (fee0, fee1 *uint256.Int, err error) {
	err = e.atomic("flash", func() error {
		p, err := e.registry.Pool(tokenA, tokenB, fee)
		if err != nil {
			return err
		}
		key := p.Key()
		fee0, fee1, err = p.Flash(borrower, amount0, amount1, func(owed0, owed1 *uint256.Int) error {
			repay0 := new(uint256.Int).Add(amount0, owed0)
			repay1 := new(uint256.Int).Add(amount1, owed1)
			if !repay0.IsZero() {
				if err := e.ledger.Transfer(key.Token0, borrower, p.Address(), repay0); err != nil {
					return fmt.Errorf("repay %s: %w", key.Token0.Hex(), err)
				}
			}
			if !repay1.IsZero() {
				if err := e.ledger.Transfer(key.Token1, borrower, p.Address(), repay1); err != nil {
					return fmt.Errorf("repay %s: %w", key.Token1.Hex(), err)
				}
			}
			return nil
		})
		return err
	})
	return fee0, fee1, err
}
