// Package pool implements a single concentrated-liquidity pool: price and tick state,
// per-tick and per-position accounting, and the swap loop.
//
// A pool is not safe for concurrent use. Every mutating call runs under a reentrancy
// lock and is all-or-nothing: on error the pool (and, when the journal is shared, the
// ledger) is rolled back to the state it had before the call.
package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
	"clamm/internal/journal"
	"clamm/internal/liquidity"
	"clamm/internal/tickbitmap"
	"clamm/internal/tickmath"
)

// Ledger is the custody collaborator. Pools only move their own balances out; funds
// coming in are pulled by the caller's callback and verified by balance.
type Ledger interface {
	BalanceOf(asset, account common.Address) *uint256.Int
	Transfer(asset, from, to common.Address, amount *uint256.Int) error
}

// MintCallback must pay the pool the two amounts before returning.
type MintCallback func(amount0Owed, amount1Owed *uint256.Int) error

// State is the pool's price slot plus the global fee accumulators.
type State struct {
	SqrtPriceX96         uint256.Int
	Tick                 int32
	Liquidity            uint256.Int
	FeeGrowthGlobal0X128 uint256.Int
	FeeGrowthGlobal1X128 uint256.Int
	Initialized          bool
}

type Pool struct {
	key                 Key
	address             common.Address
	spacing             int32
	maxLiquidityPerTick uint256.Int

	state     State
	ticks     map[int32]*TickInfo
	bitmap    *tickbitmap.Bitmap
	positions map[PositionKey]*Position

	ledger     Ledger
	journal    *journal.Journal
	ownJournal bool
	locked     bool
}

type Option func(*Pool)

// WithLedger makes the pool move real balances and verify payments.
func WithLedger(l Ledger) Option {
	return func(p *Pool) { p.ledger = l }
}

// WithJournal records the pool's mutations in a journal shared with other components.
// The owner of the journal commits it.
func WithJournal(j *journal.Journal) Option {
	return func(p *Pool) { p.journal = j }
}

func New(key Key, opts ...Option) (*Pool, error) {
	spacing, err := TickSpacing(key.Fee)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		key:                 key,
		address:             key.Address(),
		spacing:             spacing,
		maxLiquidityPerTick: *MaxLiquidityPerTick(spacing),
		ticks:               make(map[int32]*TickInfo),
		bitmap:              tickbitmap.New(spacing),
		positions:           make(map[PositionKey]*Position),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.journal == nil {
		p.journal = journal.New()
		p.ownJournal = true
	}
	return p, nil
}

func (p *Pool) Key() Key                { return p.key }
func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) TickSpacing() int32      { return p.spacing }
func (p *Pool) Fee() uint32             { return p.key.Fee }

// State returns a copy of the price slot.
func (p *Pool) State() State { return p.state }

func (p *Pool) SqrtPriceX96() *uint256.Int { return p.state.SqrtPriceX96.Clone() }
func (p *Pool) Tick() int32                { return p.state.Tick }
func (p *Pool) Liquidity() *uint256.Int    { return p.state.Liquidity.Clone() }

// TickInfo returns a copy of a tick's bookkeeping; ok is false for uninitialized ticks.
func (p *Pool) TickInfo(tick int32) (TickInfo, bool) {
	info, ok := p.ticks[tick]
	if !ok {
		return TickInfo{}, false
	}
	return *info, true
}

// InitializedTicks lists initialized ticks in ascending order.
func (p *Pool) InitializedTicks() []int32 {
	return p.bitmap.InitializedTicks()
}

// NextInitializedTick exposes the tick index search.
func (p *Pool) NextInitializedTick(tick int32, lte bool) (int32, bool) {
	return p.bitmap.NextInitializedTick(tick, lte)
}

// Position returns a copy of a position; ok is false when it does not exist.
func (p *Pool) Position(key PositionKey) (Position, bool) {
	pos, ok := p.positions[key]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns a copy of every position keyed by owner/range/salt.
func (p *Pool) Positions() map[PositionKey]Position {
	out := make(map[PositionKey]Position, len(p.positions))
	for k, v := range p.positions {
		out[k] = *v
	}
	return out
}

// PendingFees returns fees a position has earned but not yet settled into tokensOwed.
func (p *Pool) PendingFees(key PositionKey) (*uint256.Int, *uint256.Int, error) {
	pos, ok := p.positions[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int), nil
	}
	inside0, inside1 := p.feeGrowthInside(key.TickLower, key.TickUpper)
	return accruedFees(pos, inside0, inside1)
}

// run executes fn under the reentrancy lock as one journaled unit.
func (p *Pool) run(fn func() error) error {
	if p.locked {
		return ammerr.ErrLocked
	}
	p.locked = true
	defer func() { p.locked = false }()

	snap := p.journal.Snapshot()
	if err := fn(); err != nil {
		p.journal.RevertToSnapshot(snap)
		return err
	}
	if p.ownJournal {
		p.journal.Commit()
	}
	return nil
}

func (p *Pool) saveState() {
	saved := p.state
	p.journal.Append(func() { p.state = saved })
}

// Initialize sets the starting price. The tick follows from the price.
func (p *Pool) Initialize(sqrtPriceX96 *uint256.Int) error {
	return p.run(func() error {
		if p.state.Initialized {
			return ammerr.ErrAlreadyInitialized
		}
		tick, err := tickmath.SqrtPriceToTick(sqrtPriceX96)
		if err != nil {
			return err
		}
		p.saveState()
		p.state.SqrtPriceX96 = *sqrtPriceX96
		p.state.Tick = tick
		p.state.Initialized = true
		return nil
	})
}

func (p *Pool) checkTicks(lower, upper int32) error {
	if lower >= upper {
		return ammerr.InvalidTickRange(lower, upper)
	}
	if lower < tickmath.MinTick {
		return ammerr.TickOutOfRange(lower)
	}
	if upper > tickmath.MaxTick {
		return ammerr.TickOutOfRange(upper)
	}
	if lower%p.spacing != 0 || upper%p.spacing != 0 {
		return ammerr.InvalidTickRange(lower, upper)
	}
	return nil
}

// modifyPosition applies a signed liquidity delta to a position and returns the signed
// token amounts: positive is owed to the pool, negative is owed by it.
func (p *Pool) modifyPosition(key PositionKey, delta *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if !p.state.Initialized {
		return nil, nil, ammerr.ErrNotInitialized
	}
	if err := p.checkTicks(key.TickLower, key.TickUpper); err != nil {
		return nil, nil, err
	}
	if fixedpoint.IsNegative(delta) {
		pos, ok := p.positions[key]
		if !ok || fixedpoint.Abs(delta).Gt(&pos.Liquidity) {
			return nil, nil, ammerr.ErrInsufficientLiquidity
		}
	}

	var flippedLower, flippedUpper bool
	if !delta.IsZero() {
		var err error
		if flippedLower, err = p.updateTick(key.TickLower, delta, false); err != nil {
			return nil, nil, err
		}
		if flippedUpper, err = p.updateTick(key.TickUpper, delta, true); err != nil {
			return nil, nil, err
		}
		if flippedLower {
			if err := p.flipTick(key.TickLower); err != nil {
				return nil, nil, err
			}
		}
		if flippedUpper {
			if err := p.flipTick(key.TickUpper); err != nil {
				return nil, nil, err
			}
		}
	}

	inside0, inside1 := p.feeGrowthInside(key.TickLower, key.TickUpper)
	if err := p.updatePosition(key, delta, inside0, inside1); err != nil {
		return nil, nil, err
	}

	// ticks that no longer back any liquidity are forgotten
	if fixedpoint.IsNegative(delta) {
		if flippedLower {
			p.clearTick(key.TickLower)
		}
		if flippedUpper {
			p.clearTick(key.TickUpper)
		}
	}

	if delta.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}

	amount0, amount1, err := liquidity.AmountsForLiquidityDelta(
		delta,
		&p.state.SqrtPriceX96,
		tickmath.MustTickToSqrtPrice(key.TickLower),
		tickmath.MustTickToSqrtPrice(key.TickUpper),
	)
	if err != nil {
		return nil, nil, err
	}
	if p.state.Tick >= key.TickLower && p.state.Tick < key.TickUpper {
		next, err := liquidity.AddDelta(&p.state.Liquidity, delta)
		if err != nil {
			return nil, nil, err
		}
		p.saveState()
		p.state.Liquidity = *next
	}
	return amount0, amount1, nil
}

// Mint adds amount of liquidity to the position and collects the required token
// amounts through pay. The payment is verified against the pool's ledger balance.
func (p *Pool) Mint(key PositionKey, amount *uint256.Int, pay MintCallback) (amount0, amount1 *uint256.Int, err error) {
	err = p.run(func() error {
		if amount.IsZero() {
			return ammerr.ErrZeroLiquidity
		}
		if !fixedpoint.FitsUint128(amount) {
			return ammerr.ErrLiquidityOverflow
		}
		a0, a1, err := p.modifyPosition(key, amount)
		if err != nil {
			return err
		}

		before0, before1 := p.balances()
		if pay != nil {
			if err := pay(a0.Clone(), a1.Clone()); err != nil {
				return err
			}
		}
		if err := p.verifyReceived(before0, before1, a0, a1); err != nil {
			return err
		}
		amount0, amount1 = a0, a1
		return nil
	})
	return amount0, amount1, err
}

// Burn removes amount of liquidity from the position. The withdrawn principal is
// credited to tokensOwed; Collect pays it out. Burning zero settles accrued fees.
func (p *Pool) Burn(key PositionKey, amount *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	err = p.run(func() error {
		if !fixedpoint.FitsUint128(amount) {
			return ammerr.ErrInsufficientLiquidity
		}
		a0, a1, err := p.modifyPosition(key, fixedpoint.Neg(amount))
		if err != nil {
			return err
		}
		a0, a1 = fixedpoint.Abs(a0), fixedpoint.Abs(a1)
		if !a0.IsZero() || !a1.IsZero() {
			pos := p.touchPosition(key)
			pos.TokensOwed0.Add(&pos.TokensOwed0, a0)
			pos.TokensOwed1.Add(&pos.TokensOwed1, a1)
		}
		amount0, amount1 = a0, a1
		return nil
	})
	return amount0, amount1, err
}

// Collect pays up to the requested amounts of tokensOwed to recipient.
func (p *Pool) Collect(key PositionKey, recipient common.Address, amount0Requested, amount1Requested *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	err = p.run(func() error {
		amount0, amount1 = new(uint256.Int), new(uint256.Int)
		existing, ok := p.positions[key]
		if !ok {
			return nil
		}
		a0 := fixedpoint.Min(amount0Requested, &existing.TokensOwed0)
		a1 := fixedpoint.Min(amount1Requested, &existing.TokensOwed1)
		if a0.IsZero() && a1.IsZero() {
			return nil
		}

		pos := p.touchPosition(key)
		pos.TokensOwed0.Sub(&pos.TokensOwed0, a0)
		pos.TokensOwed1.Sub(&pos.TokensOwed1, a1)
		if err := p.pay(p.key.Token0, recipient, a0); err != nil {
			return err
		}
		if err := p.pay(p.key.Token1, recipient, a1); err != nil {
			return err
		}
		amount0, amount1 = a0, a1
		return nil
	})
	return amount0, amount1, err
}

// RemovePosition drops a position record that holds nothing. A position with liquidity
// or owed tokens fails with PositionNotCleared carrying the key's salt.
func (p *Pool) RemovePosition(key PositionKey) error {
	return p.run(func() error {
		pos, ok := p.positions[key]
		if !ok {
			return nil
		}
		if !pos.Empty() {
			return ammerr.PositionNotCleared(key.Salt)
		}
		p.touchPosition(key)
		delete(p.positions, key)
		return nil
	})
}

func (p *Pool) balances() (*uint256.Int, *uint256.Int) {
	if p.ledger == nil {
		return nil, nil
	}
	return p.ledger.BalanceOf(p.key.Token0, p.address), p.ledger.BalanceOf(p.key.Token1, p.address)
}

// verifyReceived checks that the pool's balances grew by at least the owed amounts.
func (p *Pool) verifyReceived(before0, before1, owed0, owed1 *uint256.Int) error {
	if p.ledger == nil {
		return nil
	}
	after0, after1 := p.balances()
	if !owed0.IsZero() && new(uint256.Int).Add(before0, owed0).Gt(after0) {
		return ammerr.ErrInsufficientInputAmount
	}
	if !owed1.IsZero() && new(uint256.Int).Add(before1, owed1).Gt(after1) {
		return ammerr.ErrInsufficientInputAmount
	}
	return nil
}

func (p *Pool) pay(asset, to common.Address, amount *uint256.Int) error {
	if p.ledger == nil || amount.IsZero() {
		return nil
	}
	return p.ledger.Transfer(asset, p.address, to, amount)
}

// Clone returns a detached deep copy for dry runs: no ledger, private journal.
func (p *Pool) Clone() *Pool {
	ticks := make(map[int32]*TickInfo, len(p.ticks))
	for k, v := range p.ticks {
		info := *v
		ticks[k] = &info
	}
	positions := make(map[PositionKey]*Position, len(p.positions))
	for k, v := range p.positions {
		pos := *v
		positions[k] = &pos
	}
	return &Pool{
		key:                 p.key,
		address:             p.address,
		spacing:             p.spacing,
		maxLiquidityPerTick: p.maxLiquidityPerTick,
		state:               p.state,
		ticks:               ticks,
		bitmap:              p.bitmap.Clone(),
		positions:           positions,
		journal:             journal.New(),
		ownJournal:          true,
	}
}

// Restore rebuilds a pool from persisted state. Ticks must carry their final values;
// the bitmap is rebuilt from them.
func Restore(key Key, state State, ticks map[int32]TickInfo, positions map[PositionKey]Position, opts ...Option) (*Pool, error) {
	p, err := New(key, opts...)
	if err != nil {
		return nil, err
	}
	p.state = state
	for tick, info := range ticks {
		if !info.Initialized() {
			continue
		}
		stored := info
		p.ticks[tick] = &stored
		if err := p.bitmap.Flip(tick); err != nil {
			return nil, fmt.Errorf("restore tick %d: %w", tick, err)
		}
	}
	for k, v := range positions {
		stored := v
		p.positions[k] = &stored
	}
	return p, nil
}
