// Package manager tracks liquidity positions on behalf of owners. Each position gets a
// sequential token id; the pool-side position is held under the manager's own address
// with the token id as salt, so two owners never share pool-side state.
package manager

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
	"clamm/internal/journal"
	"clamm/internal/liquidity"
	"clamm/internal/pool"
	"clamm/internal/tickmath"
)

// Pools resolves a pool by unordered pair and fee tier.
type Pools interface {
	Pool(tokenA, tokenB common.Address, fee uint32) (*pool.Pool, error)
}

// Funds moves the owner's assets into a pool during mint and add.
type Funds interface {
	Transfer(asset, from, to common.Address, amount *uint256.Int) error
}

// MintParams describes a new position or a top-up of the owner's existing position on
// the same pool and range.
type MintParams struct {
	Owner          common.Address
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TickLower      int32
	TickUpper      int32
	Amount0Desired *uint256.Int
	Amount1Desired *uint256.Int
	Amount0Min     *uint256.Int
	Amount1Min     *uint256.Int
}

// MintResult reports the token id and what was deposited.
type MintResult struct {
	TokenID   uint64
	Liquidity *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

// record is the manager-side half of a position. Liquidity and owed balances live in
// the pool.
type record struct {
	owner     common.Address
	pool      pool.Key
	tickLower int32
	tickUpper int32
}

type rangeKey struct {
	owner     common.Address
	pool      pool.Key
	tickLower int32
	tickUpper int32
}

func (r record) rangeKey() rangeKey {
	return rangeKey{owner: r.owner, pool: r.pool, tickLower: r.tickLower, tickUpper: r.tickUpper}
}

type Manager struct {
	address common.Address
	pools   Pools
	funds   Funds

	nextID  uint64
	records map[uint64]record
	byRange map[rangeKey]uint64
	owners  *owners

	journal    *journal.Journal
	ownJournal bool
}

// New returns a manager that holds pool positions under address. funds may be nil for
// pools that run without a ledger.
func New(address common.Address, pools Pools, funds Funds, j *journal.Journal) *Manager {
	m := &Manager{
		address: address,
		pools:   pools,
		funds:   funds,
		nextID:  1,
		records: make(map[uint64]record),
		byRange: make(map[rangeKey]uint64),
		journal: j,
	}
	if m.journal == nil {
		m.journal = journal.New()
		m.ownJournal = true
	}
	m.owners = newOwners(m.journal)
	return m
}

func (m *Manager) Address() common.Address { return m.address }

func (m *Manager) run(fn func() error) error {
	snap := m.journal.Snapshot()
	if err := fn(); err != nil {
		m.journal.RevertToSnapshot(snap)
		return err
	}
	if m.ownJournal {
		m.journal.Commit()
	}
	return nil
}

func (m *Manager) positionKey(id uint64, r record) pool.PositionKey {
	return pool.PositionKey{Owner: m.address, TickLower: r.tickLower, TickUpper: r.tickUpper, Salt: id}
}

func (m *Manager) lookup(id uint64) (record, *pool.Pool, error) {
	r, ok := m.records[id]
	if !ok {
		return record{}, nil, ammerr.PositionNotFound(id)
	}
	p, err := m.pools.Pool(r.pool.Token0, r.pool.Token1, r.pool.Fee)
	if err != nil {
		return record{}, nil, err
	}
	return r, p, nil
}

func (m *Manager) authorize(caller common.Address, id uint64) (record, *pool.Pool, error) {
	r, p, err := m.lookup(id)
	if err != nil {
		return record{}, nil, err
	}
	if r.owner != caller {
		return record{}, nil, ammerr.NotAuthorized(caller)
	}
	return r, p, nil
}

func (m *Manager) putRecord(id uint64, r record) {
	prev, existed := m.records[id]
	m.journal.Append(func() {
		if existed {
			m.records[id] = prev
			m.byRange[prev.rangeKey()] = id
			return
		}
		delete(m.records, id)
		delete(m.byRange, r.rangeKey())
	})
	m.records[id] = r
	m.byRange[r.rangeKey()] = id
}

func (m *Manager) deleteRecord(id uint64) {
	r, ok := m.records[id]
	if !ok {
		return
	}
	m.journal.Append(func() {
		m.records[id] = r
		m.byRange[r.rangeKey()] = id
	})
	delete(m.records, id)
	delete(m.byRange, r.rangeKey())
}

func (m *Manager) allocateID() uint64 {
	id := m.nextID
	m.journal.Append(func() { m.nextID = id })
	m.nextID++
	return id
}

// deposit sizes liquidity for the desired amounts at the current price and mints it
// into the pool, pulling the owed amounts from payer.
func (m *Manager) deposit(p *pool.Pool, key pool.PositionKey, payer common.Address, desired0, desired1, min0, min1 *uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	if !p.State().Initialized {
		return nil, nil, nil, ammerr.ErrNotInitialized
	}
	sqrtLower, err := tickmath.TickToSqrtPrice(key.TickLower)
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtUpper, err := tickmath.TickToSqrtPrice(key.TickUpper)
	if err != nil {
		return nil, nil, nil, err
	}
	liq, err := liquidity.ForAmounts(p.SqrtPriceX96(), sqrtLower, sqrtUpper, orZero(desired0), orZero(desired1))
	if err != nil {
		return nil, nil, nil, err
	}

	poolKey := p.Key()
	amount0, amount1, err := p.Mint(key, liq, func(owed0, owed1 *uint256.Int) error {
		if m.funds == nil {
			return nil
		}
		if !owed0.IsZero() {
			if err := m.funds.Transfer(poolKey.Token0, payer, p.Address(), owed0); err != nil {
				return err
			}
		}
		if !owed1.IsZero() {
			if err := m.funds.Transfer(poolKey.Token1, payer, p.Address(), owed1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkMinimums(amount0, amount1, min0, min1); err != nil {
		return nil, nil, nil, err
	}
	return liq, amount0, amount1, nil
}

func checkMinimums(amount0, amount1, min0, min1 *uint256.Int) error {
	if min0 != nil && amount0.Lt(min0) {
		return ammerr.SlippageExceeded(amount0, min0)
	}
	if min1 != nil && amount1.Lt(min1) {
		return ammerr.SlippageExceeded(amount1, min1)
	}
	return nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// Mint opens a position, or adds to the owner's existing position on the same pool and
// range, and returns its token id.
func (m *Manager) Mint(params MintParams) (MintResult, error) {
	var res MintResult
	err := m.run(func() error {
		p, err := m.pools.Pool(params.Token0, params.Token1, params.Fee)
		if err != nil {
			return err
		}
		r := record{owner: params.Owner, pool: p.Key(), tickLower: params.TickLower, tickUpper: params.TickUpper}

		id, exists := m.byRange[r.rangeKey()]
		if !exists {
			id = m.allocateID()
			m.putRecord(id, r)
			m.owners.add(params.Owner, id)
		}

		amount0Desired, amount1Desired := params.Amount0Desired, params.Amount1Desired
		amount0Min, amount1Min := params.Amount0Min, params.Amount1Min
		if p.Key().Token0 != params.Token0 {
			amount0Desired, amount1Desired = amount1Desired, amount0Desired
			amount0Min, amount1Min = amount1Min, amount0Min
		}
		liq, a0, a1, err := m.deposit(p, m.positionKey(id, r), params.Owner, amount0Desired, amount1Desired, amount0Min, amount1Min)
		if err != nil {
			return err
		}
		res = MintResult{TokenID: id, Liquidity: liq, Amount0: a0, Amount1: a1}
		return nil
	})
	return res, err
}

// AddLiquidity tops up an existing position. Amounts are in pool token order.
func (m *Manager) AddLiquidity(caller common.Address, id uint64, amount0Desired, amount1Desired, amount0Min, amount1Min *uint256.Int) (liq, amount0, amount1 *uint256.Int, err error) {
	err = m.run(func() error {
		r, p, err := m.authorize(caller, id)
		if err != nil {
			return err
		}
		liq, amount0, amount1, err = m.deposit(p, m.positionKey(id, r), caller, amount0Desired, amount1Desired, amount0Min, amount1Min)
		return err
	})
	return liq, amount0, amount1, err
}

// RemoveLiquidity burns liquidity from the position. The withdrawn amounts become owed
// to the position and are paid out by Collect.
func (m *Manager) RemoveLiquidity(caller common.Address, id uint64, amount, amount0Min, amount1Min *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	err = m.run(func() error {
		r, p, err := m.authorize(caller, id)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			return ammerr.ErrZeroLiquidity
		}
		amount0, amount1, err = p.Burn(m.positionKey(id, r), amount)
		if err != nil {
			return err
		}
		return checkMinimums(amount0, amount1, amount0Min, amount1Min)
	})
	return amount0, amount1, err
}

// Collect settles accrued fees and pays everything owed to the owner. Liquidity is
// untouched.
func (m *Manager) Collect(caller common.Address, id uint64) (amount0, amount1 *uint256.Int, err error) {
	err = m.run(func() error {
		r, p, err := m.authorize(caller, id)
		if err != nil {
			return err
		}
		key := m.positionKey(id, r)
		if pos, ok := p.Position(key); ok && !pos.Liquidity.IsZero() {
			if _, _, err := p.Burn(key, new(uint256.Int)); err != nil {
				return fmt.Errorf("settle fees for position %d: %w", id, err)
			}
		}
		amount0, amount1, err = p.Collect(key, caller, fixedpoint.MaxUint128, fixedpoint.MaxUint128)
		return err
	})
	return amount0, amount1, err
}

// Burn deletes a position that has no liquidity and nothing owed.
func (m *Manager) Burn(caller common.Address, id uint64) error {
	return m.run(func() error {
		r, p, err := m.authorize(caller, id)
		if err != nil {
			return err
		}
		key := m.positionKey(id, r)
		if pos, ok := p.Position(key); ok {
			if !pos.Empty() {
				return ammerr.PositionNotCleared(id)
			}
			if err := p.RemovePosition(key); err != nil {
				return err
			}
		}
		m.owners.remove(r.owner, id)
		m.deleteRecord(id)
		return nil
	})
}

// TransferPosition hands a position to a new owner. The pool-side position does not
// move.
func (m *Manager) TransferPosition(caller common.Address, id uint64, to common.Address) error {
	return m.run(func() error {
		r, _, err := m.authorize(caller, id)
		if err != nil {
			return err
		}
		if to == caller {
			return nil
		}
		next := r
		next.owner = to
		if _, taken := m.byRange[next.rangeKey()]; taken {
			return fmt.Errorf("manager: %s already holds a position on %s [%d, %d]", to.Hex(), r.pool, r.tickLower, r.tickUpper)
		}
		m.deleteRecord(id)
		m.putRecord(id, next)
		m.owners.remove(caller, id)
		m.owners.add(to, id)
		return nil
	})
}
