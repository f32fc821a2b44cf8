package manager

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/pool"
)

// PositionView is the owner-facing description of a position.
type PositionView struct {
	TokenID     uint64
	Owner       common.Address
	Pool        pool.Key
	TickLower   int32
	TickUpper   int32
	Liquidity   *uint256.Int
	TokensOwed0 *uint256.Int
	TokensOwed1 *uint256.Int
}

// Position returns the position behind a token id.
func (m *Manager) Position(id uint64) (PositionView, error) {
	r, p, err := m.lookup(id)
	if err != nil {
		return PositionView{}, err
	}
	view := PositionView{
		TokenID:     id,
		Owner:       r.owner,
		Pool:        r.pool,
		TickLower:   r.tickLower,
		TickUpper:   r.tickUpper,
		Liquidity:   new(uint256.Int),
		TokensOwed0: new(uint256.Int),
		TokensOwed1: new(uint256.Int),
	}
	if pos, ok := p.Position(m.positionKey(id, r)); ok {
		view.Liquidity = pos.Liquidity.Clone()
		view.TokensOwed0 = pos.TokensOwed0.Clone()
		view.TokensOwed1 = pos.TokensOwed1.Clone()
	}
	return view, nil
}

// TokensOfOwner lists the owner's token ids in index order.
func (m *Manager) TokensOfOwner(owner common.Address) []uint64 {
	return m.owners.list(owner)
}

// PositionsOf returns every position of owner in index order.
func (m *Manager) PositionsOf(owner common.Address) ([]PositionView, error) {
	ids := m.owners.list(owner)
	out := make([]PositionView, 0, len(ids))
	for _, id := range ids {
		view, err := m.Position(id)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// TotalSupply counts live token ids.
func (m *Manager) TotalSupply() int { return len(m.records) }

// NextID is the id the next new position will receive.
func (m *Manager) NextID() uint64 { return m.nextID }

// PendingFees returns owed balances plus fees accrued since the last settlement.
func (m *Manager) PendingFees(id uint64) (*uint256.Int, *uint256.Int, error) {
	r, p, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	key := m.positionKey(id, r)
	pos, ok := p.Position(key)
	if !ok {
		return new(uint256.Int), new(uint256.Int), nil
	}
	accrued0, accrued1, err := p.PendingFees(key)
	if err != nil {
		return nil, nil, err
	}
	fees0 := new(uint256.Int).Add(&pos.TokensOwed0, accrued0)
	fees1 := new(uint256.Int).Add(&pos.TokensOwed1, accrued1)
	return fees0, fees1, nil
}

// Entry is the persisted form of one token id.
type Entry struct {
	TokenID   uint64
	Owner     common.Address
	Pool      pool.Key
	TickLower int32
	TickUpper int32
}

// Entries lists every live token id in ascending order.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, 0, len(m.records))
	for id, r := range m.records {
		out = append(out, Entry{TokenID: id, Owner: r.owner, Pool: r.pool, TickLower: r.tickLower, TickUpper: r.tickUpper})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// Load replaces the manager's records with entries. nextID must exceed every entry id.
func (m *Manager) Load(entries []Entry, nextID uint64) error {
	records := make(map[uint64]record, len(entries))
	byRange := make(map[rangeKey]uint64, len(entries))
	idx := newOwners(m.journal)
	for _, e := range entries {
		if e.TokenID >= nextID {
			return fmt.Errorf("manager: token id %d not below next id %d", e.TokenID, nextID)
		}
		r := record{owner: e.Owner, pool: e.Pool, tickLower: e.TickLower, tickUpper: e.TickUpper}
		records[e.TokenID] = r
		byRange[r.rangeKey()] = e.TokenID
		set, ok := idx.sets[e.Owner]
		if !ok {
			set = newOwnerIndex()
			idx.sets[e.Owner] = set
		}
		set.add(e.TokenID)
	}
	m.records, m.byRange, m.owners, m.nextID = records, byRange, idx, nextID
	return nil
}
