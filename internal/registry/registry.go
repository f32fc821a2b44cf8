// Package registry is the pool factory: one pool per (asset pair, fee tier).
package registry

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"clamm/internal/ammerr"
	"clamm/internal/journal"
	"clamm/internal/pool"
)

type Registry struct {
	pools   map[pool.Key]*pool.Pool
	byPair  map[[2]common.Address][]uint32
	ledger  pool.Ledger
	journal *journal.Journal
}

// New returns an empty registry. Pools it creates share ledger and journal.
func New(ledger pool.Ledger, j *journal.Journal) *Registry {
	return &Registry{
		pools:   make(map[pool.Key]*pool.Pool),
		byPair:  make(map[[2]common.Address][]uint32),
		ledger:  ledger,
		journal: j,
	}
}

func pairOf(a, b common.Address) [2]common.Address {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return [2]common.Address{a, b}
}

// Options returns the pool options that bind a pool to this registry's ledger and journal.
func (r *Registry) Options() []pool.Option {
	opts := []pool.Option{pool.WithJournal(r.journal)}
	if r.ledger != nil {
		opts = append(opts, pool.WithLedger(r.ledger))
	}
	return opts
}

// CreatePool deploys an uninitialized pool for the pair and fee tier.
func (r *Registry) CreatePool(tokenA, tokenB common.Address, fee uint32) (*pool.Pool, error) {
	key, err := pool.NewKey(tokenA, tokenB, fee)
	if err != nil {
		return nil, err
	}
	if _, ok := r.pools[key]; ok {
		return nil, ammerr.PoolAlreadyExists(key.Token0, key.Token1, fee)
	}
	p, err := pool.New(key, r.Options()...)
	if err != nil {
		return nil, err
	}
	r.add(p)
	r.journal.Append(func() { r.remove(key) })
	return p, nil
}

// Adopt registers an existing pool, typically one restored from a snapshot. The pool
// must have been built with Options so it shares the registry's ledger and journal.
func (r *Registry) Adopt(p *pool.Pool) error {
	key := p.Key()
	if _, ok := r.pools[key]; ok {
		return ammerr.PoolAlreadyExists(key.Token0, key.Token1, key.Fee)
	}
	r.add(p)
	return nil
}

func (r *Registry) add(p *pool.Pool) {
	key := p.Key()
	r.pools[key] = p
	pair := pairOf(key.Token0, key.Token1)
	fees := append(r.byPair[pair], key.Fee)
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })
	r.byPair[pair] = fees
}

func (r *Registry) remove(key pool.Key) {
	delete(r.pools, key)
	pair := pairOf(key.Token0, key.Token1)
	fees := r.byPair[pair][:0]
	for _, fee := range r.byPair[pair] {
		if fee != key.Fee {
			fees = append(fees, fee)
		}
	}
	if len(fees) == 0 {
		delete(r.byPair, pair)
		return
	}
	r.byPair[pair] = fees
}

// Pool looks up the pool for an unordered pair and fee tier.
func (r *Registry) Pool(tokenA, tokenB common.Address, fee uint32) (*pool.Pool, error) {
	pair := pairOf(tokenA, tokenB)
	p, ok := r.pools[pool.Key{Token0: pair[0], Token1: pair[1], Fee: fee}]
	if !ok {
		return nil, ammerr.PoolNotFound(pair[0], pair[1], fee)
	}
	return p, nil
}

// FeeTiers returns the fee tiers with a pool for the pair, lowest first.
func (r *Registry) FeeTiers(tokenA, tokenB common.Address) []uint32 {
	fees := r.byPair[pairOf(tokenA, tokenB)]
	out := make([]uint32, len(fees))
	copy(out, fees)
	return out
}

// Pools returns every pool ordered by token0, token1, fee.
func (r *Registry) Pools() []*pool.Pool {
	out := make([]*pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if c := bytes.Compare(a.Token0.Bytes(), b.Token0.Bytes()); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(a.Token1.Bytes(), b.Token1.Bytes()); c != 0 {
			return c < 0
		}
		return a.Fee < b.Fee
	})
	return out
}

// Neighbours returns every asset that shares a pool with asset.
func (r *Registry) Neighbours(asset common.Address) []common.Address {
	out := make([]common.Address, 0)
	for pair := range r.byPair {
		switch asset {
		case pair[0]:
			out = append(out, pair[1])
		case pair[1]:
			out = append(out, pair[0])
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0 })
	return out
}
