// Package router executes and quotes swaps across one or more pools.
package router

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/journal"
	"clamm/internal/pool"
)

// Pools is the registry view the router needs.
type Pools interface {
	Pool(tokenA, tokenB common.Address, fee uint32) (*pool.Pool, error)
	FeeTiers(tokenA, tokenB common.Address) []uint32
	Neighbours(asset common.Address) []common.Address
}

// Funds moves input assets into pools.
type Funds interface {
	Transfer(asset, from, to common.Address, amount *uint256.Int) error
}

// SingleParams is an exact-input swap through one pool. A nil or zero price limit
// means no limit.
type SingleParams struct {
	Payer             common.Address
	Recipient         common.Address
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               uint32
	AmountIn          *uint256.Int
	MinAmountOut      *uint256.Int
	SqrtPriceLimitX96 *uint256.Int
}

// MultiParams is an exact-input swap along a path.
type MultiParams struct {
	Payer        common.Address
	Recipient    common.Address
	Path         Path
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
}

// Router holds intermediate outputs of multi-hop swaps under its own address.
type Router struct {
	address    common.Address
	pools      Pools
	funds      Funds
	journal    *journal.Journal
	ownJournal bool
}

func New(address common.Address, pools Pools, funds Funds, j *journal.Journal) *Router {
	r := &Router{address: address, pools: pools, funds: funds, journal: j}
	if r.journal == nil {
		r.journal = journal.New()
		r.ownJournal = true
	}
	return r
}

func (r *Router) Address() common.Address { return r.address }

func (r *Router) run(fn func() error) error {
	snap := r.journal.Snapshot()
	if err := fn(); err != nil {
		r.journal.RevertToSnapshot(snap)
		return err
	}
	if r.ownJournal {
		r.journal.Commit()
	}
	return nil
}

// hop swaps amountIn of tokenIn in one pool, paid by payer, output to recipient.
func (r *Router) hop(h Hop, payer, recipient common.Address, amountIn, limit *uint256.Int) (pool.SwapResult, error) {
	p, err := r.pools.Pool(h.TokenIn, h.TokenOut, h.Fee)
	if err != nil {
		return pool.SwapResult{}, err
	}
	zeroForOne := h.TokenIn == p.Key().Token0
	params := pool.SwapParams{ZeroForOne: zeroForOne, Amount: amountIn, SqrtPriceLimitX96: limit}
	return p.Swap(recipient, params, func(amount0, amount1 *uint256.Int) error {
		if r.funds == nil {
			return nil
		}
		owed := amount0
		if !zeroForOne {
			owed = amount1
		}
		if owed.IsZero() {
			return nil
		}
		return r.funds.Transfer(h.TokenIn, payer, p.Address(), owed)
	})
}

// SwapSingle swaps an exact input through one pool and returns the output.
func (r *Router) SwapSingle(params SingleParams) (*uint256.Int, error) {
	var out *uint256.Int
	err := r.run(func() error {
		if params.AmountIn == nil || params.AmountIn.IsZero() {
			return ammerr.ErrInsufficientInputAmount
		}
		h := Hop{TokenIn: params.TokenIn, TokenOut: params.TokenOut, Fee: params.Fee}
		res, err := r.hop(h, params.Payer, params.Recipient, params.AmountIn, params.SqrtPriceLimitX96)
		if err != nil {
			return err
		}
		if params.MinAmountOut != nil && res.AmountOut.Lt(params.MinAmountOut) {
			return ammerr.SlippageExceeded(res.AmountOut, params.MinAmountOut)
		}
		out = res.AmountOut
		return nil
	})
	return out, err
}

// SwapMulti swaps hop by hop along the path. Every hop and transfer is undone when any
// hop fails or the final output is below MinAmountOut.
func (r *Router) SwapMulti(params MultiParams) (*uint256.Int, error) {
	var out *uint256.Int
	err := r.run(func() error {
		hops := params.Path.Hops()
		if len(hops) == 0 {
			return ammerr.ErrInvalidPath
		}
		if params.AmountIn == nil || params.AmountIn.IsZero() {
			return ammerr.ErrInsufficientInputAmount
		}
		amount := params.AmountIn
		payer := params.Payer
		for i, h := range hops {
			recipient := r.address
			if i == len(hops)-1 {
				recipient = params.Recipient
			}
			res, err := r.hop(h, payer, recipient, amount, nil)
			if err != nil {
				return err
			}
			amount = res.AmountOut
			payer = r.address
		}
		if params.MinAmountOut != nil && amount.Lt(params.MinAmountOut) {
			return ammerr.SlippageExceeded(amount, params.MinAmountOut)
		}
		out = amount
		return nil
	})
	return out, err
}
