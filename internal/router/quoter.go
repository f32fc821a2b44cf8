package router

import (
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/pool"
)

// Quote is the result of a dry-run swap through one pool.
type Quote struct {
	AmountOut         *uint256.Int
	SqrtPriceX96After *uint256.Int
	TickAfter         int32
	TicksCrossed      int
}

// MultiQuote carries the final output and the state each pool would be left in.
type MultiQuote struct {
	AmountOut       *uint256.Int
	SqrtPricesAfter []*uint256.Int
	TicksAfter      []int32
	TicksCrossed    []int
}

// quoter runs hops on clones. A path that visits the same pool twice sees its own
// earlier hop, the way execution would.
type quoter struct {
	pools  Pools
	clones map[pool.Key]*pool.Pool
}

func (q *quoter) hop(h Hop, amountIn, limit *uint256.Int) (pool.SwapResult, error) {
	live, err := q.pools.Pool(h.TokenIn, h.TokenOut, h.Fee)
	if err != nil {
		return pool.SwapResult{}, err
	}
	clone, ok := q.clones[live.Key()]
	if !ok {
		clone = live.Clone()
		q.clones[live.Key()] = clone
	}
	params := pool.SwapParams{
		ZeroForOne:        h.TokenIn == live.Key().Token0,
		Amount:            amountIn,
		SqrtPriceLimitX96: limit,
	}
	return clone.Swap(h.TokenOut, params, nil)
}

// QuoteSingle reports what SwapSingle would return without changing any pool.
func (r *Router) QuoteSingle(params SingleParams) (Quote, error) {
	if params.AmountIn == nil || params.AmountIn.IsZero() {
		return Quote{}, ammerr.ErrInsufficientInputAmount
	}
	q := &quoter{pools: r.pools, clones: make(map[pool.Key]*pool.Pool)}
	h := Hop{TokenIn: params.TokenIn, TokenOut: params.TokenOut, Fee: params.Fee}
	res, err := q.hop(h, params.AmountIn, params.SqrtPriceLimitX96)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AmountOut:         res.AmountOut,
		SqrtPriceX96After: res.SqrtPriceX96,
		TickAfter:         res.Tick,
		TicksCrossed:      res.TicksCrossed,
	}, nil
}

// QuoteMulti reports what SwapMulti would return, hop by hop, without changing any
// pool.
func (r *Router) QuoteMulti(path Path, amountIn *uint256.Int) (MultiQuote, error) {
	hops := path.Hops()
	if len(hops) == 0 {
		return MultiQuote{}, ammerr.ErrInvalidPath
	}
	if amountIn == nil || amountIn.IsZero() {
		return MultiQuote{}, ammerr.ErrInsufficientInputAmount
	}
	q := &quoter{pools: r.pools, clones: make(map[pool.Key]*pool.Pool)}
	out := MultiQuote{
		SqrtPricesAfter: make([]*uint256.Int, 0, len(hops)),
		TicksAfter:      make([]int32, 0, len(hops)),
		TicksCrossed:    make([]int, 0, len(hops)),
	}
	amount := amountIn
	for _, h := range hops {
		res, err := q.hop(h, amount, nil)
		if err != nil {
			return MultiQuote{}, err
		}
		amount = res.AmountOut
		out.SqrtPricesAfter = append(out.SqrtPricesAfter, res.SqrtPriceX96)
		out.TicksAfter = append(out.TicksAfter, res.Tick)
		out.TicksCrossed = append(out.TicksCrossed, res.TicksCrossed)
	}
	out.AmountOut = amount
	return out, nil
}
