package scenario

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/engine"
	"clamm/internal/manager"
	"clamm/internal/model"
	"clamm/internal/pool"
	"clamm/internal/router"
)

// amount parses an optional decimal amount; empty means nil.
func amount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// ParsePath accepts either the packed hex encoding or the "A,fee,B" form.
func ParsePath(s string) (router.Path, error) {
	if strings.HasPrefix(s, "0x") && !strings.Contains(s, ",") {
		data, err := hexutil.Decode(s)
		if err != nil {
			return router.Path{}, fmt.Errorf("path: %w", err)
		}
		return router.DecodePath(data)
	}
	return router.ParsePath(s)
}

// errorInfo renders a failed operation. Tagged engine errors carry their selector and
// revert data.
func errorInfo(err error) *model.ErrorInfo {
	info := &model.ErrorInfo{Message: err.Error()}
	tagged, ok := ammerr.As(err)
	if !ok {
		return info
	}
	sel := tagged.Selector()
	info.Name = tagged.Kind.Name
	info.Selector = hexutil.Encode(sel[:])
	if data, encErr := tagged.Encode(); encErr == nil {
		info.Data = hexutil.Encode(data)
	}
	return info
}

// parsed holds the decoded numeric fields of one operation.
type parsed struct {
	amount, amount0, amount1          *uint256.Int
	amount0Desired, amount1Desired    *uint256.Int
	amount0Min, amount1Min            *uint256.Int
	liquidity, amountIn, minAmountOut *uint256.Int
	sqrtPriceX96, sqrtPriceLimitX96   *uint256.Int
}

func parseAmounts(op model.Operation) (parsed, error) {
	var (
		p   parsed
		err error
	)
	fields := []struct {
		dst **uint256.Int
		src string
	}{
		{&p.amount, op.Amount},
		{&p.amount0, op.Amount0},
		{&p.amount1, op.Amount1},
		{&p.amount0Desired, op.Amount0Desired},
		{&p.amount1Desired, op.Amount1Desired},
		{&p.amount0Min, op.Amount0Min},
		{&p.amount1Min, op.Amount1Min},
		{&p.liquidity, op.Liquidity},
		{&p.amountIn, op.AmountIn},
		{&p.minAmountOut, op.MinAmountOut},
		{&p.sqrtPriceX96, op.SqrtPriceX96},
		{&p.sqrtPriceLimitX96, op.SqrtPriceLimitX96},
	}
	for _, f := range fields {
		if *f.dst, err = amount(f.src); err != nil {
			return parsed{}, err
		}
	}
	return p, nil
}

func addr(s string) common.Address { return common.HexToAddress(s) }

// Apply runs one operation against the engine. Engine failures are reported in the
// result; the returned error is reserved for operations that cannot be interpreted.
func Apply(e *engine.Engine, step Step) (model.Result, error) {
	op := step.Op
	res := model.Result{Seq: step.Seq, Op: op.Op}
	p, err := parseAmounts(op)
	if err != nil {
		return res, err
	}
	caller := addr(op.Caller)
	recipient := caller
	if op.Recipient != "" {
		recipient = addr(op.Recipient)
	}

	var opErr error
	switch op.Op {
	case model.OpFund:
		opErr = e.Fund(addr(op.Asset), addr(op.Account), p.amount)

	case model.OpCreatePool:
		var key pool.Key
		key, opErr = e.CreatePool(addr(op.Token0), addr(op.Token1), op.Fee)
		if opErr == nil {
			res.PoolAddress = key.Address().Hex()
		}

	case model.OpInitialize:
		var tick int32
		tick, opErr = e.Initialize(addr(op.Token0), addr(op.Token1), op.Fee, p.sqrtPriceX96)
		if opErr == nil {
			res.Tick = &tick
		}

	case model.OpMint:
		var out manager.MintResult
		out, opErr = e.Mint(manager.MintParams{
			Owner:          caller,
			Token0:         addr(op.Token0),
			Token1:         addr(op.Token1),
			Fee:            op.Fee,
			TickLower:      *op.TickLower,
			TickUpper:      *op.TickUpper,
			Amount0Desired: orZero(p.amount0Desired),
			Amount1Desired: orZero(p.amount1Desired),
			Amount0Min:     p.amount0Min,
			Amount1Min:     p.amount1Min,
		})
		if opErr == nil {
			res.TokenID = out.TokenID
			res.Liquidity = out.Liquidity.Dec()
			res.Amount0, res.Amount1 = out.Amount0.Dec(), out.Amount1.Dec()
		}

	case model.OpAddLiquidity:
		var liq, a0, a1 *uint256.Int
		liq, a0, a1, opErr = e.AddLiquidity(caller, op.TokenID, orZero(p.amount0Desired), orZero(p.amount1Desired), p.amount0Min, p.amount1Min)
		if opErr == nil {
			res.TokenID = op.TokenID
			res.Liquidity = liq.Dec()
			res.Amount0, res.Amount1 = a0.Dec(), a1.Dec()
		}

	case model.OpRemoveLiquidity:
		var a0, a1 *uint256.Int
		a0, a1, opErr = e.RemoveLiquidity(caller, op.TokenID, p.liquidity, p.amount0Min, p.amount1Min)
		if opErr == nil {
			res.TokenID = op.TokenID
			res.Amount0, res.Amount1 = a0.Dec(), a1.Dec()
		}

	case model.OpCollect:
		var a0, a1 *uint256.Int
		a0, a1, opErr = e.Collect(caller, op.TokenID)
		if opErr == nil {
			res.TokenID = op.TokenID
			res.Amount0, res.Amount1 = a0.Dec(), a1.Dec()
		}

	case model.OpBurn:
		opErr = e.Burn(caller, op.TokenID)
		if opErr == nil {
			res.TokenID = op.TokenID
		}

	case model.OpTransferPosition:
		opErr = e.TransferPosition(caller, op.TokenID, addr(op.To))
		if opErr == nil {
			res.TokenID = op.TokenID
		}

	case model.OpSwapSingle:
		var out *uint256.Int
		out, opErr = e.SwapSingle(singleParams(op, p, caller, recipient))
		if opErr == nil {
			res.AmountOut = out.Dec()
		}

	case model.OpSwapMulti:
		path, err := ParsePath(op.Path)
		if err != nil {
			return res, err
		}
		var out *uint256.Int
		out, opErr = e.SwapMulti(router.MultiParams{
			Payer:        caller,
			Recipient:    recipient,
			Path:         path,
			AmountIn:     p.amountIn,
			MinAmountOut: p.minAmountOut,
		})
		if opErr == nil {
			res.AmountOut = out.Dec()
		}

	case model.OpQuoteSingle:
		var q router.Quote
		q, opErr = e.QuoteSingle(singleParams(op, p, caller, recipient))
		if opErr == nil {
			res.AmountOut = q.AmountOut.Dec()
			res.SqrtPricesAfter = []string{q.SqrtPriceX96After.Dec()}
			res.TicksAfter = []int32{q.TickAfter}
			res.PricesAfter = []string{model.PriceFromSqrtX96(q.SqrtPriceX96After, 0, 0).String()}
		}

	case model.OpQuoteMulti:
		path, err := ParsePath(op.Path)
		if err != nil {
			return res, err
		}
		var q router.MultiQuote
		q, opErr = e.QuoteMulti(path, p.amountIn)
		if opErr == nil {
			res.AmountOut = q.AmountOut.Dec()
			res.TicksAfter = q.TicksAfter
			for _, sp := range q.SqrtPricesAfter {
				res.SqrtPricesAfter = append(res.SqrtPricesAfter, sp.Dec())
				res.PricesAfter = append(res.PricesAfter, model.PriceFromSqrtX96(sp, 0, 0).String())
			}
		}

	case model.OpFlash:
		var fee0, fee1 *uint256.Int
		fee0, fee1, opErr = e.Flash(addr(op.Token0), addr(op.Token1), op.Fee, caller, orZero(p.amount0), orZero(p.amount1))
		if opErr == nil {
			res.Amount0, res.Amount1 = fee0.Dec(), fee1.Dec()
		}

	default:
		return res, fmt.Errorf("unknown operation %q", op.Op)
	}

	if opErr != nil {
		res.Error = errorInfo(opErr)
		return res, nil
	}
	res.OK = true
	return res, nil
}

func singleParams(op model.Operation, p parsed, caller, recipient common.Address) router.SingleParams {
	return router.SingleParams{
		Payer:             caller,
		Recipient:         recipient,
		TokenIn:           addr(op.TokenIn),
		TokenOut:          addr(op.TokenOut),
		Fee:               op.Fee,
		AmountIn:          p.amountIn,
		MinAmountOut:      p.minAmountOut,
		SqrtPriceLimitX96: p.sqrtPriceLimitX96,
	}
}
