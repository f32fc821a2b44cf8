package router

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/journal"
	"clamm/internal/ledger"
	"clamm/internal/pool"
	"clamm/internal/registry"
	"clamm/internal/tickmath"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	tokenD = common.HexToAddress("0x000000000000000000000000000000000000000d")
	tokenE = common.HexToAddress("0x000000000000000000000000000000000000000e")

	alice      = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	lp         = common.HexToAddress("0x00000000000000000000000000000000000001b0")
	routerAddr = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	supply = uint256.MustFromDecimal("1000000000000000000000000")
	depth  = uint256.MustFromDecimal("1000000000000000000000")
	e18    = uint256.MustFromDecimal("1000000000000000000")
)

type fixture struct {
	journal  *journal.Journal
	ledger   *ledger.Ledger
	registry *registry.Registry
	router   *Router
}

// newFixture builds A-B (500), B-C (3000) and C-D (500), each priced at 1 with the
// same liquidity over [-6000, 6000].
func newFixture(t *testing.T) *fixture {
	t.Helper()
	j := journal.New()
	l := ledger.New(j)
	for _, token := range []common.Address{tokenA, tokenB, tokenC, tokenD} {
		_ = l.Mint(token, lp, supply)
		_ = l.Mint(token, alice, supply)
	}
	reg := registry.New(l, j)
	f := &fixture{journal: j, ledger: l, registry: reg, router: New(routerAddr, reg, l, j)}
	f.addPool(t, tokenA, tokenB, 500)
	f.addPool(t, tokenB, tokenC, 3000)
	f.addPool(t, tokenC, tokenD, 500)
	j.Commit()
	return f
}

func (f *fixture) addPool(t *testing.T, a, b common.Address, fee uint32) *pool.Pool {
	t.Helper()
	p, err := f.registry.CreatePool(a, b, fee)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := p.Initialize(tickmath.MustTickToSqrtPrice(0)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	key := pool.PositionKey{Owner: lp, TickLower: -6000, TickUpper: 6000}
	_, _, err = p.Mint(key, depth, func(amount0, amount1 *uint256.Int) error {
		if err := f.ledger.Transfer(p.Key().Token0, lp, p.Address(), amount0); err != nil {
			return err
		}
		return f.ledger.Transfer(p.Key().Token1, lp, p.Address(), amount1)
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return p
}

func (f *fixture) pool(t *testing.T, a, b common.Address, fee uint32) *pool.Pool {
	t.Helper()
	p, err := f.registry.Pool(a, b, fee)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return p
}

func threeHops(t *testing.T) Path {
	t.Helper()
	path, err := NewPath([]common.Address{tokenA, tokenB, tokenC, tokenD}, []uint32{500, 3000, 500})
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	return path
}

func TestPathEncoding(t *testing.T) {
	path := threeHops(t)
	data := path.Encode()
	if len(data) != 3*23+20 {
		t.Fatalf("encoded length %d", len(data))
	}
	if !bytes.Equal(data[20:23], []byte{0x00, 0x01, 0xf4}) {
		t.Fatalf("fee bytes %x, want 0001f4", data[20:23])
	}
	decoded, err := DecodePath(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, path) {
		t.Fatalf("decoded %v, want %v", decoded, path)
	}

	for _, bad := range [][]byte{nil, data[:20], data[:42], data[:44], data[:len(data)-1]} {
		if _, err := DecodePath(bad); !errors.Is(err, ammerr.ErrInvalidPath) {
			t.Fatalf("len %d: expected InvalidPath, got %v", len(bad), err)
		}
	}
}

func TestParsePath(t *testing.T) {
	path := threeHops(t)
	parsed, err := ParsePath(path.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(parsed, path) {
		t.Fatalf("parsed %v", parsed)
	}
	for _, bad := range []string{"", tokenA.Hex(), tokenA.Hex() + ",500", tokenA.Hex() + ",x," + tokenB.Hex(), "zz,500," + tokenB.Hex()} {
		if _, err := ParsePath(bad); !errors.Is(err, ammerr.ErrInvalidPath) {
			t.Fatalf("%q: expected InvalidPath, got %v", bad, err)
		}
	}
}

func TestQuoteMatchesExecution(t *testing.T) {
	f := newFixture(t)
	path := threeHops(t)

	quote, err := f.router.QuoteMulti(path, e18)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.AmountOut.IsZero() || quote.AmountOut.Cmp(e18) >= 0 {
		t.Fatalf("quoted output %s", quote.AmountOut)
	}
	if len(quote.SqrtPricesAfter) != 3 || len(quote.TicksAfter) != 3 {
		t.Fatalf("per-hop results %d %d", len(quote.SqrtPricesAfter), len(quote.TicksAfter))
	}
	ab := f.pool(t, tokenA, tokenB, 500)
	if !ab.SqrtPriceX96().Eq(tickmath.MustTickToSqrtPrice(0)) {
		t.Fatalf("quote moved the live pool")
	}

	before := f.ledger.BalanceOf(tokenD, alice)
	out, err := f.router.SwapMulti(MultiParams{Payer: alice, Recipient: alice, Path: path, AmountIn: e18, MinAmountOut: quote.AmountOut})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !out.Eq(quote.AmountOut) {
		t.Fatalf("executed %s, quoted %s", out, quote.AmountOut)
	}
	if got := new(uint256.Int).Sub(f.ledger.BalanceOf(tokenD, alice), before); !got.Eq(out) {
		t.Fatalf("alice received %s, want %s", got, out)
	}
	for i, h := range path.Hops() {
		p := f.pool(t, h.TokenIn, h.TokenOut, h.Fee)
		if !p.SqrtPriceX96().Eq(quote.SqrtPricesAfter[i]) || p.Tick() != quote.TicksAfter[i] {
			t.Fatalf("hop %d: pool at %s/%d, quoted %s/%d", i, p.SqrtPriceX96(), p.Tick(), quote.SqrtPricesAfter[i], quote.TicksAfter[i])
		}
	}
	for _, token := range []common.Address{tokenB, tokenC} {
		if bal := f.ledger.BalanceOf(token, routerAddr); !bal.IsZero() {
			t.Fatalf("router kept %s of %s", bal, token.Hex())
		}
	}
}

func TestSlippageRollsBackAllHops(t *testing.T) {
	f := newFixture(t)
	path := threeHops(t)
	quote, err := f.router.QuoteMulti(path, e18)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	balances := f.ledger.Balances()
	prices := make([]*uint256.Int, 0, 3)
	for _, h := range path.Hops() {
		prices = append(prices, f.pool(t, h.TokenIn, h.TokenOut, h.Fee).SqrtPriceX96())
	}

	tooMuch := new(uint256.Int).AddUint64(quote.AmountOut, 1)
	_, err = f.router.SwapMulti(MultiParams{Payer: alice, Recipient: alice, Path: path, AmountIn: e18, MinAmountOut: tooMuch})
	if !errors.Is(err, ammerr.ErrSlippageExceeded) {
		t.Fatalf("expected SlippageExceeded, got %v", err)
	}
	if !reflect.DeepEqual(f.ledger.Balances(), balances) {
		t.Fatalf("balances changed after rollback")
	}
	for i, h := range path.Hops() {
		if !f.pool(t, h.TokenIn, h.TokenOut, h.Fee).SqrtPriceX96().Eq(prices[i]) {
			t.Fatalf("hop %d price changed after rollback", i)
		}
	}
}

func TestSwapSingle(t *testing.T) {
	f := newFixture(t)
	params := SingleParams{Payer: alice, Recipient: alice, TokenIn: tokenC, TokenOut: tokenB, Fee: 3000, AmountIn: e18}

	quote, err := f.router.QuoteSingle(params)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	out, err := f.router.SwapSingle(params)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !out.Eq(quote.AmountOut) {
		t.Fatalf("executed %s, quoted %s", out, quote.AmountOut)
	}
	// C is token1 of the B-C pool, so selling it pushes the price up.
	if p := f.pool(t, tokenB, tokenC, 3000); p.Tick() != quote.TickAfter || p.Tick() < 0 {
		t.Fatalf("tick %d, quoted %d", p.Tick(), quote.TickAfter)
	}

	params.AmountIn = new(uint256.Int)
	if _, err := f.router.SwapSingle(params); !errors.Is(err, ammerr.ErrInsufficientInputAmount) {
		t.Fatalf("expected InsufficientInputAmount, got %v", err)
	}
	params.AmountIn, params.Fee = e18, 10000
	if _, err := f.router.SwapSingle(params); !errors.Is(err, ammerr.ErrPoolNotFound) {
		t.Fatalf("expected PoolNotFound, got %v", err)
	}
}

func TestQuoteRevisitingPool(t *testing.T) {
	f := newFixture(t)
	path, err := NewPath([]common.Address{tokenA, tokenB, tokenA}, []uint32{500, 500})
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	quote, err := f.router.QuoteMulti(path, e18)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	out, err := f.router.SwapMulti(MultiParams{Payer: alice, Recipient: alice, Path: path, AmountIn: e18})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !out.Eq(quote.AmountOut) {
		t.Fatalf("executed %s, quoted %s", out, quote.AmountOut)
	}
}

func TestFindRoute(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, tokenA, tokenB, 3000)
	f.addPool(t, tokenA, tokenB, 100)

	path, err := f.router.FindRoute(tokenA, tokenD)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	want := Path{Tokens: []common.Address{tokenA, tokenB, tokenC, tokenD}, Fees: []uint32{100, 3000, 500}}
	if !reflect.DeepEqual(path, want) {
		t.Fatalf("route %v, want %v", path, want)
	}

	if _, err := f.router.FindRoute(tokenA, tokenE); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	if _, err := f.router.FindRoute(tokenA, tokenA); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute for identical assets, got %v", err)
	}
}
