package engine

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/manager"
	"clamm/internal/model"
	"clamm/internal/router"
	"clamm/internal/tickmath"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokenC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	supply = uint256.MustFromDecimal("1000000000000000000000000")
	e18    = uint256.MustFromDecimal("1000000000000000000")
)

func seeded(t *testing.T) *Engine {
	t.Helper()
	e := New(Options{}, nil)
	for _, token := range []common.Address{tokenA, tokenB, tokenC} {
		for _, account := range []common.Address{alice, bob} {
			if err := e.Fund(token, account, supply); err != nil {
				t.Fatalf("fund: %v", err)
			}
		}
	}
	for _, pair := range [][2]common.Address{{tokenA, tokenB}, {tokenB, tokenC}} {
		if _, err := e.CreatePool(pair[0], pair[1], 3000); err != nil {
			t.Fatalf("create pool: %v", err)
		}
		if _, err := e.Initialize(pair[0], pair[1], 3000, tickmath.MustTickToSqrtPrice(0)); err != nil {
			t.Fatalf("initialize: %v", err)
		}
		_, err := e.Mint(manager.MintParams{
			Owner:          alice,
			Token0:         pair[0],
			Token1:         pair[1],
			Fee:            3000,
			TickLower:      -3000,
			TickUpper:      3000,
			Amount0Desired: new(uint256.Int).Mul(e18, uint256.NewInt(100)),
			Amount1Desired: new(uint256.Int).Mul(e18, uint256.NewInt(100)),
		})
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
	}
	return e
}

func TestOperationsCommit(t *testing.T) {
	e := seeded(t)
	if n := e.journal.Length(); n != 0 {
		t.Fatalf("journal holds %d entries after committed operations", n)
	}
	if e.Manager().TotalSupply() != 2 {
		t.Fatalf("positions %d", e.Manager().TotalSupply())
	}
	tick, err := e.Initialize(tokenA, tokenB, 3000, tickmath.MustTickToSqrtPrice(10))
	if !errors.Is(err, ammerr.ErrAlreadyInitialized) || tick != 0 {
		t.Fatalf("expected AlreadyInitialized, got %v", err)
	}
	if _, err := e.CreatePool(tokenA, tokenB, 3000); !errors.Is(err, ammerr.ErrPoolAlreadyExists) {
		t.Fatalf("expected PoolAlreadyExists, got %v", err)
	}
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	e := seeded(t)
	before := e.Snapshot()

	_, err := e.Mint(manager.MintParams{
		Owner:          bob,
		Token0:         tokenA,
		Token1:         tokenB,
		Fee:            3000,
		TickLower:      -600,
		TickUpper:      600,
		Amount0Desired: e18,
		Amount1Desired: e18,
		Amount1Min:     new(uint256.Int).Mul(e18, uint256.NewInt(2)),
	})
	if !errors.Is(err, ammerr.ErrSlippageExceeded) {
		t.Fatalf("expected SlippageExceeded, got %v", err)
	}
	path, _ := router.NewPath([]common.Address{tokenA, tokenB, tokenC}, []uint32{3000, 3000})
	_, err = e.SwapMulti(router.MultiParams{Payer: bob, Recipient: bob, Path: path, AmountIn: e18, MinAmountOut: e18})
	if !errors.Is(err, ammerr.ErrSlippageExceeded) {
		t.Fatalf("expected SlippageExceeded, got %v", err)
	}

	if after := e.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed operations changed engine state")
	}
	if n := e.journal.Length(); n != 0 {
		t.Fatalf("journal holds %d entries", n)
	}
}

func TestSnapshotRestore(t *testing.T) {
	e := seeded(t)
	path, _ := router.NewPath([]common.Address{tokenA, tokenB, tokenC}, []uint32{3000, 3000})
	if _, err := e.SwapMulti(router.MultiParams{Payer: bob, Recipient: bob, Path: path, AmountIn: e18}); err != nil {
		t.Fatalf("swap: %v", err)
	}

	snap := e.Snapshot()
	restored, err := Restore(snap, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(restored.Snapshot(), snap) {
		t.Fatalf("restored snapshot differs")
	}

	// Both engines must keep evolving identically.
	back, _ := router.NewPath([]common.Address{tokenC, tokenB, tokenA}, []uint32{3000, 3000})
	params := router.MultiParams{Payer: bob, Recipient: bob, Path: back, AmountIn: e18}
	want, err := e.SwapMulti(params)
	if err != nil {
		t.Fatalf("swap original: %v", err)
	}
	got, err := restored.SwapMulti(params)
	if err != nil {
		t.Fatalf("swap restored: %v", err)
	}
	if !got.Eq(want) {
		t.Fatalf("restored engine swapped %s, original %s", got, want)
	}
	fees0, _, err := restored.Manager().PendingFees(1)
	if err != nil || fees0.IsZero() {
		t.Fatalf("restored position fees %v %v", fees0, err)
	}
	res, err := restored.Mint(manager.MintParams{
		Owner: bob, Token0: tokenA, Token1: tokenB, Fee: 3000, TickLower: -60, TickUpper: 60,
		Amount0Desired: e18, Amount1Desired: e18,
	})
	if err != nil || res.TokenID != 3 {
		t.Fatalf("restored mint id %d: %v", res.TokenID, err)
	}
}

func TestFlash(t *testing.T) {
	e := seeded(t)
	p, err := e.Registry().Pool(tokenA, tokenB, 3000)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	growthBefore := p.State().FeeGrowthGlobal0X128

	fee0, fee1, err := e.Flash(tokenA, tokenB, 3000, bob, e18, new(uint256.Int))
	if err != nil {
		t.Fatalf("flash: %v", err)
	}
	if want := uint256.NewInt(3_000_000_000_000_000); !fee0.Eq(want) || !fee1.IsZero() {
		t.Fatalf("fees %s %s, want %s 0", fee0, fee1, want)
	}
	if got := e.Ledger().BalanceOf(tokenA, bob); !new(uint256.Int).Add(got, fee0).Eq(supply) {
		t.Fatalf("bob balance %s after paying %s", got, fee0)
	}
	growthAfter := p.State().FeeGrowthGlobal0X128
	if !growthAfter.Gt(&growthBefore) {
		t.Fatalf("fee growth did not increase")
	}

	broke := common.HexToAddress("0x00000000000000000000000000000000000000b7")
	_, _, err = e.Flash(tokenA, tokenB, 3000, broke, e18, new(uint256.Int))
	if !errors.Is(err, ammerr.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if bal := e.Ledger().BalanceOf(tokenA, broke); !bal.IsZero() {
		t.Fatalf("failed flash left %s with the borrower", bal)
	}
}

func TestFindRoute(t *testing.T) {
	e := seeded(t)
	path, err := e.FindRoute(tokenA, tokenC)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := path.String(); got != tokenA.Hex()+",3000,"+tokenB.Hex()+",3000,"+tokenC.Hex() {
		t.Fatalf("route %s", got)
	}
	q, err := e.QuoteMulti(path, e18)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	out, err := e.SwapMulti(router.MultiParams{Payer: bob, Recipient: bob, Path: path, AmountIn: e18})
	if err != nil || !out.Eq(q.AmountOut) {
		t.Fatalf("swap %v, quoted %s: %v", out, q.AmountOut, err)
	}
}

func TestSnapshotRecord(t *testing.T) {
	e := seeded(t)
	if _, err := e.SwapSingle(router.SingleParams{Payer: bob, Recipient: bob, TokenIn: tokenB, TokenOut: tokenA, Fee: 3000, AmountIn: e18}); err != nil {
		t.Fatalf("swap: %v", err)
	}
	snap := e.Snapshot()

	data, err := json.Marshal(snap.Record())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var rec model.Snapshot
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Pools[0].Price == "" || rec.Pools[0].Ticks[0].LiquidityNet[0] == '-' {
		t.Fatalf("unexpected pool record %+v", rec.Pools[0])
	}
	if net := rec.Pools[0].Ticks[1].LiquidityNet; net[0] != '-' {
		t.Fatalf("upper tick net liquidity %s should be negative", net)
	}

	decoded, err := SnapshotFromRecord(rec)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, snap) {
		t.Fatalf("decoded snapshot differs")
	}

	rec.Balances[0].Amount = "12x"
	if _, err := SnapshotFromRecord(rec); err == nil {
		t.Fatalf("expected error for malformed amount")
	}
}
