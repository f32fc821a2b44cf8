package pool

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
	"clamm/internal/ledger"
	"clamm/internal/tickmath"
)

var (
	token0 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	token1 = common.HexToAddress("0x0000000000000000000000000000000000000002")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	e18 = uint256.MustFromDecimal("1000000000000000000")
)

func newTestPool(t *testing.T, fee uint32, opts ...Option) *Pool {
	t.Helper()
	key, err := NewKey(token1, token0, fee)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	p, err := New(key, opts...)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return p
}

func initializedPool(t *testing.T, tick int32, opts ...Option) *Pool {
	t.Helper()
	p := newTestPool(t, 500, opts...)
	if err := p.Initialize(tickmath.MustTickToSqrtPrice(tick)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return p
}

func pos(lower, upper int32) PositionKey {
	return PositionKey{Owner: alice, TickLower: lower, TickUpper: upper}
}

func mustMint(t *testing.T, p *Pool, key PositionKey, amount *uint256.Int) (*uint256.Int, *uint256.Int) {
	t.Helper()
	a0, a1, err := p.Mint(key, amount, nil)
	if err != nil {
		t.Fatalf("mint %v: %v", key, err)
	}
	return a0, a1
}

func mustSwap(t *testing.T, p *Pool, params SwapParams) SwapResult {
	t.Helper()
	res, err := p.Swap(bob, params, nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	return res
}

func TestKeySortsAssets(t *testing.T) {
	key, err := NewKey(token1, token0, 3000)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if key.Token0 != token0 || key.Token1 != token1 {
		t.Fatalf("assets not sorted: %v", key)
	}
	if _, err := NewKey(token0, token1, 2500); !errors.Is(err, ammerr.ErrInvalidFeeTier) {
		t.Fatalf("expected InvalidFeeTier, got %v", err)
	}
	other, _ := NewKey(token0, token1, 500)
	if key.Address() == other.Address() {
		t.Fatalf("fee tier must change the pool address")
	}
}

func TestInitialize(t *testing.T) {
	p := newTestPool(t, 500)
	if err := p.Initialize(fixedpoint.Q96); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if p.Tick() != 0 {
		t.Fatalf("tick %d, want 0", p.Tick())
	}
	if err := p.Initialize(fixedpoint.Q96); !errors.Is(err, ammerr.ErrAlreadyInitialized) {
		t.Fatalf("expected AlreadyInitialized, got %v", err)
	}

	fresh := newTestPool(t, 500)
	if err := fresh.Initialize(uint256.NewInt(1)); !errors.Is(err, ammerr.ErrPriceOutOfRange) {
		t.Fatalf("expected PriceOutOfRange, got %v", err)
	}
	if _, _, err := fresh.Mint(pos(-100, 100), e18, nil); !errors.Is(err, ammerr.ErrNotInitialized) {
		t.Fatalf("expected NotInitialized, got %v", err)
	}
}

func TestMintValidatesTicks(t *testing.T) {
	p := initializedPool(t, 0)
	cases := []struct {
		lower, upper int32
		want         error
	}{
		{100, -100, ammerr.ErrInvalidTickRange},
		{100, 100, ammerr.ErrInvalidTickRange},
		{-105, 100, ammerr.ErrInvalidTickRange},
		{-887280, 0, ammerr.ErrTickOutOfRange},
		{0, 887280, ammerr.ErrTickOutOfRange},
	}
	for _, tc := range cases {
		_, _, err := p.Mint(pos(tc.lower, tc.upper), e18, nil)
		if !errors.Is(err, tc.want) {
			t.Fatalf("[%d,%d]: got %v, want %v", tc.lower, tc.upper, err, tc.want)
		}
	}
	if _, _, err := p.Mint(pos(-100, 100), new(uint256.Int), nil); !errors.Is(err, ammerr.ErrZeroLiquidity) {
		t.Fatalf("expected ZeroLiquidity, got %v", err)
	}
	if len(p.InitializedTicks()) != 0 {
		t.Fatalf("failed mints left ticks behind: %v", p.InitializedTicks())
	}
}

func TestMintInRangeAndSwapToTick50(t *testing.T) {
	p := initializedPool(t, 0)
	a0, a1 := mustMint(t, p, pos(-100, 100), e18)
	if a0.IsZero() || a1.IsZero() {
		t.Fatalf("in-range mint must take both assets: %s %s", a0, a1)
	}
	if !p.Liquidity().Eq(e18) {
		t.Fatalf("liquidity %s, want %s", p.Liquidity(), e18)
	}

	lower, ok := p.TickInfo(-100)
	if !ok || !lower.LiquidityNet.Eq(e18) || !lower.LiquidityGross.Eq(e18) {
		t.Fatalf("lower tick %+v", lower)
	}
	upper, ok := p.TickInfo(100)
	if !ok || !upper.LiquidityNet.Eq(fixedpoint.Neg(e18)) {
		t.Fatalf("upper tick %+v", upper)
	}

	res := mustSwap(t, p, SwapParams{
		ZeroForOne:        false,
		Amount:            e18,
		SqrtPriceLimitX96: tickmath.MustTickToSqrtPrice(50),
	})
	if p.Tick() != 50 || res.Tick != 50 {
		t.Fatalf("tick %d (result %d), want 50", p.Tick(), res.Tick)
	}
	if !p.Liquidity().Eq(e18) {
		t.Fatalf("liquidity changed to %s", p.Liquidity())
	}
	if !res.AmountIn.Lt(e18) || res.AmountOut.IsZero() {
		t.Fatalf("partial fill expected: in %s out %s", res.AmountIn, res.AmountOut)
	}
	if !p.SqrtPriceX96().Eq(tickmath.MustTickToSqrtPrice(50)) {
		t.Fatalf("price should stop at the limit")
	}
}

func TestMintOutOfRangeTakesOneAsset(t *testing.T) {
	p := initializedPool(t, 0)
	a0, a1 := mustMint(t, p, pos(100, 200), e18)
	if a0.IsZero() || !a1.IsZero() {
		t.Fatalf("range above price takes token0 only: %s %s", a0, a1)
	}
	a0, a1 = mustMint(t, p, pos(-200, -100), e18)
	if !a0.IsZero() || a1.IsZero() {
		t.Fatalf("range below price takes token1 only: %s %s", a0, a1)
	}
	if !p.Liquidity().IsZero() {
		t.Fatalf("out of range liquidity must not be active: %s", p.Liquidity())
	}
}

func TestAdjacentRangesCrossing(t *testing.T) {
	p := initializedPool(t, 0)
	first, second := pos(0, 100), pos(100, 200)
	mustMint(t, p, first, e18)
	mustMint(t, p, second, e18)

	boundary, _ := p.TickInfo(100)
	if !boundary.LiquidityNet.IsZero() {
		t.Fatalf("shared boundary net should cancel, got %s", &boundary.LiquidityNet)
	}

	res := mustSwap(t, p, SwapParams{Amount: e18, SqrtPriceLimitX96: tickmath.MustTickToSqrtPrice(150)})
	if res.TicksCrossed != 1 {
		t.Fatalf("expected one crossing, got %d", res.TicksCrossed)
	}
	if p.Tick() != 150 || !p.Liquidity().Eq(e18) {
		t.Fatalf("after crossing tick %d liquidity %s", p.Tick(), p.Liquidity())
	}

	owed := func(key PositionKey) Position {
		if _, _, err := p.Burn(key, new(uint256.Int)); err != nil {
			t.Fatalf("poke %v: %v", key, err)
		}
		got, _ := p.Position(key)
		return got
	}
	firstOwed, secondOwed := owed(first), owed(second)
	if firstOwed.TokensOwed1.IsZero() || secondOwed.TokensOwed1.IsZero() {
		t.Fatalf("both ranges traded and should earn token1 fees: %s %s", &firstOwed.TokensOwed1, &secondOwed.TokensOwed1)
	}
	if !firstOwed.TokensOwed0.IsZero() || !secondOwed.TokensOwed0.IsZero() {
		t.Fatalf("no token0 was paid in")
	}

	// only the upper range is active now
	mustSwap(t, p, SwapParams{Amount: e18, SqrtPriceLimitX96: tickmath.MustTickToSqrtPrice(180)})
	firstAfter, secondAfter := owed(first), owed(second)
	if !firstAfter.TokensOwed1.Eq(&firstOwed.TokensOwed1) {
		t.Fatalf("inactive range earned fees: %s -> %s", &firstOwed.TokensOwed1, &firstAfter.TokensOwed1)
	}
	if !secondAfter.TokensOwed1.Gt(&secondOwed.TokensOwed1) {
		t.Fatalf("active range did not earn fees")
	}
}

func TestOverBurnLeavesStateUnchanged(t *testing.T) {
	p := initializedPool(t, 0)
	key := pos(-100, 100)
	mustMint(t, p, key, e18)

	stateBefore := p.State()
	posBefore, _ := p.Position(key)
	lowerBefore, _ := p.TickInfo(-100)

	_, _, err := p.Burn(key, new(uint256.Int).AddUint64(e18, 1))
	if !errors.Is(err, ammerr.ErrInsufficientLiquidity) {
		t.Fatalf("expected InsufficientLiquidity, got %v", err)
	}
	if !reflect.DeepEqual(stateBefore, p.State()) {
		t.Fatalf("pool state changed")
	}
	posAfter, _ := p.Position(key)
	lowerAfter, _ := p.TickInfo(-100)
	if !reflect.DeepEqual(posBefore, posAfter) || !reflect.DeepEqual(lowerBefore, lowerAfter) {
		t.Fatalf("position or tick changed")
	}

	if _, _, err := p.Burn(pos(-200, 200), e18); !errors.Is(err, ammerr.ErrInsufficientLiquidity) {
		t.Fatalf("burning a missing position: %v", err)
	}
	if _, _, err := p.Burn(pos(-200, 200), new(uint256.Int)); !errors.Is(err, ammerr.ErrInsufficientLiquidity) {
		t.Fatalf("poking a missing position: %v", err)
	}
}

func TestBurnAndCollect(t *testing.T) {
	p := initializedPool(t, 0)
	key := pos(-100, 100)
	in0, in1 := mustMint(t, p, key, e18)

	out0, out1, err := p.Burn(key, e18)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if out0.Gt(in0) || out1.Gt(in1) {
		t.Fatalf("burn returned more than minted: %s/%s vs %s/%s", out0, out1, in0, in1)
	}
	if len(p.InitializedTicks()) != 0 {
		t.Fatalf("ticks should be cleared: %v", p.InitializedTicks())
	}
	if !p.Liquidity().IsZero() {
		t.Fatalf("liquidity should be zero")
	}

	c0, c1, err := p.Collect(key, alice, out0, uint256.NewInt(1))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !c0.Eq(out0) || c1.Uint64() != 1 {
		t.Fatalf("collect amounts %s %s", c0, c1)
	}
	left, _ := p.Position(key)
	if !left.TokensOwed0.IsZero() || !left.TokensOwed1.Eq(new(uint256.Int).SubUint64(out1, 1)) {
		t.Fatalf("owed after collect %+v", left)
	}
	if err := p.RemovePosition(key); !errors.Is(err, ammerr.ErrPositionNotCleared) {
		t.Fatalf("position with owed tokens must not be removable, got %v", err)
	}
	if _, _, err := p.Collect(key, alice, fixedpoint.MaxUint128, fixedpoint.MaxUint128); err != nil {
		t.Fatalf("collect rest: %v", err)
	}
	if err := p.RemovePosition(key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := p.Position(key); ok {
		t.Fatalf("position should be gone")
	}
}

func TestFeeGrowthNonDecreasing(t *testing.T) {
	p := initializedPool(t, 0)
	mustMint(t, p, pos(-600, 600), e18)

	for i, zeroForOne := range []bool{true, false, true, false} {
		before := p.State()
		mustSwap(t, p, SwapParams{ZeroForOne: zeroForOne, Amount: uint256.NewInt(1_000_000_000_000)})
		after := p.State()

		in, other := &after.FeeGrowthGlobal1X128, &before.FeeGrowthGlobal1X128
		still, stillBefore := &after.FeeGrowthGlobal0X128, &before.FeeGrowthGlobal0X128
		if zeroForOne {
			in, other = &after.FeeGrowthGlobal0X128, &before.FeeGrowthGlobal0X128
			still, stillBefore = &after.FeeGrowthGlobal1X128, &before.FeeGrowthGlobal1X128
		}
		diff := fixedpoint.WrappingSub(in, other)
		if diff.IsZero() || diff.Gt(fixedpoint.MaxUint128) {
			t.Fatalf("swap %d: input fee growth delta %s", i, diff)
		}
		if !still.Eq(stillBefore) {
			t.Fatalf("swap %d: output side fee growth moved", i)
		}
	}
}

func activeLiquidity(p *Pool) *uint256.Int {
	sum := new(uint256.Int)
	for key, position := range p.Positions() {
		if key.TickLower <= p.Tick() && p.Tick() < key.TickUpper {
			sum.Add(sum, &position.Liquidity)
		}
	}
	return sum
}

func netBelow(p *Pool) *uint256.Int {
	sum := new(uint256.Int)
	for _, tick := range p.InitializedTicks() {
		if tick > p.Tick() {
			break
		}
		info, _ := p.TickInfo(tick)
		sum.Add(sum, &info.LiquidityNet)
	}
	return sum
}

func TestLiquidityMatchesPositionsAndTicks(t *testing.T) {
	p := initializedPool(t, 0)
	mints := []struct {
		lower, upper int32
		amount       uint64
	}{
		{-300, -100, 3_000_000_000_000},
		{-100, 0, 5_000_000_000_000},
		{0, 200, 7_000_000_000_000},
		{200, 500, 11_000_000_000_000},
	}
	check := func(stage string) {
		t.Helper()
		if got, want := p.Liquidity(), activeLiquidity(p); !got.Eq(want) {
			t.Fatalf("%s: pool liquidity %s, positions sum %s", stage, got, want)
		}
		if got, want := p.Liquidity(), netBelow(p); !got.Eq(want) {
			t.Fatalf("%s: pool liquidity %s, net sum %s", stage, got, want)
		}
	}
	for _, m := range mints {
		mustMint(t, p, pos(m.lower, m.upper), uint256.NewInt(m.amount))
		check("mint")
	}

	big := uint256.MustFromDecimal("1000000000000000000000000")
	mustSwap(t, p, SwapParams{ZeroForOne: true, Amount: big, SqrtPriceLimitX96: tickmath.MustTickToSqrtPrice(-150)})
	if p.Tick() != -150 {
		t.Fatalf("tick %d, want -150", p.Tick())
	}
	check("swap down")

	mustSwap(t, p, SwapParams{Amount: big, SqrtPriceLimitX96: tickmath.MustTickToSqrtPrice(350)})
	if p.Tick() != 350 {
		t.Fatalf("tick %d, want 350", p.Tick())
	}
	check("swap up")

	if _, _, err := p.Burn(pos(200, 500), uint256.NewInt(4_000_000_000_000)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	check("burn")
	if !p.Liquidity().Eq(uint256.NewInt(7_000_000_000_000)) {
		t.Fatalf("liquidity %s after partial burn", p.Liquidity())
	}
}

func TestSwapNotEnoughLiquidity(t *testing.T) {
	p := initializedPool(t, 0)
	mustMint(t, p, pos(-100, 100), e18)
	before := p.State()

	huge := uint256.MustFromDecimal("1000000000000000000000000000000")
	_, err := p.Swap(bob, SwapParams{ZeroForOne: true, Amount: huge}, nil)
	if !errors.Is(err, ammerr.ErrNotEnoughLiquidity) {
		t.Fatalf("expected NotEnoughLiquidity, got %v", err)
	}
	if !reflect.DeepEqual(before, p.State()) {
		t.Fatalf("failed swap changed pool state")
	}
	lower, _ := p.TickInfo(-100)
	if !lower.FeeGrowthOutside0X128.IsZero() {
		t.Fatalf("crossing was not rolled back")
	}

	// an explicit limit turns the same request into a partial fill
	res := mustSwap(t, p, SwapParams{ZeroForOne: true, Amount: huge, SqrtPriceLimitX96: tickmath.MustTickToSqrtPrice(-1000)})
	if !res.AmountIn.Lt(huge) || p.Tick() != -1000 || !p.Liquidity().IsZero() {
		t.Fatalf("partial fill: in %s tick %d liquidity %s", res.AmountIn, p.Tick(), p.Liquidity())
	}
}

func TestSwapPriceLimitValidation(t *testing.T) {
	p := initializedPool(t, 0)
	mustMint(t, p, pos(-100, 100), e18)

	_, err := p.Swap(bob, SwapParams{ZeroForOne: true, Amount: e18, SqrtPriceLimitX96: tickmath.MustTickToSqrtPrice(10)}, nil)
	if !errors.Is(err, ammerr.ErrInvalidPriceLimit) {
		t.Fatalf("limit above price for zeroForOne: %v", err)
	}
	_, err = p.Swap(bob, SwapParams{Amount: e18, SqrtPriceLimitX96: tickmath.MaxSqrtRatio}, nil)
	if !errors.Is(err, ammerr.ErrInvalidPriceLimit) {
		t.Fatalf("limit at max ratio: %v", err)
	}
	_, err = p.Swap(bob, SwapParams{Amount: new(uint256.Int)}, nil)
	if !errors.Is(err, ammerr.ErrInsufficientInputAmount) {
		t.Fatalf("zero amount: %v", err)
	}
}

func TestExactOutputSwap(t *testing.T) {
	p := initializedPool(t, 0)
	mustMint(t, p, pos(-600, 600), e18)

	want := uint256.NewInt(1_000_000_000_000_000)
	res := mustSwap(t, p, SwapParams{ZeroForOne: true, Amount: want, ExactOutput: true})
	if !res.AmountOut.Eq(want) {
		t.Fatalf("amount out %s, want %s", res.AmountOut, want)
	}
	if !res.AmountIn.Gt(want) {
		t.Fatalf("input %s must exceed output near price 1 with fees", res.AmountIn)
	}
	if p.Tick() >= 0 {
		t.Fatalf("price should fall, tick %d", p.Tick())
	}
}

func TestSimulateMatchesSwapAndLeavesPoolUntouched(t *testing.T) {
	p := initializedPool(t, 0)
	mustMint(t, p, pos(-600, 600), e18)
	mustMint(t, p, pos(-200, 200), e18)
	before := p.State()

	params := SwapParams{Amount: uint256.NewInt(30_000_000_000_000_000)}
	quoted, err := p.Simulate(params)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !reflect.DeepEqual(before, p.State()) {
		t.Fatalf("simulate changed the pool")
	}
	executed := mustSwap(t, p, params)
	if !reflect.DeepEqual(quoted, executed) {
		t.Fatalf("quote %+v differs from execution %+v", quoted, executed)
	}
}

func TestRestoreRebuildsBitmap(t *testing.T) {
	p := initializedPool(t, 0)
	mustMint(t, p, pos(-600, 600), e18)
	mustMint(t, p, pos(-200, 200), e18)

	ticks := make(map[int32]TickInfo)
	for _, tick := range p.InitializedTicks() {
		info, _ := p.TickInfo(tick)
		ticks[tick] = info
	}
	restored, err := Restore(p.Key(), p.State(), ticks, p.Positions())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(restored.InitializedTicks(), p.InitializedTicks()) {
		t.Fatalf("ticks differ: %v vs %v", restored.InitializedTicks(), p.InitializedTicks())
	}

	params := SwapParams{ZeroForOne: true, Amount: uint256.NewInt(50_000_000_000_000_000)}
	a, errA := p.Simulate(params)
	b, errB := restored.Simulate(params)
	if errA != nil || errB != nil || !reflect.DeepEqual(a, b) {
		t.Fatalf("restored pool swaps differently: %v %v", errA, errB)
	}
}

func fundedLedgerPool(t *testing.T) (*Pool, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(nil)
	supply := uint256.MustFromDecimal("1000000000000000000000000")
	for _, account := range []common.Address{alice, bob} {
		_ = l.Mint(token0, account, supply)
		_ = l.Mint(token1, account, supply)
	}
	return initializedPool(t, 0, WithLedger(l)), l
}

func payFrom(l *ledger.Ledger, p *Pool, payer common.Address) MintCallback {
	return func(amount0, amount1 *uint256.Int) error {
		if err := l.Transfer(token0, payer, p.Address(), amount0); err != nil {
			return err
		}
		return l.Transfer(token1, payer, p.Address(), amount1)
	}
}

func TestLedgerBackedMintAndSwap(t *testing.T) {
	p, l := fundedLedgerPool(t)
	a0, a1, err := p.Mint(pos(-600, 600), e18, payFrom(l, p, alice))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !l.BalanceOf(token0, p.Address()).Eq(a0) || !l.BalanceOf(token1, p.Address()).Eq(a1) {
		t.Fatalf("pool reserves do not match minted amounts")
	}

	bobBefore := l.BalanceOf(token1, bob)
	res, err := p.Swap(bob, SwapParams{ZeroForOne: true, Amount: uint256.NewInt(1_000_000_000_000)}, func(amount0, amount1 *uint256.Int) error {
		if fixedpoint.IsNegative(amount0) || !fixedpoint.IsNegative(amount1) {
			t.Fatalf("unexpected delta signs %s %s", amount0, amount1)
		}
		return l.Transfer(token0, bob, p.Address(), amount0)
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	gained := new(uint256.Int).Sub(l.BalanceOf(token1, bob), bobBefore)
	if !gained.Eq(res.AmountOut) {
		t.Fatalf("recipient got %s, result says %s", gained, res.AmountOut)
	}
}

func TestUnderpaymentIsRejected(t *testing.T) {
	p, l := fundedLedgerPool(t)
	_, _, err := p.Mint(pos(-600, 600), e18, func(amount0, amount1 *uint256.Int) error {
		return l.Transfer(token0, alice, p.Address(), amount0)
	})
	if !errors.Is(err, ammerr.ErrInsufficientInputAmount) {
		t.Fatalf("expected InsufficientInputAmount, got %v", err)
	}
	if !p.Liquidity().IsZero() || len(p.InitializedTicks()) != 0 || len(p.Positions()) != 0 {
		t.Fatalf("rejected mint left state behind")
	}
}

func TestReentrancyIsLocked(t *testing.T) {
	p, l := fundedLedgerPool(t)
	_, _, err := p.Mint(pos(-600, 600), e18, func(amount0, amount1 *uint256.Int) error {
		_, err := p.Swap(bob, SwapParams{Amount: uint256.NewInt(1000)}, nil)
		return err
	})
	if !errors.Is(err, ammerr.ErrLocked) {
		t.Fatalf("expected Locked, got %v", err)
	}
	if _, _, err := p.Mint(pos(-600, 600), e18, payFrom(l, p, alice)); err != nil {
		t.Fatalf("lock not released: %v", err)
	}
}

func TestFlash(t *testing.T) {
	p, l := fundedLedgerPool(t)
	if _, _, err := p.Mint(pos(-600, 600), e18, payFrom(l, p, alice)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	loan := uint256.NewInt(1_000_000)

	before := p.State()
	paid0, paid1, err := p.Flash(bob, loan, new(uint256.Int), func(fee0, fee1 *uint256.Int) error {
		if fee0.Uint64() != 500 || !fee1.IsZero() {
			t.Fatalf("fees %s %s", fee0, fee1)
		}
		return l.Transfer(token0, bob, p.Address(), new(uint256.Int).Add(loan, fee0))
	})
	if err != nil {
		t.Fatalf("flash: %v", err)
	}
	if paid0.Uint64() != 500 || !paid1.IsZero() {
		t.Fatalf("paid %s %s", paid0, paid1)
	}
	after := p.State()
	if !after.FeeGrowthGlobal0X128.Gt(&before.FeeGrowthGlobal0X128) {
		t.Fatalf("flash fee not credited")
	}

	_, _, err = p.Flash(bob, loan, new(uint256.Int), func(fee0, fee1 *uint256.Int) error {
		return l.Transfer(token0, bob, p.Address(), loan)
	})
	if !errors.Is(err, ammerr.ErrInsufficientInputAmount) {
		t.Fatalf("expected InsufficientInputAmount, got %v", err)
	}
	if !reflect.DeepEqual(after, p.State()) {
		t.Fatalf("failed flash changed state")
	}
}

func TestMaxLiquidityPerTick(t *testing.T) {
	// uint128 max divided by the number of usable ticks
	cases := map[int32]string{
		10:  "1917569901783203986719870431555990",
		60:  "11505743598341114571880798222544994",
		200: "38350317471085141830651933667504588",
	}
	for spacing, want := range cases {
		if got := MaxLiquidityPerTick(spacing).Dec(); got != want {
			t.Fatalf("spacing %d: %s, want %s", spacing, got, want)
		}
	}

	p := initializedPool(t, 0)
	tooMuch := new(uint256.Int).AddUint64(MaxLiquidityPerTick(10), 1)
	if _, _, err := p.Mint(pos(-100, 100), tooMuch, nil); !errors.Is(err, ammerr.ErrLiquidityOverflow) {
		t.Fatalf("expected LiquidityOverflow, got %v", err)
	}
}
