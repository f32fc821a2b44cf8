package engine

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"clamm/internal/fixedpoint"
	"clamm/internal/ledger"
	"clamm/internal/manager"
	"clamm/internal/model"
	"clamm/internal/pool"
)

// Record converts the snapshot into its JSON form.
func (s Snapshot) Record() model.Snapshot {
	out := model.Snapshot{
		ManagerAddress: s.Options.ManagerAddress.Hex(),
		RouterAddress:  s.Options.RouterAddress.Hex(),
		NextTokenID:    s.NextTokenID,
		Balances:       make([]model.Balance, 0, len(s.Balances)),
		Pools:          make([]model.Pool, 0, len(s.Pools)),
		Positions:      make([]model.ManagedPosition, 0, len(s.Positions)),
	}
	for _, b := range s.Balances {
		out.Balances = append(out.Balances, model.Balance{
			Asset:   b.Asset.Hex(),
			Account: b.Account.Hex(),
			Amount:  b.Amount.Dec(),
		})
	}
	for _, ps := range s.Pools {
		out.Pools = append(out.Pools, poolRecord(ps))
	}
	for _, e := range s.Positions {
		out.Positions = append(out.Positions, model.ManagedPosition{
			TokenID:   e.TokenID,
			Owner:     e.Owner.Hex(),
			Token0:    e.Pool.Token0.Hex(),
			Token1:    e.Pool.Token1.Hex(),
			Fee:       e.Pool.Fee,
			TickLower: e.TickLower,
			TickUpper: e.TickUpper,
		})
	}
	return out
}

func poolRecord(ps PoolSnapshot) model.Pool {
	spacing, _ := pool.TickSpacing(ps.Key.Fee)
	rec := model.Pool{
		Address:              ps.Key.Address().Hex(),
		Token0:               ps.Key.Token0.Hex(),
		Token1:               ps.Key.Token1.Hex(),
		Fee:                  ps.Key.Fee,
		TickSpacing:          spacing,
		Initialized:          ps.State.Initialized,
		SqrtPriceX96:         ps.State.SqrtPriceX96.Dec(),
		Tick:                 ps.State.Tick,
		Liquidity:            ps.State.Liquidity.Dec(),
		FeeGrowthGlobal0X128: ps.State.FeeGrowthGlobal0X128.Dec(),
		FeeGrowthGlobal1X128: ps.State.FeeGrowthGlobal1X128.Dec(),
		Ticks:                make([]model.Tick, 0, len(ps.Ticks)),
		Positions:            make([]model.PoolPosition, 0, len(ps.Positions)),
	}
	if ps.State.Initialized {
		rec.Price = model.PriceFromSqrtX96(&ps.State.SqrtPriceX96, 0, 0).String()
	}

	for index, info := range ps.Ticks {
		rec.Ticks = append(rec.Ticks, model.Tick{
			Index:                 index,
			LiquidityGross:        info.LiquidityGross.Dec(),
			LiquidityNet:          signedDec(&info.LiquidityNet),
			FeeGrowthOutside0X128: info.FeeGrowthOutside0X128.Dec(),
			FeeGrowthOutside1X128: info.FeeGrowthOutside1X128.Dec(),
		})
	}
	sort.Slice(rec.Ticks, func(i, j int) bool { return rec.Ticks[i].Index < rec.Ticks[j].Index })

	keys := make([]pool.PositionKey, 0, len(ps.Positions))
	for k := range ps.Positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if c := bytes.Compare(a.Owner.Bytes(), b.Owner.Bytes()); c != 0 {
			return c < 0
		}
		if a.TickLower != b.TickLower {
			return a.TickLower < b.TickLower
		}
		if a.TickUpper != b.TickUpper {
			return a.TickUpper < b.TickUpper
		}
		return a.Salt < b.Salt
	})
	for _, k := range keys {
		pos := ps.Positions[k]
		rec.Positions = append(rec.Positions, model.PoolPosition{
			Owner:                    k.Owner.Hex(),
			TickLower:                k.TickLower,
			TickUpper:                k.TickUpper,
			Salt:                     k.Salt,
			Liquidity:                pos.Liquidity.Dec(),
			FeeGrowthInside0LastX128: pos.FeeGrowthInside0LastX128.Dec(),
			FeeGrowthInside1LastX128: pos.FeeGrowthInside1LastX128.Dec(),
			TokensOwed0:              pos.TokensOwed0.Dec(),
			TokensOwed1:              pos.TokensOwed1.Dec(),
		})
	}
	return rec
}

func signedDec(x *uint256.Int) string {
	if fixedpoint.IsNegative(x) {
		return "-" + fixedpoint.Abs(x).Dec()
	}
	return x.Dec()
}

func parseSigned(s string) (*uint256.Int, error) {
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		v, err := uint256.FromDecimal(rest)
		if err != nil {
			return nil, err
		}
		return fixedpoint.Neg(v), nil
	}
	return uint256.FromDecimal(s)
}

// decoder collects the first parse failure so record conversion stays linear.
type decoder struct {
	err error
}

func (d *decoder) amount(field, s string) uint256.Int {
	if d.err != nil {
		return uint256.Int{}
	}
	if s == "" {
		return uint256.Int{}
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		d.err = fmt.Errorf("%s %q: %w", field, s, err)
		return uint256.Int{}
	}
	return *v
}

func (d *decoder) signed(field, s string) uint256.Int {
	if d.err != nil || s == "" {
		return uint256.Int{}
	}
	v, err := parseSigned(s)
	if err != nil {
		d.err = fmt.Errorf("%s %q: %w", field, s, err)
		return uint256.Int{}
	}
	return *v
}

func (d *decoder) address(field, s string) common.Address {
	if d.err != nil {
		return common.Address{}
	}
	if !common.IsHexAddress(s) {
		d.err = fmt.Errorf("%s %q is not an address", field, s)
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// SnapshotFromRecord parses the JSON form back into a snapshot.
func SnapshotFromRecord(rec model.Snapshot) (Snapshot, error) {
	var d decoder
	s := Snapshot{
		NextTokenID: rec.NextTokenID,
		Balances:    make([]ledger.Balance, 0, len(rec.Balances)),
		Pools:       make([]PoolSnapshot, 0, len(rec.Pools)),
		Positions:   make([]manager.Entry, 0, len(rec.Positions)),
	}
	if rec.ManagerAddress != "" {
		s.Options.ManagerAddress = d.address("manager_address", rec.ManagerAddress)
	}
	if rec.RouterAddress != "" {
		s.Options.RouterAddress = d.address("router_address", rec.RouterAddress)
	}

	for _, b := range rec.Balances {
		amount := d.amount("balance", b.Amount)
		s.Balances = append(s.Balances, ledger.Balance{
			Asset:   d.address("asset", b.Asset),
			Account: d.address("account", b.Account),
			Amount:  &amount,
		})
	}

	for _, p := range rec.Pools {
		ps := PoolSnapshot{
			Key: pool.Key{Token0: d.address("token0", p.Token0), Token1: d.address("token1", p.Token1), Fee: p.Fee},
			State: pool.State{
				SqrtPriceX96:         d.amount("sqrt_price_x96", p.SqrtPriceX96),
				Tick:                 p.Tick,
				Liquidity:            d.amount("liquidity", p.Liquidity),
				FeeGrowthGlobal0X128: d.amount("fee_growth_global0_x128", p.FeeGrowthGlobal0X128),
				FeeGrowthGlobal1X128: d.amount("fee_growth_global1_x128", p.FeeGrowthGlobal1X128),
				Initialized:          p.Initialized,
			},
			Ticks:     make(map[int32]pool.TickInfo, len(p.Ticks)),
			Positions: make(map[pool.PositionKey]pool.Position, len(p.Positions)),
		}
		for _, t := range p.Ticks {
			ps.Ticks[t.Index] = pool.TickInfo{
				LiquidityGross:        d.amount("liquidity_gross", t.LiquidityGross),
				LiquidityNet:          d.signed("liquidity_net", t.LiquidityNet),
				FeeGrowthOutside0X128: d.amount("fee_growth_outside0_x128", t.FeeGrowthOutside0X128),
				FeeGrowthOutside1X128: d.amount("fee_growth_outside1_x128", t.FeeGrowthOutside1X128),
			}
		}
		for _, pp := range p.Positions {
			key := pool.PositionKey{
				Owner:     d.address("owner", pp.Owner),
				TickLower: pp.TickLower,
				TickUpper: pp.TickUpper,
				Salt:      pp.Salt,
			}
			ps.Positions[key] = pool.Position{
				Liquidity:                d.amount("liquidity", pp.Liquidity),
				FeeGrowthInside0LastX128: d.amount("fee_growth_inside0_last_x128", pp.FeeGrowthInside0LastX128),
				FeeGrowthInside1LastX128: d.amount("fee_growth_inside1_last_x128", pp.FeeGrowthInside1LastX128),
				TokensOwed0:              d.amount("tokens_owed0", pp.TokensOwed0),
				TokensOwed1:              d.amount("tokens_owed1", pp.TokensOwed1),
			}
		}
		s.Pools = append(s.Pools, ps)
	}

	for _, mp := range rec.Positions {
		s.Positions = append(s.Positions, manager.Entry{
			TokenID:   mp.TokenID,
			Owner:     d.address("owner", mp.Owner),
			Pool:      pool.Key{Token0: d.address("token0", mp.Token0), Token1: d.address("token1", mp.Token1), Fee: mp.Fee},
			TickLower: mp.TickLower,
			TickUpper: mp.TickUpper,
		})
	}
	if d.err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", d.err)
	}
	return s, nil
}

// RestoreRecord rebuilds an engine from the JSON form of a snapshot.
func RestoreRecord(rec model.Snapshot, logger *zap.Logger) (*Engine, error) {
	s, err := SnapshotFromRecord(rec)
	if err != nil {
		return nil, err
	}
	return Restore(s, logger)
}
