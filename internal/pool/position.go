package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
	"clamm/internal/liquidity"
)

// PositionKey identifies a position inside one pool. Salt lets one owner hold several
// positions over the same range; the position manager stores its token id there.
type PositionKey struct {
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Salt      uint64
}

// Position is a range's liquidity plus the fees and withdrawn principal it is owed.
type Position struct {
	Liquidity                uint256.Int
	FeeGrowthInside0LastX128 uint256.Int
	FeeGrowthInside1LastX128 uint256.Int
	TokensOwed0              uint256.Int
	TokensOwed1              uint256.Int
}

// Empty reports whether the position holds nothing and can be dropped.
func (pos *Position) Empty() bool {
	return pos.Liquidity.IsZero() && pos.TokensOwed0.IsZero() && pos.TokensOwed1.IsZero()
}

func (p *Pool) touchPosition(key PositionKey) *Position {
	prev, existed := p.positions[key]
	var saved Position
	if existed {
		saved = *prev
	}
	p.journal.Append(func() {
		if existed {
			restored := saved
			p.positions[key] = &restored
		} else {
			delete(p.positions, key)
		}
	})
	if !existed {
		prev = new(Position)
		p.positions[key] = prev
	}
	return prev
}

// accruedFees returns the fees earned since the position's last checkpoint.
func accruedFees(pos *Position, inside0, inside1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	owed0, err := fixedpoint.MulDiv(fixedpoint.WrappingSub(inside0, &pos.FeeGrowthInside0LastX128), &pos.Liquidity, fixedpoint.Q128)
	if err != nil {
		return nil, nil, err
	}
	owed1, err := fixedpoint.MulDiv(fixedpoint.WrappingSub(inside1, &pos.FeeGrowthInside1LastX128), &pos.Liquidity, fixedpoint.Q128)
	if err != nil {
		return nil, nil, err
	}
	return owed0, owed1, nil
}

// updatePosition settles accrued fees into tokensOwed, advances the checkpoint and
// applies delta.
func (p *Pool) updatePosition(key PositionKey, delta, inside0, inside1 *uint256.Int) error {
	var current Position
	if pos, ok := p.positions[key]; ok {
		current = *pos
	}

	var next *uint256.Int
	if delta.IsZero() {
		if current.Liquidity.IsZero() {
			// poking an empty position is meaningless
			return ammerr.ErrInsufficientLiquidity
		}
		next = current.Liquidity.Clone()
	} else {
		var err error
		if next, err = liquidity.AddDelta(&current.Liquidity, delta); err != nil {
			return err
		}
	}

	owed0, owed1, err := accruedFees(&current, inside0, inside1)
	if err != nil {
		return err
	}

	pos := p.touchPosition(key)
	pos.Liquidity = *next
	pos.FeeGrowthInside0LastX128 = *inside0
	pos.FeeGrowthInside1LastX128 = *inside1
	pos.TokensOwed0.Add(&pos.TokensOwed0, owed0)
	pos.TokensOwed1.Add(&pos.TokensOwed1, owed1)
	return nil
}
