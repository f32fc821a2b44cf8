package pool

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/fixedpoint"
	"clamm/internal/swapmath"
)

var errFlashNeedsLedger = errors.New("pool: flash requires a ledger")

// FlashCallback receives the fees due and must return the loan plus fees.
type FlashCallback func(fee0, fee1 *uint256.Int) error

// Flash lends amount0/amount1 to recipient for the duration of repay. Whatever is
// paid back above the principal is credited to in-range liquidity as fees.
func (p *Pool) Flash(recipient common.Address, amount0, amount1 *uint256.Int, repay FlashCallback) (paid0, paid1 *uint256.Int, err error) {
	err = p.run(func() error {
		if p.ledger == nil {
			return errFlashNeedsLedger
		}
		if p.state.Liquidity.IsZero() {
			return ammerr.ErrZeroLiquidity
		}
		feePips := uint256.NewInt(uint64(p.key.Fee))
		denominator := uint256.NewInt(swapmath.FeeDenominator)
		fee0, err := fixedpoint.MulDivRoundingUp(amount0, feePips, denominator)
		if err != nil {
			return err
		}
		fee1, err := fixedpoint.MulDivRoundingUp(amount1, feePips, denominator)
		if err != nil {
			return err
		}

		before0, before1 := p.balances()
		if err := p.pay(p.key.Token0, recipient, amount0); err != nil {
			return err
		}
		if err := p.pay(p.key.Token1, recipient, amount1); err != nil {
			return err
		}
		if repay != nil {
			if err := repay(fee0.Clone(), fee1.Clone()); err != nil {
				return err
			}
		}
		after0, after1 := p.balances()
		if new(uint256.Int).Add(before0, fee0).Gt(after0) || new(uint256.Int).Add(before1, fee1).Gt(after1) {
			return ammerr.ErrInsufficientInputAmount
		}

		paid0 = new(uint256.Int).Sub(after0, before0)
		paid1 = new(uint256.Int).Sub(after1, before1)
		p.saveState()
		if !paid0.IsZero() {
			growth, err := fixedpoint.MulDiv(paid0, fixedpoint.Q128, &p.state.Liquidity)
			if err != nil {
				return err
			}
			p.state.FeeGrowthGlobal0X128.Add(&p.state.FeeGrowthGlobal0X128, growth)
		}
		if !paid1.IsZero() {
			growth, err := fixedpoint.MulDiv(paid1, fixedpoint.Q128, &p.state.Liquidity)
			if err != nil {
				return err
			}
			p.state.FeeGrowthGlobal1X128.Add(&p.state.FeeGrowthGlobal1X128, growth)
		}
		return nil
	})
	return paid0, paid1, err
}
