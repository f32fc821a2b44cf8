// Package ledger is an in-memory multi-asset balance book. It stands in for token
// custody: pools, the position manager and the router move funds only through it.
package ledger

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"clamm/internal/ammerr"
	"clamm/internal/journal"
)

// Balance is one non-zero entry of the book.
type Balance struct {
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
}

type Ledger struct {
	balances map[common.Address]map[common.Address]*uint256.Int
	journal  *journal.Journal
}

// New returns an empty ledger. Mutations are recorded in j when it is non-nil.
func New(j *journal.Journal) *Ledger {
	return &Ledger{
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
		journal:  j,
	}
}

// BalanceOf returns a copy of account's balance of asset.
func (l *Ledger) BalanceOf(asset, account common.Address) *uint256.Int {
	if bal, ok := l.balances[asset][account]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// Mint credits amount out of thin air. Scenarios use it to fund accounts.
func (l *Ledger) Mint(asset, account common.Address, amount *uint256.Int) error {
	cur := l.BalanceOf(asset, account)
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return ammerr.BalanceOverflow(asset, account)
	}
	l.set(asset, account, next)
	return nil
}

// Transfer moves amount of asset between two accounts.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	fromBal := l.BalanceOf(asset, from)
	if fromBal.Lt(amount) {
		return ammerr.InsufficientBalance(asset, from)
	}
	l.set(asset, from, fromBal.Sub(fromBal, amount))
	toBal := l.BalanceOf(asset, to)
	l.set(asset, to, toBal.Add(toBal, amount))
	return nil
}

func (l *Ledger) set(asset, account common.Address, amount *uint256.Int) {
	prev, existed := l.balances[asset][account]
	l.journal.Append(func() {
		if existed {
			l.balances[asset][account] = prev
		} else {
			delete(l.balances[asset], account)
		}
	})

	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[asset] = accounts
	}
	if amount.IsZero() {
		delete(accounts, account)
		return
	}
	accounts[account] = amount
}

// Balances lists every non-zero balance ordered by asset, then account.
func (l *Ledger) Balances() []Balance {
	out := make([]Balance, 0)
	for asset, accounts := range l.balances {
		for account, amount := range accounts {
			out = append(out, Balance{Asset: asset, Account: account, Amount: amount.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset.Hex() < out[j].Asset.Hex()
		}
		return out[i].Account.Hex() < out[j].Account.Hex()
	})
	return out
}

// Load replaces the book with the given balances. It is not journaled.
func (l *Ledger) Load(balances []Balance) {
	l.balances = make(map[common.Address]map[common.Address]*uint256.Int)
	for _, b := range balances {
		if b.Amount == nil || b.Amount.IsZero() {
			continue
		}
		accounts, ok := l.balances[b.Asset]
		if !ok {
			accounts = make(map[common.Address]*uint256.Int)
			l.balances[b.Asset] = accounts
		}
		accounts[b.Account] = b.Amount.Clone()
	}
}
