package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/oddspool/internal/domain"
)

// book is the pool's balance sheet. Everything the pool holds in the
// settlement asset is liquidity + escrow + payoutReserve.
//
//   - liquidity: owned by depositors, including what is locked
//   - locked: reinforcement set aside for open conditions
//   - escrow: stakes paid into conditions that are still open
//   - payoutReserve: owed to bettors of decided conditions, not yet claimed
type book struct {
	liquidity     uint256.Int
	locked        uint256.Int
	escrow        uint256.Int
	payoutReserve uint256.Int

	totalShares uint256.Int
	shares      map[common.Address]*uint256.Int
}

func newBook() *book {
	return &book{shares: make(map[common.Address]*uint256.Int)}
}

// LockReserve implements ledger.ReserveAccount.
func (b *book) LockReserve(amount *uint256.Int) error {
	if b.free().Lt(amount) {
		return domain.ErrReserveUnavailable
	}
	b.locked.Add(&b.locked, amount)
	return nil
}

// ReleaseReserve implements ledger.ReserveAccount. Depositors gain the
// stakes and lose what winners are owed.
func (b *book) ReleaseReserve(reinforcement, stakes, owed *uint256.Int) {
	b.locked.Sub(&b.locked, reinforcement)
	b.liquidity.Add(&b.liquidity, stakes)
	b.liquidity.Sub(&b.liquidity, owed)
	b.escrow.Sub(&b.escrow, stakes)
	b.payoutReserve.Add(&b.payoutReserve, owed)
}

// free is the liquidity not locked by any open condition.
func (b *book) free() *uint256.Int {
	return new(uint256.Int).Sub(&b.liquidity, &b.locked)
}

func (b *book) sharesOf(account common.Address) *uint256.Int {
	if s, ok := b.shares[account]; ok {
		return s.Clone()
	}
	return new(uint256.Int)
}

// sharesFor is how many shares a deposit of amount mints at the current
// share price. An empty pool mints one share per unit.
func (b *book) sharesFor(amount *uint256.Int) *uint256.Int {
	if b.totalShares.IsZero() || b.liquidity.IsZero() {
		return amount.Clone()
	}
	s := new(uint256.Int).Mul(amount, &b.totalShares)
	return s.Div(s, &b.liquidity)
}

// valueOf is what n shares redeem for at the current share price.
func (b *book) valueOf(n *uint256.Int) *uint256.Int {
	if b.totalShares.IsZero() {
		return new(uint256.Int)
	}
	v := new(uint256.Int).Mul(n, &b.liquidity)
	return v.Div(v, &b.totalShares)
}

func (b *book) deposit(account common.Address, amount, minted *uint256.Int) {
	b.liquidity.Add(&b.liquidity, amount)
	b.totalShares.Add(&b.totalShares, minted)
	bal := b.sharesOf(account)
	b.shares[account] = bal.Add(bal, minted)
}

func (b *book) redeem(account common.Address, burned, value *uint256.Int) {
	b.liquidity.Sub(&b.liquidity, value)
	b.totalShares.Sub(&b.totalShares, burned)
	bal := b.sharesOf(account)
	bal.Sub(bal, burned)
	if bal.IsZero() {
		delete(b.shares, account)
		return
	}
	b.shares[account] = bal
}
