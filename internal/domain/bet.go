package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Bet is an accepted stake. Odds are fixed at acceptance; Settled flips once
// when the payout is withdrawn. Ownership lives in the receipt registry under
// the same ID.
type Bet struct {
	ID          uint64
	ConditionID uint64
	Outcome     uint64
	Amount      uint256.Int
	Odds        uint256.Int
	Settled     bool
	Affiliate   common.Address
	CreatedAt   time.Time
}

// Payout is Amount·Odds/scale, what the bet returns if it wins.
func (b *Bet) Payout(scale *uint256.Int) *uint256.Int {
	return Payout(&b.Amount, &b.Odds, scale)
}

// Payout returns amount·odds/scale.
func Payout(amount, odds, scale *uint256.Int) *uint256.Int {
	p := new(uint256.Int).Mul(amount, odds)
	return p.Div(p, scale)
}

// ReceiptMeta is the observable metadata carried by a bet receipt.
type ReceiptMeta struct {
	ConditionID uint64
	Outcome     uint64
	Amount      uint256.Int
	Odds        uint256.Int
}
