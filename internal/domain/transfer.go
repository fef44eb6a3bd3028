package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TransferKind says why the pool moved value.
type TransferKind string

const (
	TransferStake      TransferKind = "stake"
	TransferDeposit    TransferKind = "deposit"
	TransferPayout     TransferKind = "payout"
	TransferWithdrawal TransferKind = "withdrawal"
	TransferRefund     TransferKind = "refund"
)

// Inbound reports whether the transfer pulls value into the pool.
func (k TransferKind) Inbound() bool {
	return k == TransferStake || k == TransferDeposit
}

// PendingTransfer is a transfer the settlement asset submitted without
// confirming it. Inbound ones were not booked; outbound ones were.
type PendingTransfer struct {
	Ref         string
	Kind        TransferKind
	Account     common.Address
	Amount      uint256.Int
	BetID       uint64 // payouts only
	SubmittedAt time.Time
}
