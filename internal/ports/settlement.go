package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SettlementAsset moves fungible value between accounts. On error nothing
// moved, unless the error carries a *PendingTransferError: then the transfer
// was submitted and may still land.
type SettlementAsset interface {
	// Transfer moves amount from one account to another.
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error

	// BalanceOf returns the spendable balance of account.
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
}

// ErrTransferPending matches every *PendingTransferError.
var ErrTransferPending = errors.New("settlement: transfer pending")

// PendingTransferError reports a transfer that was submitted but whose
// outcome is not known yet. Ref identifies it to a TransferTracker.
type PendingTransferError struct {
	Ref string
	Err error
}

func (e *PendingTransferError) Error() string {
	return fmt.Sprintf("transfer %s pending: %v", e.Ref, e.Err)
}

func (e *PendingTransferError) Unwrap() []error { return []error{ErrTransferPending, e.Err} }

// TransferState is the known outcome of a submitted transfer.
type TransferState int

const (
	TransferPending TransferState = iota
	TransferLanded
	TransferFailed
)

func (s TransferState) String() string {
	switch s {
	case TransferLanded:
		return "landed"
	case TransferFailed:
		return "failed"
	default:
		return "pending"
	}
}

// TransferTracker is implemented by settlement assets that can leave a
// transfer pending. It looks up what became of one.
type TransferTracker interface {
	TransferStatus(ctx context.Context, ref string) (TransferState, error)
}
