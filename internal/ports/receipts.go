package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/oddspool/internal/domain"
)

// ReceiptRegistry holds the transferable bearer tokens that represent bet
// claims. The pool mints one per accepted bet and asks it who may withdraw.
type ReceiptRegistry interface {
	// Mint issues receipt id to owner with the bet's observable metadata.
	// Minting an id twice fails with domain.ErrReceiptExists.
	Mint(ctx context.Context, owner common.Address, id uint64, meta domain.ReceiptMeta) error

	// OwnerOf returns the current holder of receipt id.
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)

	// Transfer moves receipt id from its current holder to another account.
	Transfer(ctx context.Context, from, to common.Address, id uint64) error
}
