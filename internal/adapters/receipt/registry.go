package receipt

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/oddspool/internal/domain"
)

type entry struct {
	owner common.Address
	meta  domain.ReceiptMeta
}

// Registry is an in-memory receipt registry. Receipts are never burned, so
// a settled bet's receipt can still be looked up and moved. It implements
// ports.ReceiptRegistry and is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	receipts map[uint64]entry
	balances map[common.Address]int
}

func NewRegistry() *Registry {
	return &Registry{
		receipts: make(map[uint64]entry),
		balances: make(map[common.Address]int),
	}
}

func (r *Registry) Mint(_ context.Context, owner common.Address, id uint64, meta domain.ReceiptMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.receipts[id]; ok {
		return fmt.Errorf("receipt.Mint: %d: %w", id, domain.ErrReceiptExists)
	}
	r.receipts[id] = entry{owner: owner, meta: meta}
	r.balances[owner]++
	return nil
}

func (r *Registry) OwnerOf(_ context.Context, id uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.receipts[id]
	if !ok {
		return common.Address{}, fmt.Errorf("receipt.OwnerOf: %d: %w", id, domain.ErrReceiptNotFound)
	}
	return e.owner, nil
}

// Transfer moves receipt id. from must be its current owner.
func (r *Registry) Transfer(_ context.Context, from, to common.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.receipts[id]
	if !ok {
		return fmt.Errorf("receipt.Transfer: %d: %w", id, domain.ErrReceiptNotFound)
	}
	if e.owner != from {
		return domain.ErrNotReceiptOwner
	}
	e.owner = to
	r.receipts[id] = e
	r.balances[from]--
	if r.balances[from] == 0 {
		delete(r.balances, from)
	}
	r.balances[to]++
	return nil
}

// Metadata returns what was recorded when receipt id was minted.
func (r *Registry) Metadata(id uint64) (domain.ReceiptMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.receipts[id]
	if !ok {
		return domain.ReceiptMeta{}, fmt.Errorf("receipt.Metadata: %d: %w", id, domain.ErrReceiptNotFound)
	}
	return e.meta, nil
}

// BalanceOf counts the receipts held by owner.
func (r *Registry) BalanceOf(owner common.Address) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[owner]
}
