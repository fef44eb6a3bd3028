package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

// track records the transfer behind err when the asset left it pending and
// reports whether it did. Callers hold p.mu.
func (p *Pool) track(kind domain.TransferKind, account common.Address, amount *uint256.Int, betID uint64, err error) bool {
	var pe *ports.PendingTransferError
	if !errors.As(err, &pe) {
		return false
	}
	p.pending[pe.Ref] = domain.PendingTransfer{
		Ref:         pe.Ref,
		Kind:        kind,
		Account:     account,
		Amount:      *amount,
		BetID:       betID,
		SubmittedAt: p.clock.Now().UTC(),
	}
	slog.Warn("pool: transfer pending",
		"ref", pe.Ref, "kind", kind, "account", account.Hex(), "amount", amount.Dec(), "err", pe.Err)
	return true
}

// ReconcileTransfers asks the asset what became of every pending transfer.
// An inbound transfer that landed was never booked, so it is sent back; an
// outbound one that failed was booked, so it is sent again. Records still
// pending are left alone. It returns how many records were closed. Assets
// that cannot track transfers never leave any pending and make this a no-op.
func (p *Pool) ReconcileTransfers(ctx context.Context) (int, error) {
	tracker, ok := p.asset.(ports.TransferTracker)
	if !ok {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		closed int
		errs   []error
	)
	for _, t := range p.pendingSorted() {
		state, err := tracker.TransferStatus(ctx, t.Ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("transfer %s: %w", t.Ref, err))
			continue
		}
		if state == ports.TransferPending {
			continue
		}

		var retry domain.TransferKind
		switch {
		case state == ports.TransferLanded && t.Kind.Inbound():
			retry = domain.TransferRefund
		case state == ports.TransferFailed && !t.Kind.Inbound():
			retry = t.Kind
		}
		delete(p.pending, t.Ref)
		if retry != "" {
			if err := p.resend(ctx, retry, t); err != nil {
				p.pending[t.Ref] = t
				errs = append(errs, fmt.Errorf("transfer %s: %s: %w", t.Ref, retry, err))
				continue
			}
		}
		slog.Info("pool: pending transfer closed",
			"ref", t.Ref, "kind", t.Kind, "state", state, "account", t.Account.Hex(), "amount", t.Amount.Dec())
		closed++
	}
	return closed, errors.Join(errs...)
}

// resend pushes t.Amount from the pool to t.Account. A push the asset
// leaves pending again is tracked under its new reference.
func (p *Pool) resend(ctx context.Context, kind domain.TransferKind, t domain.PendingTransfer) error {
	err := p.asset.Transfer(ctx, p.cfg.Account, t.Account, &t.Amount)
	if err == nil || p.track(kind, t.Account, &t.Amount, t.BetID, err) {
		return nil
	}
	return err
}

// PendingTransfers returns the transfers whose outcome is still unknown,
// oldest first.
func (p *Pool) PendingTransfers() []domain.PendingTransfer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pendingSorted()
}

func (p *Pool) pendingSorted() []domain.PendingTransfer {
	out := make([]domain.PendingTransfer, 0, len(p.pending))
	for _, t := range p.pending {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}
