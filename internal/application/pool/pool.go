package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/oddspool/internal/application/ledger"
	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

const (
	DefaultMaturityWindow = 7 * 24 * time.Hour
)

// Config holds the pool's construction parameters.
type Config struct {
	// Account is the pool's own address in the settlement asset.
	Account common.Address

	// MaturityWindow is how long a withdrawal request waits before it can be
	// honored; ValidityWindow is how long it stays honorable after that.
	MaturityWindow time.Duration
	ValidityWindow time.Duration

	Ledger ledger.Config
}

// DefaultConfig returns 7 day maturity and validity windows and the default
// ledger parameters. A request made every 14 days replaces the one before it
// just as that one lapses.
func DefaultConfig() Config {
	return Config{
		MaturityWindow: DefaultMaturityWindow,
		ValidityWindow: DefaultMaturityWindow,
		Ledger:         ledger.DefaultConfig(),
	}
}

// Pool is the public entry point for bettors, depositors, oracles and
// maintainers. Every mutation runs under one lock, so each call is applied
// completely or not at all before the next one starts. Reads share the lock
// and see a consistent snapshot.
type Pool struct {
	mu sync.RWMutex

	cfg      Config
	ledger   *ledger.Ledger
	book     *book
	requests map[common.Address][]domain.WithdrawalRequest
	pending  map[string]domain.PendingTransfer

	asset    ports.SettlementAsset
	receipts ports.ReceiptRegistry
	clock    ports.Clock
	sink     ports.EventSink
}

// New creates a pool with an empty ledger. clock and sink may be nil.
func New(
	cfg Config,
	asset ports.SettlementAsset,
	receipts ports.ReceiptRegistry,
	auth ports.Authorizer,
	clock ports.Clock,
	sink ports.EventSink,
) *Pool {
	if cfg.MaturityWindow <= 0 {
		cfg.MaturityWindow = DefaultMaturityWindow
	}
	if cfg.ValidityWindow <= 0 {
		cfg.ValidityWindow = cfg.MaturityWindow
	}
	if clock == nil {
		clock = ports.SystemClock
	}
	b := newBook()
	return &Pool{
		cfg:      cfg,
		ledger:   ledger.New(cfg.Ledger, auth, b),
		book:     b,
		requests: make(map[common.Address][]domain.WithdrawalRequest),
		pending:  make(map[string]domain.PendingTransfer),
		asset:    asset,
		receipts: receipts,
		clock:    clock,
		sink:     sink,
	}
}

// Config returns the parameters the pool runs with.
func (p *Pool) Config() Config { return p.cfg }

// --- liquidity ---

// AddLiquidity pulls amount from caller and mints shares at the current
// share price. A deposit the asset leaves pending mints nothing and fails
// with ErrTransferUnconfirmed; ReconcileTransfers returns it if it lands.
func (p *Pool) AddLiquidity(ctx context.Context, caller common.Address, amount *uint256.Int) (uint256.Int, error) {
	if amount.IsZero() {
		return uint256.Int{}, domain.ErrZeroAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	minted := p.book.sharesFor(amount)
	if minted.IsZero() {
		return uint256.Int{}, domain.ErrDepositTooSmall
	}
	if err := p.asset.Transfer(ctx, caller, p.cfg.Account, amount); err != nil {
		if p.track(domain.TransferDeposit, caller, amount, 0, err) {
			return uint256.Int{}, fmt.Errorf("pool.AddLiquidity: pull deposit: %w: %w", domain.ErrTransferUnconfirmed, err)
		}
		return uint256.Int{}, fmt.Errorf("pool.AddLiquidity: pull deposit: %w", err)
	}
	p.book.deposit(caller, amount, minted)

	ev := domain.NewEvent(domain.EventLiquidityAdded, p.clock.Now(), caller)
	ev.Amount, ev.Shares = *amount, *minted
	p.publish(ctx, ev)
	return *minted, nil
}

// RequestLiquidity registers the intent to redeem shares. The request
// matures after the maturity window and lapses one validity window later.
func (p *Pool) RequestLiquidity(ctx context.Context, caller common.Address, shares *uint256.Int) (domain.WithdrawalRequest, error) {
	if shares.IsZero() {
		return domain.WithdrawalRequest{}, domain.ErrZeroAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	active := p.activeRequests(caller, now)
	reserved := domain.SumShares(active)
	balance := p.book.sharesOf(caller)
	if balance.Lt(reserved) || new(uint256.Int).Sub(balance, reserved).Lt(shares) {
		return domain.WithdrawalRequest{}, domain.ErrRequestExceedsShares
	}

	req := domain.WithdrawalRequest{Shares: *shares, RequestedAt: now.UTC()}
	p.requests[caller] = append(active, req)

	ev := domain.NewEvent(domain.EventLiquidityRequested, now, caller)
	ev.Shares = *shares
	p.publish(ctx, ev)
	return req, nil
}

// WithdrawLiquidity redeems shares covered by matured requests. Requests
// are consumed oldest first; a partly used request keeps its timestamp.
// When the asset leaves the push pending the shares are still redeemed and
// the value is returned together with an ErrTransferPending error.
func (p *Pool) WithdrawLiquidity(ctx context.Context, caller common.Address, shares *uint256.Int) (uint256.Int, error) {
	if shares.IsZero() {
		return uint256.Int{}, domain.ErrZeroAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	active := p.activeRequests(caller, now)
	matured := new(uint256.Int)
	for _, r := range active {
		if r.Eligible(now, p.cfg.MaturityWindow, p.cfg.ValidityWindow) {
			matured.Add(matured, &r.Shares)
		}
	}
	if matured.Lt(shares) {
		return uint256.Int{}, domain.ErrNoMaturedRequest
	}
	if p.book.sharesOf(caller).Lt(shares) {
		return uint256.Int{}, domain.ErrInsufficientShares
	}
	value := p.book.valueOf(shares)
	if p.book.free().Lt(value) {
		return uint256.Int{}, fmt.Errorf("pool.WithdrawLiquidity: value %s: %w", value.Dec(), domain.ErrInsufficientLiquidity)
	}

	err := p.asset.Transfer(ctx, p.cfg.Account, caller, value)
	pending := p.track(domain.TransferWithdrawal, caller, value, 0, err)
	if err != nil && !pending {
		return uint256.Int{}, fmt.Errorf("pool.WithdrawLiquidity: push value: %w", err)
	}
	p.book.redeem(caller, shares, value)
	p.requests[caller] = consume(active, shares, now, p.cfg.MaturityWindow, p.cfg.ValidityWindow)
	if len(p.requests[caller]) == 0 {
		delete(p.requests, caller)
	}

	ev := domain.NewEvent(domain.EventLiquidityWithdrawn, now, caller)
	ev.Amount, ev.Shares = *value, *shares
	p.publish(ctx, ev)
	if pending {
		return *value, fmt.Errorf("pool.WithdrawLiquidity: push value: %w", err)
	}
	return *value, nil
}

// activeRequests drops lapsed requests of account and returns the rest.
// Accounts left without requests have no entry.
func (p *Pool) activeRequests(account common.Address, now time.Time) []domain.WithdrawalRequest {
	reqs, ok := p.requests[account]
	if !ok {
		return nil
	}
	kept := reqs[:0]
	for _, r := range reqs {
		if !r.Expired(now, p.cfg.MaturityWindow, p.cfg.ValidityWindow) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(p.requests, account)
		return nil
	}
	p.requests[account] = kept
	return kept
}

// consume removes n shares from the eligible requests in reqs, oldest first.
func consume(reqs []domain.WithdrawalRequest, n *uint256.Int, now time.Time, maturity, validity time.Duration) []domain.WithdrawalRequest {
	left := n.Clone()
	out := make([]domain.WithdrawalRequest, 0, len(reqs))
	for _, r := range reqs {
		if left.IsZero() || !r.Eligible(now, maturity, validity) {
			out = append(out, r)
			continue
		}
		if r.Shares.Gt(left) {
			r.Shares.Sub(&r.Shares, left)
			left.Clear()
			out = append(out, r)
			continue
		}
		left.Sub(left, &r.Shares)
	}
	return out
}

// --- conditions ---

// CreateCondition registers a condition on behalf of an oracle and locks
// its reinforcement from free liquidity.
func (p *Pool) CreateCondition(ctx context.Context, caller common.Address, nc ledger.NewCondition) (domain.Condition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	c, err := p.ledger.CreateCondition(now, caller, nc)
	if err != nil {
		return domain.Condition{}, err
	}

	ev := domain.NewEvent(domain.EventConditionCreated, now, caller)
	ev.ConditionID, ev.Amount = c.ID, c.Reinforcement
	p.publish(ctx, ev)
	return c, nil
}

// ResolveCondition records the winning outcome of a condition.
func (p *Pool) ResolveCondition(ctx context.Context, caller common.Address, id, outcome uint64) (domain.Condition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	c, err := p.ledger.ResolveCondition(now, caller, id, outcome)
	if err != nil {
		return domain.Condition{}, err
	}

	ev := domain.NewEvent(domain.EventConditionResolved, now, caller)
	ev.ConditionID, ev.Outcome = c.ID, outcome
	idx, _ := c.OutcomeIndex(outcome)
	ev.Amount = c.Payouts[idx]
	p.publish(ctx, ev)
	return c, nil
}

// CancelCondition voids a condition so every bet on it refunds its stake.
func (p *Pool) CancelCondition(ctx context.Context, caller common.Address, id uint64) (domain.Condition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	c, err := p.ledger.CancelCondition(now, caller, id)
	if err != nil {
		return domain.Condition{}, err
	}

	ev := domain.NewEvent(domain.EventConditionCanceled, now, caller)
	ev.ConditionID, ev.Amount = c.ID, *c.TotalStakes()
	p.publish(ctx, ev)
	return c, nil
}

// --- bets ---

// Bet prices and accepts a stake. The stake is pulled from caller and a
// receipt for the new bet is minted to caller. If minting fails the stake
// is returned and the ledger is left untouched. A stake the asset leaves
// pending places no bet and fails with ErrTransferUnconfirmed.
func (p *Pool) Bet(ctx context.Context, caller common.Address, req ledger.BetRequest) (domain.Bet, error) {
	req.Bettor = caller

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	plan, err := p.ledger.PrepareBet(now, req)
	if err != nil {
		return domain.Bet{}, err
	}

	amount := &plan.Request.Amount
	if err := p.asset.Transfer(ctx, caller, p.cfg.Account, amount); err != nil {
		if p.track(domain.TransferStake, caller, amount, 0, err) {
			return domain.Bet{}, fmt.Errorf("pool.Bet: pull stake: %w: %w", domain.ErrTransferUnconfirmed, err)
		}
		return domain.Bet{}, fmt.Errorf("pool.Bet: pull stake: %w", err)
	}
	if err := p.receipts.Mint(ctx, caller, plan.BetID, plan.Meta()); err != nil {
		rerr := p.asset.Transfer(ctx, p.cfg.Account, caller, amount)
		if rerr != nil && !p.track(domain.TransferRefund, caller, amount, 0, rerr) {
			slog.Error("pool: stake refund failed after mint error",
				"bettor", caller.Hex(), "amount", amount.Dec(), "err", rerr)
		}
		return domain.Bet{}, fmt.Errorf("pool.Bet: mint receipt %d: %w", plan.BetID, err)
	}

	b, err := p.ledger.CommitBet(plan)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("pool.Bet: commit: %w", err)
	}
	p.book.escrow.Add(&p.book.escrow, amount)

	ev := domain.NewEvent(domain.EventBetPlaced, now, caller)
	ev.ConditionID, ev.BetID, ev.Outcome = b.ConditionID, b.ID, b.Outcome
	ev.Amount, ev.Odds = b.Amount, b.Odds
	p.publish(ctx, ev)
	return b, nil
}

// WithdrawPayout pays the current owner of receipt id what the bet won.
// When the asset leaves the push pending the bet is still marked settled and
// the amount is returned together with an ErrTransferPending error, so a
// retry cannot pay twice.
func (p *Pool) WithdrawPayout(ctx context.Context, caller common.Address, id uint64) (uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	owner, err := p.receipts.OwnerOf(ctx, id)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("pool.WithdrawPayout: owner of %d: %w", id, err)
	}
	if owner != caller {
		return uint256.Int{}, domain.ErrNotReceiptOwner
	}
	_, amount, err := p.ledger.ComputePayout(id)
	if err != nil {
		return uint256.Int{}, err
	}
	if amount.IsZero() {
		return uint256.Int{}, domain.ErrNoWinNoPrize
	}
	b, err := p.ledger.Bet(id)
	if err != nil {
		return uint256.Int{}, err
	}
	if b.Settled {
		return uint256.Int{}, domain.ErrAlreadySettled
	}

	err = p.asset.Transfer(ctx, p.cfg.Account, caller, &amount)
	pending := p.track(domain.TransferPayout, caller, &amount, id, err)
	if err != nil && !pending {
		return uint256.Int{}, fmt.Errorf("pool.WithdrawPayout: push payout: %w", err)
	}
	if err := p.ledger.MarkSettled(id); err != nil {
		return uint256.Int{}, err
	}
	p.book.payoutReserve.Sub(&p.book.payoutReserve, &amount)

	ev := domain.NewEvent(domain.EventPayoutWithdrawn, p.clock.Now(), caller)
	ev.ConditionID, ev.BetID, ev.Outcome = b.ConditionID, b.ID, b.Outcome
	ev.Amount, ev.Odds = amount, b.Odds
	p.publish(ctx, ev)
	if pending {
		return amount, fmt.Errorf("pool.WithdrawPayout: push payout: %w", err)
	}
	return amount, nil
}

// ViewPayout previews what bet id pays. It keeps answering after the
// payout was withdrawn.
func (p *Pool) ViewPayout(_ context.Context, id uint64) (bool, uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.ComputePayout(id)
}

// --- views ---

// Quote returns the odds a stake of amount on outcome would get now.
func (p *Pool) Quote(_ context.Context, conditionID uint64, amount *uint256.Int, outcome uint64) (uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.Quote(p.clock.Now(), conditionID, amount, outcome)
}

func (p *Pool) Condition(id uint64) (domain.Condition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.Condition(id)
}

func (p *Pool) ConditionFunds(id uint64) ([2]uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.ConditionFunds(id)
}

func (p *Pool) Conditions() []domain.Condition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.Conditions()
}

// BetInfo returns bet id, including its affiliate and settlement flag.
func (p *Pool) BetInfo(id uint64) (domain.Bet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.Bet(id)
}

// SharesOf returns the share balance of account.
func (p *Pool) SharesOf(account common.Address) uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.book.sharesOf(account)
}

// PendingRequests returns the withdrawal requests of account that have not
// lapsed at the current time.
func (p *Pool) PendingRequests(account common.Address) []domain.WithdrawalRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.clock.Now()
	var out []domain.WithdrawalRequest
	for _, r := range p.requests[account] {
		if !r.Expired(now, p.cfg.MaturityWindow, p.cfg.ValidityWindow) {
			out = append(out, r)
		}
	}
	return out
}

// Snapshot is a consistent view of the pool's balance sheet.
type Snapshot struct {
	Liquidity      uint256.Int
	Locked         uint256.Int
	Free           uint256.Int
	Escrow         uint256.Int
	PayoutReserve  uint256.Int
	TotalShares    uint256.Int
	OpenConditions int
	Depositors     int
}

// Held is the total the pool account should hold in the settlement asset.
func (s Snapshot) Held() *uint256.Int {
	h := new(uint256.Int).Add(&s.Liquidity, &s.Escrow)
	return h.Add(h, &s.PayoutReserve)
}

func (p *Pool) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	open := 0
	for _, c := range p.ledger.Conditions() {
		if !c.Decided() {
			open++
		}
	}
	return Snapshot{
		Liquidity:      p.book.liquidity,
		Locked:         p.book.locked,
		Free:           *p.book.free(),
		Escrow:         p.book.escrow,
		PayoutReserve:  p.book.payoutReserve,
		TotalShares:    p.book.totalShares,
		OpenConditions: open,
		Depositors:     len(p.book.shares),
	}
}

// publish hands ev to the sink. Sink failures are logged, never returned.
func (p *Pool) publish(ctx context.Context, ev domain.Event) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, ev); err != nil {
		slog.Warn("pool: event sink failed", "kind", ev.Kind, "id", ev.ID, "err", err)
	}
}
