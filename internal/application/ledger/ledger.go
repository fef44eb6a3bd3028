package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

const (
	DefaultScale           = 1_000_000_000
	DefaultMargin          = 50_000_000 // 5%
	DefaultMaxReserveRatio = 1000
	defaultReinforcement   = 20_000 // units of scale
)

// Config holds the protocol parameters fixed at construction.
type Config struct {
	Scale         uint256.Int
	Reinforcement uint256.Int // locked from the pool per condition
	Margin        uint256.Int // house edge at Scale, applied to every condition
	MinBet        uint256.Int // stakes must be strictly greater

	// MaxReserveRatio rejects a stake when the backed reserve plus the stake
	// would reach this multiple of the opposing reserve.
	MaxReserveRatio uint64
}

// DefaultConfig returns scale 1e9, a 5% margin, a minimum bet of one unit
// and a reinforcement of 20000 units.
func DefaultConfig() Config {
	var cfg Config
	cfg.Scale.SetUint64(DefaultScale)
	cfg.Margin.SetUint64(DefaultMargin)
	cfg.MinBet.SetUint64(DefaultScale)
	cfg.Reinforcement.Mul(uint256.NewInt(defaultReinforcement), &cfg.Scale)
	cfg.MaxReserveRatio = DefaultMaxReserveRatio
	return cfg
}

// ReserveAccount is the pool-side balance that backs conditions.
type ReserveAccount interface {
	// LockReserve sets amount aside from free liquidity, or fails with
	// domain.ErrReserveUnavailable.
	LockReserve(amount *uint256.Int) error

	// ReleaseReserve returns a condition's reinforcement to the pool once it
	// is decided. stakes is everything bettors paid in; owed is what the
	// condition's bets can now claim.
	ReleaseReserve(reinforcement, stakes, owed *uint256.Int)
}

// NewCondition describes a condition to create.
type NewCondition struct {
	ID       uint64
	Weights  [2]uint64
	Outcomes [2]uint64
	Deadline time.Time
	Metadata common.Hash
}

// BetRequest describes a stake a bettor wants to place.
type BetRequest struct {
	Bettor        common.Address
	ConditionID   uint64
	Amount        uint256.Int
	Outcome       uint64
	DeadlineLimit time.Time
	MinOdds       uint256.Int
	Affiliate     common.Address
}

// BetPlan is a validated, priced bet that has not been applied yet. It is
// only valid until the next mutation of the ledger.
type BetPlan struct {
	BetID   uint64
	Request BetRequest
	Odds    uint256.Int
	Payout  uint256.Int
	At      time.Time

	index int
	seq   uint64
}

// Meta is the receipt metadata for the planned bet.
func (p BetPlan) Meta() domain.ReceiptMeta {
	return domain.ReceiptMeta{
		ConditionID: p.Request.ConditionID,
		Outcome:     p.Request.Outcome,
		Amount:      p.Request.Amount,
		Odds:        p.Odds,
	}
}

// Ledger owns conditions and bets. It is not safe for concurrent use; the
// pool serializes every call.
type Ledger struct {
	cfg     Config
	auth    ports.Authorizer
	reserve ReserveAccount

	conditions map[uint64]*domain.Condition
	bets       map[uint64]*domain.Bet
	nextBetID  uint64
	seq        uint64
}

// New creates an empty ledger.
func New(cfg Config, auth ports.Authorizer, reserve ReserveAccount) *Ledger {
	if cfg.Scale.IsZero() {
		cfg.Scale.SetUint64(DefaultScale)
	}
	if cfg.MaxReserveRatio == 0 {
		cfg.MaxReserveRatio = DefaultMaxReserveRatio
	}
	return &Ledger{
		cfg:        cfg,
		auth:       auth,
		reserve:    reserve,
		conditions: make(map[uint64]*domain.Condition),
		bets:       make(map[uint64]*domain.Bet),
		nextBetID:  1,
	}
}

// Config returns the parameters the ledger runs with.
func (l *Ledger) Config() Config { return l.cfg }

// CreateCondition registers a condition and locks its reinforcement.
func (l *Ledger) CreateCondition(now time.Time, caller common.Address, nc NewCondition) (domain.Condition, error) {
	if !l.auth.HasRole(domain.RoleOracle, caller) {
		return domain.Condition{}, domain.ErrNotOracle
	}
	if _, ok := l.conditions[nc.ID]; ok {
		return domain.Condition{}, fmt.Errorf("ledger.CreateCondition: id %d: %w", nc.ID, domain.ErrConditionExists)
	}
	if nc.Deadline.IsZero() || !nc.Deadline.After(now) {
		return domain.Condition{}, domain.ErrDeadlineInvalid
	}
	if nc.Weights[0] == 0 || nc.Weights[1] == 0 {
		return domain.Condition{}, domain.ErrInvalidWeights
	}
	if nc.Outcomes[0] == 0 || nc.Outcomes[1] == 0 || nc.Outcomes[0] == nc.Outcomes[1] {
		return domain.Condition{}, domain.ErrInvalidOutcomes
	}
	if err := l.reserve.LockReserve(&l.cfg.Reinforcement); err != nil {
		return domain.Condition{}, fmt.Errorf("ledger.CreateCondition: lock reserve: %w", err)
	}

	c := &domain.Condition{
		ID:            nc.ID,
		Outcomes:      nc.Outcomes,
		Reserves:      domain.InitialReserves(&l.cfg.Reinforcement, nc.Weights),
		Reinforcement: l.cfg.Reinforcement,
		Margin:        l.cfg.Margin,
		Deadline:      nc.Deadline.UTC(),
		Metadata:      nc.Metadata,
		State:         domain.ConditionCreated,
		CreatedAt:     now.UTC(),
	}
	l.conditions[c.ID] = c
	l.seq++
	return *c, nil
}

// PrepareBet validates and prices a bet without changing any state.
func (l *Ledger) PrepareBet(now time.Time, req BetRequest) (BetPlan, error) {
	if !req.Amount.Gt(&l.cfg.MinBet) {
		return BetPlan{}, domain.ErrBetTooSmall
	}
	c, ok := l.conditions[req.ConditionID]
	if !ok {
		return BetPlan{}, fmt.Errorf("ledger.PrepareBet: condition %d: %w", req.ConditionID, domain.ErrConditionNotFound)
	}
	if c.State != domain.ConditionCreated {
		return BetPlan{}, domain.ErrConditionClosed
	}
	if now.After(req.DeadlineLimit) {
		return BetPlan{}, domain.ErrBetDeadlineExceeded
	}
	if !now.Before(c.Deadline) {
		return BetPlan{}, domain.ErrConditionExpired
	}
	idx, ok := c.OutcomeIndex(req.Outcome)
	if !ok {
		return BetPlan{}, fmt.Errorf("ledger.PrepareBet: outcome %d: %w", req.Outcome, domain.ErrInvalidOutcome)
	}

	odds, err := l.price(c, idx, &req.Amount)
	if err != nil {
		return BetPlan{}, err
	}
	if odds.Lt(&req.MinOdds) {
		return BetPlan{}, fmt.Errorf("ledger.PrepareBet: odds %s < %s: %w", odds.Dec(), req.MinOdds.Dec(), domain.ErrOddsBelowMinimum)
	}
	if odds.Lt(&l.cfg.Scale) {
		return BetPlan{}, domain.ErrOddsBelowFloor
	}

	payout := domain.Payout(&req.Amount, odds, &l.cfg.Scale)
	if err := l.checkCoverage(c, idx, &req.Amount, payout); err != nil {
		return BetPlan{}, err
	}

	return BetPlan{
		BetID:   l.nextBetID,
		Request: req,
		Odds:    *odds,
		Payout:  *payout,
		At:      now.UTC(),
		index:   idx,
		seq:     l.seq,
	}, nil
}

// CommitBet applies a plan returned by PrepareBet. The plan must be the
// most recent one prepared against the current ledger state.
func (l *Ledger) CommitBet(plan BetPlan) (domain.Bet, error) {
	if plan.seq != l.seq || plan.BetID != l.nextBetID {
		return domain.Bet{}, domain.ErrStalePlan
	}
	c := l.conditions[plan.Request.ConditionID]
	side, other := plan.index, 1-plan.index
	amount := &plan.Request.Amount

	// The backed side absorbs the stake; the opposing side funds the winnings.
	net := new(uint256.Int).Sub(&plan.Payout, amount)
	c.Reserves[side].Add(&c.Reserves[side], amount)
	c.Reserves[other].Sub(&c.Reserves[other], net)
	c.Stakes[side].Add(&c.Stakes[side], amount)
	c.Payouts[side].Add(&c.Payouts[side], &plan.Payout)

	b := &domain.Bet{
		ID:          plan.BetID,
		ConditionID: c.ID,
		Outcome:     plan.Request.Outcome,
		Amount:      plan.Request.Amount,
		Odds:        plan.Odds,
		Affiliate:   plan.Request.Affiliate,
		CreatedAt:   plan.At,
	}
	l.bets[b.ID] = b
	l.nextBetID++
	l.seq++
	return *b, nil
}

// ResolveCondition records the winning outcome and releases the
// reinforcement net of what winners are owed.
func (l *Ledger) ResolveCondition(now time.Time, caller common.Address, id, outcome uint64) (domain.Condition, error) {
	if !l.auth.HasRole(domain.RoleOracle, caller) {
		return domain.Condition{}, domain.ErrNotOracle
	}
	c, err := l.decidable(id)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("ledger.ResolveCondition: %w", err)
	}
	idx, ok := c.OutcomeIndex(outcome)
	if !ok {
		return domain.Condition{}, fmt.Errorf("ledger.ResolveCondition: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	if now.Before(c.Deadline) {
		return domain.Condition{}, domain.ErrConditionNotEnded
	}

	c.State = domain.ConditionResolved
	c.WinningOutcome = outcome
	l.reserve.ReleaseReserve(&c.Reinforcement, c.TotalStakes(), &c.Payouts[idx])
	l.seq++
	return *c, nil
}

// CancelCondition voids a condition. Every bet on it becomes refundable at
// exactly its stake.
func (l *Ledger) CancelCondition(now time.Time, caller common.Address, id uint64) (domain.Condition, error) {
	if !l.auth.HasRole(domain.RoleMaintainer, caller) {
		return domain.Condition{}, domain.ErrNotMaintainer
	}
	c, err := l.decidable(id)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("ledger.CancelCondition: %w", err)
	}
	if now.Before(c.Deadline) {
		return domain.Condition{}, domain.ErrConditionNotEnded
	}

	c.State = domain.ConditionCanceled
	stakes := c.TotalStakes()
	l.reserve.ReleaseReserve(&c.Reinforcement, stakes, stakes)
	l.seq++
	return *c, nil
}

// ComputePayout reports what bet id can claim. Canceled conditions refund
// the stake; undecided ones fail with domain.ErrNotDecided.
func (l *Ledger) ComputePayout(id uint64) (bool, uint256.Int, error) {
	b, ok := l.bets[id]
	if !ok {
		return false, uint256.Int{}, fmt.Errorf("ledger.ComputePayout: bet %d: %w", id, domain.ErrBetNotFound)
	}
	c := l.conditions[b.ConditionID]
	switch c.State {
	case domain.ConditionResolved:
		if b.Outcome != c.WinningOutcome {
			return false, uint256.Int{}, nil
		}
		return true, *b.Payout(&l.cfg.Scale), nil
	case domain.ConditionCanceled:
		return true, b.Amount, nil
	default:
		return false, uint256.Int{}, domain.ErrNotDecided
	}
}

// MarkSettled flags bet id as paid. It fails if it already was.
func (l *Ledger) MarkSettled(id uint64) error {
	b, ok := l.bets[id]
	if !ok {
		return fmt.Errorf("ledger.MarkSettled: bet %d: %w", id, domain.ErrBetNotFound)
	}
	if b.Settled {
		return domain.ErrAlreadySettled
	}
	b.Settled = true
	l.seq++
	return nil
}

// Quote prices a prospective stake against the current reserves, applying
// the same guards as PrepareBet except the caller's limits.
func (l *Ledger) Quote(now time.Time, conditionID uint64, amount *uint256.Int, outcome uint64) (uint256.Int, error) {
	c, ok := l.conditions[conditionID]
	if !ok {
		return uint256.Int{}, fmt.Errorf("ledger.Quote: condition %d: %w", conditionID, domain.ErrConditionNotFound)
	}
	if c.State != domain.ConditionCreated {
		return uint256.Int{}, domain.ErrConditionClosed
	}
	if !now.Before(c.Deadline) {
		return uint256.Int{}, domain.ErrConditionExpired
	}
	idx, ok := c.OutcomeIndex(outcome)
	if !ok {
		return uint256.Int{}, fmt.Errorf("ledger.Quote: outcome %d: %w", outcome, domain.ErrInvalidOutcome)
	}
	odds, err := l.price(c, idx, amount)
	if err != nil {
		return uint256.Int{}, err
	}
	return *odds, nil
}

// Condition returns a copy of condition id.
func (l *Ledger) Condition(id uint64) (domain.Condition, error) {
	c, ok := l.conditions[id]
	if !ok {
		return domain.Condition{}, fmt.Errorf("ledger.Condition: %d: %w", id, domain.ErrConditionNotFound)
	}
	return *c, nil
}

// ConditionFunds returns the current reserve pair of condition id.
func (l *Ledger) ConditionFunds(id uint64) ([2]uint256.Int, error) {
	c, ok := l.conditions[id]
	if !ok {
		return [2]uint256.Int{}, fmt.Errorf("ledger.ConditionFunds: %d: %w", id, domain.ErrConditionNotFound)
	}
	return c.Reserves, nil
}

// Conditions returns copies of every condition ordered by id.
func (l *Ledger) Conditions() []domain.Condition {
	out := make([]domain.Condition, 0, len(l.conditions))
	for _, c := range l.conditions {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Bet returns a copy of bet id.
func (l *Ledger) Bet(id uint64) (domain.Bet, error) {
	b, ok := l.bets[id]
	if !ok {
		return domain.Bet{}, fmt.Errorf("ledger.Bet: %d: %w", id, domain.ErrBetNotFound)
	}
	return *b, nil
}

// decidable returns condition id if it can still be resolved or canceled.
func (l *Ledger) decidable(id uint64) (*domain.Condition, error) {
	c, ok := l.conditions[id]
	if !ok {
		return nil, fmt.Errorf("condition %d: %w", id, domain.ErrConditionNotFound)
	}
	if c.Decided() {
		return nil, fmt.Errorf("condition %d: %w", id, domain.ErrConditionClosed)
	}
	return c, nil
}

// price applies the imbalance guard and prices amount on slot idx of c.
func (l *Ledger) price(c *domain.Condition, idx int, amount *uint256.Int) (*uint256.Int, error) {
	side, other := &c.Reserves[idx], &c.Reserves[1-idx]
	if other.IsZero() {
		return nil, domain.ErrBetTooLarge
	}
	after, overflow := new(uint256.Int).AddOverflow(side, amount)
	if overflow {
		return nil, domain.ErrBetTooLarge
	}
	limit, overflow := new(uint256.Int).MulOverflow(other, uint256.NewInt(l.cfg.MaxReserveRatio))
	if !overflow && !after.Lt(limit) {
		return nil, fmt.Errorf("ledger: reserve %s vs %s: %w", after.Dec(), other.Dec(), domain.ErrBetTooLarge)
	}

	odds, err := domain.OddsFromReserves(c.Reserves, amount, idx, &c.Margin, &l.cfg.Scale)
	if err != nil {
		return nil, fmt.Errorf("ledger: price condition %d: %w", c.ID, err)
	}
	return odds, nil
}

// checkCoverage rejects a bet whose winnings the condition could not pay.
func (l *Ledger) checkCoverage(c *domain.Condition, idx int, amount, payout *uint256.Int) error {
	net := new(uint256.Int).Sub(payout, amount)
	if !net.Lt(&c.Reserves[1-idx]) {
		return domain.ErrPayoutNotCovered
	}
	backing := new(uint256.Int).Add(&c.Reinforcement, c.TotalStakes())
	backing.Add(backing, amount)
	owed := new(uint256.Int).Add(&c.Payouts[idx], payout)
	if owed.Gt(backing) {
		return domain.ErrPayoutNotCovered
	}
	return nil
}
