package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ConditionState is the lifecycle stage of a condition. Created is the only
// non-terminal state.
type ConditionState int

const (
	ConditionCreated ConditionState = iota
	ConditionResolved
	ConditionCanceled
)

func (s ConditionState) String() string {
	switch s {
	case ConditionCreated:
		return "created"
	case ConditionResolved:
		return "resolved"
	case ConditionCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Condition is a binary-outcome event with a deadline, backed by a
// reinforcement locked from the liquidity pool.
//
// Reserves[i] is the pool's committed exposure to outcome i. Stakes and
// Payouts accumulate per outcome: Payouts[i] is what the pool owes if
// outcome i wins.
type Condition struct {
	ID             uint64
	Outcomes       [2]uint64
	Reserves       [2]uint256.Int
	Stakes         [2]uint256.Int
	Payouts        [2]uint256.Int
	Reinforcement  uint256.Int
	Margin         uint256.Int
	Deadline       time.Time
	Metadata       common.Hash
	State          ConditionState
	WinningOutcome uint64
	CreatedAt      time.Time
}

// OutcomeIndex returns the slot (0 or 1) of outcome.
func (c *Condition) OutcomeIndex(outcome uint64) (int, bool) {
	switch outcome {
	case c.Outcomes[0]:
		return 0, true
	case c.Outcomes[1]:
		return 1, true
	}
	return -1, false
}

// TotalStakes is the sum of accepted stakes on both outcomes.
func (c *Condition) TotalStakes() *uint256.Int {
	return new(uint256.Int).Add(&c.Stakes[0], &c.Stakes[1])
}

// Open reports whether the condition still accepts bets at now.
func (c *Condition) Open(now time.Time) bool {
	return c.State == ConditionCreated && now.Before(c.Deadline)
}

// Decided reports whether the condition reached a terminal state.
func (c *Condition) Decided() bool {
	return c.State != ConditionCreated
}

// InitialReserves splits reinforcement across the two outcomes by weight.
// The reserve of each outcome is proportional to the weight of the other, so
// a larger weight yields larger starting odds for that outcome.
func InitialReserves(reinforcement *uint256.Int, weights [2]uint64) [2]uint256.Int {
	var out [2]uint256.Int
	sum := new(uint256.Int).Add(uint256.NewInt(weights[0]), uint256.NewInt(weights[1]))
	if sum.IsZero() {
		return out
	}
	out[0].Mul(reinforcement, uint256.NewInt(weights[1]))
	out[0].Div(&out[0], sum)
	out[1].Mul(reinforcement, uint256.NewInt(weights[0]))
	out[1].Div(&out[1], sum)
	return out
}
