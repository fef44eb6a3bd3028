package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EventKind names an observable state transition.
type EventKind string

const (
	EventConditionCreated   EventKind = "condition_created"
	EventConditionResolved  EventKind = "condition_resolved"
	EventConditionCanceled  EventKind = "condition_canceled"
	EventBetPlaced          EventKind = "bet_placed"
	EventPayoutWithdrawn    EventKind = "payout_withdrawn"
	EventLiquidityAdded     EventKind = "liquidity_added"
	EventLiquidityRequested EventKind = "liquidity_requested"
	EventLiquidityWithdrawn EventKind = "liquidity_withdrawn"
)

// Event records one committed transition. Fields that do not apply to a
// kind are left zero.
type Event struct {
	ID          uuid.UUID
	Kind        EventKind
	At          time.Time
	Account     common.Address
	ConditionID uint64
	BetID       uint64
	Outcome     uint64
	Amount      uint256.Int
	Odds        uint256.Int
	Shares      uint256.Int
}

// NewEvent stamps a fresh event of the given kind.
func NewEvent(kind EventKind, at time.Time, account common.Address) Event {
	return Event{
		ID:      uuid.New(),
		Kind:    kind,
		At:      at.UTC(),
		Account: account,
	}
}
