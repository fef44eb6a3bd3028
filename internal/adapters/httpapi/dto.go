package httpapi

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/oddspool/internal/application/pool"
	"github.com/alejandrodnm/oddspool/internal/domain"
)

// Amounts, odds and shares travel as base-10 strings of the raw fixed-point
// integer, so no precision is lost in JSON.

type createConditionRequest struct {
	ID       uint64      `json:"id"`
	Weights  [2]uint64   `json:"weights"`
	Outcomes [2]uint64   `json:"outcomes"`
	Deadline time.Time   `json:"deadline"`
	Metadata common.Hash `json:"metadata"`
}

type resolveRequest struct {
	Outcome uint64 `json:"outcome"`
}

type betRequest struct {
	ConditionID   uint64         `json:"condition_id"`
	Amount        string         `json:"amount"`
	Outcome       uint64         `json:"outcome"`
	DeadlineLimit time.Time      `json:"deadline_limit"`
	MinOdds       string         `json:"min_odds"`
	Affiliate     common.Address `json:"affiliate"`
}

type amountBody struct {
	Amount string `json:"amount"`
}

type sharesBody struct {
	Shares string `json:"shares"`
}

type transferRequest struct {
	To common.Address `json:"to"`
}

type roleRequest struct {
	Account common.Address `json:"account"`
	Grant   bool           `json:"grant"`
}

type conditionResponse struct {
	ID             uint64      `json:"id"`
	State          string      `json:"state"`
	Outcomes       [2]uint64   `json:"outcomes"`
	Reserves       [2]string   `json:"reserves"`
	Stakes         [2]string   `json:"stakes"`
	Payouts        [2]string   `json:"payouts"`
	Reinforcement  string      `json:"reinforcement"`
	Margin         string      `json:"margin"`
	Deadline       time.Time   `json:"deadline"`
	Metadata       common.Hash `json:"metadata"`
	WinningOutcome uint64      `json:"winning_outcome,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

func toConditionResponse(c domain.Condition) conditionResponse {
	return conditionResponse{
		ID:             c.ID,
		State:          c.State.String(),
		Outcomes:       c.Outcomes,
		Reserves:       pair(c.Reserves),
		Stakes:         pair(c.Stakes),
		Payouts:        pair(c.Payouts),
		Reinforcement:  c.Reinforcement.Dec(),
		Margin:         c.Margin.Dec(),
		Deadline:       c.Deadline,
		Metadata:       c.Metadata,
		WinningOutcome: c.WinningOutcome,
		CreatedAt:      c.CreatedAt,
	}
}

type betResponse struct {
	ID          uint64         `json:"id"`
	ConditionID uint64         `json:"condition_id"`
	Outcome     uint64         `json:"outcome"`
	Amount      string         `json:"amount"`
	Odds        string         `json:"odds"`
	Settled     bool           `json:"settled"`
	Affiliate   common.Address `json:"affiliate"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toBetResponse(b domain.Bet) betResponse {
	return betResponse{
		ID:          b.ID,
		ConditionID: b.ConditionID,
		Outcome:     b.Outcome,
		Amount:      b.Amount.Dec(),
		Odds:        b.Odds.Dec(),
		Settled:     b.Settled,
		Affiliate:   b.Affiliate,
		CreatedAt:   b.CreatedAt,
	}
}

type quoteResponse struct {
	ConditionID uint64 `json:"condition_id"`
	Outcome     uint64 `json:"outcome"`
	Amount      string `json:"amount"`
	Odds        string `json:"odds"`
	Payout      string `json:"payout"`
}

type payoutResponse struct {
	Win     bool   `json:"win"`
	Amount  string `json:"amount"`
	Pending string `json:"pending,omitempty"` // transfer still unconfirmed
}

type withdrawalResponse struct {
	Amount  string `json:"amount"`
	Pending string `json:"pending,omitempty"`
}

type pendingTransferResponse struct {
	Ref         string         `json:"ref"`
	Kind        string         `json:"kind"`
	Account     common.Address `json:"account"`
	Amount      string         `json:"amount"`
	BetID       uint64         `json:"bet_id,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

func toPendingTransferResponse(t domain.PendingTransfer) pendingTransferResponse {
	return pendingTransferResponse{
		Ref:         t.Ref,
		Kind:        string(t.Kind),
		Account:     t.Account,
		Amount:      t.Amount.Dec(),
		BetID:       t.BetID,
		SubmittedAt: t.SubmittedAt,
	}
}

type requestResponse struct {
	Shares      string    `json:"shares"`
	RequestedAt time.Time `json:"requested_at"`
	MaturesAt   time.Time `json:"matures_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toRequestResponse(r domain.WithdrawalRequest, cfg pool.Config) requestResponse {
	return requestResponse{
		Shares:      r.Shares.Dec(),
		RequestedAt: r.RequestedAt,
		MaturesAt:   r.MaturesAt(cfg.MaturityWindow),
		ExpiresAt:   r.ExpiresAt(cfg.MaturityWindow, cfg.ValidityWindow),
	}
}

type accountResponse struct {
	Account  common.Address    `json:"account"`
	Shares   string            `json:"shares"`
	Requests []requestResponse `json:"requests"`
}

type snapshotResponse struct {
	Liquidity      string `json:"liquidity"`
	Locked         string `json:"locked"`
	Free           string `json:"free"`
	Escrow         string `json:"escrow"`
	PayoutReserve  string `json:"payout_reserve"`
	TotalShares    string `json:"total_shares"`
	OpenConditions int    `json:"open_conditions"`
	Depositors     int    `json:"depositors"`
}

func toSnapshotResponse(s pool.Snapshot) snapshotResponse {
	return snapshotResponse{
		Liquidity:      s.Liquidity.Dec(),
		Locked:         s.Locked.Dec(),
		Free:           s.Free.Dec(),
		Escrow:         s.Escrow.Dec(),
		PayoutReserve:  s.PayoutReserve.Dec(),
		TotalShares:    s.TotalShares.Dec(),
		OpenConditions: s.OpenConditions,
		Depositors:     s.Depositors,
	}
}

type eventResponse struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	At          time.Time      `json:"at"`
	Account     common.Address `json:"account"`
	ConditionID uint64         `json:"condition_id,omitempty"`
	BetID       uint64         `json:"bet_id,omitempty"`
	Outcome     uint64         `json:"outcome,omitempty"`
	Amount      string         `json:"amount,omitempty"`
	Odds        string         `json:"odds,omitempty"`
	Shares      string         `json:"shares,omitempty"`
}

func toEventResponse(ev domain.Event) eventResponse {
	return eventResponse{
		ID:          ev.ID.String(),
		Kind:        string(ev.Kind),
		At:          ev.At,
		Account:     ev.Account,
		ConditionID: ev.ConditionID,
		BetID:       ev.BetID,
		Outcome:     ev.Outcome,
		Amount:      decOrEmpty(&ev.Amount),
		Odds:        decOrEmpty(&ev.Odds),
		Shares:      decOrEmpty(&ev.Shares),
	}
}

func pair(v [2]uint256.Int) [2]string {
	return [2]string{v[0].Dec(), v[1].Dec()}
}

func decOrEmpty(v *uint256.Int) string {
	if v.IsZero() {
		return ""
	}
	return v.Dec()
}

// parseAmount reads a base-10 integer. An empty string is zero when
// optional is set and an error otherwise.
func parseAmount(field, s string, optional bool) (*uint256.Int, error) {
	if s == "" {
		if optional {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("%s is required", field)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
