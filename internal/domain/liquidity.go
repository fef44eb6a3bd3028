package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// WithdrawalRequest is a depositor's intent to redeem Shares, registered at
// RequestedAt. It becomes eligible once the maturity window has elapsed and
// stays eligible for the validity window after that.
type WithdrawalRequest struct {
	Shares      uint256.Int
	RequestedAt time.Time
}

// MaturesAt is the first instant the request can be honored.
func (r WithdrawalRequest) MaturesAt(maturity time.Duration) time.Time {
	return r.RequestedAt.Add(maturity)
}

// ExpiresAt is the first instant the request can no longer be honored.
func (r WithdrawalRequest) ExpiresAt(maturity, validity time.Duration) time.Time {
	return r.RequestedAt.Add(maturity + validity)
}

// Eligible reports whether the request can be honored at now.
func (r WithdrawalRequest) Eligible(now time.Time, maturity, validity time.Duration) bool {
	return !now.Before(r.MaturesAt(maturity)) && now.Before(r.ExpiresAt(maturity, validity))
}

// Expired reports whether the request lapsed without being used.
func (r WithdrawalRequest) Expired(now time.Time, maturity, validity time.Duration) bool {
	return !now.Before(r.ExpiresAt(maturity, validity))
}

// SumShares adds up the shares of the given requests.
func SumShares(reqs []WithdrawalRequest) *uint256.Int {
	total := new(uint256.Int)
	for i := range reqs {
		total.Add(total, &reqs[i].Shares)
	}
	return total
}
