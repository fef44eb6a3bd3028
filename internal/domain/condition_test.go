package domain

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestInitialReserves_EqualWeights(t *testing.T) {
	r := uint256.MustFromDecimal("20000000000000000000000")
	got := InitialReserves(r, [2]uint64{10000, 10000})
	assert.Equal(t, "10000000000000000000000", got[0].Dec())
	assert.Equal(t, "10000000000000000000000", got[1].Dec())
}

func TestInitialReserves_HeavierWeightGetsSmallerReserve(t *testing.T) {
	r := uint256.MustFromDecimal("20000000000000000000000")
	got := InitialReserves(r, [2]uint64{19800, 200})
	assert.Equal(t, "200000000000000000000", got[0].Dec())
	assert.Equal(t, "19800000000000000000000", got[1].Dec())
}

func TestInitialReserves_ZeroWeights(t *testing.T) {
	got := InitialReserves(u(1000), [2]uint64{0, 0})
	assert.True(t, got[0].IsZero())
	assert.True(t, got[1].IsZero())
}

func TestCondition_OutcomeIndex(t *testing.T) {
	c := Condition{Outcomes: [2]uint64{7, 9}}

	i, ok := c.OutcomeIndex(9)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = c.OutcomeIndex(8)
	assert.False(t, ok)
}

func TestCondition_Open(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Condition{Deadline: deadline}

	assert.True(t, c.Open(deadline.Add(-time.Second)))
	assert.False(t, c.Open(deadline))

	c.State = ConditionResolved
	assert.False(t, c.Open(deadline.Add(-time.Hour)))
	assert.True(t, c.Decided())
}

func TestWithdrawalRequest_Windows(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req := WithdrawalRequest{Shares: *u(10), RequestedAt: at}
	w, v := 7*24*time.Hour, 14*24*time.Hour

	assert.False(t, req.Eligible(at.Add(w-time.Second), w, v))
	assert.True(t, req.Eligible(at.Add(w), w, v))
	assert.True(t, req.Eligible(at.Add(w+v-time.Second), w, v))
	assert.False(t, req.Eligible(at.Add(w+v), w, v))
	assert.True(t, req.Expired(at.Add(w+v), w, v))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategorySettlement, CategoryOf(ErrNoWinNoPrize))
	assert.Equal(t, Category(""), CategoryOf(assert.AnError))
}
