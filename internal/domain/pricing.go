package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Fixed-point odds pricing.
//
// All values are unsigned integers at a caller-chosen scale (1 unit = scale).
// Odds of 1.9 at scale 1e9 are 1_900_000_000. Every division floors.
//
// Inputs are bounded so that no intermediate product can leave 256 bits:
// scale up to 1e18, reserves and stakes below 2^128.

var (
	maxScale  = uint256.NewInt(1_000_000_000_000_000_000)
	maxAmount = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	one     = uint256.NewInt(1)
	two     = uint256.NewInt(2)
	four    = uint256.NewInt(4)
	hundred = uint256.NewInt(100)
)

// ApplyMargin converts fair odds into the house-edged odds offered to a
// bettor. The edge follows a quadratic curve in the implied probability, so
// the reduction is larger for long shots than for favourites.
//
// A zero margin, or fair odds at or below 1×, returns fairOdds unchanged.
// The result strictly decreases as margin grows.
func ApplyMargin(fairOdds, margin, scale *uint256.Int) (*uint256.Int, error) {
	if err := checkScale(scale); err != nil {
		return nil, err
	}
	if !margin.Lt(scale) {
		return nil, fmt.Errorf("domain.ApplyMargin: margin %s >= scale: %w", margin.Dec(), ErrPricingDomain)
	}
	if margin.IsZero() || !fairOdds.Gt(scale) {
		return fairOdds.Clone(), nil
	}
	if !fairOdds.Lt(maxAmount) {
		return nil, fmt.Errorf("domain.ApplyMargin: odds %s: %w", fairOdds.Dec(), ErrPricingDomain)
	}

	d := scale
	sq := new(uint256.Int).Mul(d, d)

	// Odds of the opposite side implied by fairOdds.
	implied := new(uint256.Int).Div(sq, fairOdds)
	reverse := new(uint256.Int).Div(sq, new(uint256.Int).Sub(d, implied))

	oddsEdge := new(uint256.Int).Sub(fairOdds, d)
	reverseEdge := new(uint256.Int).Sub(reverse, d)
	if reverseEdge.IsZero() {
		return nil, fmt.Errorf("domain.ApplyMargin: odds %s too long to price: %w", fairOdds.Dec(), ErrPricingDomain)
	}

	// a·x² + b·x − c = 0, solved for the edged excess over 1×.
	me := new(uint256.Int).Add(d, margin)
	a := new(uint256.Int).Mul(me, reverseEdge)
	a.Div(a, oddsEdge)
	if a.IsZero() {
		return nil, fmt.Errorf("domain.ApplyMargin: odds %s too long to price: %w", fairOdds.Dec(), ErrPricingDomain)
	}

	b := new(uint256.Int).Mul(reverseEdge, d)
	b.Div(b, oddsEdge)
	b.Mul(b, margin)
	b.Add(b, new(uint256.Int).Mul(d, margin))
	b.Div(b, d)

	c := new(uint256.Int).Mul(two, d)
	c.Sub(c, me)

	disc := new(uint256.Int).Mul(b, b)
	disc.Add(disc, new(uint256.Int).Mul(new(uint256.Int).Mul(four, a), c))
	root := new(uint256.Int).Sqrt(disc)

	out := root.Sub(root, b)
	out.Mul(out, d)
	out.Div(out, new(uint256.Int).Mul(two, a))
	return out.Add(out, d), nil
}

// PriceFromReserves prices a stake on the outcome backed by reserveFor
// against the opposing reserveAgainst.
//
// The stake is measured in steps of 1% of reserveFor. A stake within the
// first step is priced at the current implied probability. Larger stakes are
// priced at a blend of the probabilities before and after the stake joins the
// reserve, which pulls the odds toward 1× as the stake grows.
func PriceFromReserves(reserveFor, reserveAgainst, stake, margin, scale *uint256.Int) (*uint256.Int, error) {
	if err := checkScale(scale); err != nil {
		return nil, err
	}
	if !reserveFor.Lt(maxAmount) || !reserveAgainst.Lt(maxAmount) || !stake.Lt(maxAmount) {
		return nil, fmt.Errorf("domain.PriceFromReserves: amount above 2^128: %w", ErrPricingDomain)
	}
	step := new(uint256.Int).Div(reserveFor, hundred)
	if step.IsZero() {
		return nil, fmt.Errorf("domain.PriceFromReserves: reserve %s below 100: %w", reserveFor.Dec(), ErrPricingDomain)
	}

	d := scale
	total := new(uint256.Int).Add(reserveFor, reserveAgainst)

	// Probabilities of the backed outcome before and after the stake.
	before := new(uint256.Int).Mul(reserveFor, d)
	before.Div(before, total)
	if before.IsZero() {
		return nil, fmt.Errorf("domain.PriceFromReserves: zero implied probability: %w", ErrPricingDomain)
	}
	after := new(uint256.Int).Add(reserveFor, stake)
	after.Mul(after, d)
	after.Div(after, new(uint256.Int).Add(total, stake))

	steps := stepCount(stake, step, d)
	if steps.Eq(one) {
		fair := new(uint256.Int).Mul(d, d)
		return ApplyMargin(fair.Div(fair, before), margin, scale)
	}

	// Weighted probability: (after·n + 2·before − 2·after) / n.
	blend := new(uint256.Int).Mul(after, steps)
	blend.Add(blend, new(uint256.Int).Mul(before, two))
	blend.Sub(blend, new(uint256.Int).Mul(after, two))
	blend.Mul(blend, d)
	blend.Div(blend, steps)
	if blend.IsZero() {
		return nil, fmt.Errorf("domain.PriceFromReserves: zero blended probability: %w", ErrPricingDomain)
	}

	fair := new(uint256.Int).Mul(d, d)
	fair.Mul(fair, d)
	return ApplyMargin(fair.Div(fair, blend), margin, scale)
}

// OddsFromReserves prices a stake on the outcome at index (0 or 1) of a
// condition's reserve pair.
func OddsFromReserves(reserves [2]uint256.Int, stake *uint256.Int, index int, margin, scale *uint256.Int) (*uint256.Int, error) {
	if index != 0 && index != 1 {
		return nil, fmt.Errorf("domain.OddsFromReserves: index %d: %w", index, ErrInvalidOutcome)
	}
	return PriceFromReserves(&reserves[index], &reserves[1-index], stake, margin, scale)
}

// stepCount returns how many 1% steps of the backing reserve the stake spans,
// rounded up, and never less than one.
func stepCount(stake, step, d *uint256.Int) *uint256.Int {
	ratio := new(uint256.Int).Mul(stake, d)
	ratio.Div(ratio, step)
	if ratio.Lt(d) {
		return uint256.NewInt(1)
	}
	n := new(uint256.Int).Add(ratio, d)
	n.Sub(n, one)
	return n.Div(n, d)
}

func checkScale(scale *uint256.Int) error {
	if scale.IsZero() || scale.Gt(maxScale) {
		return fmt.Errorf("domain: scale %s outside (0, 1e18]: %w", scale.Dec(), ErrPricingDomain)
	}
	return nil
}
