package domain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var scale = uint256.NewInt(1_000_000_000)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// --- ApplyMargin ---

func TestApplyMargin_Vectors(t *testing.T) {
	cases := []struct {
		odds, margin, want uint64
	}{
		{1_730_000_000, 50_000_000, 1_658_829_423},
		{1_980_000_000, 50_000_000, 1_886_657_619},
		{1_980_000_000, 100_000_000, 1_801_801_818},
	}
	for _, tc := range cases {
		got, err := ApplyMargin(u(tc.odds), u(tc.margin), scale)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Uint64(), "odds=%d margin=%d", tc.odds, tc.margin)
	}
}

func TestApplyMargin_ZeroMarginKeepsOdds(t *testing.T) {
	got, err := ApplyMargin(u(1_730_000_000), u(0), scale)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_730_000_000), got.Uint64())
}

func TestApplyMargin_OddsAtOrBelowOne(t *testing.T) {
	got, err := ApplyMargin(u(1_000_000_000), u(50_000_000), scale)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), got.Uint64())
}

func TestApplyMargin_MarginAtScaleRejected(t *testing.T) {
	_, err := ApplyMargin(u(1_730_000_000), u(1_000_000_000), scale)
	assert.ErrorIs(t, err, ErrPricingDomain)
	assert.Equal(t, CategoryPricing, CategoryOf(err))
}

func TestApplyMargin_ZeroScaleRejected(t *testing.T) {
	_, err := ApplyMargin(u(1_730_000_000), u(1), u(0))
	assert.ErrorIs(t, err, ErrPricingDomain)
}

// --- PriceFromReserves ---

func TestPriceFromReserves_Vectors(t *testing.T) {
	cases := []struct {
		name              string
		reserveFor, other uint64
		stake             uint64
		want              uint64
	}{
		{"uneven reserves", 1_500_000_000, 3_000_000_000, 100_000, 2_787_053_105},
		{"even reserves small stake", 50_000_000, 50_000_000, 100_000, 1_904_761_904},
		{"even reserves large stake", 50_000_000, 50_000_000, 25_000_000, 1_610_952_313},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PriceFromReserves(u(tc.reserveFor), u(tc.other), u(tc.stake), u(50_000_000), scale)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Uint64())
		})
	}
}

func TestPriceFromReserves_TinyReserveRejected(t *testing.T) {
	_, err := PriceFromReserves(u(99), u(1_000), u(10), u(50_000_000), scale)
	assert.ErrorIs(t, err, ErrPricingDomain)
}

func TestPriceFromReserves_HugeStakeRejected(t *testing.T) {
	huge := new(uint256.Int).Lsh(u(1), 130)
	_, err := PriceFromReserves(u(1_000_000), u(1_000_000), huge, u(50_000_000), scale)
	assert.ErrorIs(t, err, ErrPricingDomain)
}

// --- OddsFromReserves ---

func TestOddsFromReserves_IndexSelectsSide(t *testing.T) {
	reserves := [2]uint256.Int{*u(1_500_000_000), *u(3_000_000_000)}

	first, err := OddsFromReserves(reserves, u(100_000), 0, u(50_000_000), scale)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_787_053_105), first.Uint64())

	swapped := [2]uint256.Int{*u(3_000_000_000), *u(1_500_000_000)}
	second, err := OddsFromReserves(swapped, u(100_000), 1, u(50_000_000), scale)
	require.NoError(t, err)
	assert.Equal(t, first.Uint64(), second.Uint64())
}

func TestOddsFromReserves_BadIndex(t *testing.T) {
	var reserves [2]uint256.Int
	_, err := OddsFromReserves(reserves, u(1), 2, u(0), scale)
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

// --- properties ---

func drawReserves(t *rapid.T) (uint64, uint64) {
	r0 := rapid.Uint64Range(10_000, 1_000_000_000_000_000).Draw(t, "r0")
	lo := max(r0/100, 10_000)
	r1 := rapid.Uint64Range(lo, r0*100).Draw(t, "r1")
	return r0, r1
}

func TestProperty_MarginDecreasesOdds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fair := rapid.Uint64Range(1_050_000_000, 20_000_000_000).Draw(t, "fair")
		m1 := rapid.Uint64Range(0, 100_000_000).Draw(t, "m1")
		m2 := m1 + rapid.Uint64Range(1_000_000, 100_000_000).Draw(t, "dm")

		low, err := ApplyMargin(u(fair), u(m1), scale)
		require.NoError(t, err)
		high, err := ApplyMargin(u(fair), u(m2), scale)
		require.NoError(t, err)

		if !high.Lt(low) {
			t.Fatalf("margin %d gave %s, margin %d gave %s", m1, low.Dec(), m2, high.Dec())
		}
	})
}

func TestProperty_LargerStakeNeverImprovesOdds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r0, r1 := drawReserves(t)
		s1 := rapid.Uint64Range(1, 1_000_000_000_000_000).Draw(t, "s1")
		s2 := s1 + rapid.Uint64Range(0, 1_000_000_000_000_000).Draw(t, "ds")

		small, err := PriceFromReserves(u(r0), u(r1), u(s1), u(50_000_000), scale)
		require.NoError(t, err)
		large, err := PriceFromReserves(u(r0), u(r1), u(s2), u(50_000_000), scale)
		require.NoError(t, err)

		if large.Gt(small) {
			t.Fatalf("stake %d priced %s, stake %d priced %s", s1, small.Dec(), s2, large.Dec())
		}
	})
}

func TestProperty_SmallerReserveGetsLongerOdds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r0, r1 := drawReserves(t)
		if r0 == r1 {
			t.Skip("equal reserves")
		}
		reserves := [2]uint256.Int{*u(r0), *u(r1)}

		o0, err := OddsFromReserves(reserves, u(1), 0, u(50_000_000), scale)
		require.NoError(t, err)
		o1, err := OddsFromReserves(reserves, u(1), 1, u(50_000_000), scale)
		require.NoError(t, err)

		if (r0 < r1) != o0.Gt(o1) {
			t.Fatalf("reserves %d/%d priced %s/%s", r0, r1, o0.Dec(), o1.Dec())
		}
	})
}
