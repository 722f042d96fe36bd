package pricing

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collect9/c9market/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func listing(floor, ceiling int64) domain.Listing {
	return domain.Listing{
		TokenID:      7,
		FloorCents:   domain.USDCents(floor),
		CeilingCents: domain.USDCents(ceiling),
		ListedAt:     t0,
	}
}

func TestFiatPriceAtListingIsCeiling(t *testing.T) {
	p, err := FiatPrice(listing(50_000, 100_000), t0)
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(100_000), p)
}

func TestFiatPriceHoldsCeilingThroughGraceDay(t *testing.T) {
	l := listing(50_000, 100_000)

	p, err := FiatPrice(l, t0.Add(time.Duration(Day)*time.Second))
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(100_000), p)
}

func TestFiatPriceDecaySteps(t *testing.T) {
	l := listing(10_000, 100_000)

	testcases := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{"two days in, first adjuster step", 2 * 24 * time.Hour, 99_000},
		{"half a year", time.Duration(Year/2) * time.Second, 75_000},
		{"one year lands on half the ceiling", time.Duration(Year) * time.Second, 50_000},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := FiatPrice(l, t0.Add(tc.elapsed))
			require.NoError(t, err)
			require.Equal(t, domain.USDCents(tc.want), p)
		})
	}
}

func TestFiatPriceClampsToFloorFarPastTheWindow(t *testing.T) {
	l := listing(60_000, 100_000)

	// One year in, the raw curve is at 50% of the ceiling, below this floor.
	p, err := FiatPrice(l, t0.Add(time.Duration(Year)*time.Second))
	require.NoError(t, err)
	require.Equal(t, l.FloorCents, p)

	// A century later the raw value is deeply negative; still the floor.
	p, err = FiatPrice(l, t0.Add(100*time.Duration(Year)*time.Second))
	require.NoError(t, err)
	require.Equal(t, l.FloorCents, p)
}

func TestFiatPriceMonotoneNonIncreasing(t *testing.T) {
	l := listing(5_000, 250_000)

	prev := domain.USDCents(math.MaxInt64)
	for d := int64(0); d <= 2*Year; d += Day / 2 {
		p, err := FiatPrice(l, t0.Add(time.Duration(d)*time.Second))
		require.NoError(t, err)
		require.LessOrEqual(t, p, prev, "price rose at elapsed %ds", d)
		prev = p
	}
}

func TestFiatPriceFutureOriginTreatedAsFresh(t *testing.T) {
	l := listing(50_000, 100_000)

	p, err := FiatPrice(l, t0.Add(-48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, l.CeilingCents, p)
}

func TestFiatPriceOverflowGuard(t *testing.T) {
	l := listing(1, math.MaxInt64/10)

	_, err := FiatPrice(l, t0)
	require.ErrorIs(t, err, domain.ErrOverflow)
}

func rate8(answer int64, at time.Time) domain.Rate {
	return domain.Rate{
		Answer:    big.NewInt(answer),
		Decimals:  8,
		UpdatedAt: at,
	}
}

func TestSettlementExactConversion(t *testing.T) {
	// $2000.00 at $2000/unit is exactly one unit of the settlement currency.
	wei, err := Settlement(200_000, rate8(2000_00000000, t0), t0)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", wei.String())
}

func TestSettlementNoIntermediateTruncation(t *testing.T) {
	// $123.45 at $3000/unit: 0.04115 units, exact at 18 decimals.
	wei, err := Settlement(12_345, rate8(3000_00000000, t0), t0)
	require.NoError(t, err)
	require.Equal(t, "41150000000000000", wei.String())
}

func TestSettlementHandles18DecimalFeeds(t *testing.T) {
	answer, ok := new(big.Int).SetString("2000000000000000000000", 10) // 2000 at 1e18
	require.True(t, ok)

	wei, err := Settlement(200_000, domain.Rate{Answer: answer, Decimals: 18, UpdatedAt: t0}, t0)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", wei.String())
}

func TestSettlementStaleRate(t *testing.T) {
	stale := rate8(2000_00000000, t0.Add(-MaxRateAge-time.Second))

	_, err := Settlement(200_000, stale, t0)
	require.ErrorIs(t, err, domain.ErrStaleRate)

	// Exactly at the bound is still acceptable.
	_, err = Settlement(200_000, rate8(2000_00000000, t0.Add(-MaxRateAge)), t0)
	require.NoError(t, err)
}

func TestSettlementRejectsNonPositiveRate(t *testing.T) {
	_, err := Settlement(200_000, rate8(0, t0), t0)
	require.Error(t, err)

	_, err = Settlement(200_000, domain.Rate{Answer: nil, Decimals: 8, UpdatedAt: t0}, t0)
	require.Error(t, err)
}

func TestMakeQuote(t *testing.T) {
	l := listing(50_000, 100_000)
	q, err := MakeQuote(l, rate8(2000_00000000, t0), t0)
	require.NoError(t, err)
	require.Equal(t, l.TokenID, q.TokenID)
	require.Equal(t, domain.USDCents(100_000), q.FiatCents)
	require.Equal(t, "500000000000000000", q.SettlementWei.String())
	require.Equal(t, t0, q.QuotedAt)
}
