// Package pricing implements the decay-curve pricing engine. It is pure:
// every function maps (listing, clock, oracle rate) to a price and touches
// no state of its own.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/collect9/c9market/internal/domain"
)

const (
	// Year is the decay window in seconds. A listing's ask price slides
	// from the ceiling toward the floor over this window.
	Year int64 = 31_536_000

	// Day is the grace buffer folded into the adjuster: the curve holds at
	// the ceiling for roughly one day before decaying.
	Day int64 = 86_400

	// MaxRateAge is the oracle staleness bound. A rate observed longer ago
	// than this fails every settlement conversion.
	MaxRateAge = time.Hour
)

// centsTo18 scales USD cents (2 decimals) to 18-decimal fixed point.
var centsTo18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FiatPrice returns the decayed ask price of a listing at the given instant,
// in USD cents, clamped into [floor, ceiling].
//
// The curve is the scaled-adjuster form, evaluated in this exact order with
// truncating integer division:
//
//	adjuster = (Year - elapsed + Day) * 50 / Year + 50
//	raw      = ceiling * adjuster / 100
//
// The adjuster is 100 at zero elapsed, reaches 50 at one year, and keeps
// falling monotonically afterwards; the clamp, not the raw formula, is what
// enforces the floor and ceiling.
func FiatPrice(l domain.Listing, now time.Time) (domain.USDCents, error) {
	elapsed := now.Unix() - l.ListedAt.Unix()
	if elapsed < 0 {
		// Listing origin in the future: treat as freshly listed.
		elapsed = 0
	}

	adjuster := (Year-elapsed+Day)*50/Year + 50

	ceiling := int64(l.CeilingCents)
	if ceiling != 0 && absInt64(adjuster) > math.MaxInt64/ceiling {
		return 0, fmt.Errorf("pricing: ceiling %d x adjuster %d: %w",
			ceiling, adjuster, domain.ErrOverflow)
	}
	raw := ceiling * adjuster / 100

	// Clamp. The raw value can overshoot in both directions: above the
	// ceiling inside the day buffer, below the floor past one year.
	if raw > ceiling {
		raw = ceiling
	}
	if raw < int64(l.FloorCents) {
		raw = int64(l.FloorCents)
	}
	return domain.USDCents(raw), nil
}

// Settlement converts a fiat price into the settlement currency's smallest
// unit (wei) at the given oracle rate. It fails with ErrStaleRate when the
// observation is older than MaxRateAge at the given instant.
//
// Both operands are scaled to 18 decimals before dividing so no precision is
// lost to intermediate truncation:
//
//	wei = fiat_1e18 * 1e18 / rate_1e18
func Settlement(cents domain.USDCents, rate domain.Rate, now time.Time) (*big.Int, error) {
	if age := now.Sub(rate.UpdatedAt); age > MaxRateAge {
		return nil, fmt.Errorf("pricing: rate age %s exceeds %s: %w",
			age, MaxRateAge, domain.ErrStaleRate)
	}
	if rate.Answer == nil || rate.Answer.Sign() <= 0 {
		return nil, errors.New("pricing: oracle rate is not positive")
	}

	fiat18 := new(big.Int).SetInt64(int64(cents))
	fiat18.Mul(fiat18, centsTo18)

	rate18 := scaleTo18(rate.Answer, rate.Decimals)
	if rate18.Sign() <= 0 {
		return nil, errors.New("pricing: oracle rate truncated to zero")
	}

	wei := new(big.Int).Mul(fiat18, wad)
	return wei.Quo(wei, rate18), nil
}

// MakeQuote runs both stages for a listing and assembles the result.
func MakeQuote(l domain.Listing, rate domain.Rate, now time.Time) (domain.Quote, error) {
	cents, err := FiatPrice(l, now)
	if err != nil {
		return domain.Quote{}, err
	}
	wei, err := Settlement(cents, rate, now)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		TokenID:       l.TokenID,
		FiatCents:     cents,
		SettlementWei: wei,
		RateUpdatedAt: rate.UpdatedAt,
		QuotedAt:      now,
	}, nil
}

// scaleTo18 normalizes a raw oracle answer with the given decimal count to
// 18-decimal fixed point.
func scaleTo18(answer *big.Int, decimals uint8) *big.Int {
	out := new(big.Int).Set(answer)
	switch {
	case decimals < 18:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		out.Mul(out, exp)
	case decimals > 18:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
		out.Quo(out, exp)
	}
	return out
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
