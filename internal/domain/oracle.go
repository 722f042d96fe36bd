package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Rate is one exchange-rate observation: how many fiat units (scaled by
// Decimals) one whole settlement token is worth, and when the feed last
// updated. Callers must reject observations older than their staleness bound.
type Rate struct {
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// RateOracle supplies the fiat / settlement-currency exchange rate.
type RateOracle interface {
	// LatestRate returns the most recent rate observation.
	LatestRate(ctx context.Context) (Rate, error)

	// SetSource repoints the oracle at a different upstream feed. Oracles
	// with a fixed rate return an error.
	SetSource(addr common.Address) error
}
