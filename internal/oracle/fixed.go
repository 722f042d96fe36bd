package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// FixedRate is a development oracle that reports a constant rate with a
// freshly stamped observation time, so quotes never go stale.
type FixedRate struct {
	mu       sync.RWMutex
	answer   *big.Int
	decimals uint8
	now      func() time.Time
}

// NewFixedRate creates a FixedRate oracle. answer is the fiat price of one
// whole settlement token scaled by decimals (e.g. 250000000000, 8 for
// $2,500.00).
func NewFixedRate(answer *big.Int, decimals uint8) *FixedRate {
	return &FixedRate{
		answer:   new(big.Int).Set(answer),
		decimals: decimals,
		now:      time.Now,
	}
}

// LatestRate returns the fixed rate stamped at the current instant.
func (f *FixedRate) LatestRate(_ context.Context) (domain.Rate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return domain.Rate{
		Answer:    new(big.Int).Set(f.answer),
		Decimals:  f.decimals,
		UpdatedAt: f.now(),
	}, nil
}

// SetSource always fails: a fixed oracle has no upstream feed to repoint.
func (f *FixedRate) SetSource(common.Address) error {
	return fmt.Errorf("oracle: fixed-rate oracle has no source")
}

var _ domain.RateOracle = (*FixedRate)(nil)
