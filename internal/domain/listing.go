package domain

import "time"

// TokenID identifies a single token in the external asset registry.
type TokenID uint64

// USDCents is a fixed-point fiat amount in hundredths of a US dollar.
// All decay-curve arithmetic is integer arithmetic on this unit.
type USDCents int64

// Listing binds a token to its price-decay curve. The ask price decays
// linearly from CeilingCents toward FloorCents over one year, anchored at
// ListedAt. A token without a Listing is simply "not listed"; stores report
// that as ErrNotListed rather than returning a zero record.
type Listing struct {
	TokenID      TokenID
	FloorCents   USDCents
	CeilingCents USDCents
	ListedAt     time.Time
}
