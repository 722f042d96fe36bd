package domain

import (
	"context"
	"math/big"
	"time"
)

// ListingStore persists listings. Get and Delete return ErrNotListed for an
// absent token; Create returns ErrAlreadyListed for a present one. The
// store's presence semantics are the registry's "listed" flag: there is no
// zero-value listing, only a listing or ErrNotListed.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	Update(ctx context.Context, l Listing) error
	Get(ctx context.Context, id TokenID) (Listing, error)
	Delete(ctx context.Context, id TokenID) error
	List(ctx context.Context) ([]Listing, error)
}

// PurchaseStore persists the append-only purchase history.
type PurchaseStore interface {
	Insert(ctx context.Context, p Purchase) error
	ListRecent(ctx context.Context, limit int) ([]Purchase, error)
	ListBefore(ctx context.Context, before time.Time) ([]Purchase, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// StateStore persists the singleton market state: the minimum settlement
// price and the accrued contract balance awaiting withdrawal. Amounts are
// wei-denominated big integers; implementations must never hand out aliased
// *big.Int values.
type StateStore interface {
	MinimumPrice(ctx context.Context) (*big.Int, error)
	SetMinimumPrice(ctx context.Context, wei *big.Int) error
	Balance(ctx context.Context) (*big.Int, error)

	// AddBalance adjusts the accrued balance by delta, which may be
	// negative. It returns ErrInsufficientBalance if the result would drop
	// below zero.
	AddBalance(ctx context.Context, delta *big.Int) error
}
