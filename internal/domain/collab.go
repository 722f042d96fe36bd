package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry is the external token-ownership registry. The market never
// holds tokens itself; it only verifies ownership and asks the registry to
// move the asset on a completed sale.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, id TokenID) (common.Address, error)
	Transfer(ctx context.Context, from, to common.Address, id TokenID) error
}

// FundBank moves settlement funds out of the market's custody, used by the
// administrator withdrawal path.
type FundBank interface {
	Pay(ctx context.Context, to common.Address, wei *big.Int) error
}

// Authorizer gates administrative operations. The market core carries no
// identity scheme of its own; it only asks this capability.
type Authorizer interface {
	IsAdministrator(caller common.Address) bool
}
