package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Purchase is the durable record of one completed sale. SettlementWei is the
// exact native amount the buyer paid, FiatCents the decayed ask price the
// pricing engine quoted at the moment of sale.
type Purchase struct {
	ID            string
	Buyer         common.Address
	Counterparty  common.Address
	TokenID       TokenID
	FiatCents     USDCents
	SettlementWei *big.Int
	CreatedAt     time.Time
}

// Quote is the pricing engine's answer for one listing at one instant:
// the fiat ask after decay and its settlement-currency equivalent at the
// oracle rate that was in force.
type Quote struct {
	TokenID       TokenID
	FiatCents     USDCents
	SettlementWei *big.Int
	RateUpdatedAt time.Time
	QuotedAt      time.Time
}
