package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// AssetLedger implements domain.AssetRegistry and domain.FundBank with
// in-process maps. It stands in for the on-chain token registry in
// standalone mode, where no RPC endpoint is configured.
type AssetLedger struct {
	mu      sync.RWMutex
	owners  map[domain.TokenID]common.Address
	payouts map[common.Address]*big.Int
}

// NewAssetLedger creates an AssetLedger with no minted tokens.
func NewAssetLedger() *AssetLedger {
	return &AssetLedger{
		owners:  make(map[domain.TokenID]common.Address),
		payouts: make(map[common.Address]*big.Int),
	}
}

// Mint assigns a token to an owner, creating it if absent.
func (l *AssetLedger) Mint(id domain.TokenID, owner common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners[id] = owner
}

// OwnerOf returns the current owner of id, or ErrNotListed when the token
// does not exist in the ledger.
func (l *AssetLedger) OwnerOf(_ context.Context, id domain.TokenID) (common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	owner, ok := l.owners[id]
	if !ok {
		return common.Address{}, domain.ErrNotListed
	}
	return owner, nil
}

// Transfer moves id from one owner to another, failing with
// ErrTransferFailed when from does not hold the token.
func (l *AssetLedger) Transfer(_ context.Context, from, to common.Address, id domain.TokenID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[id]
	if !ok || owner != from {
		return domain.ErrTransferFailed
	}
	l.owners[id] = to
	return nil
}

// Pay records a payout against the recipient. Standalone mode has no real
// funds to move; the ledger keeps the running total for inspection.
func (l *AssetLedger) Pay(_ context.Context, to common.Address, wei *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	total, ok := l.payouts[to]
	if !ok {
		total = new(big.Int)
		l.payouts[to] = total
	}
	total.Add(total, wei)
	return nil
}

// PaidTo returns the total recorded payouts to an address.
func (l *AssetLedger) PaidTo(to common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total, ok := l.payouts[to]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(total)
}

var (
	_ domain.AssetRegistry = (*AssetLedger)(nil)
	_ domain.FundBank      = (*AssetLedger)(nil)
)
