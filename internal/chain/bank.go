package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	c9crypto "github.com/collect9/c9market/internal/crypto"
	"github.com/collect9/c9market/internal/domain"
)

// payGasLimit is a plain value transfer.
const payGasLimit uint64 = 21_000

// Bank implements domain.FundBank with direct value transfers from the
// operator account.
type Bank struct {
	sender txSender
}

// NewBank creates a Bank paying out of the operator account on the given
// chain.
func NewBank(backend Backend, op *c9crypto.OperatorKey, chainID *big.Int) *Bank {
	return &Bank{
		sender: txSender{backend: backend, op: op, chainID: chainID},
	}
}

// Pay sends wei to the recipient and waits for the transfer to be mined.
func (b *Bank) Pay(ctx context.Context, to common.Address, wei *big.Int) error {
	if err := b.sender.send(ctx, to, wei, payGasLimit, nil); err != nil {
		return fmt.Errorf("chain: pay %s wei to %s: %w", wei, to.Hex(), err)
	}
	return nil
}

var _ domain.FundBank = (*Bank)(nil)
