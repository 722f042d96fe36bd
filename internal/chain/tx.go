// Package chain adapts the external Ethereum collaborators: the ERC-721
// asset registry the market verifies and moves tokens through, and the fund
// bank that pays out withdrawn balances.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	c9crypto "github.com/collect9/c9market/internal/crypto"
)

// receiptPollInterval is how often a sent transaction is polled for its
// receipt.
const receiptPollInterval = 2 * time.Second

// Backend is the slice of the Ethereum client the adapters need.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// txSender signs and submits transactions with the operator key and blocks
// until the receipt lands.
type txSender struct {
	backend Backend
	op      *c9crypto.OperatorKey
	chainID *big.Int
}

func (s *txSender) send(ctx context.Context, to common.Address, value *big.Int, gasLimit uint64, data []byte) error {
	nonce, err := s.backend.PendingNonceAt(ctx, s.op.Address)
	if err != nil {
		return fmt.Errorf("chain: nonce for %s: %w", s.op.Address.Hex(), err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("chain: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.op.PrivateKey)
	if err != nil {
		return fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("chain: send tx: %w", err)
	}
	return s.waitMined(ctx, signed.Hash())
}

func (s *txSender) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("chain: tx %s reverted", hash.Hex())
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("chain: wait for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// leftPad32 left-pads b into a fresh 32-byte ABI word.
func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
