package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	c9crypto "github.com/collect9/c9market/internal/crypto"
	"github.com/collect9/c9market/internal/domain"
)

// ERC-721 selectors.
var (
	selOwnerOf      = []byte{0x63, 0x52, 0x21, 0x1e} // ownerOf(uint256)
	selTransferFrom = []byte{0x23, 0xb8, 0x72, 0xdd} // transferFrom(address,address,uint256)
)

// transferGasLimit covers an ERC-721 transferFrom including approval
// clearing on mainnet-shaped contracts.
const transferGasLimit uint64 = 150_000

// ERC721Registry implements domain.AssetRegistry over an ERC-721 contract.
// Transfers are signed with the operator key, which the token holders have
// approved as an operator for marketplace sales.
type ERC721Registry struct {
	backend  Backend
	contract common.Address
	sender   txSender
}

// NewERC721Registry creates a registry adapter for the token contract at
// addr, signing transfers with op on the given chain.
func NewERC721Registry(backend Backend, addr common.Address, op *c9crypto.OperatorKey, chainID *big.Int) *ERC721Registry {
	return &ERC721Registry{
		backend:  backend,
		contract: addr,
		sender:   txSender{backend: backend, op: op, chainID: chainID},
	}
}

// OwnerOf returns the current holder of the token.
func (r *ERC721Registry) OwnerOf(ctx context.Context, id domain.TokenID) (common.Address, error) {
	data := append(append([]byte{}, selOwnerOf...), leftPad32(new(big.Int).SetUint64(uint64(id)).Bytes())...)

	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: data,
	}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: ownerOf %d: %w", id, err)
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("chain: short ownerOf response (%d bytes)", len(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

// Transfer moves the token from its holder to the buyer.
func (r *ERC721Registry) Transfer(ctx context.Context, from, to common.Address, id domain.TokenID) error {
	data := make([]byte, 0, 4+3*32)
	data = append(data, selTransferFrom...)
	data = append(data, leftPad32(from.Bytes())...)
	data = append(data, leftPad32(to.Bytes())...)
	data = append(data, leftPad32(new(big.Int).SetUint64(uint64(id)).Bytes())...)

	if err := r.sender.send(ctx, r.contract, big.NewInt(0), transferGasLimit, data); err != nil {
		return fmt.Errorf("chain: transfer token %d %s -> %s: %w", id, from.Hex(), to.Hex(), err)
	}
	return nil
}

var _ domain.AssetRegistry = (*ERC721Registry)(nil)
