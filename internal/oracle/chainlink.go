// Package oracle supplies exchange-rate feeds for the pricing engine. The
// production implementation reads a Chainlink-compatible aggregator over an
// Ethereum JSON-RPC endpoint; a fixed-rate variant exists for development.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// Aggregator ABI selectors, keccak-256 of the canonical signatures.
var (
	selLatestRoundData = []byte{0xfe, 0xaf, 0x96, 0x8c} // latestRoundData()
	selDecimals        = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
)

// ContractCaller is the slice of the Ethereum client the feed needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkFeed implements domain.RateOracle against a Chainlink-compatible
// price aggregator contract. The feed address can be repointed at runtime;
// decimals are fetched once per source and cached.
type ChainlinkFeed struct {
	caller ContractCaller

	mu       sync.RWMutex
	feed     common.Address
	decimals uint8
	haveDec  bool
}

// NewChainlinkFeed creates a feed reading the aggregator at addr.
func NewChainlinkFeed(caller ContractCaller, addr common.Address) *ChainlinkFeed {
	return &ChainlinkFeed{caller: caller, feed: addr}
}

// LatestRate returns the aggregator's latest answer, its decimal scaling,
// and the on-chain update timestamp.
func (f *ChainlinkFeed) LatestRate(ctx context.Context) (domain.Rate, error) {
	f.mu.RLock()
	feed := f.feed
	f.mu.RUnlock()

	dec, err := f.feedDecimals(ctx, feed)
	if err != nil {
		return domain.Rate{}, err
	}

	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &feed,
		Data: selLatestRoundData,
	}, nil)
	if err != nil {
		return domain.Rate{}, fmt.Errorf("oracle: latestRoundData %s: %w", feed.Hex(), err)
	}
	// (uint80 roundId, int256 answer, uint256 startedAt, uint256 updatedAt,
	//  uint80 answeredInRound) -- five 32-byte words.
	if len(out) < 5*32 {
		return domain.Rate{}, fmt.Errorf("oracle: short latestRoundData response (%d bytes)", len(out))
	}

	answer := new(big.Int).SetBytes(out[32:64])
	// int256 two's complement; negative answers are a broken feed but must
	// not be misread as huge positive rates.
	if out[32]&0x80 != 0 {
		answer.Sub(answer, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	updatedAt := new(big.Int).SetBytes(out[96:128])

	return domain.Rate{
		Answer:    answer,
		Decimals:  dec,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0),
	}, nil
}

// SetSource repoints the feed at a different aggregator and drops the cached
// decimals so the next read re-fetches them.
func (f *ChainlinkFeed) SetSource(addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("oracle: zero feed address")
	}
	f.mu.Lock()
	f.feed = addr
	f.haveDec = false
	f.mu.Unlock()
	return nil
}

func (f *ChainlinkFeed) feedDecimals(ctx context.Context, feed common.Address) (uint8, error) {
	f.mu.RLock()
	if f.haveDec && f.feed == feed {
		dec := f.decimals
		f.mu.RUnlock()
		return dec, nil
	}
	f.mu.RUnlock()

	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &feed,
		Data: selDecimals,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("oracle: decimals %s: %w", feed.Hex(), err)
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("oracle: short decimals response (%d bytes)", len(out))
	}
	dec := uint8(out[31])

	f.mu.Lock()
	if f.feed == feed {
		f.decimals = dec
		f.haveDec = true
	}
	f.mu.Unlock()
	return dec, nil
}

var _ domain.RateOracle = (*ChainlinkFeed)(nil)
