package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/collect9/c9market/internal/domain"
)

func TestListingStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()

	l := domain.Listing{TokenID: 1, FloorCents: 100, CeilingCents: 200, ListedAt: time.Now()}

	_, err := s.Get(ctx, 1)
	require.ErrorIs(t, err, domain.ErrNotListed)

	require.NoError(t, s.Create(ctx, l))
	require.ErrorIs(t, s.Create(ctx, l), domain.ErrAlreadyListed)

	l.CeilingCents = 300
	require.NoError(t, s.Update(ctx, l))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(300), got.CeilingCents)

	require.NoError(t, s.Delete(ctx, 1))
	require.ErrorIs(t, s.Delete(ctx, 1), domain.ErrNotListed)
	require.ErrorIs(t, s.Update(ctx, l), domain.ErrNotListed)
}

func TestListingStoreListOrdersByTokenID(t *testing.T) {
	ctx := context.Background()
	s := NewListingStore()

	for _, id := range []domain.TokenID{9, 3, 7} {
		require.NoError(t, s.Create(ctx, domain.Listing{TokenID: id, FloorCents: 1, CeilingCents: 2}))
	}

	ls, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, ls, 3)
	require.Equal(t, domain.TokenID(3), ls[0].TokenID)
	require.Equal(t, domain.TokenID(9), ls[2].TokenID)
}

func TestStateStoreBalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(nil)

	require.NoError(t, s.AddBalance(ctx, big.NewInt(100)))
	require.ErrorIs(t, s.AddBalance(ctx, big.NewInt(-101)), domain.ErrInsufficientBalance)

	// The failed adjustment must not have moved the balance.
	bal, err := s.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, "100", bal.String())

	require.NoError(t, s.AddBalance(ctx, big.NewInt(-100)))
	bal, err = s.Balance(ctx)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestStateStoreMinimumPriceCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStateStore(big.NewInt(42))

	min, err := s.MinimumPrice(ctx)
	require.NoError(t, err)
	min.SetInt64(999) // caller mutation must not leak into the store

	again, err := s.MinimumPrice(ctx)
	require.NoError(t, err)
	require.Equal(t, "42", again.String())
}

func TestPurchaseStoreListAndPrune(t *testing.T) {
	ctx := context.Background()
	s := NewPurchaseStore()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, domain.Purchase{
			ID:            string(rune('a' + i)),
			TokenID:       domain.TokenID(i),
			SettlementWei: big.NewInt(int64(i)),
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "e", recent[0].ID)

	cutoff := base.Add(2 * time.Hour)
	old, err := s.ListBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, old, 2)
	require.Equal(t, "a", old[0].ID)

	dropped, err := s.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 2, dropped)

	rest, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
}

func TestAssetLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewAssetLedger()

	alice := common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob := common.HexToAddress("0x2222222222222222222222222222222222222222")

	_, err := l.OwnerOf(ctx, 1)
	require.ErrorIs(t, err, domain.ErrNotListed)

	l.Mint(1, alice)

	require.ErrorIs(t, l.Transfer(ctx, bob, alice, 1), domain.ErrTransferFailed)

	require.NoError(t, l.Transfer(ctx, alice, bob, 1))
	owner, err := l.OwnerOf(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
}
