package market

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/collect9/c9market/internal/domain"
	"github.com/collect9/c9market/internal/store/memory"
)

var (
	admin  = common.HexToAddress("0xAd111111111111111111111111111111111111AA")
	seller = common.HexToAddress("0x5e111111111111111111111111111111111111EE")
	buyer  = common.HexToAddress("0xB0111111111111111111111111111111111111BB")
	rando  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

var testStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// stubOracle lets tests pin the rate and its observation time, and records
// SetSource calls.
type stubOracle struct {
	rate   domain.Rate
	err    error
	source common.Address
}

func (o *stubOracle) LatestRate(context.Context) (domain.Rate, error) {
	if o.err != nil {
		return domain.Rate{}, o.err
	}
	return o.rate, nil
}

func (o *stubOracle) SetSource(addr common.Address) error {
	o.source = addr
	return nil
}

// harness bundles a market over in-memory stores with a controllable clock.
type harness struct {
	market    *Market
	ledger    *memory.AssetLedger
	oracle    *stubOracle
	listings  *memory.ListingStore
	purchases *memory.PurchaseStore
	state     *memory.StateStore
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		ledger:    memory.NewAssetLedger(),
		listings:  memory.NewListingStore(),
		purchases: memory.NewPurchaseStore(),
		state:     memory.NewStateStore(big.NewInt(0)),
		now:       testStart,
	}
	h.oracle = &stubOracle{rate: domain.Rate{
		Answer:    big.NewInt(2000_00000000), // $2000 at 8 decimals
		Decimals:  8,
		UpdatedAt: testStart,
	}}

	logger := slog.New(slog.DiscardHandler)
	h.market = New(
		Config{MinFloorCents: 100, MaxCeilingCents: 100_000_000},
		h.listings,
		h.purchases,
		h.state,
		h.oracle,
		h.ledger,
		StaticAuthorizer{Admin: admin},
		logger,
		WithClock(func() time.Time { return h.now }),
		WithBank(h.ledger),
	)
	return h
}

// advance moves the harness clock and keeps the oracle observation fresh.
func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
	h.oracle.rate.UpdatedAt = h.now
}

func (h *harness) list(t *testing.T, id domain.TokenID, floor, ceiling domain.USDCents) {
	t.Helper()
	h.ledger.Mint(id, seller)
	require.NoError(t, h.market.List(context.Background(), admin, id, floor, ceiling))
}

func TestListRejectsNonAdministrator(t *testing.T) {
	h := newHarness(t)

	err := h.market.List(context.Background(), rando, 1, 50_000, 100_000)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestListRejectsInvalidRanges(t *testing.T) {
	h := newHarness(t)

	testcases := []struct {
		name           string
		floor, ceiling domain.USDCents
	}{
		{"ceiling equal to floor", 50_000, 50_000},
		{"ceiling below floor", 50_000, 40_000},
		{"floor at the configured minimum", 100, 50_000},
		{"floor below the configured minimum", 50, 50_000},
		{"ceiling at the configured maximum", 50_000, 100_000_000},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.market.List(context.Background(), admin, 1, tc.floor, tc.ceiling)
			require.ErrorIs(t, err, domain.ErrInvalidPriceRange)
		})
	}
}

func TestListTwiceFailsAndKeepsOriginal(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	err := h.market.List(context.Background(), admin, 1, 60_000, 200_000)
	require.ErrorIs(t, err, domain.ErrAlreadyListed)

	l, _, err := h.market.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(100_000), l.CeilingCents)
}

func TestGetQuotesCeilingAtListingTime(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	_, q, err := h.market.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(100_000), q.FiatCents)
	require.Equal(t, "500000000000000000", q.SettlementWei.String())
}

func TestGetUnknownToken(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.market.Get(context.Background(), 99)
	require.ErrorIs(t, err, domain.ErrNotListed)
}

func TestUpdateRestartsDecay(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 10_000, 100_000)

	h.advance(time.Duration(365*24) * time.Hour)
	_, q, err := h.market.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(50_000), q.FiatCents, "decayed to half after a year")

	require.NoError(t, h.market.Update(context.Background(), admin, 1, 10_000, 100_000))

	_, q, err = h.market.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(100_000), q.FiatCents, "update restarts the curve at the ceiling")
}

func TestUpdateUnknownToken(t *testing.T) {
	h := newHarness(t)

	err := h.market.Update(context.Background(), admin, 7, 50_000, 100_000)
	require.ErrorIs(t, err, domain.ErrNotListed)
}

func TestResetDecayOriginKeepsBounds(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 10_000, 100_000)

	h.advance(time.Duration(365*24) * time.Hour)
	require.NoError(t, h.market.ResetDecayOrigin(context.Background(), admin, 1))

	l, q, err := h.market.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, domain.USDCents(10_000), l.FloorCents)
	require.Equal(t, domain.USDCents(100_000), q.FiatCents)
}

func TestRemoveDelists(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	require.NoError(t, h.market.Remove(context.Background(), admin, 1))

	_, _, err := h.market.Get(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNotListed)

	err = h.market.Remove(context.Background(), admin, 1)
	require.ErrorIs(t, err, domain.ErrNotListed)
}

func TestPurchaseHappyPath(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	p, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
	require.NoError(t, err)
	require.Equal(t, buyer, p.Buyer)
	require.Equal(t, seller, p.Counterparty)
	require.Equal(t, domain.USDCents(100_000), p.FiatCents)
	require.NotEmpty(t, p.ID)

	// The listing is gone everywhere.
	_, _, err = h.market.Get(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNotListed)

	// The asset moved and the payment accrued.
	owner, err := h.ledger.OwnerOf(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, buyer, owner)

	bal, err := h.market.AccruedBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, payment.String(), bal.String())

	// And the sale was recorded.
	recent, err := h.purchases.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, p.ID, recent[0].ID)
}

func TestPurchaseRequiresExactPayment(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	exact, _ := new(big.Int).SetString("500000000000000000", 10)

	for _, delta := range []int64{-1, 1} {
		payment := new(big.Int).Add(exact, big.NewInt(delta))
		_, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
		require.ErrorIs(t, err, domain.ErrIncorrectPayment, "delta %d wei must be rejected", delta)
	}

	// The failed attempts left the listing in place.
	_, _, err := h.market.Get(context.Background(), 1)
	require.NoError(t, err)
}

func TestPurchaseBelowMinimumSettlementPrice(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	min, _ := new(big.Int).SetString("600000000000000000", 10)
	require.NoError(t, h.market.SetMinimumSettlementPrice(context.Background(), admin, min))

	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	_, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
	require.ErrorIs(t, err, domain.ErrPriceBelowMinimum)
}

func TestPurchaseFailsOnStaleOracle(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	h.now = h.now.Add(2 * time.Hour) // clock moves, oracle observation does not

	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	_, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
	require.ErrorIs(t, err, domain.ErrStaleRate)
}

func TestPurchaseRejectsWrongCounterparty(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	_, err := h.market.Purchase(context.Background(), buyer, 1, payment, rando)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	_, _, err = h.market.Get(context.Background(), 1)
	require.NoError(t, err, "failed purchase must not delist")
}

// failTransferRegistry reports the seller as owner but refuses to move the
// asset, exercising the compensation path.
type failTransferRegistry struct {
	owner common.Address
}

func (r *failTransferRegistry) OwnerOf(context.Context, domain.TokenID) (common.Address, error) {
	return r.owner, nil
}

func (r *failTransferRegistry) Transfer(context.Context, common.Address, common.Address, domain.TokenID) error {
	return domain.ErrTransferFailed
}

func TestPurchaseRollsBackOnTransferFailure(t *testing.T) {
	h := newHarness(t)
	h.market.registry = &failTransferRegistry{owner: seller}
	h.list(t, 1, 50_000, 100_000)

	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	_, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// Listing restored, no balance accrued, nothing recorded.
	_, _, getErr := h.market.Get(context.Background(), 1)
	require.NoError(t, getErr)

	bal, err := h.market.AccruedBalance(context.Background())
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	recent, err := h.purchases.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

// reentrantRegistry calls back into the market from inside Transfer, the way
// a malicious token contract would.
type reentrantRegistry struct {
	market *Market
	owner  common.Address
	inner  error
}

func (r *reentrantRegistry) OwnerOf(context.Context, domain.TokenID) (common.Address, error) {
	return r.owner, nil
}

func (r *reentrantRegistry) Transfer(ctx context.Context, from, to common.Address, id domain.TokenID) error {
	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	_, r.inner = r.market.Purchase(ctx, to, id, payment, from)
	return r.inner
}

func TestPurchaseRejectsReentrancy(t *testing.T) {
	h := newHarness(t)
	reg := &reentrantRegistry{market: h.market, owner: seller}
	h.market.registry = reg
	h.list(t, 1, 50_000, 100_000)

	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	_, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
	require.Error(t, err)
	require.ErrorIs(t, reg.inner, domain.ErrReentrantCall)

	// The guard released and the rollback ran: the listing is still for sale.
	h.market.registry = h.ledger
	p, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
	require.NoError(t, err)
	require.Equal(t, buyer, p.Buyer)
}

func TestSetMinimumPriceRequiresAdministrator(t *testing.T) {
	h := newHarness(t)

	err := h.market.SetMinimumSettlementPrice(context.Background(), rando, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSetOracleSourceDelegates(t *testing.T) {
	h := newHarness(t)
	feed := common.HexToAddress("0xFEEDFEEDfeedFEEDFEEDfeedFEEDFEEDFEEDfeed")

	require.NoError(t, h.market.SetOracleSource(context.Background(), admin, feed))
	require.Equal(t, feed, h.oracle.source)

	err := h.market.SetOracleSource(context.Background(), rando, feed)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestWithdrawBalance(t *testing.T) {
	h := newHarness(t)
	h.list(t, 1, 50_000, 100_000)

	payment, _ := new(big.Int).SetString("500000000000000000", 10)
	_, err := h.market.Purchase(context.Background(), buyer, 1, payment, seller)
	require.NoError(t, err)

	t.Run("amount equal to balance is rejected", func(t *testing.T) {
		err := h.market.WithdrawBalance(context.Background(), admin, payment)
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	})

	t.Run("amount above balance is rejected", func(t *testing.T) {
		over := new(big.Int).Add(payment, big.NewInt(1))
		err := h.market.WithdrawBalance(context.Background(), admin, over)
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	})

	t.Run("non-administrator is rejected", func(t *testing.T) {
		err := h.market.WithdrawBalance(context.Background(), rando, big.NewInt(0))
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("partial withdrawal pays out and debits", func(t *testing.T) {
		part := big.NewInt(1_000)
		require.NoError(t, h.market.WithdrawBalance(context.Background(), admin, part))
		require.Equal(t, part.String(), h.ledger.PaidTo(admin).String())

		bal, err := h.market.AccruedBalance(context.Background())
		require.NoError(t, err)
		require.Equal(t, new(big.Int).Sub(payment, part).String(), bal.String())
	})

	t.Run("zero drains the remainder", func(t *testing.T) {
		require.NoError(t, h.market.WithdrawBalance(context.Background(), admin, big.NewInt(0)))

		bal, err := h.market.AccruedBalance(context.Background())
		require.NoError(t, err)
		require.Zero(t, bal.Sign())
		require.Equal(t, payment.String(), h.ledger.PaidTo(admin).String())
	})
}
