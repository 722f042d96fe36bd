package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/collect9/c9market/internal/domain"
	"github.com/collect9/c9market/internal/market"
	"github.com/collect9/c9market/internal/store/memory"
)

const (
	adminHex  = "0xAd111111111111111111111111111111111111AA"
	sellerHex = "0x5e111111111111111111111111111111111111EE"
	buyerHex  = "0xB0111111111111111111111111111111111111BB"
)

type fixedOracle struct{ rate domain.Rate }

func (o fixedOracle) LatestRate(context.Context) (domain.Rate, error) { return o.rate, nil }
func (o fixedOracle) SetSource(common.Address) error                  { return nil }

// newTestMux wires real handlers over an in-memory market and returns the
// routing mux plus the asset ledger for seeding tokens.
func newTestMux(t *testing.T) (*http.ServeMux, *memory.AssetLedger) {
	t.Helper()

	ledger := memory.NewAssetLedger()
	logger := slog.New(slog.DiscardHandler)

	oracle := fixedOracle{rate: domain.Rate{
		Answer:    big.NewInt(2000_00000000),
		Decimals:  8,
		UpdatedAt: time.Now().UTC(),
	}}

	mkt := market.New(
		market.Config{MinFloorCents: 100, MaxCeilingCents: 100_000_000},
		memory.NewListingStore(),
		memory.NewPurchaseStore(),
		memory.NewStateStore(nil),
		oracle,
		ledger,
		market.StaticAuthorizer{Admin: common.HexToAddress(adminHex)},
		logger,
		market.WithBank(ledger),
	)
	quotes := market.NewQuoteService(mkt, nil, logger)

	listings := NewListingHandler(mkt, quotes, nil, logger)
	purchase := NewPurchaseHandler(mkt, nil, logger)
	adminH := NewAdminHandler(mkt, nil, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/listings", listings.ListListings)
	mux.HandleFunc("GET /api/listings/{id}", listings.GetListing)
	mux.HandleFunc("POST /api/listings", listings.CreateListing)
	mux.HandleFunc("PUT /api/listings/{id}", listings.UpdateListing)
	mux.HandleFunc("DELETE /api/listings/{id}", listings.RemoveListing)
	mux.HandleFunc("POST /api/listings/{id}/reset", listings.ResetListing)
	mux.HandleFunc("POST /api/purchase", purchase.Buy)
	mux.HandleFunc("PUT /api/admin/minimum-price", adminH.SetMinimumPrice)
	mux.HandleFunc("POST /api/admin/withdraw", adminH.Withdraw)
	mux.HandleFunc("GET /api/admin/balance", adminH.Balance)
	return mux, ledger
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func createListing(t *testing.T, mux *http.ServeMux, ledger *memory.AssetLedger, id uint64) {
	t.Helper()
	ledger.Mint(domain.TokenID(id), common.HexToAddress(sellerHex))
	rec := do(mux, http.MethodPost, "/api/listings",
		`{"caller":"`+adminHex+`","token_id":`+jsonUint(id)+`,"floor_cents":50000,"ceiling_cents":100000}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func jsonUint(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateAndGetListing(t *testing.T) {
	mux, ledger := newTestMux(t)
	createListing(t, mux, ledger, 1)

	rec := do(mux, http.MethodGet, "/api/listings/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Listing struct {
			TokenID      uint64 `json:"token_id"`
			CeilingCents int64  `json:"ceiling_cents"`
		} `json:"listing"`
		Quote struct {
			FiatCents     int64  `json:"fiat_cents"`
			SettlementWei string `json:"settlement_wei"`
		} `json:"quote"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 1, resp.Listing.TokenID)
	require.EqualValues(t, 100_000, resp.Quote.FiatCents)
	require.Equal(t, "500000000000000000", resp.Quote.SettlementWei)
}

func TestCreateListingRejectsNonAdmin(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(mux, http.MethodPost, "/api/listings",
		`{"caller":"`+buyerHex+`","token_id":1,"floor_cents":50000,"ceiling_cents":100000}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateListingValidation(t *testing.T) {
	mux, _ := newTestMux(t)

	t.Run("bad address", func(t *testing.T) {
		rec := do(mux, http.MethodPost, "/api/listings",
			`{"caller":"nonsense","token_id":1,"floor_cents":1,"ceiling_cents":2}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inverted range", func(t *testing.T) {
		rec := do(mux, http.MethodPost, "/api/listings",
			`{"caller":"`+adminHex+`","token_id":1,"floor_cents":100000,"ceiling_cents":50000}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		mux2, ledger := newTestMux(t)
		createListing(t, mux2, ledger, 5)
		rec := do(mux2, http.MethodPost, "/api/listings",
			`{"caller":"`+adminHex+`","token_id":5,"floor_cents":50000,"ceiling_cents":100000}`)
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGetListingNotFound(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := do(mux, http.MethodGet, "/api/listings/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodGet, "/api/listings/not-a-number", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseRoundTrip(t *testing.T) {
	mux, ledger := newTestMux(t)
	createListing(t, mux, ledger, 1)

	rec := do(mux, http.MethodPost, "/api/purchase",
		`{"buyer":"`+buyerHex+`","token_id":1,"payment_wei":"500000000000000000","counterparty":"`+sellerHex+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	require.Equal(t, "500000000000000000", resp.SettlementWei)

	// Token is sold: the listing is gone and the balance reflects the sale.
	rec = do(mux, http.MethodGet, "/api/listings/1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodGet, "/api/admin/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "500000000000000000")
}

func TestPurchaseWrongPayment(t *testing.T) {
	mux, ledger := newTestMux(t)
	createListing(t, mux, ledger, 1)

	rec := do(mux, http.MethodPost, "/api/purchase",
		`{"buyer":"`+buyerHex+`","token_id":1,"payment_wei":"500000000000000001","counterparty":"`+sellerHex+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawFullBalanceRequiresZeroSentinel(t *testing.T) {
	mux, ledger := newTestMux(t)
	createListing(t, mux, ledger, 1)

	rec := do(mux, http.MethodPost, "/api/purchase",
		`{"buyer":"`+buyerHex+`","token_id":1,"payment_wei":"500000000000000000","counterparty":"`+sellerHex+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Asking for exactly the balance is refused.
	rec = do(mux, http.MethodPost, "/api/admin/withdraw",
		`{"caller":"`+adminHex+`","wei":"500000000000000000"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Zero drains it.
	rec = do(mux, http.MethodPost, "/api/admin/withdraw",
		`{"caller":"`+adminHex+`","wei":"0"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, http.MethodPost, "/api/admin/withdraw",
		`{"caller":"`+buyerHex+`","wei":"0"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRemoveAndResetListing(t *testing.T) {
	mux, ledger := newTestMux(t)
	createListing(t, mux, ledger, 1)

	rec := do(mux, http.MethodPost, "/api/listings/1/reset", `{"caller":"`+adminHex+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, http.MethodDelete, "/api/listings/1", `{"caller":"`+adminHex+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, http.MethodDelete, "/api/listings/1", `{"caller":"`+adminHex+`"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
