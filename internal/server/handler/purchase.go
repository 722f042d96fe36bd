package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// PurchaseService defines what the purchase handler needs from the market.
type PurchaseService interface {
	Purchase(ctx context.Context, buyer common.Address, id domain.TokenID, paymentWei *big.Int, expectedCounterparty common.Address) (domain.Purchase, error)
}

// PurchaseHandler serves the buy endpoint.
type PurchaseHandler struct {
	market PurchaseService
	locker domain.LockManager // nil when running single-process
	logger *slog.Logger
}

// NewPurchaseHandler creates a PurchaseHandler. locker may be nil.
func NewPurchaseHandler(market PurchaseService, locker domain.LockManager, logger *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		market: market,
		locker: locker,
		logger: logger,
	}
}

// purchaseRequest is the body for POST /api/purchase. The buyer states who it
// expects to be buying from so a listing swapped between quote and purchase
// cannot settle against the wrong counterparty.
type purchaseRequest struct {
	Buyer        string `json:"buyer"`
	TokenID      uint64 `json:"token_id"`
	PaymentWei   string `json:"payment_wei"`
	Counterparty string `json:"counterparty"`
}

// purchaseResponse is the receipt returned on success.
type purchaseResponse struct {
	ID            string `json:"id"`
	TokenID       uint64 `json:"token_id"`
	Buyer         string `json:"buyer"`
	Counterparty  string `json:"counterparty"`
	FiatCents     int64  `json:"fiat_cents"`
	SettlementWei string `json:"settlement_wei"`
	CreatedAt     string `json:"created_at"`
}

// Buy executes a purchase at the current decayed price.
// POST /api/purchase
func (h *PurchaseHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	buyer, err := parseAddress("buyer", req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	counterparty, err := parseAddress("counterparty", req.Counterparty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payment, err := parseWei("payment_wei", req.PaymentWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	unlock, err := acquireMarketLock(r.Context(), h.locker)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer unlock()

	p, err := h.market.Purchase(r.Context(), buyer, domain.TokenID(req.TokenID), payment, counterparty)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: purchase failed",
			slog.Uint64("token_id", req.TokenID),
			slog.String("buyer", buyer.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, purchaseResponse{
		ID:            p.ID,
		TokenID:       uint64(p.TokenID),
		Buyer:         p.Buyer.Hex(),
		Counterparty:  p.Counterparty.Hex(),
		FiatCents:     int64(p.FiatCents),
		SettlementWei: weiString(p.SettlementWei),
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
	})
}
