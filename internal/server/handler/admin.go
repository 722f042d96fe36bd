package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// AdminService defines the administrative surface of the market.
type AdminService interface {
	SetMinimumSettlementPrice(ctx context.Context, caller common.Address, wei *big.Int) error
	SetOracleSource(ctx context.Context, caller common.Address, addr common.Address) error
	WithdrawBalance(ctx context.Context, caller common.Address, wei *big.Int) error
	AccruedBalance(ctx context.Context) (*big.Int, error)
}

// AdminHandler serves the administrative endpoints.
type AdminHandler struct {
	admin  AdminService
	locker domain.LockManager // nil when running single-process
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler. locker may be nil.
func NewAdminHandler(admin AdminService, locker domain.LockManager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		locker: locker,
		logger: logger,
	}
}

// minimumPriceRequest is the body for PUT /api/admin/minimum-price.
type minimumPriceRequest struct {
	Caller string `json:"caller"`
	Wei    string `json:"wei"`
}

// SetMinimumPrice sets the settlement-currency price floor that every
// purchase must clear.
// PUT /api/admin/minimum-price
func (h *AdminHandler) SetMinimumPrice(w http.ResponseWriter, r *http.Request) {
	var req minimumPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wei, err := parseWei("wei", req.Wei)
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

	if err := h.admin.SetMinimumSettlementPrice(r.Context(), caller, wei); err != nil {
		h.logFailed(r, "set minimum price", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"minimum_wei": wei.String()})
}

// oracleRequest is the body for PUT /api/admin/oracle.
type oracleRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

// SetOracle repoints the market at a different rate feed contract.
// PUT /api/admin/oracle
func (h *AdminHandler) SetOracle(w http.ResponseWriter, r *http.Request) {
	var req oracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	feed, err := parseAddress("address", req.Address)
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

	if err := h.admin.SetOracleSource(r.Context(), caller, feed); err != nil {
		h.logFailed(r, "set oracle", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"oracle": feed.Hex()})
}

// withdrawRequest is the body for POST /api/admin/withdraw. A "0" amount
// withdraws the entire accrued balance.
type withdrawRequest struct {
	Caller string `json:"caller"`
	Wei    string `json:"wei"`
}

// Withdraw pays accrued settlement funds out to the administrator.
// POST /api/admin/withdraw
func (h *AdminHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wei, err := parseWei("wei", req.Wei)
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

	if err := h.admin.WithdrawBalance(r.Context(), caller, wei); err != nil {
		h.logFailed(r, "withdraw", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"withdrawn_wei": wei.String()})
}

// Balance reports the settlement funds accrued from purchases and not yet
// withdrawn.
// GET /api/admin/balance
func (h *AdminHandler) Balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.admin.AccruedBalance(r.Context())
	if err != nil {
		h.logFailed(r, "balance", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance_wei": weiString(bal)})
}

func (h *AdminHandler) logFailed(r *http.Request, op string, err error) {
	h.logger.WarnContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
}
