// Package handler contains the HTTP handlers for the marketplace API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes. The
// sentinel's own text is returned so clients see the same vocabulary the
// service logs use. Unknown errors become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotListed):
		writeError(w, http.StatusNotFound, domain.ErrNotListed.Error())
	case errors.Is(err, domain.ErrAlreadyListed):
		writeError(w, http.StatusConflict, domain.ErrAlreadyListed.Error())
	case errors.Is(err, domain.ErrInvalidPriceRange):
		writeError(w, http.StatusBadRequest, domain.ErrInvalidPriceRange.Error())
	case errors.Is(err, domain.ErrPriceBelowMinimum):
		writeError(w, http.StatusConflict, domain.ErrPriceBelowMinimum.Error())
	case errors.Is(err, domain.ErrIncorrectPayment):
		writeError(w, http.StatusBadRequest, domain.ErrIncorrectPayment.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, domain.ErrInsufficientBalance.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, domain.ErrUnauthorized.Error())
	case errors.Is(err, domain.ErrStaleRate):
		writeError(w, http.StatusServiceUnavailable, domain.ErrStaleRate.Error())
	case errors.Is(err, domain.ErrReentrantCall), errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusServiceUnavailable, "market is busy, retry shortly")
	case errors.Is(err, domain.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, domain.ErrTransferFailed.Error())
	case errors.Is(err, domain.ErrOverflow):
		writeError(w, http.StatusUnprocessableEntity, domain.ErrOverflow.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathTokenID extracts the {id} path parameter as a token ID using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathTokenID(r *http.Request) (domain.TokenID, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, fmt.Errorf("missing token id")
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", raw)
	}
	return domain.TokenID(n), nil
}

// parseAddress validates and decodes a 0x-prefixed hex Ethereum address.
func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// parseWei decodes a non-negative base-10 wei amount from its string form.
// Amounts travel as strings because wei values overflow float64-backed JSON
// numbers.
func parseWei(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s: must not be empty", field)
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid wei amount %q", field, raw)
	}
	return n, nil
}

// marketLockTTL bounds how long a replica can hold the mutation lock before
// Redis expires it.
const marketLockTTL = 30 * time.Second

// acquireMarketLock takes the cross-replica mutation lock when a lock manager
// is configured. With a nil manager (single-process deployments) it returns a
// no-op unlock.
func acquireMarketLock(ctx context.Context, locker domain.LockManager) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	return locker.Acquire(ctx, "market", marketLockTTL)
}

// weiString renders a big.Int for JSON transport, treating nil as zero.
func weiString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
