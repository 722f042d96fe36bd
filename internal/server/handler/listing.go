package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// ListingService defines the mutation surface the listing handler requires.
// It is declared locally so the handler package does not depend on the
// concrete market implementation.
type ListingService interface {
	List(ctx context.Context, caller common.Address, id domain.TokenID, floor, ceiling domain.USDCents) error
	Update(ctx context.Context, caller common.Address, id domain.TokenID, floor, ceiling domain.USDCents) error
	Remove(ctx context.Context, caller common.Address, id domain.TokenID) error
	ResetDecayOrigin(ctx context.Context, caller common.Address, id domain.TokenID) error
}

// QuoteReader defines the read surface, served by the quote cache layer.
type QuoteReader interface {
	Get(ctx context.Context, id domain.TokenID) (domain.Listing, domain.Quote, error)
	Listings(ctx context.Context) ([]domain.Listing, error)
}

// ListingHandler serves listing CRUD and quote endpoints.
type ListingHandler struct {
	listings ListingService
	quotes   QuoteReader
	locker   domain.LockManager // nil when running single-process
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler. locker may be nil.
func NewListingHandler(listings ListingService, quotes QuoteReader, locker domain.LockManager, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		quotes:   quotes,
		locker:   locker,
		logger:   logger,
	}
}

// listingJSON is the wire form of a listing.
type listingJSON struct {
	TokenID      uint64 `json:"token_id"`
	FloorCents   int64  `json:"floor_cents"`
	CeilingCents int64  `json:"ceiling_cents"`
	ListedAt     string `json:"listed_at"`
}

// quoteJSON is the wire form of a price quote. Wei amounts are strings.
type quoteJSON struct {
	FiatCents     int64  `json:"fiat_cents"`
	SettlementWei string `json:"settlement_wei"`
	RateUpdatedAt string `json:"rate_updated_at"`
	QuotedAt      string `json:"quoted_at"`
}

func toListingJSON(l domain.Listing) listingJSON {
	return listingJSON{
		TokenID:      uint64(l.TokenID),
		FloorCents:   int64(l.FloorCents),
		CeilingCents: int64(l.CeilingCents),
		ListedAt:     l.ListedAt.UTC().Format(time.RFC3339),
	}
}

func toQuoteJSON(q domain.Quote) quoteJSON {
	return quoteJSON{
		FiatCents:     int64(q.FiatCents),
		SettlementWei: weiString(q.SettlementWei),
		RateUpdatedAt: q.RateUpdatedAt.UTC().Format(time.RFC3339),
		QuotedAt:      q.QuotedAt.UTC().Format(time.RFC3339),
	}
}

// listListingsResponse wraps the enumeration endpoint output.
type listListingsResponse struct {
	Listings []listingJSON `json:"listings"`
	Total    int           `json:"total"`
}

// ListListings returns every active listing.
// GET /api/listings
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.quotes.Listings(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list listings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	out := make([]listingJSON, 0, len(listings))
	for _, l := range listings {
		out = append(out, toListingJSON(l))
	}
	writeJSON(w, http.StatusOK, listListingsResponse{Listings: out, Total: len(out)})
}

// GetListing returns one listing together with its current quote.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, quote, err := h.quotes.Get(r.Context(), id)
	if err != nil {
		h.logDomainError(r, "get listing", id, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listing": toListingJSON(listing),
		"quote":   toQuoteJSON(quote),
	})
}

// createListingRequest is the body for POST /api/listings.
type createListingRequest struct {
	Caller       string `json:"caller"`
	TokenID      uint64 `json:"token_id"`
	FloorCents   int64  `json:"floor_cents"`
	CeilingCents int64  `json:"ceiling_cents"`
}

// CreateListing puts a token up for sale.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress("caller", req.Caller)
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

	id := domain.TokenID(req.TokenID)
	if err := h.listings.List(r.Context(), caller, id, domain.USDCents(req.FloorCents), domain.USDCents(req.CeilingCents)); err != nil {
		h.logDomainError(r, "create listing", id, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"token_id": req.TokenID})
}

// updateListingRequest is the body for PUT /api/listings/{id}.
type updateListingRequest struct {
	Caller       string `json:"caller"`
	FloorCents   int64  `json:"floor_cents"`
	CeilingCents int64  `json:"ceiling_cents"`
}

// UpdateListing replaces the price range of an existing listing. The decay
// origin restarts at the update time.
// PUT /api/listings/{id}
func (h *ListingHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathTokenID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress("caller", req.Caller)
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

	if err := h.listings.Update(r.Context(), caller, id, domain.USDCents(req.FloorCents), domain.USDCents(req.CeilingCents)); err != nil {
		h.logDomainError(r, "update listing", id, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token_id": uint64(id)})
}

// callerRequest carries only the caller identity, for body-addressed
// operations with no other parameters.
type callerRequest struct {
	Caller string `json:"caller"`
}

// RemoveListing takes a token off the market.
// DELETE /api/listings/{id}
func (h *ListingHandler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	h.callerOnlyOp(w, r, "remove listing", h.listings.Remove)
}

// ResetListing restarts the decay clock of an existing listing without
// touching its price range.
// POST /api/listings/{id}/reset
func (h *ListingHandler) ResetListing(w http.ResponseWriter, r *http.Request) {
	h.callerOnlyOp(w, r, "reset listing", h.listings.ResetDecayOrigin)
}

// callerOnlyOp shares the decode/lock/dispatch shape of Remove and Reset.
func (h *ListingHandler) callerOnlyOp(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	op func(ctx context.Context, caller common.Address, id domain.TokenID) error,
) {
	id, err := pathTokenID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, err := parseAddress("caller", req.Caller)
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

	if err := op(r.Context(), caller, id); err != nil {
		h.logDomainError(r, name, id, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token_id": uint64(id)})
}

func (h *ListingHandler) logDomainError(r *http.Request, op string, id domain.TokenID, err error) {
	h.logger.WarnContext(r.Context(), "handler: "+op+" failed",
		slog.Uint64("token_id", uint64(id)),
		slog.String("error", err.Error()),
	)
}
