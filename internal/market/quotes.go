package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collect9/c9market/internal/domain"
)

// QuoteService is the cached read path over Market.Get. Quotes are only
// cached for the public query surface; Purchase always prices fresh against
// the live oracle.
type QuoteService struct {
	market *Market
	cache  domain.QuoteCache // optional
	logger *slog.Logger
}

// NewQuoteService creates a QuoteService. cache may be nil, in which case
// every request hits the oracle.
func NewQuoteService(market *Market, cache domain.QuoteCache, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		market: market,
		cache:  cache,
		logger: logger.With(slog.String("component", "quote_service")),
	}
}

// Get returns a listing and its current quote, serving the quote from cache
// when a fresh entry exists.
func (s *QuoteService) Get(ctx context.Context, id domain.TokenID) (domain.Listing, domain.Quote, error) {
	if s.cache != nil {
		if q, err := s.cache.Get(ctx, id); err == nil {
			l, lerr := s.market.listings.Get(ctx, id)
			if lerr == nil {
				return l, q, nil
			}
			// Listing vanished underneath the cached quote; fall through so
			// the caller sees ErrNotListed, and drop the stale entry.
			if invErr := s.cache.Invalidate(ctx, id); invErr != nil {
				s.logger.WarnContext(ctx, "quote cache invalidate failed",
					slog.Uint64("token_id", uint64(id)),
					slog.String("error", invErr.Error()),
				)
			}
		}
	}

	l, q, err := s.market.Get(ctx, id)
	if err != nil {
		return domain.Listing{}, domain.Quote{}, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, q); cacheErr != nil {
			s.logger.WarnContext(ctx, "quote cache set failed",
				slog.Uint64("token_id", uint64(id)),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return l, q, nil
}

// Listings passes through to the registry's enumeration.
func (s *QuoteService) Listings(ctx context.Context) ([]domain.Listing, error) {
	ls, err := s.market.Listings(ctx)
	if err != nil {
		return nil, fmt.Errorf("quote_service: listings: %w", err)
	}
	return ls, nil
}
