package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collect9/c9market/internal/domain"
)

// QuoteCache implements domain.QuoteCache with per-token JSON entries and a
// short TTL. The TTL is the only freshness control: an entry either exists
// and is served, or has expired and the caller re-quotes.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache with the given entry TTL.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(id domain.TokenID) string {
	return fmt.Sprintf("quote:%d", uint64(id))
}

// cachedQuote is the stored JSON shape; the wei amount travels as a decimal
// string to survive arbitrary magnitudes.
type cachedQuote struct {
	TokenID       uint64 `json:"token_id"`
	FiatCents     int64  `json:"fiat_cents"`
	SettlementWei string `json:"settlement_wei"`
	RateUpdatedAt int64  `json:"rate_updated_at"` // unix nanos
	QuotedAt      int64  `json:"quoted_at"`       // unix nanos
}

// Set stores a quote under its token id.
func (qc *QuoteCache) Set(ctx context.Context, q domain.Quote) error {
	payload, err := json.Marshal(cachedQuote{
		TokenID:       uint64(q.TokenID),
		FiatCents:     int64(q.FiatCents),
		SettlementWei: q.SettlementWei.String(),
		RateUpdatedAt: q.RateUpdatedAt.UnixNano(),
		QuotedAt:      q.QuotedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal quote %d: %w", q.TokenID, err)
	}
	if err := qc.rdb.Set(ctx, quoteKey(q.TokenID), payload, qc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %d: %w", q.TokenID, err)
	}
	return nil
}

// Get returns the cached quote for id; a miss surfaces as an error the
// caller treats as "re-quote".
func (qc *QuoteCache) Get(ctx context.Context, id domain.TokenID) (domain.Quote, error) {
	raw, err := qc.rdb.Get(ctx, quoteKey(id)).Bytes()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %d: %w", id, err)
	}

	var c cachedQuote
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: unmarshal quote %d: %w", id, err)
	}
	wei, ok := new(big.Int).SetString(c.SettlementWei, 10)
	if !ok {
		return domain.Quote{}, fmt.Errorf("redis: malformed wei %q for quote %d", c.SettlementWei, id)
	}

	return domain.Quote{
		TokenID:       domain.TokenID(c.TokenID),
		FiatCents:     domain.USDCents(c.FiatCents),
		SettlementWei: wei,
		RateUpdatedAt: time.Unix(0, c.RateUpdatedAt),
		QuotedAt:      time.Unix(0, c.QuotedAt),
	}, nil
}

// Invalidate drops the cached quote for id.
func (qc *QuoteCache) Invalidate(ctx context.Context, id domain.TokenID) error {
	if err := qc.rdb.Del(ctx, quoteKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate quote %d: %w", id, err)
	}
	return nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
