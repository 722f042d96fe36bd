package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to recently computed quotes on the
// read-only price path. Purchases never consult it.
type QuoteCache interface {
	Set(ctx context.Context, q Quote) error
	Get(ctx context.Context, id TokenID) (Quote, error)
	Invalidate(ctx context.Context, id TokenID) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for market events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
