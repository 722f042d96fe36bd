package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage. Used by the purchase-history
// archiver; nothing on the trading path depends on it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
