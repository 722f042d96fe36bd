package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/collect9/c9market/internal/domain"
)

// Archiver exports aged purchase records to object storage as JSONL and then
// prunes them from the primary store. The upload happens first; rows are
// only deleted once the archive object exists.
type Archiver struct {
	writer    domain.BlobWriter
	purchases domain.PurchaseStore
	logger    *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and store.
func NewArchiver(writer domain.BlobWriter, purchases domain.PurchaseStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		purchases: purchases,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// archivedPurchase is the JSONL record shape.
type archivedPurchase struct {
	ID            string    `json:"id"`
	Buyer         string    `json:"buyer"`
	Counterparty  string    `json:"counterparty"`
	TokenID       uint64    `json:"token_id"`
	FiatCents     int64     `json:"fiat_cents"`
	SettlementWei string    `json:"settlement_wei"`
	CreatedAt     time.Time `json:"created_at"`
}

// ArchiveBefore archives every purchase created strictly before the cutoff
// and deletes the archived rows. It returns the number of records archived.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	purchases, err := a.purchases.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive: list purchases: %w", err)
	}
	if len(purchases) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range purchases {
		rec := archivedPurchase{
			ID:            p.ID,
			Buyer:         p.Buyer.Hex(),
			Counterparty:  p.Counterparty.Hex(),
			TokenID:       uint64(p.TokenID),
			FiatCents:     int64(p.FiatCents),
			SettlementWei: p.SettlementWei.String(),
			CreatedAt:     p.CreatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: archive: encode purchase %s: %w", p.ID, err)
		}
	}

	path := fmt.Sprintf("purchases/%s.jsonl", cutoff.UTC().Format("2006-01-02T150405Z"))
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive: upload: %w", err)
	}

	deleted, err := a.purchases.DeleteBefore(ctx, cutoff)
	if err != nil {
		// The archive exists but the rows remain; the next run re-archives
		// them into a new object, which is harmless duplication.
		return len(purchases), fmt.Errorf("s3blob: archive: prune: %w", err)
	}

	a.logger.Info("purchase history archived",
		slog.String("path", path),
		slog.Int("archived", len(purchases)),
		slog.Int64("pruned", deleted),
	)
	return len(purchases), nil
}
