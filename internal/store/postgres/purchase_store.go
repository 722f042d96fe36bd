package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collect9/c9market/internal/domain"
)

// PurchaseStore implements domain.PurchaseStore using PostgreSQL. Settlement
// amounts are stored as NUMERIC(78,0) and travel through the driver as
// strings to keep full wei precision.
type PurchaseStore struct {
	pool *pgxpool.Pool
}

// NewPurchaseStore creates a PurchaseStore backed by the given pool.
func NewPurchaseStore(pool *pgxpool.Pool) *PurchaseStore {
	return &PurchaseStore{pool: pool}
}

// Insert appends one purchase record.
func (s *PurchaseStore) Insert(ctx context.Context, p domain.Purchase) error {
	const query = `
		INSERT INTO purchases (id, buyer, counterparty, token_id, fiat_cents, settlement_wei, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Buyer.Hex(), p.Counterparty.Hex(),
		int64(p.TokenID), int64(p.FiatCents),
		p.SettlementWei.String(), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert purchase %s: %w", p.ID, err)
	}
	return nil
}

// ListRecent returns the most recent purchases, newest first.
func (s *PurchaseStore) ListRecent(ctx context.Context, limit int) ([]domain.Purchase, error) {
	const query = `
		SELECT id, buyer, counterparty, token_id, fiat_cents, settlement_wei::text, created_at
		FROM purchases
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent purchases: %w", err)
	}
	defer rows.Close()
	return scanPurchases(rows)
}

// ListBefore returns purchases created strictly before the cutoff, used by
// the archiver.
func (s *PurchaseStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Purchase, error) {
	const query = `
		SELECT id, buyer, counterparty, token_id, fiat_cents, settlement_wei::text, created_at
		FROM purchases
		WHERE created_at < $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list purchases before %s: %w", before, err)
	}
	defer rows.Close()
	return scanPurchases(rows)
}

// DeleteBefore prunes purchases created strictly before the cutoff and
// reports how many rows went away.
func (s *PurchaseStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM purchases WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete purchases before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

type purchaseRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPurchases(rows purchaseRows) ([]domain.Purchase, error) {
	var out []domain.Purchase
	for rows.Next() {
		var p domain.Purchase
		var buyer, counterparty, wei string
		var tokenID, cents int64
		if err := rows.Scan(&p.ID, &buyer, &counterparty, &tokenID, &cents, &wei, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan purchase: %w", err)
		}
		p.Buyer = common.HexToAddress(buyer)
		p.Counterparty = common.HexToAddress(counterparty)
		p.TokenID = domain.TokenID(tokenID)
		p.FiatCents = domain.USDCents(cents)
		amount, ok := new(big.Int).SetString(wei, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: malformed settlement amount %q", wei)
		}
		p.SettlementWei = amount
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate purchases: %w", err)
	}
	return out, nil
}

var _ domain.PurchaseStore = (*PurchaseStore)(nil)
