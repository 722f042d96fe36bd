package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collect9/c9market/internal/domain"
)

// uniqueViolation is the PostgreSQL error code raised on duplicate keys.
const uniqueViolation = "23505"

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Create inserts a new listing; a duplicate token id maps to ErrAlreadyListed.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (token_id, floor_cents, ceiling_cents, listed_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query,
		int64(l.TokenID), int64(l.FloorCents), int64(l.CeilingCents), l.ListedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyListed
		}
		return fmt.Errorf("postgres: create listing %d: %w", l.TokenID, err)
	}
	return nil
}

// Update overwrites an existing listing; an absent token maps to ErrNotListed.
func (s *ListingStore) Update(ctx context.Context, l domain.Listing) error {
	const query = `
		UPDATE listings
		SET floor_cents = $2, ceiling_cents = $3, listed_at = $4
		WHERE token_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(l.TokenID), int64(l.FloorCents), int64(l.CeilingCents), l.ListedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update listing %d: %w", l.TokenID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotListed
	}
	return nil
}

// Get returns the listing for id, or ErrNotListed.
func (s *ListingStore) Get(ctx context.Context, id domain.TokenID) (domain.Listing, error) {
	const query = `
		SELECT token_id, floor_cents, ceiling_cents, listed_at
		FROM listings
		WHERE token_id = $1`

	var l domain.Listing
	var tokenID, floor, ceiling int64
	err := s.pool.QueryRow(ctx, query, int64(id)).
		Scan(&tokenID, &floor, &ceiling, &l.ListedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotListed
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	l.TokenID = domain.TokenID(tokenID)
	l.FloorCents = domain.USDCents(floor)
	l.CeilingCents = domain.USDCents(ceiling)
	return l, nil
}

// Delete removes the listing for id, or fails with ErrNotListed.
func (s *ListingStore) Delete(ctx context.Context, id domain.TokenID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE token_id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("postgres: delete listing %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotListed
	}
	return nil
}

// List returns all listings ordered by token id.
func (s *ListingStore) List(ctx context.Context) ([]domain.Listing, error) {
	const query = `
		SELECT token_id, floor_cents, ceiling_cents, listed_at
		FROM listings
		ORDER BY token_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var l domain.Listing
		var tokenID, floor, ceiling int64
		if err := rows.Scan(&tokenID, &floor, &ceiling, &l.ListedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		l.TokenID = domain.TokenID(tokenID)
		l.FloorCents = domain.USDCents(floor)
		l.CeilingCents = domain.USDCents(ceiling)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate listings: %w", err)
	}
	return out, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
