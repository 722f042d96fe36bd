package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collect9/c9market/internal/domain"
)

// StateStore implements domain.StateStore over the single-row market_state
// table. Balance adjustments run in a transaction with a row lock so
// concurrent replicas cannot interleave a read-modify-write.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore backed by the given pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// MinimumPrice returns the minimum settlement price in wei.
func (s *StateStore) MinimumPrice(ctx context.Context) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT min_settlement_wei::text FROM market_state WHERE id = 1`,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("postgres: minimum price: %w", err)
	}
	return parseWei(raw)
}

// SetMinimumPrice replaces the minimum settlement price.
func (s *StateStore) SetMinimumPrice(ctx context.Context, wei *big.Int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE market_state SET min_settlement_wei = $1::numeric, updated_at = NOW() WHERE id = 1`,
		wei.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: set minimum price: %w", err)
	}
	return nil
}

// Balance returns the accrued contract balance in wei.
func (s *StateStore) Balance(ctx context.Context) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT accrued_wei::text FROM market_state WHERE id = 1`,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("postgres: balance: %w", err)
	}
	return parseWei(raw)
}

// AddBalance adjusts the accrued balance by delta under a row lock,
// rejecting adjustments that would take it below zero.
func (s *StateStore) AddBalance(ctx context.Context, delta *big.Int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: add balance: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var raw string
	err = tx.QueryRow(ctx,
		`SELECT accrued_wei::text FROM market_state WHERE id = 1 FOR UPDATE`,
	).Scan(&raw)
	if err != nil {
		return fmt.Errorf("postgres: add balance: read: %w", err)
	}
	balance, err := parseWei(raw)
	if err != nil {
		return err
	}

	next := new(big.Int).Add(balance, delta)
	if next.Sign() < 0 {
		return domain.ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE market_state SET accrued_wei = $1::numeric, updated_at = NOW() WHERE id = 1`,
		next.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: add balance: write: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: add balance: commit: %w", err)
	}
	return nil
}

func parseWei(raw string) (*big.Int, error) {
	wei, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed wei amount %q", raw)
	}
	return wei, nil
}

var _ domain.StateStore = (*StateStore)(nil)
