package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/collect9/c9market/internal/domain"
)

// StateStore implements domain.StateStore in process memory.
type StateStore struct {
	mu      sync.RWMutex
	minWei  *big.Int
	balance *big.Int
}

// NewStateStore creates a StateStore with the given minimum settlement price.
// A nil minimum means no price floor.
func NewStateStore(minimumWei *big.Int) *StateStore {
	min := big.NewInt(0)
	if minimumWei != nil {
		min = new(big.Int).Set(minimumWei)
	}
	return &StateStore{
		minWei:  min,
		balance: big.NewInt(0),
	}
}

// MinimumPrice returns the minimum settlement price in wei.
func (s *StateStore) MinimumPrice(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.minWei), nil
}

// SetMinimumPrice replaces the minimum settlement price.
func (s *StateStore) SetMinimumPrice(_ context.Context, wei *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minWei = new(big.Int).Set(wei)
	return nil
}

// Balance returns the accrued contract balance in wei.
func (s *StateStore) Balance(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.balance), nil
}

// AddBalance adjusts the accrued balance by delta, rejecting adjustments
// that would take it below zero.
func (s *StateStore) AddBalance(_ context.Context, delta *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := new(big.Int).Add(s.balance, delta)
	if next.Sign() < 0 {
		return domain.ErrInsufficientBalance
	}
	s.balance = next
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
