package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/collect9/c9market/internal/domain"
)

// PurchaseStore implements domain.PurchaseStore over an in-process slice.
type PurchaseStore struct {
	mu        sync.RWMutex
	purchases []domain.Purchase
}

// NewPurchaseStore creates an empty PurchaseStore.
func NewPurchaseStore() *PurchaseStore {
	return &PurchaseStore{}
}

// Insert appends a purchase record.
func (s *PurchaseStore) Insert(_ context.Context, p domain.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.SettlementWei != nil {
		p.SettlementWei = new(big.Int).Set(p.SettlementWei)
	}
	s.purchases = append(s.purchases, p)
	return nil
}

// ListRecent returns up to limit purchases, newest first.
func (s *PurchaseStore) ListRecent(_ context.Context, limit int) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Purchase, len(s.purchases))
	copy(out, s.purchases)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBefore returns purchases created strictly before the cutoff, oldest
// first.
func (s *PurchaseStore) ListBefore(_ context.Context, before time.Time) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Purchase
	for _, p := range s.purchases {
		if p.CreatedAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteBefore removes purchases created strictly before the cutoff and
// returns how many were dropped.
func (s *PurchaseStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.purchases[:0]
	var dropped int64
	for _, p := range s.purchases {
		if p.CreatedAt.Before(before) {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	s.purchases = kept
	return dropped, nil
}

var _ domain.PurchaseStore = (*PurchaseStore)(nil)
