// Package memory implements the domain store interfaces with in-process
// maps. It backs the standalone (database-less) mode and the test suite.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/collect9/c9market/internal/domain"
)

// ListingStore implements domain.ListingStore over a mutex-guarded map.
type ListingStore struct {
	mu       sync.RWMutex
	listings map[domain.TokenID]domain.Listing
}

// NewListingStore creates an empty ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{
		listings: make(map[domain.TokenID]domain.Listing),
	}
}

// Create inserts a new listing, failing with ErrAlreadyListed when the token
// is already present.
func (s *ListingStore) Create(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.TokenID]; ok {
		return domain.ErrAlreadyListed
	}
	s.listings[l.TokenID] = l
	return nil
}

// Update overwrites an existing listing, failing with ErrNotListed when the
// token is absent.
func (s *ListingStore) Update(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.TokenID]; !ok {
		return domain.ErrNotListed
	}
	s.listings[l.TokenID] = l
	return nil
}

// Get returns the listing for id or ErrNotListed.
func (s *ListingStore) Get(_ context.Context, id domain.TokenID) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotListed
	}
	return l, nil
}

// Delete removes the listing for id or fails with ErrNotListed.
func (s *ListingStore) Delete(_ context.Context, id domain.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return domain.ErrNotListed
	}
	delete(s.listings, id)
	return nil
}

// List returns all listings ordered by token id.
func (s *ListingStore) List(_ context.Context) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
