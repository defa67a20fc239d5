// Package memory keeps listings, bids, events and points in process memory.
// Every conditional update runs under one mutex, which gives the same
// compare-on-version semantics as the MySQL repositories.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"waste-auction/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	listings map[string]*domain.Listing
	bids     map[string][]*domain.Bid
	events   map[string][]*domain.ListingEvent
}

func NewStore() *Store {
	return &Store{
		listings: make(map[string]*domain.Listing),
		bids:     make(map[string][]*domain.Bid),
		events:   make(map[string][]*domain.ListingEvent),
	}
}

func (s *Store) CreateListing(ctx context.Context, listing *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.listings[listing.ID]; exists {
		return fmt.Errorf("listing %s already exists", listing.ID)
	}
	listing.Version = 1
	s.listings[listing.ID] = listing.Clone()
	return nil
}

func (s *Store) GetListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[listingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return listing.Clone(), nil
}

func (s *Store) UpdateListing(ctx context.Context, listing *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.compareAndSwapLocked(listing)
}

func (s *Store) compareAndSwapLocked(listing *domain.Listing) error {
	stored, ok := s.listings[listing.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != listing.Version {
		return domain.ErrConcurrencyConflict
	}
	if stored.Status != listing.Status && !stored.Status.CanTransitionTo(listing.Status) {
		return fmt.Errorf("illegal status change %s -> %s", stored.Status, listing.Status)
	}

	listing.Version++
	s.listings[listing.ID] = listing.Clone()
	return nil
}

func (s *Store) GetExpiredActiveListings(ctx context.Context, now time.Time, limit int) ([]*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*domain.Listing
	for _, listing := range s.listings {
		if listing.Status == domain.ListingActive && listing.Expired(now) {
			expired = append(expired, listing.Clone())
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].EndTime.Before(expired[j].EndTime)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *Store) AppendBid(ctx context.Context, listing *domain.Listing, bid *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.listings[listing.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.ListingActive {
		return domain.ErrConcurrencyConflict
	}
	if err := s.compareAndSwapLocked(listing); err != nil {
		return err
	}

	b := *bid
	s.bids[listing.ID] = append(s.bids[listing.ID], &b)
	return nil
}

func (s *Store) GetBids(ctx context.Context, listingID string) ([]*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids := make([]*domain.Bid, 0, len(s.bids[listingID]))
	for _, bid := range s.bids[listingID] {
		b := *bid
		bids = append(bids, &b)
	}
	return bids, nil
}

func (s *Store) GetHighestBid(ctx context.Context, listingID string) (*domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest *domain.Bid
	for _, bid := range s.bids[listingID] {
		if highest == nil || bid.Amount > highest.Amount {
			highest = bid
		}
	}
	if highest == nil {
		return nil, nil
	}
	b := *highest
	return &b, nil
}

func (s *Store) SaveEvent(ctx context.Context, event *domain.ListingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	s.events[event.ListingID] = append(s.events[event.ListingID], &e)
	return nil
}

func (s *Store) GetEvents(ctx context.Context, listingID string) ([]*domain.ListingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*domain.ListingEvent, 0, len(s.events[listingID]))
	for _, event := range s.events[listingID] {
		e := *event
		events = append(events, &e)
	}
	return events, nil
}
