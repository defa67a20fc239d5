package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/internal/infrastructure/memory"
	"waste-auction/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.ListingEvent
}

func (n *recordingNotifier) Publish(ctx context.Context, event *domain.ListingEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	e := *event
	n.events = append(n.events, &e)
	return nil
}

func (n *recordingNotifier) Events() []*domain.ListingEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.ListingEvent(nil), n.events...)
}

func (n *recordingNotifier) ByType(eventType domain.ListingEventType) []*domain.ListingEvent {
	var out []*domain.ListingEvent
	for _, e := range n.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	store      *memory.Store
	points     *memory.PointsLedger
	clock      *fakeClock
	notifier   *recordingNotifier
	events     *EventDispatcher
	finalizer  *Finalizer
	bids       *BidService
	manager    *AuctionManager
	settlement *SettlementService
}

func newTestEnv(t *testing.T, maxAttempts int) *testEnv {
	t.Helper()

	log := logger.NewNop()
	env := &testEnv{
		store:    memory.NewStore(),
		points:   memory.NewPointsLedger(),
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
	}
	env.events = NewEventDispatcher(env.notifier, 1024, time.Second, log)
	env.finalizer = NewFinalizer(env.store, env.store, env.events, env.clock, maxAttempts, log)
	env.bids = NewBidService(env.store, env.store, NewBidValidator(domain.DefaultMinIncrement),
		env.finalizer, env.events, env.clock, maxAttempts, log)
	env.manager = NewAuctionManager(env.store, env.store, env.finalizer, env.events, env.clock, maxAttempts, log)
	env.settlement = NewSettlementService(env.store, env.points, env.events, env.clock,
		domain.SellerReward, domain.BuyerReward, maxAttempts, log)

	t.Cleanup(env.events.Close)
	return env
}

// flushEvents waits until every dispatched event reached the notifier.
func (env *testEnv) flushEvents() {
	env.events.Close()
}

func (env *testEnv) createListing(t *testing.T, basePrice int64, duration time.Duration) *domain.Listing {
	t.Helper()

	listing, err := env.manager.CreateListing(context.Background(), CreateListingInput{
		SellerID:  "seller-1",
		Title:     "Cardboard bales",
		Category:  "paper",
		WeightKg:  120,
		BasePrice: basePrice,
		Duration:  duration,
	})
	require.NoError(t, err)
	return listing
}

func (env *testEnv) endWithWinner(t *testing.T, bidderID string, amount int64) *domain.Listing {
	t.Helper()
	ctx := context.Background()

	listing := env.createListing(t, 100, time.Hour)
	_, err := env.bids.PlaceBid(ctx, listing.ID, bidderID, amount)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	ended, err := env.manager.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ListingEnded, ended.Status)
	return ended
}
