package domain

import (
	"context"
	"time"
)

// Repository interfaces
type ListingRepository interface {
	CreateListing(ctx context.Context, listing *Listing) error
	// GetListing returns ErrNotFound for unknown ids.
	GetListing(ctx context.Context, listingID string) (*Listing, error)
	// UpdateListing persists listing only if the stored version still equals
	// listing.Version, and bumps listing.Version on success. A stale version
	// yields ErrConcurrencyConflict.
	UpdateListing(ctx context.Context, listing *Listing) error
	GetExpiredActiveListings(ctx context.Context, now time.Time, limit int) ([]*Listing, error)
}

type BidLedger interface {
	// AppendBid stores bid and listing's new price in one conditional unit,
	// guarded the same way as UpdateListing.
	AppendBid(ctx context.Context, listing *Listing, bid *Bid) error
	GetBids(ctx context.Context, listingID string) ([]*Bid, error)
	// GetHighestBid returns nil, nil when the ledger is empty.
	GetHighestBid(ctx context.Context, listingID string) (*Bid, error)
}

type PointsLedger interface {
	// Credit applies credit once per (ListingID, Role). applied is false when
	// the key was already present.
	Credit(ctx context.Context, credit *PointsCredit) (applied bool, err error)
	Balance(ctx context.Context, userID string) (int64, error)
}

type EventArchive interface {
	SaveEvent(ctx context.Context, event *ListingEvent) error
	GetEvents(ctx context.Context, listingID string) ([]*ListingEvent, error)
}

// Event interfaces
type Notifier interface {
	Publish(ctx context.Context, event *ListingEvent) error
}

type EventSubscriber interface {
	SubscribeToListingEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *ListingEvent) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

type ExpirySweeper interface {
	Start(ctx context.Context) error
	Stop() error
	SweepOnce(ctx context.Context) (int, error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
