package domain

import (
	"time"
)

const (
	// DefaultMinIncrement is added to the current price of a listing that
	// already has bids to get the next acceptable amount.
	DefaultMinIncrement int64 = 5

	SellerReward int64 = 30
	BuyerReward  int64 = 20
)

type Listing struct {
	ID          string
	SellerID    string
	Title       string
	Category    string
	Description string
	WeightKg    float64

	BasePrice    int64
	CurrentPrice int64
	BidCount     int
	EndTime      time.Time
	Status       ListingStatus

	WinnerID               string
	VerificationCredential string
	EndedAt                *time.Time
	VerifiedAt             *time.Time
	CompletedAt            *time.Time

	// Version is bumped by every committed mutation and is the compare
	// field for conditional updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MinimumBid returns the lowest amount the next bid must reach.
func (l *Listing) MinimumBid(increment int64) int64 {
	if l.BidCount == 0 {
		return l.BasePrice
	}
	return l.CurrentPrice + increment
}

// Expired reports whether bidding time is over at now.
func (l *Listing) Expired(now time.Time) bool {
	return !now.Before(l.EndTime)
}

func (l *Listing) HasWinner() bool {
	return l.WinnerID != ""
}

// Clone returns a deep copy so callers can mutate a working copy
// without touching the stored record.
func (l *Listing) Clone() *Listing {
	c := *l
	c.EndedAt = cloneTime(l.EndedAt)
	c.VerifiedAt = cloneTime(l.VerifiedAt)
	c.CompletedAt = cloneTime(l.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type ListingStatus int

const (
	ListingActive ListingStatus = iota
	ListingEnded
	ListingCompleted
	ListingCancelled
)

func (s ListingStatus) String() string {
	switch s {
	case ListingActive:
		return "ACTIVE"
	case ListingEnded:
		return "ENDED"
	case ListingCompleted:
		return "COMPLETED"
	case ListingCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// CanTransitionTo reports whether next is a legal edge from s.
func (s ListingStatus) CanTransitionTo(next ListingStatus) bool {
	switch s {
	case ListingActive:
		return next == ListingEnded || next == ListingCancelled
	case ListingEnded:
		return next == ListingCompleted
	default:
		return false
	}
}

type Bid struct {
	ID        string
	ListingID string
	BidderID  string
	Amount    int64
	// Seq is the 1-based position of the bid in the listing's ledger.
	Seq       int
	CreatedAt time.Time
}

type ListingEvent struct {
	ID        string           `json:"id"`
	Type      ListingEventType `json:"type"`
	ListingID string           `json:"listing_id"`
	SellerID  string           `json:"seller_id,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	Amount    int64            `json:"amount,omitempty"`
	// Credential is only populated on PickupCredentialIssued and is meant
	// for out-of-band delivery to UserID.
	Credential string    `json:"credential,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ListingEventType string

const (
	EventBidPlaced              ListingEventType = "bid_placed"
	EventAuctionEnded           ListingEventType = "auction_ended"
	EventPickupCredentialIssued ListingEventType = "pickup_credential_issued"
	EventListingCancelled       ListingEventType = "listing_cancelled"
	EventSettlementCompleted    ListingEventType = "settlement_completed"
)

type PointsRole string

const (
	RoleSeller PointsRole = "seller"
	RoleBuyer  PointsRole = "buyer"
)

// PointsCredit is keyed by (ListingID, Role); applying the same key twice
// must not change any balance.
type PointsCredit struct {
	ListingID string
	Role      PointsRole
	UserID    string
	Amount    int64
	CreatedAt time.Time
}
