package services

import (
	"context"
	"strings"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"
	"waste-auction/pkg/utils"
)

const (
	MinDuration = time.Minute
	MaxDuration = 30 * 24 * time.Hour
)

type CreateListingInput struct {
	SellerID    string
	Title       string
	Category    string
	Description string
	WeightKg    float64
	BasePrice   int64
	Duration    time.Duration
}

func (in CreateListingInput) Validate() error {
	if strings.TrimSpace(in.SellerID) == "" {
		return domain.NewValidationError("seller_id", "required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.NewValidationError("title", "required")
	}
	if in.BasePrice <= 0 {
		return domain.NewValidationError("base_price", "must be positive")
	}
	if in.WeightKg < 0 {
		return domain.NewValidationError("weight_kg", "must not be negative")
	}
	if in.Duration < MinDuration || in.Duration > MaxDuration {
		return domain.NewValidationError("duration_minutes", "must be between 1 minute and 30 days")
	}
	return nil
}

// AuctionManager owns the seller-facing lifecycle: create, read (with lazy
// expiry), early close and cancel.
type AuctionManager struct {
	listings    domain.ListingRepository
	ledger      domain.BidLedger
	finalizer   *Finalizer
	events      *EventDispatcher
	clock       domain.Clock
	maxAttempts int
	log         logger.Logger
}

func NewAuctionManager(
	listings domain.ListingRepository,
	ledger domain.BidLedger,
	finalizer *Finalizer,
	events *EventDispatcher,
	clock domain.Clock,
	maxAttempts int,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		listings:    listings,
		ledger:      ledger,
		finalizer:   finalizer,
		events:      events,
		clock:       clock,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

func (am *AuctionManager) CreateListing(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := am.clock.Now()
	listing := &domain.Listing{
		ID:           utils.GenerateID("listing"),
		SellerID:     in.SellerID,
		Title:        in.Title,
		Category:     in.Category,
		Description:  in.Description,
		WeightKg:     in.WeightKg,
		BasePrice:    in.BasePrice,
		CurrentPrice: in.BasePrice,
		EndTime:      now.Add(in.Duration),
		Status:       domain.ListingActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := am.listings.CreateListing(ctx, listing); err != nil {
		am.log.Error("Failed to create listing", "seller_id", in.SellerID, "error", err)
		return nil, err
	}

	am.log.Info("Listing created", "listing_id", listing.ID, "seller_id", listing.SellerID,
		"base_price", listing.BasePrice, "end_time", listing.EndTime)
	return listing, nil
}

// GetListing returns the listing, finalizing it first when it is still
// ACTIVE past its end time. If that finalization fails the stored record
// is returned and the next read tries again.
func (am *AuctionManager) GetListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	listing, err := am.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Status != domain.ListingActive || !listing.Expired(am.clock.Now()) {
		return listing, nil
	}

	result, err := am.finalizer.Finalize(ctx, listingID, false)
	if err != nil {
		am.log.Warn("Lazy finalization failed", "listing_id", listingID, "error", err)
		return listing, nil
	}
	return result.Listing, nil
}

func (am *AuctionManager) ListBids(ctx context.Context, listingID string) ([]*domain.Bid, error) {
	if _, err := am.listings.GetListing(ctx, listingID); err != nil {
		return nil, err
	}
	return am.ledger.GetBids(ctx, listingID)
}

// CloseEarly ends bidding now on the seller's request. A listing without
// bids has to be cancelled instead.
func (am *AuctionManager) CloseEarly(ctx context.Context, listingID, actorID string) (*domain.Listing, error) {
	listing, err := am.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.SellerID != actorID {
		return nil, domain.ErrForbidden
	}
	if listing.Status != domain.ListingActive || listing.Expired(am.clock.Now()) {
		return nil, domain.ErrAuctionClosed
	}
	// Bids are never removed, so this stays true up to the status commit.
	if listing.BidCount == 0 {
		return nil, domain.ErrNoBids
	}

	result, err := am.finalizer.Finalize(ctx, listingID, true)
	if err != nil {
		return nil, err
	}

	if result.Listing.Status != domain.ListingEnded {
		return nil, domain.ErrAuctionClosed
	}
	return result.Listing, nil
}

func (am *AuctionManager) CancelListing(ctx context.Context, listingID, actorID string) (*domain.Listing, error) {
	var cancelled *domain.Listing

	err := withConflictRetry(ctx, am.maxAttempts, func() error {
		listing, err := am.GetListing(ctx, listingID)
		if err != nil {
			return err
		}

		now := am.clock.Now()
		if listing.SellerID != actorID {
			return domain.ErrForbidden
		}
		if listing.Status != domain.ListingActive || listing.Expired(now) {
			return domain.ErrAuctionClosed
		}
		if listing.BidCount > 0 {
			return domain.ErrHasBids
		}

		next := listing.Clone()
		next.Status = domain.ListingCancelled
		next.UpdatedAt = now

		// Loses to a concurrent bid or finalize; the retry then reports
		// HasBids or AuctionClosed.
		if err := am.listings.UpdateListing(ctx, next); err != nil {
			return err
		}

		cancelled = next
		return nil
	})
	if err != nil {
		am.log.Info("Cancel rejected", "listing_id", listingID, "user_id", actorID, "reason", err)
		return nil, err
	}

	am.log.Info("Listing cancelled", "listing_id", listingID)
	am.events.Dispatch(newEvent(domain.EventListingCancelled, cancelled, actorID, 0, cancelled.UpdatedAt))
	return cancelled, nil
}
