package services

import (
	"context"
	"errors"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"
	"waste-auction/pkg/utils"
)

type PlaceBidResult struct {
	Bid     *domain.Bid
	Listing *domain.Listing
}

type BidService struct {
	listings    domain.ListingRepository
	ledger      domain.BidLedger
	validator   *BidValidator
	finalizer   *Finalizer
	events      *EventDispatcher
	clock       domain.Clock
	maxAttempts int
	log         logger.Logger
}

func NewBidService(
	listings domain.ListingRepository,
	ledger domain.BidLedger,
	validator *BidValidator,
	finalizer *Finalizer,
	events *EventDispatcher,
	clock domain.Clock,
	maxAttempts int,
	log logger.Logger,
) *BidService {
	return &BidService{
		listings:    listings,
		ledger:      ledger,
		validator:   validator,
		finalizer:   finalizer,
		events:      events,
		clock:       clock,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// PlaceBid admits a bid if it clears the listing's minimum at commit time.
// A bid that loses the conditional update is re-validated against the
// fresh listing, so it ends either admitted or rejected with the new
// minimum.
func (s *BidService) PlaceBid(ctx context.Context, listingID, bidderID string, amount int64) (*PlaceBidResult, error) {
	s.log.Info("Placing bid", "listing_id", listingID, "user_id", bidderID, "amount", amount)

	if amount <= 0 {
		return nil, domain.NewValidationError("amount", "must be positive")
	}

	var result *PlaceBidResult
	err := withConflictRetry(ctx, s.maxAttempts, func() error {
		listing, err := s.listings.GetListing(ctx, listingID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.validator.Validate(listing, bidderID, amount, now); err != nil {
			return err
		}

		bid := &domain.Bid{
			ID:        utils.GenerateID("bid"),
			ListingID: listingID,
			BidderID:  bidderID,
			Amount:    amount,
			Seq:       listing.BidCount + 1,
			CreatedAt: now,
		}

		next := listing.Clone()
		next.CurrentPrice = amount
		next.BidCount = bid.Seq
		next.UpdatedAt = now

		if err := s.ledger.AppendBid(ctx, next, bid); err != nil {
			return err
		}

		result = &PlaceBidResult{Bid: bid, Listing: next}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAuctionClosed):
		s.finalizeIfExpired(ctx, listingID)
		return nil, err
	case errors.Is(err, domain.ErrConcurrencyConflict):
		s.log.Warn("Bid retries exhausted", "listing_id", listingID, "user_id", bidderID, "amount", amount)
		return nil, err
	default:
		s.log.Info("Bid rejected", "listing_id", listingID, "user_id", bidderID, "amount", amount, "reason", err)
		return nil, err
	}

	s.log.Info("Bid accepted", "listing_id", listingID, "user_id", bidderID,
		"amount", amount, "seq", result.Bid.Seq)
	s.events.Dispatch(newEvent(domain.EventBidPlaced, result.Listing, bidderID, amount, result.Bid.CreatedAt))

	return result, nil
}

// finalizeIfExpired lets a rejected bid act as the read that notices expiry.
func (s *BidService) finalizeIfExpired(ctx context.Context, listingID string) {
	if _, err := s.finalizer.Finalize(ctx, listingID, false); err != nil {
		s.log.Warn("Lazy finalization after closed bid failed", "listing_id", listingID, "error", err)
	}
}

func (s *BidService) GetMinimumBid(listing *domain.Listing) int64 {
	return s.validator.GetMinimumBid(listing)
}
