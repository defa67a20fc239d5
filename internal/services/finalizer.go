package services

import (
	"context"
	"fmt"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"
)

type FinalizeResult struct {
	Listing *domain.Listing
	// Transitioned is true only for the caller whose ACTIVE -> ENDED update
	// committed. Everyone else got a no-op.
	Transitioned bool
}

// Finalizer closes bidding on a listing and picks the winner. It is called
// lazily by readers, by the seller's early close, and by the expiry sweep;
// the conditional status update makes concurrent calls safe.
type Finalizer struct {
	listings    domain.ListingRepository
	ledger      domain.BidLedger
	events      *EventDispatcher
	clock       domain.Clock
	maxAttempts int
	log         logger.Logger
}

func NewFinalizer(
	listings domain.ListingRepository,
	ledger domain.BidLedger,
	events *EventDispatcher,
	clock domain.Clock,
	maxAttempts int,
	log logger.Logger,
) *Finalizer {
	return &Finalizer{
		listings:    listings,
		ledger:      ledger,
		events:      events,
		clock:       clock,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

func (f *Finalizer) Finalize(ctx context.Context, listingID string, manual bool) (*FinalizeResult, error) {
	var result *FinalizeResult

	err := withConflictRetry(ctx, f.maxAttempts, func() error {
		listing, err := f.listings.GetListing(ctx, listingID)
		if err != nil {
			return err
		}

		now := f.clock.Now()
		if listing.Status != domain.ListingActive || (!manual && !listing.Expired(now)) {
			result = &FinalizeResult{Listing: listing}
			return nil
		}

		highest, err := f.ledger.GetHighestBid(ctx, listingID)
		if err != nil {
			return fmt.Errorf("read bid ledger: %w", err)
		}

		next := listing.Clone()
		next.Status = domain.ListingEnded
		next.EndedAt = &now
		next.UpdatedAt = now
		if highest != nil {
			credential, err := NewCredential()
			if err != nil {
				return err
			}
			next.WinnerID = highest.BidderID
			next.CurrentPrice = highest.Amount
			next.VerificationCredential = credential
		}

		// A conflict here means either a bid landed after the ledger read
		// (retry with the new ledger) or another finalizer won (the retry
		// sees status != ACTIVE and no-ops).
		if err := f.listings.UpdateListing(ctx, next); err != nil {
			return err
		}

		result = &FinalizeResult{Listing: next, Transitioned: true}
		return nil
	})
	if err != nil {
		f.log.Error("Failed to finalize listing", "listing_id", listingID, "manual", manual, "error", err)
		return nil, err
	}

	if result.Transitioned {
		f.publishEnded(result.Listing, manual)
	}
	return result, nil
}

func (f *Finalizer) publishEnded(listing *domain.Listing, manual bool) {
	now := f.clock.Now()
	f.log.Info("Listing ended", "listing_id", listing.ID, "manual", manual,
		"winner_id", listing.WinnerID, "final_price", listing.CurrentPrice)

	if !listing.HasWinner() {
		f.events.Dispatch(newEvent(domain.EventAuctionEnded, listing, "", 0, now))
		return
	}

	f.events.Dispatch(newEvent(domain.EventAuctionEnded, listing, listing.WinnerID, listing.CurrentPrice, now))

	issued := newEvent(domain.EventPickupCredentialIssued, listing, listing.WinnerID, listing.CurrentPrice, now)
	issued.Credential = listing.VerificationCredential
	f.events.Dispatch(issued)
}
