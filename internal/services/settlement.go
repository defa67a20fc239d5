package services

import (
	"context"
	"fmt"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"
)

type SettlementService struct {
	listings     domain.ListingRepository
	points       domain.PointsLedger
	events       *EventDispatcher
	clock        domain.Clock
	sellerReward int64
	buyerReward  int64
	maxAttempts  int
	log          logger.Logger
}

func NewSettlementService(
	listings domain.ListingRepository,
	points domain.PointsLedger,
	events *EventDispatcher,
	clock domain.Clock,
	sellerReward, buyerReward int64,
	maxAttempts int,
	log logger.Logger,
) *SettlementService {
	if sellerReward <= 0 {
		sellerReward = domain.SellerReward
	}
	if buyerReward <= 0 {
		buyerReward = domain.BuyerReward
	}
	return &SettlementService{
		listings:     listings,
		points:       points,
		events:       events,
		clock:        clock,
		sellerReward: sellerReward,
		buyerReward:  buyerReward,
		maxAttempts:  maxAttempts,
		log:          log,
	}
}

// Redeem settles a listing when its seller presents the winner's pickup
// credential. Points are credited before the status commit; both credits are
// keyed by listing so a retry or a racing redeem cannot award twice.
func (s *SettlementService) Redeem(ctx context.Context, listingID, actorID, credential string) (*domain.Listing, error) {
	s.log.Info("Redeeming credential", "listing_id", listingID, "user_id", actorID)

	var settled *domain.Listing
	err := withConflictRetry(ctx, s.maxAttempts, func() error {
		listing, err := s.listings.GetListing(ctx, listingID)
		if err != nil {
			return err
		}

		if err := checkRedeemable(listing, actorID, credential); err != nil {
			return err
		}

		if _, err := s.creditParties(ctx, listing); err != nil {
			return err
		}

		now := s.clock.Now()
		next := listing.Clone()
		next.Status = domain.ListingCompleted
		next.VerifiedAt = &now
		next.CompletedAt = &now
		next.UpdatedAt = now

		if err := s.listings.UpdateListing(ctx, next); err != nil {
			return err
		}

		settled = next
		return nil
	})
	if err != nil {
		s.log.Info("Redeem rejected", "listing_id", listingID, "user_id", actorID, "reason", err)
		return nil, err
	}

	s.log.Info("Settlement completed", "listing_id", listingID,
		"seller_id", settled.SellerID, "winner_id", settled.WinnerID)
	s.events.Dispatch(newEvent(domain.EventSettlementCompleted, settled, settled.WinnerID, settled.CurrentPrice, *settled.CompletedAt))

	return settled, nil
}

// Reconcile re-issues the keyed credits of a completed listing. Credits that
// were already applied are skipped; the number newly applied is returned.
func (s *SettlementService) Reconcile(ctx context.Context, listingID string) (int, error) {
	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return 0, err
	}

	if listing.Status != domain.ListingCompleted {
		return 0, domain.ErrNotReadyForSettlement
	}

	applied, err := s.creditParties(ctx, listing)
	if err != nil {
		return applied, err
	}

	s.log.Info("Listing reconciled", "listing_id", listingID, "credits_applied", applied)
	return applied, nil
}

// ResendCredential dispatches the winner's pickup credential again for a
// listing that ended with a winner and is still awaiting settlement. The
// credential only ever travels in the event.
func (s *SettlementService) ResendCredential(ctx context.Context, listingID string) (*domain.Listing, error) {
	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Status != domain.ListingEnded || !listing.HasWinner() {
		return nil, domain.ErrNotReadyForSettlement
	}

	issued := newEvent(domain.EventPickupCredentialIssued, listing, listing.WinnerID, listing.CurrentPrice, s.clock.Now())
	issued.Credential = listing.VerificationCredential
	s.events.Dispatch(issued)

	s.log.Info("Pickup credential resent", "listing_id", listingID, "winner_id", listing.WinnerID)
	return listing, nil
}

func (s *SettlementService) creditParties(ctx context.Context, listing *domain.Listing) (int, error) {
	now := s.clock.Now()
	credits := []*domain.PointsCredit{
		{ListingID: listing.ID, Role: domain.RoleSeller, UserID: listing.SellerID, Amount: s.sellerReward, CreatedAt: now},
		{ListingID: listing.ID, Role: domain.RoleBuyer, UserID: listing.WinnerID, Amount: s.buyerReward, CreatedAt: now},
	}

	applied := 0
	for _, credit := range credits {
		ok, err := s.points.Credit(ctx, credit)
		if err != nil {
			return applied, fmt.Errorf("credit %s points: %w", credit.Role, err)
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// checkRedeemable applies the settlement preconditions in order. A
// completed listing passes the readiness check so that a resubmitted valid
// credential reports AlreadySettled.
func checkRedeemable(listing *domain.Listing, actorID, credential string) error {
	if actorID != listing.SellerID {
		return domain.ErrForbidden
	}

	switch {
	case listing.Status == domain.ListingCompleted:
	case listing.Status == domain.ListingEnded && listing.HasWinner():
	default:
		return domain.ErrNotReadyForSettlement
	}

	if !credentialsEqual(listing.VerificationCredential, credential) {
		return domain.ErrInvalidCredential
	}

	if listing.Status == domain.ListingCompleted || listing.CompletedAt != nil {
		return domain.ErrAlreadySettled
	}

	return nil
}
