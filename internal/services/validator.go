package services

import (
	"time"

	"waste-auction/internal/domain"
)

// BidValidator holds the admission rules for a bid against a listing
// snapshot. The checks run in a fixed order so callers always see the
// first failing rule.
type BidValidator struct {
	minIncrement int64
}

func NewBidValidator(minIncrement int64) *BidValidator {
	if minIncrement <= 0 {
		minIncrement = domain.DefaultMinIncrement
	}
	return &BidValidator{minIncrement: minIncrement}
}

func (v *BidValidator) GetMinimumBid(listing *domain.Listing) int64 {
	return listing.MinimumBid(v.minIncrement)
}

func (v *BidValidator) Validate(listing *domain.Listing, bidderID string, amount int64, now time.Time) error {
	if listing.Status != domain.ListingActive || listing.Expired(now) {
		return domain.ErrAuctionClosed
	}

	if bidderID == listing.SellerID {
		return domain.ErrSelfBidForbidden
	}

	if minimum := v.GetMinimumBid(listing); amount < minimum {
		return &domain.BidTooLowError{Amount: amount, Minimum: minimum}
	}

	return nil
}
