package services

import (
	"time"

	"waste-auction/internal/domain"
	"waste-auction/pkg/utils"
)

func newEvent(eventType domain.ListingEventType, listing *domain.Listing, userID string, amount int64, now time.Time) *domain.ListingEvent {
	return &domain.ListingEvent{
		ID:        utils.GenerateID("evt"),
		Type:      eventType,
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		UserID:    userID,
		Amount:    amount,
		Timestamp: now,
	}
}
