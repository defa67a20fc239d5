package services

import (
	"context"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"
)

// EventListener archives every published listing event as an audit trail.
type EventListener struct {
	archive domain.EventArchive
	timeout time.Duration
	log     logger.Logger
}

func NewEventListener(archive domain.EventArchive, log logger.Logger) *EventListener {
	return &EventListener{
		archive: archive,
		timeout: 10 * time.Second,
		log:     log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToListingEvents(ctx, el.HandleEvent)
}

func (el *EventListener) HandleEvent(event *domain.ListingEvent) error {
	el.log.Debug("Handling listing event", "type", event.Type, "listing_id", event.ListingID)

	archived := *event
	// The pickup credential is a bearer secret; it stays out of the archive.
	archived.Credential = ""

	ctx, cancel := context.WithTimeout(context.Background(), el.timeout)
	defer cancel()

	if err := el.archive.SaveEvent(ctx, &archived); err != nil {
		el.log.Error("Failed to archive event", "type", event.Type, "listing_id", event.ListingID, "error", err)
		return err
	}
	return nil
}
