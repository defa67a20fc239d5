package notify

import (
	"context"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"
)

// LogNotifier only logs events. Used when no broker is configured.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Publish(ctx context.Context, event *domain.ListingEvent) error {
	n.log.Info("Listing event", "id", event.ID, "type", event.Type,
		"listing_id", event.ListingID, "user_id", event.UserID, "amount", event.Amount)
	return nil
}
