package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"waste-auction/internal/domain"

	"github.com/go-redis/redis/v8"
)

const EventsChannel = "listing_events"

// EventPublisher is the Notifier backed by Redis pub/sub. Payloads are the
// JSON encoding of domain.ListingEvent.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client, channel: EventsChannel}
}

func (r *EventPublisher) Publish(ctx context.Context, event *domain.ListingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return r.client.Publish(ctx, r.channel, data).Err()
}
