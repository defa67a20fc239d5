package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

func (r *RedisEventSubscriber) SubscribeToListingEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.Subscribe(ctx, EventsChannel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading messages.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", EventsChannel, err)
	}

	ch := pubsub.Channel()

	r.log.Info("Subscribed to listing events", "channel", EventsChannel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := parseEventData(msg.Payload)
			if err != nil {
				// The payload may carry a pickup credential; only its size is logged.
				r.log.Error("Failed to parse event", "payload_bytes", len(msg.Payload), "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type, "listing_id", event.ListingID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func parseEventData(payload string) (*domain.ListingEvent, error) {
	var event domain.ListingEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if event.ListingID == "" || event.Type == "" {
		return nil, fmt.Errorf("event missing listing_id or type")
	}
	return &event, nil
}
