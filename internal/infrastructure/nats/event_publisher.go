package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"waste-auction/internal/domain"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const subjectPrefix = "listing.events"

// EventPublisher is the Notifier backed by a JetStream stream, for
// notification services that need at-least-once delivery.
type EventPublisher struct {
	js jetstream.JetStream
}

// NewEventPublisher makes sure the stream exists and returns a publisher on it.
func NewEventPublisher(ctx context.Context, conn *nats.Conn, stream string) (*EventPublisher, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Listing lifecycle events for notification delivery",
		Subjects:    []string{subjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &EventPublisher{js: js}, nil
}

func Subject(eventType domain.ListingEventType) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, eventType)
}

func (p *EventPublisher) Publish(ctx context.Context, event *domain.ListingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Event id as message id lets JetStream drop duplicates within its window.
	if _, err := p.js.Publish(ctx, Subject(event.Type), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}
