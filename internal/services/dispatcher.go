package services

import (
	"context"
	"sync"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/pkg/logger"
)

// EventDispatcher hands events to the Notifier off the request path.
// Delivery is best-effort: a full buffer or a failing notifier is logged
// and never reported to the operation that produced the event.
type EventDispatcher struct {
	notifier domain.Notifier
	events   chan *domain.ListingEvent
	timeout  time.Duration
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewEventDispatcher(notifier domain.Notifier, bufferSize int, timeout time.Duration, log logger.Logger) *EventDispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &EventDispatcher{
		notifier: notifier,
		events:   make(chan *domain.ListingEvent, bufferSize),
		timeout:  timeout,
		log:      log,
	}

	d.wg.Add(1)
	go d.run()
	return d
}

func (d *EventDispatcher) Dispatch(event *domain.ListingEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("Dispatcher closed, dropping event", "type", event.Type, "listing_id", event.ListingID)
		return
	}

	select {
	case d.events <- event:
	default:
		d.log.Warn("Event buffer full, dropping event", "type", event.Type, "listing_id", event.ListingID)
	}
}

func (d *EventDispatcher) run() {
	defer d.wg.Done()

	for event := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.notifier.Publish(ctx, event); err != nil {
			d.log.Warn("Failed to publish event", "type", event.Type,
				"listing_id", event.ListingID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for buffered ones to be published.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	d.wg.Wait()
}
