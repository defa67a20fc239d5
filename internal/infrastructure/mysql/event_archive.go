package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"waste-auction/internal/domain"
)

type MySQLEventArchive struct {
	db *sql.DB
}

func NewMySQLEventArchive(db *sql.DB) *MySQLEventArchive {
	return &MySQLEventArchive{db: db}
}

// SaveEvent ignores an event id it has already stored, since the
// subscriber may see the same event more than once.
func (r *MySQLEventArchive) SaveEvent(ctx context.Context, event *domain.ListingEvent) error {
	query := `
        INSERT IGNORE INTO listing_events (id, listing_id, event_type, user_id, amount, occurred_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.ListingID, string(event.Type), event.UserID, event.Amount,
		event.Timestamp, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *MySQLEventArchive) GetEvents(ctx context.Context, listingID string) ([]*domain.ListingEvent, error) {
	query := `
        SELECT id, listing_id, event_type, user_id, amount, occurred_at
        FROM listing_events
        WHERE listing_id = ?
        ORDER BY occurred_at ASC
    `

	rows, err := r.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var events []*domain.ListingEvent
	for rows.Next() {
		var event domain.ListingEvent
		var eventType string

		err := rows.Scan(&event.ID, &event.ListingID, &eventType, &event.UserID, &event.Amount, &event.Timestamp)
		if err != nil {
			return nil, err
		}

		event.Type = domain.ListingEventType(eventType)
		events = append(events, &event)
	}

	return events, rows.Err()
}
