package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"waste-auction/internal/domain"

	gomysql "github.com/go-sql-driver/mysql"
)

const errDuplicateEntry = 1062

type MySQLBidRepository struct {
	db *sql.DB
}

func NewMySQLBidRepository(db *sql.DB) *MySQLBidRepository {
	return &MySQLBidRepository{db: db}
}

// AppendBid advances the listing price and inserts the bid in one
// transaction. The listing update is conditional on version and ACTIVE
// status; losing either check rolls back with ErrConcurrencyConflict.
func (r *MySQLBidRepository) AppendBid(ctx context.Context, listing *domain.Listing, bid *domain.Bid) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bid tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
        UPDATE listings
        SET current_price = ?, bid_count = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ? AND status = ?
    `, listing.CurrentPrice, listing.BidCount, listing.UpdatedAt,
		listing.ID, listing.Version, int(domain.ListingActive))
	if err != nil {
		return fmt.Errorf("advance listing price: %w", err)
	}
	if err = expectOneRow(res); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO bids (id, listing_id, bidder_id, amount, seq, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, bid.ID, bid.ListingID, bid.BidderID, bid.Amount, bid.Seq, bid.CreatedAt)
	if err != nil {
		var mysqlErr *gomysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
			err = domain.ErrConcurrencyConflict
			return err
		}
		return fmt.Errorf("insert bid: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bid: %w", err)
	}
	listing.Version++
	return nil
}

func (r *MySQLBidRepository) GetBids(ctx context.Context, listingID string) ([]*domain.Bid, error) {
	query := `
        SELECT id, listing_id, bidder_id, amount, seq, created_at
        FROM bids
        WHERE listing_id = ?
        ORDER BY seq ASC
    `

	rows, err := r.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	bids := []*domain.Bid{}
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.ID, &bid.ListingID, &bid.BidderID, &bid.Amount, &bid.Seq, &bid.CreatedAt); err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}

	return bids, rows.Err()
}

func (r *MySQLBidRepository) GetHighestBid(ctx context.Context, listingID string) (*domain.Bid, error) {
	query := `
        SELECT id, listing_id, bidder_id, amount, seq, created_at
        FROM bids
        WHERE listing_id = ?
        ORDER BY amount DESC, seq DESC
        LIMIT 1
    `

	var bid domain.Bid
	err := r.db.QueryRowContext(ctx, query, listingID).Scan(
		&bid.ID, &bid.ListingID, &bid.BidderID, &bid.Amount, &bid.Seq, &bid.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select highest bid: %w", err)
	}
	return &bid, nil
}
