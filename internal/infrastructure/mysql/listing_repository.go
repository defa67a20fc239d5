package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"waste-auction/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

const listingColumns = `id, seller_id, title, category, description, weight_kg,
        base_price, current_price, bid_count, end_time, status,
        winner_id, verification_credential, ended_at, verified_at, completed_at,
        version, created_at, updated_at`

type MySQLListingRepository struct {
	db *sql.DB
}

func NewMySQLListingRepository(db *sql.DB) *MySQLListingRepository {
	return &MySQLListingRepository{db: db}
}

func (r *MySQLListingRepository) CreateListing(ctx context.Context, listing *domain.Listing) error {
	query := `
        INSERT INTO listings (id, seller_id, title, category, description, weight_kg,
            base_price, current_price, bid_count, end_time, status, version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	listing.Version = 1
	_, err := r.db.ExecContext(ctx, query,
		listing.ID, listing.SellerID, listing.Title, listing.Category, listing.Description, listing.WeightKg,
		listing.BasePrice, listing.CurrentPrice, listing.BidCount, listing.EndTime,
		int(listing.Status), listing.Version, listing.CreatedAt, listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *MySQLListingRepository) GetListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`

	listing, err := scanListing(r.db.QueryRowContext(ctx, query, listingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select listing: %w", err)
	}
	return listing, nil
}

func (r *MySQLListingRepository) UpdateListing(ctx context.Context, listing *domain.Listing) error {
	query := `
        UPDATE listings
        SET current_price = ?, bid_count = ?, status = ?, winner_id = ?, verification_credential = ?,
            ended_at = ?, verified_at = ?, completed_at = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?
    `
	res, err := r.db.ExecContext(ctx, query,
		listing.CurrentPrice, listing.BidCount, int(listing.Status),
		nullString(listing.WinnerID), nullString(listing.VerificationCredential),
		nullTime(listing.EndedAt), nullTime(listing.VerifiedAt), nullTime(listing.CompletedAt),
		listing.UpdatedAt, listing.ID, listing.Version)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}

	if err := expectOneRow(res); err != nil {
		return err
	}
	listing.Version++
	return nil
}

func (r *MySQLListingRepository) GetExpiredActiveListings(ctx context.Context, now time.Time, limit int) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + `
        FROM listings WHERE status = ? AND end_time <= ?
        ORDER BY end_time ASC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, int(domain.ListingActive), now, limit)
	if err != nil {
		return nil, fmt.Errorf("select expired listings: %w", err)
	}
	defer rows.Close()

	var listings []*domain.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}

	return listings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*domain.Listing, error) {
	var listing domain.Listing
	var status int
	var winnerID, credential sql.NullString
	var endedAt, verifiedAt, completedAt sql.NullTime

	err := row.Scan(
		&listing.ID, &listing.SellerID, &listing.Title, &listing.Category, &listing.Description, &listing.WeightKg,
		&listing.BasePrice, &listing.CurrentPrice, &listing.BidCount, &listing.EndTime, &status,
		&winnerID, &credential, &endedAt, &verifiedAt, &completedAt,
		&listing.Version, &listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return nil, err
	}

	listing.Status = domain.ListingStatus(status)
	listing.WinnerID = winnerID.String
	listing.VerificationCredential = credential.String
	listing.EndedAt = timePtr(endedAt)
	listing.VerifiedAt = timePtr(verifiedAt)
	listing.CompletedAt = timePtr(completedAt)
	return &listing, nil
}

// expectOneRow turns a conditional update that matched nothing into a
// conflict. Version always changes, so a matched row is always affected.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConcurrencyConflict
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
