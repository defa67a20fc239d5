package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"waste-auction/internal/domain"
)

// MySQLPointsLedger records one row per (listing, role) credit and keeps
// the running EcoPoints balance in the same transaction.
type MySQLPointsLedger struct {
	db *sql.DB
}

func NewMySQLPointsLedger(db *sql.DB) *MySQLPointsLedger {
	return &MySQLPointsLedger{db: db}
}

func (r *MySQLPointsLedger) Credit(ctx context.Context, credit *domain.PointsCredit) (applied bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin credit tx: %w", err)
	}
	defer func() {
		if err != nil || !applied {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
        INSERT IGNORE INTO points_credits (listing_id, role, user_id, amount, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, credit.ListingID, string(credit.Role), credit.UserID, credit.Amount, credit.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert credit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO eco_points (user_id, balance, updated_at)
        VALUES (?, ?, ?)
        ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance), updated_at = VALUES(updated_at)
    `, credit.UserID, credit.Amount, credit.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("update balance: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit credit: %w", err)
	}
	return true, nil
}

func (r *MySQLPointsLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM eco_points WHERE user_id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}
