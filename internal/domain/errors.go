package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("listing not found")
	ErrForbidden             = errors.New("actor is not allowed to perform this action")
	ErrValidation            = errors.New("validation failed")
	ErrBidTooLow             = errors.New("bid too low")
	ErrAuctionClosed         = errors.New("auction is closed")
	ErrSelfBidForbidden      = errors.New("seller cannot bid on own listing")
	ErrNotReadyForSettlement = errors.New("listing is not ready for settlement")
	ErrInvalidCredential     = errors.New("invalid verification credential")
	ErrAlreadySettled        = errors.New("listing already settled")
	ErrHasBids               = errors.New("listing has bids")
	ErrNoBids                = errors.New("listing has no bids")

	// ErrConcurrencyConflict is returned by repositories when a conditional
	// update lost against a concurrent writer. It is the only retryable kind.
	ErrConcurrencyConflict = errors.New("concurrent modification, retry")
)

// BidTooLowError carries the amount the caller has to reach.
type BidTooLowError struct {
	Amount  int64
	Minimum int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: %d, minimum is %d", e.Amount, e.Minimum)
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
