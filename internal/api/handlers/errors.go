package handlers

import (
	"errors"
	"net/http"

	"waste-auction/internal/domain"
)

type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	MinimumBid *int64 `json:"minimum_bid,omitempty"`
}

var errorKinds = []struct {
	target error
	code   string
	status int
}{
	{domain.ErrNotFound, "NotFound", http.StatusNotFound},
	{domain.ErrForbidden, "Forbidden", http.StatusForbidden},
	{domain.ErrValidation, "ValidationError", http.StatusBadRequest},
	{domain.ErrBidTooLow, "BidTooLow", http.StatusConflict},
	{domain.ErrAuctionClosed, "AuctionClosed", http.StatusConflict},
	{domain.ErrSelfBidForbidden, "SelfBidForbidden", http.StatusForbidden},
	{domain.ErrNotReadyForSettlement, "NotReadyForSettlement", http.StatusConflict},
	{domain.ErrInvalidCredential, "InvalidCredential", http.StatusUnprocessableEntity},
	{domain.ErrAlreadySettled, "AlreadySettled", http.StatusConflict},
	{domain.ErrHasBids, "HasBids", http.StatusConflict},
	{domain.ErrNoBids, "NoBids", http.StatusConflict},
	{domain.ErrConcurrencyConflict, "ConcurrencyConflict", http.StatusServiceUnavailable},
}

// MapError turns an engine error into its HTTP status and wire body.
// Anything outside the taxonomy is reported as an internal error without
// leaking the cause.
func MapError(err error) (int, ErrorResponse) {
	for _, kind := range errorKinds {
		if !errors.Is(err, kind.target) {
			continue
		}
		resp := ErrorResponse{Error: kind.code, Message: err.Error()}

		var tooLow *domain.BidTooLowError
		if errors.As(err, &tooLow) {
			minimum := tooLow.Minimum
			resp.MinimumBid = &minimum
		}
		return kind.status, resp
	}

	return http.StatusInternalServerError, ErrorResponse{Error: "Internal", Message: "internal error"}
}
