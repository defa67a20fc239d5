package handlers

import (
	"net/http"
	"strings"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/internal/services"
	"waste-auction/pkg/logger"

	"github.com/labstack/echo/v4"
)

// UserIDHeader carries the authenticated caller, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

type ListingHandler struct {
	auctionManager *services.AuctionManager
	bidService     *services.BidService
	settlement     *services.SettlementService
	log            logger.Logger
}

type CreateListingRequest struct {
	Title           string  `json:"title"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	WeightKg        float64 `json:"weight_kg"`
	BasePrice       int64   `json:"base_price"`
	DurationMinutes int     `json:"duration_minutes"`
}

func (r CreateListingRequest) toInput(sellerID string) services.CreateListingInput {
	return services.CreateListingInput{
		SellerID:    sellerID,
		Title:       strings.TrimSpace(r.Title),
		Category:    strings.TrimSpace(r.Category),
		Description: r.Description,
		WeightKg:    r.WeightKg,
		BasePrice:   r.BasePrice,
		Duration:    time.Duration(r.DurationMinutes) * time.Minute,
	}
}

type PlaceBidRequest struct {
	Amount int64 `json:"amount"`
}

func (r PlaceBidRequest) Validate() error {
	if r.Amount <= 0 {
		return domain.NewValidationError("amount", "must be positive")
	}
	return nil
}

type RedeemRequest struct {
	Credential string `json:"credential"`
}

func (r RedeemRequest) Validate() error {
	if strings.TrimSpace(r.Credential) == "" {
		return domain.NewValidationError("credential", "required")
	}
	return nil
}

type ListingResponse struct {
	ListingID    string     `json:"listing_id"`
	SellerID     string     `json:"seller_id"`
	Title        string     `json:"title"`
	Category     string     `json:"category,omitempty"`
	Description  string     `json:"description,omitempty"`
	WeightKg     float64    `json:"weight_kg,omitempty"`
	BasePrice    int64      `json:"base_price"`
	CurrentPrice int64      `json:"current_price"`
	MinimumBid   *int64     `json:"minimum_bid,omitempty"`
	BidCount     int        `json:"bid_count"`
	EndTime      time.Time  `json:"end_time"`
	Status       string     `json:"status"`
	WinnerID     string     `json:"winner_id,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type BidResponse struct {
	BidID     string    `json:"bid_id"`
	ListingID string    `json:"listing_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

type PlaceBidResponse struct {
	Bid          BidResponse `json:"bid"`
	CurrentPrice int64       `json:"current_price"`
	MinimumBid   int64       `json:"minimum_bid"`
}

func NewListingHandler(
	auctionManager *services.AuctionManager,
	bidService *services.BidService,
	settlement *services.SettlementService,
	log logger.Logger,
) *ListingHandler {
	return &ListingHandler{
		auctionManager: auctionManager,
		bidService:     bidService,
		settlement:     settlement,
		log:            log,
	}
}

func (h *ListingHandler) Register(g *echo.Group) {
	g.POST("/listings", h.CreateListing)
	g.GET("/listings/:id", h.GetListing)
	g.GET("/listings/:id/bids", h.ListBids)
	g.POST("/listings/:id/bids", h.PlaceBid)
	g.POST("/listings/:id/close", h.CloseEarly)
	g.POST("/listings/:id/cancel", h.CancelListing)
	g.POST("/listings/:id/redeem", h.RedeemCredential)
}

func (h *ListingHandler) CreateListing(c echo.Context) error {
	sellerID, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req CreateListingRequest
	if err := c.Bind(&req); err != nil {
		h.log.Error("Failed to bind request", "error", err)
		return h.fail(c, domain.NewValidationError("body", "malformed JSON"))
	}

	listing, err := h.auctionManager.CreateListing(c.Request().Context(), req.toInput(sellerID))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, h.toListingResponse(listing))
}

func (h *ListingHandler) GetListing(c echo.Context) error {
	listing, err := h.auctionManager.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.toListingResponse(listing))
}

func (h *ListingHandler) ListBids(c echo.Context) error {
	bids, err := h.auctionManager.ListBids(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}

	resp := make([]BidResponse, 0, len(bids))
	for _, bid := range bids {
		resp = append(resp, toBidResponse(bid))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ListingHandler) PlaceBid(c echo.Context) error {
	bidderID, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, domain.NewValidationError("body", "malformed JSON"))
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}

	result, err := h.bidService.PlaceBid(c.Request().Context(), c.Param("id"), bidderID, req.Amount)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, PlaceBidResponse{
		Bid:          toBidResponse(result.Bid),
		CurrentPrice: result.Listing.CurrentPrice,
		MinimumBid:   h.bidService.GetMinimumBid(result.Listing),
	})
}

func (h *ListingHandler) CloseEarly(c echo.Context) error {
	sellerID, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}

	listing, err := h.auctionManager.CloseEarly(c.Request().Context(), c.Param("id"), sellerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.toListingResponse(listing))
}

func (h *ListingHandler) CancelListing(c echo.Context) error {
	sellerID, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}

	listing, err := h.auctionManager.CancelListing(c.Request().Context(), c.Param("id"), sellerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.toListingResponse(listing))
}

func (h *ListingHandler) RedeemCredential(c echo.Context) error {
	sellerID, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req RedeemRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, domain.NewValidationError("body", "malformed JSON"))
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}

	listing, err := h.settlement.Redeem(c.Request().Context(), c.Param("id"), sellerID, strings.TrimSpace(req.Credential))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.toListingResponse(listing))
}

func (h *ListingHandler) fail(c echo.Context, err error) error {
	status, resp := MapError(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.Path(), "listing_id", c.Param("id"), "error", err)
	}
	return c.JSON(status, resp)
}

func actor(c echo.Context) (string, error) {
	userID := strings.TrimSpace(c.Request().Header.Get(UserIDHeader))
	if userID == "" {
		return "", domain.NewValidationError(UserIDHeader, "header required")
	}
	return userID, nil
}

// toListingResponse never includes the verification credential.
func (h *ListingHandler) toListingResponse(listing *domain.Listing) ListingResponse {
	resp := ListingResponse{
		ListingID:    listing.ID,
		SellerID:     listing.SellerID,
		Title:        listing.Title,
		Category:     listing.Category,
		Description:  listing.Description,
		WeightKg:     listing.WeightKg,
		BasePrice:    listing.BasePrice,
		CurrentPrice: listing.CurrentPrice,
		BidCount:     listing.BidCount,
		EndTime:      listing.EndTime,
		Status:       listing.Status.String(),
		WinnerID:     listing.WinnerID,
		EndedAt:      listing.EndedAt,
		VerifiedAt:   listing.VerifiedAt,
		CompletedAt:  listing.CompletedAt,
	}
	if listing.Status == domain.ListingActive {
		minimum := h.bidService.GetMinimumBid(listing)
		resp.MinimumBid = &minimum
	}
	return resp
}

func toBidResponse(bid *domain.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.ID,
		ListingID: bid.ListingID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Seq:       bid.Seq,
		CreatedAt: bid.CreatedAt,
	}
}
