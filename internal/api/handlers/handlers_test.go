package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/internal/infrastructure/memory"
	"waste-auction/internal/services"
	"waste-auction/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type nopNotifier struct{}

func (nopNotifier) Publish(ctx context.Context, event *domain.ListingEvent) error { return nil }

type apiFixture struct {
	store      *memory.Store
	points     *memory.PointsLedger
	clock      *fakeClock
	settlement *services.SettlementService
	sweeper    *services.CronExpirySweeper
	echo       *echo.Echo
	admin      *mux.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logger.NewNop()

	f := &apiFixture{
		store:  memory.NewStore(),
		points: memory.NewPointsLedger(),
		clock:  &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	events := services.NewEventDispatcher(nopNotifier{}, 64, time.Second, log)
	t.Cleanup(events.Close)

	finalizer := services.NewFinalizer(f.store, f.store, events, f.clock, 5, log)
	bids := services.NewBidService(f.store, f.store, services.NewBidValidator(domain.DefaultMinIncrement),
		finalizer, events, f.clock, 5, log)
	manager := services.NewAuctionManager(f.store, f.store, finalizer, events, f.clock, 5, log)
	f.settlement = services.NewSettlementService(f.store, f.points, events, f.clock, 0, 0, 5, log)
	f.sweeper = services.NewCronExpirySweeper(f.store, finalizer, nil, "worker-1", "@every 1h", 10, f.clock, log)

	f.echo = echo.New()
	NewListingHandler(manager, bids, f.settlement, log).Register(f.echo.Group("/api/v1"))

	f.admin = mux.NewRouter()
	NewAdminHandler(f.sweeper, f.settlement, f.points, f.store, log).Register(f.admin)

	return f
}

func (f *apiFixture) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}

	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) doAdmin(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.admin.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) createListing(t *testing.T) ListingResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/listings", "seller-1",
		`{"title":"Baled cardboard","category":"paper","weight_kg":250,"base_price":100,"duration_minutes":60}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ListingResponse](t, rec)
}

func TestListingAPI_AuctionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	listing := f.createListing(t)
	assert.Equal(t, "ACTIVE", listing.Status)
	require.NotNil(t, listing.MinimumBid)
	assert.Equal(t, int64(100), *listing.MinimumBid)

	bidPath := fmt.Sprintf("/api/v1/listings/%s/bids", listing.ListingID)

	rec := f.do(t, http.MethodPost, bidPath, "bidder-1", `{"amount":90}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "BidTooLow", errResp.Error)
	require.NotNil(t, errResp.MinimumBid)
	assert.Equal(t, int64(100), *errResp.MinimumBid)

	rec = f.do(t, http.MethodPost, bidPath, "seller-1", `{"amount":150}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "SelfBidForbidden", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, bidPath, "bidder-1", `{"amount":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[PlaceBidResponse](t, rec)
	assert.Equal(t, int64(100), placed.CurrentPrice)
	assert.Equal(t, int64(105), placed.MinimumBid)
	assert.Equal(t, 1, placed.Bid.Seq)

	rec = f.do(t, http.MethodGet, bidPath, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]BidResponse](t, rec), 1)

	f.clock.Advance(time.Hour)

	rec = f.do(t, http.MethodGet, "/api/v1/listings/"+listing.ListingID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ended := decode[ListingResponse](t, rec)
	assert.Equal(t, "ENDED", ended.Status)
	assert.Equal(t, "bidder-1", ended.WinnerID)
	assert.Nil(t, ended.MinimumBid)

	stored, err := f.store.GetListing(context.Background(), listing.ListingID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.VerificationCredential)
	assert.NotContains(t, rec.Body.String(), stored.VerificationCredential)

	redeemPath := fmt.Sprintf("/api/v1/listings/%s/redeem", listing.ListingID)

	rec = f.do(t, http.MethodPost, redeemPath, "seller-1", `{"credential":"guess"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "InvalidCredential", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, redeemPath, "bidder-1", fmt.Sprintf(`{"credential":%q}`, stored.VerificationCredential))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, redeemPath, "seller-1", fmt.Sprintf(`{"credential":%q}`, stored.VerificationCredential))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	completed := decode[ListingResponse](t, rec)
	assert.Equal(t, "COMPLETED", completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	assert.NotContains(t, rec.Body.String(), stored.VerificationCredential)

	rec = f.do(t, http.MethodPost, redeemPath, "seller-1", fmt.Sprintf(`{"credential":%q}`, stored.VerificationCredential))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadySettled", decode[ErrorResponse](t, rec).Error)

	rec = f.doAdmin(http.MethodGet, "/admin/users/seller-1/points")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"seller-1","eco_points":30}`, rec.Body.String())

	rec = f.doAdmin(http.MethodGet, "/admin/users/bidder-1/points")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"bidder-1","eco_points":20}`, rec.Body.String())

	rec = f.doAdmin(http.MethodPost, fmt.Sprintf("/admin/listings/%s/reconcile", listing.ListingID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"listing_id":%q,"credits_applied":0}`, listing.ListingID), rec.Body.String())
}

func TestListingAPI_SellerActions(t *testing.T) {
	f := newAPIFixture(t)
	listing := f.createListing(t)
	base := "/api/v1/listings/" + listing.ListingID

	rec := f.do(t, http.MethodPost, base+"/close", "seller-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NoBids", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, base+"/cancel", "bidder-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/bids", "bidder-1", `{"amount":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/cancel", "seller-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "HasBids", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, base+"/close", "seller-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ENDED", decode[ListingResponse](t, rec).Status)

	rec = f.do(t, http.MethodPost, base+"/bids", "bidder-2", `{"amount":200}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AuctionClosed", decode[ErrorResponse](t, rec).Error)

	other := f.createListing(t)
	rec = f.do(t, http.MethodPost, "/api/v1/listings/"+other.ListingID+"/cancel", "seller-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode[ListingResponse](t, rec).Status)
}

func TestListingAPI_BadRequests(t *testing.T) {
	f := newAPIFixture(t)
	listing := f.createListing(t)

	rec := f.do(t, http.MethodPost, "/api/v1/listings", "", `{"title":"x","base_price":100,"duration_minutes":60}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/listings", "seller-1", `{"title":"x","base_price":0,"duration_minutes":60}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationError", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/api/v1/listings/"+listing.ListingID+"/bids", "bidder-1", `{"amount":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/listings/"+listing.ListingID+"/bids", "bidder-1", `{"amount":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/listings/"+listing.ListingID+"/redeem", "seller-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/listings/listing_missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decode[ErrorResponse](t, rec).Error)
}

func TestAdminAPI_SweepAndEvents(t *testing.T) {
	f := newAPIFixture(t)
	listing := f.createListing(t)

	rec := f.doAdmin(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.doAdmin(http.MethodPost, "/admin/sweep")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"finalized":0}`, rec.Body.String())

	f.clock.Advance(2 * time.Hour)

	rec = f.doAdmin(http.MethodPost, "/admin/sweep")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"finalized":1}`, rec.Body.String())

	rec = f.doAdmin(http.MethodPost, "/admin/listings/"+listing.ListingID+"/reconcile")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.doAdmin(http.MethodPost, "/admin/listings/listing_missing/reconcile")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.store.SaveEvent(context.Background(), &domain.ListingEvent{
		ID: "evt_1", Type: domain.EventAuctionEnded, ListingID: listing.ListingID,
	}))
	rec = f.doAdmin(http.MethodGet, "/admin/listings/"+listing.ListingID+"/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.ListingEvent](t, rec), 1)

	rec = f.doAdmin(http.MethodGet, "/admin/listings/listing_none/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdminAPI_ResendCredential(t *testing.T) {
	f := newAPIFixture(t)
	listing := f.createListing(t)
	resendPath := "/admin/listings/" + listing.ListingID + "/resend-credential"

	rec := f.doAdmin(http.MethodPost, resendPath)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/listings/"+listing.ListingID+"/bids", "bidder-1", `{"amount":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	f.clock.Advance(time.Hour)

	rec = f.doAdmin(http.MethodPost, "/admin/sweep")
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.store.GetListing(context.Background(), listing.ListingID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.VerificationCredential)

	rec = f.doAdmin(http.MethodPost, resendPath)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, fmt.Sprintf(`{"listing_id":%q,"winner_id":"bidder-1","resent":true}`, listing.ListingID), rec.Body.String())
	assert.NotContains(t, rec.Body.String(), stored.VerificationCredential)

	rec = f.doAdmin(http.MethodPost, "/admin/listings/listing_missing/resend-credential")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.doAdmin(http.MethodGet, resendPath)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMapError(t *testing.T) {
	status, resp := MapError(&domain.BidTooLowError{Amount: 1, Minimum: 105})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "BidTooLow", resp.Error)
	require.NotNil(t, resp.MinimumBid)
	assert.Equal(t, int64(105), *resp.MinimumBid)

	status, resp = MapError(fmt.Errorf("wrapped: %w", domain.ErrAlreadySettled))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "AlreadySettled", resp.Error)
	assert.Nil(t, resp.MinimumBid)

	status, resp = MapError(domain.ErrConcurrencyConflict)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, resp = MapError(errors.New("connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", resp.Message)
}
