package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"waste-auction/internal/domain"
	"waste-auction/internal/services"
	"waste-auction/pkg/logger"

	"github.com/gorilla/mux"
)

// AdminHandler serves the worker's operational endpoints.
type AdminHandler struct {
	sweeper    domain.ExpirySweeper
	settlement *services.SettlementService
	points     domain.PointsLedger
	archive    domain.EventArchive
	log        logger.Logger
}

func NewAdminHandler(
	sweeper domain.ExpirySweeper,
	settlement *services.SettlementService,
	points domain.PointsLedger,
	archive domain.EventArchive,
	log logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		sweeper:    sweeper,
		settlement: settlement,
		points:     points,
		archive:    archive,
		log:        log,
	}
}

func (h *AdminHandler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	admin := router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/sweep", h.Sweep).Methods(http.MethodPost)
	admin.HandleFunc("/listings/{id}/reconcile", h.Reconcile).Methods(http.MethodPost)
	admin.HandleFunc("/listings/{id}/resend-credential", h.ResendCredential).Methods(http.MethodPost)
	admin.HandleFunc("/listings/{id}/events", h.Events).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/points", h.Points).Methods(http.MethodGet)
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "settlement-worker",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	finalized, err := h.sweeper.SweepOnce(r.Context())
	if err != nil {
		h.log.Error("Manual sweep failed", "error", err)
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"finalized": finalized})
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	applied, err := h.settlement.Reconcile(r.Context(), listingID)
	if err != nil {
		h.log.Error("Reconcile failed", "listing_id", listingID, "error", err)
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listing_id":      listingID,
		"credits_applied": applied,
	})
}

// ResendCredential re-dispatches the pickup credential to the winner. The
// response never carries the credential itself.
func (h *AdminHandler) ResendCredential(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	listing, err := h.settlement.ResendCredential(r.Context(), listingID)
	if err != nil {
		h.log.Info("Credential resend rejected", "listing_id", listingID, "reason", err)
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"listing_id": listing.ID,
		"winner_id":  listing.WinnerID,
		"resent":     true,
	})
}

func (h *AdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.archive.GetEvents(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	if events == nil {
		events = []*domain.ListingEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AdminHandler) Points(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	balance, err := h.points.Balance(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    userID,
		"eco_points": balance,
	})
}

func (h *AdminHandler) fail(w http.ResponseWriter, err error) {
	status, resp := MapError(err)
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
