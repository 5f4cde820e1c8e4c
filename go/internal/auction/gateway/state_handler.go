package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/auction"
	"github.com/mcdev12/pennyauction/go/internal/models"
	"github.com/rs/zerolog/log"
)

// StateProvider lets clients resync after connecting or reconnecting
type StateProvider interface {
	GetAuctionState(ctx context.Context, auctionID uuid.UUID) (*AuctionStateResponse, error)
	GetTimers(ctx context.Context) (map[uuid.UUID]int, error)
}

// AuctionStateResponse is the full state of one auction
type AuctionStateResponse struct {
	Auction  models.Auction `json:"auction"`
	Bids     []models.Bid   `json:"bids"`
	TimeLeft int            `json:"timeLeft"`
}

// StateHandler handles HTTP requests for auction state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetAuctionState handles GET /api/auctions/{id}/state
func (h *StateHandler) HandleGetAuctionState(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid auction ID format", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.GetAuctionState(r.Context(), auctionID)
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		http.Error(w, "Auction not found", http.StatusNotFound)
		return
	case err != nil:
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("failed to get auction state")
		http.Error(w, "Failed to get auction state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, state)
}

// HandleGetTimers handles GET /api/timers
func (h *StateHandler) HandleGetTimers(w http.ResponseWriter, r *http.Request) {
	timers, err := h.stateProvider.GetTimers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get timers")
		http.Error(w, "Failed to get timers", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"timers": timers})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auctions/{id}/state", h.HandleGetAuctionState)
	mux.HandleFunc("GET /api/timers", h.HandleGetTimers)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
