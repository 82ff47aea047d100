package handlers

import (
	"net/http"

	"photo-trade-backend/internal/middleware"
	"photo-trade-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// TradeHandler handles trade HTTP requests
type TradeHandler struct {
	tradeService *services.TradeService
}

// NewTradeHandler creates a new trade handler
func NewTradeHandler(tradeService *services.TradeService) *TradeHandler {
	return &TradeHandler{tradeService: tradeService}
}

// List handles GET /api/v1/trades
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	trades, err := h.tradeService.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, trades)
}

// Propose handles POST /api/v1/trades
func (h *TradeHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var req services.ProposeTradeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	trade, err := h.tradeService.Propose(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, trade)
}

// Accept handles PUT /api/v1/trades/{trade_id}/accept
func (h *TradeHandler) Accept(w http.ResponseWriter, r *http.Request) {
	trade, err := h.tradeService.Accept(r.Context(), chi.URLParam(r, "trade_id"), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Trade accepted! Photos exchanged.", "trade": trade})
}

// Decline handles PUT /api/v1/trades/{trade_id}/decline
func (h *TradeHandler) Decline(w http.ResponseWriter, r *http.Request) {
	trade, err := h.tradeService.Decline(r.Context(), chi.URLParam(r, "trade_id"), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Trade declined", "trade": trade})
}
