package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/store"
	"github.com/portfolio-tracker/internal/worker"
)

// PortfolioView is the snapshot as served to display surfaces
type PortfolioView struct {
	PositionsValue *float64          `json:"positionsValue"`
	CashValue      *float64          `json:"cashValue"`
	TotalValue     float64           `json:"totalValue"`
	Positions      []models.Position `json:"positions"`
	UpdatedAt      int64             `json:"updatedAt"`
	Error          string            `json:"error,omitempty"`
}

// TradesView is the grouped trade history as served to display surfaces
type TradesView struct {
	Groups    []models.TradeGroup `json:"groups"`
	UpdatedAt int64               `json:"updatedAt"`
	Error     string              `json:"error,omitempty"`
}

// StatusView is the compact status summary
type StatusView struct {
	Address   string `json:"address"`
	BadgeText string `json:"badgeText"`
	UpdatedAt int64  `json:"updatedAt"`
	Error     string `json:"error,omitempty"`
}

// decodeKey unmarshals one stored value into out, reporting whether the
// key was present and well-formed.
func decodeKey(values map[string]json.RawMessage, key string, out interface{}) bool {
	raw, ok := values[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// handleGetPortfolio serves the current snapshot view.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	values, err := s.store.Get(r.Context(),
		store.KeyPositionsValue, store.KeyCashValue, store.KeyValuesUpdatedAt,
		store.KeyValuesError, store.KeyPositions)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read portfolio state", nil)
		return
	}

	view := PortfolioView{Positions: []models.Position{}}
	decodeKey(values, store.KeyPositionsValue, &view.PositionsValue)
	decodeKey(values, store.KeyCashValue, &view.CashValue)
	decodeKey(values, store.KeyValuesUpdatedAt, &view.UpdatedAt)
	decodeKey(values, store.KeyPositions, &view.Positions)

	var storedErr *string
	decodeKey(values, store.KeyValuesError, &storedErr)
	if storedErr != nil {
		view.Error = *storedErr
	}

	if view.PositionsValue != nil {
		view.TotalValue += *view.PositionsValue
	}
	if view.CashValue != nil {
		view.TotalValue += *view.CashValue
	}

	respondJSON(w, http.StatusOK, view)
}

// handleGetTrades serves the grouped trade history. openOnly=true keeps
// only markets the wallet still holds a net position in.
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	values, err := s.store.Get(r.Context(),
		store.KeyTrades, store.KeyTradesUpdatedAt, store.KeyTradesError)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read trade state", nil)
		return
	}

	var trades []models.Trade
	decodeKey(values, store.KeyTrades, &trades)

	view := TradesView{Groups: models.GroupTrades(trades)}
	decodeKey(values, store.KeyTradesUpdatedAt, &view.UpdatedAt)

	var storedErr *string
	decodeKey(values, store.KeyTradesError, &storedErr)
	if storedErr != nil {
		view.Error = *storedErr
	}

	if r.URL.Query().Get("openOnly") == "true" {
		open := make([]models.TradeGroup, 0, len(view.Groups))
		for _, group := range view.Groups {
			if group.HasActivePosition {
				open = append(open, group)
			}
		}
		view.Groups = open
	}

	respondJSON(w, http.StatusOK, view)
}

// refreshRequest is the manual trigger message
type refreshRequest struct {
	Type string `json:"type"`
}

// handleRefresh runs a refresh on behalf of the caller.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := parseJSONBody(r, &req); err != nil || req.Type != "refresh" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, `Expected body {"type":"refresh"}`, nil)
		return
	}

	result, err := s.refresh.RefreshNow(r.Context())
	if errors.Is(err, worker.ErrRefreshInFlight) {
		respondJSON(w, http.StatusConflict, &service.RefreshResult{
			Success: false,
			Error:   worker.ErrRefreshInFlight.Error(),
		})
		return
	}
	if err != nil {
		status, _, message := mapRefreshError(err)
		if result == nil {
			result = &service.RefreshResult{Success: false, Error: message}
		}
		respondJSON(w, status, result)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetStatus serves the compact wallet/badge/error summary.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	values, err := s.store.Get(r.Context(),
		store.KeyAddress, store.KeyBadgeText, store.KeyValuesUpdatedAt, store.KeyValuesError)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read status", nil)
		return
	}

	var view StatusView
	decodeKey(values, store.KeyAddress, &view.Address)
	decodeKey(values, store.KeyBadgeText, &view.BadgeText)
	decodeKey(values, store.KeyValuesUpdatedAt, &view.UpdatedAt)

	var storedErr *string
	decodeKey(values, store.KeyValuesError, &storedErr)
	if storedErr != nil {
		view.Error = *storedErr
	}

	respondJSON(w, http.StatusOK, view)
}

// preferencesView carries the UI-owned preference flag
type preferencesView struct {
	OpenInPopup bool `json:"openInPopup"`
}

// handleGetPreferences serves the stored preferences.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	values, err := s.store.Get(r.Context(), store.KeyOpenInPopup)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read preferences", nil)
		return
	}

	var view preferencesView
	decodeKey(values, store.KeyOpenInPopup, &view.OpenInPopup)
	respondJSON(w, http.StatusOK, view)
}

// handlePutPreferences updates the stored preferences.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesView
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid preferences body", nil)
		return
	}

	if err := s.store.Set(r.Context(), map[string]interface{}{
		store.KeyOpenInPopup: req.OpenInPopup,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to store preferences", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// addressRequest carries a wallet address update
type addressRequest struct {
	Address string `json:"address"`
}

// handlePutAddress saves a new wallet address. The refresh worker picks
// the change up through its store subscription. The stored form keeps the
// caller's casing; lowercasing happens at the RPC boundary.
func (s *Server) handlePutAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid address body", nil)
		return
	}

	address := strings.TrimSpace(req.Address)
	if !models.IsValidAddress(address) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "No valid 0x address set.",
			map[string]interface{}{"address": req.Address})
		return
	}

	if err := s.store.Set(r.Context(), map[string]interface{}{
		store.KeyAddress: address,
	}); err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to store address", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"address": address,
	})
}

// handleEvents streams store change events as server-sent events so every
// open surface converges on the same state without polling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan store.ChangeEvent, 16)
	sub := s.store.Subscribe(func(event store.ChangeEvent) {
		// Drop rather than block the writer
		select {
		case events <- event:
		default:
		}
	})
	defer sub.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
