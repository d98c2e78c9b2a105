package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// StateSource produces the bot's live state.
type StateSource interface {
	Snapshot(now time.Time) domain.StateSnapshot
}

// StateHandler exposes the in-memory state the publisher mirrors to Redis.
type StateHandler struct {
	source StateSource
	logger *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(source StateSource, logger *slog.Logger) *StateHandler {
	return &StateHandler{source: source, logger: logger}
}

type stateResponse struct {
	Timestamp time.Time                             `json:"timestamp"`
	States    map[string]domain.SymbolState         `json:"states"`
	Spreads   map[string]float64                    `json:"spreads"`
	Swaps     map[string]domain.SwapPosition        `json:"swaps"`
	Positions map[string]map[string]domain.Position `json:"positions"`
}

// GetState returns the full snapshot.
// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Snapshot(time.Now().UTC())
	writeJSON(w, http.StatusOK, stateResponse{
		Timestamp: snap.Timestamp,
		States:    snap.States,
		Spreads:   snap.Spreads,
		Swaps:     snap.Swaps,
		Positions: snap.Positions,
	})
}

// GetSwaps returns only the swap book, in the layout published to Redis.
// GET /api/swaps
func (h *StateHandler) GetSwaps(w http.ResponseWriter, r *http.Request) {
	data, err := h.source.Snapshot(time.Now().UTC()).SwapsJSON()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: encode swaps failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to encode swaps")
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}
