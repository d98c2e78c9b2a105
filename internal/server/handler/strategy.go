package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// Reloader applies the stored config immediately.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
	DisableTrading(ctx context.Context, reason string) error
}

// StrategyHandler serves the bot's strategy config.
type StrategyHandler struct {
	botID    string
	store    domain.ConfigStore
	reloader Reloader
	logger   *slog.Logger
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(botID string, store domain.ConfigStore, reloader Reloader, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{botID: botID, store: store, reloader: reloader, logger: logger}
}

// GetConfig returns the stored config, which may be ahead of the applied one
// until the next reload.
// GET /api/strategy/config
func (h *StrategyHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	blob, err := h.store.Get(r.Context(), h.botID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "strategy config not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get strategy config failed",
			slog.String("bot_id", h.botID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get strategy config")
		return
	}
	cfg, err := domain.DecodeStrategyConfig(blob)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig validates and stores a full config, then reloads it.
// PUT /api/strategy/config
func (h *StrategyHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.StrategyConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	blob, err := cfg.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode strategy config")
		return
	}
	if err := h.store.Set(r.Context(), h.botID, blob); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: store strategy config failed",
			slog.String("bot_id", h.botID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update strategy config")
		return
	}

	changed, err := h.reloader.Reload(r.Context())
	if err != nil {
		// Stored but not applied; the watcher retries on its next tick.
		h.logger.WarnContext(r.Context(), "handler: reload after update failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "stored", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "changed": changed})
}

type killRequest struct {
	Reason string `json:"reason"`
}

// Kill flips is_trading off.
// POST /api/strategy/kill
func (h *StrategyHandler) Kill(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	if err := h.reloader.DisableTrading(r.Context(), req.Reason); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: kill switch persist failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "disabled", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}
