package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// HealthReporter reports per-component liveness.
type HealthReporter interface {
	Report() map[string]bool
}

// ConfigSource yields the active strategy config.
type ConfigSource interface {
	Current() domain.StrategyConfig
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	health HealthReporter
	config ConfigSource
}

// NewHealthHandler creates a HealthHandler. config may be nil.
func NewHealthHandler(health HealthReporter, config ConfigSource) *HealthHandler {
	return &HealthHandler{health: health, config: config}
}

// HealthCheck reports every feed and trader. Any dead component turns the
// response into a 503 so orchestrators can act on it.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	components := h.health.Report()
	status, code := "ok", http.StatusOK
	for _, alive := range components {
		if !alive {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	body := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if h.config != nil {
		body["is_trading"] = h.config.Current().IsTrading
	}
	writeJSON(w, code, body)
}
