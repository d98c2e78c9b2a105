package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// AuditReader lists recorded notifications.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit log.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// ListRecent returns the newest entries.
// GET /api/audit?limit=50
func (h *AuditHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.Recent(r.Context(), parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit entries failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
