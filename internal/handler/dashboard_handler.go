package handler

import (
	"context"
	"net/http"

	"healthboard/internal/domain"
	"healthboard/pkg/logger"
)

// SnapshotProvider serves the aggregated dashboard read model.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context) (*domain.DashboardSnapshot, error)
}

// DashboardHandler handles dashboard read requests
type DashboardHandler struct {
	dashboard SnapshotProvider
	logger    *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard SnapshotProvider, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: log}
}

// GetDashboard handles GET /api/dashboard. It only ever reads current store
// state; it never triggers a sync.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.dashboard.GetSnapshot(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build dashboard snapshot")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load dashboard data", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, snapshot, h.logger)
}
