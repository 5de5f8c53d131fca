package handler

import (
	"net/http"
	"time"

	"healthboard/internal/config"
	"healthboard/pkg/logger"
)

const version = "1.0.0"

// HealthHandler handles liveness and status requests
type HealthHandler struct {
	config *config.Config
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(cfg *config.Config, log *logger.Logger) *HealthHandler {
	return &HealthHandler{config: cfg, logger: log}
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, h.logger)
}

// Status handles GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "running",
		"version":     version,
		"environment": h.config.Environment,
	}, h.logger)
}
