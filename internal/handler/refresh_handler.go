package handler

import (
	"context"
	"net"
	"net/http"

	"healthboard/internal/domain"
	"healthboard/pkg/logger"
)

// RefreshRequester admits, buffers, or rejects manual refresh requests.
type RefreshRequester interface {
	RequestManualRefresh(ctx context.Context, ip string, isAdmin bool) (*domain.RefreshDecision, error)
}

// StatusNotifier pushes refresh admission decisions to connected clients.
type StatusNotifier interface {
	NotifySyncStatus(status, message string)
}

// RefreshHandler handles manual refresh requests
type RefreshHandler struct {
	sync     RefreshRequester
	notifier StatusNotifier
	logger   *logger.Logger
}

// NewRefreshHandler creates a new refresh handler
func NewRefreshHandler(sync RefreshRequester, notifier StatusNotifier, log *logger.Logger) *RefreshHandler {
	return &RefreshHandler{sync: sync, notifier: notifier, logger: log}
}

// RequestRefresh handles POST /api/refresh. Only a rejection earns a 429;
// scheduled and buffered decisions are both 200s, and both are pushed to
// connected clients.
func (h *RefreshHandler) RequestRefresh(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	isAdmin := r.URL.Query().Get("admin") == "true"

	decision, err := h.sync.RequestManualRefresh(r.Context(), ip, isAdmin)
	if err != nil {
		h.logger.WithError(err).Error("Failed to process refresh request")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process refresh request", h.logger)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"ip":       ip,
		"is_admin": isAdmin,
		"status":   decision.Status,
	}).Info("Manual refresh request processed")

	if decision.Status == domain.RefreshRejected {
		writeJSON(w, http.StatusTooManyRequests, decision, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, decision, h.logger)
	h.notifier.NotifySyncStatus(decision.Status, decision.Message)
}

// clientIP extracts the caller's address. The RealIP middleware has already
// folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}
