package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"healthboard/internal/config"
	"healthboard/internal/ws"
	"healthboard/pkg/logger"
)

// WSHandler upgrades dashboard clients onto the push channel
type WSHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	config   *config.Config
	logger   *logger.Logger
}

// NewWSHandler creates a new websocket handler. Upgrade requests are only
// accepted from the configured origins.
func NewWSHandler(hub *ws.Hub, cfg *config.Config, log *logger.Logger) *WSHandler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return allowed["*"] || allowed[origin]
			},
		},
		config: cfg,
		logger: log,
	}
}

// Serve handles GET /ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	ws.NewClient(h.hub, conn, h.config.WSHeartbeatInterval, h.logger).Start()
}
