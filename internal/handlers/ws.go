package handlers

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/momentchat/backend/internal/logging"
	"github.com/momentchat/backend/internal/middleware"
	"github.com/momentchat/backend/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients connect from native apps and arbitrary dev origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebsocketHandler upgrades HTTP requests into realtime connections.
type WebsocketHandler struct {
	Registry *realtime.Registry
	Intents  realtime.IntentHandler
	Limiter  middleware.RateLimiter
	Logger   *slog.Logger
}

// Serve handles GET /ws.
func (h WebsocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	if h.Limiter != nil && !h.Limiter.Allow(clientIP(r)) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many connection attempts"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := realtime.NewClient(conn, h.Intents, logger)
	h.Registry.Register(client)
	logger.Info("websocket connected", "client", client.ID(), "remote_addr", r.RemoteAddr)

	go client.WritePump()
	// The request context dies with the upgrade response, so the pump runs
	// against the background context for the lifetime of the connection.
	go client.ReadPump(context.Background())
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
