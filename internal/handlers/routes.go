package handlers

import (
	"log/slog"
	"net/http"

	"github.com/momentchat/backend/internal/middleware"
	"github.com/momentchat/backend/internal/realtime"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Friends: deps.Friends}
	users := UserHandler{Users: deps.Users}
	feed := MomentHandler{Feed: deps.Feed, Images: deps.Images}
	ws := WebsocketHandler{
		Registry: deps.Registry,
		Intents:  deps.Intents,
		Limiter:  deps.ConnectLimiter,
		Logger:   deps.Logger,
	}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("POST /api/v1/auth/register", auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("GET /api/v1/users/{username}", users.Info)
	mux.HandleFunc("PUT /api/v1/users/{username}", users.Update)
	mux.HandleFunc("GET /api/v1/moments", feed.List)
	mux.HandleFunc("POST /api/v1/moments", feed.Create)
	mux.HandleFunc("POST /api/v1/moments/{momentID}/comments", feed.Comment)
	mux.HandleFunc("POST /api/v1/moments/{momentID}/like", feed.Like)
	mux.HandleFunc("DELETE /api/v1/moments/{momentID}", feed.Delete)
	mux.HandleFunc("GET /ws", ws.Serve)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users          UserStore
	Friends        FriendLister
	Feed           FeedService
	Images         ImageStore
	Registry       *realtime.Registry
	Intents        realtime.IntentHandler
	ConnectLimiter middleware.RateLimiter
	Logger         *slog.Logger
}
