package app

import (
	"context"
	"log/slog"

	"codeberg.org/gruf/go-mutexes"

	"github.com/momentchat/backend/internal/chat"
	"github.com/momentchat/backend/internal/config"
	"github.com/momentchat/backend/internal/db"
	"github.com/momentchat/backend/internal/gateway"
	"github.com/momentchat/backend/internal/handlers"
	"github.com/momentchat/backend/internal/middleware"
	"github.com/momentchat/backend/internal/moments"
	"github.com/momentchat/backend/internal/presence"
	"github.com/momentchat/backend/internal/realtime"
	"github.com/momentchat/backend/internal/repositories"
	"github.com/momentchat/backend/internal/social"
	"github.com/momentchat/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers and the realtime gateway.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, error) {
	users := repositories.NewPostgresUserRepository(pool)
	friends := repositories.NewPostgresFriendRepository(pool)
	messages := repositories.NewPostgresMessageRepository(pool)
	momentStore := repositories.NewPostgresMomentRepository(pool)

	registry := realtime.NewRegistry(logger)

	// One lock map shared by every service so username keys serialize across
	// presence, social, and feed operations alike.
	locks := &mutexes.MutexMap{}

	var images *storage.S3Storage
	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, err
		}
		images = store
	} else {
		logger.Warn("image bucket not configured, moment uploads disabled")
	}

	var remover moments.ImageRemover
	if images != nil {
		remover = images
	}

	presenceManager := presence.NewManager(users, friends, momentStore, registry, locks, logger)
	socialEngine := social.NewEngine(users, friends, registry, locks, logger)
	relay := chat.NewRelay(users, messages, registry, logger)
	feed := moments.NewService(users, friends, momentStore, registry, remover, locks, logger)

	intents := gateway.New(presenceManager, socialEngine, relay, registry, logger)

	deps := handlers.Dependencies{
		Users:          users,
		Friends:        friends,
		Feed:           feed,
		Registry:       registry,
		Intents:        intents,
		ConnectLimiter: middleware.NewIPRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, cfg.LoginRateLimit, 5*cfg.LoginRateWindow),
		Logger:         logger,
	}
	if images != nil {
		deps.Images = images
	}

	return deps, nil
}
