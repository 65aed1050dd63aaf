package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/chats"
	"github.com/sealchat/backend/internal/config"
	"github.com/sealchat/backend/internal/contacts"
	"github.com/sealchat/backend/internal/db"
	"github.com/sealchat/backend/internal/handlers"
	"github.com/sealchat/backend/internal/messages"
	"github.com/sealchat/backend/internal/middleware"
	"github.com/sealchat/backend/internal/presence"
	"github.com/sealchat/backend/internal/repositories"
	"github.com/sealchat/backend/internal/storage"
	"github.com/sealchat/backend/internal/users"
	"github.com/sealchat/backend/internal/ws"
)

// buildDependencies wires together concrete implementations used by the
// HTTP handlers and the realtime gateway.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, error) {
	userRepo := repositories.NewPostgresUserRepository(pool)
	usernameRepo := repositories.NewPostgresUsernameRepository(pool)
	sessionRepo := repositories.NewPostgresSessionRepository(pool)
	contactRepo := repositories.NewPostgresContactRequestRepository(pool)
	chatRepo := repositories.NewPostgresChatRepository(pool)
	messageRepo := repositories.NewPostgresMessageRepository(pool)

	resolver := chats.NewResolver(chatRepo)
	recorder := messages.NewRecorder(messageRepo, resolver)
	tracker := buildPresenceTracker(cfg, logger)

	hub := ws.NewHub(recorder, tracker, logger)

	sessionStore := auth.NewSessionStore(sessionRepo, cfg.SessionTTL)
	authenticator := auth.NewAuthenticator(sessionStore, userRepo)
	userService := users.NewService(userRepo, usernameRepo)
	workflow := contacts.NewWorkflow(contactRepo, userRepo, resolver, hub)

	deps := handlers.Dependencies{
		Users:    userService,
		Sessions: sessionStore,
		Contacts: workflow,
		Chats:    resolver,
		Presence: tracker,

		Authenticator: authenticator,
		Cookies: auth.CookieWriter{
			Secure:     cfg.Production(),
			AccessTTL:  cfg.AccessCookieTTL,
			RefreshTTL: cfg.SessionTTL,
		},
		AuthLimiter: middleware.NewIPRateLimiter(cfg.AuthRateLimit, time.Minute, cfg.AuthRateBurst, cfg.AuthRateTTL),

		Realtime: ws.NewHandler(hub, authenticator),
	}

	if strings.TrimSpace(cfg.ObjectStore.Bucket) != "" {
		media, err := storage.NewMediaStore(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, err
		}
		deps.Media = media
	} else {
		logger.Info("media storage disabled, no bucket configured")
	}

	return deps, nil
}

// buildPresenceTracker prefers Redis so presence survives process
// restarts and is shared across instances; without a configured address
// it falls back to an in-process TTL map.
func buildPresenceTracker(cfg config.Config, logger *slog.Logger) presence.Tracker {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logger.Info("presence tracker running in-process, no redis configured")
		return presence.NewMemoryTracker(cfg.PresenceTTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return presence.NewRedisTracker(client, cfg.PresenceTTL)
}
