package router

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anonto42/threadline/backend/internal/handlers"
	"github.com/anonto42/threadline/backend/internal/middleware"
	"github.com/anonto42/threadline/backend/internal/realtime"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/internal/services"
	"github.com/anonto42/threadline/backend/pkg/config"
	"github.com/anonto42/threadline/backend/pkg/firebase"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// Deps carries everything the HTTP layer is built from
type Deps struct {
	Config *config.Config

	// Verifier is required when Config.AuthMode is "firebase"
	Verifier firebase.TokenVerifier
	// Embedder reports the embedding provider on /health; may be nil
	Embedder handlers.BreakerState

	Users     repositories.UserRepository
	Threads   *services.ThreadService
	Reactions *services.ReactionService
	Feed      *services.FeedService
	Graph     *services.GraphService
	Inbox     *services.NotificationService
	Gateway   *realtime.Gateway
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Deps) error {
	cfg := deps.Config

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck(deps.Embedder))
	if cfg.MetricsPort == "" {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	auth, err := authMiddleware(deps)
	if err != nil {
		return err
	}

	// --- Protected routes ---
	api := e.Group("/api/v1")
	api.Use(auth)
	if cfg.RateLimit > 0 {
		api.Use(middleware.RateLimiter(cfg.RateLimit))
	}
	logging.Info().Str("auth_mode", cfg.AuthMode).Msg("authentication middleware applied to /api/v1 group")

	if isFirebase(cfg.AuthMode) {
		handlers.NewAuthHandler(deps.Users).RegisterAuthRoutes(api)
	}

	handlers.NewUserHandler(deps.Users).RegisterProfileRoutes(api)
	handlers.NewThreadHandler(deps.Threads).RegisterThreadRoutes(api)
	handlers.NewReactionHandler(deps.Reactions).RegisterReactionRoutes(api)
	handlers.NewFeedHandler(deps.Feed).RegisterFeedRoutes(api)
	handlers.NewFollowHandler(deps.Graph, deps.Users).RegisterFollowRoutes(api)
	handlers.NewNotificationHandler(deps.Inbox).RegisterNotificationRoutes(api)
	handlers.NewRealtimeHandler(deps.Gateway).RegisterRealtimeRoutes(api)

	logging.Info().Int("routes", len(e.Routes())).Msg("all routes configured")
	return nil
}

func isFirebase(mode string) bool {
	return strings.EqualFold(mode, "firebase")
}

func authMiddleware(deps Deps) (echo.MiddlewareFunc, error) {
	switch {
	case isFirebase(deps.Config.AuthMode):
		if deps.Verifier == nil {
			return nil, fmt.Errorf("auth mode firebase requires a token verifier")
		}
		return middleware.FirebaseAuthMiddleware(deps.Verifier, deps.Users), nil
	case strings.EqualFold(deps.Config.AuthMode, "jwt"):
		if deps.Config.JWTSecret == "" {
			return nil, fmt.Errorf("auth mode jwt requires JWT_SECRET")
		}
		return middleware.JWTAuthMiddleware(deps.Config.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", deps.Config.AuthMode)
	}
}
