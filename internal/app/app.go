// Package app assembles repositories, services and live delivery from a
// Config. Both the API server and threadctl start from here.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/anonto42/threadline/backend/internal/realtime"
	"github.com/anonto42/threadline/backend/internal/repositories"
	"github.com/anonto42/threadline/backend/internal/router"
	"github.com/anonto42/threadline/backend/internal/services"
	"github.com/anonto42/threadline/backend/pkg/config"
	"github.com/anonto42/threadline/backend/pkg/firebase"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

// App is the wired backend
type App struct {
	Config *config.Config
	DB     *config.DB
	Redis  *redis.Client

	Gateway *realtime.Gateway
	Relay   *realtime.Relay

	Users       *repositories.PostgresUserRepository
	ThreadStore *repositories.MongoThreadRepository

	Threads   *services.ThreadService
	Reactions *services.ReactionService
	Feed      *services.FeedService
	Graph     *services.GraphService
	Inbox     *services.NotificationService

	breaker *services.BreakerEmbedder
	closers []func() error
}

// New connects the stores and builds the services
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}

	if a.Redis, err = config.InitRedis(cfg); err != nil {
		a.Close()
		return nil, err
	}

	a.Gateway = realtime.NewGateway()
	var pusher services.Pusher = a.Gateway
	if a.Redis != nil {
		a.Relay = realtime.NewRelay(a.Redis, cfg.RedisChannel, a.Gateway)
		pusher = a.Relay
	}

	embedder, err := a.embedder(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Users = repositories.NewPostgresUserRepository(db.Postgres)
	a.ThreadStore = repositories.NewMongoThreadRepository(db.MongoDB)
	follows := repositories.NewPostgresFollowRepository(db.Postgres)
	notifications := repositories.NewPostgresNotificationRepository(db.Postgres)

	rates := services.LearningRates(cfg.LearningRates)
	interest := services.NewInterestService(a.Users)
	a.Inbox = services.NewNotificationService(notifications, a.Users, a.ThreadStore, pusher, cfg.FollowCooldown)
	a.Threads = services.NewThreadService(a.ThreadStore, a.Users, follows, embedder, interest, a.Inbox, rates)
	a.Reactions = services.NewReactionService(a.ThreadStore, a.Users, follows, interest, a.Inbox, rates)
	a.Feed = services.NewFeedService(a.ThreadStore, a.Users, follows, services.NewScorer(cfg.FeedRanking), cfg.FeedPageSize)
	a.Graph = services.NewGraphService(a.Users, follows, a.Inbox)

	return a, nil
}

func (a *App) embedder(ctx context.Context) (services.Embedder, error) {
	if a.Config.GeminiAPIKey == "" {
		logging.Warn().Msg("GEMINI_API_KEY not set, threads are stored without embeddings")
		return services.NoopEmbedder{}, nil
	}
	gemini, err := services.NewGeminiEmbedder(ctx, a.Config.GeminiAPIKey, a.Config.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, gemini.Close)
	a.breaker = services.NewBreakerEmbedder(gemini, services.BreakerConfig{})
	return a.breaker, nil
}

// Migrate brings the relational schema and the thread indexes up to date
func (a *App) Migrate(ctx context.Context) error {
	if err := config.AutoMigrate(a.DB.Postgres); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := a.ThreadStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("thread indexes: %w", err)
	}
	logging.Info().Msg("migrations completed")
	return nil
}

// StartRelay subscribes to the cross-instance channel when redis is
// configured.
func (a *App) StartRelay(ctx context.Context) error {
	if a.Relay == nil {
		return nil
	}
	return a.Relay.Start(ctx)
}

// RouterDeps exposes the services to the HTTP layer
func (a *App) RouterDeps(verifier firebase.TokenVerifier) router.Deps {
	deps := router.Deps{
		Config:    a.Config,
		Verifier:  verifier,
		Users:     a.Users,
		Threads:   a.Threads,
		Reactions: a.Reactions,
		Feed:      a.Feed,
		Graph:     a.Graph,
		Inbox:     a.Inbox,
		Gateway:   a.Gateway,
	}
	if a.breaker != nil {
		deps.Embedder = a.breaker
	}
	return deps
}

// Close releases every connection. Safe on a partially built App.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			logging.Warn().Err(err).Msg("close failed")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing Redis connection")
		}
	}
	if a.DB != nil {
		a.DB.CloseDB()
	}
}

// BackfillEmbeddings embeds up to limit threads stored without an embedding
func (a *App) BackfillEmbeddings(ctx context.Context, limit int64) (int, error) {
	return a.Threads.BackfillEmbeddings(ctx, limit)
}
