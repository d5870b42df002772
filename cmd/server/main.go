package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anonto42/threadline/backend/internal/app"
	"github.com/anonto42/threadline/backend/internal/router"
	"github.com/anonto42/threadline/backend/internal/validators"
	"github.com/anonto42/threadline/backend/pkg/config"
	"github.com/anonto42/threadline/backend/pkg/firebase"
	"github.com/anonto42/threadline/backend/pkg/logging"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize stores and services
	backend, err := app.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize backend")
	}
	defer backend.Close()

	if err := backend.Migrate(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to migrate")
	}
	if err := backend.StartRelay(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to start live relay")
	}

	var verifier firebase.TokenVerifier
	if strings.EqualFold(cfg.AuthMode, "firebase") {
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize Firebase")
		}
		verifier = firebaseApp.AuthClient
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e)

	if err := router.SetupRoutes(e, backend.RouterDeps(verifier)); err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure routes")
	}

	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logging.Info().Str("port", cfg.MetricsPort).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logging.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
}
