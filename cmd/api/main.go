package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"github.com/rxlens/rxlens-api/internal/config"
	"github.com/rxlens/rxlens-api/internal/email"
	"github.com/rxlens/rxlens-api/internal/extractor"
	authHandler "github.com/rxlens/rxlens-api/internal/handler/auth"
	healthHandler "github.com/rxlens/rxlens-api/internal/handler/health"
	sessionHandler "github.com/rxlens/rxlens-api/internal/handler/session"
	"github.com/rxlens/rxlens-api/internal/middleware"
	"github.com/rxlens/rxlens-api/internal/repository/postgres"
	"github.com/rxlens/rxlens-api/internal/router"
	"github.com/rxlens/rxlens-api/internal/service/prescription"
	sessionStore "github.com/rxlens/rxlens-api/internal/session"
	"github.com/rxlens/rxlens-api/pkg/auth"
	"github.com/rxlens/rxlens-api/pkg/messaging/redis"
	"github.com/rxlens/rxlens-api/pkg/metrics"
	"github.com/rxlens/rxlens-api/pkg/security"
)

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	recordRepo := postgres.NewRecordRepository(db)
	jobRepo := postgres.NewJobRepository(db)

	ext := extractor.NewOpenAIExtractor(extractor.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
	})

	sessions := sessionStore.NewStore(cfg.Session.TTL, cfg.Session.CleanupInterval)
	emailSvc := email.NewService(cfg.SMTP)
	m := metrics.NewMetrics("rxlens", "api")

	prescriptionSvc := prescription.NewService(
		sessions, ext, recordRepo, jobRepo, broker, emailSvc, m, "api",
	)

	// Evict cached sessions when the worker merges an async job, so
	// reads here pick up the worker's result from postgres.
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	go func() {
		if err := prescriptionSvc.WatchRecordUpdates(watchCtx); err != nil {
			log.Error().Err(err).Msg("record update watcher stopped")
		}
	}()

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	verifier := security.NewAPIKeyVerifier(cfg.Clients)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	r := router.NewRouter(
		authMiddleware,
		authHandler.NewHandler(verifier, jwtSvc),
		sessionHandler.NewHandler(prescriptionSvc, cfg.Upload.MaxUploadSize),
		healthHandler.NewHandler(db),
		router.RouterConfig{
			RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
			RateLimitBurst: cfg.RateLimit.Burst,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodySize:    cfg.Upload.MaxBodySize,
			CORSConfig:     middleware.DefaultCORSConfig(),
			MetricsPrefix:  "rxlens_http",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
