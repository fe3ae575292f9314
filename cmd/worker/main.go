package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"github.com/rxlens/rxlens-api/internal/config"
	"github.com/rxlens/rxlens-api/internal/email"
	"github.com/rxlens/rxlens-api/internal/extractor"
	"github.com/rxlens/rxlens-api/internal/repository/postgres"
	"github.com/rxlens/rxlens-api/internal/service/prescription"
	sessionStore "github.com/rxlens/rxlens-api/internal/session"
	"github.com/rxlens/rxlens-api/pkg/logger"
	"github.com/rxlens/rxlens-api/pkg/messaging/redis"
	"github.com/rxlens/rxlens-api/pkg/metrics"
	"github.com/rxlens/rxlens-api/pkg/worker"
)

func setupHealthCheck(port int, logger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			logger.ZL.Error().Err(err).Msg("Health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger := &logger.Logger{ZL: log.Logger}

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

	m := metrics.NewMetrics("rxlens", "worker")

	prescriptionSvc := prescription.NewService(
		sessionStore.NewStore(cfg.Session.TTL, cfg.Session.CleanupInterval),
		ext,
		recordRepo,
		jobRepo,
		broker,
		email.NewService(cfg.SMTP),
		m,
		"worker",
	)

	processor := worker.NewExtractionProcessor(
		prescriptionSvc,
		jobRepo,
		broker,
		worker.ExtractionProcessorConfig{
			BatchSize:    cfg.Worker.BatchSize,
			PollInterval: cfg.Worker.PollInterval,
			MaxRetries:   cfg.Worker.MaxRetries,
			RetryDelay:   cfg.Worker.RetryDelay,
		},
		logger,
		m,
	)

	setupHealthCheck(cfg.Worker.HealthPort, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.ZL.Info().Msg("Shutting down...")
		cancel()
	}()

	processor.Start(ctx)
}
