package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-fulfillment-service/config"
	"content-fulfillment-service/internal/adapter/generation"
	httpHandler "content-fulfillment-service/internal/adapter/http/handler"
	"content-fulfillment-service/internal/adapter/publishing"
	pgStorage "content-fulfillment-service/internal/adapter/storage/postgres"
	redisStorage "content-fulfillment-service/internal/adapter/storage/redis"
	"content-fulfillment-service/internal/core/ports"
	"content-fulfillment-service/internal/service"
	"content-fulfillment-service/internal/worker"
	"content-fulfillment-service/pkg/logger"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("api", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Content Fulfillment Service")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	orderRepo := pgStorage.NewOrderRepo(pool)
	jobRepo := pgStorage.NewJobRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	artifactRepo := pgStorage.NewArtifactRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	dedupStore := redisStorage.NewEventDedupStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Task queue producer
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()
	enqueuer := worker.NewEnqueuer(asynqClient, cfg.Queue.QueueName)

	// Initialize core services
	sigSvc := service.NewWebhookSignatureService(cfg.Payment.SignatureTolerance)
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)

	// Initialize business services
	authSvc := service.NewAuthService(cfg.Auth.OperatorUsername, cfg.Auth.OperatorPasswordHash, hashSvc, tokenSvc, log)
	ingestSvc := service.NewIngestService(
		sigSvc, dedupStore, eventRepo,
		orderRepo, jobRepo, auditRepo,
		enqueuer, transactor,
		service.IngestConfig{
			WebhookSecret:      cfg.Payment.WebhookSecret,
			SucceededEventType: cfg.Payment.SucceededEventType,
			DedupTTL:           cfg.Payment.DedupTTL,
			DefaultQuantity:    cfg.Fulfillment.PostsPerOrder,
		},
		log,
	)
	generator := generation.NewOpenAIClient(cfg.Generation, log)
	publisher := publishing.NewWordPressClient(cfg.Publishing, log)
	fulfillmentSvc := service.NewFulfillmentService(
		orderRepo, jobRepo, auditRepo, artifactRepo,
		generator, publisher,
		enqueuer, transactor,
		cfg.Fulfillment.MaxAttempts, log,
	)
	retrySvc := service.NewRetryService(
		orderRepo, jobRepo, auditRepo,
		enqueuer, transactor,
		cfg.Fulfillment.MaxAttempts, log,
	)
	reportingSvc := service.NewReportingService(orderRepo, jobRepo, auditRepo, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		IngestSvc:      ingestSvc,
		AuthSvc:        authSvc,
		ReportingSvc:   reportingSvc,
		FulfillmentSvc: fulfillmentSvc,
		RetrySvc:       retrySvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
