package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"content-fulfillment-service/config"
	"content-fulfillment-service/internal/adapter/generation"
	"content-fulfillment-service/internal/adapter/publishing"
	pgStorage "content-fulfillment-service/internal/adapter/storage/postgres"
	"content-fulfillment-service/internal/service"
	"content-fulfillment-service/internal/worker"
	"content-fulfillment-service/pkg/logger"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("worker", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("queue", cfg.Queue.QueueName).
		Int("concurrency", cfg.Queue.Concurrency).
		Msg("Starting fulfillment worker")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize repositories
	orderRepo := pgStorage.NewOrderRepo(pool)
	jobRepo := pgStorage.NewJobRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	artifactRepo := pgStorage.NewArtifactRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// The worker enqueues too: Approve from the dashboard is handled by the
	// API, but a publish task may need requeueing after a generation retry.
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	enqueuer := worker.NewEnqueuer(asynqClient, cfg.Queue.QueueName)

	// Collaborators
	generator := generation.NewOpenAIClient(cfg.Generation, log)
	publisher := publishing.NewWordPressClient(cfg.Publishing, log)

	fulfillmentSvc := service.NewFulfillmentService(
		orderRepo, jobRepo, auditRepo, artifactRepo,
		generator, publisher,
		enqueuer, transactor,
		cfg.Fulfillment.MaxAttempts, log,
	)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			cfg.Queue.QueueName: 1,
		},
		Logger:   asynqLogger{log},
		LogLevel: asynqLogLevel(cfg.Log.Level),
	})

	mux := asynq.NewServeMux()
	handler := worker.NewHandler(fulfillmentSvc, log)
	handler.Register(mux)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("asynq server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down worker...")

	srv.Shutdown()
	log.Info().Msg("Worker exited")
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }

func asynqLogLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
