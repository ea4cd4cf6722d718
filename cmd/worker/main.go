package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/bootstrap"
	"github.com/kevinmaint/maint-api/internal/config"
	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/logger"
	"github.com/kevinmaint/maint-api/internal/services/thread"
	"github.com/kevinmaint/maint-api/internal/telemetry"
	"github.com/kevinmaint/maint-api/internal/workers"
)

const serviceName = "maint-worker"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Service: serviceName, Debug: debugMode})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_proposal_backend", cfg.AIProposalBackend),
		zap.String("ai_model", cfg.AIModel),
	)

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_required_for_worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, _ := telemetry.Setup(ctx, telemetry.Settings{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: serviceName,
	}, zapLogger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	jobQueue, err := bootstrap.ConnectQueue(ctx, cfg.RabbitMQURL, 10, nil, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	engine, _, err := bootstrap.Engines(cfg, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_create_proposal_engine", zap.Error(err))
	}

	threadService := thread.NewService(
		database.NewIssueRepository(db),
		database.NewThreadRepository(db),
		database.NewSummaryRepository(db),
		engine,
		jobQueue,
		zapLogger,
	)
	analyzer := workers.NewProposalAnalyzer(threadService, jobQueue, zapLogger)

	dlqSweeper := workers.NewSweeper("dead_letter_queue",
		workers.DeadLetterPurge(jobQueue, cfg.Jobs.DLQRetention),
		cfg.Jobs.DLQGCInterval, 2*time.Minute, zapLogger)
	go runBackground(ctx, "dlq_sweeper", dlqSweeper.Start, zapLogger)

	// The memory cache lives inside each API replica, so only a shared Redis cache is pruned here
	if cfg.RedisURL != "" {
		redisClient, err := bootstrap.Redis(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("redis_unavailable_cache_pruning_disabled", zap.Error(err))
		} else {
			defer closeRedis(redisClient, zapLogger)
			cacheSweeper := workers.NewSweeper("fingerprint_cache",
				bootstrap.FingerprintCache(redisClient, cfg.Location).Prune,
				cfg.Jobs.CachePruneInterval, time.Minute, zapLogger)
			go runBackground(ctx, "fingerprint_cache_sweeper", cacheSweeper.Start, zapLogger)
		}
	}

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming_messages", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			zapLogger.Info("worker_shutting_down")
			return
		case msg, ok := <-msgChan:
			if !ok {
				zapLogger.Info("message_channel_closed")
				return
			}
			if err := analyzer.ProcessJob(ctx, msg); err != nil {
				zapLogger.Error("failed_to_process_job",
					zap.Error(err),
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Bool("redelivered", msg.Redelivered),
				)
			}
		}
	}
}

func runBackground(ctx context.Context, name string, start func(context.Context) error, logger *zap.Logger) {
	if err := start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("background_task_stopped", zap.String("task", name), zap.Error(err))
	}
}

func closeRedis(client *redis.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("failed_to_close_redis_connection", zap.Error(err))
	}
}
