package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/bootstrap"
	"github.com/kevinmaint/maint-api/internal/config"
	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/handlers"
	"github.com/kevinmaint/maint-api/internal/location"
	"github.com/kevinmaint/maint-api/internal/logger"
	"github.com/kevinmaint/maint-api/internal/middleware"
	"github.com/kevinmaint/maint-api/internal/queue"
	"github.com/kevinmaint/maint-api/internal/services/oidc"
	"github.com/kevinmaint/maint-api/internal/services/thread"
	"github.com/kevinmaint/maint-api/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	openAPIPath := flag.String("openapi", filepath.Join("api", "openapi", "openapi.yaml"), "Path to the OpenAPI document")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(logger.Options{Service: serviceName, Debug: debugMode})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_proposal_backend", cfg.AIProposalBackend),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, tracing := telemetry.Setup(ctx, telemetry.Settings{
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
	if err := db.Migrate(ctx); err != nil {
		zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	// Without Redis the fingerprint cache and rate limits are per replica
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = bootstrap.Redis(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("redis_unavailable_using_memory_stores", zap.Error(err))
			redisClient = nil
		} else {
			zapLogger.Info("connected_to_redis")
			defer func() {
				if err := redisClient.Close(); err != nil {
					zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
				}
			}()
		}
	}

	var jobQueue *queue.RabbitMQQueue
	var jobs queue.Enqueuer
	if cfg.RabbitMQURL != "" {
		jobQueue, err = bootstrap.ConnectQueue(ctx, cfg.RabbitMQURL, 10, nil, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		jobs = jobQueue
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	} else {
		zapLogger.Info("rabbitmq_not_configured_proposals_run_inline")
	}

	// Repositories
	issueRepo := database.NewIssueRepository(db)
	threadRepo := database.NewThreadRepository(db)
	summaryRepo := database.NewSummaryRepository(db)
	workLogRepo := database.NewWorkLogRepository(db)
	userRepo := database.NewUserRepository(db)
	bugReportRepo := database.NewBugReportRepository(db)

	// Services
	engine, analyzer, err := bootstrap.Engines(cfg, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_create_proposal_engine", zap.Error(err))
	}
	if analyzer == nil {
		zapLogger.Warn("openai_key_not_configured_image_analysis_disabled")
	}
	threadService := thread.NewService(issueRepo, threadRepo, summaryRepo, engine, jobs, zapLogger)

	cache := bootstrap.FingerprintCache(redisClient, cfg.Location)
	detector := bootstrap.Detector(cfg, cache, zapLogger)
	retrySessions := location.NewRetrySessions(cfg.Location.RetrySessionTTL)

	oidcProvider := oidc.NewProvider(oidc.Settings{
		Issuer:       cfg.OIDCIssuer,
		JWKSURL:      cfg.OIDCJWKSURL,
		Audience:     cfg.OIDCAudience,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURI:  cfg.OIDCRedirectURI,
	})
	verifier := oidc.NewVerifier(oidc.NewKeyCache(oidc.DefaultKeyTTL), oidcProvider)

	var exchanger handlers.CodeExchanger
	if cfg.OIDCClientSecret != "" {
		loginCfg, err := oidcProvider.GetLoginConfig(ctx)
		if err != nil {
			zapLogger.Warn("oidc_discovery_failed_code_exchange_disabled", zap.Error(err))
		} else {
			exchanger = oidc.NewClient(oidcProvider.Settings(), loginCfg)
		}
	}

	rateLimit, err := middleware.RateLimit(redisClient, cfg.RateLimitRate)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	health := handlers.NewHealthChecker(version).
		AddCheck("database", db.PingContext).
		AddCheck("redis", redisCheck(redisClient)).
		AddCheck("rabbitmq", queueCheck(jobQueue))

	router := newRouter(routerDeps{
		logger:      zapLogger,
		tracing:     tracing,
		enableHSTS:  cfg.EnableHSTS,
		corsOrigins: cfg.CORSAllowedOrigins,
		verifier:    verifier,
		users:       userRepo,
		rateLimit:   rateLimit,
		health:      health,
		openAPI:     handlers.NewOpenAPIHandler(*openAPIPath),
		auth:        handlers.NewAuthHandler(oidcProvider, exchanger, zapLogger),
		issues:      handlers.NewIssueHandler(issueRepo, workLogRepo, threadService, analyzer, zapLogger),
		threads:     handlers.NewThreadHandler(issueRepo, threadService, zapLogger),
		location:    handlers.NewLocationHandler(detector, retrySessions, zapLogger),
		bugReports:  handlers.NewBugReportHandler(bugReportRepo, zapLogger),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

func redisCheck(client *redis.Client) handlers.CheckFunc {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func queueCheck(q *queue.RabbitMQQueue) handlers.CheckFunc {
	if q == nil {
		return nil
	}
	return q.HealthCheck
}
