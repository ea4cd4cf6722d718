// Package bootstrap builds the dependencies shared by the API server, the
// worker and maintctl from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/config"
	"github.com/kevinmaint/maint-api/internal/location"
	"github.com/kevinmaint/maint-api/internal/queue"
	"github.com/kevinmaint/maint-api/internal/services/ai"
)

// Redis connects to redisURL and verifies the connection with a ping
func Redis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// CachePolicy maps the location settings onto the fingerprint cache's retention policy
func CachePolicy(s config.LocationSettings) location.CachePolicy {
	return location.CachePolicy{MaxAge: s.CacheExpiry, MaxEntries: s.MaxCacheEntries}
}

// FingerprintCache returns the Redis-backed cache when a client is available
// and a process-local one otherwise
func FingerprintCache(client *redis.Client, s config.LocationSettings) location.FingerprintCache {
	if client == nil {
		return location.NewMemoryCache(CachePolicy(s))
	}
	return location.NewRedisCache(client, CachePolicy(s))
}

// DetectorConfig maps the location settings onto the detector's tuning,
// keeping the built-in confidence constants
func DetectorConfig(s config.LocationSettings) location.Config {
	cfg := location.DefaultConfig()
	cfg.Timeout = s.DetectionTimeout
	cfg.SearchRadiusMeters = s.SearchRadiusMeters
	cfg.HighConfidenceRadius = s.HighConfidenceRadius
	cfg.WiFiCacheMaxAge = s.WiFiCacheMaxAge
	cfg.WiFiConfidenceThreshold = s.WiFiConfidenceThreshold
	return cfg
}

// Detector wires the Places client, the cache and the configured tuning
func Detector(cfg *config.Config, cache location.FingerprintCache, logger *zap.Logger) *location.Detector {
	places := location.NewGooglePlacesClient(cfg.GooglePlacesAPIKey, cfg.GooglePlacesBaseURL, logger)
	return location.NewDetector(places, cache, DetectorConfig(cfg.Location), logger)
}

// Engines builds the proposal engine selected by AI_PROPOSAL_BACKEND and, when
// an OpenAI key is configured, the photo analyzer. analyzer is nil without a key.
func Engines(cfg *config.Config, logger *zap.Logger, debugMode bool) (ai.ProposalEngine, ai.ImageAnalyzer, error) {
	var openAI *ai.OpenAIEngine
	if cfg.OpenAIKey != "" {
		openAI = ai.NewOpenAIEngine(ai.OpenAIConfig{
			APIKey:    cfg.OpenAIKey,
			BaseURL:   cfg.AIBaseURL,
			Model:     cfg.AIModel,
			DebugMode: debugMode,
		}, logger)
	}

	var analyzer ai.ImageAnalyzer
	if openAI != nil {
		analyzer = openAI
	}

	if cfg.AIProposalBackend == config.BackendOpenAI && openAI != nil {
		return openAI, analyzer, nil
	}

	registry := ai.NewEngineRegistry()
	engine, err := registry.GetEngine(cfg.AIProposalBackend, map[string]string{
		"api_key":  cfg.OpenAIKey,
		"model":    cfg.AIModel,
		"base_url": cfg.AIBaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create proposal engine: %w", err)
	}
	return engine, analyzer, nil
}

// QueueDialer opens a queue connection
type QueueDialer func(url string, logger *zap.Logger) (*queue.RabbitMQQueue, error)

// ConnectQueue dials RabbitMQ with exponential backoff, capped at 30s between
// attempts, to ride out broker startup
func ConnectQueue(ctx context.Context, amqpURL string, maxRetries int, dial QueueDialer, logger *zap.Logger) (*queue.RabbitMQQueue, error) {
	if dial == nil {
		dial = queue.NewRabbitMQQueue
	}
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := dial(amqpURL, logger)
		if err == nil {
			logger.Info("connected_to_rabbitmq")
			return q, nil
		}
		lastErr = err

		delay := min(initialDelay*time.Duration(1<<uint(attempt)), 30*time.Second)
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		if attempt == maxRetries-1 {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, lastErr)
}
