package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/config"
	"github.com/kevinmaint/maint-api/internal/location"
	"github.com/kevinmaint/maint-api/internal/queue"
	"github.com/kevinmaint/maint-api/internal/services/ai"
)

func locationSettings() config.LocationSettings {
	return config.LocationSettings{
		DetectionTimeout:        4 * time.Second,
		SearchRadiusMeters:      250,
		HighConfidenceRadius:    30,
		CacheExpiry:             14 * 24 * time.Hour,
		WiFiCacheMaxAge:         72 * time.Hour,
		MaxCacheEntries:         50,
		WiFiConfidenceThreshold: 0.7,
	}
}

func TestDetectorConfig(t *testing.T) {
	t.Parallel()

	cfg := DetectorConfig(locationSettings())
	defaults := location.DefaultConfig()

	assert.Equal(t, 4*time.Second, cfg.Timeout)
	assert.Equal(t, 250, cfg.SearchRadiusMeters)
	assert.InDelta(t, 30.0, cfg.HighConfidenceRadius, 1e-9)
	assert.Equal(t, 72*time.Hour, cfg.WiFiCacheMaxAge)
	assert.InDelta(t, 0.7, cfg.WiFiConfidenceThreshold, 1e-9)
	assert.InDelta(t, defaults.WiFiCacheConfidence, cfg.WiFiCacheConfidence, 1e-9)
	assert.InDelta(t, defaults.PartialMatchBonus, cfg.PartialMatchBonus, 1e-9)
}

func TestCachePolicy(t *testing.T) {
	t.Parallel()

	policy := CachePolicy(locationSettings())
	assert.Equal(t, 14*24*time.Hour, policy.MaxAge)
	assert.Equal(t, 50, policy.MaxEntries)
}

func TestFingerprintCache(t *testing.T) {
	t.Parallel()

	t.Run("memory without redis", func(t *testing.T) {
		t.Parallel()
		_, ok := FingerprintCache(nil, locationSettings()).(*location.MemoryCache)
		assert.True(t, ok, "expected a memory cache")
	})

	t.Run("redis when connected", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		client, err := Redis(context.Background(), "redis://"+mr.Addr()+"/0")
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })

		cache := FingerprintCache(client, locationSettings())
		_, ok := cache.(*location.RedisCache)
		require.True(t, ok, "expected a redis cache")

		entries, err := cache.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestRedis_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := Redis(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestEngines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cfg          config.Config
		wantEngine   string
		wantAnalyzer bool
		wantErr      bool
	}{
		{
			name:       "keyword without key",
			cfg:        config.Config{AIProposalBackend: config.BackendKeyword},
			wantEngine: ai.KeywordEngineName,
		},
		{
			name:         "keyword with key still analyzes photos",
			cfg:          config.Config{AIProposalBackend: config.BackendKeyword, OpenAIKey: "sk-test"},
			wantEngine:   ai.KeywordEngineName,
			wantAnalyzer: true,
		},
		{
			name:         "openai",
			cfg:          config.Config{AIProposalBackend: config.BackendOpenAI, OpenAIKey: "sk-test"},
			wantEngine:   ai.OpenAIEngineName,
			wantAnalyzer: true,
		},
		{
			name:    "openai without key",
			cfg:     config.Config{AIProposalBackend: config.BackendOpenAI},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     config.Config{AIProposalBackend: "oracle"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine, analyzer, err := Engines(&tt.cfg, zap.NewNop(), false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEngine, engine.Name())
			assert.Equal(t, tt.wantAnalyzer, analyzer != nil)
		})
	}
}

func TestConnectQueue(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()

		calls := 0
		dial := func(string, *zap.Logger) (*queue.RabbitMQQueue, error) {
			calls++
			return nil, dialErr
		}
		_, err := ConnectQueue(context.Background(), "amqp://localhost", 1, dial, zap.NewNop())
		require.ErrorIs(t, err, dialErr)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		dial := func(string, *zap.Logger) (*queue.RabbitMQQueue, error) {
			return nil, dialErr
		}
		_, err := ConnectQueue(ctx, "amqp://localhost", 5, dial, zap.NewNop())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
