package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DatabaseURL        string
	ServerPort         string
	BaseURL            string
	CORSAllowedOrigins []string
	EnableHSTS         bool
	ServerDebugMode    bool
	WorkerDebugMode    bool

	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int

	OpenAIKey         string
	AIProposalBackend string
	AIModel           string
	AIBaseURL         string

	GooglePlacesAPIKey  string
	GooglePlacesBaseURL string

	OIDCIssuer       string
	OIDCJWKSURL      string
	OIDCAudience     string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURI  string

	RateLimitRate string

	OTELEnabled  bool
	OTELEndpoint string

	Location LocationSettings
	Jobs     JobSettings
}

// LocationSettings tunes location detection and the fingerprint cache
type LocationSettings struct {
	DetectionTimeout        time.Duration
	SearchRadiusMeters      int
	HighConfidenceRadius    float64
	CacheExpiry             time.Duration
	WiFiCacheMaxAge         time.Duration
	MaxCacheEntries         int
	WiFiConfidenceThreshold float64
	RetrySessionTTL         time.Duration
}

// JobSettings controls background maintenance done by the worker
type JobSettings struct {
	DLQGCInterval      time.Duration
	DLQRetention       time.Duration
	CachePruneInterval time.Duration
}

// AI proposal backends selectable with AI_PROPOSAL_BACKEND
const (
	BackendKeyword = "keyword"
	BackendOpenAI  = "openai"
)

var defaults = map[string]any{
	"server_port":          "8080",
	"base_url":             "http://localhost:8080",
	"cors_allowed_origins": "*",
	"enable_hsts":          false,
	"server_debug_mode":    false,
	"worker_debug_mode":    false,

	"redis_url":         "redis://localhost:6379/0",
	"rabbitmq_prefetch": 1,

	"ai_proposal_backend": BackendKeyword,

	"google_places_base_url": "https://maps.googleapis.com/maps/api/place/nearbysearch/json",

	"rate_limit": "120-M",

	"otel_enabled": false,

	"location_detection_timeout":         "10s",
	"location_search_radius_meters":      500,
	"location_high_confidence_radius":    50.0,
	"location_cache_expiry_days":         30,
	"location_wifi_cache_max_age":        "168h",
	"location_max_cache_entries":         100,
	"location_wifi_confidence_threshold": 0.8,
	"location_retry_session_ttl":         "30m",

	"dlq_gc_interval":      "1h",
	"dlq_retention":        "168h",
	"cache_prune_interval": "6h",
}

// Load loads configuration from environment variables. A .env file in the
// working directory and an optional config file named by CONFIG_FILE are read
// first; real environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*Config, error) {
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DatabaseURL:        v.GetString("database_url"),
		ServerPort:         v.GetString("server_port"),
		BaseURL:            v.GetString("base_url"),
		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
		EnableHSTS:         v.GetBool("enable_hsts"),
		ServerDebugMode:    v.GetBool("server_debug_mode"),
		WorkerDebugMode:    v.GetBool("worker_debug_mode"),

		RedisURL:         v.GetString("redis_url"),
		RabbitMQURL:      v.GetString("rabbitmq_url"),
		RabbitMQPrefetch: v.GetInt("rabbitmq_prefetch"),

		OpenAIKey:         v.GetString("openai_api_key"),
		AIProposalBackend: strings.ToLower(v.GetString("ai_proposal_backend")),
		AIModel:           v.GetString("ai_model"),
		AIBaseURL:         v.GetString("ai_base_url"),

		GooglePlacesAPIKey:  v.GetString("google_places_api_key"),
		GooglePlacesBaseURL: v.GetString("google_places_base_url"),

		OIDCIssuer:       v.GetString("oidc_issuer"),
		OIDCJWKSURL:      v.GetString("oidc_jwks_url"),
		OIDCAudience:     v.GetString("oidc_audience"),
		OIDCClientID:     v.GetString("oidc_client_id"),
		OIDCClientSecret: v.GetString("oidc_client_secret"),
		OIDCRedirectURI:  v.GetString("oidc_redirect_uri"),

		RateLimitRate: v.GetString("rate_limit"),

		OTELEnabled:  v.GetBool("otel_enabled"),
		OTELEndpoint: v.GetString("otel_exporter_otlp_endpoint"),

		Location: LocationSettings{
			DetectionTimeout:        v.GetDuration("location_detection_timeout"),
			SearchRadiusMeters:      v.GetInt("location_search_radius_meters"),
			HighConfidenceRadius:    v.GetFloat64("location_high_confidence_radius"),
			CacheExpiry:             time.Duration(v.GetInt("location_cache_expiry_days")) * 24 * time.Hour,
			WiFiCacheMaxAge:         v.GetDuration("location_wifi_cache_max_age"),
			MaxCacheEntries:         v.GetInt("location_max_cache_entries"),
			WiFiConfidenceThreshold: v.GetFloat64("location_wifi_confidence_threshold"),
			RetrySessionTTL:         v.GetDuration("location_retry_session_ttl"),
		},
		Jobs: JobSettings{
			DLQGCInterval:      v.GetDuration("dlq_gc_interval"),
			DLQRetention:       v.GetDuration("dlq_retention"),
			CachePruneInterval: v.GetDuration("cache_prune_interval"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.AIProposalBackend {
	case BackendKeyword:
	case BackendOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROPOSAL_BACKEND=openai")
		}
	default:
		return fmt.Errorf("unknown AI_PROPOSAL_BACKEND %q", c.AIProposalBackend)
	}

	if c.Location.DetectionTimeout <= 0 {
		return fmt.Errorf("LOCATION_DETECTION_TIMEOUT must be positive")
	}
	if c.Location.SearchRadiusMeters <= 0 {
		return fmt.Errorf("LOCATION_SEARCH_RADIUS_METERS must be positive")
	}
	if c.Location.MaxCacheEntries <= 0 {
		return fmt.Errorf("LOCATION_MAX_CACHE_ENTRIES must be positive")
	}
	if t := c.Location.WiFiConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("LOCATION_WIFI_CONFIDENCE_THRESHOLD must be between 0 and 1")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
