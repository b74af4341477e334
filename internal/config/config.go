// Package config loads runtime settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loocate/loocate/internal/cache"
	"github.com/loocate/loocate/internal/nearby"
	"github.com/loocate/loocate/internal/places"
	"github.com/loocate/loocate/internal/screen"
	"github.com/loocate/loocate/internal/telemetry"
)

const (
	ProviderGoogle  = "google"
	ProviderElastic = "elastic"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	Environment string
	Version     string

	PlacesProvider string
	GoogleAPIKey   string
	PlacesBaseURL  string
	PlacesKeyword  string
	PlacesTimeout  time.Duration

	SearchRadiusMeters float64
	CameraDebounce     time.Duration
	CameraAnimation    time.Duration

	ScreenTTL             time.Duration
	ScreenCleanupInterval time.Duration

	RedisEnabled   bool
	Redis          *cache.RedisConfig
	SearchCacheTTL time.Duration

	DatabaseURL string

	ElasticURL   string
	ElasticIndex string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	SentryDSN string

	Log  *telemetry.LogConfig
	OTel *telemetry.Config

	// parse errors found while loading, reported by Validate
	errs []string
}

// Load loads configuration from environment variables. Malformed values
// fall back to their defaults and are reported by Validate.
func Load() *Config {
	c := &Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		GRPCAddr:    envOr("GRPC_ADDR", ":50051"),
		Environment: envOr("ENVIRONMENT", "development"),
		Version:     envOr("SERVICE_VERSION", "dev"),

		PlacesProvider: strings.ToLower(envOr("PLACES_PROVIDER", ProviderGoogle)),
		GoogleAPIKey:   os.Getenv("GOOGLE_PLACES_API_KEY"),
		PlacesBaseURL:  envOr("PLACES_BASE_URL", places.DefaultGoogleBaseURL),
		PlacesKeyword:  envOr("PLACES_KEYWORD", places.DefaultKeyword),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ElasticURL:   envOr("ELASTIC_URL", "http://localhost:9200"),
		ElasticIndex: envOr("ELASTIC_INDEX", "places"),
		SentryDSN:    os.Getenv("SENTRY_DSN"),

		Redis: cache.ConfigFromEnv(),
		Log:   telemetry.LogConfigFromEnv(),
		OTel:  telemetry.LoadConfigFromEnv(),
	}

	c.PlacesTimeout = c.envDuration("PLACES_TIMEOUT", 10*time.Second)
	c.SearchRadiusMeters = c.envFloat("SEARCH_RADIUS_METERS", nearby.DefaultRadiusMeters)
	c.CameraDebounce = c.envDuration("CAMERA_DEBOUNCE", nearby.DefaultScrollDebounce)
	c.CameraAnimation = c.envDuration("CAMERA_ANIMATION", nearby.DefaultAnimationDuration)
	c.ScreenTTL = c.envDuration("SCREEN_TTL", screen.DefaultTTL)
	c.ScreenCleanupInterval = c.envDuration("SCREEN_CLEANUP_INTERVAL", time.Minute)
	c.RedisEnabled = c.envBool("REDIS_ENABLED", false)
	c.SearchCacheTTL = c.envDuration("SEARCH_CACHE_TTL", cache.SearchResultTTL)
	c.RateLimitRequests = c.envInt("RATE_LIMIT_REQUESTS", 120)
	c.RateLimitWindow = c.envDuration("RATE_LIMIT_WINDOW", time.Minute)

	return c
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	problems := append([]string(nil), c.errs...)

	switch c.PlacesProvider {
	case ProviderGoogle:
		if c.GoogleAPIKey == "" {
			problems = append(problems, "GOOGLE_PLACES_API_KEY is required for the google provider")
		}
	case ProviderElastic:
		if c.ElasticURL == "" {
			problems = append(problems, "ELASTIC_URL is required for the elastic provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("PLACES_PROVIDER must be %q or %q, got %q", ProviderGoogle, ProviderElastic, c.PlacesProvider))
	}

	if c.SearchRadiusMeters <= 0 {
		problems = append(problems, "SEARCH_RADIUS_METERS must be positive")
	}
	if c.CameraDebounce < 0 {
		problems = append(problems, "CAMERA_DEBOUNCE must not be negative")
	}
	if c.ScreenTTL <= 0 {
		problems = append(problems, "SCREEN_TTL must be positive")
	}
	if c.ScreenCleanupInterval <= 0 {
		problems = append(problems, "SCREEN_CLEANUP_INTERVAL must be positive")
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW must be positive when rate limiting is on")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func (c *Config) envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s: %q is not a duration", key, raw))
		return fallback
	}
	return value
}

func (c *Config) envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return fallback
	}
	return value
}

func (c *Config) envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s: %q is not a number", key, raw))
		return fallback
	}
	return value
}

func (c *Config) envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s: %q is not a boolean", key, raw))
		return fallback
	}
	return value
}
