package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/telemetry"
)

// ErrCacheMiss is returned when a key is absent or its entry has expired.
var ErrCacheMiss = errors.New("cache miss")

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// RedisClientInterface defines the Redis client interface for testing
type RedisClientInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
	Close() error
}

// RedisService provides Redis operations with caching strategies
type RedisService struct {
	client RedisClientInterface
	config *RedisConfig
}

// CacheEntry represents a cached item with metadata
type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TTL       int             `json:"ttl"`
	Version   string          `json:"version"`
}

const (
	entryVersion = "2"
	scanBatch    = 100
)

var (
	// DefaultTTL applies when a caller passes a zero TTL.
	DefaultTTL = time.Hour
	// SearchResultTTL bounds how stale a cached places search may be.
	SearchResultTTL = 10 * time.Minute
)

// NewRedisService connects, instruments the client with tracing and pings it.
func NewRedisService(ctx context.Context, config *RedisConfig) (*RedisService, error) {
	if config == nil {
		config = ConfigFromEnv()
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "redis_connection",
		"service":   "cache",
		"host":      config.Host,
		"port":      config.Port,
		"db":        config.DB,
		"pool_size": config.PoolSize,
	})

	logger.Info("Establishing Redis connection")

	rdb := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: 3,
	})
	telemetry.InstrumentRedisClient(rdb)

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		_ = rdb.Close()
		return nil, apperrors.NewCacheError("connect", err)
	}

	logger.Info("Redis connected successfully")
	return NewRedisServiceWithClient(rdb, config), nil
}

// NewRedisServiceWithClient wraps an existing client.
func NewRedisServiceWithClient(client RedisClientInterface, config *RedisConfig) *RedisService {
	if config == nil {
		config = &RedisConfig{}
	}
	return &RedisService{client: client, config: config}
}

// ConfigFromEnv loads Redis configuration from environment variables
func ConfigFromEnv() *RedisConfig {
	port, _ := strconv.Atoi(getEnvOrDefault("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	poolSize, _ := strconv.Atoi(getEnvOrDefault("REDIS_POOL_SIZE", "10"))

	return &RedisConfig{
		Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		PoolSize: poolSize,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Basic Redis Operations

// Set stores a JSON encoded value. A zero ttl means DefaultTTL.
func (r *RedisService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":   "redis_set",
		"key":         key,
		"ttl_seconds": ttl.Seconds(),
		"service":     "cache",
	})

	data, err := json.Marshal(value)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal value for cache")
		return apperrors.NewCacheError("marshal", err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.WithError(err).Error("Failed to set cache value")
		return apperrors.NewCacheError("set", err)
	}

	logger.Debug("Cache value set successfully")
	return nil
}

// Get retrieves the raw stored value.
func (r *RedisService) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
				"operation": "redis_get",
				"key":       key,
				"service":   "cache",
			}).Debug("Cache miss - key not found")
			return "", fmt.Errorf("key %s: %w", key, ErrCacheMiss)
		}
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "redis_get",
			"key":       key,
			"service":   "cache",
		}).WithError(err).Error("Failed to get cache value")
		return "", apperrors.NewCacheError("get", err)
	}
	return val, nil
}

// GetWithUnmarshal retrieves a value and decodes it into dest.
func (r *RedisService) GetWithUnmarshal(ctx context.Context, key string, dest interface{}) error {
	val, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "redis_get_unmarshal",
			"key":       key,
			"service":   "cache",
		}).WithError(err).Error("Failed to unmarshal cache value")
		return apperrors.NewCacheError("unmarshal", err)
	}
	return nil
}

// Delete removes a key
func (r *RedisService) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"operation": "redis_delete",
			"key":       key,
			"service":   "cache",
		}).WithError(err).Error("Failed to delete cache key")
		return apperrors.NewCacheError("delete", err)
	}
	return nil
}

// Cache-specific Operations

// SetCache stores data wrapped in a versioned entry under the cache: prefix.
func (r *RedisService) SetCache(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return apperrors.NewCacheError("marshal", err)
	}
	entry := CacheEntry{
		Data:      payload,
		Timestamp: time.Now().UTC(),
		TTL:       int(ttl / time.Second),
		Version:   entryVersion,
	}
	return r.Set(ctx, cacheKey(key), entry, ttl)
}

// GetCache decodes a cached entry into dest. Missing, expired and
// foreign-version entries all report ErrCacheMiss.
func (r *RedisService) GetCache(ctx context.Context, key string, dest interface{}) error {
	var entry CacheEntry
	if err := r.GetWithUnmarshal(ctx, cacheKey(key), &entry); err != nil {
		return err
	}

	if entry.Version != entryVersion {
		return fmt.Errorf("key %s: version %q: %w", key, entry.Version, ErrCacheMiss)
	}
	if entry.TTL > 0 && time.Since(entry.Timestamp) > time.Duration(entry.TTL)*time.Second {
		return fmt.Errorf("key %s: expired: %w", key, ErrCacheMiss)
	}

	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return apperrors.NewCacheError("unmarshal", err)
	}
	return nil
}

func cacheKey(key string) string {
	return "cache:" + key
}

// Search result caching

// SearchResultKey builds the cache key for one provider query.
func SearchResultKey(provider, location string, radiusMeters float64, keyword string) string {
	return fmt.Sprintf("search:%s:%s:%s:%s",
		provider, location, strconv.FormatFloat(radiusMeters, 'f', -1, 64), strings.ToLower(keyword))
}

// GetSearchResults loads cached search results into dest. The bool reports a hit.
func (r *RedisService) GetSearchResults(ctx context.Context, key string, dest interface{}) (bool, error) {
	err := r.GetCache(ctx, key, dest)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetSearchResults caches search results. A zero ttl means SearchResultTTL.
func (r *RedisService) SetSearchResults(ctx context.Context, key string, results interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = SearchResultTTL
	}
	return r.SetCache(ctx, key, results, ttl)
}

// InvalidateSearchResults drops the cached searches of one provider, or of
// every provider when provider is empty. Keys are walked with SCAN so a
// large keyspace never blocks the server.
func (r *RedisService) InvalidateSearchResults(ctx context.Context, provider string) (int64, error) {
	pattern := cacheKey("search:*")
	if provider != "" {
		pattern = cacheKey("search:" + provider + ":*")
	}

	var deleted int64
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, apperrors.NewCacheError("scan", err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, apperrors.NewCacheError("delete", err)
			}
			deleted += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation":    "redis_invalidate_search",
		"pattern":      pattern,
		"deleted_keys": deleted,
		"service":      "cache",
	}).Info("Cached searches invalidated")
	return deleted, nil
}

// Health and Monitoring

// HealthCheck verifies Redis connectivity
func (r *RedisService) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetStats returns server side keyspace statistics
func (r *RedisService) GetStats(ctx context.Context) map[string]interface{} {
	info, err := r.client.Info(ctx, "stats").Result()
	if err != nil {
		return map[string]interface{}{
			"error": err.Error(),
		}
	}

	stats := map[string]interface{}{
		"hits":        int64(0),
		"misses":      int64(0),
		"connections": 0,
		"hit_rate":    0.0,
	}

	fields := parseInfo(info)
	hits, _ := strconv.ParseInt(fields["keyspace_hits"], 10, 64)
	misses, _ := strconv.ParseInt(fields["keyspace_misses"], 10, 64)
	stats["hits"] = hits
	stats["misses"] = misses
	if total := hits + misses; total > 0 {
		stats["hit_rate"] = float64(hits) / float64(total)
	}

	if clientInfo, err := r.client.Info(ctx, "clients").Result(); err == nil {
		connections, _ := strconv.Atoi(parseInfo(clientInfo)["connected_clients"])
		stats["connections"] = connections
	}

	return stats
}

func parseInfo(info string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}
	return fields
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	return r.client.Close()
}
