package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisContainer manages a Redis test container
type RedisContainer struct {
	container testcontainers.Container
	host      string
	port      int
}

// StartRedisContainer starts a Redis container for testing
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}

	mappedPort, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(mappedPort.Port())
	if err != nil {
		return nil, err
	}

	return &RedisContainer{
		container: container,
		host:      host,
		port:      port,
	}, nil
}

// Stop terminates the Redis container
func (rc *RedisContainer) Stop(ctx context.Context) error {
	return rc.container.Terminate(ctx)
}

// Config returns a client configuration pointing at the container
func (rc *RedisContainer) Config(poolSize int) *RedisConfig {
	return &RedisConfig{Host: rc.host, Port: rc.port, PoolSize: poolSize}
}

type cachedPlace struct {
	Name   string   `json:"name"`
	Rating *float64 `json:"rating,omitempty"`
}

// TestRedisIntegration tests Redis operations with a real Redis instance
func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	redisContainer, err := StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisContainer.Stop(ctx)

	redisService, err := NewRedisService(ctx, redisContainer.Config(10))
	require.NoError(t, err)
	defer redisService.Close()

	t.Run("Basic Set and Get", func(t *testing.T) {
		err := redisService.Set(ctx, "test:basic", "test_value", time.Minute)
		assert.NoError(t, err)

		var retrieved string
		err = redisService.GetWithUnmarshal(ctx, "test:basic", &retrieved)
		assert.NoError(t, err)
		assert.Equal(t, "test_value", retrieved)
	})

	t.Run("Search results round trip", func(t *testing.T) {
		rating := 4.5
		key := SearchResultKey("google", "51.5074,-0.1278", 1500, "toilet")
		places := []cachedPlace{{Name: "A", Rating: &rating}, {Name: "B"}}

		require.NoError(t, redisService.SetSearchResults(ctx, key, places, time.Minute))

		var retrieved []cachedPlace
		hit, err := redisService.GetSearchResults(ctx, key, &retrieved)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, places, retrieved)

		deleted, err := redisService.InvalidateSearchResults(ctx, "google")
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		hit, err = redisService.GetSearchResults(ctx, key, &retrieved)
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("Invalidation is scoped to a provider", func(t *testing.T) {
		googleKey := SearchResultKey("google", "1,2", 500, "")
		for i := 0; i < 250; i++ {
			key := SearchResultKey("elastic", fmt.Sprintf("1,%d", i), 500, "")
			require.NoError(t, redisService.SetSearchResults(ctx, key, []int{i}, time.Minute))
		}
		require.NoError(t, redisService.SetSearchResults(ctx, googleKey, []int{1}, time.Minute))

		count, err := redisService.InvalidateSearchResults(ctx, "elastic")
		assert.NoError(t, err)
		assert.Equal(t, int64(250), count)

		var out []int
		hit, err := redisService.GetSearchResults(ctx, googleKey, &out)
		assert.NoError(t, err)
		assert.True(t, hit)
	})

	t.Run("Health Check", func(t *testing.T) {
		assert.NoError(t, redisService.HealthCheck(ctx))
	})

	t.Run("Statistics", func(t *testing.T) {
		_ = redisService.Set(ctx, "stats:test1", "value1", time.Minute)
		_, _ = redisService.Get(ctx, "stats:test1")
		_, _ = redisService.Get(ctx, "stats:nonexistent")

		stats := redisService.GetStats(ctx)
		assert.Contains(t, stats, "hits")
		assert.Contains(t, stats, "misses")
		assert.Greater(t, stats["hits"].(int64), int64(0))
	})

	t.Run("TTL behavior", func(t *testing.T) {
		require.NoError(t, redisService.Set(ctx, "test:ttl", "temporary_value", time.Second))

		time.Sleep(2 * time.Second)

		_, err := redisService.Get(ctx, "test:ttl")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

// TestRedisConcurrency tests Redis operations under concurrent load
func TestRedisConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	redisContainer, err := StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisContainer.Stop(ctx)

	redisService, err := NewRedisService(ctx, redisContainer.Config(20))
	require.NoError(t, err)
	defer redisService.Close()

	const numGoroutines = 20
	const numOperations = 50

	var wg sync.WaitGroup
	errorChan := make(chan error, numGoroutines*numOperations)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("g%d:op%d", goroutineID, j)
				if err := redisService.SetSearchResults(ctx, key, []int{goroutineID, j}, time.Minute); err != nil {
					errorChan <- fmt.Errorf("set error for %s: %w", key, err)
					continue
				}

				var retrieved []int
				hit, err := redisService.GetSearchResults(ctx, key, &retrieved)
				if err != nil || !hit {
					errorChan <- fmt.Errorf("get error for %s: hit=%v err=%v", key, hit, err)
					continue
				}
				if len(retrieved) != 2 || retrieved[0] != goroutineID || retrieved[1] != j {
					errorChan <- fmt.Errorf("value mismatch for %s: %v", key, retrieved)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errorChan)

	var errs []error
	for err := range errorChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		t.Fatalf("Concurrent operations failed with %d errors. First error: %v", len(errs), errs[0])
	}
}

// TestRedisFailover tests Redis behavior during connection issues
func TestRedisFailover(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	redisContainer, err := StartRedisContainer(ctx)
	require.NoError(t, err)

	redisService, err := NewRedisService(ctx, redisContainer.Config(10))
	require.NoError(t, err)
	defer redisService.Close()

	require.NoError(t, redisService.Set(ctx, "test:failover", "initial_value", time.Minute))

	require.NoError(t, redisContainer.Stop(ctx))

	assert.Error(t, redisService.Set(ctx, "test:failure", "value", time.Minute))

	var out []string
	hit, err := redisService.GetSearchResults(ctx, "test:failure", &out)
	assert.Error(t, err)
	assert.False(t, hit)

	assert.Error(t, redisService.HealthCheck(ctx))
}
