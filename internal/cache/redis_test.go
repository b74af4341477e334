package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/loocate/loocate/internal/errors"
)

// MockRedisClient is a mock implementation of RedisClientInterface
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	cmd := redis.NewIntCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.Get(0).(int64))
	}
	return cmd
}

func (m *MockRedisClient) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	args := m.Called(ctx, cursor, match, count)
	cmd := redis.NewScanCmd(ctx, nil)
	if args.Error(2) != nil {
		cmd.SetErr(args.Error(2))
	} else {
		cmd.SetVal(args.Get(0).([]string), args.Get(1).(uint64))
	}
	return cmd
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	cmd := redis.NewStatusCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Info(ctx context.Context, section ...string) *redis.StringCmd {
	args := m.Called(ctx, section)
	cmd := redis.NewStringCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newMockedService() (*RedisService, *MockRedisClient) {
	mockClient := &MockRedisClient{}
	return NewRedisServiceWithClient(mockClient, nil), mockClient
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")

	config := ConfigFromEnv()
	assert.Equal(t, "cache.internal", config.Host)
	assert.Equal(t, 6380, config.Port)
	assert.Equal(t, 2, config.DB)
	assert.Equal(t, 10, config.PoolSize)
}

func TestRedisService_Set(t *testing.T) {
	service, mockClient := newMockedService()
	ctx := context.Background()

	mockClient.On("Set", mock.Anything, "test_key", []byte(`"test_value"`), time.Minute).Return("OK", nil)

	err := service.Set(ctx, "test_key", "test_value", time.Minute)

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestRedisService_Set_DefaultTTL(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Set", mock.Anything, "k", mock.Anything, DefaultTTL).Return("OK", nil)

	assert.NoError(t, service.Set(context.Background(), "k", 1, 0))
	mockClient.AssertExpectations(t)
}

func TestRedisService_Set_Error(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Set", mock.Anything, "k", mock.Anything, mock.Anything).Return("", errors.New("READONLY"))

	err := service.Set(context.Background(), "k", 1, time.Second)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCache))
}

func TestRedisService_Get(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Get", mock.Anything, "test_key").Return(`"test_value"`, nil)

	var value string
	err := service.GetWithUnmarshal(context.Background(), "test_key", &value)

	assert.NoError(t, err)
	assert.Equal(t, "test_value", value)
	mockClient.AssertExpectations(t)
}

func TestRedisService_Get_NotFound(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Get", mock.Anything, "nonexistent_key").Return("", redis.Nil)

	value, err := service.Get(context.Background(), "nonexistent_key")

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Empty(t, value)
	mockClient.AssertExpectations(t)
}

func TestRedisService_Delete(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Del", mock.Anything, []string{"key1"}).Return(int64(1), nil)

	err := service.Delete(context.Background(), "key1")

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestRedisService_SetCache(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Set", mock.Anything, "cache:cache_key", mock.Anything, time.Hour).
		Run(func(args mock.Arguments) {
			var entry CacheEntry
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &entry))
			assert.Equal(t, entryVersion, entry.Version)
			assert.Equal(t, 3600, entry.TTL)
			assert.JSONEq(t, `{"test":"data"}`, string(entry.Data))
		}).
		Return("OK", nil)

	err := service.SetCache(context.Background(), "cache_key", map[string]interface{}{"test": "data"}, time.Hour)

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func cachedEntry(t *testing.T, data interface{}, at time.Time, ttl int, version string) string {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(CacheEntry{Data: payload, Timestamp: at, TTL: ttl, Version: version})
	require.NoError(t, err)
	return string(raw)
}

func TestRedisService_GetCache(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Get", mock.Anything, "cache:cache_key").
		Return(cachedEntry(t, map[string]interface{}{"test": "data"}, time.Now(), 3600, entryVersion), nil)

	var data map[string]interface{}
	err := service.GetCache(context.Background(), "cache_key", &data)

	assert.NoError(t, err)
	assert.Equal(t, "data", data["test"])
	mockClient.AssertExpectations(t)
}

func TestRedisService_GetCache_StaleEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry func(t *testing.T) string
	}{
		{"expired", func(t *testing.T) string {
			return cachedEntry(t, "x", time.Now().Add(-2*time.Hour), 60, entryVersion)
		}},
		{"old version", func(t *testing.T) string {
			return cachedEntry(t, "x", time.Now(), 60, "1.0")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, mockClient := newMockedService()
			mockClient.On("Get", mock.Anything, "cache:k").Return(tt.entry(t), nil)

			var out string
			err := service.GetCache(context.Background(), "k", &out)
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestSearchResultKey(t *testing.T) {
	key := SearchResultKey("google", "51.5074,-0.1278", 1500, "Toilet")
	assert.Equal(t, "search:google:51.5074,-0.1278:1500:toilet", key)
}

func TestRedisService_SearchResults(t *testing.T) {
	service, mockClient := newMockedService()
	ctx := context.Background()
	key := SearchResultKey("google", "1,2", 100, "toilet")

	var stored string
	mockClient.On("Set", mock.Anything, "cache:"+key, mock.Anything, SearchResultTTL).
		Run(func(args mock.Arguments) { stored = string(args.Get(2).([]byte)) }).
		Return("OK", nil).Once()

	require.NoError(t, service.SetSearchResults(ctx, key, []string{"a", "b"}, 0))

	mockClient.On("Get", mock.Anything, "cache:"+key).Return(stored, nil).Once()
	var results []string
	hit, err := service.GetSearchResults(ctx, key, &results)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, results)

	mockClient.On("Get", mock.Anything, "cache:"+key).Return("", redis.Nil).Once()
	hit, err = service.GetSearchResults(ctx, key, &results)
	require.NoError(t, err)
	assert.False(t, hit)

	mockClient.On("Get", mock.Anything, "cache:"+key).Return("", errors.New("connection reset")).Once()
	_, err = service.GetSearchResults(ctx, key, &results)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCache))

	mockClient.AssertExpectations(t)
}

func TestRedisService_InvalidateSearchResults(t *testing.T) {
	service, mockClient := newMockedService()

	first := []string{"cache:search:elastic:a", "cache:search:elastic:b"}
	second := []string{"cache:search:elastic:c"}
	mockClient.On("Scan", mock.Anything, uint64(0), "cache:search:elastic:*", int64(scanBatch)).Return(first, uint64(7), nil)
	mockClient.On("Scan", mock.Anything, uint64(7), "cache:search:elastic:*", int64(scanBatch)).Return(second, uint64(0), nil)
	mockClient.On("Del", mock.Anything, first).Return(int64(2), nil)
	mockClient.On("Del", mock.Anything, second).Return(int64(1), nil)

	deleted, err := service.InvalidateSearchResults(context.Background(), "elastic")

	assert.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	mockClient.AssertExpectations(t)
}

func TestRedisService_InvalidateSearchResults_AllProviders(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Scan", mock.Anything, uint64(0), "cache:search:*", int64(scanBatch)).Return([]string{}, uint64(0), nil)

	deleted, err := service.InvalidateSearchResults(context.Background(), "")

	assert.NoError(t, err)
	assert.Zero(t, deleted)
	mockClient.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
}

func TestRedisService_InvalidateSearchResults_ScanError(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Scan", mock.Anything, uint64(0), "cache:search:*", int64(scanBatch)).
		Return(nil, uint64(0), errors.New("connection reset"))

	_, err := service.InvalidateSearchResults(context.Background(), "")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCache))
}

func TestRedisService_HealthCheck(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Ping", mock.Anything).Return("PONG", nil).Once()
	assert.NoError(t, service.HealthCheck(context.Background()))

	mockClient.On("Ping", mock.Anything).Return("", errors.New("connection refused")).Once()
	assert.Error(t, service.HealthCheck(context.Background()))
}

func TestRedisService_GetStats(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Info", mock.Anything, []string{"stats"}).
		Return("# Stats\r\nkeyspace_hits:30\r\nkeyspace_misses:10\r\n", nil)
	mockClient.On("Info", mock.Anything, []string{"clients"}).
		Return("# Clients\r\nconnected_clients:4\r\n", nil)

	stats := service.GetStats(context.Background())

	assert.Equal(t, int64(30), stats["hits"])
	assert.Equal(t, int64(10), stats["misses"])
	assert.Equal(t, 4, stats["connections"])
	assert.InDelta(t, 0.75, stats["hit_rate"], 1e-9)
}

func TestRedisService_GetStats_Error(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Info", mock.Anything, []string{"stats"}).Return("", errors.New("down"))

	stats := service.GetStats(context.Background())
	assert.Equal(t, "down", stats["error"])
}

func TestRedisService_Close(t *testing.T) {
	service, mockClient := newMockedService()

	mockClient.On("Close").Return(nil)

	assert.NoError(t, service.Close())
	mockClient.AssertExpectations(t)
}
