package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/geo"
	"github.com/loocate/loocate/internal/nearby"
	"github.com/loocate/loocate/internal/places"
)

var london = places.Query{
	Center:       geo.Coordinate{Latitude: 51.5074, Longitude: -0.1278},
	RadiusMeters: 1500,
	Keyword:      "toilet",
}

func TestRecordFromEvent(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		record := RecordFromEvent("s1", nearby.SearchEvent{
			Provider: "google",
			Query:    london,
			Results:  2,
			PlaceIDs: []string{"a", "b"},
		})

		assert.Equal(t, "s1", record.ScreenID)
		assert.Equal(t, "google", record.Provider)
		assert.Equal(t, 51.5074, record.Latitude)
		assert.Equal(t, -0.1278, record.Longitude)
		assert.Equal(t, 1500.0, record.RadiusMeters)
		assert.Equal(t, "toilet", record.Keyword)
		assert.Equal(t, 2, record.ResultCount)
		assert.Equal(t, places.OutcomeOK, record.Outcome)
		assert.Nil(t, record.ErrorCode)
		assert.Equal(t, PlaceIDs{"a", "b"}, record.PlaceIDs)
	})

	t.Run("Provider failure", func(t *testing.T) {
		record := RecordFromEvent("s1", nearby.SearchEvent{
			Provider: "google",
			Query:    london,
			Err:      apperrors.NewProviderError("google", "REQUEST_DENIED", "bad key"),
		})

		assert.Equal(t, places.OutcomeProviderError, record.Outcome)
		require.NotNil(t, record.ErrorCode)
		assert.Equal(t, "PROVIDER_ERROR", *record.ErrorCode)
	})

	t.Run("Plain error", func(t *testing.T) {
		record := RecordFromEvent("s1", nearby.SearchEvent{Query: london, Err: fmt.Errorf("boom")})

		assert.Equal(t, places.OutcomeError, record.Outcome)
		require.NotNil(t, record.ErrorCode)
		assert.Equal(t, "UNKNOWN", *record.ErrorCode)
	})
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(0))
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(-5))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxHistoryLimit, ClampLimit(MaxHistoryLimit+1))
}

func TestHistoryRepository_RecordRequiresScreen(t *testing.T) {
	repo := NewHistoryRepository(nil)

	err := repo.Record(context.Background(), &SearchRecord{})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "loocate",
				"POSTGRES_PASSWORD": "loocate",
				"POSTGRES_DB":       "loocate",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://loocate:loocate@%s:%s/loocate?sslmode=disable", host, port.Port())
}

// TestHistoryRepository_Integration runs the repository against a real PostgreSQL instance
func TestHistoryRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := NewConnection(ctx, Config{URL: startPostgres(ctx, t)})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrations must be re-runnable")
	require.NoError(t, db.Health(ctx))

	repo := NewHistoryRepository(db)

	t.Run("Record and list", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			record := RecordFromEvent("screen-a", nearby.SearchEvent{
				Provider: "google",
				Query:    london,
				Results:  i,
				PlaceIDs: []string{fmt.Sprintf("p%d", i)},
			})
			require.NoError(t, repo.Record(ctx, &record))
			assert.NotZero(t, record.ID)
			assert.False(t, record.CreatedAt.IsZero())
		}
		other := RecordFromEvent("screen-b", nearby.SearchEvent{Provider: "google", Query: london})
		require.NoError(t, repo.Record(ctx, &other))

		records, err := repo.Recent(ctx, "screen-a", 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, 2, records[0].ResultCount)
		assert.Equal(t, PlaceIDs{"p2"}, records[0].PlaceIDs)
		assert.Equal(t, 1, records[1].ResultCount)
	})

	t.Run("Hook records failures", func(t *testing.T) {
		hook := repo.Hook("screen-c")
		hook(ctx, nearby.SearchEvent{
			Provider: "google",
			Query:    london,
			Err:      apperrors.NewNetworkError("google", fmt.Errorf("dial tcp: refused")),
		})

		records, err := repo.Recent(ctx, "screen-c", 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, places.OutcomeNetworkError, records[0].Outcome)
		require.NotNil(t, records[0].ErrorCode)
		assert.Nil(t, records[0].PlaceIDs)
	})

	t.Run("Unknown screen", func(t *testing.T) {
		records, err := repo.Recent(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Transaction rollback", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO search_history (screen_id, provider, latitude, longitude, radius_m, keyword, result_count, outcome)
				 VALUES ('screen-d', 'google', 0, 0, 1, 'toilet', 0, 'ok')`); err != nil {
				return err
			}
			return fmt.Errorf("abort")
		})
		assert.Error(t, err)

		records, err := repo.Recent(ctx, "screen-d", 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
