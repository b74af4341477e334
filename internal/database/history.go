package database

import (
	"context"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/nearby"
	"github.com/loocate/loocate/internal/places"
	"github.com/loocate/loocate/internal/telemetry"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryRepository persists the searches screens run.
type HistoryRepository struct {
	db *DB
}

func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordFromEvent converts a finished search into a row.
func RecordFromEvent(screenID string, event nearby.SearchEvent) SearchRecord {
	record := SearchRecord{
		ScreenID:     screenID,
		Provider:     event.Provider,
		Latitude:     event.Query.Center.Latitude,
		Longitude:    event.Query.Center.Longitude,
		RadiusMeters: event.Query.RadiusMeters,
		Keyword:      event.Query.Keyword,
		ResultCount:  event.Results,
		Outcome:      places.Outcome(event.Err),
		PlaceIDs:     PlaceIDs(event.PlaceIDs),
	}
	if event.Err != nil {
		code := "UNKNOWN"
		if appErr, ok := apperrors.AsAppError(event.Err); ok {
			code = appErr.Code
		}
		record.ErrorCode = &code
	}
	return record
}

// Record inserts a search and fills in its id and timestamp.
func (r *HistoryRepository) Record(ctx context.Context, record *SearchRecord) error {
	if record.ScreenID == "" {
		return apperrors.NewValidationError("screen_id", "screen id is required")
	}

	query := `
		INSERT INTO search_history
			(screen_id, provider, latitude, longitude, radius_m, keyword, result_count, outcome, error_code, place_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		record.ScreenID, record.Provider, record.Latitude, record.Longitude, record.RadiusMeters,
		record.Keyword, record.ResultCount, record.Outcome, record.ErrorCode, record.PlaceIDs,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return apperrors.NewDatabaseError("record_search", err)
	}
	return nil
}

// ClampLimit maps a requested page size into [1, MaxHistoryLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

// Recent lists a screen's searches, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, screenID string, limit int) ([]SearchRecord, error) {
	query := `
		SELECT id, screen_id, provider, latitude, longitude, radius_m, keyword,
			result_count, outcome, error_code, place_ids, created_at
		FROM search_history
		WHERE screen_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, screenID, ClampLimit(limit))
	if err != nil {
		return nil, apperrors.NewDatabaseError("recent_searches", err)
	}
	defer rows.Close()

	records := []SearchRecord{}
	for rows.Next() {
		var rec SearchRecord
		if err := rows.Scan(
			&rec.ID, &rec.ScreenID, &rec.Provider, &rec.Latitude, &rec.Longitude, &rec.RadiusMeters,
			&rec.Keyword, &rec.ResultCount, &rec.Outcome, &rec.ErrorCode, &rec.PlaceIDs, &rec.CreatedAt,
		); err != nil {
			return nil, apperrors.NewDatabaseError("recent_searches", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("recent_searches", err)
	}
	return records, nil
}

// Hook returns a search hook that records every search of screenID.
// Failures are logged and never reach the screen.
func (r *HistoryRepository) Hook(screenID string) nearby.SearchHook {
	return func(ctx context.Context, event nearby.SearchEvent) {
		record := RecordFromEvent(screenID, event)
		if err := r.Record(context.WithoutCancel(ctx), &record); err != nil {
			telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
				"service":   "database",
				"operation": "record_search",
				"screen_id": screenID,
			}).WithError(err).Warn("Failed to record search history")
		}
	}
}
