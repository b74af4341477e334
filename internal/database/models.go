package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SearchRecord is one search a screen ran.
type SearchRecord struct {
	ID           int64     `json:"id" db:"id"`
	ScreenID     string    `json:"screen_id" db:"screen_id"`
	Provider     string    `json:"provider" db:"provider"`
	Latitude     float64   `json:"latitude" db:"latitude"`
	Longitude    float64   `json:"longitude" db:"longitude"`
	RadiusMeters float64   `json:"radius_meters" db:"radius_m"`
	Keyword      string    `json:"keyword" db:"keyword"`
	ResultCount  int       `json:"result_count" db:"result_count"`
	Outcome      string    `json:"outcome" db:"outcome"`
	ErrorCode    *string   `json:"error_code,omitempty" db:"error_code"`
	PlaceIDs     PlaceIDs  `json:"place_ids,omitempty" db:"place_ids"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PlaceIDs is the list of place ids a search returned, stored as JSON.
type PlaceIDs []string

func (p PlaceIDs) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *PlaceIDs) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into PlaceIDs", value)
	}
}
