package api

import (
	"time"

	"github.com/loocate/loocate/internal/database"
	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/geo"
	"github.com/loocate/loocate/internal/nearby"
	"github.com/loocate/loocate/internal/screen"
)

// MountRequest mounts a screen. Location and permission are what the device
// reported; a location without a permission counts as granted.
type MountRequest struct {
	Permission   nearby.PermissionStatus `json:"permission"`
	Location     *geo.Coordinate         `json:"location"`
	RadiusMeters float64                 `json:"radiusMeters"`
}

// SearchRequest runs a search. Missing fields fall back to the current region.
type SearchRequest struct {
	Center       *geo.Coordinate `json:"center"`
	RadiusMeters float64         `json:"radiusMeters"`
}

// RegionRequest is a settled viewport. Zero deltas take the default zoom
// and a zero radius keeps the screen's current search radius.
type RegionRequest struct {
	Center         *geo.Coordinate `json:"center"`
	RadiusMeters   float64         `json:"radiusMeters"`
	LatitudeDelta  float64         `json:"latitudeDelta"`
	LongitudeDelta float64         `json:"longitudeDelta"`
}

// SelectionRequest picks a marker by list position or by id, not both.
type SelectionRequest struct {
	Index    *int   `json:"index"`
	MarkerID string `json:"markerId"`
}

// ScrollRequest reports the card scroller offset.
type ScrollRequest struct {
	Offset     *float64 `json:"offset"`
	CardWidth  float64  `json:"cardWidth"`
	DebounceMs *int64   `json:"debounceMs"`
}

// ScrollResponse is the card the scroll settled on, -1 with no markers.
type ScrollResponse struct {
	FocusedIndex int  `json:"focusedIndex"`
	Scheduled    bool `json:"scheduled"`
}

// MapTypeResponse is the base layer after a toggle.
type MapTypeResponse struct {
	MapType nearby.MapType `json:"mapType"`
}

// MarkerView is a marker with its distance from the region center.
type MarkerView struct {
	nearby.PlaceMarker
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

// ScreenView is the snapshot a client renders.
type ScreenView struct {
	ID              string                  `json:"id"`
	Markers         []MarkerView            `json:"markers"`
	Region          *nearby.SearchRegion    `json:"region,omitempty"`
	Selection       nearby.SelectionState   `json:"selection"`
	SelectedDetails *nearby.MarkerDetails   `json:"selectedDetails,omitempty"`
	MapType         nearby.MapType          `json:"mapType"`
	Permission      nearby.PermissionStatus `json:"permission"`
	ExpiresAt       time.Time               `json:"expiresAt"`
}

// MountResponse carries the new screen. Error is set when the screen
// mounted but could not center on the device or run its first search.
type MountResponse struct {
	Screen ScreenView          `json:"screen"`
	Error  *apperrors.AppError `json:"error,omitempty"`
}

// HistoryResponse lists a screen's recent searches.
type HistoryResponse struct {
	Enabled  bool                    `json:"enabled"`
	Searches []database.SearchRecord `json:"searches"`
}

func newScreenView(s *screen.Screen) ScreenView {
	state := s.Sync.State()
	view := ScreenView{
		ID:         s.ID,
		Markers:    make([]MarkerView, 0, len(state.Markers)),
		Selection:  state.Selection,
		MapType:    state.MapType,
		Permission: state.Permission,
		ExpiresAt:  s.ExpiresAt,
	}
	if state.HasRegion {
		region := state.Region
		view.Region = &region
	}
	for _, m := range state.Markers {
		mv := MarkerView{PlaceMarker: m}
		if state.HasRegion {
			d := geo.DistanceMeters(state.Region.Center, m.Coordinate)
			mv.DistanceMeters = &d
		}
		view.Markers = append(view.Markers, mv)
	}
	if m, ok := state.SelectedMarker(); ok {
		details := m.Details()
		view.SelectedDetails = &details
	}
	return view
}
