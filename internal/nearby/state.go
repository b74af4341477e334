// Package nearby keeps a map screen's search results, selection and camera
// in step. State is an immutable value; every transition returns a new State
// so the sync logic can be exercised without a map on the other end.
package nearby

import (
	"math"
	"time"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/geo"
)

const (
	// DefaultLatitudeDelta and DefaultLongitudeDelta frame a neighbourhood
	// around a freshly located device.
	DefaultLatitudeDelta  = 0.0922
	DefaultLongitudeDelta = 0.0421

	DefaultRadiusMeters      = 1500.0
	DefaultAnimationDuration = 350 * time.Millisecond
	DefaultScrollDebounce    = 10 * time.Millisecond

	// focusBias moves focus to the next card slightly before the midpoint.
	focusBias = 0.3
)

// MapType is the base layer shown under the markers.
type MapType string

const (
	MapTypeStandard  MapType = "standard"
	MapTypeSatellite MapType = "satellite"
)

// PermissionStatus is the device location permission as last reported.
type PermissionStatus string

const (
	PermissionUnknown PermissionStatus = "undetermined"
	PermissionGranted PermissionStatus = "granted"
	PermissionDenied  PermissionStatus = "denied"
)

// PlaceMarker is one search result pinned on the map.
type PlaceMarker struct {
	ID          string         `json:"id"`
	Coordinate  geo.Coordinate `json:"coordinate"`
	Title       string         `json:"title"`
	Address     string         `json:"address,omitempty"`
	Rating      *float64       `json:"rating,omitempty"`
	ReviewCount *int           `json:"reviewCount,omitempty"`
}

// MarkerDetails are the fields the detail panel shows for a marker.
type MarkerDetails struct {
	Title       string   `json:"title"`
	Address     string   `json:"address,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"reviewCount,omitempty"`
}

// Details returns the marker's panel fields.
func (m PlaceMarker) Details() MarkerDetails {
	return MarkerDetails{
		Title:       m.Title,
		Address:     m.Address,
		Rating:      m.Rating,
		ReviewCount: m.ReviewCount,
	}
}

// SearchRegion is the viewport a search is bounded by.
type SearchRegion struct {
	Center         geo.Coordinate `json:"center"`
	RadiusMeters   float64        `json:"radiusMeters"`
	LatitudeDelta  float64        `json:"latitudeDelta"`
	LongitudeDelta float64        `json:"longitudeDelta"`
}

// NewSearchRegion centers a region with the default zoom.
func NewSearchRegion(center geo.Coordinate, radiusMeters float64) SearchRegion {
	return SearchRegion{
		Center:         center,
		RadiusMeters:   radiusMeters,
		LatitudeDelta:  DefaultLatitudeDelta,
		LongitudeDelta: DefaultLongitudeDelta,
	}
}

// Validate checks the region reported by a viewport.
func (r SearchRegion) Validate() error {
	if err := r.Center.Validate(); err != nil {
		return apperrors.NewValidationError("center", err.Error())
	}
	if !(r.RadiusMeters > 0) || math.IsInf(r.RadiusMeters, 0) {
		return apperrors.NewValidationError("radiusMeters", "radius must be a positive number")
	}
	if !(r.LatitudeDelta > 0) || !(r.LongitudeDelta > 0) {
		return apperrors.NewValidationError("delta", "latitude and longitude deltas must be positive")
	}
	return nil
}

// SelectionState records the last activated marker. It is never cleared.
type SelectionState struct {
	Selected bool   `json:"selected"`
	Index    int    `json:"index"`
	MarkerID string `json:"markerId,omitempty"`
}

// Selection is what activating a marker hands to the detail panel.
type Selection struct {
	State   SelectionState `json:"selection"`
	Details MarkerDetails  `json:"details"`
}

// State is everything one map screen knows.
type State struct {
	Markers    []PlaceMarker    `json:"markers"`
	Region     SearchRegion     `json:"region"`
	HasRegion  bool             `json:"hasRegion"`
	Selection  SelectionState   `json:"selection"`
	MapType    MapType          `json:"mapType"`
	Permission PermissionStatus `json:"permission"`
}

// InitialState is the state of a freshly mounted screen.
func InitialState() State {
	return State{
		Markers:    []PlaceMarker{},
		MapType:    MapTypeStandard,
		Permission: PermissionUnknown,
	}
}

// WithMarkers replaces the marker list. A selected marker that is still
// present keeps its selection at its new position.
func (s State) WithMarkers(markers []PlaceMarker) State {
	s.Markers = append(make([]PlaceMarker, 0, len(markers)), markers...)
	if s.Selection.Selected {
		if i, ok := s.MarkerIndex(s.Selection.MarkerID); ok {
			s.Selection.Index = i
		}
	}
	return s
}

// WithSelection activates markers[index].
func (s State) WithSelection(index int) (State, Selection, error) {
	if index < 0 || index >= len(s.Markers) {
		return s, Selection{}, apperrors.NewIndexOutOfRangeError(index, len(s.Markers))
	}
	m := s.Markers[index]
	s.Selection = SelectionState{Selected: true, Index: index, MarkerID: m.ID}
	return s, Selection{State: s.Selection, Details: m.Details()}, nil
}

// WithRegion makes r the current search region.
func (s State) WithRegion(r SearchRegion) State {
	s.Region = r
	s.HasRegion = true
	return s
}

// WithSearchCenter moves the region to center and radius, keeping the
// current zoom, or the default zoom when no region is set yet.
func (s State) WithSearchCenter(center geo.Coordinate, radiusMeters float64) State {
	if !s.HasRegion {
		return s.WithRegion(NewSearchRegion(center, radiusMeters))
	}
	r := s.Region
	r.Center = center
	r.RadiusMeters = radiusMeters
	return s.WithRegion(r)
}

// WithPermission records the device permission outcome.
func (s State) WithPermission(p PermissionStatus) State {
	s.Permission = p
	return s
}

// ToggledMapType flips between the standard and satellite layers.
func (s State) ToggledMapType() State {
	if s.MapType == MapTypeSatellite {
		s.MapType = MapTypeStandard
	} else {
		s.MapType = MapTypeSatellite
	}
	return s
}

// FocusIndex converts a card scroller offset into a marker index.
// It reports false when there are no markers.
func (s State) FocusIndex(offset, cardWidth float64) (int, bool) {
	n := len(s.Markers)
	if n == 0 {
		return 0, false
	}
	index := math.Floor(offset/cardWidth + focusBias)
	switch {
	case index >= float64(n):
		return n - 1, true
	case index < 0:
		return 0, true
	default:
		return int(index), true
	}
}

// MarkerIndex finds a marker by id.
func (s State) MarkerIndex(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for i, m := range s.Markers {
		if m.ID == id {
			return i, true
		}
	}
	return 0, false
}

// SelectedMarker returns the selected marker if it is in the current list.
func (s State) SelectedMarker() (PlaceMarker, bool) {
	if !s.Selection.Selected {
		return PlaceMarker{}, false
	}
	i, ok := s.MarkerIndex(s.Selection.MarkerID)
	if !ok {
		return PlaceMarker{}, false
	}
	return s.Markers[i], true
}

// Clone copies the marker slice so callers can't alias internal state.
func (s State) Clone() State {
	s.Markers = append(make([]PlaceMarker, 0, len(s.Markers)), s.Markers...)
	return s
}
