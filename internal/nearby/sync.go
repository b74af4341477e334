package nearby

import (
	"context"
	"math"
	"sync"
	"time"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/geo"
	"github.com/loocate/loocate/internal/places"
	"github.com/loocate/loocate/internal/telemetry"
)

// CameraMove asks the map to animate to a marker.
type CameraMove struct {
	MarkerID       string         `json:"markerId"`
	Index          int            `json:"index"`
	Target         geo.Coordinate `json:"target"`
	LatitudeDelta  float64        `json:"latitudeDelta"`
	LongitudeDelta float64        `json:"longitudeDelta"`
	Duration       time.Duration  `json:"-"`
	DurationMs     int64          `json:"durationMs"`
}

// Camera is the map viewport control.
type Camera interface {
	AnimateTo(move CameraMove)
}

// LocationSource is the device location service.
type LocationSource interface {
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	CurrentPosition(ctx context.Context) (geo.Coordinate, error)
}

// StaticLocation is a LocationSource whose answer is already known, such
// as a position the client sent along with a mount request.
type StaticLocation struct {
	Permission PermissionStatus
	Position   geo.Coordinate
}

// RequestPermission implements LocationSource.
func (l StaticLocation) RequestPermission(context.Context) (PermissionStatus, error) {
	if l.Permission == "" {
		return PermissionUnknown, nil
	}
	return l.Permission, nil
}

// CurrentPosition implements LocationSource.
func (l StaticLocation) CurrentPosition(context.Context) (geo.Coordinate, error) {
	return l.Position, nil
}

// SearchEvent describes a finished search for SearchHook.
type SearchEvent struct {
	Provider string
	Query    places.Query
	Results  int
	PlaceIDs []string
	Err      error
}

// SearchHook is told about every search the screen runs.
type SearchHook func(ctx context.Context, event SearchEvent)

// Options tune a Sync. Zero values fall back to the package defaults.
type Options struct {
	ScreenID          string
	Keyword           string
	RadiusMeters      float64
	AnimationDuration time.Duration
	Scheduler         Scheduler
	OnSearch          SearchHook
}

func (o Options) withDefaults() Options {
	if o.Keyword == "" {
		o.Keyword = places.DefaultKeyword
	}
	if o.RadiusMeters <= 0 {
		o.RadiusMeters = DefaultRadiusMeters
	}
	if o.AnimationDuration <= 0 {
		o.AnimationDuration = DefaultAnimationDuration
	}
	if o.Scheduler == nil {
		o.Scheduler = TimerScheduler{}
	}
	return o
}

// Sync drives one map screen. The mutex stands in for the screen's event
// loop: every state swap happens under it, provider calls happen outside it.
type Sync struct {
	provider  places.Provider
	camera    Camera
	debouncer *Debouncer
	opts      Options

	mu    sync.Mutex
	state State
}

// NewSync wires a screen to its provider and camera.
func NewSync(provider places.Provider, camera Camera, opts Options) *Sync {
	opts = opts.withDefaults()
	return &Sync{
		provider:  provider,
		camera:    camera,
		debouncer: NewDebouncer(opts.Scheduler),
		opts:      opts,
		state:     InitialState(),
	}
}

// DefaultRadius is the radius used when a caller does not give one.
func (s *Sync) DefaultRadius() float64 { return s.opts.RadiusMeters }

// State returns a copy of the current state.
func (s *Sync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Sync) logger(ctx context.Context) *telemetry.ContextualLogger {
	if s.opts.ScreenID != "" && telemetry.GetScreenID(ctx) == "" {
		ctx = telemetry.WithScreenID(ctx, s.opts.ScreenID)
	}
	return telemetry.GetContextualLogger(ctx).WithField("service", "nearby")
}

// Search queries the provider around center and replaces the marker list
// on success. On failure the previous markers stay and the error is
// returned. Overlapping searches are not cancelled; whichever response
// arrives last is kept.
func (s *Sync) Search(ctx context.Context, center geo.Coordinate, radiusMeters float64) ([]PlaceMarker, error) {
	q := places.Query{Center: center, RadiusMeters: radiusMeters, Keyword: s.opts.Keyword}
	logger := s.logger(ctx).WithFields(map[string]interface{}{
		"operation": "search",
		"location":  center.String(),
		"radius":    radiusMeters,
	})

	if err := q.Validate(); err != nil {
		return nil, err
	}

	results, err := s.provider.Nearby(ctx, q)
	s.notify(ctx, searchEvent(s.provider.Name(), q, results, err))
	if err != nil {
		logger.WithError(err).Warn("Search failed, keeping previous markers")
		return nil, err
	}

	markers := MarkersFromPlaces(results)

	s.mu.Lock()
	s.state = s.state.WithMarkers(markers).WithSearchCenter(center, radiusMeters)
	current := s.state.Clone().Markers
	s.mu.Unlock()

	logger.WithField("markers", len(markers)).Info("Search completed")
	return current, nil
}

// SearchThisArea re-runs the search over the current region.
func (s *Sync) SearchThisArea(ctx context.Context) ([]PlaceMarker, error) {
	s.mu.Lock()
	region, ok := s.state.Region, s.state.HasRegion
	s.mu.Unlock()

	if !ok {
		return nil, apperrors.NewValidationError("region", "no region to search yet")
	}
	return s.Search(ctx, region.Center, region.RadiusMeters)
}

func searchEvent(provider string, q places.Query, results []places.Place, err error) SearchEvent {
	event := SearchEvent{Provider: provider, Query: q, Results: len(results), Err: err}
	for _, p := range results {
		if p.PlaceID != "" {
			event.PlaceIDs = append(event.PlaceIDs, p.PlaceID)
		}
	}
	return event
}

func (s *Sync) notify(ctx context.Context, event SearchEvent) {
	if s.opts.OnSearch != nil {
		s.opts.OnSearch(ctx, event)
	}
}

// SelectMarker activates markers[index] and returns its details. An index
// outside the list fails with IndexOutOfRange and leaves selection alone.
func (s *Sync) SelectMarker(index int) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, selection, err := s.state.WithSelection(index)
	if err != nil {
		return Selection{}, err
	}
	s.state = next
	return selection, nil
}

// SelectMarkerByID activates the marker with the given id.
func (s *Sync) SelectMarkerByID(id string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.state.MarkerIndex(id)
	if !ok {
		return Selection{}, apperrors.NewIndexOutOfRangeError(-1, len(s.state.Markers)).
			WithMetadata("marker_id", id)
	}
	next, selection, err := s.state.WithSelection(index)
	if err != nil {
		return Selection{}, err
	}
	s.state = next
	return selection, nil
}

// SyncCameraToScrollOffset maps a card scroller offset to a marker and
// schedules a camera move to it after debounce, cancelling any move still
// pending. It returns the focused index, or -1 when there are no markers,
// in which case nothing is scheduled.
func (s *Sync) SyncCameraToScrollOffset(offset, cardWidth float64, debounce time.Duration) (int, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return -1, apperrors.NewValidationError("offset", "offset must be a finite number")
	}
	if !(cardWidth > 0) || math.IsInf(cardWidth, 0) {
		return -1, apperrors.NewValidationError("cardWidth", "card width must be a positive number")
	}
	if debounce < 0 {
		return -1, apperrors.NewValidationError("debounce", "debounce must not be negative")
	}

	s.mu.Lock()
	index, ok := s.state.FocusIndex(offset, cardWidth)
	var markerID string
	if ok {
		markerID = s.state.Markers[index].ID
	}
	s.mu.Unlock()

	if !ok {
		return -1, nil
	}

	s.debouncer.Trigger(debounce, func() { s.moveCamera(markerID) })
	return index, nil
}

// moveCamera resolves the marker when the debounce fires; the list may have
// been replaced since the scroll that scheduled it.
func (s *Sync) moveCamera(markerID string) {
	s.mu.Lock()
	index, ok := s.state.MarkerIndex(markerID)
	if !ok {
		s.mu.Unlock()
		s.logger(context.Background()).WithFields(map[string]interface{}{
			"operation": "camera_move",
			"marker_id": markerID,
		}).Debug("Marker gone before camera move fired")
		return
	}
	marker := s.state.Markers[index]
	latDelta, lngDelta := DefaultLatitudeDelta, DefaultLongitudeDelta
	if s.state.HasRegion {
		latDelta, lngDelta = s.state.Region.LatitudeDelta, s.state.Region.LongitudeDelta
	}
	s.mu.Unlock()

	s.camera.AnimateTo(CameraMove{
		MarkerID:       marker.ID,
		Index:          index,
		Target:         marker.Coordinate,
		LatitudeDelta:  latDelta,
		LongitudeDelta: lngDelta,
		Duration:       s.opts.AnimationDuration,
		DurationMs:     s.opts.AnimationDuration.Milliseconds(),
	})
}

// SetRegion records a region-change-complete event from the viewport.
func (s *Sync) SetRegion(region SearchRegion) error {
	if err := region.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = s.state.WithRegion(region)
	s.mu.Unlock()
	return nil
}

// ToggleMapType flips the base layer and returns the new one.
func (s *Sync) ToggleMapType() MapType {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.ToggledMapType()
	return s.state.MapType
}

// Mount asks loc for permission. When granted the region is centered on the
// device and an initial search runs. Denial is recorded and returned as a
// PermissionDenied error; the screen stays usable without auto-centering.
func (s *Sync) Mount(ctx context.Context, loc LocationSource) error {
	logger := s.logger(ctx).WithField("operation", "mount")

	status, err := loc.RequestPermission(ctx)
	if err != nil {
		logger.WithError(err).Warn("Location permission request failed")
		status = PermissionDenied
	}

	s.mu.Lock()
	s.state = s.state.WithPermission(status)
	s.mu.Unlock()

	if status != PermissionGranted {
		logger.WithField("permission", status).Info("Location permission not granted, skipping auto-center")
		return apperrors.NewPermissionDeniedError("location")
	}

	position, err := loc.CurrentPosition(ctx)
	if err != nil {
		logger.WithError(err).Warn("Could not read device position")
		return apperrors.NewAppErrorWithCause(apperrors.ErrorTypeInternal, "LOCATION_UNAVAILABLE",
			"Device position is unavailable", err)
	}
	region := NewSearchRegion(position, s.opts.RadiusMeters)
	if err := region.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = s.state.WithRegion(region)
	s.mu.Unlock()

	_, err = s.Search(ctx, region.Center, region.RadiusMeters)
	return err
}

// Close drops any pending camera move. Later scroll syncs are ignored.
func (s *Sync) Close() {
	s.debouncer.Stop()
}
