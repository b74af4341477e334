package api

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loocate/loocate/internal/database"
	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/middleware"
	"github.com/loocate/loocate/internal/monitoring"
	"github.com/loocate/loocate/internal/nearby"
	"github.com/loocate/loocate/internal/screen"
	"github.com/loocate/loocate/internal/telemetry"
)

// HistoryStore lists persisted searches.
type HistoryStore interface {
	Recent(ctx context.Context, screenID string, limit int) ([]database.SearchRecord, error)
}

// ScreenHandler serves the map screen endpoints.
type ScreenHandler struct {
	screens        *screen.Manager
	history        HistoryStore
	metrics        *monitoring.Collector
	scrollDebounce time.Duration
}

// NewScreenHandler creates the handler. history and metrics may be nil.
func NewScreenHandler(screens *screen.Manager, history HistoryStore, metrics *monitoring.Collector, scrollDebounce time.Duration) *ScreenHandler {
	if scrollDebounce < 0 {
		scrollDebounce = nearby.DefaultScrollDebounce
	}
	return &ScreenHandler{
		screens:        screens,
		history:        history,
		metrics:        metrics,
		scrollDebounce: scrollDebounce,
	}
}

// bindOptionalJSON decodes the body into req. An empty body leaves req
// untouched.
func bindOptionalJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError("body", err.Error())
	}
	return nil
}

func (h *ScreenHandler) lookup(c *gin.Context) (*screen.Screen, bool) {
	s, err := h.screens.Get(c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return nil, false
	}
	return s, true
}

func validRadius(r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return apperrors.NewValidationError("radiusMeters", "radius must be a positive number")
	}
	return nil
}

// Mount handles POST /screens.
func (h *ScreenHandler) Mount(c *gin.Context) {
	var req MountRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}
	if err := validRadius(req.RadiusMeters); err != nil {
		middleware.HandleError(c, err)
		return
	}

	permission := req.Permission
	if permission == "" && req.Location != nil {
		permission = nearby.PermissionGranted
	}
	switch permission {
	case "", nearby.PermissionUnknown, nearby.PermissionDenied:
	case nearby.PermissionGranted:
		if req.Location == nil {
			middleware.HandleError(c, apperrors.NewValidationError("location", "location is required when permission is granted"))
			return
		}
		if err := req.Location.Validate(); err != nil {
			middleware.HandleError(c, apperrors.NewValidationError("location", err.Error()))
			return
		}
	default:
		middleware.HandleError(c, apperrors.NewValidationError("permission", "permission must be granted, denied or undetermined"))
		return
	}

	s := h.screens.Mount(req.RadiusMeters)
	ctx := telemetry.WithScreenID(c.Request.Context(), s.ID)
	loc := nearby.StaticLocation{Permission: permission}
	if req.Location != nil {
		loc.Position = *req.Location
	}

	resp := MountResponse{}
	if err := s.Sync.Mount(ctx, loc); err != nil {
		appErr, ok := apperrors.AsAppError(err)
		if !ok {
			appErr = apperrors.NewInternalError("Mount failed", err)
		}
		resp.Error = appErr.WithCorrelationID(telemetry.GetCorrelationID(ctx))
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"service":    "api",
			"operation":  "mount",
			"error_code": appErr.Code,
		}).Info("Screen mounted without an initial search")
	}
	resp.Screen = newScreenView(s)
	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /screens/:id.
func (h *ScreenHandler) Get(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newScreenView(s))
}

// Unmount handles DELETE /screens/:id.
func (h *ScreenHandler) Unmount(c *gin.Context) {
	if err := h.screens.Unmount(c.Param("id")); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search handles POST /screens/:id/search.
func (h *ScreenHandler) Search(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req SearchRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}
	if err := validRadius(req.RadiusMeters); err != nil {
		middleware.HandleError(c, err)
		return
	}

	state := s.Sync.State()
	if req.Center == nil {
		if !state.HasRegion {
			middleware.HandleError(c, apperrors.NewValidationError("center", "center is required until the screen has a region"))
			return
		}
		center := state.Region.Center
		req.Center = &center
	}
	radius := req.RadiusMeters
	if radius == 0 {
		radius = s.Sync.DefaultRadius()
		if state.HasRegion {
			radius = state.Region.RadiusMeters
		}
	}

	if _, err := s.Sync.Search(c.Request.Context(), *req.Center, radius); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, newScreenView(s))
}

// SearchArea handles POST /screens/:id/search-area.
func (h *ScreenHandler) SearchArea(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if _, err := s.Sync.SearchThisArea(c.Request.Context()); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, newScreenView(s))
}

// SetRegion handles PUT /screens/:id/region.
func (h *ScreenHandler) SetRegion(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req RegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	if req.Center == nil {
		middleware.HandleError(c, apperrors.NewValidationError("center", "center is required"))
		return
	}

	if err := validRadius(req.RadiusMeters); err != nil {
		middleware.HandleError(c, err)
		return
	}
	radius := req.RadiusMeters
	if radius == 0 {
		radius = s.Sync.DefaultRadius()
		if state := s.Sync.State(); state.HasRegion {
			radius = state.Region.RadiusMeters
		}
	}

	region := nearby.NewSearchRegion(*req.Center, radius)
	if req.LatitudeDelta != 0 || req.LongitudeDelta != 0 {
		region.LatitudeDelta = req.LatitudeDelta
		region.LongitudeDelta = req.LongitudeDelta
	}
	if err := s.Sync.SetRegion(region); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, newScreenView(s))
}

// Select handles POST /screens/:id/selection.
func (h *ScreenHandler) Select(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}

	var (
		selection nearby.Selection
		err       error
	)
	switch {
	case req.Index != nil && req.MarkerID != "":
		err = apperrors.NewValidationError("selection", "give either index or markerId, not both")
	case req.Index != nil:
		selection, err = s.Sync.SelectMarker(*req.Index)
		h.metrics.MarkerSelected(err == nil)
	case req.MarkerID != "":
		selection, err = s.Sync.SelectMarkerByID(req.MarkerID)
		h.metrics.MarkerSelected(err == nil)
	default:
		err = apperrors.NewValidationError("selection", "index or markerId is required")
	}
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, selection)
}

// Scroll handles POST /screens/:id/scroll.
func (h *ScreenHandler) Scroll(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req ScrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, apperrors.NewValidationError("body", err.Error()))
		return
	}
	if req.Offset == nil {
		middleware.HandleError(c, apperrors.NewValidationError("offset", "offset is required"))
		return
	}
	debounce := h.scrollDebounce
	if req.DebounceMs != nil {
		debounce = time.Duration(*req.DebounceMs) * time.Millisecond
	}

	index, err := s.Sync.SyncCameraToScrollOffset(*req.Offset, req.CardWidth, debounce)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ScrollResponse{FocusedIndex: index, Scheduled: index >= 0})
}

// ToggleMapType handles POST /screens/:id/map-type.
func (h *ScreenHandler) ToggleMapType(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, MapTypeResponse{MapType: s.Sync.ToggleMapType()})
}

// Camera handles GET /screens/:id/camera. 204 until the first move.
func (h *ScreenHandler) Camera(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	event, ok := s.Camera.Last()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, event)
}

// History handles GET /screens/:id/history.
func (h *ScreenHandler) History(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	limit := database.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			middleware.HandleError(c, apperrors.NewValidationError("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	if h.history == nil {
		c.JSON(http.StatusOK, HistoryResponse{Enabled: false, Searches: []database.SearchRecord{}})
		return
	}
	records, err := h.history.Recent(c.Request.Context(), s.ID, limit)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Enabled: true, Searches: records})
}
