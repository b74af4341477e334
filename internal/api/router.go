// Package api exposes mounted map screens over HTTP.
package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/middleware"
	"github.com/loocate/loocate/internal/monitoring"
	"github.com/loocate/loocate/internal/sentry"
)

// RouterConfig wires the router's collaborators. Everything except
// Screens is optional.
type RouterConfig struct {
	ServiceName string
	Screens     *ScreenHandler
	Metrics     *monitoring.Collector
	Health      *monitoring.HealthChecker
	RateLimit   *middleware.RateLimitMiddleware
	Logging     *middleware.LoggingConfig
}

// NewRouter builds the gin engine with the middleware chain and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "loocate"
	}
	if cfg.Logging == nil {
		cfg.Logging = middleware.DefaultLoggingConfig()
	}

	r := gin.New()
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middleware.LoggingMiddleware(cfg.Logging))
	r.Use(middleware.ErrorHandler())
	r.Use(sentry.GinMiddleware())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.Health != nil {
		r.GET("/health", cfg.Health.HealthHandler())
		r.GET("/health/ready", cfg.Health.ReadinessHandler())
		r.GET("/health/live", cfg.Health.LivenessHandler())
	}

	v1 := r.Group("/api/v1")
	if cfg.RateLimit != nil {
		v1.Use(cfg.RateLimit.Middleware())
	}

	h := cfg.Screens
	v1.POST("/screens", h.Mount)
	screens := v1.Group("/screens/:id")
	{
		screens.GET("", h.Get)
		screens.DELETE("", h.Unmount)
		screens.POST("/search", h.Search)
		screens.POST("/search-area", h.SearchArea)
		screens.PUT("/region", h.SetRegion)
		screens.POST("/selection", h.Select)
		screens.POST("/scroll", h.Scroll)
		screens.POST("/map-type", h.ToggleMapType)
		screens.GET("/camera", h.Camera)
		screens.GET("/camera/stream", h.CameraStream)
		screens.GET("/history", h.History)
	}

	r.NoRoute(func(c *gin.Context) {
		middleware.HandleError(c, apperrors.NewNotFoundError("route"))
	})
	return r
}
