package monitoring

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loocate/loocate/internal/places"
)

// Collector bundles the service's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Searches       *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	SearchResults  *prometheus.HistogramVec
	CameraMoves    prometheus.Counter
	Selections     *prometheus.CounterVec
	ActiveScreens  prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice on the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	searches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loocate_searches_total",
		Help: "Nearby searches labeled by provider and outcome. cache_hit searches never reached the provider.",
	}, []string{"provider", "outcome"}), "loocate_searches_total")
	if err != nil {
		return nil, err
	}

	searchDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loocate_search_duration_seconds",
		Help:    "Places provider latency in seconds.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider"}), "loocate_search_duration_seconds")
	if err != nil {
		return nil, err
	}

	searchResults, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loocate_search_results",
		Help:    "Places returned per successful search.",
		Buckets: []float64{0, 1, 5, 10, 20, 40, 60},
	}, []string{"provider"}), "loocate_search_results")
	if err != nil {
		return nil, err
	}

	cameraMoves, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loocate_camera_moves_total",
		Help: "Camera moves fired after a settled card scroll.",
	}), "loocate_camera_moves_total")
	if err != nil {
		return nil, err
	}

	selections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loocate_marker_selections_total",
		Help: "Marker selections, labeled by result.",
	}, []string{"result"}), "loocate_marker_selections_total")
	if err != nil {
		return nil, err
	}

	activeScreens, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loocate_active_screens",
		Help: "Currently mounted map screens.",
	}), "loocate_active_screens")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loocate_http_requests_total",
		Help: "HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "status"}), "loocate_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loocate_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"}), "loocate_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Searches:       searches,
		SearchDuration: searchDuration,
		SearchResults:  searchResults,
		CameraMoves:    cameraMoves,
		Selections:     selections,
		ActiveScreens:  activeScreens,
		HTTPRequests:   httpRequests,
		HTTPDuration:   httpDuration,
	}, nil
}

// ObserveSearch implements places.SearchObserver.
func (c *Collector) ObserveSearch(provider, outcome string, duration time.Duration, results int) {
	if c == nil {
		return
	}
	c.Searches.WithLabelValues(provider, outcome).Inc()
	switch outcome {
	case places.OutcomeCacheHit:
		c.SearchResults.WithLabelValues(provider).Observe(float64(results))
	case places.OutcomeOK:
		c.SearchDuration.WithLabelValues(provider).Observe(duration.Seconds())
		c.SearchResults.WithLabelValues(provider).Observe(float64(results))
	default:
		c.SearchDuration.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

// CameraMoved counts a camera move for a screen.
func (c *Collector) CameraMoved(string) {
	if c == nil {
		return
	}
	c.CameraMoves.Inc()
}

// MarkerSelected counts a selection attempt.
func (c *Collector) MarkerSelected(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "out_of_range"
	}
	c.Selections.WithLabelValues(result).Inc()
}

// SetActiveScreens sets the mounted screen gauge.
func (c *Collector) SetActiveScreens(active int) {
	if c == nil {
		return
	}
	c.ActiveScreens.Set(float64(active))
}

// Handler exposes the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency per route template.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
