package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olivere/elastic/v7"

	"github.com/loocate/loocate/internal/cache"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	Latency     *int64       `json:"latency_ms,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	Details     interface{}  `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Service    string                     `json:"service"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	System     SystemInfo                 `json:"system"`
}

// SystemInfo represents system-level information
type SystemInfo struct {
	MemoryAllocated uint64 `json:"memory_allocated_bytes"`
	Goroutines      int    `json:"goroutines"`
	CPUCount        int    `json:"cpu_count"`
	GoVersion       string `json:"go_version"`
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) ComponentHealth

// HealthChecker runs the registered dependency checks and caches the
// results for checkInterval.
type HealthChecker struct {
	mu            sync.RWMutex
	startTime     time.Time
	service       string
	version       string
	components    map[string]ComponentHealth
	checkFuncs    map[string]CheckFunc
	lastCheck     time.Time
	checkInterval time.Duration
	timeout       time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		startTime:     time.Now(),
		service:       service,
		version:       version,
		components:    make(map[string]ComponentHealth),
		checkFuncs:    make(map[string]CheckFunc),
		checkInterval: 10 * time.Second,
		timeout:       5 * time.Second,
	}
}

// SetCheckInterval changes how long results are reused.
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkInterval = interval
}

func timed(start time.Time, component ComponentHealth, degradedAfter int64) ComponentHealth {
	latency := time.Since(start).Milliseconds()
	component.Latency = &latency
	component.LastChecked = time.Now()
	if component.Status == HealthStatusHealthy && latency > degradedAfter {
		component.Status = HealthStatusDegraded
	}
	return component
}

// RegisterDatabaseCheck registers a database health check
func (hc *HealthChecker) RegisterDatabaseCheck(name string, db *sql.DB) {
	hc.RegisterCustomCheck(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := db.PingContext(ctx); err != nil {
			return timed(start, ComponentHealth{
				Status:  HealthStatusUnhealthy,
				Message: fmt.Sprintf("Database connection failed: %v", err),
			}, 0)
		}

		stats := db.Stats()
		return timed(start, ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "Database connection successful",
			Details: map[string]interface{}{
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
				"wait_count":       stats.WaitCount,
			},
		}, 1000)
	})
}

// RegisterRedisCheck registers a Redis health check
func (hc *HealthChecker) RegisterRedisCheck(name string, redis *cache.RedisService) {
	hc.RegisterCustomCheck(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		if err := redis.HealthCheck(ctx); err != nil {
			return timed(start, ComponentHealth{
				Status:  HealthStatusUnhealthy,
				Message: fmt.Sprintf("Redis connection failed: %v", err),
			}, 0)
		}

		return timed(start, ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "Redis connection successful",
			Details: map[string]interface{}{"cache_stats": redis.GetStats(ctx)},
		}, 500)
	})
}

// RegisterElasticCheck registers a cluster health check for the places index.
// A red cluster is unhealthy; yellow is reported but does not degrade,
// since single node clusters never get their replicas assigned.
func (hc *HealthChecker) RegisterElasticCheck(name string, client *elastic.Client, index string) {
	hc.RegisterCustomCheck(name, func(ctx context.Context) ComponentHealth {
		start := time.Now()
		health, err := client.ClusterHealth().Index(index).Do(ctx)
		if err != nil {
			return timed(start, ComponentHealth{
				Status:  HealthStatusUnhealthy,
				Message: fmt.Sprintf("Elasticsearch health request failed: %v", err),
			}, 0)
		}

		status := HealthStatusHealthy
		if health.Status == "red" {
			status = HealthStatusUnhealthy
		}
		return timed(start, ComponentHealth{
			Status:  status,
			Message: fmt.Sprintf("Cluster status %s", health.Status),
			Details: map[string]interface{}{
				"cluster_name":      health.ClusterName,
				"index":             index,
				"active_shards":     health.ActiveShards,
				"unassigned_shards": health.UnassignedShards,
			},
		}, 1000)
	})
}

// RegisterCustomCheck registers a custom health check function
func (hc *HealthChecker) RegisterCustomCheck(name string, checkFunc CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkFuncs[name] = checkFunc
}

// RunChecks executes all registered health checks
func (hc *HealthChecker) RunChecks(ctx context.Context) {
	hc.mu.RLock()
	funcs := make(map[string]CheckFunc, len(hc.checkFuncs))
	for name, fn := range hc.checkFuncs {
		funcs[name] = fn
	}
	timeout := hc.timeout
	hc.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(funcs))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex
	for name, fn := range funcs {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			result := fn(checkCtx)
			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	hc.mu.Lock()
	hc.components = results
	hc.lastCheck = time.Now()
	hc.mu.Unlock()
}

// GetHealth returns the current health status
func (hc *HealthChecker) GetHealth(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	stale := time.Since(hc.lastCheck) > hc.checkInterval
	hc.mu.RUnlock()
	if stale {
		hc.RunChecks(ctx)
	}

	hc.mu.RLock()
	defer hc.mu.RUnlock()

	overallStatus := HealthStatusHealthy
	components := make(map[string]ComponentHealth, len(hc.components))
	for name, component := range hc.components {
		components[name] = component
		if component.Status == HealthStatusUnhealthy {
			overallStatus = HealthStatusUnhealthy
		} else if component.Status == HealthStatusDegraded && overallStatus == HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return HealthResponse{
		Status:     overallStatus,
		Service:    hc.service,
		Version:    hc.version,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hc.startTime).String(),
		Components: components,
		System: SystemInfo{
			MemoryAllocated: memStats.Alloc,
			Goroutines:      runtime.NumGoroutine(),
			CPUCount:        runtime.NumCPU(),
			GoVersion:       runtime.Version(),
		},
	}
}

// HealthHandler returns a Gin handler for health checks
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth(c.Request.Context())

		statusCode := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}

// ReadinessHandler returns a simple readiness check
func (hc *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth(c.Request.Context())

		if health.Status == HealthStatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"message": "Service is unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"message": "Service is ready to accept traffic",
		})
	}
}

// LivenessHandler returns a simple liveness check
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"uptime":    time.Since(hc.startTime).String(),
			"timestamp": time.Now(),
		})
	}
}
