package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/loocate/loocate/internal/api"
	"github.com/loocate/loocate/internal/cache"
	"github.com/loocate/loocate/internal/config"
	"github.com/loocate/loocate/internal/database"
	"github.com/loocate/loocate/internal/grpcserver"
	"github.com/loocate/loocate/internal/middleware"
	"github.com/loocate/loocate/internal/monitoring"
	"github.com/loocate/loocate/internal/nearby"
	"github.com/loocate/loocate/internal/places"
	"github.com/loocate/loocate/internal/screen"
	"github.com/loocate/loocate/internal/sentry"
	"github.com/loocate/loocate/internal/telemetry"
)

const serviceName = "loocate"

func main() {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := telemetry.InitGlobalLogger(cfg.Log); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"service":   serviceName,
		"operation": "startup",
		"version":   cfg.Version,
	})

	cfg.OTel.ServiceName = serviceName
	cfg.OTel.ServiceVersion = cfg.Version
	shutdownOTel, err := telemetry.InitializeOpenTelemetry(ctx, cfg.OTel)
	if err != nil {
		logger.WithError(err).Error("OpenTelemetry disabled")
		shutdownOTel = func() {}
	}
	defer shutdownOTel()

	if err := sentry.Init(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     serviceName + "@" + cfg.Version,
	}); err != nil {
		logger.WithError(err).Warn("Sentry initialization failed")
	}
	defer sentry.Flush(2 * time.Second)

	if err := run(ctx, cfg); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		sentry.Flush(2 * time.Second)
		shutdownOTel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"service":   serviceName,
		"operation": "run",
	})

	metrics, err := monitoring.NewCollector(nil)
	if err != nil {
		return err
	}
	health := monitoring.NewHealthChecker(serviceName, cfg.Version)

	provider, closeProvider, err := buildProvider(ctx, cfg, health)
	if err != nil {
		return err
	}
	defer closeProvider()
	provider = places.NewObservedProvider(provider, metrics)

	if cfg.RedisEnabled {
		redis, err := cache.NewRedisService(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, search cache disabled")
		} else {
			defer redis.Close()
			health.RegisterRedisCheck("redis", redis)
			provider = places.NewCachingProvider(provider, redis, cfg.SearchCacheTTL, metrics)
		}
	}

	var history *database.HistoryRepository
	var historyStore api.HistoryStore
	if cfg.DatabaseURL != "" {
		db, err := database.NewConnection(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		health.RegisterDatabaseCheck("postgres", db.DB)
		history = database.NewHistoryRepository(db)
		historyStore = history
	}

	screens := screen.NewManager(screen.Config{
		TTL: cfg.ScreenTTL,
		Factory: func(id string, camera nearby.Camera, radius float64) *nearby.Sync {
			if radius <= 0 {
				radius = cfg.SearchRadiusMeters
			}
			opts := nearby.Options{
				ScreenID:          id,
				Keyword:           cfg.PlacesKeyword,
				RadiusMeters:      radius,
				AnimationDuration: cfg.CameraAnimation,
			}
			if history != nil {
				opts.OnSearch = history.Hook(id)
			}
			return nearby.NewSync(provider, camera, opts)
		},
		OnMove:       metrics.CameraMoved,
		OnActiveSize: metrics.SetActiveScreens,
	})
	defer screens.CloseAll()
	screens.StartCleanupRoutine(ctx, cfg.ScreenCleanupInterval)

	limiter := middleware.NewRateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		ServiceName: serviceName,
		Screens:     api.NewScreenHandler(screens, historyStore, metrics, cfg.CameraDebounce),
		Metrics:     metrics,
		Health:      health,
		RateLimit:   limiter,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpcserver.New()
	grpcServer.WatchHealth(ctx, health, 15*time.Second)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			return err
		}
		return nil
	})

	if cfg.RateLimitRequests > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.RateLimitWindow)
			defer ticker.Stop()
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case <-ticker.C:
					limiter.Cleanup(2 * cfg.RateLimitWindow)
				}
			}
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("HTTP shutdown error")
		}
		grpcServer.Shutdown(shutdownCtx)

		logger.Info("Graceful shutdown completed")
		return nil
	})

	return group.Wait()
}

// buildProvider connects the configured places backend.
func buildProvider(ctx context.Context, cfg *config.Config, health *monitoring.HealthChecker) (places.Provider, func(), error) {
	switch cfg.PlacesProvider {
	case config.ProviderElastic:
		store, err := places.NewElasticStore(cfg.ElasticURL, cfg.ElasticIndex)
		if err != nil {
			return nil, nil, err
		}
		if _, err := store.CreateIndex(ctx); err != nil {
			return nil, nil, err
		}
		health.RegisterElasticCheck("elasticsearch", store.Client, store.Index)
		return store, store.Client.Stop, nil
	default:
		return places.NewGoogleClient(places.GoogleConfig{
			BaseURL: cfg.PlacesBaseURL,
			APIKey:  cfg.GoogleAPIKey,
			Timeout: cfg.PlacesTimeout,
		}), func() {}, nil
	}
}
