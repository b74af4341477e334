// Command seed loads places from a CSV file into the Elasticsearch index
// the elastic places provider searches.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"github.com/loocate/loocate/internal/cache"
	"github.com/loocate/loocate/internal/places"
	"github.com/loocate/loocate/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "places.csv", "CSV file with a header row")
	delimiter := flag.String("delimiter", ",", "field delimiter")
	elasticURL := flag.String("elastic-url", envOr("ELASTIC_URL", "http://localhost:9200"), "Elasticsearch URL")
	index := flag.String("index", envOr("ELASTIC_INDEX", places.DefaultElasticIndex), "index name")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	invalidate := flag.Bool("invalidate-cache", envBool("REDIS_ENABLED"), "drop cached elastic searches from Redis after seeding")
	flag.Parse()

	if err := telemetry.InitGlobalLogger(telemetry.LogConfigFromEnv()); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	comma, size := utf8.DecodeRuneInString(*delimiter)
	if size == 0 || size != len(*delimiter) {
		log.Fatalf("delimiter must be a single character, got %q", *delimiter)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"service":   "seed",
		"operation": "seed_places",
		"index":     *index,
		"file":      *file,
	})

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open %s: %v", *file, err)
	}
	defer f.Close()

	docs, err := places.ReadPlaceDocuments(f, comma)
	if err != nil {
		log.Fatalf("parse %s: %v", *file, err)
	}

	store, err := places.NewElasticStore(*elasticURL, *index)
	if err != nil {
		log.Fatalf("connect to elasticsearch: %v", err)
	}
	defer store.Client.Stop()

	created, err := store.CreateIndex(ctx)
	if err != nil {
		log.Fatalf("create index: %v", err)
	}
	if created {
		logger.Info("Created index")
	}

	indexed, err := store.IndexPlaces(ctx, docs)
	if err != nil {
		log.Fatalf("index places: %v", err)
	}
	logger.WithFields(map[string]interface{}{
		"read":    len(docs),
		"indexed": indexed,
	}).Info("Seeding completed")

	if *invalidate {
		invalidateSearchCache(ctx, store.Name())
	}

	if indexed < len(docs) {
		os.Exit(1)
	}
}

// invalidateSearchCache drops searches cached before the index changed.
// Failures are logged only; entries expire on their own.
func invalidateSearchCache(ctx context.Context, provider string) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"service":   "seed",
		"operation": "invalidate_search_cache",
		"provider":  provider,
	})

	redis, err := cache.NewRedisService(ctx, cache.ConfigFromEnv())
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, cached searches left to expire")
		return
	}
	defer redis.Close()

	deleted, err := redis.InvalidateSearchResults(ctx, provider)
	if err != nil {
		logger.WithError(err).Warn("Failed to invalidate cached searches")
		return
	}
	logger.WithField("deleted", deleted).Info("Invalidated cached searches")
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
