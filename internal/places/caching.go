package places

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/loocate/loocate/internal/cache"
	"github.com/loocate/loocate/internal/telemetry"
)

// coordinatePrecision is ~11cm at the equator; coarser rounding would let
// distinct viewports share results.
const coordinatePrecision = 6

// sharedCallTimeout bounds an upstream call that no longer follows any
// single caller's context.
const sharedCallTimeout = 30 * time.Second

// ResultCache stores provider answers. *cache.RedisService satisfies it.
type ResultCache interface {
	GetSearchResults(ctx context.Context, key string, dest interface{}) (bool, error)
	SetSearchResults(ctx context.Context, key string, results interface{}, ttl time.Duration) error
}

// CachingProvider serves repeated queries from a ResultCache and collapses
// concurrent identical misses into one upstream call.
type CachingProvider struct {
	next     Provider
	cache    ResultCache
	ttl      time.Duration
	observer SearchObserver
	group    singleflight.Group
}

// NewCachingProvider wraps next. A zero ttl uses the cache's default.
// Hits are reported to observer, which may be nil; misses are left to
// whatever observes next.
func NewCachingProvider(next Provider, c ResultCache, ttl time.Duration, observer SearchObserver) *CachingProvider {
	return &CachingProvider{next: next, cache: c, ttl: ttl, observer: observer}
}

// Name reports the wrapped provider's name.
func (p *CachingProvider) Name() string { return p.next.Name() }

// Nearby answers from cache when possible. Cache failures are logged and
// the query falls through to the wrapped provider.
func (p *CachingProvider) Nearby(ctx context.Context, q Query) ([]Place, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := CacheKey(p.next.Name(), q)
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "cached_places_nearby",
		"service":   "places",
		"cache_key": key,
	})

	start := time.Now()
	var cached []Place
	hit, err := p.cache.GetSearchResults(ctx, key, &cached)
	if err != nil {
		logger.WithError(err).Warn("Search cache read failed")
	}
	if hit {
		logger.Debug("Search cache hit")
		if p.observer != nil {
			p.observer.ObserveSearch(p.next.Name(), OutcomeCacheHit, time.Since(start), len(cached))
		}
		return cached, nil
	}

	// Collapsed callers share one upstream call, so it runs detached from
	// the caller that started it. Each caller still stops waiting when its
	// own context ends.
	ch := p.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()

		results, err := p.next.Nearby(callCtx, q)
		if err != nil {
			return nil, err
		}
		if err := p.cache.SetSearchResults(callCtx, key, results, p.ttl); err != nil {
			logger.WithError(err).Warn("Search cache write failed")
		}
		return results, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		results := res.Val.([]Place)
		if res.Shared {
			results = append([]Place(nil), results...)
		}
		return results, nil
	}
}

// CacheKey identifies a query for a given provider.
func CacheKey(provider string, q Query) string {
	return cache.SearchResultKey(provider, q.Center.Rounded(coordinatePrecision).String(), q.RadiusMeters, q.Keyword)
}
