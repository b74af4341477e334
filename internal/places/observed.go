package places

import (
	"context"
	"time"

	apperrors "github.com/loocate/loocate/internal/errors"
)

// Search outcomes reported to a SearchObserver.
const (
	OutcomeOK            = "ok"
	OutcomeCacheHit      = "cache_hit"
	OutcomeNetworkError  = "network_error"
	OutcomeProviderError = "provider_error"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
)

// SearchObserver receives one callback per completed search.
type SearchObserver interface {
	ObserveSearch(provider, outcome string, duration time.Duration, results int)
}

// ObservedProvider reports the latency and outcome of every search.
type ObservedProvider struct {
	next     Provider
	observer SearchObserver
	now      func() time.Time
}

// NewObservedProvider wraps next.
func NewObservedProvider(next Provider, observer SearchObserver) *ObservedProvider {
	return &ObservedProvider{next: next, observer: observer, now: time.Now}
}

// Name reports the wrapped provider's name.
func (p *ObservedProvider) Name() string { return p.next.Name() }

// Nearby delegates and records the outcome.
func (p *ObservedProvider) Nearby(ctx context.Context, q Query) ([]Place, error) {
	start := p.now()
	results, err := p.next.Nearby(ctx, q)
	p.observer.ObserveSearch(p.next.Name(), Outcome(err), p.now().Sub(start), len(results))
	return results, err
}

// Outcome classifies a search error for metrics labels.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	errorType, _ := apperrors.GetErrorType(err)
	switch errorType {
	case apperrors.ErrorTypeNetwork, apperrors.ErrorTypeTimeout:
		return OutcomeNetworkError
	case apperrors.ErrorTypeProvider:
		return OutcomeProviderError
	case apperrors.ErrorTypeValidation:
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
