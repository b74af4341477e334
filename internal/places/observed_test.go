package places

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/loocate/loocate/internal/errors"
)

type recordedSearch struct {
	provider string
	outcome  string
	duration time.Duration
	results  int
}

type recordingObserver struct {
	searches []recordedSearch
}

func (o *recordingObserver) ObserveSearch(provider, outcome string, duration time.Duration, results int) {
	o.searches = append(o.searches, recordedSearch{provider, outcome, duration, results})
}

func TestObservedProvider(t *testing.T) {
	upstream := &MockProvider{}
	upstream.On("Nearby", mock.Anything, london).Return(samplePlaces(), nil).Once()
	upstream.On("Nearby", mock.Anything, london).
		Return(nil, apperrors.NewProviderError("mock", "REQUEST_DENIED", "")).Once()

	observer := &recordingObserver{}
	provider := NewObservedProvider(upstream, observer)
	tick := time.Unix(0, 0)
	provider.now = func() time.Time {
		tick = tick.Add(25 * time.Millisecond)
		return tick
	}

	results, err := provider.Nearby(context.Background(), london)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	_, err = provider.Nearby(context.Background(), london)
	require.Error(t, err)

	require.Len(t, observer.searches, 2)
	assert.Equal(t, recordedSearch{"mock", OutcomeOK, 25 * time.Millisecond, 2}, observer.searches[0])
	assert.Equal(t, recordedSearch{"mock", OutcomeProviderError, 25 * time.Millisecond, 0}, observer.searches[1])
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, OutcomeNetworkError, Outcome(apperrors.NewNetworkError("x", errors.New("y"))))
	assert.Equal(t, OutcomeNetworkError, Outcome(apperrors.NewTimeoutError("x", time.Second)))
	assert.Equal(t, OutcomeProviderError, Outcome(apperrors.NewProviderError("x", "HTTP 500", "")))
	assert.Equal(t, OutcomeInvalid, Outcome(apperrors.NewValidationError("radius", "bad")))
	assert.Equal(t, OutcomeError, Outcome(errors.New("plain")))
}
