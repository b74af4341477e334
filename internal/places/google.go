package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/geo"
	"github.com/loocate/loocate/internal/telemetry"
)

const (
	// DefaultGoogleBaseURL is the Places API nearby search endpoint.
	DefaultGoogleBaseURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

	googleService = "google_places"
	maxBodyBytes  = 4 << 20
)

// HTTPClient is the subset of *http.Client the provider needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// GoogleConfig configures the hosted places provider.
type GoogleConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GoogleClient queries the Google Places nearby search API.
type GoogleClient struct {
	client  HTTPClient
	baseURL string
	apiKey  string
}

// NewGoogleClient builds a client with a traced transport.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewGoogleClientWithHTTP(cfg, &http.Client{
		Timeout:   timeout,
		Transport: telemetry.InstrumentHTTPTransport(nil, googleService),
	})
}

// NewGoogleClientWithHTTP builds a client around an existing HTTP client.
func NewGoogleClientWithHTTP(cfg GoogleConfig, client HTTPClient) *GoogleClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	return &GoogleClient{
		client:  client,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
}

// Name identifies the provider in logs, metrics and cache keys.
func (c *GoogleClient) Name() string { return "google" }

// Nearby issues one nearby search request.
func (c *GoogleClient) Nearby(ctx context.Context, q Query) ([]Place, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "places_nearby",
		"service":   googleService,
		"location":  q.Center.String(),
		"radius":    q.RadiusMeters,
		"keyword":   q.Keyword,
	})

	params := url.Values{}
	params.Set("location", q.Center.String())
	params.Set("radius", strconv.FormatFloat(q.RadiusMeters, 'f', -1, 64))
	if q.Keyword != "" {
		params.Set("keyword", q.Keyword)
	}
	params.Set("key", c.apiKey)

	var body nearbySearchResponse
	if err := c.doRequest(ctx, params, &body); err != nil {
		logger.WithError(err).Warn("Places nearby search failed")
		return nil, err
	}

	switch body.Status {
	case statusOK, statusZeroResults:
	case "":
		err := apperrors.NewProviderError(googleService, "MALFORMED_RESPONSE", "missing status")
		logger.WithError(err).Warn("Places API response has no status")
		return nil, err
	default:
		err := apperrors.NewProviderError(googleService, body.Status, body.ErrorMessage)
		logger.WithError(err).Warn("Places API rejected the search")
		return nil, err
	}

	results := make([]Place, 0, len(body.Results))
	for i, r := range body.Results {
		if r.Geometry == nil || r.Geometry.Location == nil ||
			r.Geometry.Location.Lat == nil || r.Geometry.Location.Lng == nil {
			return nil, apperrors.NewProviderError(googleService, "MALFORMED_RESULT",
				fmt.Sprintf("result %d has no geometry.location", i))
		}
		results = append(results, Place{
			PlaceID: r.PlaceID,
			Location: geo.Coordinate{
				Latitude:  *r.Geometry.Location.Lat,
				Longitude: *r.Geometry.Location.Lng,
			},
			Name:             r.Name,
			Vicinity:         r.Vicinity,
			Rating:           validRating(r.Rating),
			UserRatingsTotal: validCount(r.UserRatingsTotal),
		})
	}

	logger.WithField("results", len(results)).Debug("Places nearby search completed")
	return results, nil
}

func (c *GoogleClient) doRequest(ctx context.Context, params url.Values, v interface{}) error {
	u := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperrors.NewInternalError("failed to build places request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewNetworkError(googleService, redactKey(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewProviderError(googleService, fmt.Sprintf("HTTP %d", resp.StatusCode), resp.Status)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewProviderError(googleService, "EMPTY_RESPONSE", "")
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return apperrors.NewNetworkError(googleService, err)
		}
		return apperrors.NewProviderError(googleService, "MALFORMED_RESPONSE", err.Error())
	}
	return nil
}

// redactKey strips the query string (which carries the API key) from url errors.
func redactKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			u.RawQuery = ""
			return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
		}
	}
	return err
}
