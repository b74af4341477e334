// Package places talks to the points-of-interest backends: the hosted Google Places
// nearby search, a self-hosted Elasticsearch index, and the cache and metrics
// decorators that wrap either one.
package places

import (
	"context"
	"fmt"

	apperrors "github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/geo"
)

// DefaultKeyword is the category the map screen searches for.
const DefaultKeyword = "toilet"

// Query is one location-bounded search.
type Query struct {
	Center       geo.Coordinate `json:"center"`
	RadiusMeters float64        `json:"radius_meters"`
	Keyword      string         `json:"keyword"`
}

// Validate checks the query before it leaves the process.
func (q Query) Validate() error {
	if err := q.Center.Validate(); err != nil {
		return apperrors.NewValidationError("center", err.Error())
	}
	if !(q.RadiusMeters > 0) {
		return apperrors.NewValidationError("radius_meters",
			fmt.Sprintf("radius must be greater than zero, got %v", q.RadiusMeters))
	}
	return nil
}

// Place is a provider result normalized to the fields the map screen renders.
// Rating and UserRatingsTotal are nil when the provider did not supply them.
type Place struct {
	PlaceID          string         `json:"place_id,omitempty"`
	Location         geo.Coordinate `json:"location"`
	Name             string         `json:"name"`
	Vicinity         string         `json:"vicinity,omitempty"`
	Rating           *float64       `json:"rating,omitempty"`
	UserRatingsTotal *int           `json:"user_ratings_total,omitempty"`
}

// Provider answers nearby searches.
type Provider interface {
	Name() string
	Nearby(ctx context.Context, q Query) ([]Place, error)
}

func validRating(r *float64) *float64 {
	if r == nil || *r < 0 || *r > 5 {
		return nil
	}
	v := *r
	return &v
}

func validCount(n *int) *int {
	if n == nil || *n < 0 {
		return nil
	}
	v := *n
	return &v
}
