package nearby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loocate/loocate/internal/geo"
	"github.com/loocate/loocate/internal/places"
)

func providerResults() []places.Place {
	rating := 3.5
	total := 42
	return []places.Place{
		{PlaceID: "abc", Name: "Charing Cross WC", Vicinity: "Strand", Location: geo.Coordinate{Latitude: 51.508, Longitude: -0.1247}, Rating: &rating, UserRatingsTotal: &total},
		{Name: "Trafalgar Toilets", Location: geo.Coordinate{Latitude: 51.5081, Longitude: -0.1281}},
	}
}

func TestMarkersFromPlaces(t *testing.T) {
	markers := MarkersFromPlaces(providerResults())
	require.Len(t, markers, 2)

	first := markers[0]
	assert.Equal(t, "Charing Cross WC", first.Title)
	assert.Equal(t, "Strand", first.Address)
	assert.Equal(t, geo.Coordinate{Latitude: 51.508, Longitude: -0.1247}, first.Coordinate)
	require.NotNil(t, first.Rating)
	assert.Equal(t, 3.5, *first.Rating)
	require.NotNil(t, first.ReviewCount)
	assert.Equal(t, 42, *first.ReviewCount)

	assert.Nil(t, markers[1].Rating)
	assert.Nil(t, markers[1].ReviewCount)
	assert.NotEqual(t, markers[0].ID, markers[1].ID)
}

func TestMarkersFromPlaces_StableIDs(t *testing.T) {
	first := MarkersFromPlaces(providerResults())
	second := MarkersFromPlaces(providerResults())
	assert.Equal(t, first, second)
}

func TestMarkersFromPlaces_DuplicatesKeptWithDistinctIDs(t *testing.T) {
	dup := places.Place{PlaceID: "same", Name: "Same"}
	markers := MarkersFromPlaces([]places.Place{dup, dup, dup})

	require.Len(t, markers, 3, "no deduplication")
	ids := map[string]bool{}
	for _, m := range markers {
		ids[m.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, MarkerID("place:same", 0), markers[0].ID)
}

func TestMarkersFromPlaces_Empty(t *testing.T) {
	markers := MarkersFromPlaces(nil)
	assert.NotNil(t, markers)
	assert.Empty(t, markers)
}
