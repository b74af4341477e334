package nearby

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/loocate/loocate/internal/places"
)

var markerNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://loocate.app/markers"))

// MarkersFromPlaces maps provider results to markers in provider order.
// Ids are derived from each result's identity and its occurrence count, so
// an identical response always yields identical markers and duplicates in
// one response still get distinct ids.
func MarkersFromPlaces(results []places.Place) []PlaceMarker {
	markers := make([]PlaceMarker, 0, len(results))
	seen := make(map[string]int, len(results))
	for _, p := range results {
		key := identityKey(p)
		occurrence := seen[key]
		seen[key] = occurrence + 1

		markers = append(markers, PlaceMarker{
			ID:          MarkerID(key, occurrence),
			Coordinate:  p.Location,
			Title:       p.Name,
			Address:     p.Vicinity,
			Rating:      p.Rating,
			ReviewCount: p.UserRatingsTotal,
		})
	}
	return markers
}

// MarkerID is the stable id of the occurrence-th marker with the given identity.
func MarkerID(key string, occurrence int) string {
	return uuid.NewSHA1(markerNamespace, []byte(key+"#"+strconv.Itoa(occurrence))).String()
}

func identityKey(p places.Place) string {
	if p.PlaceID != "" {
		return "place:" + p.PlaceID
	}
	return strings.Join([]string{"anon", p.Name, p.Vicinity, p.Location.String()}, "|")
}
