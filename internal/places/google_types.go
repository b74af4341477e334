package places

const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

type nearbySearchResponse struct {
	Status           string         `json:"status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	NextPageToken    string         `json:"next_page_token,omitempty"`
	HTMLAttributions []string       `json:"html_attributions"`
	Results          []nearbyResult `json:"results"`
}

type nearbyResult struct {
	PlaceID          string    `json:"place_id"`
	Name             string    `json:"name"`
	Vicinity         string    `json:"vicinity"`
	Geometry         *geometry `json:"geometry"`
	Rating           *float64  `json:"rating,omitempty"`
	UserRatingsTotal *int      `json:"user_ratings_total,omitempty"`
	Types            []string  `json:"types,omitempty"`
}

type geometry struct {
	Location *latLng `json:"location"`
}

type latLng struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}
