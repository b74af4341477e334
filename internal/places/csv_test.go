package places

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPlaceDocuments(t *testing.T) {
	input := `place_id,name,vicinity,keywords,lat,lng,rating,user_ratings_total
wc-1,Charing Cross WC,"Strand, London",toilet;accessible,51.508,-0.1247,3.5,42
wc-2,Trafalgar Toilets,,toilet,51.5081,-0.1281,,
`
	docs, err := ReadPlaceDocuments(strings.NewReader(input), ',')
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "wc-1", docs[0].PlaceID)
	assert.Equal(t, "Strand, London", docs[0].Vicinity)
	assert.Equal(t, []string{"toilet", "accessible"}, docs[0].Keywords)
	assert.Equal(t, 51.508, docs[0].Location.Lat)
	assert.Equal(t, -0.1247, docs[0].Location.Lon)
	require.NotNil(t, docs[0].Rating)
	assert.Equal(t, 3.5, *docs[0].Rating)
	require.NotNil(t, docs[0].UserRatingsTotal)
	assert.Equal(t, 42, *docs[0].UserRatingsTotal)

	assert.Nil(t, docs[1].Rating)
	assert.Nil(t, docs[1].UserRatingsTotal)
}

func TestReadPlaceDocuments_TabSeparated(t *testing.T) {
	input := "place_id\tname\tlat\tlng\nx\tX\t1\t2\n"
	docs, err := ReadPlaceDocuments(strings.NewReader(input), '\t')
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2.0, docs[0].Location.Lon)
}

func TestReadPlaceDocuments_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing column", "place_id,name,lat\nx,X,1\n"},
		{"bad latitude", "place_id,name,lat,lng\nx,X,north,2\n"},
		{"empty id", "place_id,name,lat,lng\n,X,1,2\n"},
		{"bad rating", "place_id,name,lat,lng,rating\nx,X,1,2,good\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPlaceDocuments(strings.NewReader(tt.input), ',')
			assert.Error(t, err)
		})
	}
}
