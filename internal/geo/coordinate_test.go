package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	// Distance between Seoul and Busan
	seoul := Coordinate{Latitude: 37.5665, Longitude: 126.9780}
	busan := Coordinate{Latitude: 35.1796, Longitude: 129.0756}

	dist := DistanceMeters(seoul, busan)

	// Approx 325 km
	if dist < 320000 || dist > 330000 {
		t.Errorf("Expected distance around 325km, got %f", dist)
	}
	assert.InDelta(t, 0, DistanceMeters(seoul, seoul), 1e-6)
}

func TestCoordinate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		coord   Coordinate
		wantErr bool
	}{
		{"origin", Coordinate{0, 0}, false},
		{"corner", Coordinate{-90, 180}, false},
		{"latitude too high", Coordinate{90.1, 0}, true},
		{"longitude too low", Coordinate{0, -180.5}, true},
		{"nan", Coordinate{math.NaN(), 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinate(tt.coord.Latitude, tt.coord.Longitude)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCoordinate_String(t *testing.T) {
	assert.Equal(t, "-33.8670522,151.1957362", Coordinate{-33.8670522, 151.1957362}.String())
	assert.Equal(t, "1,2", Coordinate{1, 2}.String())
}

func TestCoordinate_Rounded(t *testing.T) {
	c := Coordinate{Latitude: 51.50735091, Longitude: -0.12775829}.Rounded(4)

	assert.Equal(t, 51.5074, c.Latitude)
	assert.Equal(t, -0.1278, c.Longitude)
}
