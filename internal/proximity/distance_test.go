package proximity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"walletgate/internal/models"
)

var jakarta = models.Coordinate{Latitude: -6.2088, Longitude: 106.8456}

func TestDistance(t *testing.T) {
	tests := []struct {
		name  string
		a, b  models.Coordinate
		want  float64
		delta float64
	}{
		{"same point", jakarta, jakarta, 0, 1e-9},
		{"one degree of latitude", models.Coordinate{Latitude: 0}, models.Coordinate{Latitude: 1}, 111_195, 1},
		{"one degree of longitude at equator", models.Coordinate{}, models.Coordinate{Longitude: 1}, 111_195, 1},
		{"london to paris", models.Coordinate{Latitude: 51.5074, Longitude: -0.1278}, models.Coordinate{Latitude: 48.8566, Longitude: 2.3522}, 343_560, 500},
		{"antipodes", models.Coordinate{Latitude: 0, Longitude: 0}, models.Coordinate{Latitude: 0, Longitude: 180}, 20_015_087, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), tt.delta)
			assert.InDelta(t, Distance(tt.a, tt.b), Distance(tt.b, tt.a), 1e-6)
		})
	}
}

func TestOffset(t *testing.T) {
	for _, m := range []float64{10, 49, 60, 250} {
		assert.InDelta(t, m, Distance(jakarta, Offset(jakarta, m, 0)), 0.01)
		assert.InDelta(t, m, Distance(jakarta, Offset(jakarta, 0, m)), 0.01)
	}
}
