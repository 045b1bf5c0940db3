package proximity

import (
	"math"

	"walletgate/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6_371_000.0

// Distance returns the great-circle distance between a and b in meters
// using the haversine formula.
func Distance(a, b models.Coordinate) float64 {
	phi1 := radians(a.Latitude)
	phi2 := radians(b.Latitude)
	dPhi := radians(b.Latitude - a.Latitude)
	dLambda := radians(b.Longitude - a.Longitude)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Offset returns the coordinate reached by moving north and east meters from c.
// It uses a local flat-earth approximation, accurate for short distances.
func Offset(c models.Coordinate, north, east float64) models.Coordinate {
	dLat := north / EarthRadiusMeters
	dLon := east / (EarthRadiusMeters * math.Cos(radians(c.Latitude)))
	return models.Coordinate{
		Latitude:  c.Latitude + degrees(dLat),
		Longitude: c.Longitude + degrees(dLon),
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
