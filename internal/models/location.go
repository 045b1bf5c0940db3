package models

import (
	"time"

	"github.com/google/uuid"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Sample is a single location fix from the device.
type Sample struct {
	Coordinate
	Timestamp time.Time `json:"timestamp"`
}

// Suggestion is a payment suggestion near the device.
type Suggestion struct {
	MerchantID     uuid.UUID  `json:"merchant_id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	DistanceMeters float64    `json:"distance_m"`
	Coordinate     Coordinate `json:"coordinate"`
}
