package tracking

import (
	"time"
)

// PositionSample - one telemetry reading of a runner during an event.
// Immutable once written, one row per (userId, timestamp).
type PositionSample struct {
	EventID       string    `json:"eventId"`
	UserID        string    `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Speed         float64   `json:"speed"`
	Heading       float64   `json:"heading"`
	DistanceSoFar float64   `json:"distanceSoFar"`
	ElapsedTime   float64   `json:"elapsedTime"`
}
