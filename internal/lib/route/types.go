package route

import (
	"time"

	"github.com/deliverymap/server/internal/lib/geo"
)

// Maneuver is the closed set of turn instructions a route step can carry.
type Maneuver int

const (
	ManeuverStraight Maneuver = iota
	ManeuverTurnRight
	ManeuverTurnLeft
	ManeuverSharpRight
	ManeuverSharpLeft
	ManeuverSlightRight
	ManeuverSlightLeft
	ManeuverUTurn
	ManeuverArrive
)

// String returns the wire/storage name of the maneuver.
func (m Maneuver) String() string {
	switch m {
	case ManeuverTurnRight:
		return "turn-right"
	case ManeuverTurnLeft:
		return "turn-left"
	case ManeuverSharpRight:
		return "sharp-right"
	case ManeuverSharpLeft:
		return "sharp-left"
	case ManeuverSlightRight:
		return "slight-right"
	case ManeuverSlightLeft:
		return "slight-left"
	case ManeuverUTurn:
		return "u-turn"
	case ManeuverArrive:
		return "arrive"
	default:
		return "straight"
	}
}

// Phrase returns the spoken fallback phrase for the maneuver, used when
// the directions provider supplies no instruction text for a step.
func (m Maneuver) Phrase() string {
	switch m {
	case ManeuverTurnRight:
		return "turn right"
	case ManeuverTurnLeft:
		return "turn left"
	case ManeuverSharpRight:
		return "make a sharp right"
	case ManeuverSharpLeft:
		return "make a sharp left"
	case ManeuverSlightRight:
		return "bear right"
	case ManeuverSlightLeft:
		return "bear left"
	case ManeuverUTurn:
		return "make a U-turn"
	case ManeuverArrive:
		return "arrive at your destination"
	default:
		return "continue straight"
	}
}

// ParseManeuver maps a directions-provider maneuver type and modifier to
// the closed Maneuver set. Unknown inputs fall back to straight rather
// than failing the whole route.
func ParseManeuver(maneuverType, modifier string) Maneuver {
	if maneuverType == "arrive" {
		return ManeuverArrive
	}

	switch modifier {
	case "right":
		return ManeuverTurnRight
	case "left":
		return ManeuverTurnLeft
	case "sharp right":
		return ManeuverSharpRight
	case "sharp left":
		return ManeuverSharpLeft
	case "slight right":
		return ManeuverSlightRight
	case "slight left":
		return ManeuverSlightLeft
	case "uturn":
		return ManeuverUTurn
	case "straight":
		return ManeuverStraight
	default:
		return ManeuverStraight
	}
}

// Step is a single maneuver of a planned route. Anchor is the location
// where the instruction becomes actionable.
type Step struct {
	Maneuver        Maneuver  `json:"maneuver"`
	Anchor          geo.Point `json:"anchor"`
	DistanceMeters  float64   `json:"distance_meters"`
	DurationSeconds float64   `json:"duration_seconds"`
	Instruction     string    `json:"instruction"`
}

// Route is an ordered sequence of steps produced by the directions
// provider, immutable once fetched. Geometry is the decoded route
// polyline, consumed only to frame the camera.
type Route struct {
	Steps                []Step      `json:"steps"`
	TotalDistanceMeters  float64     `json:"total_distance_meters"`
	TotalDurationSeconds float64     `json:"total_duration_seconds"`
	Geometry             []geo.Point `json:"geometry"`
}

// Summary is a compact record of a fetched route, kept in the persisted
// route history.
type Summary struct {
	Destination     geo.Point `json:"destination"`
	DestinationName string    `json:"destination_name,omitempty"`
	DistanceMeters  float64   `json:"distance_meters"`
	DurationSeconds float64   `json:"duration_seconds"`
	StepCount       int       `json:"step_count"`
	AvoidTolls      bool      `json:"avoid_tolls"`
	FetchedAt       time.Time `json:"fetched_at"`
}
