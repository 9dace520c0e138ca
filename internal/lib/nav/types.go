package nav

import (
	"errors"

	"github.com/deliverymap/server/internal/lib/geo"
)

// State is the top-level navigation session state.
type State int

const (
	// StateIdle means no guidance is active.
	StateIdle State = iota
	// StateActive means the session is following a route.
	StateActive
	// StateArriving is the short window between the arrival announcement
	// and the final teardown to idle.
	StateArriving
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateArriving:
		return "arriving"
	default:
		return "idle"
	}
}

// CameraMode is the Active sub-mode controlling camera behavior.
type CameraMode int

const (
	// ModeFollowing auto-tracks the live position.
	ModeFollowing CameraMode = iota
	// ModeOverview frames the whole route; auto-follow is suspended.
	ModeOverview
	// ModeUserOverridden means the operator panned manually; auto-follow
	// is suspended until an explicit recenter.
	ModeUserOverridden
)

// String returns the wire name of the camera mode.
func (m CameraMode) String() string {
	switch m {
	case ModeOverview:
		return "overview"
	case ModeUserOverridden:
		return "user-overridden"
	default:
		return "following"
	}
}

// Padding is the viewport padding of a camera intent, in pixels. During
// following the top/bottom split is asymmetric so the position marker
// sits low in the viewport, maximizing forward visibility.
type Padding struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// CameraIntent is the framing decision handed to the map renderer. When
// FitGeometry is non-empty the renderer fits those points instead of
// using Center/Zoom (overview and post-stop framing).
type CameraIntent struct {
	Center      geo.Point   `json:"center"`
	Bearing     float64     `json:"bearing"`
	Pitch       float64     `json:"pitch"`
	Zoom        float64     `json:"zoom"`
	Padding     Padding     `json:"padding"`
	FitGeometry []geo.Point `json:"fit_geometry,omitempty"`
}

// CameraSink consumes camera intents. Intents are last-writer-wins; an
// intent for update N is superseded by update N+1.
type CameraSink interface {
	Apply(intent CameraIntent)
}

// Announcer triggers voice prompts. A new announcement preempts the
// in-flight one.
type Announcer interface {
	Announce(text string)
	Silence()
}

// Destination is an already-resolved navigation target; URL parsing and
// geocoding happen upstream.
type Destination struct {
	Point geo.Point `json:"point"`
	Name  string    `json:"name,omitempty"`
}

// Precondition errors returned by Start. The session mutates no state
// when these are returned.
var (
	ErrNoRoute       = errors.New("cannot start: no route")
	ErrNoDestination = errors.New("cannot start: no destination")
	ErrNoPosition    = errors.New("cannot start: no current position")
)

// Config holds the tuning constants of the session state machine.
type Config struct {
	ArrivalRadiusMeters  float64
	AdvanceRadiusMeters  float64
	ApproachRadiusMeters float64
	LowSpeedMetersPerSec float64
	FollowZoom           float64
	FollowPitch          float64
	ArrivalZoom          float64
	FollowPadding        Padding
}

// DefaultConfig returns the tuning used by the delivery app: 15m arrival
// radius, 30m advance radius, 100m early-warning radius, 3 m/s compass
// cutover.
func DefaultConfig() Config {
	return Config{
		ArrivalRadiusMeters:  15,
		AdvanceRadiusMeters:  30,
		ApproachRadiusMeters: 100,
		LowSpeedMetersPerSec: 3,
		FollowZoom:           17,
		FollowPitch:          60,
		ArrivalZoom:          15,
		FollowPadding:        Padding{Top: 260, Bottom: 80, Left: 40, Right: 40},
	}
}
