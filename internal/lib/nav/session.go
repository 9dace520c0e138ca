package nav

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/lib/geo"
	"github.com/deliverymap/server/internal/lib/route"
)

// Session is the turn-by-turn navigation state machine. It consumes the
// live position stream, advances route steps, triggers voice prompts and
// emits camera intents for the map renderer.
//
// The session is not safe for concurrent use: position updates, timer
// callbacks and user gestures must be serialized onto one control flow
// by the owner.
type Session struct {
	cfg       Config
	tracker   *route.Tracker
	announcer Announcer
	camera    CameraSink
	logger    *zap.SugaredLogger

	state         State
	mode          CameraMode
	dest          *Destination
	lastAnnounced int

	hasFix    bool
	lastFix   geo.Point
	lastFixAt time.Time
	lastSpeed float64

	heading    float64
	hasHeading bool
}

// NewSession creates an idle session over the given route tracker.
func NewSession(cfg Config, tracker *route.Tracker, announcer Announcer, camera CameraSink, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Session{
		cfg:           cfg,
		tracker:       tracker,
		announcer:     announcer,
		camera:        camera,
		logger:        logger,
		state:         StateIdle,
		mode:          ModeFollowing,
		lastAnnounced: -1,
	}
}

// State returns the session state.
func (s *Session) State() State { return s.state }

// Mode returns the camera sub-mode.
func (s *Session) Mode() CameraMode { return s.mode }

// Destination returns the active destination, or false when none is set.
func (s *Session) Destination() (Destination, bool) {
	if s.dest == nil {
		return Destination{}, false
	}
	return *s.dest, true
}

// HasFix reports whether at least one position sample has been seen.
func (s *Session) HasFix() bool { return s.hasFix }

// LastFix returns the most recent position sample.
func (s *Session) LastFix() (geo.Point, time.Time, bool) {
	return s.lastFix, s.lastFixAt, s.hasFix
}

// Start begins guidance toward dest over the tracker's active route.
// Precondition failures mutate no state; the session stays idle.
func (s *Session) Start(dest Destination) error {
	if !s.tracker.HasRoute() {
		return ErrNoRoute
	}
	if !s.hasFix {
		return ErrNoPosition
	}

	// Fully tear down any previous guidance before the new session
	// takes over; no two sessions may follow at once.
	if s.state != StateIdle {
		s.announcer.Silence()
	}

	s.tracker.Restart()
	s.dest = &dest
	s.state = StateActive
	s.mode = ModeFollowing
	s.lastAnnounced = -1

	first, _ := s.tracker.CurrentStep()
	s.announcer.Announce(instructionText(first))
	s.logger.Infow("navigation started",
		"destination", dest.Name, "steps", len(s.tracker.Route().Steps))

	bearing := 0.0
	if s.lastFix != first.Anchor {
		bearing = geo.Bearing(s.lastFix, first.Anchor)
	}
	s.camera.Apply(CameraIntent{
		Center:  s.lastFix,
		Bearing: bearing,
		Pitch:   s.cfg.FollowPitch,
		Zoom:    s.cfg.FollowZoom,
		Padding: s.cfg.FollowPadding,
	})
	return nil
}

// ObservePosition processes one position sample. It returns true when
// the sample triggered arrival: the owner must schedule FinishArrival
// after the settle delay.
func (s *Session) ObservePosition(p geo.Point, at time.Time) bool {
	if s.hasFix {
		if dt := at.Sub(s.lastFixAt).Seconds(); dt > 0 {
			s.lastSpeed = geo.Distance(s.lastFix, p) / dt
		}
	}
	s.lastFix = p
	s.lastFixAt = at
	s.hasFix = true

	if s.state != StateActive {
		return false
	}

	// Arrival check takes precedence over step advancement.
	if s.dest != nil && geo.Distance(p, s.dest.Point) < s.cfg.ArrivalRadiusMeters {
		s.beginArrival()
		return true
	}

	step, ok := s.tracker.CurrentStep()
	if !ok {
		// Index past the last step with no destination-based arrival
		// configured: resolve as arrival.
		s.beginArrival()
		return true
	}

	distToManeuver := geo.Distance(p, step.Anchor)
	if distToManeuver < s.cfg.AdvanceRadiusMeters && !s.tracker.AtLastStep() {
		// Crossing the advance boundary always advances; it is checked
		// before the early warning so the old step is never re-announced
		// in the same tick.
		next, _ := s.tracker.Advance()
		if idx := s.tracker.CurrentIndex(); idx != s.lastAnnounced {
			s.announceStep(geo.Distance(p, next.Anchor), next)
			s.lastAnnounced = idx
		}
	} else if distToManeuver < s.cfg.ApproachRadiusMeters && s.lastAnnounced != s.tracker.CurrentIndex() {
		// Early warning, at most once per step.
		s.announceStep(distToManeuver, step)
		s.lastAnnounced = s.tracker.CurrentIndex()
	}

	if s.mode == ModeFollowing {
		s.camera.Apply(s.followingIntent())
	}
	return false
}

// ObserveHeading records a compass reading. Compass absence is a valid
// state; the camera falls back to heading-of-travel without it.
func (s *Session) ObserveHeading(degrees float64, at time.Time) {
	s.heading = math.Mod(math.Mod(degrees, 360)+360, 360)
	s.hasHeading = true
}

// ToggleOverview switches between the full-route overview framing and
// position-following. Exiting overview recomputes the following intent
// from the current position and step, never from a cached frame.
func (s *Session) ToggleOverview() {
	if s.state != StateActive {
		return
	}
	if s.mode == ModeOverview {
		s.mode = ModeFollowing
		s.camera.Apply(s.followingIntent())
		return
	}

	s.mode = ModeOverview
	if r := s.tracker.Route(); r != nil && len(r.Geometry) > 0 {
		s.camera.Apply(CameraIntent{
			FitGeometry: r.Geometry,
			Padding:     Padding{Top: 50, Bottom: 50, Left: 50, Right: 50},
		})
	}
}

// UserPanned records a manual map pan during following. It returns true
// when the UI should show its recenter control.
func (s *Session) UserPanned() bool {
	if s.state != StateActive || s.mode != ModeFollowing {
		return false
	}
	s.mode = ModeUserOverridden
	return true
}

// Recenter clears a user camera override and resumes following.
func (s *Session) Recenter() {
	if s.state != StateActive || s.mode != ModeUserOverridden {
		return
	}
	s.mode = ModeFollowing
	s.camera.Apply(s.followingIntent())
}

// RouteReplaced resets announcement bookkeeping after the active route
// was hot-swapped (e.g. a toll preference re-fetch). Guidance restarts
// from the new route's first step.
func (s *Session) RouteReplaced() {
	if s.state != StateActive {
		return
	}
	s.lastAnnounced = -1
	if s.mode == ModeFollowing && s.hasFix {
		s.camera.Apply(s.followingIntent())
	}
}

// Stop cancels guidance: it silences any in-flight voice output, frames
// the whole route one last time and resets to idle. Idempotent.
func (s *Session) Stop() {
	if s.state == StateIdle && s.dest == nil && !s.tracker.HasRoute() {
		return
	}

	s.announcer.Silence()
	if r := s.tracker.Route(); r != nil && len(r.Geometry) > 0 {
		s.camera.Apply(CameraIntent{
			FitGeometry: r.Geometry,
			Padding:     Padding{Top: 50, Bottom: 50, Left: 50, Right: 50},
		})
	}
	s.clear()
	s.logger.Infow("navigation stopped")
}

// FinishArrival completes the Arriving state after the settle delay:
// final camera framing on the destination, then teardown to idle.
func (s *Session) FinishArrival() {
	if s.state != StateArriving {
		return
	}

	s.announcer.Silence()
	if s.hasFix {
		s.camera.Apply(CameraIntent{
			Center:  s.lastFix,
			Zoom:    s.cfg.ArrivalZoom,
			Padding: Padding{Top: 50, Bottom: 50, Left: 50, Right: 50},
		})
	}
	s.clear()
	s.logger.Infow("arrival resolved")
}

// beginArrival announces arrival and enters the Arriving state.
func (s *Session) beginArrival() {
	s.state = StateArriving
	if s.dest != nil && s.dest.Name != "" {
		s.announcer.Announce(fmt.Sprintf("You have arrived at %s", s.dest.Name))
	} else {
		s.announcer.Announce("You have arrived at your destination")
	}
}

// clear resets all per-session state. Position and heading tracking
// survive across sessions.
func (s *Session) clear() {
	s.tracker.ClearRoute()
	s.dest = nil
	s.state = StateIdle
	s.mode = ModeFollowing
	s.lastAnnounced = -1
}

// followingIntent computes the camera framing for following mode. Below
// the low-speed cutover GPS-derived travel bearing is noisy, so a
// compass reading wins when one is available.
func (s *Session) followingIntent() CameraIntent {
	bearing := 0.0
	step, ok := s.tracker.CurrentStep()

	switch {
	case s.lastSpeed < s.cfg.LowSpeedMetersPerSec && s.hasHeading:
		bearing = s.heading
	case ok && s.lastFix != step.Anchor:
		bearing = geo.Bearing(s.lastFix, step.Anchor)
	case s.hasHeading:
		bearing = s.heading
	}

	return CameraIntent{
		Center:  s.lastFix,
		Bearing: bearing,
		Pitch:   s.cfg.FollowPitch,
		Zoom:    s.cfg.FollowZoom,
		Padding: s.cfg.FollowPadding,
	}
}

// announceStep speaks a step instruction with a distance prefix.
func (s *Session) announceStep(distanceMeters float64, step route.Step) {
	s.announcer.Announce(fmt.Sprintf("In %s, %s",
		formatDistance(distanceMeters), instructionText(step)))
}

// instructionText returns the provider instruction or the maneuver's
// fallback phrase when the provider supplied none.
func instructionText(step route.Step) string {
	if step.Instruction != "" {
		return step.Instruction
	}
	return step.Maneuver.Phrase()
}

// formatDistance renders meters below 1km and kilometers to one decimal
// above.
func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
