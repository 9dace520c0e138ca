package route

// Tracker holds the active planned route and tracks which step is
// current. It is pure bookkeeping over provider-supplied data and is not
// safe for concurrent use; callers serialize access.
type Tracker struct {
	route   *Route
	current int
}

// NewTracker creates an empty route tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetRoute replaces the active route and resets the current step to 0.
// Any in-flight navigation session's announcement bookkeeping must be
// reset by the caller as well.
func (t *Tracker) SetRoute(r *Route) {
	t.route = r
	t.current = 0
}

// Restart rewinds progress to the first step of the active route.
func (t *Tracker) Restart() {
	t.current = 0
}

// ClearRoute drops the active route.
func (t *Tracker) ClearRoute() {
	t.route = nil
	t.current = 0
}

// HasRoute reports whether a non-empty route is active.
func (t *Tracker) HasRoute() bool {
	return t.route != nil && len(t.route.Steps) > 0
}

// Route returns the active route, or nil.
func (t *Tracker) Route() *Route {
	return t.route
}

// CurrentIndex returns the 0-based index of the current step.
func (t *Tracker) CurrentIndex() int {
	return t.current
}

// CurrentStep returns the current step, or false if the index is out of
// bounds (no route, or the transient past-the-end state).
func (t *Tracker) CurrentStep() (Step, bool) {
	if t.route == nil || t.current < 0 || t.current >= len(t.route.Steps) {
		return Step{}, false
	}
	return t.route.Steps[t.current], true
}

// AtLastStep reports whether the current step is the final one.
func (t *Tracker) AtLastStep() bool {
	return t.route != nil && t.current == len(t.route.Steps)-1
}

// Advance moves to the next step and returns it. The index never moves
// backward; advancing past the last step returns false and leaves the
// index in the transient past-the-end state for arrival handling.
func (t *Tracker) Advance() (Step, bool) {
	if t.route == nil || t.current >= len(t.route.Steps) {
		return Step{}, false
	}
	t.current++
	return t.CurrentStep()
}

// RemainingDistance sums step distances from the current step to the end
// inclusive, in meters.
func (t *Tracker) RemainingDistance() float64 {
	if t.route == nil {
		return 0
	}
	var total float64
	for i := t.current; i < len(t.route.Steps); i++ {
		total += t.route.Steps[i].DistanceMeters
	}
	return total
}

// RemainingDuration sums step durations from the current step to the end
// inclusive, in seconds.
func (t *Tracker) RemainingDuration() float64 {
	if t.route == nil {
		return 0
	}
	var total float64
	for i := t.current; i < len(t.route.Steps); i++ {
		total += t.route.Steps[i].DurationSeconds
	}
	return total
}
