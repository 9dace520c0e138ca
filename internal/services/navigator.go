package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/kv"
	"github.com/deliverymap/server/internal/lib/dwell"
	"github.com/deliverymap/server/internal/lib/geo"
	"github.com/deliverymap/server/internal/lib/nav"
	"github.com/deliverymap/server/internal/lib/route"
	"github.com/deliverymap/server/internal/lib/visits"
)

// Keys under which navigator state is persisted in the key-value store.
const (
	prefsKey   = "preferences"
	historyKey = "route_history"
)

// ErrSuperseded is returned when a navigation request was replaced by a
// newer one while its route fetch was in flight.
var ErrSuperseded = errors.New("navigation request superseded")

// DirectionsProvider fetches driving routes from an external directions
// service.
type DirectionsProvider interface {
	FetchRoute(ctx context.Context, origin, destination geo.Point, avoidTolls bool) (*route.Route, error)
}

// Prefs are the operator-facing toggles. Tracking defaults to on;
// pausing it drops position samples entirely so no dwell or guidance
// processing happens.
type Prefs struct {
	AvoidTolls  bool `json:"avoid_tolls"`
	ShowTraffic bool `json:"show_traffic"`
	Tracking    bool `json:"tracking"`
}

// Options holds the navigator tuning assembled from configuration.
type Options struct {
	Nav                     nav.Config
	ArrivalSettleDelay      time.Duration
	MovementThresholdMeters float64
	DwellThreshold          time.Duration
	RouteHistoryLimit       int
}

// Status is a point-in-time snapshot of the navigator for the API.
type Status struct {
	State            string            `json:"state"`
	CameraMode       string            `json:"camera_mode"`
	Destination      *nav.Destination  `json:"destination,omitempty"`
	HasFix           bool              `json:"has_fix"`
	Position         *geo.Point        `json:"position,omitempty"`
	CurrentStep      *route.Step       `json:"current_step,omitempty"`
	StepIndex        int               `json:"step_index"`
	RemainingMeters  float64           `json:"remaining_meters"`
	RemainingSeconds float64           `json:"remaining_seconds"`
	Camera           *nav.CameraIntent `json:"camera,omitempty"`
	Preferences      Prefs             `json:"preferences"`
}

// cameraFeed retains the most recent camera intent. Intents are
// last-writer-wins, so a single slot is the whole contract.
type cameraFeed struct {
	has    bool
	latest nav.CameraIntent
}

func (c *cameraFeed) Apply(intent nav.CameraIntent) {
	c.latest = intent
	c.has = true
}

// Navigator owns the navigation core and serializes every external
// event onto it: position and heading samples, user gestures, timer
// callbacks and route fetch completions all run under one mutex. The
// session, tracker and detector beneath it are therefore free to be
// single-threaded.
type Navigator struct {
	mu sync.Mutex

	opts     Options
	provider DirectionsProvider
	tracker  *route.Tracker
	session  *nav.Session
	detector *dwell.Detector
	visits   *visits.Store
	camera   *cameraFeed
	kv       kv.Store
	logger   *zap.SugaredLogger

	prefs   Prefs
	history []route.Summary

	fetchCancel context.CancelFunc
	fetchGen    int
	arriveTimer *time.Timer
}

// New creates a navigator. Preferences and route history are restored
// from the key-value store; corrupt or missing entries fall back to
// defaults.
func New(opts Options, provider DirectionsProvider, announcer nav.Announcer, visitStore *visits.Store, kvStore kv.Store, logger *zap.SugaredLogger) *Navigator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	tracker := route.NewTracker()
	camera := &cameraFeed{}
	n := &Navigator{
		opts:     opts,
		provider: provider,
		tracker:  tracker,
		session:  nav.NewSession(opts.Nav, tracker, announcer, camera, logger),
		visits:   visitStore,
		camera:   camera,
		kv:       kvStore,
		logger:   logger,
		prefs:    Prefs{Tracking: true},
	}
	n.detector = dwell.NewDetector(opts.MovementThresholdMeters, opts.DwellThreshold, visitStore, logger)

	n.loadState()
	return n
}

// loadState restores preferences and route history from persistence.
func (n *Navigator) loadState() {
	if data, ok, err := n.kv.Get(prefsKey); err == nil && ok {
		var p Prefs
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			n.logger.Warnw("ignoring corrupt stored preferences", "error", err)
		} else {
			n.prefs = p
		}
	}
	if data, ok, err := n.kv.Get(historyKey); err == nil && ok {
		var h []route.Summary
		if err := json.Unmarshal([]byte(data), &h); err != nil {
			n.logger.Warnw("ignoring corrupt stored route history", "error", err)
		} else {
			n.history = h
		}
	}
}

// StartNavigation fetches a route from the current position to dest and
// starts guidance. It fails closed when no position fix exists or the
// provider finds no route; a newer start or stop issued while the fetch
// is in flight wins and this call returns ErrSuperseded.
func (n *Navigator) StartNavigation(ctx context.Context, dest nav.Destination) error {
	n.mu.Lock()
	if !n.session.HasFix() {
		n.mu.Unlock()
		return nav.ErrNoPosition
	}
	origin, _, _ := n.session.LastFix()
	avoidTolls := n.prefs.AvoidTolls
	fetchCtx, gen := n.beginFetchLocked(ctx)
	n.mu.Unlock()

	r, err := n.provider.FetchRoute(fetchCtx, origin, dest.Point, avoidTolls)

	n.mu.Lock()
	defer n.mu.Unlock()
	if gen != n.fetchGen {
		return ErrSuperseded
	}
	if err != nil {
		return fmt.Errorf("failed to fetch route: %w", err)
	}

	n.stopArriveTimerLocked()
	n.tracker.SetRoute(r)
	if err := n.session.Start(dest); err != nil {
		n.tracker.ClearRoute()
		return err
	}
	n.recordHistoryLocked(r, dest, avoidTolls)
	return nil
}

// StopNavigation cancels guidance, including any in-flight route fetch
// and pending arrival teardown. Idempotent.
func (n *Navigator) StopNavigation() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.cancelFetchLocked()
	n.stopArriveTimerLocked()
	n.session.Stop()
}

// HandlePosition processes one GPS sample: dwell detection, guidance
// and camera framing. Samples are dropped entirely while tracking is
// paused.
func (n *Navigator) HandlePosition(p geo.Point, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.prefs.Tracking {
		return
	}

	n.detector.Observe(p, at)
	if arrived := n.session.ObservePosition(p, at); arrived {
		// Let the operator see the arrival state before the map resets.
		n.stopArriveTimerLocked()
		n.arriveTimer = time.AfterFunc(n.opts.ArrivalSettleDelay, n.finishArrival)
	}
}

// HandleHeading processes one compass sample.
func (n *Navigator) HandleHeading(degrees float64, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.prefs.Tracking {
		return
	}
	n.session.ObserveHeading(degrees, at)
}

// ToggleOverview switches between route overview and following.
func (n *Navigator) ToggleOverview() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session.ToggleOverview()
}

// UserPanned records a manual map pan; the result tells the UI whether
// to show its recenter control.
func (n *Navigator) UserPanned() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session.UserPanned()
}

// Recenter resumes camera following after a manual pan.
func (n *Navigator) Recenter() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session.Recenter()
}

// Preferences returns the current operator preferences.
func (n *Navigator) Preferences() Prefs {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.prefs
}

// SetPreferences applies new preferences. Toggling the toll preference
// mid-navigation re-fetches the route in the background; guidance keeps
// the old route until the replacement arrives, and keeps it on failure.
// Pausing tracking resets dwell detection so a resume never spans the
// gap.
func (n *Navigator) SetPreferences(p Prefs) {
	n.mu.Lock()
	defer n.mu.Unlock()

	old := n.prefs
	n.prefs = p
	n.savePrefsLocked()

	if old.Tracking && !p.Tracking {
		n.detector.Reset()
		n.logger.Infow("position tracking paused")
	}

	if p.AvoidTolls == old.AvoidTolls || n.session.State() != nav.StateActive {
		return
	}
	dest, ok := n.session.Destination()
	if !ok || !n.session.HasFix() {
		return
	}
	origin, _, _ := n.session.LastFix()
	n.logger.Infow("toll preference changed mid-route, re-fetching", "avoid_tolls", p.AvoidTolls)
	n.refetchLocked(origin, dest, p.AvoidTolls)
}

// refetchLocked replaces the active route in the background. The fetch
// generation guards against stale completions: any later start, stop or
// re-fetch supersedes this one.
func (n *Navigator) refetchLocked(origin geo.Point, dest nav.Destination, avoidTolls bool) {
	ctx, gen := n.beginFetchLocked(context.Background())

	go func() {
		r, err := n.provider.FetchRoute(ctx, origin, dest.Point, avoidTolls)

		n.mu.Lock()
		defer n.mu.Unlock()
		if gen != n.fetchGen {
			return
		}
		if err != nil {
			n.logger.Warnw("route re-fetch failed, keeping active route", "error", err)
			return
		}
		if n.session.State() != nav.StateActive {
			return
		}
		n.tracker.SetRoute(r)
		n.session.RouteReplaced()
		n.recordHistoryLocked(r, dest, avoidTolls)
		n.logger.Infow("active route replaced", "steps", len(r.Steps))
	}()
}

// beginFetchLocked cancels any in-flight fetch and arms a new one,
// returning its context and generation.
func (n *Navigator) beginFetchLocked(parent context.Context) (context.Context, int) {
	n.cancelFetchLocked()
	ctx, cancel := context.WithCancel(parent)
	n.fetchCancel = cancel
	n.fetchGen++
	return ctx, n.fetchGen
}

func (n *Navigator) cancelFetchLocked() {
	if n.fetchCancel != nil {
		n.fetchCancel()
		n.fetchCancel = nil
	}
	n.fetchGen++
}

func (n *Navigator) stopArriveTimerLocked() {
	if n.arriveTimer != nil {
		n.arriveTimer.Stop()
		n.arriveTimer = nil
	}
}

// finishArrival runs after the arrival settle delay.
func (n *Navigator) finishArrival() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.session.FinishArrival()
}

// Status returns a snapshot of the navigation state for the API.
func (n *Navigator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := Status{
		State:       n.session.State().String(),
		CameraMode:  n.session.Mode().String(),
		HasFix:      n.session.HasFix(),
		StepIndex:   n.tracker.CurrentIndex(),
		Preferences: n.prefs,
	}
	if dest, ok := n.session.Destination(); ok {
		st.Destination = &dest
	}
	if p, _, ok := n.session.LastFix(); ok {
		st.Position = &p
	}
	if step, ok := n.tracker.CurrentStep(); ok {
		st.CurrentStep = &step
		st.RemainingMeters = n.tracker.RemainingDistance()
		st.RemainingSeconds = n.tracker.RemainingDuration()
	}
	if n.camera.has {
		intent := n.camera.latest
		st.Camera = &intent
	}
	return st
}

// RouteHistory returns the recorded route summaries, newest first.
func (n *Navigator) RouteHistory() []route.Summary {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]route.Summary, len(n.history))
	copy(out, n.history)
	return out
}

// recordHistoryLocked prepends a summary of a fetched route and persists
// the trimmed history. Persistence failures are non-fatal.
func (n *Navigator) recordHistoryLocked(r *route.Route, dest nav.Destination, avoidTolls bool) {
	summary := route.Summary{
		Destination:     dest.Point,
		DestinationName: dest.Name,
		DistanceMeters:  r.TotalDistanceMeters,
		DurationSeconds: r.TotalDurationSeconds,
		StepCount:       len(r.Steps),
		AvoidTolls:      avoidTolls,
		FetchedAt:       time.Now(),
	}
	n.history = append([]route.Summary{summary}, n.history...)
	if limit := n.opts.RouteHistoryLimit; limit > 0 && len(n.history) > limit {
		n.history = n.history[:limit]
	}

	data, err := json.Marshal(n.history)
	if err != nil {
		n.logger.Warnw("failed to marshal route history", "error", err)
		return
	}
	if err := n.kv.Set(historyKey, string(data)); err != nil {
		n.logger.Warnw("failed to save route history", "error", err)
	}
}

// savePrefsLocked persists the preferences. Failures are non-fatal.
func (n *Navigator) savePrefsLocked() {
	data, err := json.Marshal(n.prefs)
	if err != nil {
		n.logger.Warnw("failed to marshal preferences", "error", err)
		return
	}
	if err := n.kv.Set(prefsKey, string(data)); err != nil {
		n.logger.Warnw("failed to save preferences", "error", err)
	}
}
