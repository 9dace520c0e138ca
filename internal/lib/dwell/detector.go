package dwell

import (
	"time"

	"go.uber.org/zap"

	"github.com/deliverymap/server/internal/lib/geo"
)

// Recorder receives dwell events for positions where the subject has
// been stationary past the dwell threshold.
type Recorder interface {
	RecordDwell(p geo.Point, at time.Time)
}

// Detector consumes a stream of position samples and detects "parked"
// dwell periods, a proxy for a delivery stop as opposed to a traffic
// light. Not safe for concurrent use; callers serialize samples.
type Detector struct {
	movementThreshold float64
	dwellThreshold    time.Duration
	recorder          Recorder
	logger            *zap.SugaredLogger

	hasSample    bool
	lastKnown    geo.Point
	lastKnownAt  time.Time
	lastMovement time.Time
}

// NewDetector creates a dwell detector. A displacement below
// movementThresholdMeters counts as stationary; once no movement has
// been seen for dwellThreshold, a dwell event is emitted and the timer
// re-arms, so one continuous stop emits one event per threshold window.
func NewDetector(movementThresholdMeters float64, dwellThreshold time.Duration, recorder Recorder, logger *zap.SugaredLogger) *Detector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Detector{
		movementThreshold: movementThresholdMeters,
		dwellThreshold:    dwellThreshold,
		recorder:          recorder,
		logger:            logger,
	}
}

// Observe processes one position sample. Samples must arrive in time
// order.
func (d *Detector) Observe(p geo.Point, at time.Time) {
	if !d.hasSample {
		d.hasSample = true
		d.lastKnown = p
		d.lastKnownAt = at
		d.lastMovement = at
		return
	}

	displacement := geo.Distance(d.lastKnown, p)
	if displacement < d.movementThreshold {
		// Stationary. GPS jitter near the boundary only resets the
		// timer, never drives it negative, and repeat emissions at the
		// same grid cell are idempotent for the store.
		if at.Sub(d.lastMovement) > d.dwellThreshold {
			d.logger.Infow("dwell detected",
				"lat", p.Latitude, "lng", p.Longitude,
				"stationary_for", at.Sub(d.lastMovement))
			d.recorder.RecordDwell(p, at)
			d.lastMovement = at
		}
	} else {
		d.lastMovement = at
	}

	d.lastKnown = p
	d.lastKnownAt = at
}

// Reset forgets all tracking state, e.g. when position tracking is
// paused and resumed.
func (d *Detector) Reset() {
	d.hasSample = false
}
