package dwell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deliverymap/server/internal/lib/geo"
)

type recordedDwell struct {
	point geo.Point
	at    time.Time
}

type fakeRecorder struct {
	events []recordedDwell
}

func (f *fakeRecorder) RecordDwell(p geo.Point, at time.Time) {
	f.events = append(f.events, recordedDwell{point: p, at: at})
}

func TestDetector_ContinuousStopReArms(t *testing.T) {
	recorder := &fakeRecorder{}
	detector := NewDetector(5, 180*time.Second, recorder, nil)

	// A fixed position repeated every 10s for 400s: the dwell timer
	// fires once past 180s, re-arms, and fires again past 360s.
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	parked := geo.Point{Latitude: 35.0116, Longitude: 135.7681}

	for elapsed := 0; elapsed <= 400; elapsed += 10 {
		detector.Observe(parked, start.Add(time.Duration(elapsed)*time.Second))
	}

	assert.Len(t, recorder.events, 2, "exactly two dwell events for one 400s stop")
	assert.Equal(t, 190*time.Second, recorder.events[0].at.Sub(start))
	assert.Equal(t, 380*time.Second, recorder.events[1].at.Sub(start))
}

func TestDetector_MovementResetsTimer(t *testing.T) {
	recorder := &fakeRecorder{}
	detector := NewDetector(5, 180*time.Second, recorder, nil)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := geo.Point{Latitude: 35.0000, Longitude: 135.0000}
	b := geo.Point{Latitude: 35.0010, Longitude: 135.0000} // ~111m away

	detector.Observe(a, start)
	// Stationary for 170s, then a move, then stationary for another 170s.
	detector.Observe(a, start.Add(170*time.Second))
	detector.Observe(b, start.Add(180*time.Second))
	detector.Observe(b, start.Add(350*time.Second))

	assert.Empty(t, recorder.events, "movement must reset the dwell timer")

	// 181s after the move with no displacement triggers the event.
	detector.Observe(b, start.Add(361*time.Second))
	assert.Len(t, recorder.events, 1)
}

func TestDetector_JitterBelowThresholdStaysStationary(t *testing.T) {
	recorder := &fakeRecorder{}
	detector := NewDetector(5, 180*time.Second, recorder, nil)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	base := geo.Point{Latitude: 35.0000, Longitude: 135.0000}
	jitter := geo.Point{Latitude: 35.00002, Longitude: 135.0000} // ~2.2m

	for i := 0; i <= 20; i++ {
		p := base
		if i%2 == 1 {
			p = jitter
		}
		detector.Observe(p, start.Add(time.Duration(i*10)*time.Second))
	}

	assert.Len(t, recorder.events, 1, "sub-threshold jitter still counts as a stop")
}

func TestDetector_ResetForgetsState(t *testing.T) {
	recorder := &fakeRecorder{}
	detector := NewDetector(5, 180*time.Second, recorder, nil)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	parked := geo.Point{Latitude: 35.0, Longitude: 135.0}

	detector.Observe(parked, start)
	detector.Reset()
	detector.Observe(parked, start.Add(200*time.Second))

	assert.Empty(t, recorder.events, "first sample after reset only seeds state")
}
