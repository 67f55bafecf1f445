package usecases

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/geospatial"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

// BaseStepInterval is the time between two consecutive points at speed 1.
const BaseStepInterval = 500 * time.Millisecond

// ReplayScheduler animates the current day's points frame by frame. Position is interpolated
// linearly between the current and the next point; after each step interval it moves on to
// the next point and at the end of a day to the next day with data.
type ReplayScheduler struct {
	timeline *TimelineManager
	frames   ports.FrameSource
	bus      *events.Bus
	now      func() time.Time

	mu      sync.Mutex
	state   domain.ReplayState
	frame   ports.FrameID
	pending bool
	gen     uint64
	closed  bool
}

// NewReplayScheduler creates a stopped scheduler at speed.
func NewReplayScheduler(timeline *TimelineManager, frames ports.FrameSource, bus *events.Bus, speed float64) *ReplayScheduler {
	if speed <= 0 {
		speed = 1
	}
	return &ReplayScheduler{
		timeline: timeline,
		frames:   frames,
		bus:      bus,
		now:      time.Now,
		state:    domain.ReplayState{SpeedMultiplier: speed},
	}
}

// WithClock replaces the wall clock; used by tests.
func (r *ReplayScheduler) WithClock(now func() time.Time) *ReplayScheduler {
	r.now = now
	return r
}

// State returns a snapshot of the replay position.
func (r *ReplayScheduler) State() domain.ReplayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Play starts or resumes playback on the timeline's current day. Playing from the last point
// of the last day restarts that day.
func (r *ReplayScheduler) Play() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("replay closed")
	}
	if r.state.Playing {
		r.mu.Unlock()
		return nil
	}

	day := r.timeline.CurrentDay()
	points := r.timeline.DayPoints(day)
	if len(points) == 0 {
		r.mu.Unlock()
		return fmt.Errorf("replay: %w: no points for day", domain.ErrNotFound)
	}
	if day != r.state.DayKey {
		r.state.DayKey = day
		r.state.PointIndex = 0
	}
	// A reload may have shrunk the day since the position was taken.
	if r.state.PointIndex >= len(points) {
		r.state.PointIndex = len(points) - 1
	}
	if r.state.PointIndex >= len(points)-1 {
		if _, ok := r.timeline.DayAfter(day); !ok {
			r.state.PointIndex = 0
		}
	}
	r.state.Current = points[r.state.PointIndex].Coord()
	r.state.Playing = true
	r.state.AnchorWallTime = r.now()
	r.schedule()
	st := r.state
	r.mu.Unlock()

	r.publishState(st, "play")
	return nil
}

// Pause stops playback and keeps the position.
func (r *ReplayScheduler) Pause() {
	r.mu.Lock()
	if !r.state.Playing {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.state.Playing = false
	st := r.state
	r.mu.Unlock()

	r.publishState(st, "pause")
}

// Stop stops playback and rewinds to the first point of the day.
func (r *ReplayScheduler) Stop() {
	r.mu.Lock()
	r.cancel()
	r.state.Playing = false
	r.state.PointIndex = 0
	if points := r.timeline.DayPoints(r.state.DayKey); len(points) > 0 {
		r.state.Current = points[0].Coord()
	}
	st := r.state
	r.mu.Unlock()

	r.publishState(st, "stop")
}

// SetSpeed changes the speed multiplier. It applies from the next frame on and keeps the
// current interpolation anchor.
func (r *ReplayScheduler) SetSpeed(multiplier float64) error {
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		return domain.Invalid("speed", "must be a positive number")
	}
	r.mu.Lock()
	r.state.SpeedMultiplier = multiplier
	r.mu.Unlock()
	return nil
}

// Scrub jumps to the point at minute on the current day (nearest minute with data). Any
// pending frame is dropped and the interpolation restarts from the resolved point; playback
// continues if it was running.
func (r *ReplayScheduler) Scrub(minute int) (domain.ReplayState, error) {
	p, idx, ok := r.timeline.PointAtPosition(minute)
	if !ok {
		return r.State(), fmt.Errorf("scrub: %w: no points for day", domain.ErrNotFound)
	}

	r.mu.Lock()
	r.cancel()
	r.state.DayKey = r.timeline.CurrentDay()
	r.state.PointIndex = idx
	r.state.Current = p.Coord()
	r.state.AnchorWallTime = r.now()
	if r.state.Playing {
		r.schedule()
	}
	st := r.state
	r.mu.Unlock()

	events.Publish(r.bus, events.ReplayFrame, events.ReplayFrameEvent{State: st})
	return st, nil
}

// Close cancels any scheduled frame. The scheduler cannot be restarted afterwards.
func (r *ReplayScheduler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel()
	r.state.Playing = false
	r.closed = true
}

// schedule requests the next frame. Callers hold mu.
func (r *ReplayScheduler) schedule() {
	r.gen++
	gen := r.gen
	r.frame = r.frames.RequestFrame(func(now time.Time) { r.onFrame(gen, now) })
	r.pending = true
}

// cancel drops the pending frame. Callers hold mu.
func (r *ReplayScheduler) cancel() {
	if r.pending {
		r.frames.CancelFrame(r.frame)
		r.pending = false
	}
	r.gen++
}

func (r *ReplayScheduler) onFrame(gen uint64, now time.Time) {
	r.mu.Lock()
	if gen != r.gen || !r.state.Playing {
		r.mu.Unlock()
		return
	}
	r.pending = false

	var reason string
	points := r.timeline.DayPoints(r.state.DayKey)
	step := time.Duration(float64(BaseStepInterval) / r.state.SpeedMultiplier)
	elapsed := now.Sub(r.state.AnchorWallTime)

	if elapsed >= step {
		r.state.PointIndex++
		r.state.AnchorWallTime = now
		elapsed = 0
	}
	if r.state.PointIndex >= len(points)-1 {
		next, ok := r.timeline.DayAfter(r.state.DayKey)
		if !ok {
			if len(points) > 0 {
				r.state.PointIndex = len(points) - 1
				r.state.Current = points[len(points)-1].Coord()
			}
			r.state.Playing = false
			st := r.state
			r.mu.Unlock()
			r.publishFrame(st, 1)
			r.publishState(st, "finished")
			return
		}
		r.timeline.SetDay(next)
		r.state.DayKey = next
		r.state.PointIndex = 0
		r.state.AnchorWallTime = now
		elapsed = 0
		points = r.timeline.DayPoints(next)
		reason = "day_advanced"
	}

	progress := math.Min(float64(elapsed)/float64(step), 1)
	r.state.Current = interpolate(points, r.state.PointIndex, progress)
	r.schedule()
	st := r.state
	r.mu.Unlock()

	if reason != "" {
		r.publishState(st, reason)
	}
	r.publishFrame(st, progress)
}

func interpolate(points []domain.Point, idx int, progress float64) domain.GeoPoint {
	if idx+1 >= len(points) {
		return points[idx].Coord()
	}
	a, b := points[idx], points[idx+1]
	return domain.GeoPoint{
		Lat: geospatial.Lerp(a.Lat, b.Lat, progress),
		Lon: geospatial.Lerp(a.Lon, b.Lon, progress),
	}
}

func (r *ReplayScheduler) publishFrame(st domain.ReplayState, progress float64) {
	metrics.ReplayFrames.Inc()
	events.Publish(r.bus, events.ReplayFrame, events.ReplayFrameEvent{State: st, Progress: progress})
}

func (r *ReplayScheduler) publishState(st domain.ReplayState, reason string) {
	events.Publish(r.bus, events.ReplayState, events.ReplayStateEvent{State: st, Reason: reason})
}
