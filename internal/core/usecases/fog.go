package usecases

import (
	"sync"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/pkg/geospatial"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

// FogRenderer computes the circular holes punched into the fog-of-war overlay around every
// visited point. While enabled it recomputes on every viewport change; while disabled it is
// not subscribed to anything.
type FogRenderer struct {
	bus *events.Bus

	mu      sync.Mutex
	radiusM float64
	points  []domain.GeoPoint
	holes   []domain.FogHole
	unsub   func()
}

// NewFogRenderer creates a disabled renderer with the given clear radius in meters.
func NewFogRenderer(bus *events.Bus, radiusMeters float64) *FogRenderer {
	if radiusMeters <= 0 {
		radiusMeters = domain.DefaultDisplaySettings().FogClearRadiusM
	}
	return &FogRenderer{bus: bus, radiusM: radiusMeters}
}

// SetPoints replaces the points that clear the fog.
func (f *FogRenderer) SetPoints(points []domain.Point) {
	coords := make([]domain.GeoPoint, len(points))
	for i, p := range points {
		coords[i] = p.Coord()
	}
	f.mu.Lock()
	f.points = coords
	f.mu.Unlock()
}

// SetRadius changes the clear radius in meters.
func (f *FogRenderer) SetRadius(meters float64) error {
	if meters <= 0 {
		return domain.Invalid("fog_of_war_meters", "must be greater than 0")
	}
	f.mu.Lock()
	f.radiusM = meters
	f.mu.Unlock()
	return nil
}

// Enable renders for vp and starts recomputing on viewport changes.
func (f *FogRenderer) Enable(vp domain.Viewport) []domain.FogHole {
	f.mu.Lock()
	if f.unsub == nil {
		f.unsub = events.Subscribe(f.bus, events.ViewportChanged, func(ev events.ViewportChangedEvent) {
			f.recompute(ev.Viewport)
		})
	}
	f.mu.Unlock()
	return f.recompute(vp)
}

// Disable detaches the recompute hook and drops the computed holes.
func (f *FogRenderer) Disable() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	f.holes = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Enabled reports whether the renderer is attached to viewport changes.
func (f *FogRenderer) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsub != nil
}

// Holes returns the holes of the last recomputation.
func (f *FogRenderer) Holes() []domain.FogHole {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holes
}

func (f *FogRenderer) recompute(vp domain.Viewport) []domain.FogHole {
	f.mu.Lock()
	points, radius := f.points, f.radiusM
	f.mu.Unlock()

	holes := RenderFog(points, radius, vp)
	metrics.FogRecomputes.Inc()

	f.mu.Lock()
	f.holes = holes
	f.mu.Unlock()
	return holes
}

// RenderFog projects every point into vp and returns a hole of the clear radius in pixels.
// Holes that cannot touch the visible area are culled.
func RenderFog(points []domain.GeoPoint, radiusMeters float64, vp domain.Viewport) []domain.FogHole {
	mpp := geospatial.MetersPerPixel(vp.Zoom, vp.Center.Lat)
	if mpp <= 0 {
		return nil
	}
	r := radiusMeters / mpp
	screen := geospatial.Screen{
		CenterLat: vp.Center.Lat,
		CenterLon: vp.Center.Lon,
		Zoom:      vp.Zoom,
		Width:     vp.Width,
		Height:    vp.Height,
	}
	w, h := float64(vp.Width), float64(vp.Height)

	holes := make([]domain.FogHole, 0, len(points))
	for _, p := range points {
		x, y := screen.ToPixel(p.Lat, p.Lon)
		if x < -r || y < -r || x > w+r || y > h+r {
			continue
		}
		holes = append(holes, domain.FogHole{X: x, Y: y, Radius: r})
	}
	return holes
}
