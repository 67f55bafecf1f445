package usecases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/geospatial"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

const reloadTimeout = 30 * time.Second

// MapViewDeps are the collaborators shared by every map view.
type MapViewDeps struct {
	Backend         ports.Backend
	Cache           ports.CacheService
	Publisher       ports.EventPublisher
	Scheduler       ports.ExpiryScheduler
	NewFrames       func() ports.FrameSource
	PerPage         int
	PageConcurrency int
}

// MapView assembles the engine components of one map. Each view owns its bus, replay
// position and selection; nothing is shared between views except the backend.
type MapView struct {
	ID       string
	Bus      *events.Bus
	Notices  *NoticeBoard
	Stream   *PointStreamService
	Timeline *TimelineManager
	Replay   *ReplayScheduler
	Visits   *VisitLifecycleManager
	Select   *SelectionEngine
	Fog      *FogRenderer
	Hexes    *HexDensityRenderer
	Sharing  *LocationSharing
	Areas    *AreaService

	frames   ports.FrameSource
	settings domain.DisplaySettings

	mu       sync.Mutex
	start    time.Time
	end      time.Time
	points   []domain.Point
	viewport domain.Viewport
	unsubs   []func()
	closed   bool
}

// NewMapView wires a map view from deps and the user's settings.
func NewMapView(id string, deps MapViewDeps, settings domain.DisplaySettings, hexMode HexMode) *MapView {
	settings = settings.WithDefaults()
	bus := events.NewBus()
	notices := NewNoticeBoard(bus, 0)
	timeline := NewTimelineManager(Location(settings))
	frames := deps.NewFrames()

	v := &MapView{
		ID:       id,
		Bus:      bus,
		Notices:  notices,
		Stream:   NewPointStreamService(deps.Backend, deps.Cache, notices, deps.PerPage, deps.PageConcurrency),
		Timeline: timeline,
		Replay:   NewReplayScheduler(timeline, frames, bus, settings.ReplaySpeed),
		Visits:   NewVisitLifecycleManager(deps.Backend, deps.Backend, bus, notices, deps.Publisher),
		Select:   NewSelectionEngine(deps.Backend, deps.Backend, bus, notices, deps.Publisher),
		Fog:      NewFogRenderer(bus, settings.FogClearRadiusM),
		Hexes:    NewHexDensityRenderer(deps.Backend, bus, deps.Cache, notices, hexMode),
		Sharing:  NewLocationSharing(deps.Backend, bus, notices, deps.Publisher, deps.Scheduler),
		Areas:    NewAreaService(deps.Backend, notices),
		frames:   frames,
		settings: settings,
	}
	v.unsubs = append(v.unsubs, events.Subscribe(bus, events.LayersReload, v.onLayersReload))
	metrics.ActiveMapViews.Inc()
	return v
}

// Settings returns the view's display settings.
func (v *MapView) Settings() domain.DisplaySettings {
	return v.settings
}

// Load fetches points and visits for [start, end] and rebuilds the timeline. A failing visit
// load is reported as a notice and does not fail the call.
func (v *MapView) Load(ctx context.Context, start, end time.Time) (*FetchResult, error) {
	res, err := v.Stream.Fetch(ctx, start, end)
	if err != nil {
		v.Notices.Notify(domain.NoticeError, "Failed to load points")
		return nil, err
	}

	v.mu.Lock()
	v.start, v.end = start, end
	v.points = res.Points
	v.mu.Unlock()

	v.Timeline.Load(res.Points)
	v.Fog.SetPoints(res.Points)
	v.Select.SetRange(start, end)

	if err := v.Visits.Load(ctx, start, end); err != nil {
		slog.Warn("load visits", "map", v.ID, "error", err)
		v.Notices.Notify(domain.NoticeWarning, "Visits could not be loaded")
	}

	events.Publish(v.Bus, events.TimelineLoaded, events.TimelineLoadedEvent{
		Days:      v.Timeline.AvailableDays(),
		Points:    len(res.Points),
		LoadedAt:  time.Now(),
		Partial:   res.Partial(),
		FailedPgs: res.FailedPages,
	})
	return res, nil
}

// Range returns the loaded time range.
func (v *MapView) Range() (time.Time, time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.start, v.end
}

// Points returns every loaded point.
func (v *MapView) Points() []domain.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.points
}

// Segments returns the route segments of day ("" for the timeline's current day).
func (v *MapView) Segments(day string) []domain.RouteSegment {
	if day == "" {
		day = v.Timeline.CurrentDay()
	}
	return SegmentRoutes(v.Timeline.DayPoints(day), SegmentOptionsFromSettings(v.settings))
}

// SetViewport records the viewport and announces it once.
func (v *MapView) SetViewport(vp domain.Viewport) domain.Bounds {
	bounds := ViewportBounds(vp)
	v.mu.Lock()
	v.viewport = vp
	v.mu.Unlock()
	events.Publish(v.Bus, events.ViewportChanged, events.ViewportChangedEvent{Viewport: vp, Bounds: bounds})
	return bounds
}

// Viewport returns the last viewport.
func (v *MapView) Viewport() domain.Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport
}

// ViewportBounds returns the geographic bounds visible in vp.
func ViewportBounds(vp domain.Viewport) domain.Bounds {
	s := geospatial.Screen{CenterLat: vp.Center.Lat, CenterLon: vp.Center.Lon, Zoom: vp.Zoom, Width: vp.Width, Height: vp.Height}
	lat1, lon1 := s.ToLatLon(0, 0)
	lat2, lon2 := s.ToLatLon(float64(vp.Width), float64(vp.Height))
	return domain.BoundsFromCorners(domain.GeoPoint{Lat: lat1, Lon: lon1}, domain.GeoPoint{Lat: lat2, Lon: lon2})
}

// onLayersReload refetches the loaded range in the background, keeping the camera untouched.
func (v *MapView) onLayersReload(ev events.LayersReloadEvent) {
	v.mu.Lock()
	start, end, closed := v.start, v.end, v.closed
	v.mu.Unlock()
	if closed || start.IsZero() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		if err := v.Stream.Invalidate(ctx, start, end); err != nil {
			slog.Warn("invalidate point cache", "map", v.ID, "error", err)
		}
		if _, err := v.Load(ctx, start, end); err != nil {
			slog.Warn("reload layers", "map", v.ID, "reason", ev.Reason, "error", err)
		}
	}()
}

// Close cancels replay frames, detaches the overlays and stops timers.
func (v *MapView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsubs := v.unsubs
	v.unsubs = nil
	v.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	v.Replay.Close()
	v.Fog.Disable()
	v.Hexes.Close()
	v.Sharing.Close()
	if c, ok := v.frames.(io.Closer); ok {
		_ = c.Close()
	}
	metrics.ActiveMapViews.Dec()
}

// MapRegistry hands out map views by id. It replaces any process-wide "current map".
type MapRegistry struct {
	deps MapViewDeps

	mu    sync.RWMutex
	views map[string]*MapView
}

// NewMapRegistry creates an empty registry.
func NewMapRegistry(deps MapViewDeps) *MapRegistry {
	return &MapRegistry{deps: deps, views: make(map[string]*MapView)}
}

// Create opens a new map view.
func (r *MapRegistry) Create(settings domain.DisplaySettings, hexMode HexMode) *MapView {
	v := NewMapView(uuid.NewString(), r.deps, settings, hexMode)
	r.mu.Lock()
	r.views[v.ID] = v
	r.mu.Unlock()
	return v
}

// Get returns the view with id.
func (r *MapRegistry) Get(id string) (*MapView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	if !ok {
		return nil, fmt.Errorf("map %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

// IDs lists open view ids, sorted.
func (r *MapRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes and forgets a view.
func (r *MapRegistry) Close(id string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("map %s: %w", id, domain.ErrNotFound)
	}
	v.Close()
	return nil
}

// CloseAll closes every view.
func (r *MapRegistry) CloseAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*MapView)
	r.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
}

// ReloadRange asks every view whose loaded range overlaps [from, to] to reload silently.
func (r *MapRegistry) ReloadRange(ctx context.Context, from, to time.Time) error {
	r.mu.RLock()
	views := make([]*MapView, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	r.mu.RUnlock()

	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return err
		}
		start, end := v.Range()
		if start.IsZero() || from.After(end) || to.Before(start) {
			continue
		}
		events.Publish(v.Bus, events.LayersReload, events.LayersReloadEvent{Reason: "points_ingested", Silent: true, PreserveCamera: true})
	}
	return nil
}
