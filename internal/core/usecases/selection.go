package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/geospatial"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

// NoDataFoundMessage is shown when a selection rectangle matches nothing.
const NoDataFoundMessage = "No data found in the selected area"

// SelectionEngine turns a screen rectangle into a geographic selection of points and visits
// and drives the confirmed bulk deletion of the selected points.
type SelectionEngine struct {
	points    ports.PointsAPI
	visits    ports.VisitsAPI
	bus       *events.Bus
	notifier  ports.Notifier
	publisher ports.EventPublisher

	mu        sync.Mutex
	selecting bool
	sel       *domain.Selection
	busy      bool
	start     time.Time
	end       time.Time
}

// NewSelectionEngine creates an idle engine. publisher may be nil.
func NewSelectionEngine(points ports.PointsAPI, visits ports.VisitsAPI, bus *events.Bus, notifier ports.Notifier, publisher ports.EventPublisher) *SelectionEngine {
	return &SelectionEngine{points: points, visits: visits, bus: bus, notifier: notifier, publisher: publisher}
}

// SetRange sets the active time range used by selection queries.
func (e *SelectionEngine) SetRange(start, end time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.start, e.end = start, end
}

// Begin enters selection mode and drops any previous selection.
func (e *SelectionEngine) Begin() error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return domain.ErrBusy
	}
	had := e.sel != nil
	e.selecting = true
	e.sel = nil
	e.mu.Unlock()

	if had {
		e.publishControls(nil)
	}
	return nil
}

// Complete resolves the dragged rectangle against viewport, queries the points and visits
// inside it and returns the controls for the new selection. When nothing matches, the
// selection is cancelled, a notice is shown and nil controls are returned.
func (e *SelectionEngine) Complete(ctx context.Context, rect domain.ScreenRect, vp domain.Viewport) (*domain.SelectionControls, error) {
	e.mu.Lock()
	if !e.selecting {
		e.mu.Unlock()
		return nil, fmt.Errorf("complete selection: %w", domain.ErrNoSelection)
	}
	start, end := e.start, e.end
	e.mu.Unlock()

	screen := geospatial.Screen{
		CenterLat: vp.Center.Lat,
		CenterLon: vp.Center.Lon,
		Zoom:      vp.Zoom,
		Width:     vp.Width,
		Height:    vp.Height,
	}
	lat1, lon1 := screen.ToLatLon(rect.X1, rect.Y1)
	lat2, lon2 := screen.ToLatLon(rect.X2, rect.Y2)
	bounds := domain.BoundsFromCorners(domain.GeoPoint{Lat: lat1, Lon: lon1}, domain.GeoPoint{Lat: lat2, Lon: lon2})

	return e.SelectBounds(ctx, bounds, start, end)
}

// SelectBounds queries points and visits inside bounds and [start, end]. It fails with
// ErrBusy while a deletion is in flight, before or after querying.
func (e *SelectionEngine) SelectBounds(ctx context.Context, bounds domain.Bounds, start, end time.Time) (*domain.SelectionControls, error) {
	e.mu.Lock()
	busy := e.busy
	e.mu.Unlock()
	if busy {
		return nil, domain.ErrBusy
	}

	var (
		wg         sync.WaitGroup
		points     []domain.Point
		visits     []domain.Visit
		pErr, vErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		points, pErr = e.points.PointsWithin(ctx, bounds, start, end)
	}()
	go func() {
		defer wg.Done()
		visits, vErr = e.visits.VisitsWithin(ctx, bounds, start, end)
	}()
	wg.Wait()

	if pErr != nil || vErr != nil {
		if !e.reset() {
			return nil, domain.ErrBusy
		}
		e.notify(domain.NoticeError, "Failed to load the selected area")
		if pErr != nil {
			return nil, fmt.Errorf("points within bounds: %w", pErr)
		}
		return nil, fmt.Errorf("visits within bounds: %w", vErr)
	}

	if len(points) == 0 && len(visits) == 0 {
		if !e.reset() {
			return nil, domain.ErrBusy
		}
		e.publishControls(nil)
		e.notify(domain.NoticeInfo, NoDataFoundMessage)
		return nil, nil
	}

	sel := domain.NewSelection(bounds, start, end)
	for _, p := range points {
		sel.PointIDs[p.ID] = struct{}{}
	}
	for _, v := range visits {
		sel.VisitIDs[v.ID] = struct{}{}
	}

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, domain.ErrBusy
	}
	e.selecting = false
	e.sel = sel
	controls := e.controls()
	e.mu.Unlock()

	e.publishControls(controls)
	return controls, nil
}

// Controls returns what the UI may offer for the current selection, or nil when none is active.
func (e *SelectionEngine) Controls() *domain.SelectionControls {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.controls()
}

func (e *SelectionEngine) controls() *domain.SelectionControls {
	if e.sel == nil {
		return nil
	}
	n := len(e.sel.PointIDs)
	return &domain.SelectionControls{
		PointCount: n,
		VisitCount: len(e.sel.VisitIDs),
		CanDelete:  n > 0 && !e.busy,
		Busy:       e.busy,
	}
}

// Selection returns the current selection, or nil.
func (e *SelectionEngine) Selection() *domain.Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sel
}

// SelectedPointIDs returns the selected point ids, ascending.
func (e *SelectionEngine) SelectedPointIDs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sel == nil {
		return nil
	}
	return sortedIDs(e.sel.PointIDs)
}

// DeleteConfirmation returns the text the user must accept before the selected points are deleted.
func (e *SelectionEngine) DeleteConfirmation() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sel == nil || len(e.sel.PointIDs) == 0 {
		return "", domain.ErrNoSelection
	}
	n := len(e.sel.PointIDs)
	noun := "points"
	if n == 1 {
		noun = "point"
	}
	return fmt.Sprintf("You are about to permanently delete %d %s. This action is irreversible and cannot be undone.", n, noun), nil
}

// DeleteSelectedPoints deletes the selected points in one request. The confirmation must be
// accepted and carry the exact number of selected points. On failure the selection is kept.
func (e *SelectionEngine) DeleteSelectedPoints(ctx context.Context, c domain.Confirmation) (*domain.DeleteResult, error) {
	e.mu.Lock()
	if e.sel == nil || len(e.sel.PointIDs) == 0 {
		e.mu.Unlock()
		return nil, domain.ErrNoSelection
	}
	if !c.Accepted || c.Count != len(e.sel.PointIDs) {
		e.mu.Unlock()
		return nil, domain.ErrNotConfirmed
	}
	if e.busy {
		e.mu.Unlock()
		return nil, domain.ErrBusy
	}
	e.busy = true
	target := e.sel
	ids := sortedIDs(target.PointIDs)
	controls := e.controls()
	e.mu.Unlock()

	e.publishControls(controls)

	res, err := e.points.DeletePoints(ctx, ids)

	e.mu.Lock()
	e.busy = false
	if err != nil {
		controls = e.controls()
		e.mu.Unlock()
		metrics.BulkOperations.WithLabelValues("delete_points", "error").Inc()
		e.publishControls(controls)
		e.notify(domain.NoticeError, "Failed to delete points, please try again")
		return nil, fmt.Errorf("delete points: %w", err)
	}
	if e.sel == target {
		e.sel = nil
		e.selecting = false
	}
	e.mu.Unlock()
	metrics.BulkOperations.WithLabelValues("delete_points", "ok").Inc()

	e.publishControls(nil)
	events.Publish(e.bus, events.PointsDeleted, events.PointsDeletedEvent{IDs: ids, Count: res.Count})
	events.Publish(e.bus, events.LayersReload, events.LayersReloadEvent{Reason: "points_deleted", Silent: true, PreserveCamera: true})
	e.notify(domain.NoticeSuccess, fmt.Sprintf("Successfully deleted %d points", res.Count))

	if e.publisher != nil {
		if err := e.publisher.PublishPointsDeleted(ctx, ids, res.Count); err != nil {
			slog.Warn("publish points deleted", "error", err)
		}
	}
	return res, nil
}

// Cancel leaves selection mode and drops the selection.
func (e *SelectionEngine) Cancel() {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return
	}
	had := e.sel != nil || e.selecting
	e.mu.Unlock()

	e.reset()
	if had {
		e.publishControls(nil)
	}
}

// reset drops the selection unless a deletion owns it. It reports whether it did.
func (e *SelectionEngine) reset() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return false
	}
	e.selecting = false
	e.sel = nil
	return true
}

func (e *SelectionEngine) publishControls(c *domain.SelectionControls) {
	events.Publish(e.bus, events.SelectionChange, events.SelectionChangedEvent{Controls: c})
}

func (e *SelectionEngine) notify(level domain.NoticeLevel, msg string) {
	if e.notifier != nil {
		e.notifier.Notify(level, msg)
	}
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
