package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/geospatial"
	"github.com/samirrijal/locus/internal/pkg/metrics"
	"github.com/samirrijal/locus/internal/pkg/validation"
)

const minBulkSelection = 2

// VisitLifecycleManager owns the visits of one map view and their selection. Destructive and
// identity-changing operations wait for the backend before local state changes; while one of
// them is in flight further ones fail with domain.ErrBusy.
type VisitLifecycleManager struct {
	visits    ports.VisitsAPI
	places    ports.PlacesAPI
	bus       *events.Bus
	notifier  ports.Notifier
	publisher ports.EventPublisher

	mu       sync.Mutex
	byID     map[int64]domain.Visit
	selected map[int64]struct{}
	busy     bool
	start    time.Time
	end      time.Time
}

// NewVisitLifecycleManager creates an empty manager. publisher may be nil.
func NewVisitLifecycleManager(
	visits ports.VisitsAPI,
	places ports.PlacesAPI,
	bus *events.Bus,
	notifier ports.Notifier,
	publisher ports.EventPublisher,
) *VisitLifecycleManager {
	return &VisitLifecycleManager{
		visits:    visits,
		places:    places,
		bus:       bus,
		notifier:  notifier,
		publisher: publisher,
		byID:      make(map[int64]domain.Visit),
		selected:  make(map[int64]struct{}),
	}
}

// Load replaces the local visits with the backend's visits in [start, end].
func (m *VisitLifecycleManager) Load(ctx context.Context, start, end time.Time) error {
	visits, err := m.visits.ListVisits(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list visits: %w", err)
	}

	m.mu.Lock()
	m.start, m.end = start, end
	m.byID = make(map[int64]domain.Visit, len(visits))
	for _, v := range visits {
		m.byID[v.ID] = v
	}
	for id := range m.selected {
		if _, ok := m.byID[id]; !ok {
			delete(m.selected, id)
		}
	}
	m.mu.Unlock()
	return nil
}

// Visits returns the visits with the given status ("" for all), sorted by start time.
func (m *VisitLifecycleManager) Visits(status domain.VisitStatus) []domain.Visit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Visit, 0, len(m.byID))
	for _, v := range m.byID {
		if status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	sortVisits(out)
	return out
}

// Get returns one visit.
func (m *VisitLifecycleManager) Get(id int64) (domain.Visit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	return v, ok
}

// Busy reports whether a destructive operation is in flight.
func (m *VisitLifecycleManager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Confirm moves a suggested visit to confirmed.
func (m *VisitLifecycleManager) Confirm(ctx context.Context, id int64) (*domain.Visit, error) {
	if err := m.requireStatus(id, domain.VisitSuggested); err != nil {
		return nil, err
	}
	status := domain.VisitConfirmed
	v, err := m.update(ctx, id, domain.VisitUpdate{Status: &status})
	if err != nil {
		return nil, err
	}
	m.announce(ctx, "confirmed", []domain.Visit{*v}, []int64{id})
	m.notify(domain.NoticeSuccess, "Visit confirmed")
	return v, nil
}

// Decline moves a suggested visit to declined and removes its marker.
func (m *VisitLifecycleManager) Decline(ctx context.Context, id int64) (*domain.Visit, error) {
	if err := m.requireStatus(id, domain.VisitSuggested); err != nil {
		return nil, err
	}
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	status := domain.VisitDeclined
	v, err := m.update(ctx, id, domain.VisitUpdate{Status: &status})
	if err != nil {
		return nil, err
	}
	events.Publish(m.bus, events.VisitRemoved, events.VisitRemovedEvent{IDs: []int64{id}})
	m.announce(ctx, "declined", []domain.Visit{*v}, []int64{id})
	m.notify(domain.NoticeSuccess, "Visit declined")
	return v, nil
}

// Rename changes the name of a suggested or confirmed visit.
func (m *VisitLifecycleManager) Rename(ctx context.Context, id int64, name string) (*domain.Visit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if len(name) > 255 {
		return nil, domain.Invalid("name", "must be at most 255 long")
	}
	if err := m.requireNotDeclined(id); err != nil {
		return nil, err
	}
	v, err := m.update(ctx, id, domain.VisitUpdate{Name: &name})
	if err != nil {
		return nil, err
	}
	m.announce(ctx, "renamed", []domain.Visit{*v}, []int64{id})
	return v, nil
}

// AssignPlace links a visit to a place without changing its status.
func (m *VisitLifecycleManager) AssignPlace(ctx context.Context, id, placeID int64) (*domain.Visit, error) {
	if placeID <= 0 {
		return nil, domain.Invalid("place_id", "must be greater than 0")
	}
	if err := m.requireNotDeclined(id); err != nil {
		return nil, err
	}
	v, err := m.update(ctx, id, domain.VisitUpdate{PlaceID: &placeID})
	if err != nil {
		return nil, err
	}
	m.announce(ctx, "place_assigned", []domain.Visit{*v}, []int64{id})
	return v, nil
}

// SuggestPlaces returns places near a visit, nearest first. Places the backend returns
// outside the search radius are dropped.
func (m *VisitLifecycleManager) SuggestPlaces(ctx context.Context, id int64) ([]domain.Place, error) {
	v, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("visit %d: %w", id, domain.ErrNotFound)
	}
	radius := v.Radius
	if radius < 100 {
		radius = 100
	}
	places, err := m.places.NearbyPlaces(ctx, v.CenterLat, v.CenterLon, radius)
	if err != nil {
		return nil, fmt.Errorf("nearby places: %w", err)
	}

	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(v.CenterLat, v.CenterLon, radius)
	near := make([]domain.Place, 0, len(places))
	dist := make(map[int64]float64, len(places))
	for _, p := range places {
		if p.Lat < minLat || p.Lat > maxLat || p.Lon < minLon || p.Lon > maxLon {
			continue
		}
		d := geospatial.Haversine(v.CenterLat, v.CenterLon, p.Lat, p.Lon)
		if d > radius {
			continue
		}
		dist[p.ID] = d
		near = append(near, p)
	}
	sort.SliceStable(near, func(i, j int) bool { return dist[near[i].ID] < dist[near[j].ID] })
	return near, nil
}

// Create adds a user-defined visit. The draft is validated before any request is made.
func (m *VisitLifecycleManager) Create(ctx context.Context, draft domain.VisitDraft) (*domain.Visit, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	if err := validation.Struct(&draft); err != nil {
		return nil, err
	}
	v, err := m.visits.CreateVisit(ctx, draft)
	if err != nil {
		m.notify(domain.NoticeError, "Failed to create visit")
		return nil, fmt.Errorf("create visit: %w", err)
	}

	m.mu.Lock()
	m.byID[v.ID] = *v
	m.mu.Unlock()

	m.announce(ctx, "created", []domain.Visit{*v}, []int64{v.ID})
	m.notify(domain.NoticeSuccess, "Visit created")
	return v, nil
}

// Delete removes a visit after the backend acknowledged it.
func (m *VisitLifecycleManager) Delete(ctx context.Context, id int64) error {
	if _, ok := m.Get(id); !ok {
		return fmt.Errorf("visit %d: %w", id, domain.ErrNotFound)
	}
	release, err := m.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := m.visits.DeleteVisit(ctx, id); err != nil {
		m.notify(domain.NoticeError, "Failed to delete visit")
		return fmt.Errorf("delete visit %d: %w", id, err)
	}

	m.mu.Lock()
	delete(m.byID, id)
	delete(m.selected, id)
	m.mu.Unlock()

	events.Publish(m.bus, events.VisitRemoved, events.VisitRemovedEvent{IDs: []int64{id}})
	m.announce(ctx, "deleted", nil, []int64{id})
	m.notify(domain.NoticeSuccess, "Visit deleted")
	return nil
}

// Select adds a visit to the selection.
func (m *VisitLifecycleManager) Select(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return fmt.Errorf("visit %d: %w", id, domain.ErrNotFound)
	}
	m.selected[id] = struct{}{}
	return nil
}

// Deselect removes a visit from the selection.
func (m *VisitLifecycleManager) Deselect(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.selected, id)
}

// ClearSelection empties the selection.
func (m *VisitLifecycleManager) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = make(map[int64]struct{})
}

// Selected returns the selected ids, ascending.
func (m *VisitLifecycleManager) Selected() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedIDs()
}

func (m *VisitLifecycleManager) selectedIDs() []int64 {
	ids := make([]int64, 0, len(m.selected))
	for id := range m.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Merge replaces the selected visits with the single visit the backend returns. The
// constituents stop resolving and the selection is cleared.
func (m *VisitLifecycleManager) Merge(ctx context.Context) (*domain.Visit, error) {
	ids, release, err := m.beginBulk("merge")
	if err != nil {
		return nil, err
	}
	defer release()

	merged, err := m.visits.MergeVisits(ctx, ids)
	if err != nil {
		metrics.BulkOperations.WithLabelValues("merge", "error").Inc()
		m.notify(domain.NoticeError, "Failed to merge visits")
		return nil, fmt.Errorf("merge visits: %w", err)
	}
	metrics.BulkOperations.WithLabelValues("merge", "ok").Inc()

	m.mu.Lock()
	for _, id := range ids {
		delete(m.byID, id)
	}
	m.byID[merged.ID] = *merged
	m.selected = make(map[int64]struct{})
	m.mu.Unlock()

	events.Publish(m.bus, events.VisitRemoved, events.VisitRemovedEvent{IDs: ids})
	m.announce(ctx, "merged", []domain.Visit{*merged}, ids)
	m.notify(domain.NoticeSuccess, fmt.Sprintf("Merged %d visits", len(ids)))
	return merged, nil
}

// BulkConfirm confirms every selected visit in one request.
func (m *VisitLifecycleManager) BulkConfirm(ctx context.Context) (*domain.BulkUpdateResult, error) {
	return m.bulkStatus(ctx, domain.VisitConfirmed, "bulk_confirmed")
}

// BulkDecline declines every selected visit in one request.
func (m *VisitLifecycleManager) BulkDecline(ctx context.Context) (*domain.BulkUpdateResult, error) {
	return m.bulkStatus(ctx, domain.VisitDeclined, "bulk_declined")
}

// bulkStatus applies status to the selection. When the backend reports fewer updates than
// requested the visits are reloaded and a *domain.PartialFailure is returned with the result.
func (m *VisitLifecycleManager) bulkStatus(ctx context.Context, status domain.VisitStatus, op string) (*domain.BulkUpdateResult, error) {
	ids, release, err := m.beginBulk(op)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := m.visits.BulkUpdateStatus(ctx, ids, status)
	if err != nil {
		metrics.BulkOperations.WithLabelValues(op, "error").Inc()
		m.notify(domain.NoticeError, "Failed to update visits")
		return nil, fmt.Errorf("bulk update visits: %w", err)
	}

	if res.UpdatedCount < len(ids) {
		metrics.BulkOperations.WithLabelValues(op, "partial").Inc()
		partial := &domain.PartialFailure{Succeeded: res.UpdatedCount, Total: len(ids)}
		m.notify(domain.NoticeWarning, partial.Error())

		m.mu.Lock()
		start, end := m.start, m.end
		m.mu.Unlock()
		if err := m.Load(ctx, start, end); err != nil {
			slog.Warn("reload visits after partial bulk update", "error", err)
		}

		m.mu.Lock()
		var done []int64
		for _, id := range ids {
			if v, ok := m.byID[id]; ok && v.Status == status {
				delete(m.selected, id)
				done = append(done, id)
			}
		}
		m.mu.Unlock()
		m.afterBulkStatus(ctx, status, op, done)
		return res, partial
	}

	metrics.BulkOperations.WithLabelValues(op, "ok").Inc()
	m.mu.Lock()
	for _, id := range ids {
		if v, ok := m.byID[id]; ok {
			v.Status = status
			m.byID[id] = v
		}
	}
	m.selected = make(map[int64]struct{})
	m.mu.Unlock()

	m.afterBulkStatus(ctx, status, op, ids)
	m.notify(domain.NoticeSuccess, fmt.Sprintf("%d visits %s", len(ids), status))
	return res, nil
}

func (m *VisitLifecycleManager) afterBulkStatus(ctx context.Context, status domain.VisitStatus, op string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	if status == domain.VisitDeclined {
		events.Publish(m.bus, events.VisitRemoved, events.VisitRemovedEvent{IDs: ids})
	}
	visits := make([]domain.Visit, 0, len(ids))
	m.mu.Lock()
	for _, id := range ids {
		if v, ok := m.byID[id]; ok {
			visits = append(visits, v)
		}
	}
	m.mu.Unlock()
	m.announce(ctx, op, visits, ids)
}

// beginBulk checks the selection size and takes the in-flight guard.
func (m *VisitLifecycleManager) beginBulk(op string) ([]int64, func(), error) {
	m.mu.Lock()
	ids := m.selectedIDs()
	m.mu.Unlock()
	if len(ids) < minBulkSelection {
		return nil, nil, domain.Invalid("visit_ids", "select at least %d visits to %s", minBulkSelection, strings.TrimPrefix(op, "bulk_"))
	}
	release, err := m.acquire()
	if err != nil {
		return nil, nil, err
	}
	return ids, release, nil
}

func (m *VisitLifecycleManager) acquire() (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return nil, domain.ErrBusy
	}
	m.busy = true
	return func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}, nil
}

func (m *VisitLifecycleManager) update(ctx context.Context, id int64, upd domain.VisitUpdate) (*domain.Visit, error) {
	v, err := m.visits.UpdateVisit(ctx, id, upd)
	if err != nil {
		m.notify(domain.NoticeError, "Failed to update visit")
		return nil, fmt.Errorf("update visit %d: %w", id, err)
	}
	m.mu.Lock()
	m.byID[v.ID] = *v
	m.mu.Unlock()
	return v, nil
}

func (m *VisitLifecycleManager) requireStatus(id int64, want domain.VisitStatus) error {
	v, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("visit %d: %w", id, domain.ErrNotFound)
	}
	if v.Status != want {
		return fmt.Errorf("visit %d is %s: %w", id, v.Status, domain.ErrInvalidTransition)
	}
	return nil
}

func (m *VisitLifecycleManager) requireNotDeclined(id int64) error {
	v, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("visit %d: %w", id, domain.ErrNotFound)
	}
	if v.Status == domain.VisitDeclined {
		return fmt.Errorf("visit %d is declined: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

func (m *VisitLifecycleManager) announce(ctx context.Context, op string, visits []domain.Visit, ids []int64) {
	events.Publish(m.bus, events.VisitChanged, events.VisitChangedEvent{Op: op, Visits: visits, IDs: ids})
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishVisitEvent(ctx, op, ids); err != nil {
		slog.Warn("publish visit event", "op", op, "error", err)
	}
}

func (m *VisitLifecycleManager) notify(level domain.NoticeLevel, msg string) {
	if m.notifier != nil {
		m.notifier.Notify(level, msg)
	}
}

func sortVisits(vs []domain.Visit) {
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].StartedAt.Equal(vs[j].StartedAt) {
			return vs[i].StartedAt.Before(vs[j].StartedAt)
		}
		return vs[i].ID < vs[j].ID
	})
}

// IsPartial reports whether err is a partial multi-item failure.
func IsPartial(err error) bool {
	var pf *domain.PartialFailure
	return errors.As(err, &pf)
}
