package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/usecases"
)

func suggested(id int64, start time.Time, dur time.Duration) domain.Visit {
	return domain.Visit{
		ID: id, Name: "Visit", StartedAt: start, EndedAt: start.Add(dur),
		CenterLat: 52.5, CenterLon: 13.4, Radius: 50, Status: domain.VisitSuggested,
	}
}

func newVisitManager(t *testing.T, backend *mockBackend, visits ...domain.Visit) (*usecases.VisitLifecycleManager, *events.Bus, *recordingNotifier) {
	t.Helper()
	backend.listVisitsFn = func(ctx context.Context, start, end time.Time) ([]domain.Visit, error) {
		return visits, nil
	}
	bus := events.NewBus()
	notifier := &recordingNotifier{}
	m := usecases.NewVisitLifecycleManager(backend, backend, bus, notifier, nil)
	if err := m.Load(context.Background(), baseTime, baseTime.Add(24*time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m, bus, notifier
}

func TestVisits_BulkConfirmIsOneCall(t *testing.T) {
	calls := 0
	backend := &mockBackend{}
	backend.bulkUpdateFn = func(ctx context.Context, ids []int64, status domain.VisitStatus) (*domain.BulkUpdateResult, error) {
		calls++
		if len(ids) != 3 || status != domain.VisitConfirmed {
			t.Errorf("unexpected request: ids=%v status=%s", ids, status)
		}
		return &domain.BulkUpdateResult{UpdatedCount: len(ids)}, nil
	}
	m, _, _ := newVisitManager(t, backend,
		suggested(1, baseTime, time.Hour),
		suggested(2, baseTime.Add(2*time.Hour), time.Hour),
		suggested(3, baseTime.Add(4*time.Hour), time.Hour),
	)
	for _, id := range []int64{1, 2, 3} {
		if err := m.Select(id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if _, err := m.BulkConfirm(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 backend call, got %d", calls)
	}
	if n := len(m.Visits(domain.VisitSuggested)); n != 0 {
		t.Errorf("expected no suggested visits left, got %d", n)
	}
	if n := len(m.Visits(domain.VisitConfirmed)); n != 3 {
		t.Errorf("expected 3 confirmed visits, got %d", n)
	}
	if sel := m.Selected(); len(sel) != 0 {
		t.Errorf("expected empty selection, got %v", sel)
	}
}

func TestVisits_BulkNeedsTwoSelected(t *testing.T) {
	backend := &mockBackend{}
	backend.bulkUpdateFn = func(ctx context.Context, ids []int64, status domain.VisitStatus) (*domain.BulkUpdateResult, error) {
		t.Fatal("backend must not be called")
		return nil, nil
	}
	m, _, _ := newVisitManager(t, backend, suggested(1, baseTime, time.Hour))
	_ = m.Select(1)

	if _, err := m.BulkDecline(context.Background()); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestVisits_MergeSpansConstituents(t *testing.T) {
	v1 := suggested(1, baseTime, 2*time.Hour)
	v2 := suggested(2, baseTime.Add(time.Hour), 30*time.Minute)
	backend := &mockBackend{}
	backend.mergeVisitsFn = func(ctx context.Context, ids []int64) (*domain.Visit, error) {
		return &domain.Visit{ID: 9, Name: "Merged", StartedAt: v1.StartedAt, EndedAt: v1.EndedAt, Status: domain.VisitConfirmed}, nil
	}
	m, bus, _ := newVisitManager(t, backend, v1, v2, suggested(3, baseTime.Add(-time.Hour), 10*time.Minute))

	var removed []int64
	events.Subscribe(bus, events.VisitRemoved, func(ev events.VisitRemovedEvent) { removed = ev.IDs })

	_ = m.Select(1)
	_ = m.Select(2)
	merged, err := m.Merge(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !merged.StartedAt.Equal(v1.StartedAt) || !merged.EndedAt.Equal(v1.EndedAt) {
		t.Errorf("merged visit should span both: %s - %s", merged.StartedAt, merged.EndedAt)
	}
	if _, ok := m.Get(1); ok {
		t.Error("constituent 1 should no longer resolve")
	}
	if _, ok := m.Get(2); ok {
		t.Error("constituent 2 should no longer resolve")
	}
	if len(removed) != 2 {
		t.Errorf("expected both constituents removed from the map, got %v", removed)
	}

	all := m.Visits("")
	if len(all) != 2 || all[0].ID != 3 || all[1].ID != 9 {
		t.Errorf("expected visits sorted by start [3 9], got %+v", all)
	}
	if len(m.Selected()) != 0 {
		t.Error("selection should be cleared after merge")
	}
}

func TestVisits_MergeFailureKeepsState(t *testing.T) {
	backend := &mockBackend{}
	backend.mergeVisitsFn = func(ctx context.Context, ids []int64) (*domain.Visit, error) {
		return nil, domain.ErrBackend
	}
	m, _, notifier := newVisitManager(t, backend, suggested(1, baseTime, time.Hour), suggested(2, baseTime.Add(time.Hour), time.Hour))
	_ = m.Select(1)
	_ = m.Select(2)

	if _, err := m.Merge(context.Background()); !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if len(m.Selected()) != 2 || len(m.Visits("")) != 2 {
		t.Error("failed merge must not change visits or selection")
	}
	if m.Busy() {
		t.Error("busy flag must be released after failure")
	}
	if n, _ := notifier.last(); n.Level != domain.NoticeError {
		t.Errorf("expected error notice, got %+v", n)
	}
}

func TestVisits_DeclineWaitsForBackend(t *testing.T) {
	backend := &mockBackend{}
	m, bus, _ := newVisitManager(t, backend, suggested(1, baseTime, time.Hour))

	var removed bool
	events.Subscribe(bus, events.VisitRemoved, func(events.VisitRemovedEvent) { removed = true })

	backend.updateVisitFn = func(ctx context.Context, id int64, u domain.VisitUpdate) (*domain.Visit, error) {
		if v, _ := m.Get(1); v.Status != domain.VisitSuggested {
			t.Error("status changed before the backend answered")
		}
		if !m.Busy() {
			t.Error("expected busy while decline is in flight")
		}
		if _, err := m.Decline(ctx, 1); !errors.Is(err, domain.ErrBusy) {
			t.Errorf("expected ErrBusy for a second decline, got %v", err)
		}
		v := suggested(1, baseTime, time.Hour)
		v.Status = *u.Status
		return &v, nil
	}

	v, err := m.Decline(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != domain.VisitDeclined || !removed {
		t.Errorf("expected declined visit and marker removal, got %s removed=%v", v.Status, removed)
	}
	if _, err := m.Confirm(context.Background(), 1); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("confirming a declined visit should fail, got %v", err)
	}
}

func TestVisits_PartialBulkUpdate(t *testing.T) {
	backend := &mockBackend{}
	visits := []domain.Visit{suggested(1, baseTime, time.Hour), suggested(2, baseTime.Add(time.Hour), time.Hour), suggested(3, baseTime.Add(2*time.Hour), time.Hour)}
	m, _, notifier := newVisitManager(t, backend, visits...)

	backend.bulkUpdateFn = func(ctx context.Context, ids []int64, status domain.VisitStatus) (*domain.BulkUpdateResult, error) {
		// only visit 1 went through
		reloaded := append([]domain.Visit(nil), visits...)
		reloaded[0].Status = status
		backend.listVisitsFn = func(ctx context.Context, start, end time.Time) ([]domain.Visit, error) { return reloaded, nil }
		return &domain.BulkUpdateResult{UpdatedCount: 1}, nil
	}
	for _, id := range []int64{1, 2, 3} {
		_ = m.Select(id)
	}

	res, err := m.BulkConfirm(context.Background())
	var pf *domain.PartialFailure
	if !errors.As(err, &pf) || pf.Succeeded != 1 || pf.Total != 3 {
		t.Fatalf("expected partial failure 1 of 3, got %v", err)
	}
	if res.UpdatedCount != 1 {
		t.Errorf("expected result with 1 update, got %d", res.UpdatedCount)
	}
	if n, _ := notifier.last(); n.Message != "1 of 3 succeeded" {
		t.Errorf("unexpected notice %q", n.Message)
	}
	if sel := m.Selected(); len(sel) != 2 || sel[0] != 2 || sel[1] != 3 {
		t.Errorf("expected failed ids to stay selected, got %v", sel)
	}
}

func TestVisits_CreateValidatesFirst(t *testing.T) {
	backend := &mockBackend{}
	backend.createVisitFn = func(ctx context.Context, d domain.VisitDraft) (*domain.Visit, error) {
		t.Fatal("backend must not be called for an invalid draft")
		return nil, nil
	}
	m, _, _ := newVisitManager(t, backend)

	_, err := m.Create(context.Background(), domain.VisitDraft{
		Name: "Gym", StartedAt: baseTime, EndedAt: baseTime, Lat: 52.5, Lon: 13.4,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	_, err = m.Create(context.Background(), domain.VisitDraft{
		Name: "   ", StartedAt: baseTime, EndedAt: baseTime.Add(time.Hour), Lat: 52.5, Lon: 13.4,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for blank name, got %v", err)
	}
}

func TestVisits_RenameAndAssignPlace(t *testing.T) {
	backend := &mockBackend{}
	m, _, _ := newVisitManager(t, backend, suggested(1, baseTime, time.Hour))
	backend.updateVisitFn = func(ctx context.Context, id int64, u domain.VisitUpdate) (*domain.Visit, error) {
		v, _ := m.Get(id)
		if u.Name != nil {
			v.Name = *u.Name
		}
		if u.PlaceID != nil {
			v.PlaceID = u.PlaceID
		}
		return &v, nil
	}

	if _, err := m.Rename(context.Background(), 1, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for empty name, got %v", err)
	}
	v, err := m.Rename(context.Background(), 1, "  Office ")
	if err != nil || v.Name != "Office" {
		t.Fatalf("expected trimmed rename, got %v %v", v, err)
	}
	v, err = m.AssignPlace(context.Background(), 1, 42)
	if err != nil || v.PlaceID == nil || *v.PlaceID != 42 || v.Status != domain.VisitSuggested {
		t.Fatalf("expected place 42 without status change, got %+v %v", v, err)
	}
}

func TestVisits_SuggestPlacesUsesMinimumRadius(t *testing.T) {
	backend := &mockBackend{}
	backend.nearbyPlacesFn = func(ctx context.Context, lat, lon, radius float64) ([]domain.Place, error) {
		if radius != 100 {
			t.Errorf("expected radius 100, got %f", radius)
		}
		return []domain.Place{{ID: 1, Name: "Cafe", Lat: 52.5, Lon: 13.4}}, nil
	}
	m, _, _ := newVisitManager(t, backend, suggested(1, baseTime, time.Hour))

	places, err := m.SuggestPlaces(context.Background(), 1)
	if err != nil || len(places) != 1 {
		t.Fatalf("unexpected result: %v %v", places, err)
	}
	if _, err := m.SuggestPlaces(context.Background(), 99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVisits_SuggestPlacesDropsDistantPlacesAndSortsByDistance(t *testing.T) {
	backend := &mockBackend{}
	backend.nearbyPlacesFn = func(ctx context.Context, lat, lon, radius float64) ([]domain.Place, error) {
		return []domain.Place{
			{ID: 1, Name: "Corner", Lat: 52.5, Lon: 13.4009},       // ~61m
			{ID: 2, Name: "Station", Lat: 52.5002, Lon: 13.4},      // ~22m
			{ID: 3, Name: "Airport", Lat: 52.36, Lon: 13.5},        // outside the box
			{ID: 4, Name: "Diagonal", Lat: 52.50085, Lon: 13.4014}, // inside the box, ~134m
		}, nil
	}
	m, _, _ := newVisitManager(t, backend, suggested(1, baseTime, time.Hour))

	places, err := m.SuggestPlaces(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []int64
	for _, p := range places {
		ids = append(ids, p.ID)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Errorf("expected places [2 1], got %v", ids)
	}
}
