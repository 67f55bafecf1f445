package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/core/usecases"
)

func newRegistry(backend *mockBackend) *usecases.MapRegistry {
	return usecases.NewMapRegistry(usecases.MapViewDeps{
		Backend:   backend,
		NewFrames: func() ports.FrameSource { return newManualFrames() },
	})
}

func TestMapView_LoadBuildsTimeline(t *testing.T) {
	backend := &mockBackend{listPointsFn: func(ctx context.Context, start, end time.Time, page, perPage int) (*ports.PointPage, error) {
		return &ports.PointPage{Points: []domain.Point{
			pt(1, 52.00, 13.00, at(1, 9, 0, 0)),
			pt(2, 52.001, 13.001, at(1, 9, 1, 0)),
			pt(3, 53.00, 14.00, at(1, 9, 2, 0)),
			pt(4, 52.00, 13.00, at(2, 9, 0, 0)),
		}, Page: 1, TotalPages: 1}, nil
	}}
	reg := newRegistry(backend)
	defer reg.CloseAll()

	v := reg.Create(domain.DisplaySettings{}, usecases.HexDynamic)
	var loaded events.TimelineLoadedEvent
	events.Subscribe(v.Bus, events.TimelineLoaded, func(ev events.TimelineLoadedEvent) { loaded = ev })

	if _, err := v.Load(context.Background(), at(1, 0, 0, 0), at(3, 0, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Points != 4 || len(loaded.Days) != 2 {
		t.Errorf("unexpected loaded event %+v", loaded)
	}
	if segs := v.Segments("2024-05-01"); len(segs) != 2 {
		t.Errorf("expected 2 segments on day one, got %d", len(segs))
	}
	if segs := v.Segments(""); len(segs) != 1 || segs[0].Points[0].ID != 4 {
		t.Errorf("expected the latest day by default, got %+v", segs)
	}
}

func TestMapRegistry_Lifecycle(t *testing.T) {
	reg := newRegistry(&mockBackend{})
	a := reg.Create(domain.DisplaySettings{}, usecases.HexStatic)
	b := reg.Create(domain.DisplaySettings{}, usecases.HexStatic)
	if a.ID == b.ID {
		t.Fatal("views must have distinct ids")
	}

	got, err := reg.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("expected view a, got %v %v", got, err)
	}
	if err := reg.Close(a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.Get(a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}
	if ids := reg.IDs(); len(ids) != 1 || ids[0] != b.ID {
		t.Errorf("unexpected ids %v", ids)
	}
	reg.CloseAll()
	if len(reg.IDs()) != 0 {
		t.Error("expected no views after CloseAll")
	}
}

func TestMapRegistry_ReloadRangeTargetsOverlappingViews(t *testing.T) {
	reg := newRegistry(&mockBackend{})
	defer reg.CloseAll()

	v := reg.Create(domain.DisplaySettings{}, usecases.HexStatic)
	if _, err := v.Load(context.Background(), at(1, 0, 0, 0), at(2, 0, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reloads []events.LayersReloadEvent
	events.Subscribe(v.Bus, events.LayersReload, func(ev events.LayersReloadEvent) { reloads = append(reloads, ev) })

	_ = reg.ReloadRange(context.Background(), at(5, 0, 0, 0), at(6, 0, 0, 0))
	if len(reloads) != 0 {
		t.Fatalf("non-overlapping range must not reload, got %d", len(reloads))
	}
	_ = reg.ReloadRange(context.Background(), at(1, 12, 0, 0), at(1, 13, 0, 0))
	if len(reloads) != 1 || !reloads[0].Silent || !reloads[0].PreserveCamera {
		t.Errorf("expected one silent reload, got %+v", reloads)
	}
}

func TestViewportBounds_ContainsCenter(t *testing.T) {
	b := usecases.ViewportBounds(berlinView)
	if !b.Contains(berlinView.Center.Lat, berlinView.Center.Lon) || b.IsEmpty() {
		t.Errorf("unexpected bounds %+v", b)
	}
}
