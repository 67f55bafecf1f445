package usecases_test

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/usecases"
)

func hexQuery() domain.HexQuery {
	return domain.HexQuery{
		Bounds:    domain.Bounds{MinLat: 52, MinLon: 13, MaxLat: 53, MaxLon: 14},
		HexSize:   500,
		StartDate: baseTime,
		EndDate:   baseTime.Add(24 * time.Hour),
	}
}

func hexBucket(id string, count int) domain.HexBucket {
	poly := orb.Polygon{orb.Ring{{13, 52}, {13.1, 52}, {13.1, 52.1}, {13, 52.1}, {13, 52}}}
	return domain.HexBucket{ID: id, PointCount: count, Geometry: poly, Bounds: domain.BoundsFromOrb(poly.Bound())}
}

func TestStyleHexagons_Opacity(t *testing.T) {
	styled := usecases.StyleHexagons([]domain.HexBucket{hexBucket("a", 10), hexBucket("b", 5), hexBucket("c", 0)})
	want := []float64{0.8, 0.5, 0.2}
	for i, s := range styled {
		if math.Abs(s.Opacity-want[i]) > 1e-9 {
			t.Errorf("bucket %s: expected opacity %.2f, got %f", s.ID, want[i], s.Opacity)
		}
	}
	if len(usecases.StyleHexagons(nil)) != 0 {
		t.Error("expected no styled hexagons for no buckets")
	}
}

func TestHexRenderer_StaticIgnoresViewportAndCaches(t *testing.T) {
	var calls int32
	backend := &mockBackend{hexagonsFn: func(ctx context.Context, q domain.HexQuery) ([]domain.HexBucket, error) {
		atomic.AddInt32(&calls, 1)
		return []domain.HexBucket{hexBucket("a", 4), hexBucket("b", 2)}, nil
	}}
	bus := events.NewBus()
	cache := newMemoryCache()
	h := usecases.NewHexDensityRenderer(backend, bus, cache, nil, usecases.HexStatic)

	if _, err := h.Load(context.Background(), hexQuery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bus.Count(events.ViewportChanged.Name) != 0 {
		t.Error("static renderer must not follow the viewport")
	}

	again, err := h.Load(context.Background(), hexQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected the snapshot to come from cache, got %d backend calls", calls)
	}
	if len(again) != 2 || again[0].ID != "a" || math.Abs(again[0].Opacity-0.8) > 1e-9 {
		t.Errorf("unexpected cached hexagons: %+v", again)
	}
}

func TestHexRenderer_DynamicRequeriesOnViewport(t *testing.T) {
	got := make(chan domain.Bounds, 4)
	backend := &mockBackend{hexagonsFn: func(ctx context.Context, q domain.HexQuery) ([]domain.HexBucket, error) {
		got <- q.Bounds
		return []domain.HexBucket{hexBucket("a", 1)}, nil
	}}
	bus := events.NewBus()
	h := usecases.NewHexDensityRenderer(backend, bus, nil, nil, usecases.HexDynamic)
	defer h.Close()

	if _, err := h.Load(context.Background(), hexQuery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-got

	moved := domain.Bounds{MinLat: 48, MinLon: 11, MaxLat: 48.5, MaxLon: 11.5}
	events.Publish(bus, events.ViewportChanged, events.ViewportChangedEvent{Bounds: moved})

	select {
	case b := <-got:
		if b != moved {
			t.Errorf("expected requery with new bounds, got %+v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a requery after the viewport changed")
	}

	h.Close()
	if bus.Count(events.ViewportChanged.Name) != 0 {
		t.Error("closed renderer must unsubscribe")
	}
}

func TestHexRenderer_RejectsEmptyWindow(t *testing.T) {
	h := usecases.NewHexDensityRenderer(&mockBackend{}, events.NewBus(), nil, nil, usecases.HexStatic)
	q := hexQuery()
	q.EndDate = q.StartDate
	if _, err := h.Load(context.Background(), q); err == nil {
		t.Error("expected validation error")
	}
}

func TestHexRenderer_CloseCancelsRequery(t *testing.T) {
	requeried := make(chan struct{})
	done := make(chan error, 1)
	var calls atomic.Int32
	backend := &mockBackend{hexagonsFn: func(ctx context.Context, q domain.HexQuery) ([]domain.HexBucket, error) {
		if calls.Add(1) == 1 {
			return []domain.HexBucket{hexBucket("a", 1)}, nil
		}
		close(requeried)
		<-ctx.Done()
		done <- ctx.Err()
		return nil, ctx.Err()
	}}
	bus := events.NewBus()
	h := usecases.NewHexDensityRenderer(backend, bus, nil, nil, usecases.HexDynamic)

	if _, err := h.Load(context.Background(), hexQuery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events.Publish(bus, events.ViewportChanged, events.ViewportChangedEvent{Bounds: hexQuery().Bounds})

	select {
	case <-requeried:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a requery after the viewport changed")
	}
	h.Close()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("requery still running after Close")
	}
}
