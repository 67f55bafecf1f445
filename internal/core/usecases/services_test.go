package usecases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/usecases"
)

type mockSettingsRepo struct {
	stored map[string]domain.DisplaySettings
}

func (m *mockSettingsRepo) Get(ctx context.Context, userKey string) (*domain.DisplaySettings, error) {
	s, ok := m.stored[userKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *mockSettingsRepo) Save(ctx context.Context, userKey string, s domain.DisplaySettings) error {
	m.stored[userKey] = s
	return nil
}

func TestSettingsService_WritesThrough(t *testing.T) {
	backend := &mockBackend{getSettingsFn: func(ctx context.Context) (*domain.DisplaySettings, error) {
		return &domain.DisplaySettings{MapStyle: "dark", RouteDistanceThresholdM: 250}, nil
	}}
	repo := &mockSettingsRepo{stored: map[string]domain.DisplaySettings{}}

	s := usecases.NewSettingsService(backend, repo).Load(context.Background(), "user-1")
	if s.MapStyle != "dark" || s.RouteDistanceThresholdM != 250 || s.RouteTimeThresholdMin != 60 {
		t.Errorf("unexpected settings %+v", s)
	}
	if repo.stored["user-1"].MapStyle != "dark" {
		t.Error("expected settings saved to the fallback store")
	}
}

func TestSettingsService_FallsBack(t *testing.T) {
	backend := &mockBackend{getSettingsFn: func(ctx context.Context) (*domain.DisplaySettings, error) {
		return nil, domain.ErrBackend
	}}
	repo := &mockSettingsRepo{stored: map[string]domain.DisplaySettings{"user-1": {MapStyle: "satellite"}}}
	svc := usecases.NewSettingsService(backend, repo)

	if s := svc.Load(context.Background(), "user-1"); s.MapStyle != "satellite" || s.ReplaySpeed != 1 {
		t.Errorf("expected fallback settings with defaults, got %+v", s)
	}
	def := domain.DefaultDisplaySettings()
	if s := svc.Load(context.Background(), "user-2"); s.MapStyle != def.MapStyle || s.HexSizeM != def.HexSizeM {
		t.Errorf("expected defaults, got %+v", s)
	}
}

func TestAreaService_Create(t *testing.T) {
	svc := usecases.NewAreaService(&mockBackend{}, nil)

	a, err := svc.Create(context.Background(), domain.AreaDraft{Name: " Home ", Lat: 52.5, Lon: 13.4, Radius: 150})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Name != "Home" {
		t.Errorf("expected trimmed name, got %q", a.Name)
	}

	if _, err := svc.Create(context.Background(), domain.AreaDraft{Name: "Home", Lat: 52.5, Lon: 13.4}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for radius 0, got %v", err)
	}
	if err := svc.Delete(context.Background(), 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for id 0, got %v", err)
	}
}

func TestNoticeBoard_KeepsRecentAndPublishes(t *testing.T) {
	bus := events.NewBus()
	var seen int
	events.Subscribe(bus, events.NoticePosted, func(events.NoticeEvent) { seen++ })

	b := usecases.NewNoticeBoard(bus, 2)
	b.Notify(domain.NoticeInfo, "one")
	b.Notify(domain.NoticeWarning, "two")
	b.Notify(domain.NoticeError, "three")

	recent := b.Recent()
	if len(recent) != 2 || recent[0].Message != "two" || recent[1].Message != "three" {
		t.Errorf("unexpected notices %+v", recent)
	}
	if seen != 3 {
		t.Errorf("expected 3 published notices, got %d", seen)
	}
	if last, ok := b.Last(); !ok || last.Level != domain.NoticeError {
		t.Errorf("unexpected last notice %+v", last)
	}
}
