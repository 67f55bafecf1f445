package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

type mockBackend struct {
	listPointsFn    func(ctx context.Context, start, end time.Time, page, perPage int) (*ports.PointPage, error)
	pointsWithinFn  func(ctx context.Context, b domain.Bounds, start, end time.Time) ([]domain.Point, error)
	deletePointsFn  func(ctx context.Context, ids []int64) (*domain.DeleteResult, error)
	listVisitsFn    func(ctx context.Context, start, end time.Time) ([]domain.Visit, error)
	visitsWithinFn  func(ctx context.Context, b domain.Bounds, start, end time.Time) ([]domain.Visit, error)
	createVisitFn   func(ctx context.Context, d domain.VisitDraft) (*domain.Visit, error)
	updateVisitFn   func(ctx context.Context, id int64, u domain.VisitUpdate) (*domain.Visit, error)
	deleteVisitFn   func(ctx context.Context, id int64) error
	bulkUpdateFn    func(ctx context.Context, ids []int64, status domain.VisitStatus) (*domain.BulkUpdateResult, error)
	mergeVisitsFn   func(ctx context.Context, ids []int64) (*domain.Visit, error)
	nearbyPlacesFn  func(ctx context.Context, lat, lon, radius float64) ([]domain.Place, error)
	createAreaFn    func(ctx context.Context, d domain.AreaDraft) (*domain.Area, error)
	deleteAreaFn    func(ctx context.Context, id int64) error
	hexagonsFn      func(ctx context.Context, q domain.HexQuery) ([]domain.HexBucket, error)
	updateSharingFn func(ctx context.Context, enabled bool, duration string) (*domain.SharingState, error)
	getSettingsFn   func(ctx context.Context) (*domain.DisplaySettings, error)
}

func (m *mockBackend) ListPoints(ctx context.Context, start, end time.Time, page, perPage int) (*ports.PointPage, error) {
	if m.listPointsFn != nil {
		return m.listPointsFn(ctx, start, end, page, perPage)
	}
	return &ports.PointPage{Page: page, TotalPages: 1}, nil
}

func (m *mockBackend) PointsWithin(ctx context.Context, b domain.Bounds, start, end time.Time) ([]domain.Point, error) {
	if m.pointsWithinFn != nil {
		return m.pointsWithinFn(ctx, b, start, end)
	}
	return nil, nil
}

func (m *mockBackend) DeletePoints(ctx context.Context, ids []int64) (*domain.DeleteResult, error) {
	if m.deletePointsFn != nil {
		return m.deletePointsFn(ctx, ids)
	}
	return &domain.DeleteResult{Count: len(ids)}, nil
}

func (m *mockBackend) ListVisits(ctx context.Context, start, end time.Time) ([]domain.Visit, error) {
	if m.listVisitsFn != nil {
		return m.listVisitsFn(ctx, start, end)
	}
	return nil, nil
}

func (m *mockBackend) VisitsWithin(ctx context.Context, b domain.Bounds, start, end time.Time) ([]domain.Visit, error) {
	if m.visitsWithinFn != nil {
		return m.visitsWithinFn(ctx, b, start, end)
	}
	return nil, nil
}

func (m *mockBackend) CreateVisit(ctx context.Context, d domain.VisitDraft) (*domain.Visit, error) {
	if m.createVisitFn != nil {
		return m.createVisitFn(ctx, d)
	}
	return nil, nil
}

func (m *mockBackend) UpdateVisit(ctx context.Context, id int64, u domain.VisitUpdate) (*domain.Visit, error) {
	if m.updateVisitFn != nil {
		return m.updateVisitFn(ctx, id, u)
	}
	return nil, nil
}

func (m *mockBackend) DeleteVisit(ctx context.Context, id int64) error {
	if m.deleteVisitFn != nil {
		return m.deleteVisitFn(ctx, id)
	}
	return nil
}

func (m *mockBackend) BulkUpdateStatus(ctx context.Context, ids []int64, status domain.VisitStatus) (*domain.BulkUpdateResult, error) {
	if m.bulkUpdateFn != nil {
		return m.bulkUpdateFn(ctx, ids, status)
	}
	return &domain.BulkUpdateResult{UpdatedCount: len(ids)}, nil
}

func (m *mockBackend) MergeVisits(ctx context.Context, ids []int64) (*domain.Visit, error) {
	if m.mergeVisitsFn != nil {
		return m.mergeVisitsFn(ctx, ids)
	}
	return nil, nil
}

func (m *mockBackend) NearbyPlaces(ctx context.Context, lat, lon, radius float64) ([]domain.Place, error) {
	if m.nearbyPlacesFn != nil {
		return m.nearbyPlacesFn(ctx, lat, lon, radius)
	}
	return nil, nil
}

func (m *mockBackend) CreateArea(ctx context.Context, d domain.AreaDraft) (*domain.Area, error) {
	if m.createAreaFn != nil {
		return m.createAreaFn(ctx, d)
	}
	return &domain.Area{ID: 1, Name: d.Name, Lat: d.Lat, Lon: d.Lon, Radius: d.Radius}, nil
}

func (m *mockBackend) DeleteArea(ctx context.Context, id int64) error {
	if m.deleteAreaFn != nil {
		return m.deleteAreaFn(ctx, id)
	}
	return nil
}

func (m *mockBackend) Hexagons(ctx context.Context, q domain.HexQuery) ([]domain.HexBucket, error) {
	if m.hexagonsFn != nil {
		return m.hexagonsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockBackend) UpdateLocationSharing(ctx context.Context, enabled bool, duration string) (*domain.SharingState, error) {
	if m.updateSharingFn != nil {
		return m.updateSharingFn(ctx, enabled, duration)
	}
	return &domain.SharingState{Enabled: enabled, Duration: duration}, nil
}

func (m *mockBackend) GetSettings(ctx context.Context) (*domain.DisplaySettings, error) {
	if m.getSettingsFn != nil {
		return m.getSettingsFn(ctx)
	}
	s := domain.DefaultDisplaySettings()
	return &s, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *recordingNotifier) Notify(level domain.NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, domain.Notice{Level: level, Message: message})
}

func (n *recordingNotifier) last() (domain.Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return domain.Notice{}, false
	}
	return n.notices[len(n.notices)-1], true
}

// manualFrames queues frame callbacks until the test runs them with tick.
type manualFrames struct {
	next    ports.FrameID
	pending map[ports.FrameID]func(time.Time)
}

func newManualFrames() *manualFrames {
	return &manualFrames{pending: make(map[ports.FrameID]func(time.Time))}
}

func (f *manualFrames) RequestFrame(fn func(now time.Time)) ports.FrameID {
	f.next++
	f.pending[f.next] = fn
	return f.next
}

func (f *manualFrames) CancelFrame(id ports.FrameID) {
	delete(f.pending, id)
}

// tick runs every queued callback once, in request order.
func (f *manualFrames) tick(now time.Time) {
	ids := make([]ports.FrameID, 0, len(f.pending))
	for id := range f.pending {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids {
		fn := f.pending[id]
		delete(f.pending, id)
		fn(now)
	}
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

var baseTime = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func pt(id int64, lat, lon float64, at time.Time) domain.Point {
	return domain.Point{ID: id, Lat: lat, Lon: lon, Timestamp: at.UnixMilli()}
}
