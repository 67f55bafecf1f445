package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

const (
	defaultPerPage         = 1000
	defaultPageConcurrency = 4
	pointCacheTTLSeconds   = 60
)

// FetchResult is the outcome of loading a time range of points.
type FetchResult struct {
	Points       []domain.Point
	PagesFetched int
	TotalPages   int
	FailedPages  []int
	Warning      string
}

// Partial reports whether some pages could not be loaded.
func (r *FetchResult) Partial() bool {
	return len(r.FailedPages) > 0
}

// PointStreamService loads a time range of points from the paginated backend listing.
type PointStreamService struct {
	points      ports.PointsAPI
	cache       ports.CacheService
	notifier    ports.Notifier
	perPage     int
	concurrency int
}

// NewPointStreamService creates a PointStreamService. cache and notifier may be nil.
func NewPointStreamService(points ports.PointsAPI, cache ports.CacheService, notifier ports.Notifier, perPage, concurrency int) *PointStreamService {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if concurrency <= 0 {
		concurrency = defaultPageConcurrency
	}
	return &PointStreamService{
		points:      points,
		cache:       cache,
		notifier:    notifier,
		perPage:     perPage,
		concurrency: concurrency,
	}
}

// Fetch loads every point in [start, end]. The first page is fetched on its own to learn the
// page count; the rest are fetched concurrently. A failing first page fails the call; later
// failing pages are reported in FailedPages and the points of the other pages are kept.
func (s *PointStreamService) Fetch(ctx context.Context, start, end time.Time) (*FetchResult, error) {
	if !end.After(start) {
		return nil, domain.Invalid("end_at", "must be after start_at")
	}

	cacheKey := fmt.Sprintf("points:%d:%d:%d", start.Unix(), end.Unix(), s.perPage)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var points []domain.Point
			if err := json.Unmarshal(data, &points); err == nil {
				metrics.CacheHits.WithLabelValues("points").Inc()
				return &FetchResult{Points: points}, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("points").Inc()
	}

	began := time.Now()
	defer func() { metrics.PointFetchDuration.Observe(time.Since(began).Seconds()) }()

	first, err := s.points.ListPoints(ctx, start, end, 1, s.perPage)
	if err != nil {
		metrics.PointPagesFetched.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch points page 1: %w", err)
	}
	metrics.PointPagesFetched.WithLabelValues("ok").Inc()

	total := first.TotalPages
	if total < 1 {
		total = 1
	}

	pages := make([]domain.Result[[]domain.Point], total)
	pages[0] = domain.Ok(first.Points)

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for page := 2; page <= total; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				pages[page-1] = domain.Err[[]domain.Point](ctx.Err())
				return
			}
			defer func() { <-sem }()

			p, err := s.points.ListPoints(ctx, start, end, page, s.perPage)
			if err != nil {
				pages[page-1] = domain.Err[[]domain.Point](err)
				return
			}
			pages[page-1] = domain.Ok(p.Points)
		}(page)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &FetchResult{TotalPages: total}
	var all []domain.Point
	for i, r := range pages {
		if !r.IsOk() {
			metrics.PointPagesFetched.WithLabelValues("error").Inc()
			res.FailedPages = append(res.FailedPages, i+1)
			slog.Warn("point page failed", "page", i+1, "total", total, "error", r.Err)
			continue
		}
		if i > 0 {
			metrics.PointPagesFetched.WithLabelValues("ok").Inc()
		}
		res.PagesFetched++
		all = append(all, r.Value...)
	}
	res.Points = NormalizePoints(all)

	if res.Partial() {
		res.Warning = fmt.Sprintf("%d of %d pages loaded, some points are missing", res.PagesFetched, total)
		if s.notifier != nil {
			s.notifier.Notify(domain.NoticeWarning, res.Warning)
		}
		return res, nil
	}

	if s.cache != nil {
		if data, err := json.Marshal(res.Points); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, pointCacheTTLSeconds)
		}
	}
	return res, nil
}

// Invalidate drops the cached result for a range, e.g. after points were deleted or ingested.
func (s *PointStreamService) Invalidate(ctx context.Context, start, end time.Time) error {
	if s.cache == nil {
		return nil
	}
	err := s.cache.Delete(ctx, fmt.Sprintf("points:%d:%d:%d", start.Unix(), end.Unix(), s.perPage))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// NormalizePoints drops points with impossible coordinates, removes duplicate ids
// and sorts the rest ascending by timestamp. Equal timestamps keep their input order.
func NormalizePoints(points []domain.Point) []domain.Point {
	seen := make(map[int64]struct{}, len(points))
	out := make([]domain.Point, 0, len(points))
	for _, p := range points {
		if !validCoord(p.Lat, p.Lon) {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func validCoord(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
