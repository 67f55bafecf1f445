package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

const watermarkKey = "ingest:watermark"

// IngestWatcher polls the backend for points stored since the last check and announces
// them, for backends that do not publish ingest notifications themselves. The watermark
// is kept in the cache when one is configured so restarts do not re-announce.
type IngestWatcher struct {
	points    ports.PointsAPI
	announcer ports.IngestAnnouncer
	cache     ports.CacheService
	now       func() time.Time

	mu        sync.Mutex
	watermark time.Time
}

// NewIngestWatcher creates a watcher. cache may be nil.
func NewIngestWatcher(points ports.PointsAPI, announcer ports.IngestAnnouncer, cache ports.CacheService) *IngestWatcher {
	return &IngestWatcher{points: points, announcer: announcer, cache: cache, now: time.Now}
}

// WithClock replaces the time source.
func (w *IngestWatcher) WithClock(now func() time.Time) *IngestWatcher {
	w.now = now
	return w
}

// Watermark returns the end of the last checked range.
func (w *IngestWatcher) Watermark() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watermark
}

// Check counts points in [watermark, now) and announces them. The first check only
// sets the watermark. A failed announcement leaves the watermark where it was.
func (w *IngestWatcher) Check(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC().Truncate(time.Second)
	from := w.loadWatermark(ctx)
	if from.IsZero() {
		w.storeWatermark(ctx, now)
		slog.Info("ingest watermark initialised", "at", now)
		return 0, nil
	}
	if !now.After(from) {
		return 0, nil
	}

	// One point per page: the page count is the point count.
	page, err := w.points.ListPoints(ctx, from, now.Add(-time.Millisecond), 1, 1)
	if err != nil {
		return 0, fmt.Errorf("count points since %s: %w", from.Format(time.RFC3339), err)
	}
	count := page.TotalPages
	if count > 0 {
		if err := w.announcer.AnnounceIngested(ctx, from, now, count); err != nil {
			return 0, fmt.Errorf("announce ingested: %w", err)
		}
		metrics.IngestAnnouncements.Inc()
		slog.Info("points ingested", "from", from, "to", now, "count", count)
	}
	w.storeWatermark(ctx, now)
	return count, nil
}

// Run checks every interval until ctx is done.
func (w *IngestWatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.Check(ctx); err != nil {
			slog.Warn("ingest check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *IngestWatcher) loadWatermark(ctx context.Context) time.Time {
	if !w.watermark.IsZero() || w.cache == nil {
		return w.watermark
	}
	data, err := w.cache.Get(ctx, watermarkKey)
	if err != nil {
		return time.Time{}
	}
	at, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		slog.Warn("discarding bad ingest watermark", "value", string(data))
		return time.Time{}
	}
	w.watermark = at
	return at
}

func (w *IngestWatcher) storeWatermark(ctx context.Context, at time.Time) {
	w.watermark = at
	if w.cache == nil {
		return
	}
	if err := w.cache.Set(ctx, watermarkKey, []byte(at.Format(time.RFC3339)), 0); err != nil {
		slog.Warn("store ingest watermark", "error", err)
	}
}
