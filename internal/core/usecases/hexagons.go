package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/events"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

// HexMode selects whether hexagons follow the viewport.
type HexMode string

const (
	// HexStatic loads once and never re-queries, for shareable snapshots.
	HexStatic HexMode = "static"
	// HexDynamic re-queries on every viewport change.
	HexDynamic HexMode = "dynamic"
)

const (
	hexSnapshotTTLSeconds = 3600
	hexRequeryTimeout     = 15 * time.Second
)

// HexDensityRenderer styles server-aggregated hexagons by their relative point count.
type HexDensityRenderer struct {
	hexagons ports.HexagonsAPI
	bus      *events.Bus
	cache    ports.CacheService
	notifier ports.Notifier

	mu     sync.Mutex
	mode   HexMode
	query  domain.HexQuery
	styled []domain.StyledHex
	unsub  func()
	gen    uint64

	// cancelRequery aborts the in-flight viewport requery.
	cancelRequery context.CancelFunc
}

// NewHexDensityRenderer creates a renderer in mode. cache and notifier may be nil.
func NewHexDensityRenderer(hexagons ports.HexagonsAPI, bus *events.Bus, cache ports.CacheService, notifier ports.Notifier, mode HexMode) *HexDensityRenderer {
	if mode != HexStatic {
		mode = HexDynamic
	}
	return &HexDensityRenderer{hexagons: hexagons, bus: bus, cache: cache, notifier: notifier, mode: mode}
}

// Mode returns the renderer's mode.
func (h *HexDensityRenderer) Mode() HexMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// Load queries the hexagons for q and styles them. In dynamic mode the renderer then
// follows viewport changes, re-querying with the new bounds and the same time window.
func (h *HexDensityRenderer) Load(ctx context.Context, q domain.HexQuery) ([]domain.StyledHex, error) {
	if q.HexSize <= 0 {
		q.HexSize = domain.DefaultDisplaySettings().HexSizeM
	}
	if !q.EndDate.After(q.StartDate) {
		return nil, domain.Invalid("end_date", "must be after start_date")
	}

	h.mu.Lock()
	h.query = q
	h.gen++
	gen := h.gen
	mode := h.mode
	if mode == HexDynamic && h.unsub == nil {
		h.unsub = events.Subscribe(h.bus, events.ViewportChanged, h.onViewport)
	}
	h.mu.Unlock()

	return h.load(ctx, q, gen)
}

func (h *HexDensityRenderer) load(ctx context.Context, q domain.HexQuery, gen uint64) ([]domain.StyledHex, error) {
	buckets, err := h.fetch(ctx, q)
	if err != nil {
		if h.notifier != nil {
			h.notifier.Notify(domain.NoticeError, "Failed to load hexagons")
		}
		return nil, err
	}
	styled := StyleHexagons(buckets)

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		return styled, nil
	}
	h.styled = styled
	return styled, nil
}

func (h *HexDensityRenderer) fetch(ctx context.Context, q domain.HexQuery) ([]domain.HexBucket, error) {
	mode := h.Mode()
	metrics.HexQueries.WithLabelValues(string(mode)).Inc()

	var key string
	if mode == HexStatic && h.cache != nil {
		key = fmt.Sprintf("hex:%.5f:%.5f:%.5f:%.5f:%.0f:%d:%d",
			q.Bounds.MinLat, q.Bounds.MinLon, q.Bounds.MaxLat, q.Bounds.MaxLon,
			q.HexSize, q.StartDate.Unix(), q.EndDate.Unix())
		if data, err := h.cache.Get(ctx, key); err == nil {
			var fc geojson.FeatureCollection
			if err := json.Unmarshal(data, &fc); err == nil {
				metrics.CacheHits.WithLabelValues("hexagons").Inc()
				return domain.HexBucketsFromFeatures(&fc), nil
			}
		}
		metrics.CacheMisses.WithLabelValues("hexagons").Inc()
	}

	buckets, err := h.hexagons.Hexagons(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("hexagons: %w", err)
	}

	if key != "" {
		if data, err := json.Marshal(domain.HexFeatureCollection(StyleHexagons(buckets))); err == nil {
			_ = h.cache.Set(ctx, key, data, hexSnapshotTTLSeconds)
		}
	}
	return buckets, nil
}

func (h *HexDensityRenderer) onViewport(ev events.ViewportChangedEvent) {
	h.mu.Lock()
	if h.unsub == nil || h.mode != HexDynamic {
		h.mu.Unlock()
		return
	}
	q := h.query
	q.Bounds = ev.Bounds
	h.query = q
	h.gen++
	gen := h.gen
	if h.cancelRequery != nil {
		h.cancelRequery()
	}
	ctx, cancel := context.WithTimeout(context.Background(), hexRequeryTimeout)
	h.cancelRequery = cancel
	h.mu.Unlock()

	go func() {
		defer cancel()
		if _, err := h.load(ctx, q, gen); err != nil && ctx.Err() != context.Canceled {
			slog.Warn("hexagon requery failed", "error", err)
		}
	}()
}

// Hexagons returns the currently styled hexagons.
func (h *HexDensityRenderer) Hexagons() []domain.StyledHex {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.styled
}

// Close stops following the viewport and cancels any requery in flight.
func (h *HexDensityRenderer) Close() {
	h.mu.Lock()
	unsub := h.unsub
	h.unsub = nil
	cancel := h.cancelRequery
	h.cancelRequery = nil
	h.gen++
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if unsub != nil {
		unsub()
	}
}

// StyleHexagons assigns opacity 0.2 + (count / maxCount) * 0.6 to each bucket, where
// maxCount is the largest count in the set.
func StyleHexagons(buckets []domain.HexBucket) []domain.StyledHex {
	maxCount := 0
	for _, b := range buckets {
		if b.PointCount > maxCount {
			maxCount = b.PointCount
		}
	}
	out := make([]domain.StyledHex, len(buckets))
	for i, b := range buckets {
		opacity := 0.2
		if maxCount > 0 {
			opacity += float64(b.PointCount) / float64(maxCount) * 0.6
		}
		out[i] = domain.StyledHex{HexBucket: b, Opacity: opacity}
	}
	return out
}
