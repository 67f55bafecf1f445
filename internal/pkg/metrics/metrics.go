package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "locus",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "locus",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Engine metrics
	PointPagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "point_pages_fetched_total",
		Help:      "Point pages fetched from the backend by outcome",
	}, []string{"outcome"})

	PointFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "point_fetch_duration_seconds",
		Help:      "Duration of a full time-range point fetch",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	BulkOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "bulk_operations_total",
		Help:      "Bulk visit and point operations by kind and outcome",
	}, []string{"operation", "outcome"})

	ReplayFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "replay_frames_total",
		Help:      "Replay frames rendered",
	})

	FogRecomputes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "fog_recomputes_total",
		Help:      "Fog overlay recomputations",
	})

	HexQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "hex_queries_total",
		Help:      "Hexagon aggregate queries by mode",
	}, []string{"mode"})

	IngestAnnouncements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "ingest_announcements_total",
		Help:      "Ingest notifications published by the watcher",
	})

	ActiveMapViews = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "locus",
		Subsystem: "engine",
		Name:      "active_map_views",
		Help:      "Map views currently open",
	})

	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Requests sent to the location-history backend",
	}, []string{"endpoint", "status"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "locus",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Backend request latency including retries",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})

	BackendBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "locus",
		Subsystem: "backend",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "locus",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "locus",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "locus",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "locus",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "locus",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics copies pool statistics into the db gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}

// BreakerStateValue maps a circuit breaker state name to the gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	}
	return 0
}
