package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 600 requests per minute per IP (timeline scrubbing is chatty)
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// WebSocket: replay frames and notices of one map view
	app.Use("/v1/maps/:id/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/v1/maps/:id/ws", websocket.New(WebSocketHandler(deps)))

	// REST API v1, 15s per-request timeout
	v1 := app.Group("/v1")
	route := func(method, path string, h fiber.Handler) {
		v1.Add(method, path, timeout.NewWithContext(h, requestTimeout))
	}

	route(fiber.MethodPost, "/maps", CreateMapHandler(deps))
	route(fiber.MethodGet, "/maps", ListMapsHandler(deps))
	route(fiber.MethodGet, "/maps/:id", GetMapHandler(deps))
	route(fiber.MethodDelete, "/maps/:id", DeleteMapHandler(deps))

	// Point stream & timeline
	route(fiber.MethodPost, "/maps/:id/load", LoadRangeHandler(deps))
	route(fiber.MethodGet, "/maps/:id/points", ListPointsHandler(deps))
	route(fiber.MethodGet, "/maps/:id/days", ListDaysHandler(deps))
	route(fiber.MethodPut, "/maps/:id/days/current", SetCurrentDayHandler(deps))
	route(fiber.MethodGet, "/maps/:id/segments", SegmentsHandler(deps))
	route(fiber.MethodGet, "/maps/:id/timeline/position", PositionHandler(deps))
	route(fiber.MethodPost, "/maps/:id/timeline/cycle", CycleHandler(deps))
	route(fiber.MethodGet, "/maps/:id/timeline/density", DensityHandler(deps))

	// Replay
	route(fiber.MethodGet, "/maps/:id/replay", ReplayStateHandler(deps))
	route(fiber.MethodPost, "/maps/:id/replay/play", ReplayCommandHandler(deps, "play"))
	route(fiber.MethodPost, "/maps/:id/replay/pause", ReplayCommandHandler(deps, "pause"))
	route(fiber.MethodPost, "/maps/:id/replay/stop", ReplayCommandHandler(deps, "stop"))
	route(fiber.MethodPut, "/maps/:id/replay/speed", ReplaySpeedHandler(deps))
	route(fiber.MethodPost, "/maps/:id/replay/scrub", ReplayScrubHandler(deps))

	// Visits (selection and bulk routes before :vid)
	route(fiber.MethodGet, "/maps/:id/visits", ListVisitsHandler(deps))
	route(fiber.MethodPost, "/maps/:id/visits", CreateVisitHandler(deps))
	route(fiber.MethodGet, "/maps/:id/visits/selection", GetVisitSelectionHandler(deps))
	route(fiber.MethodPut, "/maps/:id/visits/selection", SetVisitSelectionHandler(deps))
	route(fiber.MethodDelete, "/maps/:id/visits/selection", ClearVisitSelectionHandler(deps))
	route(fiber.MethodPost, "/maps/:id/visits/merge", MergeVisitsHandler(deps))
	route(fiber.MethodPost, "/maps/:id/visits/bulk_confirm", BulkStatusHandler(deps, domain.VisitConfirmed))
	route(fiber.MethodPost, "/maps/:id/visits/bulk_decline", BulkStatusHandler(deps, domain.VisitDeclined))
	route(fiber.MethodGet, "/maps/:id/visits/:vid", GetVisitHandler(deps))
	route(fiber.MethodPatch, "/maps/:id/visits/:vid", UpdateVisitHandler(deps))
	route(fiber.MethodDelete, "/maps/:id/visits/:vid", DeleteVisitHandler(deps))
	route(fiber.MethodPost, "/maps/:id/visits/:vid/confirm", VisitTransitionHandler(deps, domain.VisitConfirmed))
	route(fiber.MethodPost, "/maps/:id/visits/:vid/decline", VisitTransitionHandler(deps, domain.VisitDeclined))
	route(fiber.MethodGet, "/maps/:id/visits/:vid/places", SuggestPlacesHandler(deps))

	// Rectangle selection
	route(fiber.MethodPost, "/maps/:id/selection/begin", BeginSelectionHandler(deps))
	route(fiber.MethodPost, "/maps/:id/selection", CompleteSelectionHandler(deps))
	route(fiber.MethodGet, "/maps/:id/selection", GetSelectionHandler(deps))
	route(fiber.MethodDelete, "/maps/:id/selection", CancelSelectionHandler(deps))
	route(fiber.MethodGet, "/maps/:id/selection/confirmation", DeleteConfirmationHandler(deps))
	route(fiber.MethodPost, "/maps/:id/selection/delete", DeleteSelectedPointsHandler(deps))

	// Overlays
	route(fiber.MethodPut, "/maps/:id/viewport", SetViewportHandler(deps))
	route(fiber.MethodGet, "/maps/:id/fog", FogHandler(deps))
	route(fiber.MethodPut, "/maps/:id/fog", SetFogHandler(deps))
	route(fiber.MethodGet, "/maps/:id/hexagons", HexagonsHandler(deps))
	route(fiber.MethodPost, "/maps/:id/hexagons", LoadHexagonsHandler(deps))

	// Sharing, areas, notices
	route(fiber.MethodGet, "/maps/:id/sharing", SharingHandler(deps))
	route(fiber.MethodPut, "/maps/:id/sharing", ToggleSharingHandler(deps))
	route(fiber.MethodPost, "/maps/:id/areas", CreateAreaHandler(deps))
	route(fiber.MethodDelete, "/maps/:id/areas/:aid", DeleteAreaHandler(deps))
	route(fiber.MethodGet, "/maps/:id/notices", NoticesHandler(deps))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app, deps.OpenAPIPath)
}
