package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/usecases"
)

const geoJSONContentType = "application/geo+json"

// MapSummary describes an open map view.
type MapSummary struct {
	ID       string                 `json:"id"`
	HexMode  usecases.HexMode       `json:"hex_mode"`
	Settings domain.DisplaySettings `json:"settings"`
	StartAt  *time.Time             `json:"start_at,omitempty"`
	EndAt    *time.Time             `json:"end_at,omitempty"`
	Days     []string               `json:"days"`
	Points   int                    `json:"points"`
}

func summarize(v *usecases.MapView) MapSummary {
	s := MapSummary{
		ID:       v.ID,
		HexMode:  v.Hexes.Mode(),
		Settings: v.Settings(),
		Days:     v.Timeline.AvailableDays(),
		Points:   len(v.Points()),
	}
	if start, end := v.Range(); !start.IsZero() {
		s.StartAt, s.EndAt = &start, &end
	}
	return s
}

// lookupMap resolves the :id route parameter.
func lookupMap(c *fiber.Ctx, deps *Dependencies) (*usecases.MapView, error) {
	return deps.Maps.Get(c.Params("id"))
}

func int64Param(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

type createMapRequest struct {
	HexMode string `json:"hex_mode"`
}

// CreateMapHandler opens a map view with the user's display settings.
func CreateMapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createMapRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		mode := deps.HexMode
		switch usecases.HexMode(req.HexMode) {
		case "":
		case usecases.HexStatic, usecases.HexDynamic:
			mode = usecases.HexMode(req.HexMode)
		default:
			return errBadRequest(c, "hex_mode must be static or dynamic")
		}

		settings := deps.Settings.Load(c.UserContext(), deps.UserKey)
		v := deps.Maps.Create(settings, mode)
		LoggerFromCtx(c.UserContext()).Info("map view opened", "map", v.ID, "hex_mode", mode)
		return c.Status(fiber.StatusCreated).JSON(summarize(v))
	}
}

// ListMapsHandler lists the open map views.
func ListMapsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ids := deps.Maps.IDs()
		out := make([]MapSummary, 0, len(ids))
		for _, id := range ids {
			v, err := deps.Maps.Get(id)
			if err != nil {
				continue // closed concurrently
			}
			out = append(out, summarize(v))
		}
		return c.JSON(out)
	}
}

// GetMapHandler returns one map view.
func GetMapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(summarize(v))
	}
}

// DeleteMapHandler closes a map view and releases its timers and hooks.
func DeleteMapHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Maps.Close(c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type loadRequest struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// LoadResponse reports the outcome of loading a time range.
type LoadResponse struct {
	Points       int      `json:"points"`
	PagesFetched int      `json:"pages_fetched"`
	TotalPages   int      `json:"total_pages"`
	FailedPages  []int    `json:"failed_pages,omitempty"`
	Warning      string   `json:"warning,omitempty"`
	Days         []string `json:"days"`
	CurrentDay   string   `json:"current_day"`
}

// LoadRangeHandler fetches points and visits for a time range into the view.
func LoadRangeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req loadRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		res, err := v.Load(c.UserContext(), req.StartAt, req.EndAt)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(LoadResponse{
			Points:       len(res.Points),
			PagesFetched: res.PagesFetched,
			TotalPages:   res.TotalPages,
			FailedPages:  res.FailedPages,
			Warning:      res.Warning,
			Days:         v.Timeline.AvailableDays(),
			CurrentDay:   v.Timeline.CurrentDay(),
		})
	}
}

// ListPointsHandler pages through the loaded points.
func ListPointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}

		offset, limit := pageWindow(c)

		var points []domain.Point
		if day := c.Query("day"); day != "" {
			points = v.Timeline.DayPoints(day)
		} else {
			points = v.Points()
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: len(points)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: paginate(points, offset, limit), Pagination: pg})
	}
}

// DaySummary is one day of the timeline.
type DaySummary struct {
	Key    string `json:"key"`
	Points int    `json:"points"`
}

// ListDaysHandler lists the days that have points, oldest first.
func ListDaysHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		buckets := v.Timeline.Buckets()
		days := make([]DaySummary, 0, len(buckets))
		for _, b := range buckets {
			days = append(days, DaySummary{Key: b.Key, Points: len(b.Points)})
		}
		return c.JSON(fiber.Map{"current": v.Timeline.CurrentDay(), "days": days})
	}
}

type currentDayRequest struct {
	Day       string `json:"day"`
	Direction string `json:"direction"` // prev | next
}

// SetCurrentDayHandler moves the timeline to a day, or one day back or forward.
func SetCurrentDayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req currentDayRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		var moved bool
		switch {
		case req.Day != "":
			moved = v.Timeline.SetDay(req.Day)
			if !moved {
				return errNotFound(c, "no points on day "+req.Day)
			}
		case req.Direction == "prev":
			moved = v.Timeline.PrevDay()
		case req.Direction == "next":
			moved = v.Timeline.NextDay()
		default:
			return errBadRequest(c, "day or direction (prev|next) is required")
		}
		return c.JSON(fiber.Map{"current": v.Timeline.CurrentDay(), "moved": moved})
	}
}

// SegmentsHandler returns the route segments of a day, as GeoJSON when format=geojson.
func SegmentsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		segments := v.Segments(c.Query("day"))
		if c.Query("format") == "geojson" {
			tolerance := c.QueryFloat("tolerance", 0)
			if tolerance < 0 {
				return errBadRequest(c, "tolerance must not be negative")
			}
			return c.JSON(usecases.SegmentsFeatureCollection(segments, tolerance), geoJSONContentType)
		}
		return c.JSON(segments)
	}
}

// PositionResponse is the point shown at a slider position.
type PositionResponse struct {
	Minute          int          `json:"minute"`
	Point           domain.Point `json:"point"`
	Index           int          `json:"index"`
	SameMinuteCount int          `json:"same_minute_count"`
}

func positionResponse(v *usecases.MapView, p domain.Point) PositionResponse {
	minute := usecases.MinuteOfDay(p.Time(), v.Timeline.Location())
	return PositionResponse{
		Minute:          minute,
		Point:           p,
		SameMinuteCount: v.Timeline.SameMinuteCount(minute),
	}
}

// PositionHandler resolves a minute of the current day to a point.
func PositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		minute := c.QueryInt("minute", -1)
		if minute < 0 || minute >= usecases.MinutesPerDay {
			return errBadRequest(c, "minute must be between 0 and 1439")
		}
		p, idx, ok := v.Timeline.PointAtPosition(minute)
		if !ok {
			return errNotFound(c, "no points on the current day")
		}
		res := positionResponse(v, p)
		res.Index = idx
		return c.JSON(res)
	}
}

type cycleRequest struct {
	Direction string `json:"direction"` // next | prev
}

// CycleHandler steps through the points sharing the current minute.
func CycleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req cycleRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		var (
			p   domain.Point
			idx int
			ok  bool
		)
		switch req.Direction {
		case "", "next":
			p, idx, ok = v.Timeline.CycleNext()
		case "prev":
			p, idx, ok = v.Timeline.CyclePrev()
		default:
			return errBadRequest(c, "direction must be next or prev")
		}
		if !ok {
			return errConflict(c, "no timeline position selected")
		}
		res := positionResponse(v, p)
		res.Index = idx
		return c.JSON(res)
	}
}

// DensityHandler returns the normalised point density of the current day.
func DensityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		bins := c.QueryInt("bins", 96)
		if bins <= 0 || bins > usecases.MinutesPerDay {
			return errBadRequest(c, "bins must be between 1 and 1440")
		}
		return c.JSON(fiber.Map{"day": v.Timeline.CurrentDay(), "bins": v.Timeline.DataDensity(bins)})
	}
}

// ReplayStateHandler returns the replay position.
func ReplayStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(v.Replay.State())
	}
}

// ReplayCommandHandler runs play, pause or stop.
func ReplayCommandHandler(deps *Dependencies, command string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		if err := runReplayCommand(v, command); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(v.Replay.State())
	}
}

func runReplayCommand(v *usecases.MapView, command string) error {
	switch command {
	case "play":
		return v.Replay.Play()
	case "pause":
		v.Replay.Pause()
	case "stop":
		v.Replay.Stop()
	default:
		return domain.Invalid("command", "unknown replay command %q", command)
	}
	return nil
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

// ReplaySpeedHandler changes the replay speed multiplier.
func ReplaySpeedHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req speedRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := v.Replay.SetSpeed(req.Speed); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(v.Replay.State())
	}
}

type scrubRequest struct {
	Minute int `json:"minute"`
}

// ReplayScrubHandler jumps the replay to a minute of the current day.
func ReplayScrubHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var req scrubRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		st, err := v.Replay.Scrub(req.Minute)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(st)
	}
}

// SetViewportHandler records a pan/zoom end and returns the visible bounds.
func SetViewportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var vp domain.Viewport
		if err := c.BodyParser(&vp); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := validateViewport(vp); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"viewport": vp, "bounds": v.SetViewport(vp)})
	}
}

func validateViewport(vp domain.Viewport) error {
	switch {
	case vp.Width <= 0 || vp.Height <= 0:
		return domain.Invalid("viewport", "width and height must be positive")
	case vp.Zoom < 0 || vp.Zoom > 24:
		return domain.Invalid("zoom", "must be between 0 and 24")
	case vp.Center.Lat < -90 || vp.Center.Lat > 90 || vp.Center.Lon < -180 || vp.Center.Lon > 180:
		return domain.Invalid("center", "must be a valid coordinate")
	}
	return nil
}

// NoticesHandler returns the most recent notices, oldest first.
func NoticesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := lookupMap(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(v.Notices.Recent())
	}
}
