package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func rangeQuery(start, end time.Time) url.Values {
	q := url.Values{}
	q.Set("start_at", formatTime(start))
	q.Set("end_at", formatTime(end))
	return q
}

// ListPoints fetches one page of points recorded in [start, end].
func (c *Client) ListPoints(ctx context.Context, start, end time.Time, page, perPage int) (*ports.PointPage, error) {
	q := rangeQuery(start, end)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("order", "asc")

	var dtos []pointDTO
	header, err := c.do(ctx, "points.list", http.MethodGet, "/api/v1/points", q, nil, &dtos)
	if err != nil {
		return nil, err
	}

	total := 1
	if h := header.Get("X-Total-Pages"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil {
			return nil, fmt.Errorf("%w: bad X-Total-Pages %q", domain.ErrBackend, h)
		}
		total = n
	}
	return &ports.PointPage{Points: pointsToDomain(dtos), Page: page, TotalPages: total}, nil
}

// PointsWithin returns the points inside b recorded in [start, end].
func (c *Client) PointsWithin(ctx context.Context, b domain.Bounds, start, end time.Time) ([]domain.Point, error) {
	q := rangeQuery(start, end)
	q.Set("min_lng", formatFloat(b.MinLon))
	q.Set("min_lat", formatFloat(b.MinLat))
	q.Set("max_lng", formatFloat(b.MaxLon))
	q.Set("max_lat", formatFloat(b.MaxLat))

	var dtos []pointDTO
	if _, err := c.do(ctx, "points.within_bounds", http.MethodGet, "/api/v1/points/within_bounds", q, nil, &dtos); err != nil {
		return nil, err
	}
	return pointsToDomain(dtos), nil
}

// DeletePoints bulk-deletes points by ID.
func (c *Client) DeletePoints(ctx context.Context, ids []int64) (*domain.DeleteResult, error) {
	body := map[string][]int64{"point_ids": ids}
	var out domain.DeleteResult
	if _, err := c.do(ctx, "points.bulk_destroy", http.MethodDelete, "/api/v1/points/bulk_destroy", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListVisits returns the visits that overlap [start, end].
func (c *Client) ListVisits(ctx context.Context, start, end time.Time) ([]domain.Visit, error) {
	var dtos []visitDTO
	if _, err := c.do(ctx, "visits.list", http.MethodGet, "/api/v1/visits", rangeQuery(start, end), nil, &dtos); err != nil {
		return nil, err
	}
	return visitsToDomain(dtos), nil
}

// VisitsWithin returns the visits inside b that overlap [start, end].
func (c *Client) VisitsWithin(ctx context.Context, b domain.Bounds, start, end time.Time) ([]domain.Visit, error) {
	q := rangeQuery(start, end)
	q.Set("selection", "true")
	q.Set("sw_lat", formatFloat(b.MinLat))
	q.Set("sw_lng", formatFloat(b.MinLon))
	q.Set("ne_lat", formatFloat(b.MaxLat))
	q.Set("ne_lng", formatFloat(b.MaxLon))

	var dtos []visitDTO
	if _, err := c.do(ctx, "visits.selection", http.MethodGet, "/api/v1/visits", q, nil, &dtos); err != nil {
		return nil, err
	}
	return visitsToDomain(dtos), nil
}

// CreateVisit stores a user-defined visit.
func (c *Client) CreateVisit(ctx context.Context, draft domain.VisitDraft) (*domain.Visit, error) {
	body := map[string]any{"visit": map[string]any{
		"name":       draft.Name,
		"started_at": formatTime(draft.StartedAt),
		"ended_at":   formatTime(draft.EndedAt),
		"latitude":   draft.Lat,
		"longitude":  draft.Lon,
		"radius":     draft.Radius,
	}}
	var dto visitDTO
	if _, err := c.do(ctx, "visits.create", http.MethodPost, "/api/v1/visits", nil, body, &dto); err != nil {
		return nil, err
	}
	v := dto.toDomain()
	return &v, nil
}

// UpdateVisit applies a partial update to one visit.
func (c *Client) UpdateVisit(ctx context.Context, id int64, update domain.VisitUpdate) (*domain.Visit, error) {
	body := map[string]any{"visit": update}
	var dto visitDTO
	path := "/api/v1/visits/" + strconv.FormatInt(id, 10)
	if _, err := c.do(ctx, "visits.update", http.MethodPatch, path, nil, body, &dto); err != nil {
		return nil, err
	}
	v := dto.toDomain()
	return &v, nil
}

// DeleteVisit removes one visit.
func (c *Client) DeleteVisit(ctx context.Context, id int64) error {
	path := "/api/v1/visits/" + strconv.FormatInt(id, 10)
	_, err := c.do(ctx, "visits.delete", http.MethodDelete, path, nil, nil, nil)
	return err
}

// BulkUpdateStatus sets status on every visit in ids.
func (c *Client) BulkUpdateStatus(ctx context.Context, ids []int64, status domain.VisitStatus) (*domain.BulkUpdateResult, error) {
	body := map[string]any{"visit_ids": ids, "status": status}
	var out domain.BulkUpdateResult
	if _, err := c.do(ctx, "visits.bulk_update", http.MethodPost, "/api/v1/visits/bulk_update", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MergeVisits merges the visits in ids into one.
func (c *Client) MergeVisits(ctx context.Context, ids []int64) (*domain.Visit, error) {
	body := map[string][]int64{"visit_ids": ids}
	var dto visitDTO
	if _, err := c.do(ctx, "visits.merge", http.MethodPost, "/api/v1/visits/merge", nil, body, &dto); err != nil {
		return nil, err
	}
	v := dto.toDomain()
	return &v, nil
}

// NearbyPlaces returns known places within radiusMeters of a point.
func (c *Client) NearbyPlaces(ctx context.Context, lat, lon, radiusMeters float64) ([]domain.Place, error) {
	q := url.Values{}
	q.Set("latitude", formatFloat(lat))
	q.Set("longitude", formatFloat(lon))
	q.Set("radius", formatFloat(radiusMeters))

	var out struct {
		Places []placeDTO `json:"places"`
	}
	if _, err := c.do(ctx, "places.nearby", http.MethodGet, "/api/v1/places/nearby", q, nil, &out); err != nil {
		return nil, err
	}
	places := make([]domain.Place, 0, len(out.Places))
	for _, p := range out.Places {
		places = append(places, p.toDomain())
	}
	return places, nil
}

// CreateArea stores a circular area.
func (c *Client) CreateArea(ctx context.Context, draft domain.AreaDraft) (*domain.Area, error) {
	body := map[string]domain.AreaDraft{"area": draft}
	var dto areaDTO
	if _, err := c.do(ctx, "areas.create", http.MethodPost, "/api/v1/areas", nil, body, &dto); err != nil {
		return nil, err
	}
	a := dto.toDomain()
	return &a, nil
}

// DeleteArea removes one area.
func (c *Client) DeleteArea(ctx context.Context, id int64) error {
	path := "/api/v1/areas/" + strconv.FormatInt(id, 10)
	_, err := c.do(ctx, "areas.delete", http.MethodDelete, path, nil, nil, nil)
	return err
}

// Hexagons returns the server-aggregated hexagon buckets for hq.
func (c *Client) Hexagons(ctx context.Context, hq domain.HexQuery) ([]domain.HexBucket, error) {
	q := url.Values{}
	q.Set("min_lon", formatFloat(hq.Bounds.MinLon))
	q.Set("min_lat", formatFloat(hq.Bounds.MinLat))
	q.Set("max_lon", formatFloat(hq.Bounds.MaxLon))
	q.Set("max_lat", formatFloat(hq.Bounds.MaxLat))
	q.Set("hex_size", formatFloat(hq.HexSize))
	q.Set("start_date", formatTime(hq.StartDate))
	q.Set("end_date", formatTime(hq.EndDate))

	fc := geojson.NewFeatureCollection()
	if _, err := c.do(ctx, "maps.hexagons", http.MethodGet, "/api/v1/maps/hexagons", q, nil, fc); err != nil {
		return nil, err
	}
	return domain.HexBucketsFromFeatures(fc), nil
}

// UpdateLocationSharing turns family location sharing on or off.
func (c *Client) UpdateLocationSharing(ctx context.Context, enabled bool, duration string) (*domain.SharingState, error) {
	body := map[string]any{"enabled": enabled, "duration": duration}
	var out sharingDTO
	if _, err := c.do(ctx, "family.location_sharing", http.MethodPatch, "/api/v1/family/location_sharing", nil, body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "location sharing update rejected"
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrBackend, msg)
	}

	state := &domain.SharingState{Enabled: enabled, Duration: out.Duration, ExpiresAt: out.ExpiresAt}
	if out.Enabled != nil {
		state.Enabled = *out.Enabled
	}
	if state.Duration == "" {
		state.Duration = duration
	}
	return state, nil
}

// GetSettings fetches the user's display settings.
func (c *Client) GetSettings(ctx context.Context) (*domain.DisplaySettings, error) {
	var out struct {
		Settings settingsDTO `json:"settings"`
	}
	if _, err := c.do(ctx, "settings.get", http.MethodGet, "/api/v1/settings", nil, nil, &out); err != nil {
		return nil, err
	}
	s := out.Settings.toDomain()
	return &s, nil
}
