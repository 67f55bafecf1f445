package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samirrijal/locus/internal/adapters/backend"
	"github.com/samirrijal/locus/internal/core/domain"
)

func newClient(t *testing.T, h http.HandlerFunc) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := backend.New(backend.Config{
		BaseURL:        srv.URL,
		APIKey:         "secret",
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

var (
	dayStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	dayEnd   = dayStart.Add(24 * time.Hour)
)

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := backend.New(backend.Config{}); err == nil {
		t.Error("expected error for empty base url")
	}
	if _, err := backend.New(backend.Config{BaseURL: "ftp://example.com"}); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestListPoints_DecodesStringsAndPages(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/points" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("per_page") != "500" || q.Get("order") != "asc" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("start_at") != "2024-03-01T00:00:00Z" {
			t.Errorf("unexpected start_at %q", q.Get("start_at"))
		}
		w.Header().Set("X-Total-Pages", "3")
		io.WriteString(w, `[
			{"id": 1, "latitude": "52.52", "longitude": "13.40", "timestamp": 1709251200, "altitude": "34.5"},
			{"id": 2, "latitude": 52.53, "longitude": 13.41, "timestamp": 1709251260000}
		]`)
	})

	page, err := c.ListPoints(context.Background(), dayStart, dayEnd, 2, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalPages != 3 || page.Page != 2 {
		t.Errorf("expected page 2 of 3, got %d of %d", page.Page, page.TotalPages)
	}
	if len(page.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(page.Points))
	}
	p := page.Points[0]
	if p.Lat != 52.52 || p.Lon != 13.40 {
		t.Errorf("unexpected coordinate %f,%f", p.Lat, p.Lon)
	}
	if p.Timestamp != 1709251200000 {
		t.Errorf("expected seconds converted to millis, got %d", p.Timestamp)
	}
	if p.Altitude == nil || *p.Altitude != 34.5 {
		t.Errorf("expected altitude 34.5, got %v", p.Altitude)
	}
	if page.Points[1].Timestamp != 1709251260000 {
		t.Errorf("millisecond timestamps must pass through, got %d", page.Points[1].Timestamp)
	}
}

func TestDo_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `[]`)
	})

	page, err := c.ListPoints(context.Background(), dayStart, dayEnd, 1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if page.TotalPages != 1 {
		t.Errorf("missing header should default to one page, got %d", page.TotalPages)
	}
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ListVisits(context.Background(), dayStart, dayEnd)
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d", calls.Load())
	}
}

func TestDo_MapsStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"error":"Visit not found"}`, domain.ErrNotFound},
		{"unprocessable", http.StatusUnprocessableEntity, `{"errors":["Name can't be blank"]}`, domain.ErrValidation},
		{"server error", http.StatusInternalServerError, `boom`, domain.ErrBackend},
		{"unauthorized", http.StatusUnauthorized, ``, domain.ErrBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			err := c.DeleteVisit(context.Background(), 7)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDo_ValidationMessageFromBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"errors":["Name can't be blank"]}`)
	})
	_, err := c.CreateArea(context.Background(), domain.AreaDraft{Lat: 1, Lon: 1, Radius: 10})

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Message != "Name can't be blank" {
		t.Errorf("unexpected message %q", ve.Message)
	}
}

func TestBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 10; i++ {
		_ = c.DeleteArea(context.Background(), 1)
	}
	before := calls.Load()
	err := c.DeleteArea(context.Background(), 1)
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open circuit must not reach the server")
	}
	if c.BreakerState() != "open" {
		t.Errorf("expected open breaker, got %s", c.BreakerState())
	}
}

func TestBreaker_IgnoresNotFound(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	for i := 0; i < 12; i++ {
		_ = c.DeleteArea(context.Background(), 1)
	}
	if c.BreakerState() != "closed" {
		t.Errorf("404s must not trip the breaker, got %s", c.BreakerState())
	}
}

func TestDeletePoints_SendsIDs(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/points/bulk_destroy" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			PointIDs []int64 `json:"point_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		json.NewEncoder(w).Encode(map[string]int{"count": len(body.PointIDs)})
	})

	res, err := c.DeletePoints(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Count != 3 {
		t.Errorf("expected count 3, got %d", res.Count)
	}
}

func TestBulkUpdateStatus(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			VisitIDs []int64 `json:"visit_ids"`
			Status   string  `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body.Status != "confirmed" || len(body.VisitIDs) != 2 {
			t.Errorf("unexpected body %+v", body)
		}
		io.WriteString(w, `{"updated_count": 1}`)
	})

	res, err := c.BulkUpdateStatus(context.Background(), []int64{4, 5}, domain.VisitConfirmed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UpdatedCount != 1 {
		t.Errorf("expected 1 updated, got %d", res.UpdatedCount)
	}
}

func TestVisitsWithin_UsesSelectionQuery(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("selection") != "true" || q.Get("sw_lat") != "52.5" || q.Get("ne_lng") != "13.5" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		io.WriteString(w, `[{"id": 9, "name": "Cafe", "status": "confirmed",
			"started_at": "2024-03-01T09:00:00Z", "ended_at": "2024-03-01T10:00:00Z",
			"place": {"id": 3, "name": "Cafe", "latitude": "52.51", "longitude": "13.41"}}]`)
	})

	b := domain.Bounds{MinLat: 52.5, MinLon: 13.3, MaxLat: 52.6, MaxLon: 13.5}
	visits, err := c.VisitsWithin(context.Background(), b, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(visits) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(visits))
	}
	v := visits[0]
	if v.Status != domain.VisitConfirmed || v.PlaceID == nil || *v.PlaceID != 3 {
		t.Errorf("unexpected visit %+v", v)
	}
	if v.CenterLat != 52.51 {
		t.Errorf("expected center from place, got %f", v.CenterLat)
	}
}

func TestHexagons_DecodesGeoJSON(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("hex_size") != "500" {
			t.Errorf("unexpected hex_size %q", r.URL.Query().Get("hex_size"))
		}
		io.WriteString(w, `{"type":"FeatureCollection","features":[
			{"type":"Feature","id":"h1","properties":{"point_count":12},
			 "geometry":{"type":"Polygon","coordinates":[[[13.0,52.0],[13.1,52.0],[13.1,52.1],[13.0,52.0]]]}}
		]}`)
	})

	hexes, err := c.Hexagons(context.Background(), domain.HexQuery{
		Bounds:    domain.Bounds{MinLat: 52, MinLon: 13, MaxLat: 53, MaxLon: 14},
		HexSize:   500,
		StartDate: dayStart,
		EndDate:   dayEnd,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hexes) != 1 || hexes[0].ID != "h1" || hexes[0].PointCount != 12 {
		t.Fatalf("unexpected hexes %+v", hexes)
	}
	if hexes[0].Bounds.MaxLon != 13.1 {
		t.Errorf("unexpected bounds %+v", hexes[0].Bounds)
	}
}

func TestUpdateLocationSharing(t *testing.T) {
	expires := "2024-03-01T13:00:00Z"
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		io.WriteString(w, `{"success": true, "duration": "1h", "expires_at": "`+expires+`"}`)
	})

	state, err := c.UpdateLocationSharing(context.Background(), true, "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.Enabled || state.Duration != "1h" || state.ExpiresAt == nil {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.ExpiresAt.Format(time.RFC3339) != expires {
		t.Errorf("unexpected expiry %s", state.ExpiresAt)
	}
}

func TestUpdateLocationSharing_Unsuccessful(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": false, "message": "not in a family"}`)
	})
	_, err := c.UpdateLocationSharing(context.Background(), true, "1h")
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestGetSettings_FlexibleValues(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"settings": {
			"timezone": "Europe/Berlin",
			"meters_between_routes": "300",
			"minutes_between_routes": 30,
			"fog_of_war_meters": "75",
			"enabled_map_layers": ["Routes", "Heatmap"]
		}}`)
	})

	s, err := c.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Timezone != "Europe/Berlin" || s.RouteDistanceThresholdM != 300 || s.RouteTimeThresholdMin != 30 {
		t.Errorf("unexpected settings %+v", s)
	}
	if s.FogClearRadiusM != 75 {
		t.Errorf("expected fog radius 75, got %f", s.FogClearRadiusM)
	}
	if !s.Layers["Routes"] || !s.Layers["Heatmap"] || s.Layers["Fog"] {
		t.Errorf("unexpected layers %v", s.Layers)
	}
}
