package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
)

// flexFloat accepts both JSON numbers and numeric strings; the backend serialises
// decimal columns as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("flexFloat: %w", err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// toMillis normalises a unix timestamp that may be in seconds or milliseconds.
func toMillis(ts int64) int64 {
	if ts > 0 && ts < 1e11 {
		return ts * 1000
	}
	return ts
}

type pointDTO struct {
	ID        int64      `json:"id"`
	Latitude  flexFloat  `json:"latitude"`
	Longitude flexFloat  `json:"longitude"`
	Timestamp int64      `json:"timestamp"`
	Altitude  *flexFloat `json:"altitude"`
	Velocity  *flexFloat `json:"velocity"`
	Battery   *int       `json:"battery"`
}

func (d pointDTO) toDomain() domain.Point {
	p := domain.Point{
		ID:        d.ID,
		Lat:       float64(d.Latitude),
		Lon:       float64(d.Longitude),
		Timestamp: toMillis(d.Timestamp),
		Battery:   d.Battery,
	}
	if d.Altitude != nil {
		v := float64(*d.Altitude)
		p.Altitude = &v
	}
	if d.Velocity != nil {
		v := float64(*d.Velocity)
		p.Velocity = &v
	}
	return p
}

func pointsToDomain(in []pointDTO) []domain.Point {
	out := make([]domain.Point, 0, len(in))
	for _, d := range in {
		out = append(out, d.toDomain())
	}
	return out
}

type placeDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
}

func (d placeDTO) toDomain() domain.Place {
	return domain.Place{ID: d.ID, Name: d.Name, Lat: float64(d.Latitude), Lon: float64(d.Longitude)}
}

type visitDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Status    string    `json:"status"`
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
	Radius    flexFloat `json:"radius"`
	Place     *placeDTO `json:"place"`
}

func (d visitDTO) toDomain() domain.Visit {
	v := domain.Visit{
		ID:        d.ID,
		Name:      d.Name,
		StartedAt: d.StartedAt,
		EndedAt:   d.EndedAt,
		CenterLat: float64(d.Latitude),
		CenterLon: float64(d.Longitude),
		Radius:    float64(d.Radius),
		Status:    domain.VisitStatus(d.Status),
	}
	if !v.Status.Valid() {
		v.Status = domain.VisitSuggested
	}
	if d.Place != nil {
		id := d.Place.ID
		v.PlaceID = &id
		if v.CenterLat == 0 && v.CenterLon == 0 {
			v.CenterLat = float64(d.Place.Latitude)
			v.CenterLon = float64(d.Place.Longitude)
		}
	}
	return v
}

func visitsToDomain(in []visitDTO) []domain.Visit {
	out := make([]domain.Visit, 0, len(in))
	for _, d := range in {
		out = append(out, d.toDomain())
	}
	return out
}

type areaDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
	Radius    flexFloat `json:"radius"`
}

func (d areaDTO) toDomain() domain.Area {
	return domain.Area{
		ID:     d.ID,
		Name:   d.Name,
		Lat:    float64(d.Latitude),
		Lon:    float64(d.Longitude),
		Radius: float64(d.Radius),
	}
}

type sharingDTO struct {
	Success   bool       `json:"success"`
	Enabled   *bool      `json:"enabled"`
	Duration  string     `json:"duration"`
	ExpiresAt *time.Time `json:"expires_at"`
	Message   string     `json:"message"`
}

type settingsDTO struct {
	MapStyle             string          `json:"map_style"`
	Timezone             string          `json:"timezone"`
	MetersBetweenRoutes  flexFloat       `json:"meters_between_routes"`
	MinutesBetweenRoutes flexFloat       `json:"minutes_between_routes"`
	ReplaySpeed          flexFloat       `json:"replay_speed"`
	FogOfWarMeters       flexFloat       `json:"fog_of_war_meters"`
	HexagonSize          flexFloat       `json:"hexagon_size"`
	EnabledMapLayers     json.RawMessage `json:"enabled_map_layers"`
}

func (d settingsDTO) toDomain() domain.DisplaySettings {
	s := domain.DisplaySettings{
		MapStyle:                d.MapStyle,
		Timezone:                d.Timezone,
		RouteDistanceThresholdM: float64(d.MetersBetweenRoutes),
		RouteTimeThresholdMin:   float64(d.MinutesBetweenRoutes),
		ReplaySpeed:             float64(d.ReplaySpeed),
		FogClearRadiusM:         float64(d.FogOfWarMeters),
		HexSizeM:                float64(d.HexagonSize),
	}
	s.Layers = decodeLayers(d.EnabledMapLayers)
	return s
}

// decodeLayers accepts either a list of enabled layer names or a name→bool object.
func decodeLayers(raw json.RawMessage) map[string]bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var names []string
	if json.Unmarshal(raw, &names) == nil {
		out := make(map[string]bool, len(names))
		for _, n := range names {
			out[n] = true
		}
		return out
	}
	var flags map[string]bool
	if json.Unmarshal(raw, &flags) == nil {
		return flags
	}
	return nil
}
