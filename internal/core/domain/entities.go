package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Point is a single recorded GPS fix. Points are owned by the backend and read-only here.
type Point struct {
	ID        int64    `json:"id"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Timestamp int64    `json:"timestamp"` // unix milliseconds
	Altitude  *float64 `json:"altitude,omitempty"`
	Velocity  *float64 `json:"velocity,omitempty"`
	Battery   *int     `json:"battery,omitempty"`
}

// Time returns the fix time.
func (p Point) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Coord returns the point's coordinate.
func (p Point) Coord() GeoPoint {
	return GeoPoint{Lat: p.Lat, Lon: p.Lon}
}

// VisitStatus is the lifecycle state of a visit.
type VisitStatus string

const (
	VisitSuggested VisitStatus = "suggested"
	VisitConfirmed VisitStatus = "confirmed"
	VisitDeclined  VisitStatus = "declined"
)

// Valid reports whether s is a known status.
func (s VisitStatus) Valid() bool {
	switch s {
	case VisitSuggested, VisitConfirmed, VisitDeclined:
		return true
	}
	return false
}

// Visit is a detected or user-created dwell at a location.
type Visit struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
	CenterLat float64     `json:"center_lat"`
	CenterLon float64     `json:"center_lon"`
	Radius    float64     `json:"radius"`
	Status    VisitStatus `json:"status"`
	PlaceID   *int64      `json:"place_id,omitempty"`
}

// VisitDraft is the input for a client-side visit.
type VisitDraft struct {
	Name      string    `json:"name" validate:"required,max=255"`
	StartedAt time.Time `json:"started_at" validate:"required"`
	EndedAt   time.Time `json:"ended_at" validate:"required,gtfield=StartedAt"`
	Lat       float64   `json:"latitude" validate:"latitude"`
	Lon       float64   `json:"longitude" validate:"longitude"`
	Radius    float64   `json:"radius" validate:"gte=0"`
}

// VisitUpdate carries the mutable fields of a visit. Nil fields are left unchanged.
type VisitUpdate struct {
	Name    *string      `json:"name,omitempty"`
	Status  *VisitStatus `json:"status,omitempty"`
	PlaceID *int64       `json:"place_id,omitempty"`
}

// Place is a named location a visit can be assigned to.
type Place struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"latitude"`
	Lon  float64 `json:"longitude"`
}

// Area is a user-defined circular region.
type Area struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Lat    float64 `json:"latitude"`
	Lon    float64 `json:"longitude"`
	Radius float64 `json:"radius"`
}

// AreaDraft is the input for creating an area.
type AreaDraft struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Lat    float64 `json:"latitude" validate:"latitude"`
	Lon    float64 `json:"longitude" validate:"longitude"`
	Radius float64 `json:"radius" validate:"gt=0,lte=100000"`
}

// HexBucket is a server-aggregated hexagonal cell.
type HexBucket struct {
	ID         string      `json:"id"`
	PointCount int         `json:"point_count"`
	Geometry   orb.Polygon `json:"-"`
	Bounds     Bounds      `json:"bounds"`
}

// HexQuery parameterises a hexagon aggregation request.
type HexQuery struct {
	Bounds    Bounds    `json:"bounds"`
	HexSize   float64   `json:"hex_size"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// SharingState is the current family location-sharing setting.
type SharingState struct {
	Enabled   bool       `json:"enabled"`
	Duration  string     `json:"duration,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// DeleteResult is the backend acknowledgement of a bulk point deletion.
type DeleteResult struct {
	Count int `json:"count"`
}

// BulkUpdateResult is the backend acknowledgement of a bulk visit status change.
type BulkUpdateResult struct {
	UpdatedCount int `json:"updated_count"`
}
