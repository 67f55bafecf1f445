package domain

import (
	"time"

	"github.com/google/uuid"
)

// RouteSegment is a contiguous run of points whose consecutive gaps stayed within
// the distance and time thresholds. Segments are derived and never persisted.
type RouteSegment struct {
	Index  int     `json:"index"`
	Points []Point `json:"points"`
}

// StartedAt returns the time of the first point.
func (s RouteSegment) StartedAt() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Time()
}

// EndedAt returns the time of the last point.
func (s RouteSegment) EndedAt() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Time()
}

// DayBucket holds one local calendar day of points, sorted by timestamp.
type DayBucket struct {
	Key    string  `json:"key"` // YYYY-MM-DD in the viewer's timezone
	Points []Point `json:"points"`
}

// Selection is the transient result of a rectangle selection on the map.
type Selection struct {
	ID       string             `json:"id"`
	Bounds   Bounds             `json:"bounds"`
	StartAt  time.Time          `json:"start_at"`
	EndAt    time.Time          `json:"end_at"`
	PointIDs map[int64]struct{} `json:"-"`
	VisitIDs map[int64]struct{} `json:"-"`
}

// NewSelection creates an empty selection over bounds.
func NewSelection(bounds Bounds, start, end time.Time) *Selection {
	return &Selection{
		ID:       uuid.NewString(),
		Bounds:   bounds,
		StartAt:  start,
		EndAt:    end,
		PointIDs: make(map[int64]struct{}),
		VisitIDs: make(map[int64]struct{}),
	}
}

// IsEmpty reports whether nothing was selected.
func (s *Selection) IsEmpty() bool {
	return len(s.PointIDs) == 0 && len(s.VisitIDs) == 0
}

// SelectionControls describes what the UI may offer for the current selection.
// A nil *SelectionControls means no selection is active.
type SelectionControls struct {
	PointCount int  `json:"point_count"`
	VisitCount int  `json:"visit_count"`
	CanDelete  bool `json:"can_delete"`
	Busy       bool `json:"busy"`
}

// Confirmation is the user's answer to a destructive-operation prompt.
type Confirmation struct {
	Accepted bool `json:"accepted"`
	Count    int  `json:"count"`
}

// ReplayState is the transient position of an animated replay.
type ReplayState struct {
	DayKey          string    `json:"day_key"`
	PointIndex      int       `json:"point_index"`
	SpeedMultiplier float64   `json:"speed_multiplier"`
	AnchorWallTime  time.Time `json:"anchor_wall_time"`
	Current         GeoPoint  `json:"current"`
	Playing         bool      `json:"playing"`
}

// FogHole is a circular cut-out of the fog overlay in screen pixels.
type FogHole struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// StyledHex is a hex bucket with its rendering opacity.
type StyledHex struct {
	HexBucket
	Opacity float64 `json:"opacity"`
}

// NoticeLevel classifies a transient notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-blocking message for the user.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}
