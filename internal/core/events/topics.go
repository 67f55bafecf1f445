package events

import (
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
)

// ViewportChangedEvent fires once per pan/zoom end. Cardinality: one per gesture.
type ViewportChangedEvent struct {
	Viewport domain.Viewport `json:"viewport"`
	Bounds   domain.Bounds   `json:"bounds"`
}

// LayersReloadEvent asks the view to refetch its data layers.
// Silent reloads show no loading indicator; PreserveCamera keeps the viewport untouched.
type LayersReloadEvent struct {
	Reason         string `json:"reason"`
	Silent         bool   `json:"silent"`
	PreserveCamera bool   `json:"preserve_camera"`
}

// ReplayFrameEvent is emitted for every rendered replay frame, in frame order.
type ReplayFrameEvent struct {
	State    domain.ReplayState `json:"state"`
	Progress float64            `json:"progress"`
}

// ReplayStateEvent is emitted on play/pause/stop and day changes.
type ReplayStateEvent struct {
	State  domain.ReplayState `json:"state"`
	Reason string             `json:"reason"`
}

// VisitChangedEvent is emitted after the backend acknowledged a visit mutation.
// Op is one of: confirmed, declined, renamed, place_assigned, created, deleted,
// merged, bulk_confirmed, bulk_declined.
type VisitChangedEvent struct {
	Op     string         `json:"op"`
	Visits []domain.Visit `json:"visits"`
	IDs    []int64        `json:"ids"`
}

// VisitRemovedEvent means the visits' markers must be removed from the map.
type VisitRemovedEvent struct {
	IDs []int64 `json:"ids"`
}

// PointsDeletedEvent is emitted after a confirmed bulk deletion succeeded.
type PointsDeletedEvent struct {
	IDs   []int64 `json:"ids"`
	Count int     `json:"count"`
}

// SelectionChangedEvent carries the controls for the current selection; nil means cleared.
type SelectionChangedEvent struct {
	Controls *domain.SelectionControls `json:"controls"`
}

// SharingChangedEvent reports the location-sharing state after a change or expiry.
type SharingChangedEvent struct {
	State  domain.SharingState `json:"state"`
	Reason string              `json:"reason"`
}

// NoticeEvent carries a transient user notice.
type NoticeEvent struct {
	Notice domain.Notice `json:"notice"`
}

// TimelineLoadedEvent fires after the point stream was (re)loaded into the timeline.
type TimelineLoadedEvent struct {
	Days      []string  `json:"days"`
	Points    int       `json:"points"`
	LoadedAt  time.Time `json:"loaded_at"`
	Partial   bool      `json:"partial"`
	FailedPgs []int     `json:"failed_pages"`
}

var (
	ViewportChanged = Topic[ViewportChangedEvent]{Name: "map.viewport_changed"}
	LayersReload    = Topic[LayersReloadEvent]{Name: "map.layers_reload"}
	ReplayFrame     = Topic[ReplayFrameEvent]{Name: "replay.frame"}
	ReplayState     = Topic[ReplayStateEvent]{Name: "replay.state"}
	VisitChanged    = Topic[VisitChangedEvent]{Name: "visits.changed"}
	VisitRemoved    = Topic[VisitRemovedEvent]{Name: "visits.removed"}
	PointsDeleted   = Topic[PointsDeletedEvent]{Name: "points.deleted"}
	SelectionChange = Topic[SelectionChangedEvent]{Name: "selection.changed"}
	SharingChanged  = Topic[SharingChangedEvent]{Name: "sharing.changed"}
	NoticePosted    = Topic[NoticeEvent]{Name: "notice.posted"}
	TimelineLoaded  = Topic[TimelineLoadedEvent]{Name: "timeline.loaded"}
)
