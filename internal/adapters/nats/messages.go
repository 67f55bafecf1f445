package natsadapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
)

// Subjects used by the engine. Visit events are published per operation.
const (
	SubjectVisitsPrefix   = "locus.visits."
	SubjectPointsDeleted  = "locus.points.deleted"
	SubjectSharingChanged = "locus.sharing.changed"
	SubjectPointsIngested = "locus.points.ingested"
)

// VisitSubject returns the subject for a visit operation, e.g. locus.visits.confirmed.
func VisitSubject(op string) string {
	return SubjectVisitsPrefix + op
}

// VisitEventMessage is published after a visit mutation was acknowledged by the backend.
type VisitEventMessage struct {
	Op         string    `json:"op"`
	VisitIDs   []int64   `json:"visit_ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PointsDeletedMessage is published after a bulk point deletion.
type PointsDeletedMessage struct {
	PointIDs   []int64   `json:"point_ids"`
	Count      int       `json:"count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SharingChangedMessage carries the confirmed location-sharing state.
type SharingChangedMessage struct {
	State      domain.SharingState `json:"state"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// IngestedMessage announces points the backend stored for the half-open range [From, To).
type IngestedMessage struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Count int       `json:"count,omitempty"`
}

// ParseIngested decodes and checks an ingest notification.
func ParseIngested(data []byte) (IngestedMessage, error) {
	var m IngestedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode ingest message: %w", err)
	}
	if m.From.IsZero() || m.To.IsZero() {
		return m, domain.Invalid("from", "range is required")
	}
	if !m.To.After(m.From) {
		return m, domain.Invalid("to", "must be after from")
	}
	return m, nil
}
