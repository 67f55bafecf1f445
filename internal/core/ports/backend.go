package ports

import (
	"context"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
)

// PointPage is one page of the paginated point listing.
type PointPage struct {
	Points     []domain.Point
	Page       int
	TotalPages int
}

// PointsAPI reads and deletes points on the backend.
type PointsAPI interface {
	// ListPoints returns one page of points in [start, end], ordered ascending by time.
	ListPoints(ctx context.Context, start, end time.Time, page, perPage int) (*PointPage, error)
	// PointsWithin returns the points inside bounds and the time range.
	PointsWithin(ctx context.Context, bounds domain.Bounds, start, end time.Time) ([]domain.Point, error)
	// DeletePoints removes the given points in a single request.
	DeletePoints(ctx context.Context, ids []int64) (*domain.DeleteResult, error)
}

// VisitsAPI manages visits on the backend.
type VisitsAPI interface {
	ListVisits(ctx context.Context, start, end time.Time) ([]domain.Visit, error)
	VisitsWithin(ctx context.Context, bounds domain.Bounds, start, end time.Time) ([]domain.Visit, error)
	CreateVisit(ctx context.Context, draft domain.VisitDraft) (*domain.Visit, error)
	UpdateVisit(ctx context.Context, id int64, update domain.VisitUpdate) (*domain.Visit, error)
	DeleteVisit(ctx context.Context, id int64) error
	BulkUpdateStatus(ctx context.Context, ids []int64, status domain.VisitStatus) (*domain.BulkUpdateResult, error)
	MergeVisits(ctx context.Context, ids []int64) (*domain.Visit, error)
}

// PlacesAPI looks up places.
type PlacesAPI interface {
	NearbyPlaces(ctx context.Context, lat, lon, radiusMeters float64) ([]domain.Place, error)
}

// AreasAPI manages areas.
type AreasAPI interface {
	CreateArea(ctx context.Context, draft domain.AreaDraft) (*domain.Area, error)
	DeleteArea(ctx context.Context, id int64) error
}

// HexagonsAPI returns server-side hexagon aggregates.
type HexagonsAPI interface {
	Hexagons(ctx context.Context, q domain.HexQuery) ([]domain.HexBucket, error)
}

// SharingAPI toggles family location sharing.
type SharingAPI interface {
	UpdateLocationSharing(ctx context.Context, enabled bool, duration string) (*domain.SharingState, error)
}

// SettingsAPI reads the user's display settings from the backend.
type SettingsAPI interface {
	GetSettings(ctx context.Context) (*domain.DisplaySettings, error)
}

// Backend bundles every backend capability the engine uses.
type Backend interface {
	PointsAPI
	VisitsAPI
	PlacesAPI
	AreasAPI
	HexagonsAPI
	SharingAPI
	SettingsAPI
}
