package ports

import (
	"context"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
)

// EventPublisher publishes engine events to a message broker.
type EventPublisher interface {
	PublishVisitEvent(ctx context.Context, op string, visitIDs []int64) error
	PublishPointsDeleted(ctx context.Context, ids []int64, count int) error
	PublishSharingChanged(ctx context.Context, state domain.SharingState) error
}

// IngestSubscriber delivers backend notifications about newly ingested points.
type IngestSubscriber interface {
	SubscribePointsIngested(ctx context.Context, handler func(ctx context.Context, from, to time.Time) error) error
}

// IngestAnnouncer tells subscribers that the backend stored points in [from, to).
type IngestAnnouncer interface {
	AnnounceIngested(ctx context.Context, from, to time.Time, count int) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// Notifier shows non-blocking notices to the user.
type Notifier interface {
	Notify(level domain.NoticeLevel, message string)
}

// FrameID identifies a requested animation frame.
type FrameID uint64

// FrameSource schedules cooperative per-frame callbacks, like a browser's animation frame queue.
// Callbacks run one at a time on the source's own loop.
type FrameSource interface {
	RequestFrame(fn func(now time.Time)) FrameID
	CancelFrame(id FrameID)
}

// SettingsRepository is the local fallback store for display settings.
type SettingsRepository interface {
	Get(ctx context.Context, userKey string) (*domain.DisplaySettings, error)
	Save(ctx context.Context, userKey string, settings domain.DisplaySettings) error
}

// ExpiryScheduler arranges a durable server-side expiry of location sharing.
type ExpiryScheduler interface {
	ScheduleSharingExpiry(ctx context.Context, expiresAt time.Time) error
}

// SharingExpiryRepository records scheduled sharing expiries and when they fired.
type SharingExpiryRepository interface {
	Record(ctx context.Context, workflowID string, expiresAt time.Time) error
	MarkDisabled(ctx context.Context, workflowID string, at time.Time) error
}
