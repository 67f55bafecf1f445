package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/ports"
)

// SharingActivities holds the activity implementations for the sharing expiry workflow.
type SharingActivities struct {
	Sharing   ports.SharingAPI
	Publisher ports.EventPublisher
	Expiries  ports.SharingExpiryRepository
	Now       func() time.Time
}

func (a *SharingActivities) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// DisableSharing turns location sharing off on the backend.
func (a *SharingActivities) DisableSharing(ctx context.Context) error {
	state, err := a.Sharing.UpdateLocationSharing(ctx, false, "")
	if err != nil {
		return fmt.Errorf("disable sharing: %w", err)
	}
	if a.Publisher == nil {
		slog.Info("sharing disabled (no publisher)")
		return nil
	}
	if err := a.Publisher.PublishSharingChanged(ctx, *state); err != nil {
		// The backend already changed; the event is best-effort.
		slog.Warn("publish sharing change failed", "error", err)
	}
	return nil
}

// RecordExpiry marks the workflow's expiry as fired.
func (a *SharingActivities) RecordExpiry(ctx context.Context, workflowID string) error {
	if a.Expiries == nil {
		return nil
	}
	now := a.now()
	err := a.Expiries.MarkDisabled(ctx, workflowID, now)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	// Scheduled before the store was reachable.
	if err := a.Expiries.Record(ctx, workflowID, now); err != nil {
		return err
	}
	return a.Expiries.MarkDisabled(ctx, workflowID, now)
}
