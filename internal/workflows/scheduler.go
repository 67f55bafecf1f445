package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/locus/internal/core/ports"
)

var _ ports.ExpiryScheduler = (*Scheduler)(nil)

// Scheduler starts sharing expiry workflows on Temporal.
type Scheduler struct {
	client    client.Client
	taskQueue string
	expiries  ports.SharingExpiryRepository
}

// NewScheduler returns a scheduler. expiries may be nil.
func NewScheduler(c client.Client, taskQueue string, expiries ports.SharingExpiryRepository) *Scheduler {
	return &Scheduler{client: c, taskQueue: taskQueue, expiries: expiries}
}

// ScheduleSharingExpiry replaces any pending expiry with one firing at expiresAt.
func (s *Scheduler) ScheduleSharingExpiry(ctx context.Context, expiresAt time.Time) error {
	err := s.client.TerminateWorkflow(ctx, SharingExpiryWorkflowID, "", "rescheduled")
	var notFound *serviceerror.NotFound
	if err != nil && !errors.As(err, &notFound) {
		slog.Warn("terminate previous sharing expiry", "error", err)
	}

	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        SharingExpiryWorkflowID,
		TaskQueue: s.taskQueue,
	}, SharingExpiryWorkflow, SharingExpiryInput{ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("start sharing expiry: %w", err)
	}
	slog.Info("sharing expiry scheduled", "workflow", run.GetID(), "run", run.GetRunID(), "expires_at", expiresAt)

	if s.expiries != nil {
		if err := s.expiries.Record(ctx, run.GetID(), expiresAt); err != nil {
			slog.Warn("record sharing expiry", "error", err)
		}
	}
	return nil
}
