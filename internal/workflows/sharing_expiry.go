package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SharingExpiryWorkflowID is fixed: one user, one pending expiry at a time.
const SharingExpiryWorkflowID = "locus-sharing-expiry"

// SharingExpiryInput is the input for the sharing expiry workflow.
type SharingExpiryInput struct {
	ExpiresAt time.Time
}

// SharingExpiryWorkflow sleeps until the sharing deadline, then turns location sharing
// off on the backend and announces the new state. It is the durable counterpart of the
// in-process expiry timer and survives engine restarts.
func SharingExpiryWorkflow(ctx workflow.Context, input SharingExpiryInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Sharing expiry scheduled", "expiresAt", input.ExpiresAt)

	if wait := input.ExpiresAt.Sub(workflow.Now(ctx)); wait > 0 {
		if err := workflow.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var a *SharingActivities
	if err := workflow.ExecuteActivity(ctx, a.DisableSharing).Get(ctx, nil); err != nil {
		logger.Error("disabling location sharing failed", "error", err)
		return err
	}

	// Bookkeeping only; a failure here must not re-enable anything.
	if err := workflow.ExecuteActivity(ctx, a.RecordExpiry, workflow.GetInfo(ctx).WorkflowExecution.ID).Get(ctx, nil); err != nil {
		logger.Warn("recording expiry failed", "error", err)
	}

	logger.Info("Location sharing expired")
	return nil
}
