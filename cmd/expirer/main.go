package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/locus/internal/adapters/backend"
	natsadapter "github.com/samirrijal/locus/internal/adapters/nats"
	"github.com/samirrijal/locus/internal/adapters/postgres"
	"github.com/samirrijal/locus/internal/pkg/config"
	"github.com/samirrijal/locus/internal/pkg/logging"
	"github.com/samirrijal/locus/internal/workflows"
)

func main() {
	cfg, err := config.Load("locus-expirer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	api, err := backend.New(backend.Config{
		BaseURL:           cfg.Backend.URL,
		APIKey:            cfg.Backend.APIKey,
		Timeout:           cfg.Backend.Timeout,
		MaxRetries:        cfg.Backend.MaxRetries,
		RetryBaseDelay:    cfg.Backend.RetryBaseDelay,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	})
	if err != nil {
		log.Fatalf("backend: %v", err)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	expiries := postgres.NewExpiryRepo(db)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	activities := &workflows.SharingActivities{
		Sharing:  api,
		Expiries: expiries,
	}
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, sharing changes will not be announced", "error", err)
	} else {
		defer pub.Close()
		activities.Publisher = pub
	}

	reschedulePending(ctx, c, workflows.NewScheduler(c, cfg.Temporal.TaskQueue, expiries), expiries)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SharingExpiryWorkflow)
	w.RegisterActivity(activities)

	slog.Info("expirer worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// reschedulePending restarts the latest recorded expiry when Temporal has no
// execution for it, e.g. after the namespace was recreated.
func reschedulePending(ctx context.Context, c client.Client, s *workflows.Scheduler, expiries *postgres.ExpiryRepo) {
	pending, err := expiries.Pending(ctx)
	if err != nil {
		slog.Warn("list pending expiries", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	latest := pending[len(pending)-1]

	_, err = c.DescribeWorkflowExecution(ctx, latest.WorkflowID, "")
	var notFound *serviceerror.NotFound
	if !errors.As(err, &notFound) {
		if err != nil {
			slog.Warn("describe sharing expiry", "workflow", latest.WorkflowID, "error", err)
		}
		return
	}

	slog.Info("rescheduling lost sharing expiry", "workflow", latest.WorkflowID, "expires_at", latest.ExpiresAt)
	if err := s.ScheduleSharingExpiry(ctx, latest.ExpiresAt); err != nil {
		slog.Error("reschedule sharing expiry", "error", err)
	}
}
