package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samirrijal/locus/internal/adapters/backend"
	natsadapter "github.com/samirrijal/locus/internal/adapters/nats"
	"github.com/samirrijal/locus/internal/adapters/valkey"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/core/usecases"
	"github.com/samirrijal/locus/internal/pkg/config"
	"github.com/samirrijal/locus/internal/pkg/logging"
)

// watcher polls a backend that does not publish ingest notifications and publishes
// them on its behalf, so open map views reload when new points arrive.
func main() {
	cfg, err := config.Load("locus-watcher")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Watcher.Interval <= 0 {
		log.Fatalf("watcher.interval must be positive, got %s", cfg.Watcher.Interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
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

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable, watermark kept in memory", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	watcher := usecases.NewIngestWatcher(api, pub, cache)
	go watcher.Run(ctx, cfg.Watcher.Interval)
	slog.Info("ingest watcher started", "backend", cfg.Backend.URL, "interval", cfg.Watcher.Interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig.String())
	cancel()
}
