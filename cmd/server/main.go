package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/locus/internal/adapters/backend"
	"github.com/samirrijal/locus/internal/adapters/frameloop"
	"github.com/samirrijal/locus/internal/adapters/http"
	natsadapter "github.com/samirrijal/locus/internal/adapters/nats"
	"github.com/samirrijal/locus/internal/adapters/postgres"
	"github.com/samirrijal/locus/internal/adapters/valkey"
	"github.com/samirrijal/locus/internal/core/ports"
	"github.com/samirrijal/locus/internal/core/usecases"
	"github.com/samirrijal/locus/internal/pkg/config"
	"github.com/samirrijal/locus/internal/pkg/logging"
	"github.com/samirrijal/locus/internal/pkg/telemetry"
	"github.com/samirrijal/locus/internal/workflows"
)

func main() {
	cfg, err := config.Load("locus-server")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Location-history backend
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

	viewDeps := usecases.MapViewDeps{
		Backend:         api,
		PerPage:         cfg.Engine.PerPage,
		PageConcurrency: cfg.Engine.PageConcurrency,
		NewFrames: func() ports.FrameSource {
			return frameloop.New(cfg.Engine.FrameInterval)
		},
	}
	deps := &http.Dependencies{
		UserKey: cfg.Engine.UserKey,
		HexMode: usecases.HexMode(cfg.Engine.HexMode),
		Backend: api,
	}

	// Database (settings fallback and expiry bookkeeping)
	var settingsRepo ports.SettingsRepository
	var expiryRepo ports.SharingExpiryRepository
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Warn("database unavailable, settings fallback disabled", "error", err)
	} else {
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		go db.ReportPoolStats(ctx, 15*time.Second)
		settingsRepo = postgres.NewSettingsRepo(db)
		expiryRepo = postgres.NewExpiryRepo(db)
		deps.DB = db
	}

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		viewDeps.Cache = cache
		deps.Cache = cache
	}

	// NATS
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		viewDeps.Publisher = pub
		deps.NATS = pub
	}

	// Temporal
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, sharing expiry is in-process only", "error", err)
		} else {
			defer tc.Close()
			viewDeps.Scheduler = workflows.NewScheduler(tc, cfg.Temporal.TaskQueue, expiryRepo)
		}
	}

	registry := usecases.NewMapRegistry(viewDeps)
	deps.Maps = registry
	deps.Settings = usecases.NewSettingsService(api, settingsRepo)

	// Reload open maps when the backend reports new points
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, cfg.NATS.Durable)
	if err != nil {
		slog.Warn("ingest subscriber unavailable", "error", err)
	} else {
		defer sub.Close()
		if err := sub.SubscribePointsIngested(ctx, registry.ReloadRange); err != nil {
			slog.Warn("subscribe points ingested", "error", err)
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // bulk visit and area payloads
		AppName:      "Locus Map Engine",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		ExposeHeaders:    "Link, ETag, X-API-Version",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("map engine starting", "addr", addr, "backend", cfg.Backend.URL)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, closing map views", "signal", sig.String())

	// Stop replays before draining connections so websocket relays end cleanly
	registry.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
