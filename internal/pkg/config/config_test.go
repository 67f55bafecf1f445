package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/locus/internal/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("locus-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.PerPage != 1000 || cfg.Engine.PageConcurrency != 4 {
		t.Errorf("unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Engine.FrameInterval != 16*time.Millisecond {
		t.Errorf("expected 16ms frame interval, got %s", cfg.Engine.FrameInterval)
	}
	if cfg.Watcher.Interval != 30*time.Second {
		t.Errorf("expected 30s watcher interval, got %s", cfg.Watcher.Interval)
	}
	if cfg.Telemetry.ServiceName != "locus-test" {
		t.Errorf("expected service name from argument, got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOCUS_BACKEND_URL", "https://history.example.com")
	t.Setenv("LOCUS_ENGINE_HEX_MODE", "dynamic")
	t.Setenv("LOCUS_BACKEND_TIMEOUT", "5s")

	cfg, err := config.Load("locus-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend.URL != "https://history.example.com" {
		t.Errorf("unexpected backend url %q", cfg.Backend.URL)
	}
	if cfg.Engine.HexMode != "dynamic" {
		t.Errorf("unexpected hex mode %q", cfg.Engine.HexMode)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("unexpected timeout %s", cfg.Backend.Timeout)
	}
}

func TestLoad_RejectsBadHexMode(t *testing.T) {
	t.Setenv("LOCUS_ENGINE_HEX_MODE", "sometimes")
	_, err := config.Load("locus-test")
	if err == nil || !strings.Contains(err.Error(), "engine.hex_mode") {
		t.Fatalf("expected hex_mode validation error, got %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &config.Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	for _, want := range []string{"server.port", "backend.url", "engine.per_page", "database.host", "nats.url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
