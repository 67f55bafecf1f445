//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	handler "github.com/samirrijal/locus/internal/adapters/http"
	"github.com/samirrijal/locus/internal/adapters/postgres"
	"github.com/samirrijal/locus/internal/core/domain"
	"github.com/samirrijal/locus/internal/core/usecases"
	"github.com/samirrijal/locus/internal/pkg/config"
)

// setupTestDB connects to the test database and applies the migrations.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("locus-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// setupTestDeps wires the settings fallback store to a real database.
func setupTestDeps(t *testing.T, db *postgres.DB, backend *mockBackend, userKey string) *handler.Dependencies {
	return makeDeps(backend, func(d *handler.Dependencies) {
		d.Settings = usecases.NewSettingsService(backend, postgres.NewSettingsRepo(db))
		d.UserKey = userKey
		d.DB = db
	})
}

// TestCreateMap_Integration_SettingsFallback opens a map while the backend is down and
// expects the settings saved on an earlier successful load.
func TestCreateMap_Integration_SettingsFallback(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewSettingsRepo(db)
	key := "it-http-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = repo.Delete(context.Background(), key) })

	backendUp := true
	backend := &mockBackend{
		getSettingsFn: func(ctx context.Context) (*domain.DisplaySettings, error) {
			if !backendUp {
				return nil, errors.New("connection refused")
			}
			s := domain.DefaultDisplaySettings()
			s.Timezone = "Europe/Berlin"
			s.RouteDistanceThresholdM = 300
			return &s, nil
		},
	}
	app := setupApp(setupTestDeps(t, db, backend, key))

	// First open stores the remote settings locally.
	resp := do(t, app, jsonRequest("POST", "/v1/maps", nil))
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	backendUp = false
	resp = do(t, app, jsonRequest("POST", "/v1/maps", nil))
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var m handler.MapSummary
	decode(t, resp, &m)
	if m.Settings.Timezone != "Europe/Berlin" {
		t.Errorf("expected fallback timezone Europe/Berlin, got %q", m.Settings.Timezone)
	}
	if m.Settings.RouteDistanceThresholdM != 300 {
		t.Errorf("expected fallback threshold 300, got %v", m.Settings.RouteDistanceThresholdM)
	}
}

// TestReady_Integration_WithRealDB checks that the readiness probe pings the database.
func TestReady_Integration_WithRealDB(t *testing.T) {
	db := setupTestDB(t)
	app := setupApp(setupTestDeps(t, db, &mockBackend{}, "it-ready"))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Checks["database"] != "ok" {
		t.Errorf("expected database ok, got %q", result.Checks["database"])
	}
}
