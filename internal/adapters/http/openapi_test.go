package http_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/locus/internal/adapters/http"
)

// findOpenAPISpec locates the openapi.yaml file by walking up from the test directory.
func findOpenAPISpec(t *testing.T) string {
	// Start from the current working directory or test file location
	dir, _ := os.Getwd()

	// Look for api/openapi.yaml by going up directories
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

// TestOpenAPISpec validates the OpenAPI specification is valid.
func TestOpenAPISpec(t *testing.T) {
	// Load the spec file
	specPath := findOpenAPISpec(t)
	data, err := os.ReadFile(specPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	// Parse YAML spec
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI spec: %v", err)
	}

	// Validate the spec
	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI spec validation failed: %v", err)
	}

	// Check that key paths exist
	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/maps",
		"/v1/maps/{id}",
		"/v1/maps/{id}/load",
		"/v1/maps/{id}/points",
		"/v1/maps/{id}/days",
		"/v1/maps/{id}/days/current",
		"/v1/maps/{id}/segments",
		"/v1/maps/{id}/timeline/position",
		"/v1/maps/{id}/timeline/cycle",
		"/v1/maps/{id}/replay",
		"/v1/maps/{id}/replay/scrub",
		"/v1/maps/{id}/visits",
		"/v1/maps/{id}/visits/selection",
		"/v1/maps/{id}/visits/bulk_confirm",
		"/v1/maps/{id}/visits/{vid}",
		"/v1/maps/{id}/visits/{vid}/confirm",
		"/v1/maps/{id}/selection",
		"/v1/maps/{id}/selection/delete",
		"/v1/maps/{id}/fog",
		"/v1/maps/{id}/hexagons",
		"/v1/maps/{id}/sharing",
		"/v1/maps/{id}/areas",
		"/graphql",
	}

	for _, path := range expectedPaths {
		if item := spec.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found in spec", path)
		}
	}

	// Verify key schemas exist
	expectedSchemas := []string{
		"MapSummary",
		"LoadResponse",
		"Point",
		"RouteSegment",
		"ReplayState",
		"Visit",
		"BulkStatusResponse",
		"SelectionResponse",
		"Confirmation",
		"SharingResponse",
		"APIError",
		"Pagination",
	}

	for _, schema := range expectedSchemas {
		if spec.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	t.Logf("OpenAPI spec valid: %d paths, %d schemas", len(spec.Paths.Map()), len(spec.Components.Schemas))
}

// TestOpenAPIInfo verifies spec metadata.
func TestOpenAPIInfo(t *testing.T) {
	specPath := findOpenAPISpec(t)
	data, err := os.ReadFile(specPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI spec: %v", err)
	}

	if spec.Info.Title != "Locus Map Engine API" {
		t.Errorf("expected title 'Locus Map Engine API', got %q", spec.Info.Title)
	}

	if spec.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", spec.Info.Version)
	}

	if spec.Info.Description == "" {
		t.Error("expected non-empty description")
	}

	if len(spec.Servers) == 0 {
		t.Error("expected at least one server")
	}

	t.Logf("OpenAPI Info: %s v%s @ %s", spec.Info.Title, spec.Info.Version, spec.Servers[0].URL)
}

var routeParam = regexp.MustCompile(`:(\w+)`)

// TestOpenAPICoversRoutes checks that every registered REST route is documented.
func TestOpenAPICoversRoutes(t *testing.T) {
	data, err := os.ReadFile(findOpenAPISpec(t))
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}
	spec, err := (&openapi3.Loader{}).LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI spec: %v", err)
	}

	app := setupApp(makeDeps(&mockBackend{}))
	for _, r := range app.GetRoutes(true) {
		if r.Method == fiber.MethodHead || !strings.HasPrefix(r.Path, "/v1/") && r.Path != "/graphql" {
			continue
		}
		if strings.HasSuffix(r.Path, "/ws") {
			continue
		}
		path := routeParam.ReplaceAllString(r.Path, "{$1}")
		item := spec.Paths.Find(path)
		if item == nil {
			t.Errorf("route %s %s is not documented", r.Method, path)
			continue
		}
		if item.GetOperation(r.Method) == nil {
			t.Errorf("operation %s %s is not documented", r.Method, path)
		}
	}
}

func TestDocs_ServesOpenAPIDocument(t *testing.T) {
	app := setupApp(makeDeps(&mockBackend{}, func(d *handler.Dependencies) {
		d.OpenAPIPath = findOpenAPISpec(t)
	}))

	resp := do(t, app, httptest.NewRequest("GET", "/docs/openapi.yaml", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(string(body), "Locus Map Engine API") {
		t.Error("expected the OpenAPI document")
	}

	resp = do(t, app, httptest.NewRequest("GET", "/docs", nil))
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html, got %q", ct)
	}
}

func TestDocs_MissingDocument(t *testing.T) {
	app := setupApp(makeDeps(&mockBackend{}, func(d *handler.Dependencies) {
		d.OpenAPIPath = filepath.Join(t.TempDir(), "missing.yaml")
	}))

	resp := do(t, app, httptest.NewRequest("GET", "/docs/openapi.yaml", nil))
	expectError(t, resp, 404, "not_found")
}
