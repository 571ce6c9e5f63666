package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func TestReadinessFollowsAnnotator(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/ready" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer upstream.Close()

	app := fiber.New()
	app.Get("/health/ready", NewHealth(upstream.URL).ReadinessProbe)

	for _, tt := range []struct {
		upstream int
		want     int
	}{
		{http.StatusOK, http.StatusOK},
		{http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	} {
		status.Store(int32(tt.upstream))
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("upstream %d: status = %d, want %d", tt.upstream, resp.StatusCode, tt.want)
		}
	}
}

func TestSwaggerSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(path, []byte("openapi: 3.0.3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := fiber.New()
	app.Get("/docs/openapi.yaml", SwaggerSpec(path))
	app.Get("/docs/missing.yaml", SwaggerSpec(filepath.Join(t.TempDir(), "missing.yaml")))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "openapi:") {
		t.Errorf("spec = %d %s", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/docs/missing.yaml", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("missing spec status = %d, want 500", resp.StatusCode)
	}
}
