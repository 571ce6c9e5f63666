package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/mapper"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/repository"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/service"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.OpenSQLite(filepath.Join(dir, "annotator.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repository.New(db)
	if err := repo.Init(context.Background(), filepath.Join("..", "..", "..", "migrations", "001_init_sessions.sql")); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sessions := service.NewSessionManager(repo, service.NewFileStorage(filepath.Join(dir, "sessions")), service.Options{})
	app := fiber.New(fiber.Config{JSONEncoder: models.CompactJSON})
	Register(app, NewSessionHandler(sessions, mapper.NewRenderer()), NewHealthHandler(repo))
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

// createCropped создает сессию с сеткой 6x10 и возвращает ее id.
func createCropped(t *testing.T, app *fiber.App, floor string) string {
	t.Helper()

	status, body := do(t, app, http.MethodPost, "/sessions",
		`{"pdf_name":"plan.pdf","page_width":595,"page_height":842,"floor":"`+floor+`"}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d: %s", status, body)
	}
	s := decode[models.Session](t, body)

	status, body = do(t, app, http.MethodPut, "/sessions/"+s.ID+"/crop", `{"x":40,"y":60,"width":158,"height":263}`)
	if status != http.StatusOK {
		t.Fatalf("crop status = %d: %s", status, body)
	}
	return s.ID
}

func TestAnnotationFlow(t *testing.T) {
	app := newTestApp(t)
	id := createCropped(t, app, "1F")

	status, body := do(t, app, http.MethodGet, "/sessions/"+id, "")
	if status != http.StatusOK {
		t.Fatalf("get status = %d: %s", status, body)
	}
	if s := decode[models.Session](t, body); s.Grid != (models.GridDimensions{WidthGrids: 6, HeightGrids: 10}) {
		t.Errorf("grid = %+v, want 6x10", s.Grid)
	}

	status, body = do(t, app, http.MethodPost, "/sessions/"+id+"/transform",
		`{"canvas_width":600,"canvas_height":1000,"x":349,"y":551,"snap":true}`)
	if status != http.StatusOK {
		t.Fatalf("transform status = %d: %s", status, body)
	}
	if p := decode[models.GridPoint](t, body); p != (models.GridPoint{X: 3, Y: 6}) {
		t.Errorf("snapped point = %+v, want (3,6)", p)
	}

	// до разметки экспорт запрещен
	status, body = do(t, app, http.MethodPost, "/sessions/"+id+"/export", "")
	if status != http.StatusConflict || !strings.Contains(string(body), "requires at least one entrance element") {
		t.Errorf("export before annotation = %d: %s", status, body)
	}

	status, body = do(t, app, http.MethodPost, "/sessions/"+id+"/elements",
		`{"type":"entrance","grid_x":0,"grid_y":9,"grid_width":1,"grid_height":1}`)
	if status != http.StatusCreated {
		t.Fatalf("entrance status = %d: %s", status, body)
	}
	status, body = do(t, app, http.MethodPost, "/sessions/"+id+"/elements",
		`{"type":"stair","canvas_width":600,"canvas_height":1000,"canvas_x1":200,"canvas_y1":200,"canvas_x2":300,"canvas_y2":400}`)
	if status != http.StatusCreated {
		t.Fatalf("stair status = %d: %s", status, body)
	}
	status, body = do(t, app, http.MethodPost, "/sessions/"+id+"/elements",
		`{"type":"wall","line_start":{"x":0,"y":0},"line_end":{"x":6,"y":0}}`)
	if status != http.StatusCreated {
		t.Fatalf("wall status = %d: %s", status, body)
	}
	if s := decode[models.Session](t, body); len(s.Elements) != 3 {
		t.Errorf("elements = %d, want 3", len(s.Elements))
	}

	status, body = do(t, app, http.MethodGet, "/sessions/"+id+"/validate", "")
	if status != http.StatusOK {
		t.Fatalf("validate status = %d: %s", status, body)
	}
	if v := decode[models.ValidationResult](t, body); !v.Passed {
		t.Errorf("validation = %+v", v)
	}

	status, body = do(t, app, http.MethodGet, "/sessions/"+id+"/preview.svg?canvas_width=600&canvas_height=1000", "")
	if status != http.StatusOK || !bytes.Contains(body, []byte(`data-type="stair"`)) {
		t.Errorf("preview = %d: %s", status, body)
	}

	status, body = do(t, app, http.MethodPost, "/sessions/"+id+"/export", "")
	if status != http.StatusCreated {
		t.Fatalf("export status = %d: %s", status, body)
	}

	status, body = do(t, app, http.MethodGet, "/sessions/"+id+"/export/metadata", "")
	if status != http.StatusOK {
		t.Fatalf("metadata status = %d: %s", status, body)
	}
	meta := decode[models.MetadataExport](t, body)
	if meta.ScaleInfo.GridPx != 107.5 || meta.ScaleInfo.DrawingScale != "1:100" {
		t.Errorf("scale info = %+v", meta.ScaleInfo)
	}
}

func TestElementNameKeepsMarkup(t *testing.T) {
	app := newTestApp(t)
	id := createCropped(t, app, "1F")

	status, body := do(t, app, http.MethodPost, "/sessions/"+id+"/elements",
		`{"type":"entrance","grid_x":0,"grid_y":9,"grid_width":1,"grid_height":1,"name":"door <A&B>"}`)
	if status != http.StatusCreated {
		t.Fatalf("entrance status = %d: %s", status, body)
	}
	if !bytes.Contains(body, []byte(`"name":"door <A&B>"`)) || bytes.Contains(body, []byte(`\u00`)) {
		t.Errorf("response escaped the name: %s", body)
	}
}

func TestEditingErrors(t *testing.T) {
	app := newTestApp(t)
	id := createCropped(t, app, "2F")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown session", http.MethodGet, "/sessions/nope", "", http.StatusNotFound},
		{"invalid json", http.MethodPut, "/sessions/" + id + "/crop", `{"x":`, http.StatusBadRequest},
		{"crop outside page", http.MethodPut, "/sessions/" + id + "/crop", `{"x":500,"y":0,"width":158,"height":263}`, http.StatusUnprocessableEntity},
		{"zero scale", http.MethodPut, "/sessions/" + id + "/scale", `{"scale":0}`, http.StatusBadRequest},
		{"unknown type", http.MethodPost, "/sessions/" + id + "/elements", `{"type":"door","grid_x":0,"grid_y":0,"grid_width":1,"grid_height":1}`, http.StatusBadRequest},
		{"missing grid fields", http.MethodPost, "/sessions/" + id + "/elements", `{"type":"stair","grid_x":0}`, http.StatusBadRequest},
		{"zero length wall", http.MethodPost, "/sessions/" + id + "/elements", `{"type":"wall","line_start":{"x":1,"y":1},"line_end":{"x":1,"y":1}}`, http.StatusUnprocessableEntity},
		{"degenerate canvas", http.MethodPost, "/sessions/" + id + "/elements", `{"type":"stair","canvas_width":0,"canvas_height":1000,"canvas_x2":10,"canvas_y2":10}`, http.StatusUnprocessableEntity},
		{"undo empty", http.MethodPost, "/sessions/" + id + "/undo", "", http.StatusConflict},
		{"element index", http.MethodDelete, "/sessions/" + id + "/elements/3", "", http.StatusNotFound},
		{"bad element index", http.MethodDelete, "/sessions/" + id + "/elements/x", "", http.StatusBadRequest},
		{"not exported", http.MethodGet, "/sessions/" + id + "/export/elements", "", http.StatusNotFound},
		{"bad export kind", http.MethodGet, "/sessions/" + id + "/export/summary", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Errorf("status = %d, want %d: %s", status, tt.want, body)
			}
			if status >= 400 && !bytes.Contains(body, []byte(`"error"`)) {
				t.Errorf("error body = %s", body)
			}
		})
	}
}

func TestSecondFloorRules(t *testing.T) {
	app := newTestApp(t)
	id := createCropped(t, app, "2F")

	do(t, app, http.MethodPost, "/sessions/"+id+"/elements", `{"type":"stair","grid_x":1,"grid_y":1,"grid_width":1,"grid_height":2}`)
	do(t, app, http.MethodPost, "/sessions/"+id+"/elements", `{"type":"entrance","grid_x":0,"grid_y":9,"grid_width":1,"grid_height":1}`)

	_, body := do(t, app, http.MethodGet, "/sessions/"+id+"/validate", "")
	v := decode[models.ValidationResult](t, body)
	if v.Passed || v.Message != "❌ 2F should not have entrance" {
		t.Errorf("validation = %+v", v)
	}

	status, body := do(t, app, http.MethodPost, "/sessions/"+id+"/undo", "")
	if status != http.StatusOK {
		t.Fatalf("undo status = %d: %s", status, body)
	}
	_, body = do(t, app, http.MethodGet, "/sessions/"+id+"/validate", "")
	if v := decode[models.ValidationResult](t, body); !v.Passed {
		t.Errorf("validation after undo = %+v", v)
	}
}

func TestHealthAndList(t *testing.T) {
	app := newTestApp(t)
	id := createCropped(t, app, "1F")

	if status, body := do(t, app, http.MethodGet, "/health/ready", ""); status != http.StatusOK {
		t.Errorf("ready = %d: %s", status, body)
	}

	_, body := do(t, app, http.MethodGet, "/sessions", "")
	list := decode[struct {
		Sessions []string `json:"sessions"`
	}](t, body)
	if len(list.Sessions) != 1 || list.Sessions[0] != id {
		t.Errorf("sessions = %v, want [%s]", list.Sessions, id)
	}

	if status, _ := do(t, app, http.MethodDelete, "/sessions/"+id, ""); status != http.StatusNoContent {
		t.Errorf("delete status = %d", status)
	}
	if status, _ := do(t, app, http.MethodGet, "/sessions/"+id, ""); status != http.StatusNotFound {
		t.Errorf("get after delete status = %d", status)
	}
}
