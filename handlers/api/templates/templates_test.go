package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"printdesign-server/core"
	"printdesign-server/export/printzone"
	"printdesign-server/stores/memory"
)

type brokenStore struct{}

func (brokenStore) GetTemplate(context.Context, string) (*core.Template, error) {
	return nil, fmt.Errorf("database error")
}
func (brokenStore) ListTemplates(context.Context) ([]*core.Template, error) {
	return nil, fmt.Errorf("database error")
}
func (brokenStore) SaveTemplate(context.Context, *core.Template) error { return nil }

func seededStore(t *testing.T) core.TemplateStore {
	t.Helper()
	store := memory.NewStore()
	err := store.SaveTemplate(context.Background(), &core.Template{
		ID:   "shirt",
		Name: "T-Shirt",
		Views: []core.TemplateView{{
			ID:          "front",
			DesignArea:  core.Size{Width: 800, Height: 600},
			PrintAreaPx: core.Rect{X: 50, Y: 25, Width: 700, Height: 550},
			PrintAreaMm: core.Rect{Width: 300, Height: 400},
		}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func router(store core.TemplateStore) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v2/templates", HandleListTemplates(store))
	r.Get("/api/v2/templates/{templateId}", HandleGetTemplate(store))
	r.Get("/api/v2/templates/{templateId}/views/{viewId}", HandleGetTemplateView(store))
	return r
}

func TestGetTemplateView(t *testing.T) {
	srv := httptest.NewServer(router(seededStore(t)))
	defer srv.Close()

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v2/templates", http.StatusOK},
		{"/api/v2/templates/shirt", http.StatusOK},
		{"/api/v2/templates/shirt/views/front", http.StatusOK},
		{"/api/v2/templates/shirt/views/back", http.StatusNotFound},
		{"/api/v2/templates/mug/views/front", http.StatusNotFound},
		{"/api/v2/templates/mug", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("GET %s: got %d, want %d", tt.path, resp.StatusCode, tt.status)
		}
	}
}

func TestViewPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/templates/shirt/views/front", nil)
	router(seededStore(t)).ServeHTTP(rec, req)

	var view core.TemplateView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.PrintAreaPx.Width != 700 || view.DesignArea.Height != 600 {
		t.Errorf("unexpected view %+v", view)
	}
}

// The HTTP template source used by remote pipelines reads this endpoint.
func TestHTTPSourceAgainstEndpoint(t *testing.T) {
	srv := httptest.NewServer(router(seededStore(t)))
	defer srv.Close()

	source := printzone.NewHTTPSource(srv.URL, srv.Client())
	view, err := source.View(context.Background(), "shirt", "front")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.PrintAreaPx.X != 50 {
		t.Errorf("got x %v, want 50", view.PrintAreaPx.X)
	}

	_, err = source.View(context.Background(), "shirt", "sleeve")
	if err == nil {
		t.Fatal("expected not found")
	}
}

func TestStoreError(t *testing.T) {
	for _, path := range []string{"/api/v2/templates", "/api/v2/templates/shirt", "/api/v2/templates/shirt/views/front"} {
		rec := httptest.NewRecorder()
		router(brokenStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("GET %s: got %d, want 500", path, rec.Code)
		}
	}
}
