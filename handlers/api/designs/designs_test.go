package designs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"printdesign-server/core"
	"printdesign-server/handlers/auth"
	"printdesign-server/middleware"
	"printdesign-server/stores/memory"
)

const scene = `{"templateId":"shirt","name":"Summer","views":[{"id":"front","width":800,"height":600,"objects":[]}]}`

// failingStore fails every call.
type failingStore struct{}

func (failingStore) List(context.Context, string) ([]*core.Design, error) {
	return nil, fmt.Errorf("database error")
}
func (failingStore) Get(context.Context, string, string) (*core.Design, error) {
	return nil, fmt.Errorf("database error")
}
func (failingStore) Save(context.Context, *core.Design) error { return fmt.Errorf("database error") }
func (failingStore) Delete(context.Context, string, string) error {
	return fmt.Errorf("database error")
}

func newRequest(method, target, designID, userID string, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	if designID != "" {
		rctx.URLParams.Add("designId", designID)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		claims := &auth.AppClaims{}
		claims.Subject = userID
		ctx = context.WithValue(ctx, middleware.ClaimsContextKey, claims)
	}
	return req.WithContext(ctx)
}

func TestSaveGetListDelete(t *testing.T) {
	store := memory.NewStore()

	rec := httptest.NewRecorder()
	HandleSaveDesign(store)(rec, newRequest(http.MethodPut, "/api/v2/designs/d1", "d1", "alice", scene))
	if rec.Code != http.StatusOK {
		t.Fatalf("save: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HandleGetDesign(store)(rec, newRequest(http.MethodGet, "/api/v2/designs/d1", "d1", "alice", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d", rec.Code)
	}
	if rec.Body.String() != scene {
		t.Errorf("get returned %q, want the saved scene", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HandleListDesigns(store)(rec, newRequest(http.MethodGet, "/api/v2/designs", "", "alice", ""))
	var list []core.Design
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Summer" || list[0].TemplateID != "shirt" {
		t.Errorf("unexpected list %+v", list)
	}

	rec = httptest.NewRecorder()
	HandleGetDesign(store)(rec, newRequest(http.MethodGet, "/api/v2/designs/d1", "d1", "bob", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("other user: got %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleDeleteDesign(store)(rec, newRequest(http.MethodDelete, "/api/v2/designs/d1", "d1", "alice", ""))
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleDeleteDesign(store)(rec, newRequest(http.MethodDelete, "/api/v2/designs/d1", "d1", "alice", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", rec.Code)
	}
}

func TestListEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleListDesigns(memory.NewStore())(rec, newRequest(http.MethodGet, "/api/v2/designs", "", "alice", ""))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("got %q, want []", rec.Body.String())
	}
}

func TestSaveRejectsInvalidScene(t *testing.T) {
	tests := map[string]string{
		"not json":     "invalid json",
		"no views":     `{"templateId":"shirt","views":[]}`,
		"unsized view": `{"views":[{"id":"front"}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleSaveDesign(memory.NewStore())(rec, newRequest(http.MethodPut, "/", "d1", "alice", body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400", rec.Code)
			}
		})
	}
}

func TestInvalidKey(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleGetDesign(memory.NewStore())(rec, newRequest(http.MethodGet, "/", "..", "alice", ""))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rec.Code)
	}
}

func TestMissingClaims(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleListDesigns(memory.NewStore())(rec, newRequest(http.MethodGet, "/", "", "", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestStoreErrors(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"list":   HandleListDesigns(failingStore{}),
		"get":    HandleGetDesign(failingStore{}),
		"save":   HandleSaveDesign(failingStore{}),
		"delete": HandleDeleteDesign(failingStore{}),
	}
	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, newRequest(http.MethodPut, "/", "d1", "alice", scene))
			if rec.Code != http.StatusInternalServerError {
				t.Errorf("got %d, want 500", rec.Code)
			}
		})
	}
}
