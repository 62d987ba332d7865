package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/registry"
)

func seedIdentity(t *testing.T, store *registry.Memory, centroid []float32) *registry.Identity {
	t.Helper()
	identity, err := store.Create(context.Background(), centroid, faces.Detection{
		ClipID:     "clip-1",
		Timestamp:  1,
		BBox:       faces.BBox{X: 0.1, Y: 0.1, W: 0.2, H: 0.2},
		Embedding:  centroid,
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("seeding identity: %v", err)
	}
	return identity
}

func TestIdentitiesHandler_List(t *testing.T) {
	store := newTestRegistry()
	seedIdentity(t, store, []float32{1, 0})
	seedIdentity(t, store, []float32{0, 1})
	handler := NewIdentitiesHandler(store)

	req := httptest.NewRequest("GET", "/api/v1/identities", nil)
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Identities []registry.Identity `json:"identities"`
	}
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Identities) != 2 {
		t.Errorf("expected 2 identities, got %d", len(resp.Identities))
	}
}

func TestIdentitiesHandler_List_Empty(t *testing.T) {
	handler := NewIdentitiesHandler(newTestRegistry())

	req := httptest.NewRequest("GET", "/api/v1/identities", nil)
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if body := recorder.Body.String(); !strings.Contains(body, `"identities":[]`) {
		t.Errorf("empty list should serialize as an array, got %s", body)
	}
}

func TestIdentitiesHandler_List_LabelFilter(t *testing.T) {
	store := newTestRegistry()
	labeled := seedIdentity(t, store, []float32{1, 0})
	seedIdentity(t, store, []float32{0, 1})
	if err := store.SetLabel(context.Background(), labeled.ID, "Jan Novák"); err != nil {
		t.Fatalf("SetLabel failed: %v", err)
	}
	handler := NewIdentitiesHandler(store)

	req := httptest.NewRequest("GET", "/api/v1/identities?label=jan-novak", nil)
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Identities []registry.Identity `json:"identities"`
	}
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Identities) != 1 || resp.Identities[0].ID != labeled.ID {
		t.Errorf("label filter returned %+v", resp.Identities)
	}
}

func TestIdentitiesHandler_Get(t *testing.T) {
	store := newTestRegistry()
	identity := seedIdentity(t, store, []float32{1, 0})
	handler := NewIdentitiesHandler(store)

	req := requestWithURLParam(t, "GET", "/api/v1/identities/"+identity.ID, "id", identity.ID, "")
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var got registry.Identity
	parseJSONResponse(t, recorder, &got)
	if got.ID != identity.ID || got.Count != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestIdentitiesHandler_Get_NotFound(t *testing.T) {
	handler := NewIdentitiesHandler(newTestRegistry())

	req := requestWithURLParam(t, "GET", "/api/v1/identities/missing", "id", "missing", "")
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestIdentitiesHandler_SetLabel(t *testing.T) {
	store := newTestRegistry()
	identity := seedIdentity(t, store, []float32{1, 0})
	handler := NewIdentitiesHandler(store)

	req := requestWithURLParam(t, "PUT", "/api/v1/identities/"+identity.ID+"/label",
		"id", identity.ID, `{"label": "Jan Novák"}`)
	recorder := httptest.NewRecorder()
	handler.SetLabel(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	got, err := store.Get(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Label != "Jan Novák" {
		t.Errorf("label = %q; want Jan Novák", got.Label)
	}
}

func TestIdentitiesHandler_SetLabel_Invalid(t *testing.T) {
	store := newTestRegistry()
	identity := seedIdentity(t, store, []float32{1, 0})
	handler := NewIdentitiesHandler(store)

	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"bad json", identity.ID, `{not json`, http.StatusBadRequest},
		{"empty label", identity.ID, `{"label": "  "}`, http.StatusBadRequest},
		{"missing identity", "missing", `{"label": "x"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithURLParam(t, "PUT", "/api/v1/identities/"+tt.id+"/label", "id", tt.id, tt.body)
			recorder := httptest.NewRecorder()
			handler.SetLabel(recorder, req)
			assertStatusCode(t, recorder, tt.want)
		})
	}
}
