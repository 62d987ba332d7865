package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-tracker/internal/registry"
	"github.com/kozaktomas/face-tracker/internal/resolver"
)

// newTestRegistry returns an in-memory store for 2D embeddings, which
// keep similarity math in the tests easy to reason about.
func newTestRegistry() *registry.Memory {
	return registry.NewMemory(2)
}

func newTestResolver(store registry.Store) *resolver.Resolver {
	return resolver.New(store, resolver.Config{Dim: 2})
}

// requestWithURLParam builds a request carrying a chi route parameter,
// so handlers can be exercised without mounting the full router.
func requestWithURLParam(t *testing.T, method, target, key, value string, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("status = %d; want %d (body: %s)", recorder.Code, want, recorder.Body.String())
	}
}

func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("parsing response %q: %v", recorder.Body.String(), err)
	}
}
