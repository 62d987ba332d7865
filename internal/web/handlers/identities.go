package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-tracker/internal/registry"
)

// IdentitiesHandler serves the identity catalog for the labeling UI.
type IdentitiesHandler struct {
	store registry.Writer
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(store registry.Writer) *IdentitiesHandler {
	return &IdentitiesHandler{store: store}
}

// List returns all identities in creation order. An optional ?label=
// query filters by normalized label match.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		identities []registry.Identity
		err        error
	)
	if label := r.URL.Query().Get("label"); label != "" {
		identities, err = h.store.FindByLabel(r.Context(), label)
	} else {
		identities, err = h.store.List(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if identities == nil {
		identities = []registry.Identity{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"identities": identities})
}

// Get returns one identity by ID.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	identity, err := h.store.Get(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, identity)
}

// SetLabelRequest is the PUT /identities/{id}/label body.
type SetLabelRequest struct {
	Label string `json:"label"`
}

// SetLabel attaches a human label to an identity.
func (h *IdentitiesHandler) SetLabel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		respondError(w, http.StatusBadRequest, "label is required")
		return
	}

	err := h.store.SetLabel(r.Context(), id, req.Label)
	if errors.Is(err, registry.ErrNotFound) {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "label": req.Label})
}
