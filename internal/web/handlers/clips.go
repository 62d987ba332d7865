package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kozaktomas/face-tracker/internal/atoms"
	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/registry"
	"github.com/kozaktomas/face-tracker/internal/resolver"
)

// ClipsHandler runs resolution and atom binding for one clip at a time.
type ClipsHandler struct {
	resolver *resolver.Resolver
}

// NewClipsHandler creates a new clips handler.
func NewClipsHandler(r *resolver.Resolver) *ClipsHandler {
	return &ClipsHandler{resolver: r}
}

// ResolveRequest is the POST /clips/resolve body.
type ResolveRequest struct {
	ClipID     string            `json:"clip_id"`
	Detections []faces.Detection `json:"detections"`
}

// Resolve clusters a clip's detections and commits the identity
// assignments to the registry.
func (h *ClipsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ClipID == "" {
		respondError(w, http.StatusBadRequest, "clip_id is required")
		return
	}
	for i := range req.Detections {
		if req.Detections[i].ClipID == "" {
			req.Detections[i].ClipID = req.ClipID
		}
	}

	result, err := h.resolver.ResolveClip(r.Context(), req.ClipID, req.Detections)
	if errors.Is(err, registry.ErrUnavailable) {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// BindRequest is the POST /clips/bind body. Occurrences usually come
// from a previous resolve response's assignments.
type BindRequest struct {
	Atoms       []atoms.Atom       `json:"atoms"`
	Occurrences []atoms.Occurrence `json:"occurrences"`
}

// Bind annotates atoms with the identities visible in each time range.
func (h *ClipsHandler) Bind(w http.ResponseWriter, r *http.Request) {
	var req BindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	bound, err := atoms.Bind(req.Atoms, req.Occurrences)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"atoms": bound})
}
