package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-tracker/internal/registry"
)

// StatsHandler serves registry totals.
type StatsHandler struct {
	store registry.Reader
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(store registry.Reader) *StatsHandler {
	return &StatsHandler{store: store}
}

// Get returns registry totals.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
