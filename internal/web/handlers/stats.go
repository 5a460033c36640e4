package handlers

import (
	"log"
	"net/http"

	"github.com/securevote/backend/internal/election"
)

// StatsHandler serves election progress counts.
type StatsHandler struct {
	service *election.Service
}

// NewStatsHandler creates a stats handler.
func NewStatsHandler(service *election.Service) *StatsHandler {
	return &StatsHandler{service: service}
}

// Stats handles GET /api/voter-stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		log.Printf("Failed to get stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
