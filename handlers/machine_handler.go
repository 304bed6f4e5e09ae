package handlers

import (
	"context"
	"net/http"
	"time"

	"coinPusherAPI/internal/types/machine"
	"coinPusherAPI/services"
)

func GetMachines(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, machine.All())
}

// HealthHandler reports whether the store answers.
type HealthHandler struct {
	leaderboardService *services.LeaderboardService
}

func NewHealthHandler(leaderboardService *services.LeaderboardService) *HealthHandler {
	return &HealthHandler{leaderboardService: leaderboardService}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.leaderboardService.Ping(ctx); err != nil {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}
