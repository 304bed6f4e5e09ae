package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"coinPusherAPI/internal/session"
	"coinPusherAPI/internal/types/leaderboard"
	"coinPusherAPI/middleware"
	"coinPusherAPI/services"

	"github.com/gorilla/mux"
)

type LeaderboardHandler struct {
	leaderboardService *services.LeaderboardService
	sessions           *session.Manager
}

func NewLeaderboardHandler(leaderboardService *services.LeaderboardService, sessions *session.Manager) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
		sessions:           sessions,
	}
}

type SubmitScoreRequest struct {
	Score *float64       `json:"score"`
	Extra map[string]any `json:"extra,omitempty"`
}

type SubmitScoreResponse struct {
	ID    string                  `json:"id"`
	Entry *leaderboard.ScoreEntry `json:"entry"`
}

func (h *LeaderboardHandler) GetTopScores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit, ok := limitParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a number")
		return
	}

	scores, err := h.leaderboardService.GetTopScores(ctx, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, scores)
}

func (h *LeaderboardHandler) GetUserScores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit, ok := limitParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a number")
		return
	}

	scores, err := h.leaderboardService.GetUserScores(ctx, mux.Vars(r)["userID"], limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, scores)
}

// SubmitScore records a finished game for the signed-in caller.
func (h *LeaderboardHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req SubmitScoreRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Score == nil {
		respondWithError(w, http.StatusBadRequest, "Field 'score' is required")
		return
	}

	score, err := services.ParseScore(*req.Score)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	entry, err := h.leaderboardService.SubmitForSession(ctx, h.sessions.Active(userID), score, req.Extra)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, SubmitScoreResponse{ID: entry.ID, Entry: entry})
}

// Refresh re-reads the leaderboard for the caller and caches it on their session.
func (h *LeaderboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	view, err := h.leaderboardService.Refresh(ctx, h.sessions.Active(userID))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

// GetView returns the session's cached view, loading it on first use.
// Callers without a session get a fresh top list and no user scores.
func (h *LeaderboardHandler) GetView(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var sess *session.Session
	if userID, ok := middleware.GetUserID(ctx); ok {
		sess = h.sessions.Active(userID)
	}
	if sess == nil {
		view, err := h.leaderboardService.Refresh(ctx, nil)
		if err != nil {
			respondWithServiceError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, view)
		return
	}
	if view := sess.View(); view != nil {
		respondWithJSON(w, http.StatusOK, view)
		return
	}

	view, err := h.leaderboardService.Refresh(ctx, sess)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}
