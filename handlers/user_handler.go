package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"coinPusherAPI/internal/identity"
	"coinPusherAPI/internal/session"
	"coinPusherAPI/internal/types/user"
	"coinPusherAPI/middleware"
	"coinPusherAPI/services"
)

type UserHandler struct {
	leaderboardService *services.LeaderboardService
	provider           identity.Provider
	sessions           *session.Manager
}

func NewUserHandler(leaderboardService *services.LeaderboardService, provider identity.Provider, sessions *session.Manager) *UserHandler {
	return &UserHandler{
		leaderboardService: leaderboardService,
		provider:           provider,
		sessions:           sessions,
	}
}

type SessionResponse struct {
	SessionID string     `json:"sessionId"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Created   bool       `json:"created"`
	User      *user.User `json:"user"`
}

// SignIn registers or refreshes the caller's player record and opens a session.
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	caller, ok := middleware.GetIdentity(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	// Tokens usually carry only part of the profile.
	profile, err := h.provider.Profile(ctx, caller.ID)
	if err != nil {
		log.Printf("SignIn: profile lookup for %s failed, using token claims: %v", caller.ID, err)
		profile = caller
	}

	u, created, err := h.leaderboardService.RegisterOrUpdateUser(ctx, profile)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	id := *profile
	id.Normalize()
	sess := h.sessions.SignIn(id)

	respondWithJSON(w, http.StatusOK, SessionResponse{
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt(),
		Created:   created,
		User:      u,
	})
}

func (h *UserHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if !h.sessions.SignOut(userID) {
		respondWithError(w, http.StatusNotFound, "No active session")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	u, err := h.leaderboardService.GetUserProfile(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, u)
}

// GetMyScores returns the caller's best games.
func (h *UserHandler) GetMyScores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	limit, ok := limitParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a number")
		return
	}

	scores, err := h.leaderboardService.GetUserScores(ctx, userID, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, scores)
}
