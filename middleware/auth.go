package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"coinPusherAPI/internal/identity"
	"coinPusherAPI/internal/types/user"
)

type contextKey string

const IdentityKey contextKey = "identity"

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader || token == "" {
		return "", false
	}
	return token, true
}

// AuthMiddleware verifies the bearer token with the configured provider and
// puts the caller's identity on the request context.
func AuthMiddleware(provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization format. Use 'Bearer <token>'")
				return
			}

			id, err := provider.Authenticate(r.Context(), token)
			if err != nil {
				log.Printf("Token verification failed (%s): %v", provider.Name(), err)
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware - allows requests with or without auth
func OptionalAuthMiddleware(provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if id, err := provider.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), IdentityKey, id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the verified caller from context
func GetIdentity(ctx context.Context) (*user.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(*user.Identity)
	return id, ok && id != nil && id.ID != ""
}

// GetUserID extracts the verified caller's ID from context
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return "", false
	}
	return id.ID, true
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
