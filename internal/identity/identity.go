// Package identity verifies bearer tokens issued by the sign-in provider and
// resolves them to player identities.
package identity

import (
	"context"
	"errors"

	"coinPusherAPI/internal/types/user"
)

var ErrInvalidToken = errors.New("invalid token")

// Provider verifies tokens and looks up profiles at one identity service.
type Provider interface {
	Name() string
	// Authenticate verifies token and returns at least the identity's ID.
	Authenticate(ctx context.Context, token string) (*user.Identity, error)
	// Profile returns the full descriptive identity for a verified ID.
	Profile(ctx context.Context, id string) (*user.Identity, error)
}
