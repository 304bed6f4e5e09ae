package identity

import (
	"context"
	"fmt"
	"strings"

	"coinPusherAPI/internal/types/user"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	clerkuser "github.com/clerk/clerk-sdk-go/v2/user"
)

type ClerkProvider struct{}

// NewClerkProvider sets the process-wide Clerk key used by the SDK.
func NewClerkProvider(secretKey string) *ClerkProvider {
	clerk.SetKey(secretKey)
	return &ClerkProvider{}
}

func (p *ClerkProvider) Name() string { return "clerk" }

func (p *ClerkProvider) Authenticate(ctx context.Context, token string) (*user.Identity, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{
		Token: token,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &user.Identity{ID: claims.Subject}, nil
}

func (p *ClerkProvider) Profile(ctx context.Context, id string) (*user.Identity, error) {
	cu, err := clerkuser.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clerk user: %w", err)
	}

	identity := &user.Identity{
		ID:          cu.ID,
		Username:    deref(cu.Username),
		DisplayName: strings.TrimSpace(deref(cu.FirstName) + " " + deref(cu.LastName)),
		AvatarURL:   deref(cu.ImageURL),
	}
	for _, e := range cu.EmailAddresses {
		if e == nil {
			continue
		}
		if identity.Email == "" || (cu.PrimaryEmailAddressID != nil && e.ID == *cu.PrimaryEmailAddressID) {
			identity.Email = e.EmailAddress
		}
	}
	identity.Normalize()
	return identity, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
