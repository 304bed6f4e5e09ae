package identity

import (
	"context"
	"fmt"

	"coinPusherAPI/internal/types/user"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

const githubProviderID = "github.com"

// FirebaseProvider accepts Firebase Auth ID tokens, typically from the GitHub
// sign-in popup.
type FirebaseProvider struct {
	client *auth.Client
}

func NewFirebaseProvider(ctx context.Context, app *firebase.App) (*FirebaseProvider, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth client: %v", err)
	}
	return &FirebaseProvider{client: client}, nil
}

func (p *FirebaseProvider) Name() string { return "firebase" }

func (p *FirebaseProvider) Authenticate(ctx context.Context, token string) (*user.Identity, error) {
	t, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := &user.Identity{ID: t.UID}
	if name, ok := t.Claims["name"].(string); ok {
		identity.DisplayName = name
	}
	if picture, ok := t.Claims["picture"].(string); ok {
		identity.AvatarURL = picture
	}
	if email, ok := t.Claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}

func (p *FirebaseProvider) Profile(ctx context.Context, id string) (*user.Identity, error) {
	record, err := p.client.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch firebase user: %w", err)
	}

	identity := &user.Identity{ID: id}
	if record.UserInfo != nil {
		identity.DisplayName = record.DisplayName
		identity.Email = record.Email
		identity.AvatarURL = record.PhotoURL
	}
	for _, info := range record.ProviderUserInfo {
		if info == nil || info.ProviderID != githubProviderID {
			continue
		}
		if identity.AvatarURL == "" {
			identity.AvatarURL = info.PhotoURL
		}
		if info.DisplayName != "" {
			identity.Username = info.DisplayName
		}
	}
	identity.Normalize()
	return identity, nil
}
