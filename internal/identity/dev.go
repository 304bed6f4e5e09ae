package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"coinPusherAPI/internal/types/user"

	"github.com/golang-jwt/jwt/v5"
)

// DevClaims are the claims a locally minted development token carries.
type DevClaims struct {
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Picture           string `json:"picture,omitempty"`
	Email             string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// DevProvider verifies HS256 tokens signed with a shared secret. Profiles are
// whatever the most recent token for a subject claimed.
type DevProvider struct {
	secret []byte

	mu       sync.RWMutex
	profiles map[string]user.Identity
}

func NewDevProvider(secret string) *DevProvider {
	return &DevProvider{
		secret:   []byte(secret),
		profiles: make(map[string]user.Identity),
	}
}

func (p *DevProvider) Name() string { return "dev" }

func (p *DevProvider) Authenticate(ctx context.Context, token string) (*user.Identity, error) {
	claims := &DevClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	identity := user.Identity{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Username:    claims.PreferredUsername,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
	}
	p.mu.Lock()
	p.profiles[identity.ID] = identity
	p.mu.Unlock()

	return &identity, nil
}

func (p *DevProvider) Profile(ctx context.Context, id string) (*user.Identity, error) {
	p.mu.RLock()
	identity, ok := p.profiles[id]
	p.mu.RUnlock()
	if !ok {
		return nil, errors.New("no token seen for subject")
	}
	identity.Normalize()
	return &identity, nil
}

// Sign mints a development token; used by local tooling and tests.
func (p *DevProvider) Sign(claims DevClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
