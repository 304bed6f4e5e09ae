package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevProviderRoundTrip(t *testing.T) {
	p := NewDevProvider("test-secret-key-for-testing-only")
	ctx := context.Background()

	token, err := p.Sign(DevClaims{
		Name:              "Octo Cat",
		PreferredUsername: "octocat",
		Picture:           "https://avatars.example.com/octocat",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_octo",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	id, err := p.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user_octo", id.ID)
	assert.Equal(t, "octocat", id.Username)

	profile, err := p.Profile(ctx, "user_octo")
	require.NoError(t, err)
	assert.Equal(t, "Octo Cat", profile.DisplayName)
	assert.Equal(t, "https://avatars.example.com/octocat", profile.AvatarURL)

	_, err = p.Profile(ctx, "someone_else")
	assert.Error(t, err)
}

func TestDevProviderRejectsBadTokens(t *testing.T) {
	p := NewDevProvider("right-secret")
	ctx := context.Background()

	expired, err := p.Sign(DevClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user_a",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)

	noSubject, err := p.Sign(DevClaims{Name: "nobody"})
	require.NoError(t, err)

	wrongKey, err := NewDevProvider("wrong-secret").Sign(DevClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user_a"}})
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user_a"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":    expired,
		"no subject": noSubject,
		"wrong key":  wrongKey,
		"alg none":   unsigned,
		"garbage":    "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Authenticate(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
