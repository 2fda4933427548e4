//go:build !integration

package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAuthenticator_Parse(t *testing.T) {
	a := NewAuthenticator("secret", "https://id.aswaq.example", "authenticated")
	future := time.Now().Add(time.Hour).Unix()

	good := jwt.MapClaims{
		"sub": "user-9", "iss": "https://id.aswaq.example", "aud": "authenticated", "exp": future,
		"user_metadata": map[string]any{"name": "Omar"},
	}

	t.Run("valid token falls back to metadata name", func(t *testing.T) {
		p, err := a.Parse(sign(t, jwt.SigningMethodHS256, []byte("secret"), good))
		require.NoError(t, err)
		assert.Equal(t, "user-9", p.ID)
		assert.Equal(t, "Omar", p.FullName)
	})

	t.Run("rejections", func(t *testing.T) {
		noExp := jwt.MapClaims{"sub": "user-9", "iss": "https://id.aswaq.example", "aud": "authenticated"}
		wrongIss := jwt.MapClaims{"sub": "user-9", "iss": "https://evil", "aud": "authenticated", "exp": future}
		expired := jwt.MapClaims{"sub": "user-9", "iss": "https://id.aswaq.example", "aud": "authenticated", "exp": time.Now().Add(-time.Minute).Unix()}

		for name, tok := range map[string]string{
			"missing exp":  sign(t, jwt.SigningMethodHS256, []byte("secret"), noExp),
			"wrong issuer": sign(t, jwt.SigningMethodHS256, []byte("secret"), wrongIss),
			"expired":      sign(t, jwt.SigningMethodHS256, []byte("secret"), expired),
			"wrong key":    sign(t, jwt.SigningMethodHS256, []byte("other"), good),
			"wrong alg":    sign(t, jwt.SigningMethodHS512, []byte("secret"), good),
			"garbage":      "not.a.jwt",
		} {
			_, err := a.Parse(tok)
			assert.Error(t, err, name)
		}
	})
}
