package identity_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisauth/aegis/pkg/identity"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestParse_OpaqueKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "plain user id",
			raw:  "user1",
		},
		{
			name: "email-like key",
			raw:  "someone@example.com",
		},
		{
			name: "two dots but empty part",
			raw:  "a..b",
		},
		{
			name: "dotted but not a token",
			raw:  "not.a.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			user := identity.Parse(tt.raw)
			assert.Equal(t, tt.raw, user.Key)
			assert.Nil(t, user.Attributes)
		})
	}
}

func TestParse_JWT(t *testing.T) {
	t.Parallel()

	token := signedToken(t, jwt.MapClaims{
		"sub":   "user-42",
		"email": "someone@example.com",
		"org":   "acme",
		"iss":   "https://idp.example.com",
		"exp":   4102444800,
	})

	user := identity.Parse(token)
	assert.Equal(t, "user-42", user.Key)
	assert.Equal(t, map[string]string{
		"email": "someone@example.com",
		"org":   "acme",
	}, user.Attributes)
}

func TestFromToken_NoSubject(t *testing.T) {
	t.Parallel()

	token := signedToken(t, jwt.MapClaims{"email": "someone@example.com"})

	_, err := identity.FromToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrNoSubject)
}

func TestFromToken_Garbage(t *testing.T) {
	t.Parallel()

	_, err := identity.FromToken("xx.yy.zz")
	require.Error(t, err)
}

func TestFromToken_NonStringClaimsSkipped(t *testing.T) {
	t.Parallel()

	token := signedToken(t, jwt.MapClaims{
		"sub":   "user-42",
		"admin": true,
		"level": 3,
	})

	user, err := identity.FromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", user.Key)
	assert.Nil(t, user.Attributes)
}
