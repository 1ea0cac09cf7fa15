package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret", "dailies")

	token, err := v.Sign("user-1", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := NewTokenVerifier("secret", "dailies")

	expired, err := v.Sign("user-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.Error(t, err, "expired token")

	other, err := NewTokenVerifier("other-secret", "dailies").Sign("user-1", "", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.Error(t, err, "wrong secret")

	foreign, err := NewTokenVerifier("secret", "someone-else").Sign("user-1", "", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.Error(t, err, "wrong issuer")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "dailies"}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.Error(t, err, "alg none")
}

func TestGuestTokens(t *testing.T) {
	g := NewGuestTokens(bcrypt.MinCost)

	token, hash, err := g.Issue()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, token, hash)

	assert.True(t, g.Matches(hash, token))
	assert.False(t, g.Matches(hash, token+"x"))
	assert.False(t, g.Matches("", token))
	assert.False(t, g.Matches(hash, ""))

	other, _, err := g.Issue()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestMiddleware(t *testing.T) {
	v := NewTokenVerifier("secret", "dailies")
	var got Identity
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anonymous", func(t *testing.T) {
		got = Identity{UserID: "stale"}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, Identity{}, got)
	})

	t.Run("bearer and guest token", func(t *testing.T) {
		token, err := v.Sign("user-1", RoleAdmin, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(GuestTokenHeader, "guest-abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, Identity{UserID: "user-1", Role: RoleAdmin, GuestToken: "guest-abc"}, got)
		assert.True(t, got.IsAdmin())
	})

	t.Run("invalid bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nonsense")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid or expired token")
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
