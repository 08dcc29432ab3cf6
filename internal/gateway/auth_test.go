package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-0123456789")

func TestJWTVerifier(t *testing.T) {
	v := NewJWTVerifier(testSecret, "paxxium")

	token, err := IssueJWT(testSecret, "paxxium", "u1", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Method: "jwt"}, id)
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "paxxium")

	expired, err := IssueJWT(testSecret, "paxxium", "u1", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueJWT([]byte("another-secret"), "paxxium", "u1", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := IssueJWT(testSecret, "elsewhere", "u1", time.Hour)
	require.NoError(t, err)
	noSubject, err := IssueJWT(testSecret, "paxxium", "", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "paxxium"},
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestJWTVerifierAnyIssuer(t *testing.T) {
	token, err := IssueJWT(testSecret, "whoever", "u2", time.Hour)
	require.NoError(t, err)

	id, err := NewJWTVerifier(testSecret, "").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)
}

func TestTokenVerifier(t *testing.T) {
	v := NewTokenVerifier("s3cret", "")

	id, err := v.Verify("s3cret")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "local", Method: "token"}, id)

	_, err = v.Verify("s3cret-longer")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = v.Verify("")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = NewTokenVerifier("", "").Verify("anything")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(config.GatewayAuth{Mode: "jwt", JWTSecret: "x"})
	require.NoError(t, err)
	assert.IsType(t, &JWTVerifier{}, v)

	v, err = NewVerifier(config.GatewayAuth{Mode: "token", Token: "t", UserID: "me"})
	require.NoError(t, err)
	id, err := v.Verify("t")
	require.NoError(t, err)
	assert.Equal(t, "me", id.UserID)

	_, err = NewVerifier(config.GatewayAuth{Mode: "jwt"})
	assert.Error(t, err)
	_, err = NewVerifier(config.GatewayAuth{Mode: "token"})
	assert.Error(t, err)
	_, err = NewVerifier(config.GatewayAuth{Mode: "password"})
	assert.ErrorContains(t, err, "unknown auth mode")
}

func TestAuthorize(t *testing.T) {
	v := NewTokenVerifier("tok", "u1")

	res := Authorize(v, nil)
	assert.False(t, res.OK)
	assert.Equal(t, "no credentials provided", res.Reason)

	res = Authorize(v, &ConnectAuth{Token: "bad"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "token mismatch")

	res = Authorize(v, &ConnectAuth{Token: "tok"})
	assert.True(t, res.OK)
	assert.Equal(t, "u1", res.Identity.UserID)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, bearerToken(r), "header %q", header)
	}
}

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("abc", "abc"))
	assert.False(t, safeEqual("abc", "abd"))
	assert.False(t, safeEqual("abc", "abcd"))
	assert.True(t, safeEqual("", ""))
}
