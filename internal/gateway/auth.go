package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/domain"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"userId"`
	Method string `json:"method"` // "jwt" | "token"
}

// Verifier turns an identity token into an Identity. Failures wrap
// domain.ErrUnauthenticated.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// AuthResult is the outcome of a websocket connect attempt.
type AuthResult struct {
	OK       bool     `json:"ok"`
	Identity Identity `json:"identity"`
	Reason   string   `json:"reason,omitempty"`
}

// Claims are the identity token claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// JWTVerifier checks HS256 tokens issued by the identity provider.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier. An empty issuer accepts any issuer.
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: secret, issuer: issuer}
}

func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("token required: %w", domain.ErrUnauthenticated)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("parse jwt: %v: %w", err, domain.ErrUnauthenticated)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("invalid jwt claims: %w", domain.ErrUnauthenticated)
	}
	return Identity{UserID: claims.Subject, Method: "jwt"}, nil
}

// IssueJWT signs a token for userID. Used by the CLI and tests.
func IssueJWT(secret []byte, issuer, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// TokenVerifier accepts one shared token bound to a single user. It suits
// single-user deployments.
type TokenVerifier struct {
	token  string
	userID string
}

// NewTokenVerifier creates a static token verifier.
func NewTokenVerifier(token, userID string) *TokenVerifier {
	if userID == "" {
		userID = "local"
	}
	return &TokenVerifier{token: token, userID: userID}
}

func (v *TokenVerifier) Verify(token string) (Identity, error) {
	if v.token == "" {
		return Identity{}, fmt.Errorf("server token not configured: %w", domain.ErrUnauthenticated)
	}
	if token == "" {
		return Identity{}, fmt.Errorf("token required: %w", domain.ErrUnauthenticated)
	}
	if !safeEqual(token, v.token) {
		return Identity{}, fmt.Errorf("token mismatch: %w", domain.ErrUnauthenticated)
	}
	return Identity{UserID: v.userID, Method: "token"}, nil
}

// NewVerifier builds the verifier selected by gateway.auth.mode.
func NewVerifier(cfg config.GatewayAuth) (Verifier, error) {
	switch cfg.Mode {
	case "", "jwt":
		if cfg.JWTSecret == "" {
			return nil, errors.New("gateway.auth.jwtSecret is required for jwt mode")
		}
		return NewJWTVerifier([]byte(cfg.JWTSecret), cfg.Issuer), nil
	case "token":
		if cfg.Token == "" {
			return nil, errors.New("gateway.auth.token is required for token mode")
		}
		return NewTokenVerifier(cfg.Token, cfg.UserID), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// Authorize checks websocket connect credentials.
func Authorize(v Verifier, auth *ConnectAuth) AuthResult {
	if auth == nil {
		return AuthResult{Reason: "no credentials provided"}
	}
	id, err := v.Verify(auth.Token)
	if err != nil {
		return AuthResult{Reason: err.Error()}
	}
	return AuthResult{OK: true, Identity: id}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity the auth middleware attached.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// safeEqual compares in constant time without leaking the secret length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
