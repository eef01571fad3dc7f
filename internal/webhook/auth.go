package webhook

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by authenticators that reject a bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator checks the bearer token of a webhook call.
type Authenticator interface {
	Authenticate(token string) error
}

// BearerPresence accepts any non-empty bearer token.
type BearerPresence struct{}

func (BearerPresence) Authenticate(token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	return nil
}

// StaticToken accepts exactly one shared token.
type StaticToken struct {
	Token string
}

func (s StaticToken) Authenticate(token string) error {
	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Claims are carried by webhook JWTs; Subject is typically the runtime's session key.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Issue signs a token for subject that expires after ttl (no expiry when ttl <= 0).
func (v *JWTVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   "missioncontrol",
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Validate parses and verifies token, returning its claims.
func (v *JWTVerifier) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := parsed.Claims.(*Claims); ok && parsed.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func (v *JWTVerifier) Authenticate(token string) error {
	if len(v.secret) == 0 || token == "" {
		return ErrUnauthorized
	}
	if _, err := v.Validate(token); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// NewAuthenticator picks an authenticator by mode: "" or "bearer", "token", or "jwt".
func NewAuthenticator(mode, token, jwtSecret string) (Authenticator, error) {
	switch mode {
	case "", "bearer":
		return BearerPresence{}, nil
	case "token":
		if token == "" {
			return nil, errors.New("webhook auth mode token requires a token")
		}
		return StaticToken{Token: token}, nil
	case "jwt":
		if jwtSecret == "" {
			return nil, errors.New("webhook auth mode jwt requires a secret")
		}
		return NewJWTVerifier(jwtSecret), nil
	default:
		return nil, fmt.Errorf("unknown webhook auth mode %q", mode)
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
