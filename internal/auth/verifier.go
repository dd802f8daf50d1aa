// Package auth verifies the bearer credentials minted by the auth service.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt"

	"messaging-service/internal/models"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidIssuer     = errors.New("invalid token issuer")
)

// Identity is the verified caller.
type Identity struct {
	UserID   string
	Username string
}

// Verifier turns a raw credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// AccessClaims is the payload of an access token: sub carries the user id.
type AccessClaims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier builds a verifier. An empty issuer disables the issuer
// check.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingCredential
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Identity{}, ErrInvalidIssuer
	}

	userID, ok := models.ParseID(claims.Subject)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Username: claims.Username}, nil
}

// Sign issues a token for the identity. The service itself never mints
// tokens; this exists for tests and local tooling.
func Sign(secret string, claims AccessClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
