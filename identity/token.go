package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager verifies the bearer tokens minted by the auth collaborator.
// Issue exists for that collaborator and for tests; this service never mints
// tokens on behalf of a request.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: secret, ttl: ttl}
}

type tokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (tm *TokenManager) Issue(principal Principal) (string, error) {
	now := time.Now()

	claims := tokenClaims{
		Roles: principal.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return token, nil
}

// Verify parses and validates a bearer token. Any failure is reported as
// UnauthenticatedError; the caller does not need to distinguish a malformed
// token from an expired one.
func (tm *TokenManager) Verify(tokenString string) (Principal, error) {
	var claims tokenClaims

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}

		return tm.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, &UnauthenticatedError{Reason: "token expired"}
		}

		return Principal{}, &UnauthenticatedError{Reason: "invalid token"}
	}

	if claims.Subject == "" {
		return Principal{}, &UnauthenticatedError{Reason: "token has no subject"}
	}

	return Principal{ID: claims.Subject, Roles: claims.Roles}, nil
}
