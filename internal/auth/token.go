// ABOUTME: Client-side JWT inspection for the operator's bearer token
// ABOUTME: Extracts identity and expiry; signature checking is the server's job

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenInfo is what the console learns from its own bearer token. The
// console never holds the signing secret, so none of this is verified;
// it is used for display and early expiry warnings only.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Inspect decodes a JWT without verifying its signature and extracts the
// subject and expiry. Returns ErrExpiredToken when the token is already
// past its exp claim.
func Inspect(tokenString string) (TokenInfo, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TokenInfo{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return TokenInfo{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	info := TokenInfo{Subject: sub}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		if time.Now().After(exp.Time) {
			return info, ErrExpiredToken
		}
	}
	return info, nil
}

// ExpiresWithin reports whether the token runs out inside the window. A
// token without an exp claim never expires from the console's point of view.
func (t TokenInfo) ExpiresWithin(window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(t.ExpiresAt) < window
}
