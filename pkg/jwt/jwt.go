// Package jwt inspects bearer tokens on the client side.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the exp claim without verifying the signature. The client
// never holds the signing secret; it only needs to know whether sending the
// token is pointless. ok is false for opaque (non-JWT) tokens or tokens
// without an exp claim.
func ExpiresAt(tokenString string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether tokenString is a JWT whose exp lies before now.
// Opaque tokens are never considered expired.
func Expired(tokenString string, now time.Time) bool {
	exp, ok := ExpiresAt(tokenString)
	return ok && !now.Before(exp)
}
