// Package tokens mints HMAC-signed access tokens for service accounts and
// local development. Interactive users authenticate through Keycloak instead.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Subject describes who a token is issued to.
type Subject struct {
	ID    string
	Roles []string
}

// GenerateAccessToken creates a signed JWT access token carrying the subject
// and its roles in the same "roles" claim the HTTP layer reads.
func GenerateAccessToken(secret []byte, issuer string, s Subject, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("tokens: empty signing secret")
	}
	if s.ID == "" {
		return "", errors.New("tokens: subject required")
	}
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := jwt.MapClaims{
		"sub":   s.ID,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(secret)
}
