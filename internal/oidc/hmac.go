package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/docledger/docledger/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

// claimsToken exposes verified JWT claims through middleware.Token.
type claimsToken struct {
	claims jwt.MapClaims
}

func (t *claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HMACVerifier accepts HS256 tokens signed with a shared secret, as minted
// by the tokens package for service accounts.
type HMACVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewHMACVerifier(secret []byte, issuer string) (*HMACVerifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("oidc: HMAC secret must be at least 32 bytes")
	}
	return &HMACVerifier{secret: secret, issuer: issuer, now: time.Now}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	// tokens without an expiry are never accepted
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, errors.New("oidc: token has no expiry")
	}
	return &claimsToken{claims: claims}, nil
}
