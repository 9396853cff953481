package oidc

import (
	"context"
	"errors"

	"github.com/docledger/docledger/pkg/middleware"
)

// Chain tries each verifier in order and accepts the first success. It lets
// Keycloak users and HMAC service tokens share one API.
type Chain []middleware.Verifier

func (c Chain) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	if len(c) == 0 {
		return nil, errors.New("oidc: no verifier configured")
	}
	var errs []error
	for _, v := range c {
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
