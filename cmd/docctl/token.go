package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docledger/docledger/internal/app"
	"github.com/docledger/docledger/internal/config"
	"github.com/docledger/docledger/internal/revocation"
	"github.com/docledger/docledger/internal/tokens"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint an HMAC access token for a service account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.JWT.Secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTokenTTL
			}
			sub := strings.TrimSpace(args[0])
			raw, err := tokens.GenerateAccessToken([]byte(cfg.JWT.Secret), cfg.JWT.Issuer, tokens.Subject{ID: sub, Roles: roles}, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to embed in the token (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_ACCESS_TOKEN_TTL)")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Reject a bearer token until it would have expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				if a.Redis == nil {
					return errors.New("revocation needs REDIS_HOST")
				}
				if ttl <= 0 {
					ttl = a.Config.JWT.AccessTokenTTL
				}
				if err := revocation.NewList(a.Redis, "").Revoke(cmd.Context(), args[0], ttl); err != nil {
					return fmt.Errorf("revoking token: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "token revoked for %s\n", ttl)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "How long to keep the token on the list (default JWT_ACCESS_TOKEN_TTL)")
	return cmd
}
