package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/file-vault-backend/internal/auth"
)

type tokenOutput struct {
	OwnerID   string `json:"owner_id" yaml:"owner_id"`
	Token     string `json:"token" yaml:"token"`
	ExpiresAt string `json:"expires_at" yaml:"expires_at"`
}

func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token helpers for local testing",
	}

	var owner string
	var ttl time.Duration

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an access token for an owner with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			config, log, err := loadEnv()
			if err != nil {
				return err
			}
			defer log.Sync()

			m := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)
			token, err := m.GenerateAccessToken(owner, ttl)
			if err != nil {
				return err
			}

			out := tokenOutput{
				OwnerID:   owner,
				Token:     token,
				ExpiresAt: time.Now().Add(ttl).UTC().Format(time.RFC3339),
			}
			return printResult(cmd.OutOrStdout(), outputFormat, out, []row{
				{"owner", out.OwnerID},
				{"expires_at", out.ExpiresAt},
				{"token", out.Token},
			})
		},
	}
	issueCmd.Flags().StringVar(&owner, "owner", "", "owner id placed in the user_id and sub claims")
	issueCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	tokenCmd.AddCommand(issueCmd)

	return tokenCmd
}
