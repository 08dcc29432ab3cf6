package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/gateway"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Identity tokens for development",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an identity token with the configured jwt secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			auth := cfg.Gateway.Auth
			if auth.JWTSecret == "" {
				return errors.New("gateway.auth.jwtSecret is not set")
			}
			token, err := gateway.IssueJWT([]byte(auth.JWTSecret), auth.Issuer, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "subject user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
