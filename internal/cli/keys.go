package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage per-user provider keys",
	}

	cmd.AddCommand(newKeysSetCmd())
	cmd.AddCommand(newKeysShowCmd())
	return cmd
}

func newKeysSetCmd() *cobra.Command {
	var userID, openaiKey, serpKey string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Encrypt and store a user's provider and search keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(openaiKey) == "" {
				return errors.New("--openai is required")
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.keys.SetKeys(cmd.Context(), userID, openaiKey, serpKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored keys for %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "user id")
	cmd.Flags().StringVar(&openaiKey, "openai", "", "model provider API key")
	cmd.Flags().StringVar(&serpKey, "serp", "", "search API key (enables the search capability)")
	return cmd
}

func newKeysShowCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show which keys a user has, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			plain, err := a.keys.Resolve(cmd.Context(), userID)
			if errors.Is(err, domain.ErrUnauthenticated) {
				fmt.Fprintf(cmd.OutOrStdout(), "No keys stored for %s\n", userID)
				return nil
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "provider: %s\n", mask(plain.Provider))
			fmt.Fprintf(out, "search:   %s\n", mask(plain.Search))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "user id")
	return cmd
}

// mask keeps the last four characters.
func mask(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
