package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and manage messages without the server",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageHistoryCmd())
	cmd.AddCommand(newMessageClearCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		userID  string
		chatID  string
		model   string
		image   string
		profile bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			msg := domain.InboundMessage{
				UserID:   userID,
				Author:   domain.AuthorUser,
				Content:  strings.Join(args, " "),
				ImageURL: image,
				Settings: domain.ChatSettings{ChatID: chatID, AgentModel: model, UseProfileData: profile},
			}
			reply, err := a.router.Handle(ctx, msg, func(evt domain.StreamEvent) error {
				_, err := fmt.Fprint(out, evt.Content)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[model=%s fragments=%d rounds=%d duration=%s]\n",
					reply.Model, reply.Fragments, reply.Rounds, reply.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "user id")
	cmd.Flags().StringVar(&chatID, "chat", "cli", "conversation id")
	cmd.Flags().StringVar(&model, "model", "", "model label, e.g. GPT-4")
	cmd.Flags().StringVar(&image, "image", "", "image URL to attach")
	cmd.Flags().BoolVar(&profile, "profile", false, "include the user's profile analysis")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print model and timing to stderr")

	return cmd
}

func newMessageHistoryCmd() *cobra.Command {
	var userID, chatID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.router.History(cmd.Context(), userID, chatID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range conv.Messages {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Author, m.Content)
				if m.ImageURL != "" {
					fmt.Fprintf(out, "    image: %s\n", m.ImageURL)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "user id")
	cmd.Flags().StringVar(&chatID, "chat", "cli", "conversation id")
	return cmd
}

func newMessageClearCmd() *cobra.Command {
	var userID, chatID string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a conversation's messages and memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.router.Clear(cmd.Context(), userID, chatID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Memory Cleared (%d messages)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "user id")
	cmd.Flags().StringVar(&chatID, "chat", "cli", "conversation id")
	return cmd
}
