package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/paxxium/internal/files"
	"github.com/soyeahso/paxxium/internal/gateway"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			srvLog, closer, err := logging.Open(logging.Options{Level: level, Style: cfg.Logging.ConsoleStyle, File: cfg.Logging.File})
			if err != nil {
				return err
			}
			defer closer.Close()

			verifier, err := gateway.NewVerifier(cfg.Gateway.Auth)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hub := gateway.NewHub(srvLog)
			a, err := buildApp(cfg, paths, hub, srvLog)
			if err != nil {
				return err
			}
			defer a.Close()

			uploads, err := files.New(ctx, cfg.Storage, paths.Uploads, srvLog)
			if err != nil {
				return fmt.Errorf("file storage: %w", err)
			}
			var filesDir string
			if local, ok := uploads.(*files.LocalStore); ok {
				filesDir = local.Dir()
			}

			go a.pool.RunSweeper(ctx, time.Minute)

			srv := gateway.New(cfg.Gateway, a.router, verifier, srvLog,
				gateway.WithHub(hub),
				gateway.WithAnalyst(a.analyst),
				gateway.WithKeys(a.keys),
				gateway.WithProfiles(a.profiles),
				gateway.WithFiles(uploads, filesDir),
				gateway.WithHooks(a.hooks),
			)
			srvLog.Info().
				Str("variant", cfg.Agents.Defaults.Variant).
				Strs("models", a.models.List()).
				Str("storage", cfg.Storage.Backend).
				Msg("paxxium starting")
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
