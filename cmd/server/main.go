package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/securekit/secure-session-service/internal/app"
	"github.com/securekit/secure-session-service/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "secure-session-service",
		Short:         "Session and credential integrity service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to dotenv file")

	root.AddCommand(newServeCmd(&envFile))
	root.AddCommand(newRotateKeysCmd(&envFile))
	root.AddCommand(newCleanupSessionsCmd(&envFile))
	return root
}

func bootstrap(envFile string) (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and maintenance loops",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newRotateKeysCmd(envFile *string) *cobra.Command {
	var keyContext string
	cmd := &cobra.Command{
		Use:   "rotate-keys",
		Short: "Rotate encryption keys and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*envFile)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if keyContext != "" {
				key, err := a.Keyring.Rotate(cmd.Context(), keyContext)
				if err != nil {
					return err
				}
				logger.Info("key rotated", "key_context", keyContext, "key_id", key.ID)
				return nil
			}
			if err := a.Keyring.RotateAll(cmd.Context()); err != nil {
				return err
			}
			logger.Info("all key contexts rotated")
			return nil
		},
	}
	cmd.Flags().StringVar(&keyContext, "context", "", "rotate a single key context")
	return cmd
}

func newCleanupSessionsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-sessions",
		Short: "Delete expired sessions and revoked tokens, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*envFile)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			removed, err := a.Sessions.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("expired sessions removed", "count", removed)
			return nil
		},
	}
}
