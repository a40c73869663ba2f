// Command folio runs the session-authentication server and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"folio/cmd/internal/app"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	load := func() (app.Config, error) {
		return app.LoadConfig(configPath)
	}

	cmd := &cobra.Command{
		Use:           "folio",
		Short:         "Session authentication server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return app.Run(cfg)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file; env vars override its values")

	cmd.AddCommand(
		serveCmd(load),
		migrateCmd(load),
		sweepCmd(load),
		createAdminCmd(load),
	)
	return cmd
}

type loader func() (app.Config, error)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return app.Run(cfg)
		},
	}
}

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, ctx, cancel, err := setup(load)
			if err != nil {
				return err
			}
			defer cancel()

			v, err := app.Migrate(ctx, cfg, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

func sweepCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired refresh credentials once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, ctx, cancel, err := setup(load)
			if err != nil {
				return err
			}
			defer cancel()

			n, err := app.SweepOnce(ctx, cfg, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired refresh credentials\n", n)
			return nil
		},
	}
}

func createAdminCmd(load loader) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("FOLIO_ADMIN_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or FOLIO_ADMIN_PASSWORD is required")
			}

			cfg, log, ctx, cancel, err := setup(load)
			if err != nil {
				return err
			}
			defer cancel()

			u, err := app.CreateAdmin(ctx, cfg, log, email, password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (or FOLIO_ADMIN_PASSWORD)")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func setup(load loader) (app.Config, app.Logger, context.Context, context.CancelFunc, error) {
	cfg, err := load()
	if err != nil {
		return app.Config{}, nil, nil, nil, err
	}
	log := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return cfg, log, ctx, cancel, nil
}
