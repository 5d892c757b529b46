package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/clubsite/server/internal/config"
	"github.com/clubsite/server/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or roll back the embedded schema migrations.

Examples:
  # Apply all pending migrations, including the job queue tables
  server migrate up

  # Roll back the last migration
  server migrate down --steps 1

  # Show the applied version
  server migrate version`,
	}
	cmd.AddCommand(newMigrateUpCommand(opts), newMigrateDownCommand(opts), newMigrateVersionCommand(opts))
	return cmd
}

func newMigrateUpCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := config.NewLogger(cfg.Logging)

			if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			pool, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.MigrateRiver(ctx, pool, logger); err != nil {
				return err
			}

			version, _, err := postgres.SchemaVersion(cfg.Database.URL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newMigrateDownCommand(opts *globalOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be at least 1")
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := postgres.MigrateDown(cfg.Database.URL, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateVersionCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			version, dirty, err := postgres.SchemaVersion(cfg.Database.URL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %d\n", version)
			if dirty {
				fmt.Fprintln(out, "dirty:   true (a migration failed part way; fix it and force the version)")
			}
			return nil
		},
	}
}
