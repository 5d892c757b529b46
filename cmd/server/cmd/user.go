package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/clubsite/server/internal/audit"
	"github.com/clubsite/server/internal/config"
	"github.com/clubsite/server/internal/domain/users"
	"github.com/clubsite/server/internal/email"
	"github.com/clubsite/server/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newUserCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage back office users",
	}
	cmd.AddCommand(newCreateAdminCommand(opts))
	return cmd
}

type createAdminOptions struct {
	username string
	email    string
	password string
}

func newCreateAdminCommand(opts *globalOptions) *cobra.Command {
	admin := &createAdminOptions{}
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an active admin account",
		Long: `Create an active admin account with a password, without sending an
invitation. Use it to recover access when no admin can sign in.

Example:
  server user create-admin --username selin --email selin@example.org --password '...'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return runCreateAdmin(cmd, cfg, admin)
		},
	}
	cmd.Flags().StringVar(&admin.username, "username", "", "admin username")
	cmd.Flags().StringVar(&admin.email, "email", "", "admin email address")
	cmd.Flags().StringVar(&admin.password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runCreateAdmin(cmd *cobra.Command, cfg config.Config, admin *createAdminOptions) error {
	logger := config.NewLogger(cfg.Logging)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	store, err := postgres.NewStore(pool)
	if err != nil {
		return err
	}
	mailer, err := email.NewService(cfg.Email, cfg.Site.Name, logger)
	if err != nil {
		return fmt.Errorf("email service: %w", err)
	}

	service := users.NewService(store.Users(), mailer, audit.NewLoggerWithZerolog(logger), cfg.Server.BaseURL, logger)
	u, err := service.CreateAdmin(ctx, admin.username, admin.email, admin.password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Username, u.ID)
	return nil
}
