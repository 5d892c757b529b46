package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/clubsite/server/internal/config"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	serve := &serveOptions{}

	root := &cobra.Command{
		Use:   "server",
		Short: "Club website server - public site, back office and JSON API",
		Long: `Club website server runs the public club site, the admin back office
and the JSON API from one binary.

The server provides:
- Events with registrations, recurring schedules and an iCalendar feed
- Departments, FAQs and a media gallery
- Content pulled from a headless CMS
- Background email jobs for confirmations, reminders and invitations`,
		SilenceUsage: true,
		// Serving is the default when no subcommand is given.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts, serve)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (optional, uses env vars by default)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		newServeCommand(opts, serve),
		newMigrateCommand(opts),
		newUserCommand(opts),
		newVersionCommand(),
		newHealthcheckCommand(),
	)
	return root
}

// Execute runs the command tree until it returns or the process is
// interrupted. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig layers the optional --config file and the environment, then
// applies the logging flags.
func loadConfig(opts *globalOptions) (config.Config, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	return cfg, nil
}
