// Package cmd defines and implements the CLI commands for the linkmapper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/linkmapper/internal/app"
	"github.com/JakeFAU/linkmapper/internal/config"
)

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// newApp is the application factory. It's a variable so tests can inject options.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "linkmapper",
		Short: "Routes scraped links to per-site handlers and download queues.",
		Long: `linkmapper reads links from an input file and the command line, routes
each one to the handler for its site, and sends everything else to the
loose-file queue, an external delegate or the unsupported-links log.`,
		SilenceUsage: true,

		// Config is loaded once here and handed to subcommands through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRoutesCmd())

	return cmd
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "linkmapper:", err)
		stop()
		os.Exit(1)
	}
}
