package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// newRunCmd creates the 'run' subcommand.
func newRunCmd() *cobra.Command {
	var input string
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run [links...]",
		Short: "Map every link from the input file and arguments",
		Long: `Loads links from the configured input file (or --input) plus any links
given as arguments, dispatches them until every handler has finished, and
prints a run summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if input != "" {
				cfg.InputFile = input
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
				defer cancel()
				if cerr := a.Close(ctx); cerr != nil {
					a.Logger().Warn("Failed to close application services", zap.Error(cerr))
				}
				_ = a.Logger().Sync()
			}()

			summary, runErr := a.Run(cmd.Context(), args)
			if !quiet {
				renderSummary(cmd.OutOrStdout(), summary)
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return fmt.Errorf("run: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input file to extract links from (overrides input_file)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the run summary")
	return cmd
}
