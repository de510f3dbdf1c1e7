package cmd

import (
	"github.com/spf13/cobra"
)

// newRoutesCmd creates the 'routes' subcommand.
func newRoutesCmd() *cobra.Command {
	var crawler string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the compiled routing table",
		Long: `Prints every routing key in scan order with the handler family and
download capability it maps to. Keys are matched as substrings of the host,
first match wins.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			renderRoutes(cmd.OutOrStdout(), crawler)
			return nil
		},
	}
	cmd.Flags().StringVar(&crawler, "crawler", "", "only show keys for this handler family")
	return cmd
}
