// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the pipeman CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pipeman",
		Short:         "Deploy uStack on OpenStack from a uSwift image",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Deploy())
	cmd.AddCommand(Version())

	return cmd
}
