package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the vidtube CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vidtube",
		Short: "vidtube account and session server",
		Long: `vidtube serves the account API: registration, login, token refresh,
logout and profile management. Configuration is read from VIDTUBE_*
environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
