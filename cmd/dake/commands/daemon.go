package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the build daemon",
		Long:  "Listen for build, fetch, and stat requests from coordinators until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			port, _ := cmd.Flags().GetInt("port")
			return c.app.ServeDaemon(cmd.Context(), port)
		},
	}
	cmd.Flags().IntP("port", "p", 0, "Listen port (defaults to the configured port)")
	return cmd
}
