// Package commands implements the CLI for the dake build tool.
package commands

import (
	"context"

	"github.com/spf13/cobra"
	"go.trai.ch/dake/internal/app"
	"go.trai.ch/dake/internal/build"
)

// CLI is the command line interface for dake.
type CLI struct {
	app     *app.App
	rootCmd *cobra.Command
}

// New creates a CLI instance around the given app.
func New(a *app.App) *CLI {
	c := &CLI{app: a}

	rootCmd := &cobra.Command{
		Use:           "dake [targets...]",
		Short:         "A distributed make",
		Long:          "dake builds Makefile targets across machines declared with ROOT_DEF directives.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return c.app.Run(cmd.Context(), args, app.RunOptions{File: file})
		},
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.Flags().StringP("file", "f", "", "Read FILE as the makefile")

	c.rootCmd = rootCmd
	rootCmd.AddCommand(c.newDaemonCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}
