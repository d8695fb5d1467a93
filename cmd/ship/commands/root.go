// Package commands implements the CLI commands for ship.
package commands

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/ship/internal/app"
	"go.trai.ch/ship/internal/build"
	"go.trai.ch/ship/internal/core/domain"
)

// CLI represents the command line interface for ship.
type CLI struct {
	app     *app.App
	rootCmd *cobra.Command
}

// New creates a new CLI instance with the given app.
func New(a *app.App) *CLI {
	rootCmd := &cobra.Command{
		Use:           "ship",
		Short:         "Bundle standalone programs per platform and publish tagged releases",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringP("config", "c", domain.ConfigFileName, "Path to the project configuration")
	rootCmd.PersistentFlags().StringSliceP("platform", "p", nil, "Platform to act on (repeatable, default: platforms of this host)")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newBootstrapCmd())
	rootCmd.AddCommand(c.newBundleCmd())
	rootCmd.AddCommand(c.newVerifyCmd())
	rootCmd.AddCommand(c.newPublishCmd())
	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newReleaseCmd())
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

// SetOut redirects the status line. Used for testing.
func (c *CLI) SetOut(w io.Writer) {
	c.rootCmd.SetOut(w)
}

func options(cmd *cobra.Command) app.Options {
	configPath, _ := cmd.Flags().GetString("config")
	platforms, _ := cmd.Flags().GetStringSlice("platform")
	return app.Options{ConfigPath: configPath, Platforms: platforms}
}

// emit prints report as one JSON line on stdout and passes err through.
func emit(cmd *cobra.Command, report *app.Report, err error) error {
	if report != nil {
		line, mErr := json.Marshal(report)
		if mErr != nil {
			return mErr
		}
		line = append(line, '\n')
		if _, wErr := cmd.OutOrStdout().Write(line); wErr != nil && err == nil {
			return wErr
		}
	}
	return err
}
