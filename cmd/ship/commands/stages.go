package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Resolve toolchains and install the build-time dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Bootstrap(cmd.Context(), options(cmd))
			return emit(cmd, report, err)
		},
	}
}

func (c *CLI) newBundleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bundle",
		Short: "Build the standalone bundle of each platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Bundle(cmd.Context(), options(cmd))
			return emit(cmd, report, err)
		},
	}
}

func (c *CLI) newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-bundle",
		Short: "Smoke-test each bundle outside the build environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Verify(cmd.Context(), options(cmd))
			return emit(cmd, report, err)
		},
	}
}
