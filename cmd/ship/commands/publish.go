package commands

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.trai.ch/ship/internal/app"
)

// Environment variables the pipeline driver sets to describe the commit under build.
const (
	EnvTag    = "SHIP_TAG"
	EnvTagged = "SHIP_TAGGED"
)

func addReleaseFlags(cmd *cobra.Command) {
	tagged, _ := strconv.ParseBool(os.Getenv(EnvTagged))
	cmd.Flags().String("tag", os.Getenv(EnvTag), "Tag of the commit under build (default $"+EnvTag+")")
	cmd.Flags().Bool("tagged", tagged, "The commit under build is tagged (default $"+EnvTagged+")")
}

func publishOptions(cmd *cobra.Command) app.PublishOptions {
	tag, _ := cmd.Flags().GetString("tag")
	tagged, _ := cmd.Flags().GetBool("tagged")
	return app.PublishOptions{Options: options(cmd), Tag: tag, Tagged: tagged}
}

func (c *CLI) newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish verified bundles when the commit carries a version tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Publish(cmd.Context(), publishOptions(cmd))
			return emit(cmd, report, err)
		},
	}
	addReleaseFlags(cmd)
	return cmd
}

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage: bootstrap, bundle, verify-bundle and publish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Run(cmd.Context(), publishOptions(cmd))
			return emit(cmd, report, err)
		},
	}
	addReleaseFlags(cmd)
	return cmd
}

func (c *CLI) newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Inspect published releases",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <tag>",
		Short: "Show the digest published for each platform under a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			report, err := c.app.Status(cmd.Context(), configPath, args[0])
			return emit(cmd, report, err)
		},
	})
	return cmd
}
