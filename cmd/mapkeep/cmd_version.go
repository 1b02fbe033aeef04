package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mapkeep/internal/version"
)

var (
	checkUpdate bool
	manifestURL string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and optionally check for a newer release",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&checkUpdate, "check", false, "Check for a newer release")
	versionCmd.Flags().StringVar(&manifestURL, "manifest", "", "Release manifest url (default: project package.json)")
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "mapkeep %s\n", version.Name())
	if !checkUpdate {
		return nil
	}

	ctx, cancel := commandContext()
	defer cancel()

	newer, latest, err := version.NewChecker(manifestURL).NeedsUpdate(ctx, "")
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}
	if newer {
		fmt.Fprintf(cmd.OutOrStdout(), "A newer version is available: %s\n", latest)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Up to date")
	}
	return nil
}
