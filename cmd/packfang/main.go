// Package main provides the entry point for the packfang CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/packfang/cmd/packfang/commands"
	"github.com/Sumatoshi-tech/packfang/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "packfang",
		Short: "Packfang - Git pack verification and object counting",
		Long: `Packfang inspects Git pack files and object databases.

Commands:
  verify    Decode and verify every object in a pack
  count     Expand object ids into the set a new pack would contain
  list      Walk commit ancestry newest-first`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands.
	rootCmd.AddCommand(commands.NewVerifyCommand())
	rootCmd.AddCommand(commands.NewCountCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "packfang %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
