// Package cli provides the command-line interface for changewatch.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/changewatch/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configDir = config.DefaultDir()

var rootCmd = &cobra.Command{
	Use:   "changewatch",
	Short: "Watch feeds and web pages for changes",
	Long: "changewatch polls RSS/Atom feeds, HTML pages and plain-text pages, " +
		"detects new or changed content and mails each change.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "changewatch %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", configDir, "config directory")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
