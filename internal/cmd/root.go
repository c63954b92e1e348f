// Package cmd wires the CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// SetVersionInfo sets the version information from the main package.
func SetVersionInfo(v, c string) {
	version = v
	commit = c
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "osaibot",
	Short: "Bridge between a chat bot and a sandboxed shell",
	Long: `osaibot bridges a line-oriented chat client and an interactive shell
running inside a sandboxed Linux container. Each client connection gets an
isolated overlay root, a PTY-attached shell, and a write-only upload file;
shell output comes back as plain text chunks or full-screen snapshots.`,
	Version: version,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("osaibot version %s\n", version)
		if commit != "none" && commit != "" {
			fmt.Printf("Git commit: %s\n", commit)
		}
	},
}
