// Package main is the entry point for the pagectl CLI.
//
// pagectl is a command-line companion to the paged API client library:
// it streams every item of a cursor-paginated endpoint to stdout as
// JSON lines, going through the same rate-limited dispatcher the
// library provides.
//
// Usage:
//
//	pagectl fetch --endpoint https://api.example.com/v1/orders
//	pagectl version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pagectl",
	Short: "Stream items from a cursor-paginated API",
	Long: `pagectl fetches every page of a cursor-paginated, rate-limited API
and prints the items as JSON lines.

Requests are bounded by a concurrency gate, deduplicated through a
time-bounded response cache, and paused collectively when the upstream
answers 429. The next page is always fetched while the current one is
being printed.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pagectl %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fetchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}
