// Command cass is a local CLI that indexes coding-agent conversation
// histories into a searchable corpus and drives an interactive TUI over
// it.
//
// Usage:
//
//	cass index [--full] [--watch] [--data-dir DIR]
//	cass tui [--once] [--data-dir DIR]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	dataDir string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "cass",
	Short:   "Search your coding-agent conversation history",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory (default ~/.cass)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(tuiCmd)
}

// exitCodeFor maps the error taxonomy in spec §6/§7 to process exit
// codes: 0 ok, 2 usage, 3 missing index, 9 search error.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case isUsageError(err):
		return 2
	case isMissingIndexError(err):
		return 3
	case isSearchError(err):
		return 9
	default:
		fmt.Fprintln(os.Stderr, "cass:", err)
		return 1
	}
}
