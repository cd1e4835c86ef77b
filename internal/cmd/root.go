// Package cmd wires the quiz-consensus CLI. Commands load configuration
// through internal/config and drive the consensus coordinator.
package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quiz-consensus",
	Short: "Multi-model consensus engine for quiz generation",
	Long: `Quiz-consensus generates quiz answers by querying multiple LLMs in
parallel, then runs anonymized re-evaluation rounds until the weighted
agreement on each question clears a configurable threshold. Every run
produces a full audit trail of who answered what, when, and why.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./quiz-consensus.yaml if present)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quiz-consensus %s\n", getVersion())
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

// getVersion returns the version string, using build info as fallback.
func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
