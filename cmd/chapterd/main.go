// Package main provides the chapterd CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	version = "0.1.0"
	pretty  = true
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chapterd",
		Short: "chapterd - AI chapter timecodes for video transcripts",
		Long: `chapterd turns video transcripts into chapter timecodes using an LLM.

Usage modes:
  chapterd serve      Run the daemon: orchestrator, local HTTP API, browser control
  chapterd generate   One-shot: transcript in, chapters out
  chapterd watch      Follow a running generation session in the terminal
  chapterd settings   Manage API keys, default model, instruction presets`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("pretty") {
				pretty = term.IsTerminal(int(os.Stdout.Fd()))
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show chapterd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chapterd %s\n", version)
		},
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
