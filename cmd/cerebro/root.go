package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "cerebro",
	Short: "Cerebro - multi-tenant OpenAI-compatible proxy",
	Long: `Cerebro is a multi-tenant proxy that terminates the OpenAI
chat-completions protocol on behalf of thin clients.

It sits between clients and an upstream model provider, providing:
  - Streaming SSE relay with keep-alives and recursive tool execution
  - Tenant-registered tool endpoints with manifest hot reload
  - Tiered ephemeral session memory with model-driven summarization
  - Long-term vector memory with per-tenant collections
  - Durable archiving of ended sessions`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
