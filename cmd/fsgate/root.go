package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is injected at build time via -ldflags
var version = "dev"

// rootCmd is the entry point when fsgate is called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "fsgate",
	Short: "Trust and session gateway for a jailed filesystem tool",
	Long: `fsgate sits between an LLM client and a filesystem: every tool call
passes through credential validation, session ownership arbitration with
short alias translation, and a path jail before it touches storage.

The serve command runs the gateway as an MCP server over stdio.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(`{{printf "fsgate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
